package poller

import (
	"sort"

	"github.com/polisbay/quoteflow/internal/models"
)

// SortOrder selects how a visible quote list is ordered.
type SortOrder string

const (
	// SortByPrice orders quotes by best premium, cheapest first.
	SortByPrice SortOrder = "price"
	// SortByCompany orders quotes alphabetically by company name.
	SortByCompany SortOrder = "company"
)

// dedupePremiums keeps at most one premium per installment count, first
// occurrence wins.
func dedupePremiums(premiums []models.Premium) []models.Premium {
	if len(premiums) < 2 {
		return premiums
	}
	seen := make(map[int]bool, len(premiums))
	out := premiums[:0]
	for _, p := range premiums {
		if seen[p.InstallmentCount] {
			continue
		}
		seen[p.InstallmentCount] = true
		out = append(out, p)
	}
	return out
}

// resolveCoverage merges the three ranked coverage sources field by field.
// The primary source wins whenever it reports a field; the provider-reported
// source fills the gaps, the initial snapshot is the last resort.
func resolveCoverage(primary, provider, initial models.Coverage) models.Coverage {
	pick := func(a, b, c string) string {
		if a != "" {
			return a
		}
		if b != "" {
			return b
		}
		return c
	}
	return models.Coverage{
		BuildingSum:   pick(primary.BuildingSum, provider.BuildingSum, initial.BuildingSum),
		ContentsSum:   pick(primary.ContentsSum, provider.ContentsSum, initial.ContentsSum),
		EarthquakeSum: pick(primary.EarthquakeSum, provider.EarthquakeSum, initial.EarthquakeSum),
		TheftSum:      pick(primary.TheftSum, provider.TheftSum, initial.TheftSum),
		LiabilitySum:  pick(primary.LiabilitySum, provider.LiabilitySum, initial.LiabilitySum),
		Assistance:    pick(primary.Assistance, provider.Assistance, initial.Assistance),
	}
}

// AssignTiers labels the visible quotes by price rank: the most expensive
// gets the top tier, the cheapest the entry tier, the rest the mid tier. A
// single visible quote is labelled top. Recompute whenever the visible set
// changes.
func AssignTiers(quotes []models.DisplayQuote) {
	if len(quotes) == 0 {
		return
	}
	hi, lo := 0, 0
	for i := range quotes {
		if quotes[i].BestPremium() > quotes[hi].BestPremium() {
			hi = i
		}
		if quotes[i].BestPremium() < quotes[lo].BestPremium() {
			lo = i
		}
	}
	for i := range quotes {
		switch i {
		case hi:
			quotes[i].DisplayTier = models.TierTop
		case lo:
			quotes[i].DisplayTier = models.TierEntry
		default:
			quotes[i].DisplayTier = models.TierMid
		}
	}
}

// SortQuotes orders the visible quote list in place.
func SortQuotes(quotes []models.DisplayQuote, order SortOrder) {
	switch order {
	case SortByCompany:
		sort.SliceStable(quotes, func(i, j int) bool {
			return quotes[i].CompanyName < quotes[j].CompanyName
		})
	default:
		sort.SliceStable(quotes, func(i, j int) bool {
			return quotes[i].BestPremium() < quotes[j].BestPremium()
		})
	}
}
