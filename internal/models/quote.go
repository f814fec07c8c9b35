package models

// QuoteState represents the lifecycle state of an insurer quote.
// WAITING is the only non-terminal state; ACTIVE and FAILED never revert.
type QuoteState string

const (
	// QuoteStateWaiting indicates the insurer has not priced the quote yet.
	QuoteStateWaiting QuoteState = "WAITING"
	// QuoteStateActive indicates the quote is priced and purchasable.
	QuoteStateActive QuoteState = "ACTIVE"
	// QuoteStateFailed indicates the insurer declined to quote.
	QuoteStateFailed QuoteState = "FAILED"
)

// IsTerminal reports whether the state can no longer change.
func (s QuoteState) IsTerminal() bool {
	return s == QuoteStateActive || s == QuoteStateFailed
}

// IsValidQuoteState checks if the given quote state is supported.
func IsValidQuoteState(s QuoteState) bool {
	switch s {
	case QuoteStateWaiting, QuoteStateActive, QuoteStateFailed:
		return true
	default:
		return false
	}
}

// CoverageTier is the display tier assigned to a visible quote by price rank.
type CoverageTier string

const (
	// TierEntry is assigned to the cheapest visible quote.
	TierEntry CoverageTier = "entry"
	// TierMid is assigned to every quote between the extremes.
	TierMid CoverageTier = "mid"
	// TierTop is assigned to the most expensive visible quote.
	TierTop CoverageTier = "top"
)

// Premium is a price point for a specific installment-count plan on a quote.
type Premium struct {
	InstallmentCount int     `json:"installmentCount"`
	NetAmount        float64 `json:"netAmount"`
	GrossAmount      float64 `json:"grossAmount"`
	Currency         string  `json:"currency"`
	// CompanyProposalRef is the insurer-side reference needed to commit a
	// purchase against this premium.
	CompanyProposalRef string `json:"companyProposalRef,omitempty"`
}

// Coverage is the fixed field set a quote's coverage detail resolves into.
// Empty strings mean the source did not report that field.
type Coverage struct {
	BuildingSum   string `json:"buildingSum,omitempty"`
	ContentsSum   string `json:"contentsSum,omitempty"`
	EarthquakeSum string `json:"earthquakeSum,omitempty"`
	TheftSum      string `json:"theftSum,omitempty"`
	LiabilitySum  string `json:"liabilitySum,omitempty"`
	Assistance    string `json:"assistance,omitempty"`
}

// IsZero reports whether no field of the coverage is populated.
func (c Coverage) IsZero() bool {
	return c == Coverage{}
}

// Quote is a single insurer's priced offer against a proposal.
type Quote struct {
	ID        string     `json:"id"`
	CompanyID string     `json:"companyId"`
	ProductID string     `json:"productId"`
	State     QuoteState `json:"state"`
	Premiums  []Premium  `json:"premiums"`
	// TierLabel is the human-readable coverage-tier label supplied by the
	// backend (e.g. "Eco", "Comfort", "Premium").
	TierLabel string `json:"tierLabel,omitempty"`

	// The three ranked coverage sources, primary first. The poller resolves
	// them field-by-field into a single Coverage for display.
	Coverage         Coverage `json:"coverage"`
	ProviderCoverage Coverage `json:"providerCoverage,omitempty"`
	InitialCoverage  Coverage `json:"initialCoverage,omitempty"`

	// ProposalID tags the quote with its source proposal so a purchase or an
	// offer-document fetch can be routed later. Set by the poller.
	ProposalID string `json:"proposalId,omitempty"`
}

// BestPremium returns the lowest gross amount across the quote's premiums,
// used for price ranking. Returns 0 when the quote carries no premiums.
func (q *Quote) BestPremium() float64 {
	var best float64
	for i, p := range q.Premiums {
		if i == 0 || p.GrossAmount < best {
			best = p.GrossAmount
		}
	}
	return best
}

// Proposal is a backend request/record from which insurer quotes are generated.
type Proposal struct {
	ID       string  `json:"id"`
	Products []Quote `json:"products"`
}

// Company is a directory entry used for name/logo enrichment of quotes.
type Company struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	LogoURL string `json:"logoUrl,omitempty"`
}

// DisplayQuote is a quote enriched for presentation: company name/logo and
// the price-ranked display tier.
type DisplayQuote struct {
	Quote
	CompanyName string       `json:"companyName"`
	CompanyLogo string       `json:"companyLogo,omitempty"`
	DisplayTier CoverageTier `json:"displayTier"`
}
