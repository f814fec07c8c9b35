package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/polisbay/quoteflow/internal/models"
)

// fastConfig keeps the tests quick while preserving the ratios between the
// timing knobs.
func fastConfig() Config {
	return Config{
		Budget:          400 * time.Millisecond,
		EmptyCutoff:     100 * time.Millisecond,
		Interval:        20 * time.Millisecond,
		FinishWindow:    40 * time.Millisecond,
		AllowedProducts: []string{"home-1"},
	}
}

// stubProposals serves scripted proposal fetches. Each call for a proposal id
// advances through its script, sticking on the last entry.
type stubProposals struct {
	mu      sync.Mutex
	scripts map[string][]models.Proposal
	errs    map[string]error
	calls   map[string]int
}

func newStubProposals() *stubProposals {
	return &stubProposals{
		scripts: make(map[string][]models.Proposal),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (s *stubProposals) GetProposal(ctx context.Context, accessToken, id string) (*models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[id]++
	if err := s.errs[id]; err != nil {
		return nil, err
	}
	script := s.scripts[id]
	if len(script) == 0 {
		return &models.Proposal{ID: id}, nil
	}
	idx := s.calls[id] - 1
	if idx >= len(script) {
		idx = len(script) - 1
	}
	p := script[idx]
	return &p, nil
}

type stubDirectory struct {
	companies []models.Company
	err       error
}

func (s *stubDirectory) GetCompanies(ctx context.Context) ([]models.Company, error) {
	return s.companies, s.err
}

func directory() *stubDirectory {
	return &stubDirectory{companies: []models.Company{
		{ID: "c1", Name: "Anchor Sigorta", LogoURL: "https://cdn/c1.png"},
		{ID: "c2", Name: "Beacon Sigorta"},
	}}
}

func activeQuote(id, company string, gross float64) models.Quote {
	return models.Quote{
		ID: id, CompanyID: company, ProductID: "home-1", State: models.QuoteStateActive,
		Premiums: []models.Premium{{InstallmentCount: 1, GrossAmount: gross, Currency: "TRY"}},
	}
}

func TestSingleActiveQuoteTerminatesEarly(t *testing.T) {
	proposals := newStubProposals()
	proposals.scripts["p1"] = []models.Proposal{
		{ID: "p1", Products: []models.Quote{activeQuote("q1", "c1", 1200)}},
	}
	p := New(proposals, directory(), "tok", []string{"p1"}, fastConfig())

	start := time.Now()
	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Reason != ReasonAllTerminal {
		t.Errorf("expected all_terminal, got %s", result.Reason)
	}
	if len(result.Quotes) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(result.Quotes))
	}
	if result.Quotes[0].ProposalID != "p1" {
		t.Error("quote should be tagged with its source proposal")
	}
	if result.Quotes[0].CompanyName != "Anchor Sigorta" {
		t.Errorf("expected company enrichment, got %q", result.Quotes[0].CompanyName)
	}
	if p.Progress() != 100 {
		t.Errorf("expected progress 100, got %d", p.Progress())
	}
	if !p.Done() {
		t.Error("poller should report done")
	}
	if elapsed := time.Since(start); elapsed >= fastConfig().Budget {
		t.Errorf("terminal quotes should end the poll before the budget, took %v", elapsed)
	}
}

func TestWaitingForeverEndsAtBudget(t *testing.T) {
	proposals := newStubProposals()
	waiting := models.Quote{ID: "q1", CompanyID: "c1", ProductID: "home-1", State: models.QuoteStateWaiting}
	proposals.scripts["p1"] = []models.Proposal{{ID: "p1", Products: []models.Quote{waiting}}}
	waiting2 := waiting
	waiting2.ID = "q2"
	proposals.scripts["p2"] = []models.Proposal{{ID: "p2", Products: []models.Quote{waiting2}}}

	cfg := fastConfig()
	p := New(proposals, directory(), "tok", []string{"p1", "p2"}, cfg)

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("budget expiry must not be an error: %v", err)
	}
	if result.Reason != ReasonBudgetElapsed {
		t.Errorf("expected budget_elapsed, got %s", result.Reason)
	}
	if len(result.Quotes) != 0 {
		t.Errorf("nothing went ACTIVE, expected empty list, got %d", len(result.Quotes))
	}
	if p.Progress() != 100 {
		t.Errorf("expected progress 100 after finish animation, got %d", p.Progress())
	}
}

func TestNoQuotesEndsAtEmptyCutoff(t *testing.T) {
	proposals := newStubProposals()
	// Product not in the allow-list, so no allow-listed quote ever exists.
	offList := activeQuote("q1", "c1", 900)
	offList.ProductID = "auto-1"
	proposals.scripts["p1"] = []models.Proposal{{ID: "p1", Products: []models.Quote{offList}}}

	cfg := fastConfig()
	p := New(proposals, directory(), "tok", []string{"p1"}, cfg)

	start := time.Now()
	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Reason != ReasonNoQuotes {
		t.Errorf("expected no_quotes, got %s", result.Reason)
	}
	if elapsed := time.Since(start); elapsed >= cfg.Budget {
		t.Errorf("empty cutoff should fire well before the budget, took %v", elapsed)
	}
}

func TestAllFailedTerminates(t *testing.T) {
	proposals := newStubProposals()
	failed := activeQuote("q1", "c1", 900)
	failed.State = models.QuoteStateFailed
	proposals.scripts["p1"] = []models.Proposal{{ID: "p1", Products: []models.Quote{failed}}}

	p := New(proposals, directory(), "tok", []string{"p1"}, fastConfig())
	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Reason != ReasonAllFailed {
		t.Errorf("expected all_failed, got %s", result.Reason)
	}
	if len(result.Quotes) != 0 {
		t.Errorf("failed quotes are not displayable, got %d", len(result.Quotes))
	}
}

func TestNoProposalIDsFailsFast(t *testing.T) {
	p := New(newStubProposals(), directory(), "tok", nil, fastConfig())
	if _, err := p.Run(context.Background()); !errors.Is(err, models.ErrNoProposals) {
		t.Errorf("expected ErrNoProposals, got %v", err)
	}
}

func TestDirectoryFailureIsAnExplicitError(t *testing.T) {
	p := New(newStubProposals(), &stubDirectory{err: errors.New("boom")}, "tok", []string{"p1"}, fastConfig())
	if _, err := p.Run(context.Background()); !errors.Is(err, models.ErrDirectoryUnavailable) {
		t.Errorf("expected ErrDirectoryUnavailable, got %v", err)
	}
}

func TestSingleProposalFetchFailureIsTolerated(t *testing.T) {
	proposals := newStubProposals()
	proposals.scripts["p1"] = []models.Proposal{
		{ID: "p1", Products: []models.Quote{activeQuote("q1", "c1", 1200)}},
	}
	proposals.errs["p2"] = errors.New("upstream 500")

	p := New(proposals, directory(), "tok", []string{"p1", "p2"}, fastConfig())
	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("a single failing proposal must not abort the poll: %v", err)
	}
	if len(result.Quotes) != 1 {
		t.Errorf("expected the healthy proposal's quote, got %d", len(result.Quotes))
	}
}

func TestTerminalStateNeverRevertsToWaiting(t *testing.T) {
	proposals := newStubProposals()
	active := activeQuote("q1", "c1", 1200)
	waiting := active
	waiting.State = models.QuoteStateWaiting
	// Still-waiting sibling keeps the poll alive past the first cycle.
	sibling := models.Quote{ID: "q2", CompanyID: "c2", ProductID: "home-1", State: models.QuoteStateWaiting}
	proposals.scripts["p1"] = []models.Proposal{
		{ID: "p1", Products: []models.Quote{active, sibling}},
		{ID: "p1", Products: []models.Quote{waiting, sibling}},
	}

	cfg := fastConfig()
	cfg.Budget = 120 * time.Millisecond
	p := New(proposals, directory(), "tok", []string{"p1"}, cfg)
	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Quotes) != 1 || result.Quotes[0].ID != "q1" {
		t.Fatalf("q1 should still be ACTIVE despite the stale WAITING re-read, got %+v", result.Quotes)
	}
}

func TestCancellationStopsThePoll(t *testing.T) {
	proposals := newStubProposals()
	waiting := models.Quote{ID: "q1", CompanyID: "c1", ProductID: "home-1", State: models.QuoteStateWaiting}
	proposals.scripts["p1"] = []models.Proposal{{ID: "p1", Products: []models.Quote{waiting}}}

	cfg := fastConfig()
	cfg.Budget = 10 * time.Second
	cfg.EmptyCutoff = 10 * time.Second
	p := New(proposals, directory(), "tok", []string{"p1"}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	if _, err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPremiumDedupeFirstOccurrenceWins(t *testing.T) {
	premiums := []models.Premium{
		{InstallmentCount: 1, GrossAmount: 100},
		{InstallmentCount: 3, GrossAmount: 110},
		{InstallmentCount: 1, GrossAmount: 999},
		{InstallmentCount: 3, GrossAmount: 998},
		{InstallmentCount: 6, GrossAmount: 120},
	}
	out := dedupePremiums(premiums)
	if len(out) != 3 {
		t.Fatalf("expected 3 deduplicated premiums, got %d", len(out))
	}
	seen := make(map[int]bool)
	for _, p := range out {
		if seen[p.InstallmentCount] {
			t.Fatalf("duplicate installment count %d survived", p.InstallmentCount)
		}
		seen[p.InstallmentCount] = true
	}
	if out[0].GrossAmount != 100 || out[1].GrossAmount != 110 {
		t.Error("first occurrence must win")
	}
}

func TestCoverageResolutionPrefersRankedSources(t *testing.T) {
	primary := models.Coverage{BuildingSum: "500000"}
	provider := models.Coverage{BuildingSum: "111111", ContentsSum: "50000"}
	initial := models.Coverage{BuildingSum: "222222", ContentsSum: "22222", TheftSum: "10000"}

	got := resolveCoverage(primary, provider, initial)
	if got.BuildingSum != "500000" {
		t.Errorf("primary must win for buildingSum, got %q", got.BuildingSum)
	}
	if got.ContentsSum != "50000" {
		t.Errorf("provider fills contentsSum, got %q", got.ContentsSum)
	}
	if got.TheftSum != "10000" {
		t.Errorf("initial is the last resort for theftSum, got %q", got.TheftSum)
	}
}

func TestTierAssignmentByPriceRank(t *testing.T) {
	quotes := []models.DisplayQuote{
		{Quote: activeQuote("q1", "c1", 900)},
		{Quote: activeQuote("q2", "c2", 1500)},
		{Quote: activeQuote("q3", "c1", 1100)},
	}
	AssignTiers(quotes)
	tiers := map[string]models.CoverageTier{}
	for _, q := range quotes {
		tiers[q.ID] = q.DisplayTier
	}
	if tiers["q2"] != models.TierTop {
		t.Errorf("most expensive should be top, got %s", tiers["q2"])
	}
	if tiers["q1"] != models.TierEntry {
		t.Errorf("cheapest should be entry, got %s", tiers["q1"])
	}
	if tiers["q3"] != models.TierMid {
		t.Errorf("middle should be mid, got %s", tiers["q3"])
	}
}

func TestSortQuotes(t *testing.T) {
	quotes := []models.DisplayQuote{
		{Quote: activeQuote("q1", "c1", 1500), CompanyName: "Beacon"},
		{Quote: activeQuote("q2", "c2", 900), CompanyName: "Anchor"},
	}
	SortQuotes(quotes, SortByPrice)
	if quotes[0].ID != "q2" {
		t.Error("price sort should put the cheapest first")
	}
	SortQuotes(quotes, SortByCompany)
	if quotes[0].CompanyName != "Anchor" {
		t.Error("company sort should be alphabetical")
	}
}
