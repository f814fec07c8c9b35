// Package poller implements the quote aggregation poll.
//
// Given an immutable set of proposal identifiers it repeatedly fans out one
// fetch per proposal, merges the returned quotes, and stops when every
// allow-listed quote settles or a deadline passes. Progress is reported as a
// time-driven ramp so the caller always has continuous feedback even though
// the real completion time is unpredictable.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/polisbay/quoteflow/internal/models"
)

// Default timing constants. All of them can be overridden through Config.
const (
	// DefaultBudget is how long the poll may run overall.
	DefaultBudget = 60 * time.Second
	// DefaultEmptyCutoff ends the poll early when no allow-listed quote has
	// appeared at all.
	DefaultEmptyCutoff = 15 * time.Second
	// DefaultInterval separates consecutive fetch cycles.
	DefaultInterval = 5 * time.Second
	// DefaultFinishWindow is the progress animation from the current value to
	// 100 after termination.
	DefaultFinishWindow = 2 * time.Second

	// progressCeiling is where the time-driven ramp parks until termination.
	progressCeiling = 99
	// progressTick is the resolution of progress updates.
	progressTick = 100 * time.Millisecond
)

// ProposalService fetches proposal state; satisfied by backend.Client.
type ProposalService interface {
	GetProposal(ctx context.Context, accessToken, proposalID string) (*models.Proposal, error)
}

// DirectoryService fetches the company directory; satisfied by backend.Client.
type DirectoryService interface {
	GetCompanies(ctx context.Context) ([]models.Company, error)
}

// TerminationReason records which stop condition ended the poll.
type TerminationReason string

const (
	// ReasonAllTerminal means every allow-listed quote reached ACTIVE or FAILED.
	ReasonAllTerminal TerminationReason = "all_terminal"
	// ReasonBudgetElapsed means the overall poll budget ran out.
	ReasonBudgetElapsed TerminationReason = "budget_elapsed"
	// ReasonNoQuotes means the empty cutoff passed without any allow-listed quote.
	ReasonNoQuotes TerminationReason = "no_quotes"
	// ReasonAllFailed means every allow-listed quote is FAILED.
	ReasonAllFailed TerminationReason = "all_failed"
)

// Config carries the poll's timing knobs and the product allow-list.
type Config struct {
	Budget          time.Duration
	EmptyCutoff     time.Duration
	Interval        time.Duration
	FinishWindow    time.Duration
	AllowedProducts []string
}

// withDefaults fills zero fields with the stated defaults.
func (c Config) withDefaults() Config {
	if c.Budget == 0 {
		c.Budget = DefaultBudget
	}
	if c.EmptyCutoff == 0 {
		c.EmptyCutoff = DefaultEmptyCutoff
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.FinishWindow == 0 {
		c.FinishWindow = DefaultFinishWindow
	}
	return c
}

// Result is the consolidated outcome of a finished poll.
type Result struct {
	// Quotes is the filtered, enriched quote list: ACTIVE, allow-listed,
	// premiums deduplicated, coverage resolved, tagged with display tiers.
	Quotes []models.DisplayQuote
	// Reason records which termination condition fired.
	Reason TerminationReason
	// Cycles counts the completed fetch cycles.
	Cycles int
}

// Poller drives one poll over a fixed proposal-identifier set.
type Poller struct {
	proposals   ProposalService
	directory   DirectoryService
	accessToken string
	ids         []string
	cfg         Config

	progress atomic.Int64
	done     atomic.Bool

	// merged is the cross-cycle quote state, last-write-wins per quote id
	// with a monotonic guard.
	merged map[string]models.Quote
}

// New creates a poller over the given proposal identifiers. The identifier
// set is copied and treated as immutable for the poll's lifetime.
func New(proposals ProposalService, directory DirectoryService, accessToken string, proposalIDs []string, cfg Config) *Poller {
	ids := make([]string, len(proposalIDs))
	copy(ids, proposalIDs)
	return &Poller{
		proposals:   proposals,
		directory:   directory,
		accessToken: accessToken,
		ids:         ids,
		cfg:         cfg.withDefaults(),
		merged:      make(map[string]models.Quote),
	}
}

// Progress returns the current progress value in [0,100].
func (p *Poller) Progress() int {
	return int(p.progress.Load())
}

// Done reports whether the poll has finished, including the finish animation.
func (p *Poller) Done() bool {
	return p.done.Load()
}

// Run executes the poll until a termination condition fires or the context is
// cancelled. It returns an error only for unrecoverable conditions (no
// proposal identifiers, directory fetch failure, cancellation); deadline
// expiry is a normal result, never an error.
func (p *Poller) Run(ctx context.Context) (*Result, error) {
	if len(p.ids) == 0 {
		return nil, models.ErrNoProposals
	}

	companies, err := p.directory.GetCompanies(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDirectoryUnavailable, err)
	}
	companyByID := make(map[string]models.Company, len(companies))
	for _, c := range companies {
		companyByID[c.ID] = c
	}

	start := time.Now()
	rampCtx, stopRamp := context.WithCancel(ctx)
	defer stopRamp()
	go p.runRamp(rampCtx, start)

	var (
		reason TerminationReason
		cycles int
	)
	for {
		cycle := p.fetchCycle(ctx)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.merge(cycle)
		cycles++

		// Termination is evaluated only after a full cycle, never mid-cycle.
		var terminated bool
		reason, terminated = p.checkTermination(time.Since(start))
		if terminated {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.cfg.Interval):
		}
	}
	stopRamp()

	slog.Info("quote poll terminated", "reason", reason, "cycles", cycles, "elapsed", time.Since(start))

	if err := p.finishAnimation(ctx); err != nil {
		return nil, err
	}
	p.done.Store(true)

	return &Result{
		Quotes: p.visibleQuotes(companyByID),
		Reason: reason,
		Cycles: cycles,
	}, nil
}

// fetchCycle fans out one fetch per proposal identifier and collects every
// returned quote tagged with its source proposal. A failed fetch is logged
// and contributes zero quotes rather than aborting the cycle.
func (p *Poller) fetchCycle(ctx context.Context) []models.Quote {
	var (
		mu     sync.Mutex
		quotes []models.Quote
		wg     sync.WaitGroup
	)
	for _, id := range p.ids {
		wg.Add(1)
		go func(proposalID string) {
			defer wg.Done()
			proposal, err := p.proposals.GetProposal(ctx, p.accessToken, proposalID)
			if err != nil {
				slog.Warn("proposal fetch failed, treating as zero quotes", "proposal_id", proposalID, "error", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, q := range proposal.Products {
				q.ProposalID = proposalID
				quotes = append(quotes, q)
			}
		}(id)
	}
	wg.Wait()
	return quotes
}

// merge folds a cycle's quotes into the cross-cycle state. Merging is
// last-write-wins per quote identifier, except that a terminal state is never
// overwritten by WAITING: quote state only moves forward.
func (p *Poller) merge(cycle []models.Quote) {
	for _, q := range cycle {
		if prev, ok := p.merged[q.ID]; ok {
			if prev.State.IsTerminal() && !q.State.IsTerminal() {
				continue
			}
		}
		q.Premiums = dedupePremiums(q.Premiums)
		q.Coverage = resolveCoverage(q.Coverage, q.ProviderCoverage, q.InitialCoverage)
		p.merged[q.ID] = q
	}
}

// allowListed returns the merged quotes whose product is in the allow-list.
// An empty allow-list admits every product.
func (p *Poller) allowListed() []models.Quote {
	allowed := make(map[string]bool, len(p.cfg.AllowedProducts))
	for _, id := range p.cfg.AllowedProducts {
		allowed[id] = true
	}
	var out []models.Quote
	for _, q := range p.merged {
		if len(allowed) == 0 || allowed[q.ProductID] {
			out = append(out, q)
		}
	}
	return out
}

// checkTermination evaluates the stop conditions against the merged state.
func (p *Poller) checkTermination(elapsed time.Duration) (TerminationReason, bool) {
	listed := p.allowListed()

	if len(listed) == 0 {
		if elapsed >= p.cfg.EmptyCutoff {
			return ReasonNoQuotes, true
		}
		if elapsed >= p.cfg.Budget {
			return ReasonBudgetElapsed, true
		}
		return "", false
	}

	allTerminal, allFailed := true, true
	for _, q := range listed {
		if !q.State.IsTerminal() {
			allTerminal = false
		}
		if q.State != models.QuoteStateFailed {
			allFailed = false
		}
	}
	switch {
	case allFailed:
		return ReasonAllFailed, true
	case allTerminal:
		return ReasonAllTerminal, true
	case elapsed >= p.cfg.Budget:
		return ReasonBudgetElapsed, true
	}
	return "", false
}

// runRamp drives the 0..99 time ramp over the poll budget.
func (p *Poller) runRamp(ctx context.Context, start time.Time) {
	ticker := time.NewTicker(progressTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ratio := float64(time.Since(start)) / float64(p.cfg.Budget)
			v := int64(ratio * progressCeiling)
			if v > progressCeiling {
				v = progressCeiling
			}
			// Progress only moves forward.
			if v > p.progress.Load() {
				p.progress.Store(v)
			}
		}
	}
}

// finishAnimation walks the progress value smoothly from wherever the ramp
// left it up to 100 over the finish window.
func (p *Poller) finishAnimation(ctx context.Context) error {
	from := p.progress.Load()
	if from >= 100 {
		p.progress.Store(100)
		return nil
	}
	steps := int(p.cfg.FinishWindow / progressTick)
	if steps < 1 {
		steps = 1
	}
	ticker := time.NewTicker(p.cfg.FinishWindow / time.Duration(steps))
	defer ticker.Stop()
	for i := 1; i <= steps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.progress.Store(from + int64(i)*(100-from)/int64(steps))
		}
	}
	p.progress.Store(100)
	return nil
}

// visibleQuotes filters the merged state down to the displayable set: ACTIVE,
// allow-listed, enriched with company data and price-ranked tiers, sorted by
// price ascending.
func (p *Poller) visibleQuotes(companies map[string]models.Company) []models.DisplayQuote {
	var visible []models.DisplayQuote
	for _, q := range p.allowListed() {
		if q.State != models.QuoteStateActive {
			continue
		}
		dq := models.DisplayQuote{Quote: q}
		if c, ok := companies[q.CompanyID]; ok {
			dq.CompanyName = c.Name
			dq.CompanyLogo = c.LogoURL
		}
		visible = append(visible, dq)
	}
	AssignTiers(visible)
	SortQuotes(visible, SortByPrice)
	return visible
}
