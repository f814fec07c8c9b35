// Package wizard implements the top-level step sequencer of the purchase flow.
//
// The controller owns the step index and the terminal outcome; it knows
// nothing about any step's internals and only reacts to completion callbacks.
package wizard

import (
	"log/slog"
	"sync"

	"github.com/polisbay/quoteflow/internal/models"
)

// Outcome is the terminal result reported by the final step.
type Outcome struct {
	Result models.WizardOutcome `json:"result"`
	// PolicyID is set on success.
	PolicyID string `json:"policyId,omitempty"`
	// Message is the user-facing error text on failure.
	Message string `json:"message,omitempty"`
}

// Controller sequences the wizard steps for one session.
type Controller struct {
	mu      sync.Mutex
	step    models.WizardStep
	outcome Outcome

	// onStepChange fires after every step transition; the HTTP layer uses it
	// to instruct the client to scroll the flow container back to the top.
	onStepChange func(models.WizardStep)
}

// Opts holds configuration options for the controller.
type Opts struct {
	OnStepChange func(models.WizardStep)
}

// Option defines a configuration option for the controller.
type Option func(*Opts)

// WithStepChangeHook registers a callback fired after every step transition.
func WithStepChangeHook(fn func(models.WizardStep)) Option {
	return func(o *Opts) { o.OnStepChange = fn }
}

// NewController creates a controller positioned at the first step.
func NewController(opts ...Option) *Controller {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Controller{
		step:         models.StepIdentity,
		outcome:      Outcome{Result: models.OutcomeNone},
		onStepChange: cfg.OnStepChange,
	}
}

// Step returns the active step index.
func (c *Controller) Step() models.WizardStep {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// Outcome returns the terminal outcome, OutcomeNone while the step sequence
// is still running.
func (c *Controller) Outcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// Terminal reports whether the wizard is frozen on a terminal presentation.
func (c *Controller) Terminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome.Result != models.OutcomeNone
}

// Advance moves one step forward, clamped to the last step. A terminal wizard
// does not move.
func (c *Controller) Advance() models.WizardStep {
	return c.shift(1)
}

// Retreat moves one step back, clamped to the first step. A terminal wizard
// does not move.
func (c *Controller) Retreat() models.WizardStep {
	return c.shift(-1)
}

func (c *Controller) shift(delta models.WizardStep) models.WizardStep {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcome.Result != models.OutcomeNone {
		return c.step
	}
	next := c.step + delta
	if next < models.StepIdentity {
		next = models.StepIdentity
	}
	if next > models.LastStep {
		next = models.LastStep
	}
	if next == c.step {
		return c.step
	}
	c.step = next
	slog.Debug("wizard step changed", "step", c.step)
	if c.onStepChange != nil {
		c.onStepChange(c.step)
	}
	return c.step
}

// ReportOutcome freezes the wizard on the terminal presentation. The step
// index is left untouched so a retry re-enters where the flow stopped.
func (c *Controller) ReportOutcome(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o.Result == models.OutcomeNone {
		return
	}
	c.outcome = o
	slog.Info("wizard outcome reported", "result", o.Result, "policy_id", o.PolicyID)
}

// Retry clears the terminal outcome so the user re-enters the step sequence
// at the step where it stopped, with all collected step data intact.
func (c *Controller) Retry() models.WizardStep {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcome = Outcome{Result: models.OutcomeNone}
	slog.Info("wizard retry", "step", c.step)
	if c.onStepChange != nil {
		c.onStepChange(c.step)
	}
	return c.step
}
