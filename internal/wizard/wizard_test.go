package wizard

import (
	"testing"

	"github.com/polisbay/quoteflow/internal/models"
)

func TestAdvanceAndRetreatClamp(t *testing.T) {
	c := NewController()
	if c.Step() != models.StepIdentity {
		t.Fatalf("expected to start at identity, got %d", c.Step())
	}
	if got := c.Retreat(); got != models.StepIdentity {
		t.Errorf("retreat below the first step must clamp, got %d", got)
	}
	for i := 0; i < 10; i++ {
		c.Advance()
	}
	if c.Step() != models.LastStep {
		t.Errorf("advance past the last step must clamp, got %d", c.Step())
	}
	if got := c.Retreat(); got != models.StepQuotes {
		t.Errorf("expected to retreat to quotes, got %d", got)
	}
}

func TestStepChangeHookFiresOnTransitions(t *testing.T) {
	var transitions []models.WizardStep
	c := NewController(WithStepChangeHook(func(s models.WizardStep) {
		transitions = append(transitions, s)
	}))

	c.Advance()
	c.Advance()
	c.Retreat()
	// A clamped move is not a transition.
	c.Retreat()
	c.Retreat()

	want := []models.WizardStep{models.StepProperty, models.StepQuotes, models.StepProperty, models.StepIdentity}
	if len(transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %d", len(want), len(transitions))
	}
	for i, s := range want {
		if transitions[i] != s {
			t.Errorf("transition %d: expected %d, got %d", i, s, transitions[i])
		}
	}
}

func TestTerminalOutcomeFreezesTheWizard(t *testing.T) {
	c := NewController()
	c.Advance()
	c.Advance()
	c.Advance() // payment step

	c.ReportOutcome(Outcome{Result: models.OutcomeError, Message: "payment declined"})
	if !c.Terminal() {
		t.Fatal("wizard should be terminal after an outcome")
	}
	if got := c.Advance(); got != models.StepPayment {
		t.Errorf("terminal wizard must not move, got %d", got)
	}
	if got := c.Retreat(); got != models.StepPayment {
		t.Errorf("terminal wizard must not move, got %d", got)
	}
}

func TestRetryKeepsStepData(t *testing.T) {
	c := NewController()
	c.Advance()
	c.Advance()
	c.Advance()
	c.ReportOutcome(Outcome{Result: models.OutcomeError, Message: "payment declined"})

	step := c.Retry()
	if step != models.StepPayment {
		t.Errorf("retry must re-enter at the same step, got %d", step)
	}
	if c.Terminal() {
		t.Error("retry must clear the terminal outcome")
	}
	if c.Outcome().Message != "" {
		t.Error("retry must clear the outcome payload")
	}
}

func TestSuccessOutcomeCarriesPolicyID(t *testing.T) {
	c := NewController()
	c.ReportOutcome(Outcome{Result: models.OutcomeSuccess, PolicyID: "pol-1"})
	if got := c.Outcome(); got.Result != models.OutcomeSuccess || got.PolicyID != "pol-1" {
		t.Errorf("unexpected outcome %+v", got)
	}
}

func TestReportOutcomeIgnoresNone(t *testing.T) {
	c := NewController()
	c.ReportOutcome(Outcome{Result: models.OutcomeNone})
	if c.Terminal() {
		t.Error("OutcomeNone must not freeze the wizard")
	}
}
