// Package models defines state and session-key definitions to avoid circular imports.
package models

// GateState represents a state of the identity & profile gate.
type GateState string

// Identity gate state constants.
const (
	GateIdle                GateState = "IDLE"
	GateAwaitingOtp         GateState = "AWAITING_OTP"
	GateVerifying           GateState = "VERIFYING"
	GateVerified            GateState = "VERIFIED"
	GateOtpFailed           GateState = "OTP_FAILED"
	GateNeedsAdditionalInfo GateState = "NEEDS_ADDITIONAL_INFO"
	GateReady               GateState = "READY"
)

// WizardStep indexes the wizard's step sequence.
type WizardStep int

// Wizard step constants.
const (
	StepIdentity WizardStep = iota
	StepProperty
	StepQuotes
	StepPayment
	// LastStep is the highest valid step index.
	LastStep = StepPayment
)

// WizardOutcome is the terminal outcome of the wizard.
type WizardOutcome string

const (
	// OutcomeNone means the wizard is still in its step sequence.
	OutcomeNone WizardOutcome = "none"
	// OutcomeSuccess freezes the wizard on the success presentation.
	OutcomeSuccess WizardOutcome = "success"
	// OutcomeError freezes the wizard on the error presentation.
	OutcomeError WizardOutcome = "error"
)

// SessionKey names a persisted session key in the store.
type SessionKey string

// Persisted session keys (lifecycle-bound, see cleanup semantics in store).
const (
	KeyAuthSession     SessionKey = "authSession"     // authenticated-session descriptor
	KeyProposalIDs     SessionKey = "proposalIds"     // proposal-identifier set
	KeyProfileComplete SessionKey = "profileComplete" // profile-completion flag
	KeyPendingPayment  SessionKey = "pendingPayment"  // pending-payment descriptor
	KeyThreeDSResult   SessionKey = "threeDSResult"   // 3-D Secure result payload
	KeyThreeDSStatus   SessionKey = "threeDSStatus"   // 3-D Secure status marker
	KeyThreeDSError    SessionKey = "threeDSError"    // 3-D Secure error detail
	KeySelectedQuote   SessionKey = "selectedQuote"   // selected-quote-for-purchase
)

// PaymentKeys lists the ephemeral keys the settlement flow owns. Cleanup
// removes exactly these and must be safe to run multiple times.
func PaymentKeys() []SessionKey {
	return []SessionKey{KeyPendingPayment, KeyThreeDSResult, KeyThreeDSStatus, KeyThreeDSError, KeySelectedQuote}
}

// AllSessionKeys lists every persisted session key so the whole session can
// be removed as a single cleanup operation.
func AllSessionKeys() []SessionKey {
	return []SessionKey{
		KeyAuthSession, KeyProposalIDs, KeyProfileComplete,
		KeyPendingPayment, KeyThreeDSResult, KeyThreeDSStatus, KeyThreeDSError, KeySelectedQuote,
	}
}
