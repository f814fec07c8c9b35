package models

import (
	"fmt"
	"time"
)

// OrderItem is a line item attached to a payment session.
type OrderItem struct {
	Name     string  `json:"name"`
	Amount   float64 `json:"amount"`
	Quantity int     `json:"quantity"`
}

// PaymentSession is an open session against the payment gateway.
type PaymentSession struct {
	SessionToken      string      `json:"sessionToken"`
	MerchantPaymentID string      `json:"merchantPaymentId"`
	Amount            float64     `json:"amount"`
	Currency          string      `json:"currency"`
	Items             []OrderItem `json:"items,omitempty"`
}

// MerchantPaymentID generates the idempotency-style merchant payment
// identifier in the {product}-{proposalId}-{timestamp} form.
func MerchantPaymentID(productID, proposalID string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d", productID, proposalID, at.Unix())
}

// MaskedCard carries the non-sensitive card echo used for purchase commit.
// The PAN is masked to first six / last four before it ever reaches QuoteFlow.
type MaskedCard struct {
	MaskedNumber string `json:"maskedNumber"`
	Holder       string `json:"holder,omitempty"`
	ExpiryMonth  string `json:"expiryMonth"`
	ExpiryYear   string `json:"expiryYear"`
}

// CardSubmission is the payload sent to the gateway to obtain a 3-D Secure
// challenge for an open session.
type CardSubmission struct {
	SessionToken string     `json:"sessionToken"`
	Card         MaskedCard `json:"card"`
}

// ThreeDSecureChallenge is the opaque markup rendered in an isolated context.
type ThreeDSecureChallenge struct {
	HTML string `json:"html"`
}

// ThreeDSecureResult arrives asynchronously through the rendezvous channel
// once the challenge completes in its isolated context.
type ThreeDSecureResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PendingPayment is the descriptor persisted before the 3-D Secure step so a
// page reload can recover the purchase context.
type PendingPayment struct {
	Type             string     `json:"type"` // product family, e.g. "home"
	ProposalID       string     `json:"proposal_id"`
	ProductID        string     `json:"product_id"`
	QuoteID          string     `json:"quote_id"`
	InstallmentCount int        `json:"installment_count"`
	MerchantID       string     `json:"merchant_id"`
	SessionToken     string     `json:"session_token"`
	Card             MaskedCard `json:"card"`
	CreatedAt        time.Time  `json:"created_at"`
}

// PurchaseRequest commits a purchase against the proposal service.
type PurchaseRequest struct {
	ProposalID       string     `json:"proposalId"`
	ProductID        string     `json:"productId"`
	QuoteID          string     `json:"quoteId"`
	InstallmentCount int        `json:"installmentCount"`
	MerchantID       string     `json:"merchantId"`
	Card             MaskedCard `json:"card"`
}

// PurchaseResult is the terminal success payload of the settlement flow.
type PurchaseResult struct {
	PolicyID string `json:"policyId"`
}
