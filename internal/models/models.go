// Package models defines the core data structures for QuoteFlow.
//
// It includes the quote, profile and payment types shared across modules,
// plus the API response envelope used by the HTTP layer.
package models

import (
	"errors"
	"time"
)

// Validation constants for input validation
const (
	// OtpCodeLength defines the number of digits in a one-time passcode
	OtpCodeLength = 6
	// MinPhoneDigits defines the minimum number of digits in a phone number
	MinPhoneDigits = 6
	// MaxOtpAttempts defines how many verification attempts a token allows
	MaxOtpAttempts = 3
)

// Error variables for better error handling and testability
var (
	ErrEmptyIdentityNumber   = errors.New("identity number cannot be empty")
	ErrEmptyPhoneNumber      = errors.New("phone number cannot be empty")
	ErrEmptyAgentID          = errors.New("agent id cannot be empty")
	ErrInvalidOtpCode        = errors.New("otp code must be exactly 6 digits")
	ErrOtpInvalid            = errors.New("otp code does not match")
	ErrOtpExpired            = errors.New("otp token has expired")
	ErrOtpAttemptsExhausted  = errors.New("otp verification attempts exhausted")
	ErrIdentityPhoneMismatch = errors.New("phone number does not match identity")
	ErrSessionExpired        = errors.New("identity session has expired")
	ErrNoIdentitySession     = errors.New("no active identity session")
	ErrNoProposals           = errors.New("no proposal identifiers supplied")
	ErrDirectoryUnavailable  = errors.New("company directory could not be fetched")
	ErrNoQuoteSelected       = errors.New("no quote selected for purchase")
	ErrNoPremiumSelected     = errors.New("no installment premium selected")
	ErrComplianceNotAccepted = errors.New("compliance terms must be accepted")
	ErrMissingChallenge      = errors.New("payment gateway returned no 3-D Secure challenge")
	ErrPaymentDeclined       = errors.New("payment was declined")
	ErrPaymentCancelled      = errors.New("payment challenge was cancelled")
)

// PhoneNumber carries a subscriber number together with its country code.
type PhoneNumber struct {
	Number      string `json:"number"`
	CountryCode string `json:"countryCode"`
}

// LoginRequest is the payload that opens an OTP challenge.
// Either IdentityNumber or TaxNumber must be supplied.
type LoginRequest struct {
	IdentityNumber string      `json:"identityNumber,omitempty"`
	TaxNumber      string      `json:"taxNumber,omitempty"`
	BirthDate      string      `json:"birthDate,omitempty"`
	PhoneNumber    PhoneNumber `json:"phoneNumber"`
	AgentID        string      `json:"agentId"`
}

// Validate checks the login request for required fields.
func (r *LoginRequest) Validate() error {
	if r.IdentityNumber == "" && r.TaxNumber == "" {
		return ErrEmptyIdentityNumber
	}
	if r.PhoneNumber.Number == "" {
		return ErrEmptyPhoneNumber
	}
	if r.AgentID == "" {
		return ErrEmptyAgentID
	}
	return nil
}

// LoginResult is returned when an OTP challenge has been opened.
type LoginResult struct {
	Token      string `json:"token"`
	CustomerID string `json:"customerId,omitempty"`
}

// VerifyRequest submits an OTP code against a previously issued token.
type VerifyRequest struct {
	Token string `json:"token"`
	Code  string `json:"code"`
}

// Validate checks the verify request for a well-formed code.
func (r *VerifyRequest) Validate() error {
	if len(r.Code) != OtpCodeLength {
		return ErrInvalidOtpCode
	}
	for _, c := range r.Code {
		if c < '0' || c > '9' {
			return ErrInvalidOtpCode
		}
	}
	return nil
}

// VerifyResult is returned on successful OTP verification.
type VerifyResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	CustomerID   string `json:"customerId,omitempty"`
}

// AuthSession is the persisted authenticated-session descriptor shared by the
// wizard steps downstream of the identity gate.
type AuthSession struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	CustomerID   string    `json:"customer_id"`
	FullName     string    `json:"full_name,omitempty"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusPending indicates a long-running operation is still in flight.
	APIStatusPending APIStatus = "pending"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{response: APIResponse{}}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// Pending creates a pending API response with optional result data.
func Pending(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusPending).
		WithResult(result).
		Build()
}
