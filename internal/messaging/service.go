// Package messaging provides pluggable delivery channels for one-time
// passcodes: Twilio SMS and WhatsApp.
package messaging

import (
	"context"
	"errors"
	"regexp"
)

// Error variables for messaging services
var (
	// ErrServiceStopped is returned when a send is attempted after Stop.
	ErrServiceStopped = errors.New("messaging service stopped")
)

// phoneNumberRegex matches every non-digit character for canonicalization.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable OTP delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// phone number. Each service applies its own rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage delivers a message body to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Stop stops the service and releases its resources.
	Stop() error
}
