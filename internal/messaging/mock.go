package messaging

import (
	"context"
	"fmt"
	"sync"
)

// MockService records sent messages for tests.
type MockService struct {
	mu       sync.Mutex
	Messages []MockMessage
	SendErr  error
}

// MockMessage is a single recorded delivery.
type MockMessage struct {
	To   string
	Body string
}

// NewMockService creates an empty mock service.
func NewMockService() *MockService {
	return &MockService{}
}

// ValidateAndCanonicalizeRecipient applies the shared digit-only rule.
func (s *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number %q", recipient)
	}
	return canonical, nil
}

// SendMessage records the message, or returns the configured error.
func (s *MockService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.Messages = append(s.Messages, MockMessage{To: to, Body: body})
	return nil
}

// Sent returns a copy of the recorded messages.
func (s *MockService) Sent() []MockMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MockMessage, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// Stop is a no-op for the mock.
func (s *MockService) Stop() error {
	return nil
}
