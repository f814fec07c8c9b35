package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/polisbay/quoteflow/internal/identity"
	"github.com/polisbay/quoteflow/internal/payment"
	"github.com/polisbay/quoteflow/internal/poller"
	"github.com/polisbay/quoteflow/internal/wizard"
)

// SessionHeader carries the wizard session identifier on every request.
const SessionHeader = "X-Session-ID"

// wizardSession bundles the per-session flow components. At most one payment
// attempt and one quote poll are active per session.
type wizardSession struct {
	id         string
	controller *wizard.Controller
	gate       *identity.Gate
	flow       *payment.Flow

	mu         sync.Mutex
	poll       *poller.Poller
	pollCancel context.CancelFunc
	pollDone   bool
	pollResult *poller.Result
	pollErr    error
}

// session resolves the request's wizard session, creating it on first use.
// The session id always goes back out on the response header.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *wizardSession {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		id = r.URL.Query().Get("session")
	}
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		var gateOpts []identity.Option
		if s.countdown != 0 {
			gateOpts = append(gateOpts, identity.WithCountdown(s.countdown))
		}
		sess = &wizardSession{
			id:         id,
			controller: wizard.NewController(),
			gate:       identity.NewGate(id, s.store, s.provider, s.backend, gateOpts...),
			flow:       payment.NewFlow(id, s.store, s.gateway, s.backend),
		}
		s.sessions[id] = sess
	}
	w.Header().Set(SessionHeader, id)
	return sess
}

// lookupSession returns an existing session without creating one.
func (s *Server) lookupSession(id string) (*wizardSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// startPoll launches a poll for the session, cancelling any previous one.
func (sess *wizardSession) startPoll(p *poller.Poller) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.pollCancel != nil {
		sess.pollCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess.poll = p
	sess.pollCancel = cancel
	sess.pollDone = false
	sess.pollResult = nil
	sess.pollErr = nil

	go func() {
		result, err := p.Run(ctx)
		sess.mu.Lock()
		defer sess.mu.Unlock()
		if ctx.Err() != nil {
			// Superseded or torn down; never report state after disposal.
			return
		}
		sess.pollDone = true
		sess.pollResult = result
		sess.pollErr = err
	}()
}

// pollState snapshots the poll for the status endpoint.
func (sess *wizardSession) pollState() (p *poller.Poller, done bool, result *poller.Result, err error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.poll, sess.pollDone, sess.pollResult, sess.pollErr
}

// cancelPoll tears down an in-flight poll, if any.
func (sess *wizardSession) cancelPoll() {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.pollCancel != nil {
		sess.pollCancel()
		sess.pollCancel = nil
	}
}
