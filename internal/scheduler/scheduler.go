// Package scheduler provides cron-based housekeeping for QuoteFlow.
//
// It sweeps expired OTP challenges and stale pending-payment descriptors out
// of the store so abandoned sessions do not accumulate.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/polisbay/quoteflow/internal/models"
	"github.com/polisbay/quoteflow/internal/store"
)

// Housekeeping defaults.
const (
	// DefaultSweepSpec runs the sweep every five minutes.
	DefaultSweepSpec = "*/5 * * * *"
	// DefaultPendingPaymentTTL is how long an unconsumed pending-payment
	// descriptor may linger before the sweep removes it.
	DefaultPendingPaymentTTL = 30 * time.Minute
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// ScheduleSweep registers the store housekeeping job: expired OTP challenges
// are purged, and pending-payment descriptors older than the TTL are removed.
func (s *Scheduler) ScheduleSweep(st store.Store, spec string, pendingTTL time.Duration) error {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	if pendingTTL == 0 {
		pendingTTL = DefaultPendingPaymentTTL
	}
	return s.AddJob(spec, func() {
		now := time.Now()
		expired, err := st.PurgeExpiredIdentitySessions(now)
		if err != nil {
			slog.Error("failed to purge expired otp challenges", "error", err)
		}
		stale, err := st.PurgeStaleKeys(models.KeyPendingPayment, now.Add(-pendingTTL))
		if err != nil {
			slog.Error("failed to purge stale pending payments", "error", err)
		}
		if expired > 0 || stale > 0 {
			slog.Info("store sweep completed", "expired_otp", expired, "stale_pending", stale)
		}
	})
}
