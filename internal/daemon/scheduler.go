package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// jobName is the single logical registration this scheduler manages.
const jobName = "daily_usage_report"

// RecurringScheduler registers the daily report firing with a cron runner.
// There is at most one active registration: ScheduleOrUpdate replaces any
// prior one, Cancel removes it. The cron runner evaluates wall-clock local
// time, so "daily at hh:mm" stays correct across DST transitions where a
// fixed 24-hour period would drift.
type RecurringScheduler struct {
	mu         sync.Mutex
	cron       *cron.Cron
	entryID    cron.EntryID
	registered bool
	hour       int
	minute     int

	run    func()
	clock  func() time.Time
	logger *zap.Logger
}

// NewRecurringScheduler creates a scheduler that invokes run on each firing.
func NewRecurringScheduler(run func(), logger *zap.Logger) *RecurringScheduler {
	return &RecurringScheduler{
		cron:   cron.New(cron.WithLocation(time.Local)),
		run:    run,
		clock:  time.Now,
		logger: logger,
	}
}

// Start begins evaluating the registered schedule.
func (s *RecurringScheduler) Start() {
	s.cron.Start()
}

// Stop stops the cron runner. A firing already in progress runs to
// completion; no future firing starts.
func (s *RecurringScheduler) Stop() {
	s.cron.Stop()
}

// ScheduleOrUpdate registers the daily firing at hour:minute local time,
// replacing any existing registration. Idempotent: calling twice leaves
// exactly one active registration reflecting the latest call.
func (s *RecurringScheduler) ScheduleOrUpdate(hour, minute int) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("invalid hour: %d", hour)
	}
	if minute < 0 || minute > 59 {
		return fmt.Errorf("invalid minute: %d", minute)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registered {
		s.cron.Remove(s.entryID)
		s.registered = false
	}

	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	entryID, err := s.cron.AddFunc(spec, s.run)
	if err != nil {
		return fmt.Errorf("register %s: %w", jobName, err)
	}

	s.entryID = entryID
	s.registered = true
	s.hour = hour
	s.minute = minute

	s.logger.Info("daily report scheduled",
		zap.String("job", jobName),
		zap.Int("hour", hour),
		zap.Int("minute", minute),
		zap.Duration("initial_delay", NextFireDelay(s.clock(), hour, minute)))

	return nil
}

// Cancel removes the registration. Safe to call when nothing is registered.
func (s *RecurringScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registered {
		return
	}
	s.cron.Remove(s.entryID)
	s.registered = false
	s.logger.Info("daily report schedule canceled", zap.String("job", jobName))
}

// ScheduledTime returns the registered time and whether one is registered.
func (s *RecurringScheduler) ScheduledTime() (hour, minute int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hour, s.minute, s.registered
}

// entryCount reports active cron registrations (tests).
func (s *RecurringScheduler) entryCount() int {
	return len(s.cron.Entries())
}

// NextFireDelay computes the delay from now to the next occurrence of
// hour:minute:00.000 local time. If that time today is already past or equal
// to now, the target is the same time tomorrow. Always derived from the
// passed-in clock value, never cached.
func NextFireDelay(now time.Time, hour, minute int) time.Duration {
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target.Sub(now)
}
