package jobs

import (
	"log/slog"
	"sync"
	"time"

	"clickstream/internal/clock"
	"clickstream/internal/runloop"
)

// Job is a unit of scheduled work. Returned errors are logged.
type Job func() error

// Scheduler runs named jobs on the run loop, either repeatedly or once
// after a delay. Timers come from the injected clock.
type Scheduler struct {
	clock  clock.Clock
	loop   runloop.Loop
	logger *slog.Logger

	mu      sync.Mutex
	enabled bool
	entries map[string]*entry
}

type entry struct {
	timer    *clock.Timer
	interval time.Duration
	job      Job
}

func NewScheduler(clk clock.Clock, loop runloop.Loop, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		clock:   clk,
		loop:    loop,
		logger:  logger,
		enabled: true,
		entries: make(map[string]*entry),
	}
}

// Every runs job each interval until cancelled. An existing job with
// the same name is replaced.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) {
	if interval <= 0 {
		s.logger.Error("Refusing to schedule job with non-positive interval",
			slog.String("job", name), slog.Duration("interval", interval))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return
	}
	s.cancelLocked(name)

	e := &entry{interval: interval, job: job}
	s.entries[name] = e
	s.armLocked(name, e, interval)
	s.logger.Debug("Scheduled repeating job", slog.String("job", name), slog.Duration("interval", interval))
}

// After runs job once after delay. While a one-shot job with the same
// name is pending, further calls are ignored so constant traffic cannot
// postpone it forever.
func (s *Scheduler) After(name string, delay time.Duration, job Job) {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return
	}
	if _, pending := s.entries[name]; pending {
		s.mu.Unlock()
		s.logger.Debug("Job already pending", slog.String("job", name))
		return
	}
	if delay <= 0 {
		s.mu.Unlock()
		s.loop.Do(func() { s.executeJobSafely(name, job) })
		return
	}

	e := &entry{job: job}
	s.entries[name] = e
	s.armLocked(name, e, delay)
	s.mu.Unlock()
	s.logger.Debug("Scheduled job", slog.String("job", name), slog.Duration("delay", delay))
}

// Cancel stops the named job if it is scheduled.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(name)
}

// IsScheduled reports whether the named job is pending.
func (s *Scheduler) IsScheduled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[name]
	return ok
}

// Stop cancels every job. Later Every and After calls are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	for name := range s.entries {
		s.cancelLocked(name)
	}
	s.logger.Debug("Scheduler stopped")
}

func (s *Scheduler) armLocked(name string, e *entry, delay time.Duration) {
	e.timer = s.clock.AfterFunc(delay, func() {
		s.loop.Do(func() { s.fire(name, e) })
	})
}

func (s *Scheduler) cancelLocked(name string) {
	if e, ok := s.entries[name]; ok {
		e.timer.Stop()
		delete(s.entries, name)
	}
}

func (s *Scheduler) fire(name string, e *entry) {
	s.mu.Lock()
	if s.entries[name] != e {
		// Cancelled or replaced after the timer went off.
		s.mu.Unlock()
		return
	}
	if e.interval > 0 {
		s.armLocked(name, e, e.interval)
	} else {
		delete(s.entries, name)
	}
	s.mu.Unlock()

	s.executeJobSafely(name, e.job)
}

// executeJobSafely runs a job, recovering from panics.
func (s *Scheduler) executeJobSafely(jobName string, jobFunc Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in scheduled job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}
