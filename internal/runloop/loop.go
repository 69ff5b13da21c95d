// Package runloop provides the single logical timeline all SDK state is
// mutated on. Work posted with Do runs one closure at a time; blocking I/O
// runs through Go and posts its completion back with Do.
package runloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrStopped is returned when work is posted to a stopped loop.
var ErrStopped = errors.New("run loop stopped")

// Loop serializes state changes.
type Loop interface {
	// Do queues fn on the timeline. It never blocks.
	Do(fn func())

	// Go runs fn off the timeline. fn must not touch loop owned state
	// except through Do.
	Go(fn func())
}

// Call runs fn on the loop and waits for it to finish. It must not be
// called from the loop itself.
func Call(ctx context.Context, l Loop, fn func()) error {
	done := make(chan struct{})
	l.Do(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serial runs posted work on one goroutine.
type Serial struct {
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	started bool
	closed  bool
	done    chan struct{}

	background sync.WaitGroup
}

// NewSerial creates a loop. Start must be called before posted work runs.
func NewSerial(logger *slog.Logger) *Serial {
	s := &Serial{
		logger: logger,
		done:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start launches the loop goroutine. Calling it twice is a no-op.
func (s *Serial) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	go s.run()
}

// Do queues fn. Work posted after Stop is dropped.
func (s *Serial) Do(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Debug("Dropping work posted to a stopped run loop")
		return
	}
	s.queue = append(s.queue, fn)
	s.cond.Signal()
}

// Go runs fn on its own goroutine and tracks it for Stop.
func (s *Serial) Go(fn func()) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer s.recoverPanic("background")
		fn()
	}()
}

// Stop waits for background work to post its results, drains the queue
// and stops the loop goroutine.
func (s *Serial) Stop(ctx context.Context) error {
	background := make(chan struct{})
	go func() {
		s.background.Wait()
		close(background)
	}()
	select {
	case <-background:
	case <-ctx.Done():
		s.logger.Warn("Run loop stopped with background work still pending")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.cond.Signal()
	s.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Serial) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.execute(fn)
	}
}

func (s *Serial) execute(fn func()) {
	defer s.recoverPanic("loop")
	fn()
}

func (s *Serial) recoverPanic(where string) {
	if r := recover(); r != nil {
		s.logger.Error("Panic recovered in run loop",
			slog.String("where", where),
			slog.Any("panic", r))
	}
}

// Inline runs posted work on the calling goroutine. Work posted while
// other work is running is queued behind it, so ordering matches Serial.
// Go runs fn synchronously. It is not safe for concurrent use and is
// meant for deterministic tests and single threaded hosts.
type Inline struct {
	queue   []func()
	running bool
}

// NewInline creates an inline loop.
func NewInline() *Inline {
	return &Inline{}
}

func (l *Inline) Do(fn func()) {
	l.queue = append(l.queue, fn)
	if l.running {
		return
	}
	l.running = true
	defer func() { l.running = false }()
	for len(l.queue) > 0 {
		next := l.queue[0]
		l.queue = l.queue[1:]
		next()
	}
}

func (l *Inline) Go(fn func()) {
	fn()
}
