// Package provider ties identity, device, session and delivery together.
// It validates caller events, enriches them into canonical records and
// drives the lifecycle trackers. All state lives on the run loop.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"clickstream/internal/clock"
	"clickstream/internal/config"
	"clickstream/internal/device"
	"clickstream/internal/events"
	"clickstream/internal/identity"
	"clickstream/internal/jobs"
	"clickstream/internal/lifecycle"
	"clickstream/internal/logging"
	"clickstream/internal/metrics"
	"clickstream/internal/recorder"
	"clickstream/internal/runloop"
	"clickstream/internal/screen"
	"clickstream/internal/session"
	"clickstream/internal/storage"
	"clickstream/internal/transport"
	"clickstream/internal/validator"
)

var (
	ErrMissingStore     = errors.New("provider requires a store")
	ErrMissingTransport = errors.New("provider requires a transport")
	ErrMissingDevice    = errors.New("provider requires a device source")
)

// Deps are the collaborators of a Provider. Store, Transport and Device
// are required; the rest have defaults.
type Deps struct {
	Store     storage.Store
	Transport transport.Transport
	Device    device.Source
	Screens   screen.Registry
	Lifecycle lifecycle.Source
	Clock     clock.Clock
	// Loop is owned by the caller when set. Otherwise the provider runs
	// a Serial loop and stops it on Shutdown.
	Loop       runloop.Loop
	Metrics    *metrics.Delivery
	Logger     *logging.Logger
	NewEventID func() string
	RetryDelay func() time.Duration
}

// Provider is the SDK handle.
type Provider struct {
	store      storage.Store
	transport  transport.Transport
	screens    screen.Registry
	clock      clock.Clock
	loop       runloop.Loop
	ownedLoop  *runloop.Serial
	scheduler  *jobs.Scheduler
	metrics    *metrics.Delivery
	logging    *logging.Logger
	logger     *slog.Logger
	newEventID func() string
	retryDelay func() time.Duration
	unregister func()
	shutdown   sync.Once

	cfg      *config.Config
	identity *identity.Identity
	device   *device.Context
	session  *session.Session
	recorder *recorder.Recorder

	isFirstTime    bool
	lastForeground time.Time
	deferredShows  int
}

// State is a snapshot of the provider for inspection.
type State struct {
	Config     *config.Config
	Session    session.Info
	User       identity.Info
	Device     device.Info
	SequenceID int64
}

// New validates cfg, loads the persisted identity, device and session
// state and starts delivery. Failing to read device metadata is fatal.
func New(cfg *config.Config, d Deps) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	switch {
	case d.Store == nil:
		return nil, ErrMissingStore
	case d.Transport == nil:
		return nil, ErrMissingTransport
	case d.Device == nil:
		return nil, ErrMissingDevice
	}

	if d.Logger == nil {
		d.Logger = logging.NewLogger(logging.Config{Quiet: true})
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewDelivery(nil)
	}
	if d.NewEventID == nil {
		d.NewEventID = uuid.NewString
	}
	if d.RetryDelay == nil {
		d.RetryDelay = recorder.DefaultRetryDelay
	}
	d.Logger.SetDebug(cfg.Debug)

	p := &Provider{
		store:       d.Store,
		transport:   d.Transport,
		screens:     d.Screens,
		clock:       d.Clock,
		loop:        d.Loop,
		metrics:     d.Metrics,
		logging:     d.Logger,
		logger:      d.Logger.Logger,
		newEventID:  d.NewEventID,
		retryDelay:  d.RetryDelay,
		cfg:         cfg.Clone(),
		isFirstTime: true,
	}
	if p.loop == nil {
		p.ownedLoop = runloop.NewSerial(p.logger)
		p.ownedLoop.Start()
		p.loop = p.ownedLoop
	}
	p.scheduler = jobs.NewScheduler(p.clock, p.loop, p.logger)

	p.identity = identity.Load(p.store, p.clock, p.logger)
	dev, err := device.Load(p.store, d.Device, p.clock, p.loop, p.logger)
	if err != nil {
		p.stopOwnedLoop(context.Background())
		return nil, fmt.Errorf("failed to initialize device context: %w", err)
	}
	p.device = dev
	p.start()

	if d.Lifecycle != nil {
		p.unregister = d.Lifecycle.Register(p)
	}

	p.logger.Info("Initialized clickstream provider",
		slog.String("app_id", p.cfg.AppID),
		slog.String("endpoint", p.cfg.Endpoint),
		slog.String("send_mode", string(p.cfg.SendMode)))
	return p, nil
}

// start builds the session and recorder from persisted state.
func (p *Provider) start() {
	p.session = session.New(p.store, p.clock, p.logger, p.cfg.SessionTimeout(), p.identity.UniqueID)
	p.recorder = recorder.New(recorder.Deps{
		Config:     p.cfg,
		Store:      p.store,
		Transport:  p.transport,
		Clock:      p.clock,
		Loop:       p.loop,
		Scheduler:  p.scheduler,
		Metrics:    p.metrics,
		Logger:     p.logger,
		RetryDelay: p.retryDelay,
	})
	p.recorder.Start()
}

// Configure merges opts into the current configuration and restarts
// delivery with it. Invalid results are rejected and the current
// configuration stays in effect. It must not be called from the loop.
func (p *Provider) Configure(ctx context.Context, opts config.Options) error {
	if opts.Debug != nil {
		p.logging.SetDebug(*opts.Debug)
	}

	var applyErr error
	err := runloop.Call(ctx, p.loop, func() {
		next, err := p.cfg.Apply(opts)
		if err != nil {
			p.logger.Error("Failed to apply configuration", slog.Any("error", err))
			applyErr = err
			return
		}
		p.recorder.Stop()
		p.cfg = next
		p.start()
		p.logger.Debug("Applied configuration", slog.String("send_mode", string(next.SendMode)))
	})
	if err != nil {
		return err
	}
	return applyErr
}

// Record validates ev and queues it for delivery.
func (p *Provider) Record(ev events.Event) {
	p.loop.Do(func() { p.record(ev) })
}

// SetUserID sets the user id. A nil id resets the identity to a fresh
// anonymous one.
func (p *Provider) SetUserID(userID *string) {
	p.loop.Do(func() {
		result := p.identity.SetUserID(userID)
		if !result.Err.OK() {
			p.reportError(result.Err)
		}
		if result.Changed {
			p.emit(events.Event{Name: events.TypeProfileSet})
		}
	})
}

// SetUserAttributes updates user attributes. A nil value deletes the
// attribute.
func (p *Provider) SetUserAttributes(attrs events.Attributes) {
	p.loop.Do(func() {
		result := p.identity.SetAttributes(attrs)
		if result.Changed {
			p.emit(events.Event{Name: events.TypeProfileSet})
		}
		if !result.Err.OK() {
			p.reportError(result.Err)
		}
	})
}

// Flush resends the outbox and sends the batch buffer.
func (p *Provider) Flush() {
	p.loop.Do(func() { p.recorder.Flush() })
}

// State returns a snapshot taken on the loop. It must not be called from
// the loop.
func (p *Provider) State(ctx context.Context) (State, error) {
	var state State
	err := runloop.Call(ctx, p.loop, func() {
		state = State{
			Config:     p.cfg.Clone(),
			Session:    p.session.Info(),
			User:       p.identity.Info(),
			Device:     p.device.Info(),
			SequenceID: p.recorder.SequenceID(),
		}
	})
	return state, err
}

// Shutdown stops timers and lifecycle tracking. Requests already in
// flight complete before an owned loop stops. Later calls are no-ops.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	p.shutdown.Do(func() {
		if p.unregister != nil {
			p.unregister()
		}
		if callErr := runloop.Call(ctx, p.loop, func() {
			p.recorder.Stop()
			p.scheduler.Stop()
		}); callErr != nil {
			err = fmt.Errorf("failed to stop provider: %w", callErr)
			return
		}
		err = p.stopOwnedLoop(ctx)
		p.logger.Info("Clickstream provider stopped")
	})
	return err
}

func (p *Provider) stopOwnedLoop(ctx context.Context) error {
	if p.ownedLoop == nil {
		return nil
	}
	if err := p.ownedLoop.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop run loop: %w", err)
	}
	return nil
}

// record applies the validation rules: invalid names drop the event,
// invalid attributes and items are dropped individually and the last
// error seen is reported after the event.
func (p *Provider) record(ev events.Event) {
	if check := validator.ValidateEventName(ev.Name); !check.OK() {
		p.reportError(check)
		return
	}

	var lastErr validator.Error
	attrs := make(events.Attributes, 0, len(ev.Attributes))
	for _, attr := range ev.Attributes {
		if attr.Value == nil {
			continue
		}
		if _, exists := attrs.Get(attr.Name); !exists && len(attrs) >= events.MaxCustomAttributes {
			lastErr = validator.AttributeLimitReached()
			break
		}
		if check := validator.ValidateAttribute(attr.Name, attr.Value); !check.OK() {
			lastErr = check
			continue
		}
		attrs.Set(attr.Name, attr.Value)
	}

	var items []events.Item
	for _, item := range ev.Items {
		if len(items) >= events.MaxItems {
			lastErr = validator.ItemLimitReached()
			break
		}
		if check := validator.ValidateItem(item); !check.OK() {
			lastErr = check
			continue
		}
		items = append(items, item)
	}

	p.emit(events.Event{Name: ev.Name, Attributes: attrs, Items: items})
	if !lastErr.OK() {
		p.reportError(lastErr)
	}
}

func (p *Provider) reportError(e validator.Error) {
	p.logger.Error("Failed to validate event",
		slog.Int("code", int(e.Code)),
		slog.String("message", e.Message))
	p.emit(e.Event())
}

// emit enriches an already validated event and hands it to the recorder.
func (p *Provider) emit(ev events.Event) {
	record := p.enrich(ev)
	p.logger.Debug("Recording event",
		slog.String("event_type", record.EventType),
		slog.String("event_id", record.EventID))
	p.recorder.Record(record)
}
