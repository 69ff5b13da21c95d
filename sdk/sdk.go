// Package sdk is the public entry point of the clickstream SDK. A Client
// wires the default SQLite store, HTTP transport and host device source
// around a provider handle.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"clickstream/internal/clock"
	"clickstream/internal/config"
	"clickstream/internal/database"
	"clickstream/internal/device"
	"clickstream/internal/events"
	"clickstream/internal/lifecycle"
	"clickstream/internal/logging"
	"clickstream/internal/metrics"
	"clickstream/internal/provider"
	"clickstream/internal/runloop"
	"clickstream/internal/screen"
	"clickstream/internal/storage"
	"clickstream/internal/transport"
)

// Re-export core types
type (
	Config    = config.Config
	Options   = config.Options
	SendMode  = config.SendMode
	Provider  = provider.Provider
	State     = provider.State
	Event     = events.Event
	Attribute = events.Attribute
	Item      = events.Item
)

// Attributes is an ordered attribute list.
type Attributes = events.Attributes

// Re-export collaborator contracts
type (
	Store        = storage.Store
	Transport    = transport.Transport
	Request      = transport.Request
	DeviceSource = device.Source
	Registry     = screen.Registry
	Page         = screen.Page
	PageStack    = screen.Stack
	Lifecycle    = lifecycle.Source
	Listener     = lifecycle.Listener
	LifecycleHub = lifecycle.Hub
)

// Send modes
const (
	Immediate = config.Immediate
	Batch     = config.Batch
)

// ErrAlreadyInitialized is returned, together with the existing handle,
// when a Client is initialized twice.
var ErrAlreadyInitialized = errors.New("clickstream already initialized")

// LoadConfig reads defaults, the optional file at path and CLICKSTREAM_*
// environment variables.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Ptr returns a pointer to v, for building Options literals.
func Ptr[T any](v T) *T {
	return config.Ptr(v)
}

func NewPageStack(pages ...Page) *PageStack {
	return screen.NewStack(pages...)
}

func NewLifecycleHub() *LifecycleHub {
	return lifecycle.NewHub()
}

type settings struct {
	deps       provider.Deps
	registerer prometheus.Registerer
}

// Option customizes Init.
type Option func(*settings)

// WithStore replaces the SQLite store at Config.StoragePath.
func WithStore(store Store) Option {
	return func(s *settings) { s.deps.Store = store }
}

// WithTransport replaces the HTTP transport.
func WithTransport(t Transport) Option {
	return func(s *settings) { s.deps.Transport = t }
}

// WithDevice replaces the host device source.
func WithDevice(src DeviceSource) Option {
	return func(s *settings) { s.deps.Device = src }
}

// WithScreens sets the page registry screen attributes are read from.
func WithScreens(r Registry) Option {
	return func(s *settings) { s.deps.Screens = r }
}

// WithLifecycle registers the provider with a host lifecycle source.
func WithLifecycle(src Lifecycle) Option {
	return func(s *settings) { s.deps.Lifecycle = src }
}

// WithRegisterer registers the delivery metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *settings) { s.registerer = reg }
}

// WithLogger replaces the logger built from the configuration.
func WithLogger(logger *logging.Logger) Option {
	return func(s *settings) { s.deps.Logger = logger }
}

// WithClock and WithLoop are meant for tests.
func WithClock(clk clock.Clock) Option {
	return func(s *settings) { s.deps.Clock = clk }
}

func WithLoop(loop runloop.Loop) Option {
	return func(s *settings) { s.deps.Loop = loop }
}

// Client owns one provider and the resources opened for it.
type Client struct {
	mu       sync.Mutex
	provider *provider.Provider
	closers  []func() error
}

// Init creates the provider. A second call returns the existing handle
// with ErrAlreadyInitialized.
func (c *Client) Init(cfg *Config, opts ...Option) (*Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.provider != nil {
		return c.provider, ErrAlreadyInitialized
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}

	if s.deps.Logger == nil {
		logger := logging.NewLogger(logging.FromConfig(cfg))
		s.deps.Logger = logger
		c.closers = append(c.closers, logger.Close)
	}
	if s.deps.Store == nil {
		dbManager := database.NewDBManager(database.Config{
			Path:      cfg.StoragePath,
			EnableWAL: true,
			Logger:    s.deps.Logger.Logger,
		})
		db, err := dbManager.Connect()
		if err != nil {
			c.closeAll()
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		c.closers = append(c.closers, dbManager.Close)
		store, err := storage.NewSQLiteStore(db)
		if err != nil {
			c.closeAll()
			return nil, err
		}
		s.deps.Store = store
	}
	if s.deps.Transport == nil {
		s.deps.Transport = transport.NewHTTPTransport(nil, s.deps.Logger.Logger)
	}
	if s.deps.Device == nil {
		s.deps.Device = device.Host(cfg.AppID, "")
	}
	if s.registerer != nil {
		s.deps.Metrics = metrics.NewDelivery(s.registerer)
	}

	p, err := provider.New(cfg, s.deps)
	if err != nil {
		c.closeAll()
		return nil, err
	}
	c.provider = p
	return p, nil
}

// Provider returns the handle, or nil before Init.
func (c *Client) Provider() *Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider
}

// Shutdown stops the provider and releases the store and log file. The
// client can be initialized again afterwards.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.provider == nil {
		return nil
	}

	err := c.provider.Shutdown(ctx)
	c.provider = nil
	return errors.Join(err, c.closeAll())
}

func (c *Client) closeAll() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
