package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"clickstream/internal/clock"
	"clickstream/internal/jobs"
	"clickstream/internal/metrics"
	"clickstream/internal/runloop"
	"clickstream/internal/transport"
)

const (
	errMissingParam  = "Missing query parameter"
	errInvalidParam  = "Invalid query parameter"
	errHashMismatch  = "Hash code does not match body"
	errInvalidBody   = "Invalid request body"
	errStoreFailed   = "Failed to store events"
	cleanupJobName   = "cleanup-received-events"
	statusOK         = "ok"
	statusDegraded   = "degraded"
	statusLabelOK    = "200"
	statusLabelBad   = "400"
	statusLabelError = "500"
)

// Options configures a Server.
type Options struct {
	DB            *gorm.DB
	Clock         clock.Clock
	Logger        *slog.Logger
	Registry      *prometheus.Registry
	RetentionDays int
}

// Server serves the collect endpoint and runs the retention job.
type Server struct {
	db       *gorm.DB
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Collector
	registry *prometheus.Registry

	app       *fiber.App
	loop      *runloop.Serial
	scheduler *jobs.Scheduler
	cleanup   *CleanupJob
}

// New migrates the collector tables and builds the HTTP app.
func New(opts Options) (*Server, error) {
	if opts.DB == nil {
		return nil, errors.New("collector requires a database")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if err := opts.DB.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("failed to migrate collector tables: %w", err)
	}

	s := &Server{
		db:       opts.DB,
		clock:    opts.Clock,
		logger:   opts.Logger,
		metrics:  metrics.NewCollector(opts.Registry),
		registry: opts.Registry,
		loop:     runloop.NewSerial(opts.Logger),
	}
	s.scheduler = jobs.NewScheduler(opts.Clock, s.loop, opts.Logger)
	s.cleanup = NewCleanupJob(opts.DB, opts.Clock, opts.Logger, s.metrics, opts.RetentionDays)

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             8 * 1024 * 1024,
	})
	s.mountRoutes()
	return s, nil
}

func (s *Server) mountRoutes() {
	s.app.Post("/collect", s.collectHandler)
	s.app.Get("/health", s.healthHandler)
	s.app.Get("/stats", s.statsHandler)
	s.app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(s.registry)))
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Cleanup returns the retention job.
func (s *Server) Cleanup() *CleanupJob {
	return s.cleanup
}

// StartAsync starts the retention job and serves on addr in the
// background.
func (s *Server) StartAsync(addr string) error {
	s.loop.Start()
	s.scheduler.Every(cleanupJobName, s.cleanup.Interval(), s.cleanup.Run)
	s.loop.Do(func() {
		if err := s.cleanup.Run(); err != nil {
			s.logger.Error("Initial cleanup failed", slog.Any("error", err))
		}
	})

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Collector listening", slog.String("addr", addr))
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start collector: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Shutdown stops the server and the retention job.
func (s *Server) Shutdown(ctx context.Context) error {
	s.scheduler.Stop()
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return s.loop.Stop(ctx)
}

func (s *Server) collectHandler(c *fiber.Ctx) error {
	params := map[string]string{}
	for _, name := range []string{transport.ParamPlatform, transport.ParamAppID, transport.ParamSequenceID, transport.ParamHashCode} {
		value := c.Query(name)
		if value == "" {
			s.metrics.RequestsTotal.WithLabelValues(statusLabelBad).Inc()
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": errMissingParam,
				"param": name,
			})
		}
		params[name] = value
	}

	sequenceID, err := strconv.ParseInt(params[transport.ParamSequenceID], 10, 64)
	if err != nil || sequenceID < 1 {
		s.metrics.RequestsTotal.WithLabelValues(statusLabelBad).Inc()
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": errInvalidParam,
			"param": transport.ParamSequenceID,
		})
	}

	body := string(c.Body())
	if transport.HashCode(body) != params[transport.ParamHashCode] {
		s.logger.Debug("Rejected request with mismatched hash", slog.Int64("sequence_id", sequenceID))
		s.metrics.RequestsTotal.WithLabelValues(statusLabelBad).Inc()
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errHashMismatch})
	}

	var records []json.RawMessage
	if err := json.Unmarshal([]byte(body), &records); err != nil {
		s.logger.Debug("Failed to decode body", slog.Any("error", err))
		s.metrics.RequestsTotal.WithLabelValues(statusLabelBad).Inc()
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidBody})
	}

	result, err := SaveBundle(s.db, s.logger, Bundle{
		AppID:      params[transport.ParamAppID],
		Platform:   params[transport.ParamPlatform],
		SequenceID: sequenceID,
		Records:    records,
	}, s.clock.Now())
	if errors.Is(err, ErrInvalidRecord) {
		s.logger.Debug("Rejected invalid record", slog.Any("error", err))
		s.metrics.RequestsTotal.WithLabelValues(statusLabelBad).Inc()
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidBody})
	}
	if err != nil {
		s.metrics.RequestsTotal.WithLabelValues(statusLabelError).Inc()
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": errStoreFailed})
	}

	for eventType, n := range result.Types {
		s.metrics.EventsReceived.WithLabelValues(eventType).Add(float64(n))
	}
	s.metrics.Duplicates.Add(float64(result.Duplicates))
	s.metrics.RequestsTotal.WithLabelValues(statusLabelOK).Inc()

	s.logger.Debug("Collected bundle",
		slog.String("app_id", params[transport.ParamAppID]),
		slog.Int64("sequence_id", sequenceID),
		slog.Int("stored", result.Stored),
		slog.Int("duplicates", result.Duplicates))

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"stored":     result.Stored,
		"duplicates": result.Duplicates,
	})
}

// HealthStatus is the health check response.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	DBStatus  string    `json:"db_status"`
}

func (s *Server) healthHandler(c *fiber.Ctx) error {
	dbStatus := statusOK
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "error"
		s.logger.Error("Database connection error", slog.Any("error", err))
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "error"
		s.logger.Error("Database ping failed", slog.Any("error", err))
	}

	health := HealthStatus{
		Status:    statusOK,
		Timestamp: s.clock.Now(),
		DBStatus:  dbStatus,
	}
	if dbStatus != statusOK {
		health.Status = statusDegraded
	}
	return c.JSON(health)
}

// Stats is the stats response.
type Stats struct {
	Total  int64       `json:"total"`
	Events []TypeCount `json:"events"`
}

func (s *Server) statsHandler(c *fiber.Ctx) error {
	counts, err := CountByType(s.db, c.Query("app_id"))
	if err != nil {
		s.logger.Error("Failed to load stats", slog.Any("error", err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load stats"})
	}

	stats := Stats{Events: counts}
	if stats.Events == nil {
		stats.Events = []TypeCount{}
	}
	for _, tc := range counts {
		stats.Total += tc.Count
	}
	return c.JSON(stats)
}
