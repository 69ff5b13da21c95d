// Package recorder delivers canonical records to the ingestion endpoint,
// either one request per record or in periodic batches, and keeps
// undelivered records in a persisted outbox.
package recorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"clickstream/internal/clock"
	"clickstream/internal/config"
	"clickstream/internal/events"
	"clickstream/internal/jobs"
	"clickstream/internal/metrics"
	"clickstream/internal/runloop"
	"clickstream/internal/storage"
	"clickstream/internal/transport"
)

// Job names registered on the scheduler.
const (
	JobFlushOutbox = "flush-outbox"
	JobFlushBuffer = "flush-buffer"
)

// RetryAge is how old an outbox entry must be before it is resent.
const RetryAge = 60 * time.Second

// Metric mode labels.
const (
	modeImmediate = "immediate"
	modeBatch     = "batch"
	modeRetry     = "retry"
)

// Deps are the collaborators of a Recorder.
type Deps struct {
	Config    *config.Config
	Store     storage.Store
	Transport transport.Transport
	Clock     clock.Clock
	Loop      runloop.Loop
	Scheduler *jobs.Scheduler
	Metrics   *metrics.Delivery
	Logger    *slog.Logger

	// RetryDelay picks the delay before the outbox is flushed after a
	// successful send. Defaults to a whole number of seconds in [5, 10].
	RetryDelay func() time.Duration
}

// Recorder is the delivery engine. Every method must be called on the run
// loop; network calls run off it and post their results back.
type Recorder struct {
	cfg        *config.Config
	target     transport.Target
	store      storage.Store
	transport  transport.Transport
	clock      clock.Clock
	loop       runloop.Loop
	scheduler  *jobs.Scheduler
	metrics    *metrics.Delivery
	logger     *slog.Logger
	retryDelay func() time.Duration

	sequenceID     int64
	flushingOutbox bool
	flushingBuffer bool
	stopped        bool
}

// New creates a recorder, resuming the persisted sequence id.
func New(d Deps) *Recorder {
	if d.RetryDelay == nil {
		d.RetryDelay = DefaultRetryDelay
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewDelivery(nil)
	}

	r := &Recorder{
		cfg:        d.Config,
		target:     transport.TargetFromConfig(d.Config),
		store:      d.Store,
		transport:  d.Transport,
		clock:      d.Clock,
		loop:       d.Loop,
		scheduler:  d.Scheduler,
		metrics:    d.Metrics,
		logger:     d.Logger,
		retryDelay: d.RetryDelay,
	}
	r.sequenceID = r.loadSequenceID()
	r.metrics.SequenceID.Set(float64(r.sequenceID))
	return r
}

// DefaultRetryDelay returns 5 to 10 whole seconds.
func DefaultRetryDelay() time.Duration {
	return time.Duration(5+rand.IntN(6)) * time.Second
}

// Start schedules the periodic batch flush when batch mode is configured.
func (r *Recorder) Start() {
	if !r.cfg.IsBatch() {
		return
	}
	r.scheduler.Every(JobFlushBuffer, r.cfg.BatchInterval(), func() error {
		r.FlushBuffer()
		return nil
	})
}

// Stop cancels the recorder's scheduled jobs. Requests already in flight
// still settle the outbox, but no further requests are started.
func (r *Recorder) Stop() {
	r.stopped = true
	r.scheduler.Cancel(JobFlushBuffer)
	r.scheduler.Cancel(JobFlushOutbox)
}

// SequenceID returns the last sequence id used.
func (r *Recorder) SequenceID() int64 {
	return r.sequenceID
}

// Record delivers ev according to the configured send mode.
func (r *Recorder) Record(ev events.AnalyticsEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("Failed to encode event", slog.String("event_id", ev.EventID), slog.Any("error", err))
		return
	}

	r.logger.Debug("New event",
		slog.String("event_type", ev.EventType),
		slog.String("event_id", ev.EventID))

	if r.cfg.IsBatch() {
		r.metrics.EventsRecorded.WithLabelValues(modeBatch).Inc()
		r.appendToBuffer(ev.EventID, string(payload))
		return
	}
	r.metrics.EventsRecorded.WithLabelValues(modeImmediate).Inc()
	r.sendImmediately(ev.EventID, string(payload))
}

// Flush triggers both the outbox and the batch buffer flush.
func (r *Recorder) Flush() {
	r.FlushOutbox()
	r.FlushBuffer()
}

func (r *Recorder) sendImmediately(eventID, payload string) {
	body := events.BufferPrefix + payload + events.BufferSuffix
	r.send(modeImmediate, body, transport.SingleTimeout, func(err error) {
		if err != nil {
			r.logger.Warn("Failed to send event, keeping it for retry",
				slog.String("event_id", eventID),
				slog.Any("error", err))
			r.addToOutbox(eventID, payload)
			return
		}

		r.logger.Debug("Sent event", slog.String("event_id", eventID))
		if r.stopped {
			return
		}
		r.scheduler.After(JobFlushOutbox, r.retryDelay(), func() error {
			r.FlushOutbox()
			return nil
		})
	})
}

// FlushOutbox resends outbox entries at least RetryAge old, oldest first,
// one request at a time. Delivered entries are removed. A flush started
// while another is running is skipped.
func (r *Recorder) FlushOutbox() {
	if r.stopped {
		return
	}
	if r.flushingOutbox {
		r.logger.Debug("Outbox flush already running")
		return
	}

	entries, err := LoadOutbox(r.store)
	if err != nil {
		r.logger.Error("Failed to load outbox", slog.Any("error", err))
		return
	}

	now := clock.UnixMilli(r.clock)
	var ready []OutboxEntry
	for _, entry := range entries {
		if entry.EventType == "" {
			r.logger.Warn("Dropping unreadable outbox entry", slog.String("event_id", entry.EventID))
			r.removeFromOutbox(entry.EventID)
			continue
		}
		if now-entry.Timestamp < RetryAge.Milliseconds() {
			continue
		}
		ready = append(ready, entry)
	}
	if len(ready) == 0 {
		return
	}

	r.flushingOutbox = true
	r.resend(ready)
}

func (r *Recorder) resend(queue []OutboxEntry) {
	if len(queue) == 0 || r.stopped {
		r.flushingOutbox = false
		return
	}

	entry := queue[0]
	body := events.BufferPrefix + entry.Payload + events.BufferSuffix
	r.send(modeRetry, body, transport.SingleTimeout, func(err error) {
		if err != nil {
			r.logger.Warn("Failed to resend event",
				slog.String("event_id", entry.EventID),
				slog.Any("error", err))
		} else {
			r.logger.Debug("Resent event", slog.String("event_id", entry.EventID))
			r.removeFromOutbox(entry.EventID)
		}
		r.resend(queue[1:])
	})
}

func (r *Recorder) appendToBuffer(eventID, payload string) {
	buf, err := r.store.Get(storage.KeyBufferedEvents)
	if err != nil {
		r.logger.Error("Failed to read batch buffer, sending event immediately",
			slog.String("event_id", eventID),
			slog.Any("error", err))
		r.sendImmediately(eventID, payload)
		return
	}

	var next string
	if buf == "" {
		next = events.BufferPrefix + payload
	} else {
		next = buf + events.BufferDelimiter + payload
	}

	if len(next) >= events.BufferMaxSize {
		r.logger.Info("Batch buffer full, sending event immediately", slog.String("event_id", eventID))
		r.sendImmediately(eventID, payload)
		return
	}

	if err := r.store.Set(storage.KeyBufferedEvents, next); err != nil {
		r.logger.Error("Failed to write batch buffer", slog.String("event_id", eventID), slog.Any("error", err))
		r.sendImmediately(eventID, payload)
		return
	}
	r.metrics.BufferedBytes.Set(float64(len(next)))
}

// FlushBuffer sends the batch buffer as one request. On success the
// records that were sent are removed and records appended meanwhile stay
// buffered. On failure the buffer is kept whole. A flush started while
// another is in flight is skipped.
func (r *Recorder) FlushBuffer() {
	if r.stopped {
		return
	}
	if r.flushingBuffer {
		r.logger.Debug("Batch flush already in flight")
		return
	}

	snapshot, err := LoadBuffer(r.store)
	if err != nil {
		r.logger.Error("Failed to load batch buffer", slog.Any("error", err))
		return
	}
	if snapshot == "" {
		return
	}

	r.flushingBuffer = true
	r.send(modeBatch, snapshot+events.BufferSuffix, transport.BatchTimeout, func(err error) {
		r.flushingBuffer = false
		if err != nil {
			r.logger.Warn("Failed to flush batch buffer", slog.Any("error", err))
			return
		}
		r.logger.Debug("Flushed batch buffer", slog.Int("bytes", len(snapshot)))
		r.trimBuffer(snapshot)
	})
}

func (r *Recorder) trimBuffer(sent string) {
	current, err := LoadBuffer(r.store)
	if err != nil {
		r.logger.Error("Failed to load batch buffer", slog.Any("error", err))
		return
	}
	if !strings.HasPrefix(current, sent) {
		// Replaced while the request was in flight.
		return
	}

	rest := strings.TrimPrefix(current[len(sent):], events.BufferDelimiter)
	if rest == "" {
		if err := r.store.Delete(storage.KeyBufferedEvents); err != nil {
			r.logger.Error("Failed to clear batch buffer", slog.Any("error", err))
		}
		r.metrics.BufferedBytes.Set(0)
		return
	}

	next := events.BufferPrefix + rest
	if err := r.store.Set(storage.KeyBufferedEvents, next); err != nil {
		r.logger.Error("Failed to write batch buffer", slog.Any("error", err))
		return
	}
	r.metrics.BufferedBytes.Set(float64(len(next)))
}

// send assigns and persists the next sequence id, then posts body off the
// loop. done runs on the loop with the transport result.
func (r *Recorder) send(mode, body string, timeout time.Duration, done func(error)) {
	seq := r.nextSequenceID()
	req, err := transport.NewRequest(r.target, body, seq, timeout)
	if err != nil {
		r.metrics.RequestsTotal.WithLabelValues(mode, metrics.ResultFailure).Inc()
		done(err)
		return
	}

	started := r.clock.Now()
	r.loop.Go(func() {
		err := r.transport.Send(context.Background(), req)
		r.loop.Do(func() {
			result := metrics.ResultSuccess
			if err != nil {
				result = metrics.ResultFailure
			}
			r.metrics.RequestsTotal.WithLabelValues(mode, result).Inc()
			r.metrics.RequestDuration.WithLabelValues(mode).Observe(r.clock.Now().Sub(started).Seconds())
			done(err)
		})
	})
}

func (r *Recorder) nextSequenceID() int64 {
	r.sequenceID++
	if err := r.store.Set(storage.KeySequenceID, strconv.FormatInt(r.sequenceID, 10)); err != nil {
		r.logger.Error("Failed to persist sequence id", slog.Int64("sequence_id", r.sequenceID), slog.Any("error", err))
	}
	r.metrics.SequenceID.Set(float64(r.sequenceID))
	return r.sequenceID
}

func (r *Recorder) loadSequenceID() int64 {
	raw, err := r.store.Get(storage.KeySequenceID)
	if err != nil {
		r.logger.Error("Failed to read sequence id", slog.Any("error", err))
		return 0
	}
	if raw == "" {
		return 0
	}
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		r.logger.Warn("Ignoring invalid sequence id", slog.String("value", raw))
		return 0
	}
	return seq
}

func (r *Recorder) addToOutbox(eventID, payload string) {
	outbox, err := loadOutboxMap(r.store)
	if err != nil {
		r.logger.Error("Failed to load outbox", slog.Any("error", err))
		outbox = map[string]string{}
	}
	outbox[eventID] = payload
	if err := saveOutboxMap(r.store, outbox); err != nil {
		r.logger.Error("Failed to persist outbox", slog.String("event_id", eventID), slog.Any("error", err))
	}
	r.metrics.OutboxSize.Set(float64(len(outbox)))
}

func (r *Recorder) removeFromOutbox(eventID string) {
	outbox, err := loadOutboxMap(r.store)
	if err != nil {
		r.logger.Error("Failed to load outbox", slog.Any("error", err))
		return
	}
	if _, ok := outbox[eventID]; !ok {
		return
	}
	delete(outbox, eventID)
	if err := saveOutboxMap(r.store, outbox); err != nil {
		r.logger.Error("Failed to persist outbox", slog.String("event_id", eventID), slog.Any("error", err))
	}
	r.metrics.OutboxSize.Set(float64(len(outbox)))
}
