// Package metrics holds the Prometheus instruments of the delivery engine
// and the collector.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clickstream"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Delivery holds the SDK side metrics.
type Delivery struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	EventsRecorded  *prometheus.CounterVec
	OutboxSize      prometheus.Gauge
	BufferedBytes   prometheus.Gauge
	SequenceID      prometheus.Gauge
}

// NewDelivery creates the delivery metrics and registers them on reg. A
// nil reg leaves them unregistered.
func NewDelivery(reg prometheus.Registerer) *Delivery {
	m := &Delivery{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of ingestion requests",
			},
			[]string{"mode", "result"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Ingestion request duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 15},
			},
			[]string{"mode"},
		),
		EventsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_recorded_total",
				Help:      "Total number of events handed to the delivery engine",
			},
			[]string{"mode"},
		),
		OutboxSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "outbox_events",
				Help:      "Number of events waiting in the immediate outbox",
			},
		),
		BufferedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "buffered_bytes",
				Help:      "Size of the batch buffer in bytes",
			},
		),
		SequenceID: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sequence_id",
				Help:      "Last event bundle sequence id used",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.EventsRecorded,
			m.OutboxSize,
			m.BufferedBytes,
			m.SequenceID,
		)
	}
	return m
}

// Collector holds the ingestion sink metrics.
type Collector struct {
	RequestsTotal  *prometheus.CounterVec
	EventsReceived *prometheus.CounterVec
	Duplicates     prometheus.Counter
	EventsPurged   prometheus.Counter
}

// NewCollector creates the collector metrics and registers them on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	m := &Collector{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "collector",
				Name:      "requests_total",
				Help:      "Total number of collect requests by status",
			},
			[]string{"status"},
		),
		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "collector",
				Name:      "events_received_total",
				Help:      "Total number of events stored",
			},
			[]string{"event_type"},
		),
		Duplicates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "collector",
				Name:      "duplicate_events_total",
				Help:      "Events ignored because their event id was already stored",
			},
		),
		EventsPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "collector",
				Name:      "events_purged_total",
				Help:      "Events removed by the retention job",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.RequestsTotal, m.EventsReceived, m.Duplicates, m.EventsPurged)
	}
	return m
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
