package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clickstream/internal/metrics"
)

func TestDeliveryMetricsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewDelivery(reg)

	m.RequestsTotal.WithLabelValues("immediate", metrics.ResultSuccess).Inc()
	m.RequestsTotal.WithLabelValues("immediate", metrics.ResultSuccess).Inc()
	m.OutboxSize.Set(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("immediate", metrics.ResultSuccess)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.OutboxSize))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestUnregisteredDeliveryMetrics(t *testing.T) {
	m := metrics.NewDelivery(nil)
	m.SequenceID.Set(9)
	assert.Equal(t, 9.0, testutil.ToFloat64(m.SequenceID))
}

func TestRegisteringTwiceOnOneRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewDelivery(reg)
	assert.Panics(t, func() { metrics.NewDelivery(reg) })
}

func TestHandlerExposesCollectorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg)
	m.EventsReceived.WithLabelValues("_app_start").Add(4)

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `clickstream_collector_events_received_total{event_type="_app_start"} 4`)
}
