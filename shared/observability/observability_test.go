package observability

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestPrometheusMetricsExposition(t *testing.T) {
	m, handler, mp, err := SetupPrometheusMetrics()
	require.NoError(t, err)
	defer func() { _ = mp.Shutdown(context.Background()) }()

	ctx := context.Background()
	m.RecordExchange(ctx, "ok")
	m.RecordUsageIncrement(ctx, "chatRequests", true)
	m.RecordProviderLatency(ctx, 150*time.Millisecond, "ok")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "chat_exchanges")
	assert.Contains(t, string(body), "usage_increments")
	assert.Contains(t, string(body), "provider_latency")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordExchange(context.Background(), "ok")
		m.RecordUsageIncrement(context.Background(), "chatRequests", false)
		m.RecordProviderLatency(context.Background(), time.Second, "ok")
	})
}

func TestSetupTracingExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := SetupTracing("test-service", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "unit-span")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "unit-span")
	assert.Contains(t, buf.String(), "test-service")
}
