package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertMetricLine checks that the Prometheus output contains a metric matching the
// given name, partial label pattern, and value. Uses regex to handle extra OTel scope
// labels injected by the Prometheus exporter.
func assertMetricLine(t *testing.T, output, name, labels, value string) {
	t.Helper()
	pattern := name + `\{[^}]*` + labels + `[^}]*\} ` + value
	assert.Regexp(t, pattern, output)
}

func scrape(t *testing.T, provider *Provider) string {
	t.Helper()
	w := httptest.NewRecorder()
	provider.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, "success", StatusFor(nil))
	assert.Equal(t, "error", StatusFor(assert.AnError))
}

func TestNewBusinessMetrics(t *testing.T) {
	provider, err := NewProvider(ProviderConfig{Namespace: "test_app"})
	require.NoError(t, err)

	businessMetrics, err := NewBusinessMetrics(provider.MeterProvider(), "test_app")

	require.NoError(t, err)
	assert.NotNil(t, businessMetrics)
}

func TestNewNoOpBusinessMetrics(t *testing.T) {
	noOpMetrics := NewNoOpBusinessMetrics()
	assert.IsType(t, &NoOpBusinessMetrics{}, noOpMetrics)

	ctx := context.Background()
	noOpMetrics.RecordOperation(ctx, "eventstore", "event_append", "success")
	noOpMetrics.RecordDuration(ctx, "eventstore", "event_append", time.Millisecond, "error")
	noOpMetrics.RecordWorkItems(ctx, "outbox", "claimed", 3)
}

func TestBusinessMetrics_Integration(t *testing.T) {
	provider, err := NewProvider(ProviderConfig{Namespace: "integration_test"})
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "integration_test")
	require.NoError(t, err)

	ctx := context.Background()

	bm.RecordOperation(ctx, "eventstore", "event_append", "success")
	bm.RecordOperation(ctx, "eventstore", "event_append", "success")
	bm.RecordOperation(ctx, "eventstore", "event_append", "error")
	bm.RecordOperation(ctx, "coordinator", "process_work_batch", "success")

	bm.RecordDuration(ctx, "eventstore", "event_append", 5*time.Millisecond, "success")
	bm.RecordDuration(ctx, "eventstore", "event_append", 7*time.Millisecond, "success")

	bm.RecordWorkItems(ctx, "outbox", "claimed", 10)
	bm.RecordWorkItems(ctx, "outbox", "claimed", 5)
	bm.RecordWorkItems(ctx, "inbox", "failed", 0)

	output := scrape(t, provider)

	assertMetricLine(t, output, `integration_test_operations_total`,
		`domain="eventstore".*operation="event_append".*status="success"`, `2`)
	assertMetricLine(t, output, `integration_test_operations_total`,
		`domain="eventstore".*operation="event_append".*status="error"`, `1`)
	assertMetricLine(t, output, `integration_test_operations_total`,
		`domain="coordinator".*operation="process_work_batch".*status="success"`, `1`)
	assertMetricLine(t, output, `integration_test_operation_duration_seconds_count`,
		`domain="eventstore".*operation="event_append".*status="success"`, `2`)
	assertMetricLine(t, output, `integration_test_work_items_total`,
		`kind="outbox".*outcome="claimed"`, `15`)
	assert.NotRegexp(t, `integration_test_work_items_total\{[^}]*kind="inbox"`, output)
}
