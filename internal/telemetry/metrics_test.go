package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// collectScope collects all metrics and returns the ones in the named scope
func collectScope(t *testing.T, reader *sdkmetric.ManualReader, scopeName string) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	result := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name != scopeName {
			continue
		}
		for _, m := range scope.Metrics {
			result[m.Name] = m
		}
	}
	return result
}

func TestNewPluginMetrics(t *testing.T) {
	t.Parallel()

	t.Run("returns nil when provider is nil", func(t *testing.T) {
		t.Parallel()

		metrics, err := NewPluginMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, metrics)
	})

	t.Run("records plugin count", func(t *testing.T) {
		t.Parallel()

		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		defer func() { _ = mp.Shutdown(context.Background()) }()

		metrics, err := NewPluginMetrics(mp)
		require.NoError(t, err)
		require.NotNil(t, metrics)

		metrics.RecordPluginsTotal(context.Background(), 3)

		collected := collectScope(t, reader, PluginMetricsMeterName)
		m, ok := collected["thv_confd_plugins_total"]
		require.True(t, ok, "expected plugins gauge")
		gauge, ok := m.Data.(metricdata.Gauge[int64])
		require.True(t, ok)
		require.Len(t, gauge.DataPoints, 1)
		assert.Equal(t, int64(3), gauge.DataPoints[0].Value)
	})

	t.Run("no-op when metrics is nil", func(t *testing.T) {
		t.Parallel()

		var metrics *PluginMetrics
		// Should not panic
		metrics.RecordPluginsTotal(context.Background(), 1)
	})
}

func TestNewTickMetrics(t *testing.T) {
	t.Parallel()

	t.Run("returns nil when provider is nil", func(t *testing.T) {
		t.Parallel()

		metrics, err := NewTickMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, metrics)
	})

	t.Run("creates metrics with SDK provider", func(t *testing.T) {
		t.Parallel()

		mp := sdkmetric.NewMeterProvider()
		defer func() { _ = mp.Shutdown(context.Background()) }()

		metrics, err := NewTickMetrics(mp)
		require.NoError(t, err)
		require.NotNil(t, metrics)
		assert.NotNil(t, metrics.ticksTotal)
		assert.NotNil(t, metrics.renderDuration)
		assert.NotNil(t, metrics.reloadsTotal)
		assert.NotNil(t, metrics.lastRender)
	})
}

func TestTickMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var metrics *TickMetrics
	ctx := context.Background()

	// Should not panic
	metrics.RecordTick(ctx, "bash", "Render")
	metrics.RecordRenderDuration(ctx, "bash", time.Second)
	metrics.RecordReload(ctx, "bash", true)
	metrics.RecordLastRender(ctx, "bash", time.Now())
}

func TestTickMetrics_Record(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := NewTickMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordTick(ctx, "haproxy", "Render")
	metrics.RecordTick(ctx, "haproxy", "Skip")
	metrics.RecordTick(ctx, "haproxy", "Skip")
	metrics.RecordRenderDuration(ctx, "haproxy", 1500*time.Millisecond)
	metrics.RecordReload(ctx, "haproxy", false)
	at := time.Unix(1700000000, 0)
	metrics.RecordLastRender(ctx, "haproxy", at)

	collected := collectScope(t, reader, TickMetricsMeterName)

	t.Run("ticks by outcome", func(t *testing.T) {
		m, ok := collected["thv_confd_ticks_total"]
		require.True(t, ok)
		sum, ok := m.Data.(metricdata.Sum[int64])
		require.True(t, ok)

		counts := map[string]int64{}
		for _, dp := range sum.DataPoints {
			outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
			counts[outcome.AsString()] = dp.Value
		}
		assert.Equal(t, int64(1), counts["Render"])
		assert.Equal(t, int64(2), counts["Skip"])
	})

	t.Run("render duration in seconds", func(t *testing.T) {
		m, ok := collected["thv_confd_render_duration_seconds"]
		require.True(t, ok)
		hist, ok := m.Data.(metricdata.Histogram[float64])
		require.True(t, ok)
		require.NotEmpty(t, hist.DataPoints)
		assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 0.001)
	})

	t.Run("reload result", func(t *testing.T) {
		m, ok := collected["thv_confd_reloads_total"]
		require.True(t, ok)
		sum, ok := m.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, sum.DataPoints, 1)
		result, _ := sum.DataPoints[0].Attributes.Value(attribute.Key("result"))
		assert.Equal(t, "failure", result.AsString())
	})

	t.Run("last render timestamp", func(t *testing.T) {
		m, ok := collected["thv_confd_last_render_timestamp_seconds"]
		require.True(t, ok)
		gauge, ok := m.Data.(metricdata.Gauge[float64])
		require.True(t, ok)
		require.Len(t, gauge.DataPoints, 1)
		assert.InDelta(t, 1700000000, gauge.DataPoints[0].Value, 0.001)
	})
}
