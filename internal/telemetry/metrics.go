package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// PluginMetricsMeterName is the name used for the plugin metrics meter
	PluginMetricsMeterName = "github.com/stacklok/thv-confd/plugin"

	// TickMetricsMeterName is the name used for the tick metrics meter
	TickMetricsMeterName = "github.com/stacklok/thv-confd/tick"
)

// PluginMetrics holds the OpenTelemetry instruments for plugin inventory metrics
type PluginMetrics struct {
	pluginsTotal metric.Int64Gauge
}

// NewPluginMetrics creates a new PluginMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewPluginMetrics(provider metric.MeterProvider) (*PluginMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(PluginMetricsMeterName)

	pluginsTotal, err := meter.Int64Gauge(
		"thv_confd_plugins_total",
		metric.WithDescription("Number of plugins being synchronized"),
		metric.WithUnit("{plugin}"),
	)
	if err != nil {
		return nil, err
	}

	return &PluginMetrics{
		pluginsTotal: pluginsTotal,
	}, nil
}

// RecordPluginsTotal records the number of running plugin tasks
func (m *PluginMetrics) RecordPluginsTotal(ctx context.Context, count int64) {
	if m == nil || m.pluginsTotal == nil {
		return
	}
	m.pluginsTotal.Record(ctx, count)
}

// TickMetrics holds the OpenTelemetry instruments for plugin tick metrics
type TickMetrics struct {
	ticksTotal     metric.Int64Counter
	renderDuration metric.Float64Histogram
	reloadsTotal   metric.Int64Counter
	lastRender     metric.Float64Gauge
}

// NewTickMetrics creates a new TickMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewTickMetrics(provider metric.MeterProvider) (*TickMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(TickMetricsMeterName)

	ticksTotal, err := meter.Int64Counter(
		"thv_confd_ticks_total",
		metric.WithDescription("Total number of plugin ticks by outcome"),
		metric.WithUnit("{tick}"),
	)
	if err != nil {
		return nil, err
	}

	renderDuration, err := meter.Float64Histogram(
		"thv_confd_render_duration_seconds",
		metric.WithDescription("Duration of render, write and check for ticks that regenerate output"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	reloadsTotal, err := meter.Int64Counter(
		"thv_confd_reloads_total",
		metric.WithDescription("Total number of finished reload commands by result"),
		metric.WithUnit("{reload}"),
	)
	if err != nil {
		return nil, err
	}

	lastRender, err := meter.Float64Gauge(
		"thv_confd_last_render_timestamp_seconds",
		metric.WithDescription("Unix time of the last successful write"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &TickMetrics{
		ticksTotal:     ticksTotal,
		renderDuration: renderDuration,
		reloadsTotal:   reloadsTotal,
		lastRender:     lastRender,
	}, nil
}

// RecordTick records a finished tick
func (m *TickMetrics) RecordTick(ctx context.Context, plugin, outcome string) {
	if m == nil || m.ticksTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("plugin", plugin),
		attribute.String("outcome", outcome),
	}

	m.ticksTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRenderDuration records how long regenerating output took
func (m *TickMetrics) RecordRenderDuration(ctx context.Context, plugin string, duration time.Duration) {
	if m == nil || m.renderDuration == nil {
		return
	}

	m.renderDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("plugin", plugin)))
}

// RecordReload records a finished reload command
func (m *TickMetrics) RecordReload(ctx context.Context, plugin string, success bool) {
	if m == nil || m.reloadsTotal == nil {
		return
	}

	result := "success"
	if !success {
		result = "failure"
	}
	attrs := []attribute.KeyValue{
		attribute.String("plugin", plugin),
		attribute.String("result", result),
	}

	m.reloadsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLastRender records the time output was last written
func (m *TickMetrics) RecordLastRender(ctx context.Context, plugin string, at time.Time) {
	if m == nil || m.lastRender == nil {
		return
	}

	m.lastRender.Record(ctx, float64(at.UnixNano())/float64(time.Second),
		metric.WithAttributes(attribute.String("plugin", plugin)))
}
