package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// exportSettings are shared by the tracer and meter providers
type exportSettings struct {
	serviceName    string
	serviceVersion string
	endpoint       string
	insecure       bool
	headers        map[string]string
}

func newExportSettings(cfg *Config) exportSettings {
	s := exportSettings{
		serviceName:    cfg.GetServiceName(),
		serviceVersion: cfg.GetServiceVersion(),
		endpoint:       cfg.GetEndpoint(),
	}
	if cfg != nil {
		s.insecure = cfg.Insecure
		s.headers = cfg.Headers
	}
	return s
}

// resource describes this process. resource.New is used instead of
// resource.Default to avoid schema URL conflicts.
func (s exportSettings) resource(ctx context.Context) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(s.serviceName),
			semconv.ServiceVersion(s.serviceVersion),
		),
		resource.WithHost(),
		resource.WithProcessPID(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func (s exportSettings) warnInsecure(signal string) {
	if s.insecure {
		slog.Warn("Telemetry exported over plain HTTP", "signal", signal, "endpoint", s.endpoint)
	}
}

// newSDKTracerProvider builds a batching OTLP tracer provider and installs it globally
// together with the W3C trace context propagator
func newSDKTracerProvider(ctx context.Context, s exportSettings, tc *TracingConfig) (*sdktrace.TracerProvider, error) {
	res, err := s.resource(ctx)
	if err != nil {
		return nil, err
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(s.endpoint)}
	if s.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(s.headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(s.headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tc.GetSampling()))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	s.warnInsecure("traces")
	slog.Info("Tracing initialized", "endpoint", s.endpoint, "sampling_ratio", tc.GetSampling())
	return tp, nil
}

// newSDKMeterProvider builds a meter provider reading through either the prometheus
// exporter registered on registerer or a periodic OTLP push
func newSDKMeterProvider(
	ctx context.Context,
	s exportSettings,
	mc *MetricsConfig,
	registerer prometheus.Registerer,
) (*sdkmetric.MeterProvider, error) {
	res, err := s.resource(ctx)
	if err != nil {
		return nil, err
	}

	var reader sdkmetric.Reader
	switch mc.GetExporter() {
	case MetricsExporterPrometheus:
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		exporter, err := otelprom.New(otelprom.WithRegisterer(registerer))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus metrics exporter: %w", err)
		}
		reader = exporter
	default:
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(s.endpoint)}
		if s.insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		if len(s.headers) > 0 {
			opts = append(opts, otlpmetrichttp.WithHeaders(s.headers))
		}
		exporter, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(mc.GetInterval()))
		s.warnInsecure("metrics")
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	slog.Info("Metrics initialized", "exporter", mc.GetExporter(), "endpoint", s.endpoint)
	return mp, nil
}
