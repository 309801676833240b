// Package telemetry provides OpenTelemetry metrics and tracing for thv-confd.
package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/thv-confd/internal/versions"
)

const (
	// DefaultServiceName is reported as service.name when none is configured
	DefaultServiceName = "thv-confd"

	// DefaultEndpoint is the OTLP HTTP collector address
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling is the trace sampling ratio used when none is configured
	DefaultSampling = 0.05

	// DefaultMetricsInterval is the OTLP metrics push interval
	DefaultMetricsInterval = 60 * time.Second

	// MetricsExporterOTLP pushes metrics to an OTLP collector
	MetricsExporterOTLP = "otlp"

	// MetricsExporterPrometheus exposes metrics for scraping on the status server
	MetricsExporterPrometheus = "prometheus"
)

// Config is the telemetry section of the daemon configuration
type Config struct {
	// Enabled turns telemetry on. Everything is no-op otherwise.
	Enabled bool `yaml:"enabled"`

	ServiceName    string `yaml:"serviceName,omitempty"`
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is the OTLP HTTP collector as host:port
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure sends OTLP over plain HTTP
	Insecure bool `yaml:"insecure,omitempty"`

	// Headers are added to every OTLP export request, e.g. for collector auth
	Headers map[string]string `yaml:"headers,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig configures tick and status server spans
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is the ratio of sampled traces. Unset means DefaultSampling, 0 samples nothing.
	Sampling *float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig configures the tick and HTTP instruments
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter is "otlp" (default) or "prometheus"
	Exporter string `yaml:"exporter,omitempty"`

	// Interval is the OTLP push interval, e.g. "30s"
	Interval string `yaml:"interval,omitempty"`
}

// GetServiceName returns the configured service name or DefaultServiceName
func (c *Config) GetServiceName() string {
	if c == nil || c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetServiceVersion returns the configured version or the build version of the binary
func (c *Config) GetServiceVersion() string {
	if c == nil || c.ServiceVersion == "" {
		return versions.GetVersionInfo().Version
	}
	return c.ServiceVersion
}

// GetEndpoint returns the configured endpoint or DefaultEndpoint
func (c *Config) GetEndpoint() string {
	if c == nil || c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

// TracingEnabled reports whether spans are exported
func (c *Config) TracingEnabled() bool {
	return c != nil && c.Enabled && c.Tracing != nil && c.Tracing.Enabled
}

// MetricsEnabled reports whether instruments are exported
func (c *Config) MetricsEnabled() bool {
	return c != nil && c.Enabled && c.Metrics != nil && c.Metrics.Enabled
}

// GetSampling returns the sampling ratio
func (c *TracingConfig) GetSampling() float64 {
	if c == nil || c.Sampling == nil {
		return DefaultSampling
	}
	return *c.Sampling
}

// GetExporter returns the metrics exporter, OTLP when unset
func (c *MetricsConfig) GetExporter() string {
	if c == nil || c.Exporter == "" {
		return MetricsExporterOTLP
	}
	return c.Exporter
}

// GetInterval returns the OTLP push interval
func (c *MetricsConfig) GetInterval() time.Duration {
	if c == nil || c.Interval == "" {
		return DefaultMetricsInterval
	}
	interval, err := time.ParseDuration(c.Interval)
	if err != nil || interval <= 0 {
		return DefaultMetricsInterval
	}
	return interval
}

// Validate checks the enabled sections. A nil or disabled config is valid.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}
	return errors.Join(errs...)
}

// Validate checks the sampling ratio
func (c *TracingConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if sampling := c.GetSampling(); sampling < 0 || sampling > 1 {
		return fmt.Errorf("sampling must be between 0.0 and 1.0, got %g", sampling)
	}
	return nil
}

// Validate checks the exporter and interval
func (c *MetricsConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	switch c.GetExporter() {
	case MetricsExporterOTLP, MetricsExporterPrometheus:
	default:
		errs = append(errs, fmt.Errorf("unsupported exporter %q, must be %q or %q",
			c.Exporter, MetricsExporterOTLP, MetricsExporterPrometheus))
	}
	if c.Interval != "" {
		if interval, err := time.ParseDuration(c.Interval); err != nil || interval <= 0 {
			errs = append(errs, fmt.Errorf("interval must be a positive duration, got %q", c.Interval))
		}
	}
	return errors.Join(errs...)
}
