// Package telemetry wires OpenTelemetry tracing and metrics for the sync daemon.
// Spans and metrics leave the process over OTLP/HTTP, and metrics can also be
// scraped from the daemon's /metrics endpoint.
package telemetry

import (
	"errors"
	"fmt"
)

const (
	// DefaultServiceName identifies the daemon when serviceName is not configured
	DefaultServiceName = "supernova-sync"

	// DefaultEndpoint is the OTLP/HTTP collector address
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling is the trace sampling ratio used when none is configured.
	// A full run produces one span per reconciled entity, so keep this low.
	DefaultSampling = 0.05

	unknownVersion = "unknown"
)

// Config is the telemetry section of the daemon configuration
type Config struct {
	// Enabled turns telemetry on. Nothing is exported while it is false.
	Enabled bool `yaml:"enabled"`

	ServiceName    string `yaml:"serviceName,omitempty"`
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is the collector's host:port. The exporters append /v1/traces and /v1/metrics.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure sends telemetry over plain HTTP
	Insecure bool `yaml:"insecure,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig controls span export
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is the ratio of root spans kept, in (0, 1]
	Sampling *float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig controls metric export
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Prometheus serves the metrics on /metrics
	Prometheus bool `yaml:"prometheus,omitempty"`

	// PushDisabled turns off the OTLP exporter. Requires Prometheus.
	PushDisabled bool `yaml:"pushDisabled,omitempty"`
}

// exportSettings is the resolved, defaulted view of Config shared by both providers
type exportSettings struct {
	serviceName    string
	serviceVersion string
	endpoint       string
	insecure       bool
}

func (c *Config) exportSettings() exportSettings {
	s := exportSettings{
		serviceName:    DefaultServiceName,
		serviceVersion: unknownVersion,
		endpoint:       DefaultEndpoint,
	}
	if c == nil {
		return s
	}
	if c.ServiceName != "" {
		s.serviceName = c.ServiceName
	}
	if c.ServiceVersion != "" {
		s.serviceVersion = c.ServiceVersion
	}
	if c.Endpoint != "" {
		s.endpoint = c.Endpoint
	}
	s.insecure = c.Insecure
	return s
}

func (c *Config) tracingEnabled() bool {
	return c != nil && c.Enabled && c.Tracing != nil && c.Tracing.Enabled
}

func (c *Config) metricsEnabled() bool {
	return c != nil && c.Enabled && c.Metrics != nil && c.Metrics.Enabled
}

func (c *Config) prometheusEnabled() bool {
	return c.metricsEnabled() && c.Metrics.Prometheus
}

// GetSampling returns the configured ratio or DefaultSampling
func (c *TracingConfig) GetSampling() float64 {
	if c == nil || c.Sampling == nil {
		return DefaultSampling
	}
	return *c.Sampling
}

// Validate checks the sections that are switched on. A nil or disabled config is valid.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if c.Tracing != nil && c.Tracing.Enabled && c.Tracing.Sampling != nil {
		if s := *c.Tracing.Sampling; s <= 0 || s > 1 {
			errs = append(errs, fmt.Errorf("tracing: sampling must be in (0, 1], got %g", s))
		}
	}
	if c.Metrics != nil && c.Metrics.Enabled && c.Metrics.PushDisabled && !c.Metrics.Prometheus {
		errs = append(errs, errors.New("metrics: pushDisabled requires prometheus to be enabled"))
	}
	return errors.Join(errs...)
}
