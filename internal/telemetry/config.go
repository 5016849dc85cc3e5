package telemetry

import "github.com/felixgeelhaar/finhub/internal/config"

// Config holds configuration for the tracer
type Config struct {
	// ServiceName is the name of the service
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Environment is the deployment environment (dev, staging, production)
	Environment string

	// Enabled determines whether tracing is enabled
	// When false, a noop tracer is used
	Enabled bool

	// Endpoint is the OTLP collector endpoint (host:port)
	// If empty, spans are sampled but not exported
	Endpoint string

	// SampleRate is the fraction of traces to sample (0.0 to 1.0)
	SampleRate float64
}

// DefaultConfig returns the disabled configuration
func DefaultConfig() Config {
	return Config{
		ServiceName:    "finhub",
		ServiceVersion: "dev",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// FromConfig builds a tracer configuration from the application config
func FromConfig(cfg config.TelemetryConfig, version string) Config {
	c := DefaultConfig()
	c.ServiceVersion = version
	c.Enabled = cfg.Enabled
	c.Endpoint = cfg.Endpoint
	c.SampleRate = cfg.SampleRate
	if cfg.Enabled && cfg.Endpoint != "" {
		c.Environment = "production"
	}
	return c
}
