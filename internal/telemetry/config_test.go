package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/felixgeelhaar/finhub/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "finhub", cfg.ServiceName)
	assert.False(t, cfg.Enabled)
	assert.Empty(t, cfg.Endpoint)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.TelemetryConfig{
		Enabled:    true,
		Endpoint:   "otel-collector:4318",
		SampleRate: 0.25,
	}, "1.2.0")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "otel-collector:4318", cfg.Endpoint)
	assert.Equal(t, 0.25, cfg.SampleRate)
	assert.Equal(t, "1.2.0", cfg.ServiceVersion)
	assert.Equal(t, "production", cfg.Environment)

	disabled := FromConfig(config.TelemetryConfig{SampleRate: 1}, "dev")
	assert.False(t, disabled.Enabled)
	assert.Equal(t, "development", disabled.Environment)
}
