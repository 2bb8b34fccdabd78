package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eventwish/fraudguard/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 70, cfg.Scoring.Threshold)
	assert.Equal(t, time.Minute, cfg.Scoring.VelocityWindow)
	assert.Equal(t, 150*time.Millisecond, cfg.Scoring.IPLookupTimeout)
	assert.Equal(t, int64(5), cfg.Scoring.MaxAdClicks)
	assert.Equal(t, 20.0, cfg.Scoring.CTRThreshold)
	assert.Equal(t, 200*time.Millisecond, cfg.Scoring.PatternMaxStdDev)
	assert.Equal(t, 5*time.Minute, cfg.Scoring.MaxClockSkew)
	assert.Equal(t, 50.0, cfg.Reputation.NeutralScore)
	assert.Equal(t, 24*time.Hour, cfg.Activity.Window)
	assert.Equal(t, "static", cfg.IPIntel.Provider)
	assert.False(t, cfg.Database.Enabled)
	assert.Same(t, cfg, config.GetConfig())
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9090
scoring:
  threshold: 80
  velocity_window: 30s
ipintel:
  provider: static
  datacenter_ranges:
    - 203.0.113.0/24
alerts:
  kafka:
    enabled: true
    topic: alerts
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0600))
	t.Setenv("SCORING_THRESHOLD", "65")
	t.Setenv("REDIS_HOST", "cache.internal")

	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 65, cfg.Scoring.Threshold)
	assert.Equal(t, 30*time.Second, cfg.Scoring.VelocityWindow)
	assert.Equal(t, []string{"203.0.113.0/24"}, cfg.IPIntel.DatacenterRanges)
	assert.Equal(t, "cache.internal", cfg.Redis.Host)
	assert.True(t, cfg.Alerts.Kafka.Enabled)
	assert.Equal(t, "alerts", cfg.Alerts.Kafka.Topic)
	assert.Equal(t, "9092", cfg.Alerts.Kafka.Port)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "threshold", env: map[string]string{"SCORING_THRESHOLD": "150"}},
		{name: "provider", env: map[string]string{"IPINTEL_PROVIDER": "carrier-pigeon"}},
		{name: "http without url", env: map[string]string{"IPINTEL_PROVIDER": "http"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load(t.TempDir())
			assert.Error(t, err)
		})
	}
}
