package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 25000.0, cfg.ServiceAreaMaxMeters)
	assert.Equal(t, 20000.0, cfg.ServiceAreaWarningM)
	assert.False(t, cfg.ServiceAreaStrict)
	assert.Equal(t, 25.0, cfg.FareBaseFare)
	assert.Equal(t, 8.0, cfg.FarePerKMRate)
	assert.Equal(t, "INR", cfg.FareCurrency)
	assert.Equal(t, 5.0, cfg.FareWeightThresholdKG)
	assert.Equal(t, 10.0, cfg.FareWeightThresholdHighKG)
	assert.Equal(t, 1.1, cfg.FareWeightMidMultiplier)
	assert.Equal(t, 1.2, cfg.FareWeightMultiplier)
	assert.Equal(t, 1.0, cfg.FareSurgeMultiplier)
	assert.Equal(t, 8, cfg.FareSurgePeakStartHour)
	assert.Equal(t, 10, cfg.FareSurgePeakEndHour)
	assert.Equal(t, 1.2, cfg.FareSurgePeakMultiplier)
	assert.Equal(t, 22, cfg.FareSurgeLateNightStartHour)
	assert.Equal(t, 6, cfg.FareSurgeLateNightEndHour)
	assert.Equal(t, 1.3, cfg.FareSurgeLateNightMultiplier)
	assert.Equal(t, 10*time.Second, cfg.LockTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("DISPATCHCORE_ADDR", ":9090")
	t.Setenv("DISPATCHCORE_FARE_BASE_FARE", "40")
	t.Setenv("DISPATCHCORE_SERVICE_AREA_STRICT", "true")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 40.0, cfg.FareBaseFare)
	assert.True(t, cfg.ServiceAreaStrict)
}
