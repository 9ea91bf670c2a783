package config

import (
	"errors"
	"testing"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		DataDir:          "/tmp/custodian-test",
		Port:             8002,
		LogLevel:         "info",
		CustodyBackend:   "env",
		BroadcastTimeout: 30 * time.Second,
		KillSwitch: KillSwitchConfig{
			Enabled:                  true,
			MaxDrawdownPercent:       15.0,
			WarningThresholdPercent:  10.0,
			CriticalThresholdPercent: 12.0,
			RecoveryThresholdPercent: 5.0,
			CheckInterval:            time.Minute,
			AutoRecovery:             true,
			ShutdownAllBots:          true,
		},
		VaR: VaRConfig{
			ConfidenceLevel: 0.95,
			TimeHorizonDays: 1,
			Method:          "historical",
			MaxVaRPercent:   5.0,
			LookbackDays:    252,
		},
		MonteCarlo: MonteCarloConfig{
			NumSimulations:  10000,
			TimeHorizonDays: 30,
			RandomSeed:      42,
		},
	}
}

func TestValidateDefaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateThresholdOrdering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "warning above critical",
			mutate: func(c *Config) { c.KillSwitch.WarningThresholdPercent = 13.0 },
		},
		{
			name:   "critical above max",
			mutate: func(c *Config) { c.KillSwitch.CriticalThresholdPercent = 16.0 },
		},
		{
			name:   "recovery above max",
			mutate: func(c *Config) { c.KillSwitch.RecoveryThresholdPercent = 20.0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var confErr *domain.ConfigurationError
			assert.True(t, errors.As(err, &confErr))
		})
	}
}

func TestValidateConfidenceLevel(t *testing.T) {
	cfg := validConfig()
	cfg.VaR.ConfidenceLevel = 1.5

	err := cfg.Validate()
	require.Error(t, err)

	var confErr *domain.ConfigurationError
	require.True(t, errors.As(err, &confErr))
	assert.Equal(t, "VAR_CONFIDENCE_LEVEL", confErr.Field)
}

func TestValidateCustodyBackend(t *testing.T) {
	cfg := validConfig()
	cfg.CustodyBackend = "hsm"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUSTODY_BACKEND")
}

func TestLoadUsesDefaults(t *testing.T) {
	t.Setenv("CUSTODIAN_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15.0, cfg.KillSwitch.MaxDrawdownPercent)
	assert.Equal(t, 60*time.Second, cfg.KillSwitch.CheckInterval)
	assert.Equal(t, 0.95, cfg.VaR.ConfidenceLevel)
	assert.Equal(t, "historical", cfg.VaR.Method)
	assert.Equal(t, 10000, cfg.MonteCarlo.NumSimulations)
	assert.True(t, cfg.KillSwitch.AutoRecovery)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CUSTODIAN_DATA_DIR", t.TempDir())
	t.Setenv("MAX_DRAWDOWN_PERCENT", "20")
	t.Setenv("CHECK_INTERVAL_SECONDS", "5")
	t.Setenv("VAR_METHOD", "parametric")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20.0, cfg.KillSwitch.MaxDrawdownPercent)
	assert.Equal(t, 5*time.Second, cfg.KillSwitch.CheckInterval)
	assert.Equal(t, "parametric", cfg.VaR.Method)
}
