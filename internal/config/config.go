// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Custody
	CustodyBackend   string        // "env" or "remote"
	BroadcastRPCURL  string        // JSON-RPC endpoint for transaction broadcast; empty uses the loopback broadcaster
	BroadcastTimeout time.Duration // Timeout for vault, signing and broadcast calls

	// MaxPositionValue caps the notional value of a single trade; zero
	// disables the limit.
	MaxPositionValue float64

	KillSwitch KillSwitchConfig
	VaR        VaRConfig
	MonteCarlo MonteCarloConfig
}

// KillSwitchConfig holds drawdown kill switch thresholds
type KillSwitchConfig struct {
	Enabled                  bool
	MaxDrawdownPercent       float64
	WarningThresholdPercent  float64
	CriticalThresholdPercent float64
	RecoveryThresholdPercent float64
	CheckInterval            time.Duration
	AutoRecovery             bool
	ShutdownAllBots          bool
}

// VaRConfig holds default Value-at-Risk parameters
type VaRConfig struct {
	ConfidenceLevel float64
	TimeHorizonDays int
	Method          string // "historical", "parametric", "monte_carlo"
	MaxVaRPercent   float64
	LookbackDays    int
}

// MonteCarloConfig holds default Monte Carlo simulation parameters
type MonteCarloConfig struct {
	NumSimulations  int
	TimeHorizonDays int
	RandomSeed      uint64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("CUSTODIAN_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:          absDataDir,
		Port:             getEnvAsInt("GO_PORT", 8002),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		CustodyBackend:   getEnv("CUSTODY_BACKEND", "env"),
		BroadcastRPCURL:  getEnv("BROADCAST_RPC_URL", ""),
		BroadcastTimeout: time.Duration(getEnvAsInt("BROADCAST_TIMEOUT_SECONDS", 30)) * time.Second,
		MaxPositionValue: getEnvAsFloat("MAX_POSITION_VALUE", 0),
		KillSwitch: KillSwitchConfig{
			Enabled:                  getEnvAsBool("KILL_SWITCH_ENABLED", true),
			MaxDrawdownPercent:       getEnvAsFloat("MAX_DRAWDOWN_PERCENT", 15.0),
			WarningThresholdPercent:  getEnvAsFloat("WARNING_THRESHOLD_PERCENT", 10.0),
			CriticalThresholdPercent: getEnvAsFloat("CRITICAL_THRESHOLD_PERCENT", 12.0),
			RecoveryThresholdPercent: getEnvAsFloat("RECOVERY_THRESHOLD_PERCENT", 5.0),
			CheckInterval:            time.Duration(getEnvAsInt("CHECK_INTERVAL_SECONDS", 60)) * time.Second,
			AutoRecovery:             getEnvAsBool("AUTO_RECOVERY", true),
			ShutdownAllBots:          getEnvAsBool("SHUTDOWN_ALL_BOTS", true),
		},
		VaR: VaRConfig{
			ConfidenceLevel: getEnvAsFloat("VAR_CONFIDENCE_LEVEL", 0.95),
			TimeHorizonDays: getEnvAsInt("VAR_TIME_HORIZON_DAYS", 1),
			Method:          getEnv("VAR_METHOD", "historical"),
			MaxVaRPercent:   getEnvAsFloat("MAX_VAR_PERCENT", 5.0),
			LookbackDays:    getEnvAsInt("VAR_LOOKBACK_DAYS", 252),
		},
		MonteCarlo: MonteCarloConfig{
			NumSimulations:  getEnvAsInt("MC_NUM_SIMULATIONS", 10000),
			TimeHorizonDays: getEnvAsInt("MC_TIME_HORIZON_DAYS", 30),
			RandomSeed:      uint64(getEnvAsInt("MC_RANDOM_SEED", 42)),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants. Threshold misordering is a fatal
// startup error, never a per-call one.
func (c *Config) Validate() error {
	ks := c.KillSwitch
	if ks.WarningThresholdPercent >= ks.CriticalThresholdPercent {
		return &domain.ConfigurationError{
			Field: "WARNING_THRESHOLD_PERCENT",
			Err:   fmt.Errorf("warning threshold (%.1f) must be below critical threshold (%.1f)", ks.WarningThresholdPercent, ks.CriticalThresholdPercent),
		}
	}
	if ks.CriticalThresholdPercent >= ks.MaxDrawdownPercent {
		return &domain.ConfigurationError{
			Field: "CRITICAL_THRESHOLD_PERCENT",
			Err:   fmt.Errorf("critical threshold (%.1f) must be below max drawdown (%.1f)", ks.CriticalThresholdPercent, ks.MaxDrawdownPercent),
		}
	}
	if ks.RecoveryThresholdPercent >= ks.MaxDrawdownPercent {
		return &domain.ConfigurationError{
			Field: "RECOVERY_THRESHOLD_PERCENT",
			Err:   fmt.Errorf("recovery threshold (%.1f) must be below max drawdown (%.1f)", ks.RecoveryThresholdPercent, ks.MaxDrawdownPercent),
		}
	}
	if c.VaR.ConfidenceLevel <= 0 || c.VaR.ConfidenceLevel >= 1 {
		return &domain.ConfigurationError{
			Field: "VAR_CONFIDENCE_LEVEL",
			Err:   fmt.Errorf("confidence level must be in (0, 1), got %.3f", c.VaR.ConfidenceLevel),
		}
	}
	if c.CustodyBackend != "env" && c.CustodyBackend != "remote" {
		return &domain.ConfigurationError{
			Field: "CUSTODY_BACKEND",
			Err:   fmt.Errorf("unknown custody backend %q", c.CustodyBackend),
		}
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
