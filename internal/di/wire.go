// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/custodian/internal/clients/rpc"
	"github.com/aristath/custodian/internal/config"
	"github.com/aristath/custodian/internal/database"
	"github.com/aristath/custodian/internal/events"
	"github.com/aristath/custodian/internal/modules/calculations"
	"github.com/aristath/custodian/internal/modules/custody"
	"github.com/aristath/custodian/internal/modules/execution"
	"github.com/aristath/custodian/internal/modules/history"
	"github.com/aristath/custodian/internal/modules/risk"
)

// Wire initializes all dependencies and returns a fully configured container.
// This is the main entry point for dependency injection.
// Order of operations:
// 1. Open and migrate databases
// 2. Initialize repositories and caches
// 3. Resolve the custody backend
// 4. Initialize risk and execution services
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	if err := initDatabases(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	container.EventBus = events.NewBus()
	container.EventManager = events.NewManager(container.EventBus, log)

	container.HistoryRepo = history.NewRepository(container.PortfolioDB.Conn(), log)
	container.ExecutionRepo = execution.NewRepository(container.LedgerDB, log)
	container.CalcCache = calculations.NewCache(container.CacheDB, log)

	if err := initCustody(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize custody backend: %w", err)
	}

	initRisk(container, cfg, log)
	initExecution(container, cfg, log)

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, nil
}

func initDatabases(c *Container, cfg *config.Config, log zerolog.Logger) error {
	specs := []struct {
		name    string
		profile database.DatabaseProfile
		target  **database.DB
	}{
		{"ledger", database.ProfileLedger, &c.LedgerDB},
		{"portfolio", database.ProfileStandard, &c.PortfolioDB},
		{"cache", database.ProfileCache, &c.CacheDB},
	}

	for _, spec := range specs {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, spec.name+".db"),
			Profile: spec.profile,
			Name:    spec.name,
		})
		if err != nil {
			return fmt.Errorf("failed to open %s database: %w", spec.name, err)
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to migrate %s database: %w", spec.name, err)
		}
		*spec.target = db
		log.Info().Str("database", spec.name).Str("profile", string(spec.profile)).Msg("Database ready")
	}

	return nil
}

func initCustody(c *Container, cfg *config.Config, log zerolog.Logger) error {
	registry := custody.NewRegistry()
	registry.Register(custody.BackendEnv, func() (custody.Vault, error) {
		return custody.NewEnvVault(log), nil
	})

	vault, err := registry.Resolve(custody.Backend(cfg.CustodyBackend))
	if err != nil {
		return err
	}

	c.CustodyRegistry = registry
	c.Vault = vault
	c.Signer = custody.NewSigner(vault, log)
	c.WalletDir = custody.NewEnvDirectory(vault, log)
	return nil
}

func initRisk(c *Container, cfg *config.Config, log zerolog.Logger) {
	c.Estimator = risk.NewEstimator(c.CalcCache, cfg.MonteCarlo.RandomSeed, log)
	c.KillSwitch = risk.NewKillSwitch(cfg.KillSwitch, c.HistoryRepo, newHaltAnnouncer(log), c.EventManager, log)
	c.RiskManager = risk.NewManager(cfg.VaR, c.Estimator, c.KillSwitch, c.HistoryRepo, c.EventManager, log)
}

func initExecution(c *Container, cfg *config.Config, log zerolog.Logger) {
	if cfg.BroadcastRPCURL != "" {
		c.Broadcaster = rpc.NewClient(cfg.BroadcastRPCURL, log)
	} else {
		log.Warn().Msg("BROADCAST_RPC_URL not set, using loopback broadcaster")
		c.Broadcaster = rpc.NewLoopback(log)
	}

	c.Executor = execution.NewExecutor(c.ExecutionRepo, log)
	c.Safety = execution.NewSafetyService(c.HistoryRepo, cfg.MaxPositionValue, log)
	c.Pipeline = execution.NewPipeline(
		c.Safety,
		c.RiskManager,
		c.Vault,
		c.Signer,
		c.Broadcaster,
		c.Executor,
		c.EventManager,
		cfg.BroadcastTimeout,
		log,
	)
}
