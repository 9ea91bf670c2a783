// Package main is the entry point for the Custodian risk-gated execution
// service. It guards irreversible financial operations behind layered risk
// checks: every trade signal passes safety validation, the VaR gate and the
// drawdown kill switch before anything is signed, and broadcast happens at
// most once per idempotency key.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/custodian/internal/config"
	"github.com/aristath/custodian/internal/di"
	"github.com/aristath/custodian/internal/scheduler"
	"github.com/aristath/custodian/internal/server"
	"github.com/aristath/custodian/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting Custodian")

	// Wire all dependencies using the DI container. This opens and migrates
	// the databases, resolves the custody backend and builds the risk and
	// execution services. An unresolvable custody backend is fatal at startup.
	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Background maintenance jobs. The kill-switch monitor is not one of
	// them, it runs on its own goroutine below.
	sched := scheduler.New(log)
	registerJobs(sched, container, log)
	sched.Start()

	// Drawdown monitoring runs for the lifetime of the process.
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	if cfg.KillSwitch.Enabled {
		container.KillSwitch.StartMonitoring(monitorCtx)
		log.Info().
			Dur("interval", cfg.KillSwitch.CheckInterval).
			Msg("Drawdown kill-switch monitor started")
	} else {
		log.Warn().Msg("Drawdown kill switch disabled by configuration")
	}

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Container: container,
	})

	// Start server in goroutine so shutdown handling below is reachable.
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Stop the monitor first so no activation races the shutdown, then
	// drain the scheduler and the HTTP server.
	stopMonitor()
	container.KillSwitch.StopMonitoring()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// registerJobs wires the periodic maintenance jobs. A bad schedule
// expression is fatal at startup.
func registerJobs(sched *scheduler.Scheduler, container *di.Container, log zerolog.Logger) {
	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{"@every 1h", scheduler.NewPurgeExecutionRecordsJob(container.ExecutionRepo, container.EventManager, log)},
		{"@every 6h", scheduler.NewPurgeCacheJob(container.CalcCache, log)},
		{"@every 1h", scheduler.NewWALCheckpointJob(container.Databases(), log)},
	}

	for _, entry := range jobs {
		if err := sched.AddJob(entry.schedule, entry.job); err != nil {
			log.Fatal().Err(err).Str("job", entry.job.Name()).Msg("Failed to schedule job")
		}
	}
}
