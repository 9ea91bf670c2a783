// Package di provides dependency injection type definitions.
package di

import (
	"github.com/aristath/custodian/internal/database"
	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/events"
	"github.com/aristath/custodian/internal/modules/calculations"
	"github.com/aristath/custodian/internal/modules/custody"
	"github.com/aristath/custodian/internal/modules/execution"
	"github.com/aristath/custodian/internal/modules/history"
	"github.com/aristath/custodian/internal/modules/risk"
)

// Container holds all dependencies for the application.
//
// This is the single source of truth for all service instances.
// The container is created by Wire() and passed to the server for access
// to services.
type Container struct {
	// Databases
	LedgerDB    *database.DB
	PortfolioDB *database.DB
	CacheDB     *database.DB

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Repositories and caches
	HistoryRepo   *history.Repository
	ExecutionRepo *execution.Repository
	CalcCache     *calculations.Cache

	// Custody boundary
	CustodyRegistry *custody.Registry
	Vault           custody.Vault
	Signer          *custody.Signer
	WalletDir       domain.WalletDirectory

	// Risk
	Estimator   *risk.Estimator
	KillSwitch  *risk.KillSwitch
	RiskManager *risk.Manager

	// Execution
	Executor    *execution.Executor
	Safety      *execution.SafetyService
	Broadcaster domain.Broadcaster
	Pipeline    *execution.Pipeline
}

// Databases returns the open databases keyed by name. Used by health
// checks and the WAL checkpoint job.
func (c *Container) Databases() map[string]*database.DB {
	return map[string]*database.DB{
		"ledger":    c.LedgerDB,
		"portfolio": c.PortfolioDB,
		"cache":     c.CacheDB,
	}
}

// Close releases all database connections. Safe on a partially
// initialized container.
func (c *Container) Close() {
	for _, db := range []*database.DB{c.LedgerDB, c.PortfolioDB, c.CacheDB} {
		if db != nil {
			_ = db.Close()
		}
	}
}
