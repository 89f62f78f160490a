// Package engineplatform wires the engine router, engines, repository, and
// worker loops into one constructible Module (C6).
package engineplatform

import (
	"log/slog"

	"corehub/contexts/engine-platform/application/router"
	"corehub/contexts/engine-platform/application/workers"
	"corehub/contexts/engine-platform/domain/services"
	"corehub/contexts/engine-platform/ports"
	"corehub/internal/platform/bus"
)

// Module bundles the engine worker runner for a process entrypoint to run.
type Module struct {
	Runner *workers.Runner
}

// Dependencies are the infra pieces the engine worker is built against.
type Dependencies struct {
	Repository   ports.Repository
	Bus          bus.Bus
	StockPolicy  services.StockPolicy
	SalesPolicy  services.SalesPolicy
	WorkerConfig workers.Config
	Logger       *slog.Logger
}

func NewModule(deps Dependencies) Module {
	stockEngine := services.NewStockEngine(deps.StockPolicy)
	salesEngine := services.NewSalesEngine(deps.SalesPolicy)
	r := router.New(stockEngine, salesEngine, deps.Logger)
	consumer := workers.NewConsumer(deps.Repository, deps.Bus, r, deps.WorkerConfig, deps.Logger)
	runner := workers.NewRunner(consumer, deps.Logger)
	return Module{Runner: runner}
}
