// Package outboxrelay wires the Outbox Relay's ports, adapters, and
// application worker into one constructible Module, the way every other
// bounded context in this repository composes its module.go.
package outboxrelay

import (
	"log/slog"

	"corehub/contexts/outbox-relay/application/workers"
	"corehub/contexts/outbox-relay/domain/services"
	"corehub/contexts/outbox-relay/ports"
	"corehub/internal/platform/bus"
)

// Module bundles the relay worker for a process entrypoint to run.
type Module struct {
	Relay *workers.OutboxRelay
}

// Dependencies are the infra pieces the relay is built against.
type Dependencies struct {
	Repository ports.OutboxRepository
	Bus        bus.Bus
	Router     ports.Router
	Config     workers.Config
	Logger     *slog.Logger
}

func NewModule(deps Dependencies) Module {
	router := deps.Router
	if router == nil {
		router = services.DefaultRouter{}
	}
	relay := workers.NewOutboxRelay(deps.Repository, router, deps.Bus, deps.Config, deps.Logger)
	return Module{Relay: relay}
}
