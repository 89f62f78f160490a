// Package messagingengine wires the webhook ingress handler and the
// inbound/outbound/notifier worker loops into one constructible Module.
package messagingengine

import (
	"log/slog"

	httpadapter "corehub/contexts/messaging-engine/adapters/http"
	"corehub/contexts/messaging-engine/adapters/providers"
	"corehub/contexts/messaging-engine/adapters/providers/cloudapi"
	"corehub/contexts/messaging-engine/adapters/providers/stub"
	"corehub/contexts/messaging-engine/application/workers"
	"corehub/contexts/messaging-engine/domain/entities"
	"corehub/contexts/messaging-engine/domain/services"
	"corehub/contexts/messaging-engine/ports"
	"corehub/internal/platform/bus"
	"corehub/internal/platform/crypto"
)

// Module bundles the webhook ingress handler and the worker runner; a
// process entrypoint uses whichever piece it runs (messaging-webhook serves
// Handler, messaging-worker drives Runner).
type Module struct {
	Handler *httpadapter.Handler
	Runner  *workers.Runner
}

// Dependencies are the infra pieces the messaging engine is built against.
// Webhook verification material (VerifyToken, WebhookSecret) travels inside
// InboundConfig rather than as top-level fields, since the handler only
// ever reads it from there.
type Dependencies struct {
	Repository    ports.Repository
	Bus           bus.Bus
	KeyRing       *crypto.KeyRing
	InboundConfig httpadapter.Config
	WorkerConfig  workers.Config
	Logger        *slog.Logger
}

// NewModule builds the provider registry shared by the ingress and the
// outbound worker, then wires the webhook handler and the three-loop
// worker runner over it.
func NewModule(deps Dependencies) Module {
	registry := buildProviderRegistry(deps.Logger)

	handler := httpadapter.NewHandler(deps.Repository, registry, deps.Bus, deps.InboundConfig, deps.Logger)

	automation := services.NewAutomationEngine()
	templates := services.NewTemplateRegistry()

	inbound := workers.NewInboundConsumer(deps.Repository, deps.Bus, automation, deps.WorkerConfig, deps.Logger)
	outbound := workers.NewOutboundConsumer(deps.Repository, deps.Bus, deps.KeyRing, registry, deps.WorkerConfig, deps.Logger)
	notifier := workers.NewNotifierConsumer(deps.Bus, templates, deps.WorkerConfig, deps.Logger)
	runner := workers.NewRunner(inbound, outbound, notifier, deps.WorkerConfig, deps.Logger)

	return Module{Handler: handler, Runner: runner}
}

func buildProviderRegistry(logger *slog.Logger) *providers.Registry {
	return providers.NewRegistry(map[string]ports.Provider{
		entities.ProviderCloudAPI: cloudapi.New(logger),
		entities.ProviderStub:     stub.New(logger),
	})
}
