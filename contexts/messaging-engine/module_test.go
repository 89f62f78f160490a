package messagingengine

import (
	"testing"

	httpadapter "corehub/contexts/messaging-engine/adapters/http"
	"corehub/contexts/messaging-engine/adapters/memory"
	"corehub/contexts/messaging-engine/application/workers"
	"corehub/internal/platform/bus"
	"corehub/internal/platform/crypto"
)

func TestNewModuleWiresHandlerAndRunner(t *testing.T) {
	keyring, err := crypto.NewKeyRing([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mod := NewModule(Dependencies{
		Repository:    memory.NewStore(),
		Bus:           bus.NewMemoryBus(),
		KeyRing:       keyring,
		InboundConfig: httpadapter.Config{VerifyToken: "verify-token", WebhookSecret: "app-secret"},
		WorkerConfig:  workers.Config{},
	})

	if mod.Handler == nil {
		t.Fatal("expected a non-nil webhook handler")
	}
	if mod.Runner == nil {
		t.Fatal("expected a non-nil worker runner")
	}
}
