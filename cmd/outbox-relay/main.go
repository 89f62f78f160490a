// Package main is the Outbox Relay process entrypoint: it polls the
// durable outbox table and publishes claimed rows onto the bus (spec §4.3).
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"corehub/internal/app/bootstrap"
)

func main() {
	app, err := bootstrap.BuildOutboxRelay()
	if err != nil {
		log.Fatalf("bootstrap outbox-relay failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Ops.Start(); err != nil {
			app.Logger.Error("ops server stopped with error", "error", err)
		}
	}()

	app.Logger.Info("outbox relay starting", "event", "outbox_relay_starting", "module", "cmd/outbox-relay", "layer", "process")
	if err := app.Module.Relay.Run(ctx); err != nil {
		app.Logger.Error("outbox relay stopped with error", "error", err, "event", "outbox_relay_stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Ops.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("ops server shutdown failed", "error", err)
	}
}
