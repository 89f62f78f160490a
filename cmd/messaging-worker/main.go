// Package main is the Messaging Worker process entrypoint: it runs the
// inbound, outbound, and vertical-notifier loops against the WhatsApp
// streams (spec §4.8).
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
	app, err := bootstrap.BuildMessagingWorker()
	if err != nil {
		log.Fatalf("bootstrap messaging-worker failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Ops.Start(); err != nil {
			app.Logger.Error("ops server stopped with error", "error", err)
		}
	}()

	app.Logger.Info("messaging worker starting", "event", "messaging_worker_starting", "module", "cmd/messaging-worker", "layer", "process")
	if err := app.Module.Runner.Run(ctx); err != nil {
		app.Logger.Error("messaging worker stopped with error", "error", err, "event", "messaging_worker_stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Ops.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("ops server shutdown failed", "error", err)
	}
}
