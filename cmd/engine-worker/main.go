// Package main is the Engine Worker process entrypoint: it consumes the
// shared domain-event stream and runs the stock and sales engines against
// it (spec §4.4-4.6).
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
	app, err := bootstrap.BuildEngineWorker()
	if err != nil {
		log.Fatalf("bootstrap engine-worker failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Ops.Start(); err != nil {
			app.Logger.Error("ops server stopped with error", "error", err)
		}
	}()

	app.Logger.Info("engine worker starting", "event", "engine_worker_starting", "module", "cmd/engine-worker", "layer", "process")
	if err := app.Module.Runner.Run(ctx); err != nil {
		app.Logger.Error("engine worker stopped with error", "error", err, "event", "engine_worker_stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Ops.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("ops server shutdown failed", "error", err)
	}
}
