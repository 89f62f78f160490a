// Package main is the Messaging Webhook process entrypoint: it serves the
// provider's inbound verification and receipt HTTP surface (spec §4.7).
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
	app, err := bootstrap.BuildMessagingWebhook()
	if err != nil {
		log.Fatalf("bootstrap messaging-webhook failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Ops.Start(); err != nil {
			app.Logger.Error("messaging webhook server stopped with error", "error", err)
		}
	}()

	app.Logger.Info("messaging webhook starting", "event", "messaging_webhook_starting", "module", "cmd/messaging-webhook", "layer", "process")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Ops.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("messaging webhook shutdown failed", "error", err)
	}
}
