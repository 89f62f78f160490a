package workers

import (
	"context"
	"log/slog"
	"time"

	"corehub/internal/platform/logging"
)

// loop is the shape every one of the three consumers exposes; Runner drives
// them uniformly.
type loop interface {
	EnsureGroup(ctx context.Context) error
	RunOnce(ctx context.Context) (int, error)
	RunReclaim(ctx context.Context) (int, error)
}

// Runner drives the inbound, outbound, and notifier consume loops
// concurrently, each with its own reclaim loop, until ctx is cancelled.
type Runner struct {
	inbound  *InboundConsumer
	outbound *OutboundConsumer
	notifier *NotifierConsumer
	cfg      Config
	logger   *slog.Logger
}

func NewRunner(inbound *InboundConsumer, outbound *OutboundConsumer, notifier *NotifierConsumer, cfg Config, logger *slog.Logger) *Runner {
	return &Runner{inbound: inbound, outbound: outbound, notifier: notifier, cfg: cfg.withDefaults(), logger: logging.Resolve(logger)}
}

// Run blocks until ctx is cancelled, running each loop's consume and
// reclaim passes concurrently.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.inbound.EnsureGroup(ctx); err != nil {
		return err
	}
	if err := r.outbound.EnsureGroup(ctx); err != nil {
		return err
	}
	if err := r.notifier.EnsureGroup(ctx); err != nil {
		return err
	}

	done := make(chan struct{}, 6)
	run := func(name string, fn func(context.Context)) {
		go func() {
			defer func() { done <- struct{}{} }()
			fn(ctx)
		}()
	}

	run("inbound-consume", func(ctx context.Context) { r.consumeLoop(ctx, "inbound", r.inbound) })
	run("inbound-reclaim", func(ctx context.Context) { r.reclaimLoop(ctx, "inbound", r.inbound) })
	run("outbound-consume", func(ctx context.Context) { r.consumeLoop(ctx, "outbound", r.outbound) })
	run("outbound-reclaim", func(ctx context.Context) { r.reclaimLoop(ctx, "outbound", r.outbound) })
	run("notifier-consume", func(ctx context.Context) { r.consumeLoop(ctx, "notifier", r.notifier) })
	run("notifier-reclaim", func(ctx context.Context) { r.reclaimLoop(ctx, "notifier", r.notifier) })

	for i := 0; i < 6; i++ {
		<-done
	}
	return nil
}

func (r *Runner) consumeLoop(ctx context.Context, name string, l loop) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := l.RunOnce(ctx); err != nil {
			r.logger.ErrorContext(ctx, "consume batch failed", "event", "messaging_consume_error",
				"module", "messaging-engine/worker", "layer", "worker", "loop", name, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (r *Runner) reclaimLoop(ctx context.Context, name string, l loop) {
	if _, err := l.RunReclaim(ctx); err != nil {
		r.logger.ErrorContext(ctx, "initial reclaim failed", "event", "messaging_reclaim_error",
			"module", "messaging-engine/worker", "layer", "worker", "loop", name, "error", err)
	}

	ticker := time.NewTicker(r.cfg.ReclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := l.RunReclaim(ctx); err != nil {
				r.logger.ErrorContext(ctx, "reclaim failed", "event", "messaging_reclaim_error",
					"module", "messaging-engine/worker", "layer", "worker", "loop", name, "error", err)
			}
		}
	}
}
