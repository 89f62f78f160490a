package workers

import (
	"context"
	"log/slog"
	"time"
)

// Runner drives a Consumer's consume loop and reclaim loop concurrently
// until ctx is cancelled. It runs one reclaim pass immediately on startup,
// so entries left pending by a worker that crashed before this process
// started are picked up without waiting a full ReclaimInterval.
type Runner struct {
	consumer *Consumer
	logger   *slog.Logger
}

func NewRunner(consumer *Consumer, logger *slog.Logger) *Runner {
	return &Runner{consumer: consumer, logger: logger}
}

// Run blocks until ctx is cancelled, running the consume loop in the
// calling goroutine and the reclaim loop in a background one.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.consumer.EnsureGroup(ctx); err != nil {
		return err
	}

	reclaimDone := make(chan struct{})
	go func() {
		defer close(reclaimDone)
		r.reclaimLoop(ctx)
	}()

	r.consumeLoop(ctx)
	<-reclaimDone
	return nil
}

func (r *Runner) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := r.consumer.RunOnce(ctx); err != nil {
			r.consumer.logger.ErrorContext(ctx, "consume batch failed", "event", "engine_consume_error", "module", "engine-platform/worker", "layer", "worker", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (r *Runner) reclaimLoop(ctx context.Context) {
	if _, err := r.consumer.RunReclaim(ctx); err != nil {
		r.consumer.logger.ErrorContext(ctx, "initial reclaim failed", "event", "engine_reclaim_error", "module", "engine-platform/worker", "layer", "worker", "error", err)
	}

	ticker := time.NewTicker(r.consumer.cfg.ReclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.consumer.RunReclaim(ctx); err != nil {
				r.consumer.logger.ErrorContext(ctx, "reclaim failed", "event", "engine_reclaim_error", "module", "engine-platform/worker", "layer", "worker", "error", err)
			}
		}
	}
}
