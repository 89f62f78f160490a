// Package workers runs the engine worker's consume and reclaim loops,
// grounded on engines_core/consumer.py: XREADGROUP-driven processing with
// idempotency enforced inside the same transaction as the writes it guards,
// XACK only after a successful commit.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"corehub/contexts/engine-platform/application/router"
	enginerrors "corehub/contexts/engine-platform/domain/errors"
	"corehub/contexts/engine-platform/ports"
	"corehub/internal/platform/bus"
	"corehub/internal/platform/logging"
	"corehub/internal/shared/events"
)

// Config tunes the consume and reclaim loops.
type Config struct {
	StreamName         string
	GroupName          string
	ConsumerName       string
	BatchSize          int64
	BlockDuration      time.Duration
	ReclaimIdle        time.Duration
	ReclaimInterval    time.Duration
}

func (c Config) withDefaults() Config {
	if c.StreamName == "" {
		c.StreamName = "events:materials"
	}
	if c.GroupName == "" {
		c.GroupName = "engines"
	}
	if c.ConsumerName == "" {
		c.ConsumerName = "engines-worker"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.BlockDuration <= 0 {
		c.BlockDuration = 5 * time.Second
	}
	if c.ReclaimIdle <= 0 {
		c.ReclaimIdle = bus.DefaultReclaimIdle
	}
	if c.ReclaimInterval <= 0 {
		c.ReclaimInterval = bus.DefaultReclaimInterval
	}
	return c
}

// Consumer drives one consumer-group reader over one stream, applying
// every delivered event through router.Router inside a single transaction
// per event and acking only after that transaction commits.
type Consumer struct {
	repo   ports.Repository
	bus    bus.Bus
	router *router.Router
	cfg    Config
	logger *slog.Logger
}

func NewConsumer(repo ports.Repository, b bus.Bus, r *router.Router, cfg Config, logger *slog.Logger) *Consumer {
	return &Consumer{repo: repo, bus: b, router: r, cfg: cfg.withDefaults(), logger: logging.Resolve(logger)}
}

// EnsureGroup creates the stream+group if they don't already exist, replaying
// the stream from the start ("0") so a fresh engine worker catches up on
// history instead of only new deliveries.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	return c.bus.EnsureGroup(ctx, c.cfg.StreamName, c.cfg.GroupName, "0")
}

// RunOnce reads one batch and applies it, returning how many messages were
// processed (including no-op skips of already-processed events).
func (c *Consumer) RunOnce(ctx context.Context) (int, error) {
	messages, err := c.bus.ReadGroup(ctx, c.cfg.StreamName, c.cfg.GroupName, c.cfg.ConsumerName, c.cfg.BatchSize, c.cfg.BlockDuration)
	if err != nil {
		return 0, fmt.Errorf("engine worker: read group: %w", err)
	}

	processed := 0
	for _, msg := range messages {
		if err := c.applyAndAck(ctx, msg); err != nil {
			c.logger.ErrorContext(ctx, "message not acked, will be redelivered or reclaimed", "event", "engine_message_failed", "module", "engine-platform/worker", "layer", "worker", "message_id", msg.ID, "event_id", msg.Envelope.EventID, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

// RunReclaim lists pending entries idle at least ReclaimIdle, claims them
// for this consumer, and applies them the same way as a fresh delivery.
// Idempotency makes redelivery safe even if the original consumer is still
// alive and finishes its own attempt concurrently.
func (c *Consumer) RunReclaim(ctx context.Context) (int, error) {
	pending, err := c.bus.ListPending(ctx, c.cfg.StreamName, c.cfg.GroupName, c.cfg.ReclaimIdle, 100)
	if err != nil {
		return 0, fmt.Errorf("engine worker: list pending: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.ID
	}

	claimed, err := c.bus.Claim(ctx, c.cfg.StreamName, c.cfg.GroupName, c.cfg.ConsumerName, c.cfg.ReclaimIdle, ids...)
	if err != nil {
		return 0, fmt.Errorf("engine worker: claim: %w", err)
	}
	if len(claimed) > 0 {
		c.logger.InfoContext(ctx, "reclaimed pending entries", "event", "engine_reclaim", "module", "engine-platform/worker", "layer", "worker", "count", len(claimed))
	}

	processed := 0
	for _, msg := range claimed {
		if err := c.applyAndAck(ctx, msg); err != nil {
			c.logger.ErrorContext(ctx, "reclaimed message not acked", "event", "engine_reclaim_failed", "module", "engine-platform/worker", "layer", "worker", "message_id", msg.ID, "event_id", msg.Envelope.EventID, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

// applyAndAck processes one message: idempotency check, engine dispatch,
// and idempotency mark all inside one transaction, then XACK only once
// that transaction has committed.
func (c *Consumer) applyAndAck(ctx context.Context, msg bus.Message) error {
	env := msg.Envelope

	err := c.repo.WithinTx(ctx, func(ctx context.Context, tx ports.Repository) error {
		already, err := tx.IsProcessed(ctx, env.EventID)
		if err != nil {
			return fmt.Errorf("check processed: %w", err)
		}
		if already {
			return enginerrors.ErrAlreadyProcessed
		}

		if err := c.router.Handle(ctx, tx, env); err != nil {
			return err
		}

		marked, err := tx.MarkProcessed(ctx, env.EventID, env.TenantID, string(env.EventType), nil)
		if err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		if !marked {
			// Another worker committed first; treat as a no-op, not a
			// failure, and let the ack below still go through.
			return enginerrors.ErrAlreadyProcessed
		}
		return nil
	})

	if err != nil && !errors.Is(err, enginerrors.ErrAlreadyProcessed) {
		return err
	}

	return c.bus.Ack(ctx, c.cfg.StreamName, c.cfg.GroupName, msg.ID)
}
