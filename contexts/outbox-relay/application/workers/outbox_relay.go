// Package workers implements the Outbox Relay (C5): drains C3 into C4,
// marking rows published. Grounded on the policy-changed relay's
// RunOnce/logging shape, generalized from a single-tenant relay into a
// generic multi-vertical drain loop.
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"corehub/contexts/outbox-relay/ports"
	"corehub/internal/platform/bus"
	"corehub/internal/platform/logging"
	"corehub/internal/shared/events"
	"corehub/internal/shared/outbox"
)

// Config tunes batch size, backoff, and stream trimming for the relay loop.
type Config struct {
	BatchSize              int
	PollIntervalEmpty      time.Duration
	PollIntervalBusy       time.Duration
	StreamMaxLen           int64
	MaxBackoff             time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.PollIntervalEmpty <= 0 {
		c.PollIntervalEmpty = 500 * time.Millisecond
	}
	if c.PollIntervalBusy <= 0 {
		c.PollIntervalBusy = 50 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	return c
}

// OutboxRelay drains pending outbox rows to the stream bus, one batch per
// RunOnce call. Run wraps RunOnce in a cooperative-shutdown loop with
// bounded exponential backoff on empty batches.
type OutboxRelay struct {
	repo   ports.OutboxRepository
	router ports.Router
	bus    bus.Bus
	cfg    Config
	logger *slog.Logger

	consecutiveEmpty int
}

func NewOutboxRelay(repo ports.OutboxRepository, router ports.Router, b bus.Bus, cfg Config, logger *slog.Logger) *OutboxRelay {
	return &OutboxRelay{
		repo:   repo,
		router: router,
		bus:    b,
		cfg:    cfg.withDefaults(),
		logger: logging.Resolve(logger),
	}
}

// RunOnce claims one batch, publishes every row it can, marks published
// rows, and commits. A row whose publish fails is left unpublished and
// retried on the next call; the batch still commits so other rows'
// progress is not lost.
func (r *OutboxRelay) RunOnce(ctx context.Context) (published int, err error) {
	rows, tx, err := r.repo.ClaimBatch(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		_ = tx.Rollback()
		return 0, nil
	}

	now := time.Now().UTC()
	for _, row := range rows {
		env, decodeErr := rowToEnvelope(row)
		if decodeErr != nil {
			r.logger.ErrorContext(ctx, "dropping unpublishable outbox row", "event", "outbox_row_malformed", "module", "outbox-relay/worker", "layer", "worker", "outbox_id", row.ID, "event_id", row.EventID, "error", decodeErr)
			continue
		}
		stream := r.router.StreamFor(row)
		if _, pubErr := r.bus.Publish(ctx, stream, env, r.cfg.StreamMaxLen); pubErr != nil {
			r.logger.ErrorContext(ctx, "publish failed, leaving row unpublished", "event", "outbox_publish_failed", "module", "outbox-relay/worker", "layer", "worker", "outbox_id", row.ID, "event_id", row.EventID, "stream", stream, "error", pubErr)
			continue
		}
		if markErr := tx.MarkPublished(ctx, row.ID, now); markErr != nil {
			r.logger.ErrorContext(ctx, "mark published failed", "event", "outbox_mark_published_failed", "module", "outbox-relay/worker", "layer", "worker", "outbox_id", row.ID, "error", markErr)
			continue
		}
		published++
	}

	if err := tx.Commit(); err != nil {
		return published, err
	}

	r.logger.InfoContext(ctx, "relay batch processed", "event", "outbox_batch_processed", "module", "outbox-relay/worker", "layer", "worker", "claimed", len(rows), "published", published)
	return published, nil
}

// Run polls RunOnce in a loop until ctx is cancelled, sleeping with bounded
// exponential backoff when a batch was empty and briefly otherwise.
func (r *OutboxRelay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopping", "event", "outbox_relay_stopping", "module", "outbox-relay/worker", "layer", "worker")
			return nil
		default:
		}

		published, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.ErrorContext(ctx, "relay batch failed", "event", "outbox_batch_error", "module", "outbox-relay/worker", "layer", "worker", "error", err)
			r.consecutiveEmpty++
		} else if published == 0 {
			r.consecutiveEmpty++
		} else {
			r.consecutiveEmpty = 0
		}

		sleep := r.cfg.PollIntervalBusy
		if r.consecutiveEmpty > 0 {
			sleep = r.backoff()
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}
	}
}

// backoff implements min(pollIntervalEmpty * 1.5^min(consecutiveEmpty,5), maxBackoff).
func (r *OutboxRelay) backoff() time.Duration {
	exp := r.consecutiveEmpty
	if exp > 5 {
		exp = 5
	}
	factor := math.Pow(1.5, float64(exp))
	d := time.Duration(float64(r.cfg.PollIntervalEmpty) * factor)
	if d > r.cfg.MaxBackoff {
		d = r.cfg.MaxBackoff
	}
	return d
}

// rowToEnvelope builds the envelope that gets published from an outbox
// row's columns; row.Payload holds only the domain payload (E2), not a
// full encoded envelope.
func rowToEnvelope(row outbox.Row) (events.Envelope, error) {
	var payload map[string]any
	if len(row.Payload) > 0 {
		if err := json.Unmarshal(row.Payload, &payload); err != nil {
			return events.Envelope{}, fmt.Errorf("outbox row %d: decode payload: %w", row.ID, err)
		}
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return events.Envelope{
		EventID:    row.EventID,
		EventType:  events.EventType(row.EventType),
		TenantID:   row.TenantID,
		Vertical:   row.Vertical,
		OccurredAt: row.CreatedAt,
		Version:    row.Version,
		Payload:    payload,
		Metadata:   map[string]any{},
	}, nil
}
