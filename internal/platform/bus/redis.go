package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"corehub/internal/platform/logging"
	"corehub/internal/shared/events"
)

// RedisBus is the production Bus implementation, grounded on the group
// creation, read, ack, pending and claim semantics of the stream helper the
// original service used (ensure_stream_group / publish_to_stream /
// read_from_stream / ack_message / get_pending_messages / claim_messages).
type RedisBus struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisBus builds a bus client against an already-configured redis.Client.
func NewRedisBus(client *redis.Client, logger *slog.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logging.Resolve(logger)}
}

func (b *RedisBus) EnsureGroup(ctx context.Context, stream, group, startID string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, startID).Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return fmt.Errorf("bus: ensure group %s/%s: %w", stream, group, err)
}

func (b *RedisBus) Publish(ctx context.Context, stream string, env events.Envelope, maxLen int64) (string, error) {
	fields, err := encodeFields(env)
	if err != nil {
		return "", fmt.Errorf("bus: encode fields: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: stream,
		Values: fields,
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	id, err := b.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("bus: publish to %s: %w", stream, err)
	}
	b.logger.DebugContext(ctx, "bus message published", "event", "bus_publish", "module", "platform/bus", "stream", stream, "event_id", env.EventID, "bus_message_id", id)
	return id, nil
}

func (b *RedisBus) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Message, error) {
	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("bus: read group %s/%s: %w", stream, group, err)
	}
	var out []Message
	for _, streamRes := range res {
		for _, raw := range streamRes.Messages {
			env, decodeErr := decodeFields(raw.ID, raw.Values)
			if decodeErr != nil {
				b.logger.ErrorContext(ctx, "dropping malformed bus entry", "event", "bus_decode_failed", "module", "platform/bus", "stream", stream, "bus_message_id", raw.ID, "error", decodeErr)
				continue
			}
			out = append(out, Message{ID: raw.ID, Envelope: env})
		}
	}
	return out, nil
}

func (b *RedisBus) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := b.client.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("bus: ack %s/%s: %w", stream, group, err)
	}
	return nil
}

func (b *RedisBus) ListPending(ctx context.Context, stream, group string, minIdle time.Duration, count int64) ([]PendingEntry, error) {
	res, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("bus: list pending %s/%s: %w", stream, group, err)
	}
	out := make([]PendingEntry, 0, len(res))
	for _, e := range res {
		out = append(out, PendingEntry{
			ID:            e.ID,
			Consumer:      e.Consumer,
			Idle:          e.Idle,
			DeliveryCount: e.RetryCount,
		})
	}
	return out, nil
}

func (b *RedisBus) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raws, err := b.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("bus: claim %s/%s: %w", stream, group, err)
	}
	out := make([]Message, 0, len(raws))
	for _, raw := range raws {
		env, decodeErr := decodeFields(raw.ID, raw.Values)
		if decodeErr != nil {
			b.logger.ErrorContext(ctx, "dropping malformed claimed entry", "event", "bus_decode_failed", "module", "platform/bus", "stream", stream, "bus_message_id", raw.ID, "error", decodeErr)
			continue
		}
		out = append(out, Message{ID: raw.ID, Envelope: env})
	}
	return out, nil
}

func encodeFields(env events.Envelope) (map[string]any, error) {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(env.Metadata)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"event_id":       env.EventID,
		"event_type":     string(env.EventType),
		"tenant_id":      env.TenantID,
		"vertical":       env.Vertical,
		"occurred_at":    env.OccurredAt.UTC().Format(time.RFC3339Nano),
		"version":        strconv.Itoa(env.Version),
		"payload":        string(payload),
		"correlation_id": env.CorrelationID,
		"metadata":       string(metadata),
	}, nil
}

func decodeFields(id string, values map[string]any) (events.Envelope, error) {
	get := func(key string) string {
		v, _ := values[key].(string)
		return v
	}
	occurredAt, err := time.Parse(time.RFC3339Nano, get("occurred_at"))
	if err != nil {
		return events.Envelope{}, fmt.Errorf("occurred_at: %w", err)
	}
	version, _ := strconv.Atoi(get("version"))

	var payload map[string]any
	if raw := get("payload"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return events.Envelope{}, fmt.Errorf("payload: %w", err)
		}
	}
	if payload == nil {
		payload = map[string]any{}
	}

	var metadata map[string]any
	if raw := get("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return events.Envelope{}, fmt.Errorf("metadata: %w", err)
		}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata[events.MetadataBusMessageID] = id

	return events.Envelope{
		EventID:       get("event_id"),
		EventType:     events.EventType(get("event_type")),
		TenantID:      get("tenant_id"),
		Vertical:      get("vertical"),
		OccurredAt:    occurredAt,
		Version:       version,
		CorrelationID: get("correlation_id"),
		Payload:       payload,
		Metadata:      metadata,
	}, nil
}
