// Package bootstrap is the composition root: it is the only place that
// reads config, opens infra connections, and wires ports to adapters. Every
// process entrypoint under cmd/ calls exactly one Build* function here and
// then runs what comes back.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	outboxrelay "corehub/contexts/outbox-relay"
	outboxpg "corehub/contexts/outbox-relay/adapters/postgres"
	outboxworkers "corehub/contexts/outbox-relay/application/workers"

	engineplatform "corehub/contexts/engine-platform"
	engineworkers "corehub/contexts/engine-platform/application/workers"
	enginepg "corehub/contexts/engine-platform/adapters/postgres"
	"corehub/contexts/engine-platform/domain/services"

	messagingengine "corehub/contexts/messaging-engine"
	httpadapter "corehub/contexts/messaging-engine/adapters/http"
	messagingpg "corehub/contexts/messaging-engine/adapters/postgres"
	messagingworkers "corehub/contexts/messaging-engine/application/workers"

	samplevertical "corehub/contexts/sample-vertical"

	"corehub/internal/platform/bus"
	"corehub/internal/platform/config"
	"corehub/internal/platform/crypto"
	"corehub/internal/platform/db"
	"corehub/internal/platform/httpserver"
)

// OutboxRelayApp runs the durable-queue-to-bus relay (spec §4.3).
type OutboxRelayApp struct {
	Module outboxrelay.Module
	Ops    *httpserver.Server
	Logger *slog.Logger
}

// EngineWorkerApp runs the domain-engine consumer (spec §4.4-4.6).
type EngineWorkerApp struct {
	Module engineplatform.Module
	Ops    *httpserver.Server
	Logger *slog.Logger
}

// MessagingWebhookApp serves the inbound webhook ingress HTTP surface (spec §4.7).
type MessagingWebhookApp struct {
	Module messagingengine.Module
	Ops    *httpserver.Server
	Logger *slog.Logger
}

// MessagingWorkerApp runs the inbound/outbound/notifier worker loops (spec §4.8).
type MessagingWorkerApp struct {
	Module messagingengine.Module
	Ops    *httpserver.Server
	Logger *slog.Logger
}

func newLogger(serviceName string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", serviceName)
}

// gormChecker adapts a *db.Postgres to httpserver.Checker.
type gormChecker struct{ pg *db.Postgres }

func (c gormChecker) Ping(ctx context.Context) error {
	sqlDB, err := c.pg.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// redisChecker adapts a *redis.Client to httpserver.Checker.
type redisChecker struct{ client *redis.Client }

func (c redisChecker) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func connectPostgres(cfg config.Config) (*db.Postgres, error) {
	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("bootstrap: migrate: %w", err)
	}
	pg, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	return pg, nil
}

func connectRedis(cfg config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func opsChecks(pg *db.Postgres, redisClient *redis.Client) map[string]httpserver.Checker {
	return map[string]httpserver.Checker{
		"postgres": gormChecker{pg},
		"redis":    redisChecker{redisClient},
	}
}

// BuildOutboxRelay wires the Outbox Relay module against Postgres (the
// durable queue) and Redis (the bus it relays onto).
func BuildOutboxRelay() (*OutboxRelayApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load config: %w", err)
	}
	logger := newLogger(cfg.ServiceName)

	pg, err := connectPostgres(cfg)
	if err != nil {
		return nil, err
	}
	redisClient, err := connectRedis(cfg)
	if err != nil {
		return nil, err
	}

	repo := outboxpg.NewRepository(pg.DB)
	streamBus := bus.NewRedisBus(redisClient, logger)

	mod := outboxrelay.NewModule(outboxrelay.Dependencies{
		Repository: repo,
		Bus:        streamBus,
		Config: outboxworkers.Config{
			BatchSize:         cfg.RelayBatchSize,
			PollIntervalEmpty: cfg.RelayPollIntervalEmpty,
			PollIntervalBusy:  cfg.RelayPollIntervalBusy,
			StreamMaxLen:      cfg.StreamMaxLen,
		},
		Logger: logger,
	})

	ops := httpserver.New(cfg.ServiceName, opsChecks(pg, redisClient), logger, ":"+cfg.HTTPPort)

	return &OutboxRelayApp{Module: mod, Ops: ops, Logger: logger}, nil
}

// BuildEngineWorker wires the domain-engine consumer against Postgres
// (materialized projections) and Redis (the shared domain-event stream).
func BuildEngineWorker() (*EngineWorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load config: %w", err)
	}
	logger := newLogger(cfg.ServiceName)

	pg, err := connectPostgres(cfg)
	if err != nil {
		return nil, err
	}
	redisClient, err := connectRedis(cfg)
	if err != nil {
		return nil, err
	}

	repo := enginepg.NewRepository(pg.DB)
	streamBus := bus.NewRedisBus(redisClient, logger)

	mod := engineplatform.NewModule(engineplatform.Dependencies{
		Repository:  repo,
		Bus:         streamBus,
		StockPolicy: services.StockPolicy{},
		SalesPolicy: services.SalesPolicy{},
		WorkerConfig: engineworkers.Config{
			StreamName:      cfg.EnginesStreamName,
			GroupName:       cfg.EnginesGroupName,
			ConsumerName:    cfg.EnginesConsumerName,
			BatchSize:       cfg.BatchSize,
			BlockDuration:   cfg.BlockDuration,
			ReclaimIdle:     cfg.ReclaimIdleMs,
			ReclaimInterval: cfg.ReclaimIntervalSec,
		},
		Logger: logger,
	})

	ops := httpserver.New(cfg.ServiceName, opsChecks(pg, redisClient), logger, ":"+cfg.HTTPPort)

	return &EngineWorkerApp{Module: mod, Ops: ops, Logger: logger}, nil
}

func buildMessagingEngine(cfg config.Config, logger *slog.Logger) (messagingengine.Module, *db.Postgres, *redis.Client, error) {
	pg, err := connectPostgres(cfg)
	if err != nil {
		return messagingengine.Module{}, nil, nil, err
	}
	redisClient, err := connectRedis(cfg)
	if err != nil {
		return messagingengine.Module{}, nil, nil, err
	}

	keyring, err := crypto.NewKeyRing([]byte(cfg.CredentialMasterKey))
	if err != nil {
		return messagingengine.Module{}, nil, nil, fmt.Errorf("bootstrap: build credential keyring: %w", err)
	}

	repo := messagingpg.NewRepository(pg.DB)
	streamBus := bus.NewRedisBus(redisClient, logger)

	mod := messagingengine.NewModule(messagingengine.Dependencies{
		Repository: repo,
		Bus:        streamBus,
		KeyRing:    keyring,
		InboundConfig: httpadapter.Config{
			InboundStream: cfg.WhatsAppInboundStream,
			StreamMaxLen:  cfg.StreamMaxLen,
			VerifyToken:   cfg.ProviderVerifyToken,
			WebhookSecret: cfg.ProviderWebhookSecret,
		},
		WorkerConfig: messagingworkers.Config{
			InboundStream:   cfg.WhatsAppInboundStream,
			OutboundStream:  cfg.WhatsAppOutboundStream,
			DLQStream:       cfg.WhatsAppDLQStream,
			DomainStream:    cfg.EnginesStreamName,
			EngineGroup:     cfg.EngineGroupName,
			NotifierGroup:   cfg.NotifierGroupName,
			ConsumerName:    whatsappConsumerName(),
			BatchSize:       cfg.BatchSize,
			BlockDuration:   cfg.BlockDuration,
			ReclaimIdle:     cfg.ReclaimIdleMs,
			ReclaimInterval: cfg.ReclaimIntervalSec,
			MaxRetries:      cfg.MaxRetries,
		},
		Logger: logger,
	})

	return mod, pg, redisClient, nil
}

func whatsappConsumerName() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return "whatsapp-worker-" + h
	}
	return "whatsapp-worker-1"
}

// BuildMessagingWebhook wires the messaging engine's webhook ingress HTTP
// handler; it shares Dependencies construction with BuildMessagingWorker but
// only the HTTP process serves Module.Handler, mounted on the ops server's
// own mux alongside /healthz and /readyz.
func BuildMessagingWebhook() (*MessagingWebhookApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load config: %w", err)
	}
	logger := newLogger(cfg.ServiceName)

	mod, pg, redisClient, err := buildMessagingEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	ops := httpserver.New(cfg.ServiceName, opsChecks(pg, redisClient), logger, ":"+cfg.HTTPPort)
	mod.Handler.Register(ops.Mux(), "/webhooks/whatsapp")

	return &MessagingWebhookApp{Module: mod, Ops: ops, Logger: logger}, nil
}

// BuildMessagingWorker wires the messaging engine's inbound/outbound/notifier
// worker loops; only Module.Runner is used by the entrypoint.
func BuildMessagingWorker() (*MessagingWorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load config: %w", err)
	}
	logger := newLogger(cfg.ServiceName)

	mod, pg, redisClient, err := buildMessagingEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	ops := httpserver.New(cfg.ServiceName, opsChecks(pg, redisClient), logger, ":"+cfg.HTTPPort)

	return &MessagingWorkerApp{Module: mod, Ops: ops, Logger: logger}, nil
}

// SampleVerticalApp holds the demo producer a seed/smoke-test run drives.
type SampleVerticalApp struct {
	Module samplevertical.Module
	Logger *slog.Logger
}

// BuildSampleVertical wires the sample vertical's producer directly onto
// the same outbox table the relay drains, with no HTTP surface of its own.
func BuildSampleVertical() (*SampleVerticalApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load config: %w", err)
	}
	logger := newLogger(cfg.ServiceName)

	pg, err := connectPostgres(cfg)
	if err != nil {
		return nil, err
	}

	writer := outboxpg.NewRepository(pg.DB)
	mod := samplevertical.NewModule(samplevertical.Dependencies{Writer: writer})

	return &SampleVerticalApp{Module: mod, Logger: logger}, nil
}
