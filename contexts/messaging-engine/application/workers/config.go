// Package workers runs the messaging engine's three consume loops —
// inbound, outbound, and vertical-notifier — plus their reclaim loops,
// grounded on engine-platform/application/workers/consumer.go's
// XREADGROUP-driven processing style and spec §4.8.
package workers

import (
	"time"

	"corehub/internal/platform/bus"
)

// Config tunes every loop. A zero value is filled in by withDefaults.
type Config struct {
	InboundStream  string
	OutboundStream string
	DLQStream      string
	DomainStream   string

	EngineGroup   string
	NotifierGroup string
	ConsumerName  string

	BatchSize       int64
	BlockDuration   time.Duration
	ReclaimIdle     time.Duration
	ReclaimInterval time.Duration

	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.InboundStream == "" {
		c.InboundStream = "bc:whatsapp:inbound"
	}
	if c.OutboundStream == "" {
		c.OutboundStream = "bc:whatsapp:outbound"
	}
	if c.DLQStream == "" {
		c.DLQStream = "bc:whatsapp:dlq"
	}
	if c.DomainStream == "" {
		c.DomainStream = "events:materials"
	}
	if c.EngineGroup == "" {
		c.EngineGroup = "whatsapp-engine"
	}
	if c.NotifierGroup == "" {
		c.NotifierGroup = "whatsapp-notifier"
	}
	if c.ConsumerName == "" {
		c.ConsumerName = "whatsapp-worker-1"
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
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	return c
}
