// Package v1 is the generated, cross-runtime event contract.
// This package is generated-contract-only and must stay backward compatible.
package v1

import (
	"encoding/json"
	"time"
)

// Envelope is the canonical envelope shape published on every stream.
// Producers and consumers across every bounded context marshal/unmarshal
// this exact shape; field names are wire-stable.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	TenantID      string          `json:"tenant_id"`
	Vertical      string          `json:"vertical"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
}
