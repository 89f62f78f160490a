// Package application holds the sample vertical's producer: the thinnest
// possible outbox writer, giving the outbox relay and the downstream
// engine/messaging consumers a real event source to exercise end to end.
// Full vertical business logic (catalog, pricing, checkout) is out of
// scope; this only emits the domain events those consumers already know
// how to handle.
package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"corehub/contexts/sample-vertical/ports"
	"corehub/internal/shared/events"
	"corehub/internal/shared/outbox"
)

// Vertical is the name this producer's events are routed under; the outbox
// relay's default router sends them to stream "events:materials", which is
// also the engine worker's and the messaging notifier's shared domain
// stream.
const Vertical = "materials"

// Producer appends domain events to the outbox inside one durable write
// per call, each with a fresh event id so retried calls from the same
// logical operation would need their own idempotency key upstream (the
// outbox table itself only dedupes on event_id, not on business content).
type Producer struct {
	writer ports.OutboxWriter
}

func NewProducer(writer ports.OutboxWriter) *Producer {
	return &Producer{writer: writer}
}

// LineItem is one product line of a sale, mirroring the shape the engine
// router's sale_recorded handler decodes.
type LineItem struct {
	ProductID  string
	Quantity   float64
	UnitPrice  float64
	TotalValue float64
}

// RecordSale emits a sale_recorded event, consumed by the stock and sales
// engines to derive stock movements and cross-sell suggestions.
func (p *Producer) RecordSale(ctx context.Context, tenantID, orderID, clientID string, items []LineItem) error {
	rawItems := make([]map[string]any, 0, len(items))
	for _, item := range items {
		rawItems = append(rawItems, map[string]any{
			"product_id":  item.ProductID,
			"quantity":    item.Quantity,
			"unit_price":  item.UnitPrice,
			"total_value": item.TotalValue,
		})
	}
	return p.append(ctx, tenantID, events.EventSaleRecorded, map[string]any{
		"order_id":  orderID,
		"client_id": clientID,
		"items":     rawItems,
	})
}

// RecordQuoteConverted emits a quote_converted event, consumed by the
// engine's quote-conversion projection.
func (p *Producer) RecordQuoteConverted(ctx context.Context, tenantID, quoteID, orderID string) error {
	return p.append(ctx, tenantID, events.EventQuoteConverted, map[string]any{
		"quote_id": quoteID,
		"order_id": orderID,
	})
}

// RecordQuoteCreated emits a quote_created event, consumed only by the
// messaging engine's vertical-notifier loop to queue a WhatsApp template
// send, never by the stock/sales engines.
func (p *Producer) RecordQuoteCreated(ctx context.Context, tenantID, customerPhone, customerName, quoteNumber string, totalValue float64) error {
	return p.append(ctx, tenantID, events.EventQuoteCreated, map[string]any{
		"customer_phone": customerPhone,
		"customer_name":  customerName,
		"quote_number":   quoteNumber,
		"total_value":    fmt.Sprintf("%.2f", totalValue),
	})
}

// RecordOrderStatusChanged emits an order_status_changed event for the
// notifier loop's order_status_template.
func (p *Producer) RecordOrderStatusChanged(ctx context.Context, tenantID, customerPhone, customerName, orderNumber, status string) error {
	return p.append(ctx, tenantID, events.EventOrderStatusChanged, map[string]any{
		"customer_phone": customerPhone,
		"customer_name":  customerName,
		"order_number":   orderNumber,
		"status":         status,
	})
}

// RecordDeliveryStarted emits a delivery_started event for the notifier
// loop's delivery_started_template.
func (p *Producer) RecordDeliveryStarted(ctx context.Context, tenantID, customerPhone, customerName, orderNumber, estimatedTime string) error {
	return p.append(ctx, tenantID, events.EventDeliveryStarted, map[string]any{
		"customer_phone": customerPhone,
		"customer_name":  customerName,
		"order_number":   orderNumber,
		"estimated_time": estimatedTime,
	})
}

// RecordDeliveryCompleted emits a delivery_completed event for the notifier
// loop's delivery_completed_template.
func (p *Producer) RecordDeliveryCompleted(ctx context.Context, tenantID, customerPhone, customerName, orderNumber string) error {
	return p.append(ctx, tenantID, events.EventDeliveryCompleted, map[string]any{
		"customer_phone": customerPhone,
		"customer_name":  customerName,
		"order_number":   orderNumber,
	})
}

func (p *Producer) append(ctx context.Context, tenantID string, eventType events.EventType, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sample-vertical: marshal payload: %w", err)
	}
	row := outbox.Row{
		EventID:   uuid.NewString(),
		TenantID:  tenantID,
		EventType: string(eventType),
		Vertical:  Vertical,
		Payload:   raw,
		Version:   1,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.writer.AppendRow(ctx, row); err != nil {
		return fmt.Errorf("sample-vertical: append outbox row for %s: %w", eventType, err)
	}
	return nil
}
