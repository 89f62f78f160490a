// Package router dispatches decoded events to the stock and sales engines,
// grounded on engines_core's EventRouter: one router, multiple engines per
// event type, all writes inside a single transaction per event.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"corehub/contexts/engine-platform/domain/entities"
	"corehub/contexts/engine-platform/domain/services"
	"corehub/contexts/engine-platform/ports"
	"corehub/internal/platform/logging"
	"corehub/internal/shared/events"
)

// lineItemNamespace seeds the UUIDv5 derivation of per-item fact event ids,
// so the same outer event id always derives the same per-product ids
// across retries of a partially-applied batch.
var lineItemNamespace = uuid.MustParse("6f1b1b4e-0f8e-4a9a-9b8e-4e6b6a9f5c3d")

// Router applies a decoded event to the engine-owned tables it affects.
// EventType values this router does not recognize are a no-op, never an
// error: the stream evolves ahead of any one consumer.
type Router struct {
	stock  *services.StockEngine
	sales  *services.SalesEngine
	logger *slog.Logger
}

func New(stock *services.StockEngine, sales *services.SalesEngine, logger *slog.Logger) *Router {
	return &Router{stock: stock, sales: sales, logger: logging.Resolve(logger)}
}

// lineItem mirrors the shape of one entry in a sale_recorded payload's
// items array.
type lineItem struct {
	ProductID  string  `json:"product_id"`
	Quantity   float64 `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	TotalValue float64 `json:"total_value"`
}

// Handle applies env inside repo's transaction, assumed to already be
// bound to a single database transaction by the caller (application/
// workers, via Repository.WithinTx).
func (r *Router) Handle(ctx context.Context, repo ports.Repository, env events.Envelope) error {
	switch env.EventType {
	case events.EventSaleRecorded:
		return r.handleSaleRecorded(ctx, repo, env)
	case events.EventQuoteConverted:
		return r.handleQuoteConverted(ctx, repo, env)
	case events.EventStockUpdated:
		return r.handleStockUpdated(ctx, repo, env)
	default:
		r.logger.DebugContext(ctx, "no engine handles this event type", "event", "engine_event_unhandled", "module", "engine-platform/router", "layer", "application", "event_type", string(env.EventType))
		return nil
	}
}

func (r *Router) handleSaleRecorded(ctx context.Context, repo ports.Repository, env events.Envelope) error {
	orderID, _ := env.Payload["order_id"].(string)
	clientID, _ := env.Payload["client_id"].(string)
	deliveredAt := env.OccurredAt
	if v, ok := env.Payload["delivered_at"].(string); ok && v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			deliveredAt = t
		}
	}

	items, err := decodeLineItems(env.Payload["items"])
	if err != nil {
		return fmt.Errorf("sale_recorded: %w", err)
	}

	affectedProducts := make([]string, 0, len(items))

	for _, item := range items {
		itemEventID := uuid.NewSHA1(deriveNamespace(env.EventID), []byte(item.ProductID)).String()

		totalValue := item.TotalValue
		if totalValue == 0 {
			totalValue = item.Quantity * item.UnitPrice
		}

		salesOK, err := repo.RecordSalesFact(ctx, entities.SalesFact{
			EventID:    itemEventID,
			TenantID:   env.TenantID,
			OrderID:    orderID,
			ProductID:  item.ProductID,
			ClientID:   clientID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalValue: totalValue,
			OccurredAt: deliveredAt,
		})
		if err != nil {
			return fmt.Errorf("sale_recorded: record sales fact: %w", err)
		}
		if !salesOK {
			continue
		}

		currentStock, err := repo.CurrentStock(ctx, env.TenantID, item.ProductID)
		if err != nil {
			return fmt.Errorf("sale_recorded: current stock: %w", err)
		}
		newStock := currentStock - item.Quantity
		if newStock < 0 {
			newStock = 0
		}

		stockEventID := uuid.NewSHA1(deriveNamespace(env.EventID), []byte("stock_"+item.ProductID)).String()
		if _, err := repo.RecordStockFact(ctx, entities.StockFact{
			EventID:       stockEventID,
			TenantID:      env.TenantID,
			ProductID:     item.ProductID,
			MovementType:  entities.MovementSale,
			QuantityDelta: -item.Quantity,
			QuantityAfter: newStock,
			ReferenceID:   orderID,
			OccurredAt:    deliveredAt,
		}); err != nil {
			return fmt.Errorf("sale_recorded: record stock fact: %w", err)
		}

		affectedProducts = append(affectedProducts, item.ProductID)
	}

	for _, productID := range affectedProducts {
		if err := r.stock.RecomputeAlert(ctx, repo, env.TenantID, productID); err != nil {
			return fmt.Errorf("sale_recorded: recompute stock alert: %w", err)
		}
		if _, err := r.sales.RecomputeSuggestionsForProduct(ctx, repo, env.TenantID, productID); err != nil {
			return fmt.Errorf("sale_recorded: recompute sales suggestions: %w", err)
		}
	}

	r.logger.InfoContext(ctx, "sale_recorded processed", "event", "engine_sale_recorded_processed", "module", "engine-platform/router", "layer", "application", "tenant_id", env.TenantID, "order_id", orderID, "items", len(items))
	return nil
}

// handleStockUpdated applies a receipt or manual adjustment reported
// directly against a product's stock, independent of any sale.
func (r *Router) handleStockUpdated(ctx context.Context, repo ports.Repository, env events.Envelope) error {
	productID, _ := env.Payload["product_id"].(string)
	if productID == "" {
		return fmt.Errorf("stock_updated: missing product_id")
	}
	referenceID, _ := env.Payload["reference_id"].(string)

	movementType := entities.MovementAdjustment
	if v, ok := env.Payload["movement_type"].(string); ok && v == entities.MovementReceived {
		movementType = entities.MovementReceived
	}

	quantityDelta := toFloat(env.Payload["quantity_delta"])

	currentStock, err := repo.CurrentStock(ctx, env.TenantID, productID)
	if err != nil {
		return fmt.Errorf("stock_updated: current stock: %w", err)
	}
	newStock := currentStock + quantityDelta
	if newStock < 0 {
		newStock = 0
	}

	ok, err := repo.RecordStockFact(ctx, entities.StockFact{
		EventID:       env.EventID,
		TenantID:      env.TenantID,
		ProductID:     productID,
		MovementType:  movementType,
		QuantityDelta: quantityDelta,
		QuantityAfter: newStock,
		ReferenceID:   referenceID,
		OccurredAt:    env.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("stock_updated: record stock fact: %w", err)
	}
	if !ok {
		return nil
	}

	if err := r.stock.RecomputeAlert(ctx, repo, env.TenantID, productID); err != nil {
		return fmt.Errorf("stock_updated: recompute stock alert: %w", err)
	}

	r.logger.InfoContext(ctx, "stock_updated processed", "event", "engine_stock_updated_processed", "module", "engine-platform/router", "layer", "application", "tenant_id", env.TenantID, "product_id", productID, "movement_type", movementType)
	return nil
}

func (r *Router) handleQuoteConverted(ctx context.Context, repo ports.Repository, env events.Envelope) error {
	quoteID, _ := env.Payload["quote_id"].(string)
	orderID, _ := env.Payload["order_id"].(string)

	if _, err := repo.RecordQuoteConversion(ctx, entities.QuoteConversion{
		EventID:    env.EventID,
		TenantID:   env.TenantID,
		QuoteID:    quoteID,
		OrderID:    orderID,
		OccurredAt: env.OccurredAt,
	}); err != nil {
		return fmt.Errorf("quote_converted: %w", err)
	}

	r.logger.InfoContext(ctx, "quote_converted processed", "event", "engine_quote_converted_processed", "module", "engine-platform/router", "layer", "application", "tenant_id", env.TenantID, "quote_id", quoteID)
	return nil
}

func decodeLineItems(raw any) ([]lineItem, error) {
	rawItems, ok := raw.([]any)
	if !ok {
		return nil, nil
	}
	items := make([]lineItem, 0, len(rawItems))
	for _, ri := range rawItems {
		m, ok := ri.(map[string]any)
		if !ok {
			continue
		}
		item := lineItem{}
		item.ProductID, _ = m["product_id"].(string)
		item.Quantity = toFloat(m["quantity"])
		item.UnitPrice = toFloat(m["unit_price"])
		item.TotalValue = toFloat(m["total_value"])
		if item.ProductID == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

// deriveNamespace turns the outer event id into a stable UUID namespace for
// per-item derivation, tolerating event ids that are not themselves UUIDs.
func deriveNamespace(eventID string) uuid.UUID {
	if id, err := uuid.Parse(eventID); err == nil {
		return id
	}
	return uuid.NewSHA1(lineItemNamespace, []byte(eventID))
}
