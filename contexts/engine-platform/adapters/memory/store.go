// Package memory is an in-process fake of ports.Repository, mirroring the
// in-memory adapters used throughout this repository's test suites.
package memory

import (
	"context"
	"sync"
	"time"

	"corehub/contexts/engine-platform/domain/entities"
	"corehub/contexts/engine-platform/ports"
)

// Store holds every engine-owned table in memory, guarded by a single
// mutex for the lifetime of each WithinTx call, mirroring the postgres
// adapter's one-transaction-per-event shape without needing a real DB.
type Store struct {
	mu sync.Mutex

	processed map[string]bool
	sales     []entities.SalesFact
	stock     []entities.StockFact
	alerts    map[string]entities.StockAlert         // key: tenant|product
	replen    map[string]entities.ReplenishmentSuggestion
	sugg      map[string]entities.SalesSuggestion // key: tenant|type|source|suggested
	supplier  map[string]entities.SupplierPriceAlert
	quotes    map[string]entities.QuoteConversion
}

func NewStore() *Store {
	return &Store{
		processed: map[string]bool{},
		alerts:    map[string]entities.StockAlert{},
		replen:    map[string]entities.ReplenishmentSuggestion{},
		sugg:      map[string]entities.SalesSuggestion{},
		supplier:  map[string]entities.SupplierPriceAlert{},
		quotes:    map[string]entities.QuoteConversion{},
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.clone()
	if err := fn(ctx, s); err != nil {
		s.processed, s.sales, s.stock = snapshot.processed, snapshot.sales, snapshot.stock
		s.alerts, s.replen, s.sugg = snapshot.alerts, snapshot.replen, snapshot.sugg
		s.supplier, s.quotes = snapshot.supplier, snapshot.quotes
		return err
	}
	return nil
}

func (s *Store) clone() *Store {
	c := &Store{
		processed: map[string]bool{},
		alerts:    map[string]entities.StockAlert{},
		replen:    map[string]entities.ReplenishmentSuggestion{},
		sugg:      map[string]entities.SalesSuggestion{},
		supplier:  map[string]entities.SupplierPriceAlert{},
		quotes:    map[string]entities.QuoteConversion{},
	}
	for k, v := range s.processed {
		c.processed[k] = v
	}
	c.sales = append([]entities.SalesFact{}, s.sales...)
	c.stock = append([]entities.StockFact{}, s.stock...)
	for k, v := range s.alerts {
		c.alerts[k] = v
	}
	for k, v := range s.replen {
		c.replen[k] = v
	}
	for k, v := range s.sugg {
		c.sugg[k] = v
	}
	for k, v := range s.supplier {
		c.supplier[k] = v
	}
	for k, v := range s.quotes {
		c.quotes[k] = v
	}
	return c
}

func (s *Store) IsProcessed(_ context.Context, eventID string) (bool, error) {
	return s.processed[eventID], nil
}

func (s *Store) MarkProcessed(_ context.Context, eventID, _, _ string, _ any) (bool, error) {
	if s.processed[eventID] {
		return false, nil
	}
	s.processed[eventID] = true
	return true, nil
}

func (s *Store) RecordSalesFact(_ context.Context, f entities.SalesFact) (bool, error) {
	for _, existing := range s.sales {
		if existing.EventID == f.EventID {
			return false, nil
		}
	}
	s.sales = append(s.sales, f)
	return true, nil
}

func (s *Store) RecordStockFact(_ context.Context, f entities.StockFact) (bool, error) {
	for _, existing := range s.stock {
		if existing.EventID == f.EventID {
			return false, nil
		}
	}
	s.stock = append(s.stock, f)
	return true, nil
}

func (s *Store) CurrentStock(_ context.Context, tenantID, productID string) (float64, error) {
	var latest *entities.StockFact
	for i := range s.stock {
		f := &s.stock[i]
		if f.TenantID != tenantID || f.ProductID != productID {
			continue
		}
		if latest == nil || f.OccurredAt.After(latest.OccurredAt) {
			latest = f
		}
	}
	if latest != nil {
		return latest.QuantityAfter, nil
	}
	var total float64
	for _, f := range s.stock {
		if f.TenantID == tenantID && f.ProductID == productID {
			total += f.QuantityDelta
		}
	}
	return total, nil
}

func (s *Store) AverageDailySales(_ context.Context, tenantID, productID string, window time.Duration) (float64, error) {
	cutoff := time.Now().UTC().Add(-window)
	var total float64
	for _, f := range s.sales {
		if f.TenantID == tenantID && f.ProductID == productID && !f.OccurredAt.Before(cutoff) {
			total += f.Quantity
		}
	}
	days := window.Hours() / 24
	if days <= 0 {
		return 0, nil
	}
	return total / days, nil
}

func (s *Store) UpsertStockAlert(_ context.Context, a entities.StockAlert) error {
	a.Status = entities.AlertStatusActive
	s.alerts[tenantProductKey(a.TenantID, a.ProductID)] = a
	return nil
}

func (s *Store) ResolveStockAlert(_ context.Context, tenantID, productID string) error {
	key := tenantProductKey(tenantID, productID)
	if a, ok := s.alerts[key]; ok {
		a.Status = entities.AlertStatusResolved
		a.UpdatedAt = time.Now().UTC()
		s.alerts[key] = a
	}
	return nil
}

func (s *Store) UpsertReplenishmentSuggestion(_ context.Context, r entities.ReplenishmentSuggestion) error {
	r.Status = entities.AlertStatusActive
	s.replen[tenantProductKey(r.TenantID, r.ProductID)] = r
	return nil
}

func (s *Store) ClearReplenishmentSuggestion(_ context.Context, tenantID, productID string) error {
	key := tenantProductKey(tenantID, productID)
	if r, ok := s.replen[key]; ok {
		r.Status = entities.AlertStatusResolved
		r.UpdatedAt = time.Now().UTC()
		s.replen[key] = r
	}
	return nil
}

func (s *Store) OrdersContainingProduct(_ context.Context, tenantID, productID string, window time.Duration) ([]string, error) {
	cutoff := time.Now().UTC().Add(-window)
	seen := map[string]bool{}
	var out []string
	for _, f := range s.sales {
		if f.TenantID == tenantID && f.ProductID == productID && !f.OccurredAt.Before(cutoff) && !seen[f.OrderID] {
			seen[f.OrderID] = true
			out = append(out, f.OrderID)
		}
	}
	return out, nil
}

func (s *Store) OtherProductsInOrders(_ context.Context, tenantID string, orderIDs []string, excludeProductID string) (map[string][]string, error) {
	wanted := map[string]bool{}
	for _, id := range orderIDs {
		wanted[id] = true
	}
	out := map[string][]string{}
	seen := map[string]bool{}
	for _, f := range s.sales {
		if f.TenantID != tenantID || !wanted[f.OrderID] || f.ProductID == excludeProductID {
			continue
		}
		key := f.OrderID + "|" + f.ProductID
		if seen[key] {
			continue
		}
		seen[key] = true
		out[f.OrderID] = append(out[f.OrderID], f.ProductID)
	}
	return out, nil
}

func (s *Store) UpsertSalesSuggestion(_ context.Context, sug entities.SalesSuggestion) error {
	key := sug.TenantID + "|" + sug.SuggestionType + "|" + sug.SourceProductID + "|" + sug.SuggestedProductID
	s.sugg[key] = sug
	return nil
}

func (s *Store) UpsertSupplierPriceAlert(_ context.Context, a entities.SupplierPriceAlert) error {
	key := a.TenantID + "|" + a.ProductID + "|" + a.SupplierID
	a.Status = entities.AlertStatusActive
	s.supplier[key] = a
	return nil
}

func (s *Store) RecordQuoteConversion(_ context.Context, c entities.QuoteConversion) (bool, error) {
	if _, ok := s.quotes[c.EventID]; ok {
		return false, nil
	}
	s.quotes[c.EventID] = c
	return true, nil
}

func tenantProductKey(tenantID, productID string) string { return tenantID + "|" + productID }

// StockAlerts returns a snapshot, for assertions in tests.
func (s *Store) StockAlerts() map[string]entities.StockAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]entities.StockAlert, len(s.alerts))
	for k, v := range s.alerts {
		out[k] = v
	}
	return out
}

// SalesSuggestions returns a snapshot, for assertions in tests.
func (s *Store) SalesSuggestions() map[string]entities.SalesSuggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]entities.SalesSuggestion, len(s.sugg))
	for k, v := range s.sugg {
		out[k] = v
	}
	return out
}

// SalesFacts returns a snapshot, for assertions in tests.
func (s *Store) SalesFacts() []entities.SalesFact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.SalesFact{}, s.sales...)
}

// StockFacts returns a snapshot, for assertions in tests.
func (s *Store) StockFacts() []entities.StockFact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.StockFact{}, s.stock...)
}
