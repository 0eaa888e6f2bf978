// README: Pricing service computes the ball cost of accepting an order.
package pricing

import (
	"context"
	"errors"
	"sync"

	"caravan/internal/config"
	"caravan/internal/modules/order"
)

type RateStore interface {
	GetRate(ctx context.Context, category string) (Rate, error)
	SetRate(ctx context.Context, r Rate) error
}

type Service struct {
	store    RateStore
	defaults map[order.Category]Rate
}

// NewService falls back to the configured defaults when store is nil or has no row.
func NewService(store RateStore, cfg config.PricingConfig) *Service {
	return &Service{
		store: store,
		defaults: map[order.Category]Rate{
			order.CategoryTaxi:   {Category: string(order.CategoryTaxi), PerUnit: cfg.TaxiPerPassenger},
			order.CategoryParcel: {Category: string(order.CategoryParcel), Flat: cfg.ParcelFlat},
			order.CategoryCargo:  {Category: string(order.CategoryCargo), Flat: cfg.CargoFlat},
		},
	}
}

// Cost returns the balls a driver pays to accept an order of category with quantity units.
func (s *Service) Cost(ctx context.Context, category order.Category, quantity int) (int64, error) {
	r, err := s.Rate(ctx, category)
	if err != nil {
		return 0, err
	}
	return r.Cost(quantity), nil
}

func (s *Service) Rate(ctx context.Context, category order.Category) (Rate, error) {
	def, ok := s.defaults[category]
	if !ok {
		return Rate{}, ErrNotPriced
	}
	if s.store == nil {
		return def, nil
	}
	r, err := s.store.GetRate(ctx, string(category))
	if errors.Is(err, ErrRateNotFound) {
		return def, nil
	}
	return r, err
}

func (s *Service) SetRate(ctx context.Context, category order.Category, perUnit, flat int64) error {
	if _, ok := s.defaults[category]; !ok {
		return ErrNotPriced
	}
	if perUnit < 0 || flat < 0 {
		return ErrInvalidRate
	}
	return s.store.SetRate(ctx, Rate{Category: string(category), PerUnit: perUnit, Flat: flat})
}

// MemoryStore keeps rate overrides in a map.
type MemoryStore struct {
	mu    sync.RWMutex
	rates map[string]Rate
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rates: map[string]Rate{}}
}

func (m *MemoryStore) GetRate(_ context.Context, category string) (Rate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rates[category]
	if !ok {
		return Rate{}, ErrRateNotFound
	}
	return r, nil
}

func (m *MemoryStore) SetRate(_ context.Context, r Rate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[r.Category] = r
	return nil
}
