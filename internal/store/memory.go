package store

import (
	"context"
	"sync"
	"time"

	"trade-strategy-bot-go/internal/models"
)

// memoryStore keeps everything in process memory. Used for backtests
// and in tests, where nothing must survive a restart.
type memoryStore struct {
	mu         sync.Mutex
	orders     map[string][]models.Order
	lastTrade  map[string]int64
	portfolios map[string]*models.Portfolio
	now        func() time.Time
}

// NewMemory returns an empty in-memory Store.
func NewMemory() Store {
	return &memoryStore{
		orders:     make(map[string][]models.Order),
		lastTrade:  make(map[string]int64),
		portfolios: make(map[string]*models.Portfolio),
		now:        time.Now,
	}
}

func memKey(pair models.Pair, userID string) string {
	return pair.Symbol() + "/" + userID
}

func (s *memoryStore) GetOrders(ctx context.Context, pair models.Pair, userID string) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.orders[memKey(pair, userID)]
	out := make([]models.Order, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *memoryStore) GetLastOrderTime(ctx context.Context, pair models.Pair, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTrade[memKey(pair, userID)], nil
}

func (s *memoryStore) SaveOrder(ctx context.Context, pair models.Pair, userID string, order models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memKey(pair, userID)
	orders := append(s.orders[key], order)
	sortOrdersByPriceDesc(orders)
	s.orders[key] = orders
	s.lastTrade[key] = s.now().UnixMilli()
	return nil
}

func (s *memoryStore) DeleteOrder(ctx context.Context, pair models.Pair, userID string, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memKey(pair, userID)
	orders := s.orders[key]
	kept := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if o.ID != orderID {
			kept = append(kept, o)
		}
	}
	s.orders[key] = kept
	s.lastTrade[key] = s.now().UnixMilli()
	return nil
}

func (s *memoryStore) GetPortfolio(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	portfolio, ok := s.portfolios[portfolioID]
	if !ok {
		return nil, nil
	}
	clone := *portfolio
	clone.Positions = make([]models.Position, len(portfolio.Positions))
	copy(clone.Positions, portfolio.Positions)
	return &clone, nil
}

func (s *memoryStore) SavePortfolio(ctx context.Context, portfolio *models.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *portfolio
	clone.Positions = make([]models.Position, len(portfolio.Positions))
	copy(clone.Positions, portfolio.Positions)
	s.portfolios[portfolio.ID] = &clone
	return nil
}

func (s *memoryStore) Close() error { return nil }
