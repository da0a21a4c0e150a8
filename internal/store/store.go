// Package store persists cached orders, last-trade timestamps and
// portfolio snapshots between strategy invocations.
package store

import (
	"context"

	"trade-strategy-bot-go/internal/models"
)

// OrderStore caches the orders a strategy has placed for one pair and
// user. Orders are kept sorted by price, highest first, and every
// mutation refreshes the pair's last-trade timestamp.
type OrderStore interface {
	// GetOrders returns the cached orders sorted by price descending.
	GetOrders(ctx context.Context, pair models.Pair, userID string) ([]models.Order, error)

	// GetLastOrderTime returns the last mutation time in milliseconds,
	// or zero when the pair has never traded.
	GetLastOrderTime(ctx context.Context, pair models.Pair, userID string) (int64, error)

	SaveOrder(ctx context.Context, pair models.Pair, userID string, order models.Order) error

	DeleteOrder(ctx context.Context, pair models.Pair, userID string, orderID string) error
}

// PortfolioStore keeps the portfolio snapshot the rebalancer diffs
// against. GetPortfolio returns (nil, nil) when no snapshot exists.
type PortfolioStore interface {
	GetPortfolio(ctx context.Context, portfolioID string) (*models.Portfolio, error)
	SavePortfolio(ctx context.Context, portfolio *models.Portfolio) error
}

// Store is the full persistence surface plus lifecycle.
type Store interface {
	OrderStore
	PortfolioStore
	Close() error
}
