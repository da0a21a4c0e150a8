// Package tradeapi defines the broker capability interfaces the
// strategies trade through, plus the concrete adapters.
package tradeapi

import (
	"context"

	"github.com/shopspring/decimal"

	"trade-strategy-bot-go/internal/models"
)

// TradeAPI is the capability every broker adapter must satisfy.
type TradeAPI interface {
	// GetCandleStick returns the candle window described by the
	// pair's candles config, oldest first.
	GetCandleStick(ctx context.Context, pair models.Pair) ([]models.Candle, error)
	// GetOrders returns the broker-side order history for the pair,
	// most recent first.
	GetOrders(ctx context.Context, pair models.Pair) ([]models.Order, error)
	// GetMinLotSize returns the minimum tradable value for the pair.
	GetMinLotSize(ctx context.Context, pair models.Pair) (float64, error)
	// GetOrderQuantity returns how much of ticker can be sold for the
	// given price and value limit; zero means insufficient balance.
	GetOrderQuantity(ctx context.Context, ticker string, price, limit float64) (float64, error)
	Buy(ctx context.Context, pair models.Pair, quantity, price float64) (*models.Order, error)
	Sell(ctx context.Context, pair models.Pair, quantity, price float64) (*models.Order, error)
	// GetPairBalance returns the free balance per symbol of the pair.
	GetPairBalance(ctx context.Context, pair models.Pair) (map[string]float64, error)
	Name() string
}

// SavingsAPI is an optional capability: sweeping bought assets into a
// yield product and redeeming them back before a sell.
type SavingsAPI interface {
	BuySaving(ctx context.Context, pair models.Pair, amount float64) error
	RedeemSaving(ctx context.Context, pair models.Pair, amount float64) error
}

// PortfolioAPI is an optional capability for brokers that expose
// account portfolios and lot-based instrument trading.
type PortfolioAPI interface {
	GetPortfolio(ctx context.Context, portfolioID string) (*models.Portfolio, error)
	BuyLots(ctx context.Context, figi string, lots decimal.Decimal, accountID string) (*models.Order, error)
	SellLots(ctx context.Context, figi string, lots decimal.Decimal, accountID string) (*models.Order, error)
}

// CandleFeed is an optional capability used during backtesting: the
// strategy signals it is done with the current data chunk. Live
// adapters simply do not implement it.
type CandleFeed interface {
	EmitNextCandles()
}

// AdvanceFeed signals the feed to move on if the adapter supports it.
func AdvanceFeed(api TradeAPI) {
	if feed, ok := api.(CandleFeed); ok {
		feed.EmitNextCandles()
	}
}
