package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trade-strategy-bot-go/internal/models"
	"trade-strategy-bot-go/internal/store"
	"trade-strategy-bot-go/internal/tradeapi"
)

// stubAPI lets each test wire just the broker calls it cares about.
// Unset calls return zero values.
type stubAPI struct {
	getCandleStick   func(ctx context.Context, pair models.Pair) ([]models.Candle, error)
	getOrders        func(ctx context.Context, pair models.Pair) ([]models.Order, error)
	getMinLotSize    func(ctx context.Context, pair models.Pair) (float64, error)
	getOrderQuantity func(ctx context.Context, ticker string, price, limit float64) (float64, error)
	buy              func(ctx context.Context, pair models.Pair, quantity, price float64) (*models.Order, error)
	sell             func(ctx context.Context, pair models.Pair, quantity, price float64) (*models.Order, error)
	getPairBalance   func(ctx context.Context, pair models.Pair) (map[string]float64, error)
}

func (s *stubAPI) Name() string { return "stub" }

func (s *stubAPI) GetCandleStick(ctx context.Context, pair models.Pair) ([]models.Candle, error) {
	if s.getCandleStick == nil {
		return nil, nil
	}
	return s.getCandleStick(ctx, pair)
}

func (s *stubAPI) GetOrders(ctx context.Context, pair models.Pair) ([]models.Order, error) {
	if s.getOrders == nil {
		return nil, nil
	}
	return s.getOrders(ctx, pair)
}

func (s *stubAPI) GetMinLotSize(ctx context.Context, pair models.Pair) (float64, error) {
	if s.getMinLotSize == nil {
		return 0, nil
	}
	return s.getMinLotSize(ctx, pair)
}

func (s *stubAPI) GetOrderQuantity(ctx context.Context, ticker string, price, limit float64) (float64, error) {
	if s.getOrderQuantity == nil {
		return 0, nil
	}
	return s.getOrderQuantity(ctx, ticker, price, limit)
}

func (s *stubAPI) Buy(ctx context.Context, pair models.Pair, quantity, price float64) (*models.Order, error) {
	if s.buy == nil {
		return &models.Order{}, nil
	}
	return s.buy(ctx, pair, quantity, price)
}

func (s *stubAPI) Sell(ctx context.Context, pair models.Pair, quantity, price float64) (*models.Order, error) {
	if s.sell == nil {
		return &models.Order{}, nil
	}
	return s.sell(ctx, pair, quantity, price)
}

func (s *stubAPI) GetPairBalance(ctx context.Context, pair models.Pair) (map[string]float64, error) {
	if s.getPairBalance == nil {
		return map[string]float64{}, nil
	}
	return s.getPairBalance(ctx, pair)
}

// stubSavingsAPI adds the savings capability on top of stubAPI.
type stubSavingsAPI struct {
	stubAPI
	buySaving    func(ctx context.Context, pair models.Pair, amount float64) error
	redeemSaving func(ctx context.Context, pair models.Pair, amount float64) error
}

func (s *stubSavingsAPI) BuySaving(ctx context.Context, pair models.Pair, amount float64) error {
	if s.buySaving == nil {
		return nil
	}
	return s.buySaving(ctx, pair, amount)
}

func (s *stubSavingsAPI) RedeemSaving(ctx context.Context, pair models.Pair, amount float64) error {
	if s.redeemSaving == nil {
		return nil
	}
	return s.redeemSaving(ctx, pair, amount)
}

// stubFeedAPI adds the replay-feed capability and counts how often the
// strategy signals it.
type stubFeedAPI struct {
	stubAPI
	emitted int
}

func (s *stubFeedAPI) EmitNextCandles() { s.emitted++ }

// stubPortfolioAPI adds the portfolio capability on top of stubAPI.
type stubPortfolioAPI struct {
	stubAPI
	getPortfolio func(ctx context.Context, portfolioID string) (*models.Portfolio, error)
	buyLots      func(ctx context.Context, figi string, lots decimal.Decimal, accountID string) (*models.Order, error)
	sellLots     func(ctx context.Context, figi string, lots decimal.Decimal, accountID string) (*models.Order, error)
}

func (s *stubPortfolioAPI) GetPortfolio(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
	if s.getPortfolio == nil {
		return nil, nil
	}
	return s.getPortfolio(ctx, portfolioID)
}

func (s *stubPortfolioAPI) BuyLots(ctx context.Context, figi string, lots decimal.Decimal, accountID string) (*models.Order, error) {
	if s.buyLots == nil {
		return &models.Order{}, nil
	}
	return s.buyLots(ctx, figi, lots, accountID)
}

func (s *stubPortfolioAPI) SellLots(ctx context.Context, figi string, lots decimal.Decimal, accountID string) (*models.Order, error) {
	if s.sellLots == nil {
		return &models.Order{}, nil
	}
	return s.sellLots(ctx, figi, lots, accountID)
}

func testPair() models.Pair {
	return models.Pair{
		APIName:  "stub",
		Strategy: "dca",
		Take:     "USDT",
		Make:     "BNB",
		CandlesConfig: models.CandlesConfig{
			Interval: "4h",
			Limit:    20,
		},
	}
}

func testDeps(api tradeapi.TradeAPI) Deps {
	mem := store.NewMemory()
	return Deps{
		Pair:       testPair(),
		UserID:     "alice",
		API:        api,
		Orders:     mem,
		Portfolios: mem,
		Log:        zap.NewNop().Sugar(),
		Now:        time.Now,
	}
}
