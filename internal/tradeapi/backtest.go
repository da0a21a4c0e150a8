package tradeapi

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"trade-strategy-bot-go/internal/models"
)

// Backtest replays a pre-loaded candle history chunk by chunk. Each
// GetCandleStick call serves the next window of the history, so one
// strategy tick consumes one window. Orders live in memory and the
// candle an order was created on gets tagged with the trade side, which
// is what the reporter renders afterwards.
type Backtest struct {
	mu         sync.Mutex
	candles    []models.Candle
	start      int
	lastServed int
	orders     []models.Order
	balances   map[string]float64
	minLot     float64
	nextID     int64
	logger     *zap.SugaredLogger
}

// NewBacktest creates a replay adapter over the full candle history.
// The balances map seeds the simulated account.
func NewBacktest(candles []models.Candle, balances map[string]float64, minLot float64, logger *zap.SugaredLogger) *Backtest {
	if balances == nil {
		balances = make(map[string]float64)
	}
	return &Backtest{
		candles:    candles,
		lastServed: -1,
		balances:   balances,
		minLot:     minLot,
		logger:     logger,
	}
}

func (b *Backtest) Name() string { return "backtest" }

// GetCandleStick serves the next window of the history and advances the
// replay cursor past it.
func (b *Backtest) GetCandleStick(ctx context.Context, pair models.Pair) ([]models.Candle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	limit := pair.CandlesConfig.Limit
	if limit <= 0 {
		limit = len(b.candles)
	}
	if b.start >= len(b.candles) {
		return []models.Candle{}, nil
	}

	end := b.start + limit
	if end > len(b.candles) {
		end = len(b.candles)
	}

	window := make([]models.Candle, end-b.start)
	copy(window, b.candles[b.start:end])
	b.lastServed = end - 1
	b.start = end
	return window, nil
}

// EmitNextCandles is bookkeeping only: the cursor already moved when
// the window was served. Kept so strategies can signal chunk completion
// uniformly.
func (b *Backtest) EmitNextCandles() {
	b.logger.Debugw("candle window consumed", "next", b.start)
}

// Position returns the replay cursor, for progress checks.
func (b *Backtest) Position() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.start
}

// Exhausted reports whether the whole history has been served.
func (b *Backtest) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.start >= len(b.candles)
}

// GetOrders returns the simulated orders, most recent first.
func (b *Backtest) GetOrders(ctx context.Context, pair models.Pair) ([]models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.Order, 0, len(b.orders))
	for i := len(b.orders) - 1; i >= 0; i-- {
		out = append(out, b.orders[i])
	}
	return out, nil
}

func (b *Backtest) GetMinLotSize(ctx context.Context, pair models.Pair) (float64, error) {
	return b.minLot, nil
}

func (b *Backtest) GetOrderQuantity(ctx context.Context, ticker string, price, limit float64) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if price == 0 {
		return 0, nil
	}
	quantity := limit / price
	if b.balances[ticker] < quantity {
		return 0, nil
	}
	return quantity, nil
}

func (b *Backtest) GetPairBalance(ctx context.Context, pair models.Pair) (map[string]float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return map[string]float64{
		pair.Make: b.balances[pair.Make],
		pair.Take: b.balances[pair.Take],
	}, nil
}

func (b *Backtest) Buy(ctx context.Context, pair models.Pair, quantity, price float64) (*models.Order, error) {
	return b.fill(pair, models.Buy, quantity, price)
}

func (b *Backtest) Sell(ctx context.Context, pair models.Pair, quantity, price float64) (*models.Order, error) {
	return b.fill(pair, models.Sell, quantity, price)
}

func (b *Backtest) fill(pair models.Pair, side models.Side, quantity, price float64) (*models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var at int64
	if b.lastServed >= 0 {
		candle := &b.candles[b.lastServed]
		if price == 0 {
			price = candle.Close
		}
		candle.TradeSide = side
		at = candle.CloseTime
	}

	if side == models.Buy {
		b.balances[pair.Take] -= quantity * price
		b.balances[pair.Make] += quantity
	} else {
		b.balances[pair.Make] -= quantity
		b.balances[pair.Take] += quantity * price
	}

	b.nextID++
	order := models.Order{
		ID:       strconv.FormatInt(b.nextID, 10),
		Pair:     pair.Symbol(),
		Side:     side,
		Time:     at,
		Price:    price,
		Quantity: quantity,
	}
	b.orders = append(b.orders, order)

	b.logger.Debugw("simulated fill",
		"pair", pair.String(),
		"side", side,
		"price", price,
		"quantity", quantity,
	)
	return &order, nil
}

// Candles exposes the (possibly trade-tagged) history for reporting.
func (b *Backtest) Candles() []models.Candle {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.Candle, len(b.candles))
	copy(out, b.candles)
	return out
}
