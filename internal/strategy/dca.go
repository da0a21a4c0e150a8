package strategy

import (
	"context"

	"trade-strategy-bot-go/internal/fsm"
	"trade-strategy-bot-go/internal/models"
	"trade-strategy-bot-go/internal/quantity"
	"trade-strategy-bot-go/internal/timeutil"
	"trade-strategy-bot-go/internal/tradeapi"
)

// dca averages into a position on a price ladder: it buys when the
// price drops below the cheapest cached order by more than the offset,
// and sells a cached order back once the price climbs past it by the
// offset. At most one trade per candle interval.
type dca struct {
	Deps
	m         *fsm.Machine
	transform quantity.Transform
}

type dcaSnapshot struct {
	orders  []models.Order
	candles []models.Candle
}

type dcaSell struct {
	order models.Order
	price float64
}

// NewDCA builds a single-use machine for the DCA ladder strategy.
func NewDCA(d Deps) *fsm.Machine {
	d.normalize()
	s := &dca{
		Deps:      d,
		transform: quantity.ForKey(d.Pair.QuantityTransform),
	}

	table := fsm.Table{
		stateInit: {
			EventExec: s.readCachedOrders,
		},
		stateAnalyze: {
			"makeDecision": s.makeDecision,
		},
		stateTrade: {
			"buy":  s.buy,
			"sell": s.sell,
		},
		stateHalt: {},
	}

	s.m = fsm.New(table, stateInit, d.Log)
	return s.m
}

func (s *dca) readCachedOrders(ctx context.Context, _ any) error {
	orders, err := s.Orders.GetOrders(ctx, s.Pair, s.UserID)
	if err != nil {
		s.Log.Warnw("failed to read cached orders, assuming none", "error", err)
		orders = nil
	}

	candles, err := s.API.GetCandleStick(ctx, s.Pair)
	if err != nil {
		s.Log.Errorw("failed to get candles", "error", err)
		s.m.ChangeState(stateHalt)
		return nil
	}
	if len(candles) == 0 {
		s.Log.Debugw("no candles available")
		s.m.ChangeState(stateHalt)
		return nil
	}

	s.m.ChangeState(stateAnalyze)
	return s.m.Dispatch(ctx, "makeDecision", dcaSnapshot{orders: orders, candles: candles})
}

func (s *dca) makeDecision(ctx context.Context, payload any) error {
	snapshot, ok := payload.(dcaSnapshot)
	if !ok {
		s.Log.Warnw("unexpected payload for decision", "payload", payload)
		return nil
	}

	gap, err := timeutil.ParseInterval(s.Pair.CandlesConfig.Interval)
	if err != nil {
		s.Log.Errorw("bad candle interval", "error", err)
		s.m.ChangeState(stateHalt)
		return nil
	}

	now := s.Now().UnixMilli()
	validTime := now - gap.Milliseconds()

	lastOrderTime, err := s.Orders.GetLastOrderTime(ctx, s.Pair, s.UserID)
	if err != nil {
		// Treating the failure as a just-now trade keeps the strategy
		// from double-trading on a flaky store.
		s.Log.Warnw("failed to read last order time", "error", err)
		lastOrderTime = now
	}
	if lastOrderTime == 0 {
		lastOrderTime = validTime - gap.Milliseconds()
	}
	if validTime < lastOrderTime {
		s.Log.Debugw("last trade is too recent, skipping")
		s.m.ChangeState(stateHalt)
		return nil
	}

	currentPrice := snapshot.candles[len(snapshot.candles)-1].Close

	if len(snapshot.orders) == 0 {
		s.m.ChangeState(stateTrade)
		return s.m.Dispatch(ctx, "buy", currentPrice)
	}

	// Orders arrive sorted by price descending: the first one the price
	// has climbed past by the offset is sold back.
	for _, order := range snapshot.orders {
		if order.Price+s.Pair.Offset < currentPrice {
			s.m.ChangeState(stateTrade)
			return s.m.Dispatch(ctx, "sell", dcaSell{order: order, price: currentPrice})
		}
	}

	cheapest := snapshot.orders[len(snapshot.orders)-1]
	if cheapest.Price-s.Pair.Offset > currentPrice {
		s.m.ChangeState(stateTrade)
		return s.m.Dispatch(ctx, "buy", currentPrice)
	}

	s.Log.Debugw("price within the ladder, nothing to do", "price", currentPrice)
	s.m.ChangeState(stateHalt)
	return nil
}

func (s *dca) buy(ctx context.Context, payload any) error {
	price, ok := payload.(float64)
	if !ok {
		s.Log.Warnw("unexpected payload for buy", "payload", payload)
		return nil
	}
	defer s.m.ChangeState(stateHalt)

	limit, err := s.API.GetMinLotSize(ctx, s.Pair)
	if err != nil {
		s.Log.Errorw("failed to get min lot size", "error", err)
		return nil
	}

	balance, err := s.API.GetPairBalance(ctx, s.Pair)
	if err != nil {
		s.Log.Errorw("failed to get balance", "error", err)
		return nil
	}
	if balance[s.Pair.Take] <= limit {
		s.Log.Infow("balance below min lot, buy aborted",
			"balance", balance[s.Pair.Take],
			"min_lot", limit,
		)
		return nil
	}

	qty := s.transform(limit / price)
	order, err := s.API.Buy(ctx, s.Pair, qty, price)
	if err != nil {
		s.Log.Errorw("buy failed", "error", err)
		return nil
	}

	// Market fills report zero price; cache the price we acted on.
	if order.Price == 0 {
		order.Price = price
	}
	order.Pair = s.Pair.Symbol()
	order.UserID = s.UserID
	if err := s.Orders.SaveOrder(ctx, s.Pair, s.UserID, *order); err != nil {
		s.Log.Errorw("failed to cache order", "error", err, "order", order.ID)
	}
	s.Log.Infow("bought", "price", order.Price, "quantity", qty)

	if savings, ok := s.API.(tradeapi.SavingsAPI); ok {
		// Sweep what was actually filled, not what was requested.
		if err := savings.BuySaving(ctx, s.Pair, order.Quantity); err != nil {
			s.Log.Errorw("failed to sweep into savings", "error", err)
		}
	}
	return nil
}

func (s *dca) sell(ctx context.Context, payload any) error {
	signal, ok := payload.(dcaSell)
	if !ok {
		s.Log.Warnw("unexpected payload for sell", "payload", payload)
		return nil
	}
	defer s.m.ChangeState(stateHalt)

	qty := s.transform(signal.order.Quantity)

	balance, err := s.API.GetPairBalance(ctx, s.Pair)
	if err != nil {
		s.Log.Errorw("failed to get balance", "error", err)
		return nil
	}
	if balance[s.Pair.Make] < qty {
		savings, ok := s.API.(tradeapi.SavingsAPI)
		if !ok {
			s.Log.Infow("balance below sell quantity and no savings to redeem",
				"balance", balance[s.Pair.Make],
				"quantity", qty,
			)
			return nil
		}
		if err := savings.RedeemSaving(ctx, s.Pair, qty); err != nil {
			s.Log.Errorw("failed to redeem savings", "error", err)
			return nil
		}
	}

	if _, err := s.API.Sell(ctx, s.Pair, qty, signal.price); err != nil {
		s.Log.Errorw("sell failed", "error", err)
		return nil
	}
	s.Log.Infow("sold",
		"bought_at", signal.order.Price,
		"price", signal.price,
		"quantity", qty,
	)

	if err := s.Orders.DeleteOrder(ctx, s.Pair, s.UserID, signal.order.ID); err != nil {
		s.Log.Errorw("failed to drop cached order", "error", err, "order", signal.order.ID)
	}
	return nil
}
