package strategy

import (
	"context"
	"math"

	"trade-strategy-bot-go/internal/fsm"
	"trade-strategy-bot-go/internal/indicator"
	"trade-strategy-bot-go/internal/models"
	"trade-strategy-bot-go/internal/quantity"
	"trade-strategy-bot-go/internal/timeutil"
	"trade-strategy-bot-go/internal/tradeapi"
)

// defaultCorridorOffsetPercent smooths the corridor edge check when the
// pair does not configure its own tolerance.
const defaultCorridorOffsetPercent = 5.0

// repeatGuardMultiplier: a trade in the same direction within this many
// candle intervals suppresses the new signal.
const repeatGuardMultiplier = 3

// bollinger trades corridor breakouts: when a candle pierced the edge
// of the Bollinger corridor two windows back, the candle direction
// flipped right after, and the closes have stayed inside their
// corridors since, the price is read as bouncing off the edge.
type bollinger struct {
	Deps
	m         *fsm.Machine
	transform quantity.Transform
}

type trendSignal struct {
	side  models.Side
	price float64
}

// NewBollinger builds a single-use machine for the corridor strategy.
func NewBollinger(d Deps) *fsm.Machine {
	d.normalize()
	s := &bollinger{
		Deps:      d,
		transform: quantity.ForKey(d.Pair.QuantityTransform),
	}

	table := fsm.Table{
		stateInit: {
			EventExec: s.detectTrend,
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

func (s *bollinger) detectTrend(ctx context.Context, _ any) error {
	// Two extra candles so three staggered windows of the configured
	// size fit into one fetch.
	pair := s.Pair
	pair.CandlesConfig.Limit += 2

	candles, err := s.API.GetCandleStick(ctx, pair)
	if err != nil {
		s.Log.Errorw("failed to get candles", "error", err)
		s.m.ChangeState(stateHalt)
		return nil
	}
	n := len(candles)
	if n < 4 {
		s.Log.Debugw("not enough candles", "got", n)
		tradeapi.AdvanceFeed(s.API)
		s.m.ChangeState(stateHalt)
		return nil
	}

	closes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
	}

	current := indicator.ComputeCorridor(closes[2:])
	previous := indicator.ComputeCorridor(closes[1 : n-1])
	beforePrevious := indicator.ComputeCorridor(closes[:n-2])

	offsetPercent := s.Pair.CorridorOffsetPercent
	if offsetPercent == 0 {
		offsetPercent = defaultCorridorOffsetPercent
	}
	tolerance := beforePrevious.Width / 100 * offsetPercent

	piercing := candles[n-3]
	high := math.Max(piercing.Open, piercing.Close)
	low := math.Min(piercing.Open, piercing.Close)

	intersectsTop := high > beforePrevious.TopEdge ||
		math.Abs(beforePrevious.TopEdge-high) <= tolerance
	intersectsBottom := low < beforePrevious.BottomEdge ||
		math.Abs(beforePrevious.BottomEdge-low) <= tolerance

	directionChanged := indicator.CandleDirection(candles[n-3]) != indicator.CandleDirection(candles[n-2])

	insideCorridors := indicator.InRange(current.BottomEdge, current.TopEdge, current.ClosingPrice) &&
		indicator.InRange(previous.BottomEdge, previous.TopEdge, previous.ClosingPrice)

	var trend models.Side
	var found bool
	if intersectsTop && insideCorridors && directionChanged {
		trend, found = models.Sell, true
	}
	if intersectsBottom && insideCorridors && directionChanged {
		trend, found = models.Buy, true
	}

	if !found {
		s.Log.Debugw("no corridor bounce")
		tradeapi.AdvanceFeed(s.API)
		s.m.ChangeState(stateHalt)
		return nil
	}

	s.m.ChangeState(stateAnalyze)
	return s.m.Dispatch(ctx, "makeDecision", trendSignal{side: trend, price: current.ClosingPrice})
}

func (s *bollinger) makeDecision(ctx context.Context, payload any) error {
	signal, ok := payload.(trendSignal)
	if !ok {
		s.Log.Warnw("unexpected payload for decision", "payload", payload)
		return nil
	}

	orders, err := s.API.GetOrders(ctx, s.Pair)
	if err != nil {
		s.Log.Warnw("failed to get order history, assuming none", "error", err)
		orders = nil
	}

	gap, err := timeutil.ParseInterval(s.Pair.CandlesConfig.Interval)
	if err != nil {
		s.Log.Errorw("bad candle interval", "error", err)
		s.m.ChangeState(stateHalt)
		return nil
	}

	for _, order := range orders {
		if order.Side != signal.side {
			continue
		}
		age := s.Now().UnixMilli() - order.Time
		if age < repeatGuardMultiplier*gap.Milliseconds() {
			s.Log.Debugw("recent trade in the same direction, skipping",
				"side", signal.side,
				"age_ms", age,
			)
			tradeapi.AdvanceFeed(s.API)
			s.m.ChangeState(stateHalt)
			return nil
		}
		break
	}

	s.Log.Infow("corridor bounce detected", "side", signal.side, "price", signal.price)
	s.m.ChangeState(stateTrade)
	return s.m.Dispatch(ctx, fsm.Event(signal.side), signal.price)
}

func (s *bollinger) buy(ctx context.Context, payload any) error {
	return s.trade(ctx, models.Buy, payload)
}

func (s *bollinger) sell(ctx context.Context, payload any) error {
	return s.trade(ctx, models.Sell, payload)
}

func (s *bollinger) trade(ctx context.Context, side models.Side, payload any) error {
	price, ok := payload.(float64)
	if !ok {
		s.Log.Warnw("unexpected payload for trade", "payload", payload)
		return nil
	}
	// The replay feed must advance no matter how the trade ends.
	defer tradeapi.AdvanceFeed(s.API)
	defer s.m.ChangeState(stateHalt)

	limit, err := s.API.GetMinLotSize(ctx, s.Pair)
	if err != nil {
		s.Log.Errorw("failed to get min lot size", "error", err)
		return nil
	}

	var qty float64
	if side == models.Buy {
		// A buy spends the minimum lot value; the broker rejects it if
		// the account cannot cover it.
		qty = s.transform(limit / price)
	} else {
		raw, err := s.API.GetOrderQuantity(ctx, s.Pair.Make, price, limit)
		if err != nil {
			s.Log.Errorw("failed to size the order", "error", err)
			return nil
		}
		if raw == 0 {
			s.Log.Infow("insufficient balance", "side", side, "ticker", s.Pair.Make)
			return nil
		}
		qty = s.transform(raw)
	}

	if side == models.Buy {
		_, err = s.API.Buy(ctx, s.Pair, qty, price)
	} else {
		_, err = s.API.Sell(ctx, s.Pair, qty, price)
	}
	if err != nil {
		s.Log.Errorw("trade failed", "side", side, "error", err)
		return nil
	}
	s.Log.Infow("traded on corridor bounce", "side", side, "price", price, "quantity", qty)
	return nil
}
