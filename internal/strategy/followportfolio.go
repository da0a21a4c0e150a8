package strategy

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"

	"trade-strategy-bot-go/internal/fsm"
	"trade-strategy-bot-go/internal/models"
	"trade-strategy-bot-go/internal/tradeapi"
)

// followPortfolio mirrors a source portfolio into the user's own
// account: whenever the source allocation changes, the target account
// is rebalanced to the same proportions of its own total value. All
// arithmetic is decimal; lot sizing must not drift.
type followPortfolio struct {
	Deps
	m    *fsm.Machine
	papi tradeapi.PortfolioAPI
}

type lotOrder struct {
	figi string
	side models.Side
	lots decimal.Decimal
}

type rebalancePlan struct {
	sells []lotOrder
	buys  []lotOrder
}

// NewFollowPortfolio builds a single-use machine for the
// portfolio-mirroring strategy.
func NewFollowPortfolio(d Deps) *fsm.Machine {
	d.normalize()
	s := &followPortfolio{Deps: d}

	table := fsm.Table{
		stateInit: {
			EventExec: s.readSourcePortfolio,
		},
		stateAnalyze: {
			"detectChanges": s.detectChanges,
		},
		"calculate": {
			"makeDecision": s.makeDecision,
		},
		stateTrade: {
			"fulfillTrades": s.fulfillTrades,
		},
		stateHalt: {},
	}

	s.m = fsm.New(table, stateInit, d.Log)
	return s.m
}

func (s *followPortfolio) readSourcePortfolio(ctx context.Context, _ any) error {
	papi, ok := s.API.(tradeapi.PortfolioAPI)
	if !ok {
		s.Log.Errorw("broker does not expose portfolios", "api", s.API.Name())
		s.m.ChangeState(stateHalt)
		return nil
	}
	s.papi = papi

	source, err := papi.GetPortfolio(ctx, s.Pair.SourcePortfolioID)
	if err != nil {
		s.Log.Errorw("failed to get source portfolio", "error", err)
		s.m.ChangeState(stateHalt)
		return nil
	}
	if source == nil {
		s.Log.Warnw("source portfolio not found", "id", s.Pair.SourcePortfolioID)
		s.m.ChangeState(stateHalt)
		return nil
	}

	s.m.ChangeState(stateAnalyze)
	return s.m.Dispatch(ctx, "detectChanges", source)
}

func (s *followPortfolio) detectChanges(ctx context.Context, payload any) error {
	source, ok := payload.(*models.Portfolio)
	if !ok {
		s.Log.Warnw("unexpected payload for change detection", "payload", payload)
		return nil
	}
	if len(source.Positions) == 0 {
		s.Log.Debugw("source portfolio is empty")
		s.m.ChangeState(stateHalt)
		return nil
	}

	snapshot, err := s.Portfolios.GetPortfolio(ctx, source.ID)
	if err != nil {
		// A missing snapshot means a first run; a read failure means
		// the store is unhealthy, and rebalancing blind is worse than
		// waiting a cycle.
		s.Log.Errorw("failed to read portfolio snapshot", "error", err)
		s.m.ChangeState(stateHalt)
		return nil
	}

	known := make(map[string]models.Position)
	if snapshot != nil {
		for _, p := range snapshot.Positions {
			if !p.IsCash() {
				known[p.Figi] = p
			}
		}
	}

	changed := false
	for _, p := range source.Positions {
		if p.IsCash() {
			continue
		}
		prev, ok := known[p.Figi]
		if !ok {
			changed = true
			continue
		}
		delete(known, p.Figi)
		if !prev.Quantity.Equal(p.Quantity) {
			changed = true
		}
	}
	// Leftovers were sold out of the source entirely.
	if len(known) > 0 {
		changed = true
	}

	if !changed {
		s.Log.Debugw("source portfolio unchanged")
		s.m.ChangeState(stateHalt)
		return nil
	}

	if err := s.Portfolios.SavePortfolio(ctx, source); err != nil {
		s.Log.Errorw("failed to save portfolio snapshot", "error", err)
	}

	s.m.ChangeState("calculate")
	return s.m.Dispatch(ctx, "makeDecision", source)
}

func (s *followPortfolio) makeDecision(ctx context.Context, payload any) error {
	source, ok := payload.(*models.Portfolio)
	if !ok {
		s.Log.Warnw("unexpected payload for rebalance calculation", "payload", payload)
		return nil
	}

	target, err := s.papi.GetPortfolio(ctx, s.Pair.TargetPortfolioID)
	if err != nil {
		s.Log.Errorw("failed to get target portfolio", "error", err)
		s.m.ChangeState(stateHalt)
		return nil
	}
	if target == nil {
		s.Log.Warnw("target portfolio not found", "id", s.Pair.TargetPortfolioID)
		s.m.ChangeState(stateHalt)
		return nil
	}

	// Cash counts toward the source total: a source account sitting
	// half in cash should leave the target half unallocated too.
	sourceTotal := decimal.Zero
	for _, p := range source.Positions {
		sourceTotal = sourceTotal.Add(p.Quantity.Mul(p.CurrentPrice))
	}
	if sourceTotal.IsZero() {
		s.Log.Debugw("source portfolio has no tradable value")
		s.m.ChangeState(stateHalt)
		return nil
	}

	targetTotal := target.TotalAmountShares.
		Add(target.TotalAmountBonds).
		Add(target.TotalAmountETF).
		Add(target.TotalAmountCurrencies).
		Add(target.TotalAmountFutures).
		Round(2)

	targetByFigi := make(map[string]models.Position)
	for _, p := range target.Positions {
		if !p.IsCash() {
			targetByFigi[p.Figi] = p
		}
	}

	var plan rebalancePlan
	for _, p := range source.Positions {
		if p.IsCash() {
			continue
		}

		// The source position's share of its portfolio, applied to the
		// target's total value.
		fraction := p.Quantity.Mul(p.CurrentPrice).Div(sourceTotal)
		money := fraction.Mul(targetTotal)

		held, exists := targetByFigi[p.Figi]
		if !exists {
			held = p
			held.QuantityLots = p.QuantityLots
		} else {
			delete(targetByFigi, p.Figi)
		}
		if held.QuantityLots.IsZero() || held.CurrentPrice.IsZero() {
			s.Log.Warnw("position not sizable, skipping", "figi", p.Figi)
			continue
		}

		itemsPerLot := held.Quantity.Div(held.QuantityLots)
		lotPrice := itemsPerLot.Mul(held.CurrentPrice)
		if lotPrice.IsZero() {
			s.Log.Warnw("position not sizable, skipping", "figi", p.Figi)
			continue
		}
		desiredLots := money.Div(lotPrice).Round(0)

		currentLots := decimal.Zero
		if exists {
			currentLots = held.QuantityLots
		}

		delta := desiredLots.Sub(currentLots)
		switch {
		case delta.IsPositive():
			plan.buys = append(plan.buys, lotOrder{figi: p.Figi, side: models.Buy, lots: delta})
		case delta.IsNegative():
			plan.sells = append(plan.sells, lotOrder{figi: p.Figi, side: models.Sell, lots: delta.Abs()})
		}
	}

	// Whatever the source no longer holds gets sold off completely.
	for figi, held := range targetByFigi {
		if held.QuantityLots.IsZero() {
			continue
		}
		plan.sells = append(plan.sells, lotOrder{figi: figi, side: models.Sell, lots: held.QuantityLots})
	}

	if len(plan.sells) == 0 && len(plan.buys) == 0 {
		s.Log.Infow("portfolio already matches the source")
		s.m.ChangeState(stateHalt)
		return nil
	}

	s.m.ChangeState(stateTrade)
	return s.m.Dispatch(ctx, "fulfillTrades", plan)
}

// fulfillTrades frees cash first: all sells run concurrently, then all
// buys. Per-order failures are logged and the rest of the plan goes on.
func (s *followPortfolio) fulfillTrades(ctx context.Context, payload any) error {
	plan, ok := payload.(rebalancePlan)
	if !ok {
		s.Log.Warnw("unexpected payload for trade fulfillment", "payload", payload)
		return nil
	}
	defer s.m.ChangeState(stateHalt)

	s.runBatch(ctx, plan.sells)
	s.runBatch(ctx, plan.buys)

	s.Log.Infow("portfolio rebalanced",
		"sells", len(plan.sells),
		"buys", len(plan.buys),
	)
	return nil
}

func (s *followPortfolio) runBatch(ctx context.Context, orders []lotOrder) {
	var wg conc.WaitGroup
	for _, order := range orders {
		order := order
		wg.Go(func() {
			var err error
			if order.side == models.Buy {
				_, err = s.papi.BuyLots(ctx, order.figi, order.lots, s.Pair.TargetPortfolioID)
			} else {
				_, err = s.papi.SellLots(ctx, order.figi, order.lots, s.Pair.TargetPortfolioID)
			}
			if err != nil {
				s.Log.Errorw("rebalance order failed",
					"figi", order.figi,
					"side", order.side,
					"lots", order.lots,
					"error", err,
				)
				return
			}
			s.Log.Infow("rebalance order placed",
				"figi", order.figi,
				"side", order.side,
				"lots", order.lots,
			)
		})
	}
	wg.Wait()
}
