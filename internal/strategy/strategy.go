// Package strategy holds the trading strategies. Each strategy is a
// transition table over a small state machine: a scheduler tick builds
// a fresh machine, dispatches the initial event into it, and the
// handlers chain through analysis into trading or a halt.
package strategy

import (
	"time"

	"go.uber.org/zap"

	"trade-strategy-bot-go/internal/fsm"
	"trade-strategy-bot-go/internal/models"
	"trade-strategy-bot-go/internal/store"
	"trade-strategy-bot-go/internal/tradeapi"
)

// Machine states shared by all strategies.
const (
	stateInit    fsm.State = "init"
	stateAnalyze fsm.State = "analyze"
	stateTrade   fsm.State = "trade"

	// stateHalt has no handlers: dispatching into it ends the chain.
	stateHalt fsm.State = "halt"
)

// EventExec is the entry event the scheduler dispatches into a freshly
// built machine.
const EventExec fsm.Event = "exec"

// Deps is everything a strategy invocation needs.
type Deps struct {
	Pair       models.Pair
	UserID     string
	API        tradeapi.TradeAPI
	Orders     store.OrderStore
	Portfolios store.PortfolioStore
	Log        *zap.SugaredLogger

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (d *Deps) normalize() {
	if d.Now == nil {
		d.Now = time.Now
	}
	d.Log = d.Log.With("pair", d.Pair.String(), "user", d.UserID, "strategy", d.Pair.Strategy)
}

// Builder constructs a single-use machine for one strategy tick.
type Builder func(Deps) *fsm.Machine

var registry = map[string]Builder{
	"dca":             NewDCA,
	"bollingerBands":  NewBollinger,
	"followPortfolio": NewFollowPortfolio,
}

// ForName returns the builder registered under the strategy name.
func ForName(name string) (Builder, bool) {
	b, ok := registry[name]
	return b, ok
}
