package strategy

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-strategy-bot-go/internal/models"
	"trade-strategy-bot-go/internal/store"
)

func position(figi string, qty, lots, price int64) models.Position {
	return models.Position{
		Figi:           figi,
		InstrumentType: models.InstrumentShare,
		Quantity:       decimal.NewFromInt(qty),
		QuantityLots:   decimal.NewFromInt(lots),
		CurrentPrice:   decimal.NewFromInt(price),
	}
}

func cash(amount int64) models.Position {
	return models.Position{
		Figi:           "RUB000UTSTOM",
		InstrumentType: models.InstrumentCurrency,
		Quantity:       decimal.NewFromInt(amount),
		QuantityLots:   decimal.NewFromInt(amount),
		CurrentPrice:   decimal.NewFromInt(1),
	}
}

func followDeps(api *stubPortfolioAPI) Deps {
	deps := testDeps(api)
	deps.Pair.Strategy = "followPortfolio"
	deps.Pair.SourcePortfolioID = "source-acc"
	deps.Pair.TargetPortfolioID = "target-acc"
	return deps
}

func TestFollowPortfolioRequiresPortfolioCapability(t *testing.T) {
	m := NewFollowPortfolio(testDeps(&stubAPI{}))
	require.NoError(t, m.Dispatch(context.Background(), EventExec, nil))
	assert.Equal(t, "halt", string(m.State()))
}

func TestFollowPortfolioHaltsWhenSourceIsMissing(t *testing.T) {
	api := &stubPortfolioAPI{
		getPortfolio: func(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
			return nil, nil
		},
	}

	m := NewFollowPortfolio(followDeps(api))
	require.NoError(t, m.Dispatch(context.Background(), EventExec, nil))
	assert.Equal(t, "halt", string(m.State()))
}

func TestFollowPortfolioHaltsWhenSourceIsUnchanged(t *testing.T) {
	traded := false
	source := &models.Portfolio{
		ID:        "source-acc",
		Positions: []models.Position{position("BBG-A", 10, 10, 10), cash(500)},
	}
	api := &stubPortfolioAPI{
		getPortfolio: func(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
			return source, nil
		},
		buyLots: func(ctx context.Context, figi string, lots decimal.Decimal, accountID string) (*models.Order, error) {
			traded = true
			return &models.Order{}, nil
		},
		sellLots: func(ctx context.Context, figi string, lots decimal.Decimal, accountID string) (*models.Order, error) {
			traded = true
			return &models.Order{}, nil
		},
	}

	deps := followDeps(api)
	require.NoError(t, deps.Portfolios.SavePortfolio(context.Background(), source))

	m := NewFollowPortfolio(deps)
	require.NoError(t, m.Dispatch(context.Background(), EventExec, nil))
	assert.Equal(t, "halt", string(m.State()))
	assert.False(t, traded)
}

func TestFollowPortfolioMirrorsANewPosition(t *testing.T) {
	var boughtFigi, boughtAccount string
	var boughtLots decimal.Decimal

	source := &models.Portfolio{
		ID:        "source-acc",
		Positions: []models.Position{position("BBG-A", 10, 10, 10)},
	}
	target := &models.Portfolio{
		ID:                    "target-acc",
		TotalAmountCurrencies: decimal.NewFromInt(100),
	}
	api := &stubPortfolioAPI{
		getPortfolio: func(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
			if portfolioID == "source-acc" {
				return source, nil
			}
			return target, nil
		},
		buyLots: func(ctx context.Context, figi string, lots decimal.Decimal, accountID string) (*models.Order, error) {
			boughtFigi, boughtLots, boughtAccount = figi, lots, accountID
			return &models.Order{}, nil
		},
	}

	deps := followDeps(api)
	m := NewFollowPortfolio(deps)
	require.NoError(t, m.Dispatch(context.Background(), EventExec, nil))

	// The position is the whole source, so it gets the whole target
	// value: 100 of value at 10 per lot is 10 lots.
	assert.Equal(t, "BBG-A", boughtFigi)
	assert.True(t, boughtLots.Equal(decimal.NewFromInt(10)), "got %s lots", boughtLots)
	assert.Equal(t, "target-acc", boughtAccount)

	// The snapshot is saved so the next tick sees no change.
	snapshot, err := deps.Portfolios.GetPortfolio(context.Background(), "source-acc")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Len(t, snapshot.Positions, 1)
}

func TestFollowPortfolioSplitsValueByProportion(t *testing.T) {
	var mu sync.Mutex
	bought := map[string]decimal.Decimal{}

	source := &models.Portfolio{
		ID: "source-acc",
		Positions: []models.Position{
			position("BBG-A", 30, 30, 10), // 300 of 1400
			position("BBG-B", 10, 10, 10), // 100 of 1400
			cash(1000),                    // 1000 of 1400
		},
	}
	target := &models.Portfolio{
		ID:                    "target-acc",
		TotalAmountCurrencies: decimal.NewFromInt(200),
	}
	api := &stubPortfolioAPI{
		getPortfolio: func(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
			if portfolioID == "source-acc" {
				return source, nil
			}
			return target, nil
		},
		buyLots: func(ctx context.Context, figi string, lots decimal.Decimal, accountID string) (*models.Order, error) {
			mu.Lock()
			defer mu.Unlock()
			bought[figi] = lots
			return &models.Order{}, nil
		},
	}

	m := NewFollowPortfolio(followDeps(api))
	require.NoError(t, m.Dispatch(context.Background(), EventExec, nil))

	// Cash dilutes the proportions: 300/1400 and 100/1400 of the
	// target's 200, at 10 per lot, round to 4 and 1 lots.
	require.Len(t, bought, 2)
	assert.True(t, bought["BBG-A"].Equal(decimal.NewFromInt(4)), "got %s lots", bought["BBG-A"])
	assert.True(t, bought["BBG-B"].Equal(decimal.NewFromInt(1)), "got %s lots", bought["BBG-B"])
}

// flakySnapshotStore fails every snapshot read.
type flakySnapshotStore struct {
	store.Store
}

func (f *flakySnapshotStore) GetPortfolio(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
	return nil, errors.New("value log corrupt")
}

func TestFollowPortfolioHaltsOnSnapshotReadError(t *testing.T) {
	traded := false
	source := &models.Portfolio{
		ID:        "source-acc",
		Positions: []models.Position{position("BBG-A", 10, 10, 10)},
	}
	api := &stubPortfolioAPI{
		getPortfolio: func(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
			return source, nil
		},
		buyLots: func(ctx context.Context, figi string, lots decimal.Decimal, accountID string) (*models.Order, error) {
			traded = true
			return &models.Order{}, nil
		},
	}

	deps := followDeps(api)
	deps.Portfolios = &flakySnapshotStore{Store: store.NewMemory()}

	m := NewFollowPortfolio(deps)
	require.NoError(t, m.Dispatch(context.Background(), EventExec, nil))
	assert.Equal(t, "halt", string(m.State()))
	assert.False(t, traded)
}

func TestFollowPortfolioSellsWhatTheSourceDropped(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	var soldLots decimal.Decimal

	source := &models.Portfolio{
		ID:        "source-acc",
		Positions: []models.Position{position("BBG-A", 10, 10, 10)},
	}
	target := &models.Portfolio{
		ID:                    "target-acc",
		TotalAmountShares:     decimal.NewFromInt(40),
		TotalAmountCurrencies: decimal.NewFromInt(60),
		Positions:             []models.Position{position("BBG-GONE", 2, 2, 20)},
	}
	api := &stubPortfolioAPI{
		getPortfolio: func(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
			if portfolioID == "source-acc" {
				return source, nil
			}
			return target, nil
		},
		buyLots: func(ctx context.Context, figi string, lots decimal.Decimal, accountID string) (*models.Order, error) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, "buy:"+figi)
			return &models.Order{}, nil
		},
		sellLots: func(ctx context.Context, figi string, lots decimal.Decimal, accountID string) (*models.Order, error) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, "sell:"+figi)
			soldLots = lots
			return &models.Order{}, nil
		},
	}

	m := NewFollowPortfolio(followDeps(api))
	require.NoError(t, m.Dispatch(context.Background(), EventExec, nil))

	require.Len(t, calls, 2)
	// Sells free the cash the buys spend.
	assert.Equal(t, "sell:BBG-GONE", calls[0])
	assert.Equal(t, "buy:BBG-A", calls[1])
	assert.True(t, soldLots.Equal(decimal.NewFromInt(2)), "got %s lots", soldLots)
}

func TestFollowPortfolioHaltsOnEmptySource(t *testing.T) {
	api := &stubPortfolioAPI{
		getPortfolio: func(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
			return &models.Portfolio{ID: "source-acc"}, nil
		},
	}

	m := NewFollowPortfolio(followDeps(api))
	require.NoError(t, m.Dispatch(context.Background(), EventExec, nil))
	assert.Equal(t, "halt", string(m.State()))
}
