package store

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-strategy-bot-go/internal/models"
)

var testPair = models.Pair{Make: "BNB", Take: "USDT"}

// stores under test share one behavioral contract; the Badger variant
// additionally survives reopening.
func openStores(t *testing.T) map[string]Store {
	t.Helper()

	badgerStore, err := NewBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { badgerStore.Close() })

	return map[string]Store{
		"badger": badgerStore,
		"memory": NewMemory(),
	}
}

func TestOrdersSortedByPriceDescending(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.SaveOrder(ctx, testPair, "alice", models.Order{ID: "1", Price: 90}))
			require.NoError(t, s.SaveOrder(ctx, testPair, "alice", models.Order{ID: "2", Price: 110}))
			require.NoError(t, s.SaveOrder(ctx, testPair, "alice", models.Order{ID: "3", Price: 100}))

			orders, err := s.GetOrders(ctx, testPair, "alice")
			require.NoError(t, err)
			require.Len(t, orders, 3)
			assert.Equal(t, []float64{110, 100, 90}, []float64{orders[0].Price, orders[1].Price, orders[2].Price})
		})
	}
}

func TestOrdersAreScopedByUser(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.SaveOrder(ctx, testPair, "alice", models.Order{ID: "1", Price: 100}))

			orders, err := s.GetOrders(ctx, testPair, "bob")
			require.NoError(t, err)
			assert.Empty(t, orders)
		})
	}
}

func TestDeleteOrderRemovesOnlyTheTarget(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.SaveOrder(ctx, testPair, "alice", models.Order{ID: "1", Price: 100}))
			require.NoError(t, s.SaveOrder(ctx, testPair, "alice", models.Order{ID: "2", Price: 90}))

			require.NoError(t, s.DeleteOrder(ctx, testPair, "alice", "1"))

			orders, err := s.GetOrders(ctx, testPair, "alice")
			require.NoError(t, err)
			require.Len(t, orders, 1)
			assert.Equal(t, "2", orders[0].ID)
		})
	}
}

func TestMutationsBumpLastOrderTime(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			at, err := s.GetLastOrderTime(ctx, testPair, "alice")
			require.NoError(t, err)
			assert.Zero(t, at)

			require.NoError(t, s.SaveOrder(ctx, testPair, "alice", models.Order{ID: "1", Price: 100}))
			afterSave, err := s.GetLastOrderTime(ctx, testPair, "alice")
			require.NoError(t, err)
			assert.Positive(t, afterSave)

			require.NoError(t, s.DeleteOrder(ctx, testPair, "alice", "1"))
			afterDelete, err := s.GetLastOrderTime(ctx, testPair, "alice")
			require.NoError(t, err)
			assert.GreaterOrEqual(t, afterDelete, afterSave)
		})
	}
}

func TestPortfolioRoundTrip(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			missing, err := s.GetPortfolio(ctx, "acc-1")
			require.NoError(t, err)
			assert.Nil(t, missing)

			saved := &models.Portfolio{
				ID: "acc-1",
				Positions: []models.Position{{
					Figi:           "BBG000000001",
					InstrumentType: models.InstrumentShare,
					Quantity:       decimal.NewFromInt(10),
					QuantityLots:   decimal.NewFromInt(1),
					CurrentPrice:   decimal.NewFromFloat(254.3),
				}},
			}
			require.NoError(t, s.SavePortfolio(ctx, saved))

			loaded, err := s.GetPortfolio(ctx, "acc-1")
			require.NoError(t, err)
			require.NotNil(t, loaded)
			require.Len(t, loaded.Positions, 1)
			assert.Equal(t, "BBG000000001", loaded.Positions[0].Figi)
			assert.True(t, loaded.Positions[0].Quantity.Equal(decimal.NewFromInt(10)))
		})
	}
}

func TestBadgerSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewBadger(dir)
	require.NoError(t, err)
	require.NoError(t, s.SaveOrder(ctx, testPair, "alice", models.Order{ID: "1", Price: 42}))
	require.NoError(t, s.Close())

	reopened, err := NewBadger(dir)
	require.NoError(t, err)
	defer reopened.Close()

	orders, err := reopened.GetOrders(ctx, testPair, "alice")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 42.0, orders[0].Price)
}
