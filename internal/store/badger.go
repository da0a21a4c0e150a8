package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v3"

	"trade-strategy-bot-go/internal/models"
)

// badgerStore is the BadgerDB implementation of Store. Values are JSON;
// each (pair, user) has one key for its order list and one for its
// last-trade timestamp.
type badgerStore struct {
	db  *badger.DB
	now func() time.Time
}

// NewBadger opens (or creates) a BadgerDB database at dbPath.
func NewBadger(dbPath string) (Store, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is disabled to keep the app's logs clean.
	// Errors are still returned from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &badgerStore{db: db, now: time.Now}, nil
}

func ordersKey(pair models.Pair, userID string) []byte {
	return []byte(fmt.Sprintf("orders/%s/%s", pair.Symbol(), userID))
}

func lastTradeKey(pair models.Pair, userID string) []byte {
	return []byte(fmt.Sprintf("lastTrade/%s/%s", pair.Symbol(), userID))
}

func portfolioKey(portfolioID string) []byte {
	return []byte("portfolio/" + portfolioID)
}

// get reads a single key inside a view transaction. Missing keys are
// reported through the found flag, not as an error.
func (s *badgerStore) get(key []byte, value any) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, value)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *badgerStore) GetOrders(ctx context.Context, pair models.Pair, userID string) ([]models.Order, error) {
	var orders []models.Order
	found, err := s.get(ordersKey(pair, userID), &orders)
	if err != nil {
		return nil, err
	}
	if !found {
		return []models.Order{}, nil
	}
	return orders, nil
}

func (s *badgerStore) GetLastOrderTime(ctx context.Context, pair models.Pair, userID string) (int64, error) {
	var raw string
	found, err := s.get(lastTradeKey(pair, userID), &raw)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	at, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt last-trade timestamp: %w", err)
	}
	return at, nil
}

func (s *badgerStore) SaveOrder(ctx context.Context, pair models.Pair, userID string, order models.Order) error {
	orders, err := s.GetOrders(ctx, pair, userID)
	if err != nil {
		return err
	}
	orders = append(orders, order)
	sortOrdersByPriceDesc(orders)

	return s.writeOrders(pair, userID, orders)
}

func (s *badgerStore) DeleteOrder(ctx context.Context, pair models.Pair, userID string, orderID string) error {
	orders, err := s.GetOrders(ctx, pair, userID)
	if err != nil {
		return err
	}

	kept := orders[:0]
	for _, o := range orders {
		if o.ID != orderID {
			kept = append(kept, o)
		}
	}

	return s.writeOrders(pair, userID, kept)
}

// writeOrders persists the order list and bumps the last-trade
// timestamp in one transaction.
func (s *badgerStore) writeOrders(pair models.Pair, userID string, orders []models.Order) error {
	data, err := json.Marshal(orders)
	if err != nil {
		return err
	}
	stamp, err := json.Marshal(strconv.FormatInt(s.now().UnixMilli(), 10))
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(ordersKey(pair, userID), data); err != nil {
			return err
		}
		return txn.Set(lastTradeKey(pair, userID), stamp)
	})
}

func (s *badgerStore) GetPortfolio(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
	var portfolio models.Portfolio
	found, err := s.get(portfolioKey(portfolioID), &portfolio)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &portfolio, nil
}

func (s *badgerStore) SavePortfolio(ctx context.Context, portfolio *models.Portfolio) error {
	data, err := json.Marshal(portfolio)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(portfolioKey(portfolio.ID), data)
	})
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}

func sortOrdersByPriceDesc(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Price > orders[j].Price
	})
}
