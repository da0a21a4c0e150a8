// Package backtest replays downloaded candle history through a
// strategy and collects the simulated trades.
package backtest

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"trade-strategy-bot-go/internal/models"
	"trade-strategy-bot-go/internal/strategy"
	"trade-strategy-bot-go/internal/tradeapi"
)

// LoadCandles reads a candle CSV produced by the downloader. The first
// row is a header.
func LoadCandles(path string) ([]models.Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read candle data: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("candle file %s has no data rows", path)
	}

	candles := make([]models.Candle, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) < 7 {
			return nil, fmt.Errorf("row %d has %d columns, want at least 7", i+2, len(row))
		}
		openTime, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad open time: %w", i+2, err)
		}
		closeTime, err := strconv.ParseInt(row[6], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad close time: %w", i+2, err)
		}
		open, _ := strconv.ParseFloat(row[1], 64)
		high, _ := strconv.ParseFloat(row[2], 64)
		low, _ := strconv.ParseFloat(row[3], 64)
		closePrice, _ := strconv.ParseFloat(row[4], 64)
		volume, _ := strconv.ParseFloat(row[5], 64)

		candles = append(candles, models.Candle{
			OpenTime:  openTime,
			CloseTime: closeTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
	}
	return candles, nil
}

// Run ticks the strategy until the replay feed is exhausted. Each tick
// gets a fresh machine, like a scheduler tick would.
func Run(ctx context.Context, feed *tradeapi.Backtest, build strategy.Builder, deps strategy.Deps, log *zap.SugaredLogger) error {
	ticks := 0
	for !feed.Exhausted() {
		before := feed.Position()

		m := build(deps)
		if err := m.Dispatch(ctx, strategy.EventExec, nil); err != nil {
			log.Errorw("tick failed", "tick", ticks, "error", err)
		}
		ticks++

		if feed.Position() == before {
			// The strategy never asked for candles; another tick would
			// loop forever on the same window.
			return fmt.Errorf("replay stalled after %d ticks", ticks)
		}
	}
	log.Infow("replay finished", "ticks", ticks)
	return nil
}
