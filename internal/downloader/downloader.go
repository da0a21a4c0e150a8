// Package downloader fetches candle history from Binance and caches it
// as CSV for backtests.
package downloader

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"
)

// requestLimit is the Binance maximum per klines request.
const requestLimit = 1000

// KlineDownloader pulls candles through the public Binance endpoints.
type KlineDownloader struct {
	client *binance.Client
	log    *zap.SugaredLogger
}

func NewKlineDownloader(log *zap.SugaredLogger) *KlineDownloader {
	// Public market data needs no credentials.
	return &KlineDownloader{
		client: binance.NewClient("", ""),
		log:    log,
	}
}

// DownloadKlines fetches candles for the symbol and interval into a CSV
// file. An existing file is treated as a cache and left untouched.
func (d *KlineDownloader) DownloadKlines(ctx context.Context, symbol, interval, filePath string, startTime, endTime time.Time) error {
	if _, err := os.Stat(filePath); err == nil {
		d.log.Infow("using cached candle data", "file", filePath)
		return nil
	}

	d.log.Infow("downloading candle data",
		"symbol", symbol,
		"interval", interval,
		"from", startTime.Format("2006-01-02"),
		"to", endTime.Format("2006-01-02"),
	)

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filePath, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"open_time", "open", "high", "low", "close", "volume", "close_time"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for t := startTime; t.Before(endTime); {
		klines, err := d.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(t.UnixMilli()).
			EndTime(endTime.UnixMilli()).
			Limit(requestLimit).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("klines request failed: %w", err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			record := []string{
				strconv.FormatInt(k.OpenTime, 10),
				k.Open,
				k.High,
				k.Low,
				k.Close,
				k.Volume,
				strconv.FormatInt(k.CloseTime, 10),
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write CSV record: %w", err)
			}
		}

		t = time.UnixMilli(klines[len(klines)-1].CloseTime + 1)
		d.log.Debugw("downloaded chunk", "until", t.Format("2006-01-02 15:04:05"))

		// Stay clear of the request weight limit.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	d.log.Infow("candle data saved", "file", filePath)
	return nil
}
