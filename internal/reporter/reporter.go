// Package reporter renders backtest results.
package reporter

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"trade-strategy-bot-go/internal/models"
)

// Summary is everything a finished replay produced.
type Summary struct {
	Pair           models.Pair
	Trades         []models.Order
	InitialBalance map[string]float64
	FinalBalance   map[string]float64

	// FinalPrice values the leftover position at the end of the replay.
	FinalPrice float64

	Start time.Time
	End   time.Time
}

func (s Summary) value(balance map[string]float64) float64 {
	return balance[s.Pair.Take] + balance[s.Pair.Make]*s.FinalPrice
}

func (s Summary) counts() (buys, sells int) {
	for _, trade := range s.Trades {
		if trade.Side == models.Buy {
			buys++
		} else {
			sells++
		}
	}
	return buys, sells
}

// Render writes the trade log and the performance metrics as tables.
func (s Summary) Render(w io.Writer) {
	trades := table.NewWriter()
	trades.SetOutputMirror(w)
	trades.SetStyle(table.StyleLight)
	trades.SetTitle("Trades %s", s.Pair.String())
	trades.AppendHeader(table.Row{"#", "Time", "Side", "Price", "Quantity"})
	for i, trade := range s.Trades {
		trades.AppendRow(table.Row{
			i + 1,
			time.UnixMilli(trade.Time).UTC().Format("2006-01-02 15:04"),
			trade.Side,
			fmt.Sprintf("%.4f", trade.Price),
			fmt.Sprintf("%.6f", trade.Quantity),
		})
	}
	trades.Render()

	initial := s.value(s.InitialBalance)
	final := s.value(s.FinalBalance)
	profit := final - initial
	buys, sells := s.counts()

	metrics := table.NewWriter()
	metrics.SetOutputMirror(w)
	metrics.SetStyle(table.StyleLight)
	metrics.SetTitle("Result")
	metrics.AppendRows([]table.Row{
		{"Period", fmt.Sprintf("%s to %s", s.Start.Format("2006-01-02"), s.End.Format("2006-01-02"))},
		{"Trades", len(s.Trades)},
		{"Buys", buys},
		{"Sells", sells},
		{"Initial value", fmt.Sprintf("%.2f %s", initial, s.Pair.Take)},
		{"Final value", fmt.Sprintf("%.2f %s", final, s.Pair.Take)},
		{"Profit", fmt.Sprintf("%.2f %s", profit, s.Pair.Take)},
	})
	if initial != 0 {
		metrics.AppendRow(table.Row{"Profit %", fmt.Sprintf("%.2f%%", profit/initial*100)})
	}
	metrics.Render()
}
