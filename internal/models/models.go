package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade or of a candle label.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Candle is one OHLCV bar. TradeSide is set only during backtesting to
// tag the candle a simulated order was created on.
type Candle struct {
	OpenTime  int64   `json:"open_time"`  // milliseconds
	CloseTime int64   `json:"close_time"` // milliseconds
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	TradeSide Side    `json:"trade_side,omitempty"`
}

// Order is a placed or cached trade.
type Order struct {
	ID       string  `json:"id"`
	Pair     string  `json:"pair"`
	UserID   string  `json:"user_id"`
	Side     Side    `json:"side"`
	Time     int64   `json:"time"` // milliseconds
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// CandlesConfig describes which candles a strategy requests.
type CandlesConfig struct {
	Interval string `json:"interval"`       // e.g. "15m", "4h", "1d"
	Limit    int    `json:"limit"`          // how many candles to get
	From     string `json:"from,omitempty"` // ISO date
	To       string `json:"to,omitempty"`   // ISO date
}

// Pair binds a tradable instrument to a strategy and its parameters.
type Pair struct {
	APIName               string        `json:"api_name"`
	Strategy              string        `json:"strategy"`
	Schedule              string        `json:"schedule"` // 6-field cron expression
	CandlesConfig         CandlesConfig `json:"candles_config"`
	Take                  string        `json:"take"` // initial currency / ticker
	Make                  string        `json:"make"` // target currency / ticker
	MakeType              string        `json:"make_type,omitempty"`
	Offset                float64       `json:"offset,omitempty"`                  // price offset for the DCA ladder
	CorridorOffsetPercent float64       `json:"corridor_offset_percent,omitempty"` // smoothing tolerance, % of corridor width
	MinLotQuantity        float64       `json:"min_lot_quantity,omitempty"`
	QuantityTransform     string        `json:"quantity_transform,omitempty"` // key into the quantity transform registry
	SourcePortfolioID     string        `json:"source_portfolio_id,omitempty"`
	TargetPortfolioID     string        `json:"target_portfolio_id,omitempty"`
}

// Symbol is the exchange pair name, e.g. make=BNB take=USDT -> "BNBUSDT".
func (p Pair) Symbol() string {
	return p.Make + p.Take
}

func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.Make, p.Take)
}

// InstrumentType classifies a portfolio position.
type InstrumentType string

const (
	InstrumentShare    InstrumentType = "share"
	InstrumentBond     InstrumentType = "bond"
	InstrumentETF      InstrumentType = "etf"
	InstrumentCurrency InstrumentType = "currency"
)

// Position is one holding inside a portfolio. Quantities and prices are
// decimals end to end: rebalancing math must not accumulate float error.
type Position struct {
	Figi           string          `json:"figi"`
	InstrumentType InstrumentType  `json:"instrument_type"`
	Quantity       decimal.Decimal `json:"quantity"`
	QuantityLots   decimal.Decimal `json:"quantity_lots"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	AveragePrice   decimal.Decimal `json:"average_position_price"`
}

// IsCash reports whether the position is the portfolio's settlement
// currency rather than a tradable allocation.
func (p Position) IsCash() bool {
	return p.InstrumentType == InstrumentCurrency && p.CurrentPrice.Equal(decimal.NewFromInt(1))
}

// Portfolio is a position set for an account, plus the per-category
// totals some brokers report alongside it.
type Portfolio struct {
	ID                    string          `json:"id"`
	Positions             []Position      `json:"positions"`
	TotalAmountShares     decimal.Decimal `json:"total_amount_shares"`
	TotalAmountBonds      decimal.Decimal `json:"total_amount_bonds"`
	TotalAmountETF        decimal.Decimal `json:"total_amount_etf"`
	TotalAmountCurrencies decimal.Decimal `json:"total_amount_currencies"`
	TotalAmountFutures    decimal.Decimal `json:"total_amount_futures"`
}

// APIConfig holds per-user credentials for one broker API.
type APIConfig struct {
	Key       string `json:"key,omitempty"`
	Secret    string `json:"secret,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
	WSBaseURL string `json:"ws_base_url,omitempty"`
}

// UserConfig is one user's API credentials and scheduled pairs.
type UserConfig struct {
	ID    string               `json:"id"`
	APIs  map[string]APIConfig `json:"apis"`
	Pairs []Pair               `json:"pairs"`
}

// Config is the full bot configuration.
type Config struct {
	DBPath string       `json:"db_path"`
	Log    LogConfig    `json:"log"`
	Users  []UserConfig `json:"users"`
}

// LogConfig controls zap output and lumberjack rotation.
type LogConfig struct {
	Level      string `json:"level"`       // "debug", "info", "warn", "error"
	Output     string `json:"output"`      // "console", "file", "both"
	File       string `json:"file"`        // log file path
	MaxSize    int    `json:"max_size"`    // MB per file
	MaxBackups int    `json:"max_backups"` // rotated files kept
	MaxAge     int    `json:"max_age"`     // days
	Compress   bool   `json:"compress"`
}

// APIError is the error body brokers return alongside non-200 responses.
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: code=%d, msg=%s", e.Code, e.Msg)
}
