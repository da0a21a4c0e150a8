package tradeapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jxskiss/base62"
	"go.uber.org/zap"

	"trade-strategy-bot-go/internal/models"
)

const defaultBinanceBaseURL = "https://api.binance.com"

// defaultMinLotMultiplier pads the exchange minimum notional so orders
// do not get rejected for being right at the limit.
const defaultMinLotMultiplier = 1.5

// Binance is the spot REST adapter. It satisfies TradeAPI and
// SavingsAPI.
type Binance struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewBinance creates a Binance spot adapter from per-user credentials.
func NewBinance(cfg models.APIConfig, logger *zap.SugaredLogger) *Binance {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBinanceBaseURL
	}
	return &Binance{
		apiKey:     cfg.Key,
		secretKey:  cfg.Secret,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Name identifies the adapter in logs and configs.
func (b *Binance) Name() string { return "binance" }

func (b *Binance) sign(data string) string {
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(data))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// doRequest sends one request to the Binance API. Signed requests get a
// timestamp and an HMAC signature over the encoded query.
func (b *Binance) doRequest(ctx context.Context, method, endpoint string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}

	var encodedParams string
	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		payloadToSign := params.Encode()
		encodedParams = fmt.Sprintf("%s&signature=%s", payloadToSign, b.sign(payloadToSign))
	} else {
		encodedParams = params.Encode()
	}

	fullURL := b.baseURL + endpoint
	var req *http.Request
	var err error
	if method == http.MethodGet || method == http.MethodDelete {
		if encodedParams != "" {
			fullURL = fmt.Sprintf("%s?%s", fullURL, encodedParams)
		}
		req, err = http.NewRequestWithContext(ctx, method, fullURL, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, fullURL, strings.NewReader(encodedParams))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-MBX-APIKEY", b.apiKey)
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiError models.APIError
	if json.Unmarshal(body, &apiError) == nil && apiError.Code != 0 {
		return body, &apiError
	}
	if resp.StatusCode != http.StatusOK {
		return body, fmt.Errorf("API request failed, status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// GetCandleStick fetches klines for the pair's configured interval and
// limit, oldest first.
func (b *Binance) GetCandleStick(ctx context.Context, pair models.Pair) ([]models.Candle, error) {
	params := url.Values{}
	params.Set("symbol", pair.Symbol())
	params.Set("interval", pair.CandlesConfig.Interval)
	if pair.CandlesConfig.Limit > 0 {
		params.Set("limit", strconv.Itoa(pair.CandlesConfig.Limit))
	}

	data, err := b.doRequest(ctx, http.MethodGet, "/api/v3/klines", params, false)
	if err != nil {
		return nil, err
	}

	// Klines arrive as arrays mixing numbers and strings:
	// [openTime, "open", "high", "low", "close", "volume", closeTime, ...]
	var raw [][]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse klines: %w", err)
	}

	candles := make([]models.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 7 {
			continue
		}
		candles = append(candles, models.Candle{
			OpenTime:  int64(asFloat(k[0])),
			Open:      asFloat(k[1]),
			High:      asFloat(k[2]),
			Low:       asFloat(k[3]),
			Close:     asFloat(k[4]),
			Volume:    asFloat(k[5]),
			CloseTime: int64(asFloat(k[6])),
		})
	}
	return candles, nil
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

type binanceOrder struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Side          string `json:"side"`
	Time          int64  `json:"time"`
	TransactTime  int64  `json:"transactTime"`
}

func (o binanceOrder) toOrder(pair models.Pair) models.Order {
	price, _ := strconv.ParseFloat(o.Price, 64)
	qty, _ := strconv.ParseFloat(o.OrigQty, 64)
	at := o.Time
	if at == 0 {
		at = o.TransactTime
	}
	return models.Order{
		ID:       strconv.FormatInt(o.OrderID, 10),
		Pair:     pair.Symbol(),
		Side:     models.Side(strings.ToLower(o.Side)),
		Time:     at,
		Price:    price,
		Quantity: qty,
	}
}

// GetOrders returns the account's order history for the pair, most
// recent first.
func (b *Binance) GetOrders(ctx context.Context, pair models.Pair) ([]models.Order, error) {
	params := url.Values{}
	params.Set("symbol", pair.Symbol())

	data, err := b.doRequest(ctx, http.MethodGet, "/api/v3/allOrders", params, true)
	if err != nil {
		return nil, err
	}

	var raw []binanceOrder
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse orders: %w", err)
	}

	orders := make([]models.Order, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		orders = append(orders, raw[i].toOrder(pair))
	}
	return orders, nil
}

type exchangeInfo struct {
	Symbols []struct {
		Symbol  string `json:"symbol"`
		Filters []struct {
			FilterType  string `json:"filterType"`
			MinNotional string `json:"minNotional,omitempty"`
		} `json:"filters"`
	} `json:"symbols"`
}

// GetMinLotSize returns the minimum order value for the pair: the
// exchange MIN_NOTIONAL filter scaled by the pair's configured
// min-lot multiplier.
func (b *Binance) GetMinLotSize(ctx context.Context, pair models.Pair) (float64, error) {
	params := url.Values{}
	params.Set("symbol", pair.Symbol())

	data, err := b.doRequest(ctx, http.MethodGet, "/api/v3/exchangeInfo", params, false)
	if err != nil {
		return 0, err
	}

	var info exchangeInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return 0, fmt.Errorf("failed to parse exchange info: %w", err)
	}

	multiplier := pair.MinLotQuantity
	if multiplier == 0 {
		multiplier = defaultMinLotMultiplier
	}
	for _, s := range info.Symbols {
		if s.Symbol != pair.Symbol() {
			continue
		}
		for _, f := range s.Filters {
			// Newer API versions renamed MIN_NOTIONAL to NOTIONAL.
			if f.FilterType == "MIN_NOTIONAL" || f.FilterType == "NOTIONAL" {
				minNotional, _ := strconv.ParseFloat(f.MinNotional, 64)
				return minNotional * multiplier, nil
			}
		}
	}
	return 0, fmt.Errorf("no notional filter for symbol %s", pair.Symbol())
}

type accountInfo struct {
	Balances []struct {
		Asset string `json:"asset"`
		Free  string `json:"free"`
	} `json:"balances"`
}

func (b *Binance) getAccountInfo(ctx context.Context) (*accountInfo, error) {
	data, err := b.doRequest(ctx, http.MethodGet, "/api/v3/account", nil, true)
	if err != nil {
		return nil, err
	}
	var account accountInfo
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("failed to parse account info: %w", err)
	}
	return &account, nil
}

func (a *accountInfo) free(asset string) float64 {
	for _, bal := range a.Balances {
		if bal.Asset == asset {
			f, _ := strconv.ParseFloat(bal.Free, 64)
			return f
		}
	}
	return 0
}

// GetOrderQuantity returns how much of ticker fits into the value
// limit at the given price, or zero when the account balance cannot
// cover it.
func (b *Binance) GetOrderQuantity(ctx context.Context, ticker string, price, limit float64) (float64, error) {
	account, err := b.getAccountInfo(ctx)
	if err != nil {
		return 0, err
	}

	orderQuantity := limit / price
	if math.IsNaN(orderQuantity) || math.IsInf(orderQuantity, 0) || account.free(ticker) < orderQuantity {
		return 0, nil
	}
	return orderQuantity, nil
}

// GetPairBalance returns the free balances of both sides of the pair.
func (b *Binance) GetPairBalance(ctx context.Context, pair models.Pair) (map[string]float64, error) {
	account, err := b.getAccountInfo(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]float64{
		pair.Make: account.free(pair.Make),
		pair.Take: account.free(pair.Take),
	}, nil
}

func newClientOrderID() string {
	return "tsb-" + string(base62.FormatInt(time.Now().UnixNano()))
}

func (b *Binance) placeOrder(ctx context.Context, pair models.Pair, side models.Side, quantity float64) (*models.Order, error) {
	params := url.Values{}
	params.Set("symbol", pair.Symbol())
	params.Set("side", strings.ToUpper(string(side)))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))
	params.Set("newClientOrderId", newClientOrderID())

	data, err := b.doRequest(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return nil, err
	}

	var raw binanceOrder
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse order response: %w", err)
	}
	order := raw.toOrder(pair)
	order.Side = side
	return &order, nil
}

// Buy places a market buy order.
func (b *Binance) Buy(ctx context.Context, pair models.Pair, quantity, price float64) (*models.Order, error) {
	return b.placeOrder(ctx, pair, models.Buy, quantity)
}

// Sell places a market sell order.
func (b *Binance) Sell(ctx context.Context, pair models.Pair, quantity, price float64) (*models.Order, error) {
	return b.placeOrder(ctx, pair, models.Sell, quantity)
}

// flexibleProductID is how Binance names its flexible savings products.
func flexibleProductID(asset string) string {
	return asset + "001"
}

// BuySaving sweeps a bought amount into the flexible savings product of
// the pair's make asset.
func (b *Binance) BuySaving(ctx context.Context, pair models.Pair, amount float64) error {
	params := url.Values{}
	params.Set("productId", flexibleProductID(pair.Make))
	params.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))

	_, err := b.doRequest(ctx, http.MethodPost, "/sapi/v1/lending/daily/purchase", params, true)
	if err != nil {
		return fmt.Errorf("savings purchase failed: %w", err)
	}
	b.logger.Infow("swept into savings", "asset", pair.Make, "amount", amount)
	return nil
}

// RedeemSaving pulls an amount back out of savings so it can be sold.
func (b *Binance) RedeemSaving(ctx context.Context, pair models.Pair, amount float64) error {
	params := url.Values{}
	params.Set("productId", flexibleProductID(pair.Make))
	params.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))
	params.Set("type", "FAST")

	_, err := b.doRequest(ctx, http.MethodPost, "/sapi/v1/lending/daily/redeem", params, true)
	if err != nil {
		return fmt.Errorf("savings redeem failed: %w", err)
	}
	b.logger.Infow("redeemed from savings", "asset", pair.Make, "amount", amount)
	return nil
}
