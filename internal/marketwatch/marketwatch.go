// Package marketwatch streams live price updates over the exchange
// websocket so operators can follow the pairs the bot trades.
package marketwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultWSBaseURL = "wss://stream.binance.com:9443/ws"

const (
	pingInterval  = 3 * time.Minute
	readTimeout   = 10 * time.Minute
	reconnectWait = 5 * time.Second
)

// Tick is one mini-ticker update.
type Tick struct {
	Symbol string
	Close  float64
}

// Watcher maintains one mini-ticker stream subscription.
type Watcher struct {
	url   string
	log   *zap.SugaredLogger
	ticks chan Tick
}

// New creates a watcher for the symbol's mini-ticker stream.
func New(wsBaseURL, symbol string, log *zap.SugaredLogger) *Watcher {
	if wsBaseURL == "" {
		wsBaseURL = defaultWSBaseURL
	}
	return &Watcher{
		url:   fmt.Sprintf("%s/%s@miniTicker", wsBaseURL, strings.ToLower(symbol)),
		log:   log.With("stream", strings.ToLower(symbol)),
		ticks: make(chan Tick, 16),
	}
}

// Ticks returns the update channel. It closes when Run returns.
func (w *Watcher) Ticks() <-chan Tick {
	return w.ticks
}

// Run keeps the stream connected until the context is cancelled,
// reconnecting after connection failures.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.ticks)

	for {
		if err := w.stream(ctx); err != nil && ctx.Err() == nil {
			w.log.Warnw("stream disconnected, reconnecting", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectWait):
		}
	}
}

type miniTickerEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

func (w *Watcher) stream(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()
	w.log.Debugw("stream connected")

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// The server drops connections that never ping.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var event miniTickerEvent
		if err := json.Unmarshal(message, &event); err != nil {
			w.log.Warnw("unparseable stream message", "error", err)
			continue
		}
		price, err := strconv.ParseFloat(event.Close, 64)
		if err != nil {
			continue
		}

		select {
		case w.ticks <- Tick{Symbol: event.Symbol, Close: price}:
		default:
			// A slow consumer drops updates rather than the connection.
		}
	}
}
