package marketwatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatcherDeliversTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bnbusdt@miniTicker", r.URL.Path)

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"e":"24hrMiniTicker","s":"BNBUSDT","c":"612.34"}`)))

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	watcher := New(wsURL, "BNBUSDT", zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)

	select {
	case tick := <-watcher.Ticks():
		assert.Equal(t, "BNBUSDT", tick.Symbol)
		assert.Equal(t, 612.34, tick.Close)
	case <-time.After(3 * time.Second):
		t.Fatal("no tick received")
	}
}
