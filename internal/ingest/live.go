// live.go implements the live depth-feed ingester.
//
// It holds one TLS WebSocket connection to the configured exchange
// endpoint, subscribes to the symbol's depth stream, and turns each
// depthUpdate frame into an OrderBook event. The connection auto-reconnects
// with exponential backoff (1s → 30s max) and re-subscribes on
// reconnection. A read deadline (90s) ensures silent server failures are
// detected within ~2 missed pings.
package ingest

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/tradecore/engine/internal/config"
	"github.com/tradecore/engine/internal/eventbus"
	"github.com/tradecore/engine/internal/events"
)

const (
	pingInterval     = 50 * time.Second // how often we send PING to keep alive
	readTimeout      = 90 * time.Second // ~2 missed pings triggers reconnect
	maxReconnectWait = 30 * time.Second // cap on exponential backoff
	writeTimeout     = 10 * time.Second // deadline for outgoing messages
)

// qtyEpsilon drops depth levels whose quantity is effectively zero.
var qtyEpsilon = decimal.New(1, -9)

// subscribeMsg is the one frame sent after connecting.
type subscribeMsg struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// depthFrame is an incoming payload: either a subscription confirmation
// (Result set, ignored) or a depth update. Prices and quantities arrive as
// decimal strings.
type depthFrame struct {
	EventType string          `json:"e"`
	Symbol    string          `json:"s"`
	EventTime int64           `json:"E"`
	Bids      [][]string      `json:"b"`
	Asks      [][]string      `json:"a"`
	Result    json.RawMessage `json:"result"`
	ID        int             `json:"id"`
}

// Live manages the depth-feed WebSocket connection for one symbol.
type Live struct {
	url    string
	symbol string
	bus    *eventbus.Bus
	logger *slog.Logger

	connMu sync.Mutex // protects conn reads/writes
	conn   *websocket.Conn

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLive creates a live ingester for the configured endpoint.
func NewLive(cfg config.WebSocketConfig, bus *eventbus.Bus, logger *slog.Logger) *Live {
	return &Live{
		url:    fmt.Sprintf("wss://%s:%d%s", cfg.Host, cfg.Port, cfg.Target),
		symbol: cfg.Symbol,
		bus:    bus,
		logger: logger.With("component", "ingest_live"),
	}
}

// Start launches the connection loop on its own goroutine.
func (l *Live) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(ctx)
	}()
	return nil
}

// Stop cancels the loop and closes the socket, unblocking any in-flight
// read, then waits for the I/O goroutine to exit.
func (l *Live) Stop() error {
	if l.cancel != nil {
		l.cancel()
	}
	l.connMu.Lock()
	if l.conn != nil {
		l.conn.Close()
	}
	l.connMu.Unlock()
	l.wg.Wait()
	return nil
}

// run connects and maintains the connection with auto-reconnect.
func (l *Live) run(ctx context.Context) {
	backoff := time.Second

	for {
		err := l.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}

		l.logger.Warn("websocket disconnected, reconnecting",
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		// Exponential backoff: 1s, 2s, 4s, 8s, ..., 30s max
		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (l *Live) connectAndRead(ctx context.Context) error {
	dialer := *websocket.DefaultDialer
	dialer.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	conn, _, err := dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()

	defer func() {
		l.connMu.Lock()
		conn.Close()
		l.conn = nil
		l.connMu.Unlock()
	}()

	if err := l.subscribe(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	l.logger.Info("websocket connected", "url", l.url, "symbol", l.symbol)

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go l.pingLoop(pingCtx)

	// Read loop with deadline so we reconnect if the server goes silent.
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		l.handleFrame(msg)
	}
}

func (l *Live) subscribe() error {
	return l.writeJSON(subscribeMsg{
		Method: "SUBSCRIBE",
		Params: []string{strings.ToLower(l.symbol) + "@depth"},
		ID:     1,
	})
}

// handleFrame routes one incoming payload: subscription confirmations are
// ignored, depth updates become OrderBook events, anything else is logged
// and skipped.
func (l *Live) handleFrame(data []byte) {
	var frame depthFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		l.logger.Warn("skipping malformed frame", "error", err)
		return
	}

	if frame.EventType != "depthUpdate" {
		// Subscription confirmation or informational payload.
		l.logger.Debug("ignoring frame", "type", frame.EventType, "id", frame.ID)
		return
	}

	bids, err := parseDepthSide(frame.Bids)
	if err != nil {
		l.logger.Warn("skipping depth update with bad bids", "error", err)
		return
	}
	asks, err := parseDepthSide(frame.Asks)
	if err != nil {
		l.logger.Warn("skipping depth update with bad asks", "error", err)
		return
	}

	ts := frame.EventTime * int64(time.Millisecond)
	l.bus.Publish(events.NewOrderBook(frame.Symbol, ts, bids, asks))
}

// parseDepthSide decodes [[price_str, qty_str], ...] pairs, dropping
// levels with effectively zero quantity.
func parseDepthSide(raw [][]string) ([]events.PriceLevel, error) {
	side := make([]events.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("level has %d elements, want 2", len(pair))
		}
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", pair[0], err)
		}
		qty, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("parse quantity %q: %w", pair[1], err)
		}
		if qty.Abs().LessThanOrEqual(qtyEpsilon) {
			continue
		}
		side = append(side, events.PriceLevel{Price: price, Quantity: qty})
	}
	return side, nil
}

func (l *Live) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.writeMessage(websocket.PingMessage, nil); err != nil {
				l.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (l *Live) writeJSON(v interface{}) error {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return l.conn.WriteJSON(v)
}

func (l *Live) writeMessage(msgType int, data []byte) error {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return l.conn.WriteMessage(msgType, data)
}
