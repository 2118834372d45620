// Package feed maintains live per-symbol order books from the Bybit V5 public
// depth stream and serves them to the trading loop.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantfold/scalpbot/internal/book"
	"github.com/quantfold/scalpbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// readWait is the read deadline; Bybit answers pings within seconds.
	readWait = 60 * time.Second

	// pingPeriod sends the venue-level ping op at this interval. Bybit
	// recommends every 20 seconds.
	pingPeriod = 20 * time.Second

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	// depthLevels is the subscribed orderbook depth per symbol.
	depthLevels = 50
)

// BookEventHandler is called for every parsed depth event of a symbol.
type BookEventHandler func(symbol string, ev book.Event)

// WSClient is a WebSocket client for the Bybit V5 public linear stream. It
// manages the connection lifecycle, depth subscriptions, and dispatches
// snapshot/delta events to a registered handler.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Topics to restore on reconnect.
	topics []string

	handlerMu sync.RWMutex
	onEvent   BookEventHandler

	done chan struct{}
}

// NewWSClient creates a client for the given stream URL, e.g.
// "wss://stream.bybit.com/v5/public/linear".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// OnBookEvent registers the handler invoked for every depth event.
func (w *WSClient) OnBookEvent(h BookEventHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.onEvent = h
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops. Previously subscribed topics are restored.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("feed: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	w.conn = conn
	w.conn.SetReadDeadline(time.Now().Add(readWait))

	go w.readLoop()
	go w.pingLoop()

	if len(w.topics) > 0 {
		if err := w.sendOp("subscribe", w.topics); err != nil {
			return fmt.Errorf("feed: restore subscriptions: %w", err)
		}
	}
	return nil
}

// Subscribe subscribes to the depth stream for the given symbols.
func (w *WSClient) Subscribe(symbols []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("feed: not connected")
	}
	topics := make([]string, 0, len(symbols))
	for _, s := range symbols {
		topics = append(topics, depthTopic(s))
	}
	if err := w.sendOp("subscribe", topics); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	w.topics = append(w.topics, topics...)
	return nil
}

// Resubscribe drops and re-adds a symbol's depth topic, forcing the venue to
// send a fresh snapshot. Used by the keeper after a sequence gap.
func (w *WSClient) Resubscribe(symbol string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("feed: not connected")
	}
	topic := depthTopic(symbol)
	if err := w.sendOp("unsubscribe", []string{topic}); err != nil {
		return fmt.Errorf("feed: unsubscribe %s: %w", symbol, err)
	}
	if err := w.sendOp("subscribe", []string{topic}); err != nil {
		return fmt.Errorf("feed: resubscribe %s: %w", symbol, err)
	}
	return nil
}

// Close shuts down the connection and stops the loops.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

func depthTopic(symbol string) string {
	return fmt.Sprintf("orderbook.%d.%s", depthLevels, symbol)
}

// sendOp sends a Bybit op frame. Caller must hold w.mu.
func (w *WSClient) sendOp(op string, args []string) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(map[string]any{"op": op, "args": args})
	if err != nil {
		return fmt.Errorf("marshal op: %w", err)
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages and dispatches depth events. On
// disconnect it reconnects with exponential backoff.
func (w *WSClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			w.reconnect()
			return // readLoop is restarted by reconnect -> Connect
		}
		conn.SetReadDeadline(time.Now().Add(readWait))
		w.handleMessage(message)
	}
}

// pingLoop sends Bybit's application-level ping to keep the stream alive.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			if w.conn == nil {
				w.mu.Unlock()
				return
			}
			err := w.sendOp("ping", nil)
			w.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// depthMessage is one frame of the orderbook topic.
type depthMessage struct {
	Topic string `json:"topic"`
	Type  string `json:"type"` // snapshot | delta
	Ts    int64  `json:"ts"`
	Data  struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"` // [price, size]
		Asks   [][]string `json:"a"`
		Update int64      `json:"u"`
		Seq    int64      `json:"seq"`
	} `json:"data"`
}

// handleMessage parses a raw frame and routes depth events to the handler.
// Op acks and pong frames are dropped.
func (w *WSClient) handleMessage(raw []byte) {
	var msg depthMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Topic == "" || msg.Data.Symbol == "" {
		return
	}

	ev := book.Event{
		Seq:  msg.Data.Update,
		Ts:   msg.Ts,
		Bids: parseLevels(msg.Data.Bids),
		Asks: parseLevels(msg.Data.Asks),
	}
	switch msg.Type {
	case "snapshot":
		ev.Type = book.EventSnapshot
	case "delta":
		ev.Type = book.EventDelta
	default:
		return
	}

	w.handlerMu.RLock()
	h := w.onEvent
	w.handlerMu.RUnlock()
	if h != nil {
		h(msg.Data.Symbol, ev)
	}
}

func parseLevels(raw [][]string) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		levels = append(levels, domain.PriceLevel{
			Price: parseF(pair[0]),
			Size:  parseF(pair[1]),
		})
	}
	return levels
}

func parseF(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// reconnect re-establishes the connection with exponential backoff. It blocks
// until successful or the client is closed.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()
		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
