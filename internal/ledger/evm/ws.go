package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
)

// Head is one newHeads notification, trimmed to what the agent uses.
type Head struct {
	Number     uint64
	Hash       string
	BaseFee    *big.Int
	Timestamp  uint64
	ReceivedAt time.Time
}

// HeadWatcherConfig configures WebSocket watcher behavior.
type HeadWatcherConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultHeadWatcherConfig returns default watcher configuration.
func DefaultHeadWatcherConfig() HeadWatcherConfig {
	return HeadWatcherConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// HeadWatcher streams new block headers over a WebSocket endpoint with
// automatic reconnection and resubscription.
type HeadWatcher struct {
	endpoint string
	config   HeadWatcherConfig
	logger   *log.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	heads chan Head

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// NewHeadWatcher connects to the endpoint and subscribes to newHeads.
func NewHeadWatcher(ctx context.Context, endpoint string, config *HeadWatcherConfig, logger *log.Logger) (*HeadWatcher, error) {
	cfg := DefaultHeadWatcherConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	w := &HeadWatcher{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		heads:    make(chan Head, 256),
		done:     make(chan struct{}),
	}

	if err := w.connect(ctx); err != nil {
		return nil, err
	}
	if err := w.subscribe(); err != nil {
		w.conn.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.readLoop()

	w.wg.Add(1)
	go w.pingLoop()

	return w, nil
}

// Heads returns the header stream. Closed when the watcher closes.
func (w *HeadWatcher) Heads() <-chan Head {
	return w.heads
}

// Close closes the WebSocket connection and the head stream.
func (w *HeadWatcher) Close() error {
	if w.closed.Swap(true) {
		return nil // Already closed
	}

	close(w.done)

	w.connMu.Lock()
	if w.conn != nil {
		w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.conn.Close()
	}
	w.connMu.Unlock()

	w.wg.Wait()
	close(w.heads)
	return nil
}

// connect establishes the WebSocket connection.
func (w *HeadWatcher) connect(ctx context.Context) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	w.conn = conn
	return nil
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type wsMessage struct {
	Method string `json:"method"`
	Params struct {
		Result json.RawMessage `json:"result"`
	} `json:"params"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type wsHead struct {
	Number     string `json:"number"`
	Hash       string `json:"hash"`
	BaseFee    string `json:"baseFeePerGas"`
	Timestamp  string `json:"timestamp"`
}

// subscribe sends the newHeads subscription request.
func (w *HeadWatcher) subscribe() error {
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_subscribe",
		Params:  []interface{}{"newHeads"},
	}

	w.connMu.Lock()
	defer w.connMu.Unlock()
	if w.conn == nil {
		return fmt.Errorf("not connected")
	}
	w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	if err := w.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// readLoop reads messages and dispatches heads to the stream.
func (w *HeadWatcher) readLoop() {
	defer w.wg.Done()

	reconnectDelay := w.config.ReconnectDelay

	for !w.closed.Load() {
		w.connMu.Lock()
		conn := w.conn
		w.connMu.Unlock()

		if conn == nil {
			select {
			case <-w.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if w.closed.Load() {
				return
			}

			if !w.reconnecting.Swap(true) {
				go w.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > w.config.MaxReconnectDelay {
				reconnectDelay = w.config.MaxReconnectDelay
			}

			select {
			case <-w.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = w.config.ReconnectDelay

		w.handleMessage(message)
	}
}

func (w *HeadWatcher) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	if msg.Error != nil {
		w.logger.Printf("[evm] ws error code=%d message=%s", msg.Error.Code, msg.Error.Message)
		return
	}
	if msg.Method != "eth_subscription" || msg.Params.Result == nil {
		return
	}

	var raw wsHead
	if err := json.Unmarshal(msg.Params.Result, &raw); err != nil {
		return
	}
	head, err := decodeHead(raw)
	if err != nil {
		w.logger.Printf("[evm] ws decode head: %v", err)
		return
	}

	select {
	case w.heads <- head:
	default:
		// Drop on a full buffer; heads are a freshness signal, not a
		// durable stream.
	}
}

func decodeHead(raw wsHead) (Head, error) {
	number, err := hexutil.DecodeUint64(raw.Number)
	if err != nil {
		return Head{}, fmt.Errorf("number %q: %w", raw.Number, err)
	}
	head := Head{
		Number:     number,
		Hash:       strings.ToLower(raw.Hash),
		ReceivedAt: time.Now(),
	}
	if raw.Timestamp != "" {
		ts, err := hexutil.DecodeUint64(raw.Timestamp)
		if err != nil {
			return Head{}, fmt.Errorf("timestamp %q: %w", raw.Timestamp, err)
		}
		head.Timestamp = ts
	}
	if raw.BaseFee != "" {
		fee, err := hexutil.DecodeBig(raw.BaseFee)
		if err != nil {
			return Head{}, fmt.Errorf("baseFeePerGas %q: %w", raw.BaseFee, err)
		}
		head.BaseFee = fee
	}
	return head, nil
}

// reconnect attempts to reconnect and resubscribe.
func (w *HeadWatcher) reconnect(delay time.Duration) {
	defer w.reconnecting.Store(false)

	if w.closed.Load() {
		return
	}

	select {
	case <-w.done:
		return
	case <-time.After(delay):
	}

	w.connMu.Lock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := w.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}
	if err := w.subscribe(); err != nil {
		w.logger.Printf("[evm] ws resubscribe: %v", err)
		return
	}
	w.logger.Printf("[evm] ws reconnected endpoint=%s", w.endpoint)
}

// pingLoop sends periodic pings to keep the connection alive.
func (w *HeadWatcher) pingLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.connMu.Lock()
			conn := w.conn
			if conn != nil {
				conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
				conn.WriteMessage(websocket.PingMessage, nil)
			}
			w.connMu.Unlock()
		}
	}
}
