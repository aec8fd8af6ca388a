// CLAUDE:SUMMARY Single-connection WebSocket sender that dials lazily and re-dials on the next Send after a close or error.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hazyhaar/overlayrelay/relay/message"
)

// ConnState is the state of the WebSocket connection.
type ConnState int

const (
	StateClosed ConnState = iota
	StateConnecting
	StateOpen
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	}
	return "closed"
}

// DialError is returned when the connection could not be established.
type DialError struct {
	URL   string
	Cause error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("transport: dial %s: %v", e.URL, e.Cause)
}

func (e *DialError) Unwrap() error { return e.Cause }

// WebSocket holds at most one connection to a fixed endpoint. Send opens
// it when it is not open. Sends are serialized: a Send issued while
// another one is connecting waits for that attempt and writes after it.
type WebSocket struct {
	url          string
	dialer       *websocket.Dialer
	header       http.Header
	writeTimeout time.Duration
	retries      int
	backoff      time.Duration
	logger       *slog.Logger

	// sendMu serializes Connect and Send, including the dial.
	sendMu sync.Mutex

	// mu guards the fields below and is never held across network I/O.
	mu    sync.Mutex
	conn  *websocket.Conn
	state ConnState
	dials int
}

// WebSocketOption configures a WebSocket sender.
type WebSocketOption func(*WebSocket)

// WithWebSocketLogger sets a custom logger.
func WithWebSocketLogger(l *slog.Logger) WebSocketOption {
	return func(w *WebSocket) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithRetry makes a Send retry a failed dial up to n times, waiting base,
// 2*base, 4*base... between attempts. Default: no retry.
func WithRetry(n int, base time.Duration) WebSocketOption {
	return func(w *WebSocket) {
		w.retries = n
		w.backoff = base
	}
}

// WithHandshakeTimeout bounds the opening handshake. Default: 10s.
func WithHandshakeTimeout(d time.Duration) WebSocketOption {
	return func(w *WebSocket) { w.dialer.HandshakeTimeout = d }
}

// NewWebSocket creates a sender for endpoint. http and https URLs are
// mapped to ws and wss. No connection is made until Connect or Send.
func NewWebSocket(endpoint string, opts ...WebSocketOption) (*WebSocket, error) {
	u, err := wsURL(endpoint)
	if err != nil {
		return nil, err
	}
	w := &WebSocket{
		url: u,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		writeTimeout: 5 * time.Second,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

func wsURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("transport: endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("transport: endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}
	return u.String(), nil
}

// URL returns the normalized endpoint.
func (w *WebSocket) URL() string { return w.url }

// State returns the connection state.
func (w *WebSocket) State() ConnState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Dials returns how many connection attempts have been made.
func (w *WebSocket) Dials() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dials
}

// Connect opens the connection if it is not open.
func (w *WebSocket) Connect(ctx context.Context) error {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if w.current() != nil {
		return nil
	}
	_, err := w.connect(ctx)
	return err
}

// Send transmits {"data": payload}, connecting first when needed. A failed
// write drops the connection so the next Send dials again.
func (w *WebSocket) Send(ctx context.Context, payload any) error {
	body, err := message.Marshal(payload)
	if err != nil {
		return err
	}

	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	conn := w.current()
	if conn == nil {
		if conn, err = w.connect(ctx); err != nil {
			return err
		}
	}

	conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		w.logger.Warn("transport: websocket error", "url", w.url, "error", err)
		w.drop(conn)
		return fmt.Errorf("transport: write: %w", err)
	}
	w.logger.Debug("transport: sent", "url", w.url, "bytes", len(body))
	return nil
}

// Close closes the connection, if any.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	w.state = StateClosed
	w.mu.Unlock()

	if conn == nil {
		return nil
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

// current returns the open connection, nil when there is none.
func (w *WebSocket) current() *websocket.Conn {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateOpen {
		return nil
	}
	return w.conn
}

func (w *WebSocket) setState(s ConnState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// connect dials with retries. The caller holds sendMu.
func (w *WebSocket) connect(ctx context.Context) (*websocket.Conn, error) {
	var lastErr error
	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			wait := w.backoff * (1 << uint(attempt-1))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				w.setState(StateClosed)
				return nil, ctx.Err()
			}
		}

		w.mu.Lock()
		w.state = StateConnecting
		w.dials++
		w.mu.Unlock()

		conn, _, err := w.dialer.DialContext(ctx, w.url, w.header)
		if err != nil {
			lastErr = err
			w.setState(StateClosed)
			w.logger.Warn("transport: websocket error", "url", w.url, "attempt", attempt+1, "error", err)
			continue
		}

		w.mu.Lock()
		w.conn = conn
		w.state = StateOpen
		w.mu.Unlock()
		w.logger.Info("transport: websocket opened", "url", w.url)
		go w.readLoop(conn)
		return conn, nil
	}
	return nil, &DialError{URL: w.url, Cause: lastErr}
}

// readLoop drains incoming frames so close frames and network failures
// are noticed between sends.
func (w *WebSocket) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			w.mu.Lock()
			current := w.conn == conn
			if current {
				w.conn = nil
				w.state = StateClosed
			}
			w.mu.Unlock()

			if current {
				w.logger.Info("transport: websocket closed", "url", w.url, "reason", err)
			}
			conn.Close()
			return
		}
	}
}

func (w *WebSocket) drop(conn *websocket.Conn) {
	w.mu.Lock()
	if w.conn == conn {
		w.conn = nil
		w.state = StateClosed
	}
	w.mu.Unlock()
	conn.Close()
}
