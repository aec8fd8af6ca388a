// Package transport delivers payloads to the control server. Each Sender
// wraps the payload in the {"data": ...} envelope before writing it.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Sender delivers one payload per call.
type Sender interface {
	Send(ctx context.Context, payload any) error
	Close() error
}

// Connector is implemented by senders that hold a connection and can
// open it ahead of the first Send.
type Connector interface {
	Connect(ctx context.Context) error
}

// Kind names a transport in configuration.
type Kind string

const (
	KindWebSocket Kind = "websocket"
	KindHTTP      Kind = "http"
	KindStdout    Kind = "stdout"
)

// Options are shared by every transport kind. Backoff is the first retry
// wait for WebSocket dials and HTTP posts.
type Options struct {
	Logger  *slog.Logger
	Retries int
	Backoff time.Duration
}

// New builds the Sender for kind.
func New(kind Kind, endpoint string, o Options) (Sender, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case KindWebSocket, "":
		return NewWebSocket(endpoint, WithWebSocketLogger(o.Logger), WithRetry(o.Retries, o.Backoff))
	case KindHTTP:
		return NewHTTP(endpoint, WithHTTPLogger(o.Logger), WithHTTPRetries(o.Retries), WithHTTPBackoff(o.Backoff)), nil
	case KindStdout:
		return NewStdout(nil), nil
	}
	return nil, fmt.Errorf("transport: unknown kind %q", kind)
}
