package transport

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/overlayrelay/relay/message"
)

// Stdout writes one JSON envelope per line. Used for dry runs without a
// control server.
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sender. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) Send(_ context.Context, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(message.Envelope{Data: payload})
}

func (s *Stdout) Close() error { return nil }
