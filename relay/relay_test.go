package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hazyhaar/overlayrelay/relay/internal/bind"
	"github.com/hazyhaar/overlayrelay/relay/internal/ready"
	"github.com/hazyhaar/overlayrelay/relay/internal/transport"
	"github.com/hazyhaar/overlayrelay/relay/structure"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const overlay = `<html><body><div id="root-container">
<div data-cy="Region-map">
  <div data-cy="Overlay-states">
    <div data-cy="Container-arizona">
      <div data-cy="Text-az"><span data-cy="Text-content">AZ</span></div>
      <div data-cy="Image-flag-az"></div>
    </div>
    <div data-cy="Container-california">
      <div data-cy="Text-ca"><span data-cy="Text-content">CA</span></div>
    </div>
    <div data-cy="Container-ticker">
      <div data-cy="Text-news"><span data-cy="Text-content">Polls close at 8</span></div>
    </div>
  </div>
</div>
</div></body></html>`

// fakePage plays the browser side of a cycle.
type fakePage struct {
	rootAfter int // RootPresent turns true on this poll; <0 never

	mu       sync.Mutex
	polls    int
	attached map[structure.ElementRef]string

	clicks    chan string
	navigated chan struct{}
}

func newFakePage() *fakePage {
	return &fakePage{
		attached:  make(map[structure.ElementRef]string),
		clicks:    make(chan string, 4),
		navigated: make(chan struct{}, 1),
	}
}

func (f *fakePage) RootPresent(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return f.rootAfter >= 0 && f.polls > f.rootAfter, nil
}

// Observe reports a short render burst and then stays quiet.
func (f *fakePage) Observe(ctx context.Context) (<-chan ready.Change, error) {
	ch := make(chan ready.Change, 3)
	ch <- ready.Change{Total: 12}
	ch <- ready.Change{Total: 4, Ticker: 1}
	ch <- ready.Change{Total: 2, Ticker: 2}
	return ch, nil
}

func (f *fakePage) Attach(_ context.Context, ref structure.ElementRef, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached[ref] = token
	return nil
}

func (f *fakePage) token(ref structure.ElementRef) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attached[ref]
}

func (f *fakePage) HTML(context.Context) ([]byte, error) { return []byte(overlay), nil }
func (f *fakePage) Clicks() <-chan string               { return f.clicks }
func (f *fakePage) Navigated() <-chan struct{}          { return f.navigated }

// controlServer collects the text frames of every connection.
func controlServer(t *testing.T) (*httptest.Server, <-chan string) {
	t.Helper()
	got := make(chan string, 16)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			got <- string(data)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Ready.PollInterval = 5 * time.Millisecond
	cfg.Ready.MaxPolls = 20
	cfg.Ready.Debounce = 30 * time.Millisecond
	cfg.Bindings = []BindingConfig{
		{Label: "AZ", Value: "AZ", Format: "state"},
		{Label: "CA", Value: "CA", Format: "state"},
		{Label: "NV", Value: "NV", Format: "state"},
	}
	return cfg
}

func newRelay(t *testing.T, endpoint string) *Relay {
	t.Helper()
	ws, err := transport.NewWebSocket(endpoint, transport.WithWebSocketLogger(quiet))
	if err != nil {
		t.Fatal(err)
	}
	r, err := New(testConfig(), quiet, WithSender(ws))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRelay_ClickSendsOnlyItsPayload(t *testing.T) {
	srv, got := controlServer(t)
	r := newRelay(t, srv.URL)
	fp := newFakePage()
	fp.rootAfter = 2

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.serve(ctx, fp) }()

	waitFor(t, "bindings", func() bool { return len(r.Bindings()) == 3 })

	snap := r.Snapshot()
	if snap == nil {
		t.Fatal("no snapshot after ready")
	}
	res := r.Bindings()
	if !res[0].OK() || res[0].Target != "Container-arizona" {
		t.Fatalf("AZ: %+v", res[0])
	}
	if !errors.Is(res[2].Err, bind.ErrLabelNotFound) {
		t.Errorf("NV: got %v, want label not found", res[2].Err)
	}
	if h := r.Health(); h.State != "ready" || h.SnapshotID != snap.ID {
		t.Errorf("health: %+v", h)
	}

	fp.clicks <- fp.token(res[0].Ref)

	select {
	case m := <-got:
		want := `{"data":{"action":"set current state","statePostal":"AZ","sendData":"flowics"}}`
		if m != want {
			t.Errorf("frame: got %s, want %s", m, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
	select {
	case m := <-got:
		t.Errorf("unexpected second frame %s", m)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("serve: %v", err)
	}
}

func TestRelay_RebuildsAfterNavigation(t *testing.T) {
	srv, _ := controlServer(t)
	r := newRelay(t, srv.URL)
	fp := newFakePage()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.serve(ctx, fp)

	waitFor(t, "first snapshot", func() bool { return r.Snapshot() != nil })
	first := r.Snapshot().ID

	fp.navigated <- struct{}{}
	waitFor(t, "second snapshot", func() bool {
		s := r.Snapshot()
		return s != nil && s.ID != first
	})
	if n := r.Health().Cycles; n < 2 {
		t.Errorf("cycles: got %d, want >= 2", n)
	}
}

func TestRelay_RootNeverAppears(t *testing.T) {
	srv, _ := controlServer(t)
	r := newRelay(t, srv.URL)
	fp := newFakePage()
	fp.rootAfter = -1

	err := r.serve(context.Background(), fp)
	if !errors.Is(err, ErrRootNotFound) {
		t.Fatalf("serve: got %v, want ErrRootNotFound", err)
	}
	if r.Snapshot() != nil {
		t.Error("snapshot published without a ready signal")
	}
}

func TestRelay_Fire(t *testing.T) {
	srv, got := controlServer(t)
	r := newRelay(t, srv.URL)

	if err := r.Fire(context.Background(), "CA"); err != nil {
		t.Fatalf("Fire: %v", err)
	}
	select {
	case m := <-got:
		var env struct {
			Data map[string]string `json:"data"`
		}
		if err := json.Unmarshal([]byte(m), &env); err != nil {
			t.Fatal(err)
		}
		if env.Data["statePostal"] != "CA" {
			t.Errorf("frame: got %s", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Bindings[0].Value = "Arizona"
	if _, err := New(cfg, quiet); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestAwaitNavigation_ConsumesLateInitialLoad(t *testing.T) {
	nav := make(chan struct{}, 1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		nav <- struct{}{}
	}()

	if !awaitNavigation(context.Background(), nav, time.Second) {
		t.Fatal("late navigation not consumed")
	}
	select {
	case <-nav:
		t.Fatal("navigation left pending")
	default:
	}

	start := time.Now()
	if awaitNavigation(context.Background(), nav, 20*time.Millisecond) {
		t.Error("consumed a navigation that never happened")
	}
	if time.Since(start) > time.Second {
		t.Error("grace period not honoured")
	}
}
