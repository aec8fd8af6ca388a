// Package bridge connects the overlay page to Go. It injects a small
// script into every document of the tab and receives its reports (mutation
// counts, clicks) through a CDP runtime binding.
package bridge

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/hazyhaar/overlayrelay/relay/internal/ready"
	"github.com/hazyhaar/overlayrelay/relay/structure"
)

// bridgeJS is an arrow function installing window.__overlayrelay.
//
//go:embed bridge.js
var bridgeJS string

const bindingName = "__overlayrelay_binding"

// Config selects the page regions the bridge watches.
type Config struct {
	// RootSelector is the container whose subtree is observed.
	RootSelector string
	// TickerSelector marks the live-ticker subtree; changes inside it are
	// counted separately. Empty disables the distinction.
	TickerSelector string
	Logger         *slog.Logger
}

// Bridge serves one tab. It implements ready.RootProbe,
// ready.ChangeSource and bind.Attacher.
type Bridge struct {
	page   *rod.Page
	cfg    Config
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	clicks    chan string
	navigated chan struct{}

	mu      sync.Mutex
	changes chan ready.Change
	obsCtx  context.Context
}

// New installs the binding and the script on page and starts listening.
// The bridge stops when ctx is done or Close is called.
func New(ctx context.Context, page *rod.Page, cfg Config) (*Bridge, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	b := &Bridge{
		page:      page,
		cfg:       cfg,
		logger:    cfg.Logger,
		ctx:       ctx,
		cancel:    cancel,
		clicks:    make(chan string, 64),
		navigated: make(chan struct{}, 1),
	}

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		cancel()
		return nil, fmt.Errorf("bridge: add binding: %w", err)
	}
	if _, err := page.EvalOnNewDocument("(" + bridgeJS + ")()"); err != nil {
		cancel()
		return nil, fmt.Errorf("bridge: register script: %w", err)
	}
	if err := b.inject(ctx); err != nil {
		cancel()
		return nil, err
	}

	go b.listen()
	return b, nil
}

// Close stops the listener.
func (b *Bridge) Close() { b.cancel() }

// Clicks delivers the token of every click on a bound element.
func (b *Bridge) Clicks() <-chan string { return b.clicks }

// Navigated signals that the main frame loaded a new document. Bindings
// and snapshots taken before it are stale.
func (b *Bridge) Navigated() <-chan struct{} { return b.navigated }

// RootPresent reports whether the root container exists.
func (b *Bridge) RootPresent(ctx context.Context) (bool, error) {
	res, err := b.call(ctx, "rootPresent", b.cfg.RootSelector)
	if err != nil {
		return false, err
	}
	return res.Bool(), nil
}

// Observe starts the page's mutation observer on the root container.
// It is disconnected when ctx is done.
func (b *Bridge) Observe(ctx context.Context) (<-chan ready.Change, error) {
	ch := make(chan ready.Change, 256)

	b.mu.Lock()
	b.changes = ch
	b.obsCtx = ctx
	b.mu.Unlock()

	res, err := b.call(ctx, "observe", b.cfg.RootSelector, b.cfg.TickerSelector)
	if err == nil && !res.Bool() {
		err = fmt.Errorf("bridge: root %q vanished", b.cfg.RootSelector)
	}
	if err != nil {
		b.stopObserving(ch)
		return nil, err
	}

	go func() {
		<-ctx.Done()
		b.stopObserving(ch)
		dctx, cancel := context.WithTimeout(b.ctx, 2*time.Second)
		defer cancel()
		if _, err := b.call(dctx, "disconnect"); err != nil && b.ctx.Err() == nil {
			b.logger.Debug("bridge: disconnect observer", "error", err)
		}
	}()
	return ch, nil
}

func (b *Bridge) stopObserving(ch chan ready.Change) {
	b.mu.Lock()
	if b.changes == ch {
		b.changes = nil
		b.obsCtx = nil
	}
	b.mu.Unlock()
}

// Attach installs a click listener on the element at ref.
func (b *Bridge) Attach(ctx context.Context, ref structure.ElementRef, token string) error {
	res, err := b.call(ctx, "bind", string(ref), token)
	if err != nil {
		return err
	}
	if !res.Bool() {
		return fmt.Errorf("bridge: no element at %s", ref)
	}
	return nil
}

func (b *Bridge) inject(ctx context.Context) error {
	if _, err := b.page.Context(ctx).Eval(bridgeJS); err != nil {
		return fmt.Errorf("bridge: inject: %w", err)
	}
	return nil
}

// result is the JSON value returned by a bridge method.
type result struct{ v *proto.RuntimeRemoteObject }

func (r result) Bool() bool { return r.v != nil && r.v.Value.Bool() }

// call invokes a method of the injected script, re-injecting it once if
// the current document does not have it yet.
func (b *Bridge) call(ctx context.Context, method string, args ...any) (result, error) {
	const js = `(m, ...a) => window.__overlayrelay ? window.__overlayrelay[m](...a) : undefined`
	all := append([]any{method}, args...)

	for attempt := 0; attempt < 2; attempt++ {
		res, err := b.page.Context(ctx).Eval(js, all...)
		if err != nil {
			return result{}, fmt.Errorf("bridge: %s: %w", method, err)
		}
		if res.Type != proto.RuntimeRemoteObjectTypeUndefined {
			return result{res}, nil
		}
		if err := b.inject(ctx); err != nil {
			return result{}, err
		}
	}
	return result{}, fmt.Errorf("bridge: %s: script unavailable", method)
}

// listen receives binding calls and main-frame navigations.
func (b *Bridge) listen() {
	b.page.Context(b.ctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name != bindingName {
				return
			}
			ev, err := decodeEvent(e.Payload)
			if err != nil {
				b.logger.Warn("bridge: bad payload", "error", err)
				return
			}
			b.handle(ev)
		},
		func(e *proto.PageFrameNavigated) {
			if e.Frame == nil || e.Frame.ParentID != "" {
				return
			}
			b.logger.Info("bridge: main frame navigated", "url", e.Frame.URL)
			select {
			case b.navigated <- struct{}{}:
			default:
			}
		},
	)()
}

func (b *Bridge) handle(ev event) {
	switch ev.Type {
	case eventMutation:
		b.mu.Lock()
		ch, octx := b.changes, b.obsCtx
		b.mu.Unlock()
		if ch == nil {
			return
		}
		select {
		case ch <- ready.Change{Total: ev.Total, Ticker: ev.Ticker}:
		case <-octx.Done():
		case <-b.ctx.Done():
		}

	case eventClick:
		select {
		case b.clicks <- ev.Token:
		case <-b.ctx.Done():
		}
	}
}

const (
	eventMutation = "mutation"
	eventClick    = "click"
)

// event is one report from the injected script.
type event struct {
	Type   string `json:"type"`
	Total  int    `json:"total"`
	Ticker int    `json:"ticker"`
	Token  string `json:"token"`
}

func decodeEvent(payload string) (event, error) {
	var ev event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, fmt.Errorf("bridge: decode: %w", err)
	}
	switch ev.Type {
	case eventMutation:
		if ev.Total < 0 || ev.Ticker < 0 || ev.Ticker > ev.Total {
			return ev, fmt.Errorf("bridge: mutation counts %d/%d out of range", ev.Ticker, ev.Total)
		}
	case eventClick:
		if ev.Token == "" {
			return ev, fmt.Errorf("bridge: click without token")
		}
	default:
		return ev, fmt.Errorf("bridge: unknown event type %q", ev.Type)
	}
	return ev, nil
}
