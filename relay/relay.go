// CLAUDE:SUMMARY Orchestrates one overlay tab: ready detection, snapshot, label binding and click relaying.
// Package relay turns clicks on a third-party broadcast overlay into
// control messages. It waits for the overlay to finish rendering, indexes
// its data-cy structure into a Snapshot, attaches click handlers to the
// containers of configured labels, and sends each binding's payload to
// the control server when its container is clicked.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/overlayrelay/relay/internal/bind"
	"github.com/hazyhaar/overlayrelay/relay/internal/bridge"
	"github.com/hazyhaar/overlayrelay/relay/internal/browser"
	"github.com/hazyhaar/overlayrelay/relay/internal/ready"
	"github.com/hazyhaar/overlayrelay/relay/internal/status"
	"github.com/hazyhaar/overlayrelay/relay/internal/transport"
	"github.com/hazyhaar/overlayrelay/relay/structure"
)

// ErrRootNotFound ends Run when the overlay's root container never appears.
var ErrRootNotFound = ready.ErrRootNotFound

// page is the browser side of a cycle.
type page interface {
	ready.RootProbe
	ready.ChangeSource
	bind.Attacher
	HTML(ctx context.Context) ([]byte, error)
	Clicks() <-chan string
	Navigated() <-chan struct{}
}

// Relay holds everything one overlay session needs. Create it with New
// and drive it with Run.
type Relay struct {
	cfg     *Config
	logger  *slog.Logger
	session string

	sender transport.Sender
	binder *bind.Binder
	mgr    *browser.Manager

	snap     atomic.Pointer[structure.Snapshot]
	detector atomic.Pointer[ready.Detector]
	cycles   atomic.Int64
}

// Option configures a Relay.
type Option func(*Relay)

// WithSender replaces the transport built from cfg.Endpoint.
func WithSender(s transport.Sender) Option {
	return func(r *Relay) { r.sender = s }
}

// New creates a Relay from configuration. The browser is not started
// until Run.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Relay, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	session := uuid.Must(uuid.NewV7()).String()
	r := &Relay{
		cfg:     cfg,
		logger:  logger.With("session", session),
		session: session,
	}
	for _, o := range opts {
		o(r)
	}

	if r.sender == nil {
		s, err := transport.New(transport.Kind(cfg.Endpoint.Transport), cfg.Endpoint.URL, transport.Options{
			Logger:  r.logger,
			Retries: cfg.Endpoint.Retries,
			Backoff: cfg.Endpoint.Backoff,
		})
		if err != nil {
			return nil, fmt.Errorf("relay: %w", err)
		}
		r.sender = s
	}

	entries := make([]bind.Entry, len(cfg.Bindings))
	for i, b := range cfg.Bindings {
		payload, err := cfg.BindingPayload(i)
		if err != nil {
			return nil, fmt.Errorf("relay: binding %q: %w", b.Label, err)
		}
		entries[i] = bind.Entry{Label: b.Label, Action: r.sendAction(b.Label, payload)}
	}
	r.binder = bind.New(entries, r.logger)

	r.mgr = browser.NewManager(browser.Config{
		RemoteURL: cfg.Browser.Remote,
		Headless:  cfg.Browser.Headless,
		Stealth:   cfg.Browser.Stealth,
		Bin:       cfg.Browser.Bin,
		Logger:    r.logger,
	})
	return r, nil
}

func (r *Relay) sendAction(label string, payload any) bind.Action {
	return func(ctx context.Context) error {
		if err := r.sender.Send(ctx, payload); err != nil {
			return fmt.Errorf("relay: send %q: %w", label, err)
		}
		r.logger.Info("relay: payload sent", "label", label)
		return nil
	}
}

// Run starts the browser, opens the overlay and runs page-ready cycles
// until ctx is done. Each main-frame navigation starts a new cycle.
func (r *Relay) Run(ctx context.Context) error {
	if c, ok := r.sender.(transport.Connector); ok {
		if err := c.Connect(ctx); err != nil {
			r.logger.Warn("relay: control server not reachable yet", "error", err)
		}
	}

	if _, err := r.mgr.Start(ctx); err != nil {
		return fmt.Errorf("relay: start browser: %w", err)
	}

	tab, err := browser.OpenTab(ctx, r.mgr, r.cfg.Page.URL)
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	defer tab.Close()

	br, err := bridge.New(ctx, tab.Page, bridge.Config{
		RootSelector:   r.cfg.Page.RootSelector,
		TickerSelector: r.cfg.Page.TickerSelector,
		Logger:         r.logger,
	})
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	defer br.Close()

	if err := tab.Navigate(ctx); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	// The initial load is not a reload.
	awaitNavigation(ctx, br.Navigated(), initialNavigationGrace)

	r.logger.Info("relay: overlay opened", "url", r.cfg.Page.URL)
	return r.serve(ctx, tabPage{Bridge: br, tab: tab})
}

// initialNavigationGrace bounds the wait for the frame-navigated event of
// the initial load, which the bridge may deliver after Navigate returns.
const initialNavigationGrace = 5 * time.Second

// awaitNavigation consumes one navigation signal, waiting at most grace.
// It reports whether one was consumed.
func awaitNavigation(ctx context.Context, navigated <-chan struct{}, grace time.Duration) bool {
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-navigated:
		return true
	case <-t.C:
	case <-ctx.Done():
	}
	return false
}

// tabPage pairs the bridge with the tab it serves.
type tabPage struct {
	*bridge.Bridge
	tab *browser.Tab
}

func (p tabPage) HTML(ctx context.Context) ([]byte, error) { return p.tab.HTML(ctx) }

// serve dispatches clicks and runs cycles until ctx is done.
func (r *Relay) serve(ctx context.Context, p page) error {
	go r.dispatch(ctx, p.Clicks())

	for {
		cctx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- r.cycle(cctx, p) }()

		var err error
		select {
		case err = <-done:
		case <-p.Navigated():
			cancel()
			<-done
			r.logger.Info("relay: navigated during cycle, restarting")
			continue
		case <-ctx.Done():
		}
		cancel()

		if ctx.Err() != nil {
			<-done
			return nil
		}
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-p.Navigated():
			r.logger.Info("relay: page reloaded, rebuilding")
		}
	}
}

// cycle waits for the page to settle, snapshots it and binds every entry.
func (r *Relay) cycle(ctx context.Context, p page) error {
	n := r.cycles.Add(1)
	log := r.logger.With("cycle", n)

	det := ready.New(ready.Config{
		PollInterval: r.cfg.Ready.PollInterval,
		MaxPolls:     r.cfg.Ready.MaxPolls,
		Debounce:     r.cfg.Ready.Debounce,
		Logger:       log,
	}, p, p)
	r.detector.Store(det)

	if err := det.Wait(ctx); err != nil {
		if errors.Is(err, ready.ErrRootNotFound) {
			log.Error("relay: root container never appeared", "selector", r.cfg.Page.RootSelector)
		}
		return fmt.Errorf("relay: cycle %d: %w", n, err)
	}

	html, err := p.HTML(ctx)
	if err != nil {
		return fmt.Errorf("relay: cycle %d: %w", n, err)
	}
	snap, err := structure.Parse(bytes.NewReader(html), r.cfg.Page.URL)
	if err != nil {
		return fmt.Errorf("relay: cycle %d: %w", n, err)
	}
	for _, issue := range snap.Issues {
		log.Warn("relay: snapshot issue", "error", issue)
	}
	r.snap.Store(snap)
	log.Info("relay: snapshot taken", "snapshot", snap.ID, "nodes", snap.Len())

	results := r.binder.Bind(ctx, snap, p)
	bound := 0
	for _, res := range results {
		if res.OK() {
			bound++
		}
	}
	log.Info("relay: bindings attached", "bound", bound, "total", len(results))
	return nil
}

// dispatch runs click actions one at a time, in arrival order.
func (r *Relay) dispatch(ctx context.Context, clicks <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case token := <-clicks:
			if err := r.binder.Dispatch(ctx, token); err != nil {
				r.logger.Warn("relay: click not relayed", "token", token, "error", err)
			}
		}
	}
}

// Snapshot returns the latest snapshot, nil before the first ready signal.
func (r *Relay) Snapshot() *structure.Snapshot { return r.snap.Load() }

// Bindings returns the outcome of the latest bind.
func (r *Relay) Bindings() []bind.Result { return r.binder.Results() }

// Fire sends the payload of the binding labelled label, as a click would.
func (r *Relay) Fire(ctx context.Context, label string) error {
	return r.binder.Fire(ctx, label)
}

// Health reports the detector state, the transport connection and the
// current snapshot.
func (r *Relay) Health() status.Health {
	h := status.Health{
		State:      ready.StateIdle.String(),
		Connection: "n/a",
		Cycles:     r.cycles.Load(),
	}
	if d := r.detector.Load(); d != nil {
		h.State = d.State().String()
	}
	if ws, ok := r.sender.(interface{ State() transport.ConnState }); ok {
		h.Connection = ws.State().String()
	}
	if s := r.snap.Load(); s != nil {
		h.SnapshotID = s.ID
	}
	return h
}

// Handler returns the status router.
func (r *Relay) Handler() http.Handler { return status.NewRouter(r, r.logger) }

// Close releases the transport and the browser.
func (r *Relay) Close() error {
	return errors.Join(r.sender.Close(), r.mgr.Close())
}
