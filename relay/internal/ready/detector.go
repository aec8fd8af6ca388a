// Package ready decides when the overlay page has finished rendering.
//
// The vendor page gives no load signal of its own. The detector waits for
// the root container to exist, then watches mutations below it and
// declares the page ready once they have been quiet for one debounce
// window.
package ready

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ErrRootNotFound is returned when the root container did not appear
// within MaxPolls polls.
var ErrRootNotFound = errors.New("ready: root container not found")

// State is the detector's position in its state machine.
type State int32

const (
	StateIdle State = iota
	StateWaitingForRoot
	StateObserving
	StateReady
)

func (s State) String() string {
	switch s {
	case StateWaitingForRoot:
		return "waiting-for-root"
	case StateObserving:
		return "observing"
	case StateReady:
		return "ready"
	}
	return "idle"
}

// Change is one notification from the page's mutation observer. Total
// counts the mutation records it covers, Ticker how many of them fall in
// the live-ticker subtree.
type Change struct {
	Total  int
	Ticker int
}

// Settling reports whether the change touches anything outside the
// live-ticker subtree.
func (c Change) Settling() bool { return c.Total > c.Ticker }

// RootProbe reports whether the root container exists yet.
type RootProbe interface {
	RootPresent(ctx context.Context) (bool, error)
}

// ChangeSource starts mutation observation below the root container.
// Observation stops when ctx is cancelled.
type ChangeSource interface {
	Observe(ctx context.Context) (<-chan Change, error)
}

// Config controls polling and debouncing.
type Config struct {
	// PollInterval between root probes. Default: 500ms.
	PollInterval time.Duration
	// MaxPolls bounds the waiting-for-root state. Zero or negative polls forever.
	MaxPolls int
	// Debounce is the quiet period after the last change. Default: 1s.
	Debounce time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.Debounce <= 0 {
		c.Debounce = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Detector runs the waiting-for-root → observing → ready state machine.
// One Detector serves one page-ready cycle.
type Detector struct {
	cfg    Config
	probe  RootProbe
	source ChangeSource
	state  atomic.Int32
}

// New creates a Detector.
func New(cfg Config, probe RootProbe, source ChangeSource) *Detector {
	cfg.defaults()
	return &Detector{cfg: cfg, probe: probe, source: source}
}

// State returns the current state.
func (d *Detector) State() State { return State(d.state.Load()) }

// Wait blocks until the page is ready, the root never shows up, or ctx
// is done. It returns nil exactly once per ready signal.
func (d *Detector) Wait(ctx context.Context) error {
	d.state.Store(int32(StateWaitingForRoot))
	if err := d.waitRoot(ctx); err != nil {
		d.state.Store(int32(StateIdle))
		return err
	}

	d.state.Store(int32(StateObserving))
	if err := d.observe(ctx); err != nil {
		d.state.Store(int32(StateIdle))
		return err
	}

	d.state.Store(int32(StateReady))
	return nil
}

func (d *Detector) waitRoot(ctx context.Context) error {
	log := d.cfg.Logger
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for polls := 1; ; polls++ {
		ok, err := d.probe.RootPresent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("ready: root probe failed", "poll", polls, "error", err)
		}
		if ok {
			log.Debug("ready: root container present", "polls", polls)
			return nil
		}
		if d.cfg.MaxPolls > 0 && polls >= d.cfg.MaxPolls {
			return fmt.Errorf("%w after %d polls", ErrRootNotFound, polls)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// observe arms the debounce timer on entry and re-arms it on every
// settling change. Ticker-only changes leave it running.
func (d *Detector) observe(ctx context.Context) error {
	obsCtx, stop := context.WithCancel(ctx)
	defer stop()

	changes, err := d.source.Observe(obsCtx)
	if err != nil {
		return fmt.Errorf("ready: observe: %w", err)
	}

	timer := time.NewTimer(d.cfg.Debounce)
	defer timer.Stop()

	var settling, ignored int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case c := <-changes:
			if !c.Settling() {
				ignored++
				continue
			}
			settling++
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d.cfg.Debounce)

		case <-timer.C:
			d.cfg.Logger.Info("ready: page settled",
				"changes", settling, "ticker_changes", ignored, "debounce", d.cfg.Debounce)
			return nil
		}
	}
}
