// Package bind wires configured labels to click actions on the overlay
// page and dispatches the clicks back to those actions.
package bind

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/hazyhaar/overlayrelay/relay/structure"
)

var (
	// ErrLabelNotFound: no Text node carries the entry's label.
	ErrLabelNotFound = errors.New("bind: label not found")
	// ErrNoContainer: the matched node has no Container on its ancestor chain.
	ErrNoContainer = errors.New("bind: no container ancestor")
	// ErrUnknownLabel: Fire was called with a label no entry declares.
	ErrUnknownLabel = errors.New("bind: unknown label")
	// ErrNotBound: a click arrived for an entry that failed to bind.
	ErrNotBound = errors.New("bind: entry not bound")
)

// TargetKind is the kind of node that receives the click listener: the
// nearest Container at or above the node whose text matched.
const TargetKind = structure.KindContainer

// Action runs when the bound element is clicked.
type Action func(ctx context.Context) error

// Entry pairs the text to look for with the action to run.
type Entry struct {
	Label  string
	Action Action
}

// Attacher installs a click listener on a page element. Clicks are
// reported back with the token.
type Attacher interface {
	Attach(ctx context.Context, ref structure.ElementRef, token string) error
}

// Result is the outcome of binding one entry.
type Result struct {
	Label  string               `json:"label"`
	Token  string               `json:"token"`
	Match  string               `json:"match,omitempty"`  // data-cy of the matched Text node
	Target string               `json:"target,omitempty"` // data-cy of the clicked container
	Ref    structure.ElementRef `json:"ref,omitempty"`
	Err    error                `json:"-"`
}

// OK reports whether the entry is bound.
func (r Result) OK() bool { return r.Err == nil }

// Binder owns the entry list and the outcome of the latest Bind.
type Binder struct {
	entries []Entry
	logger  *slog.Logger

	mu      sync.RWMutex
	results []Result
}

// New creates a Binder for entries. The list is not modified afterwards.
func New(entries []Entry, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &Binder{entries: cp, logger: logger}
}

// Token returns the click token of entry i.
func Token(i int) string { return strconv.Itoa(i) }

// Bind attaches every entry against snap. A failing entry is reported in
// its Result and does not stop the others. The results replace those of
// the previous Bind.
func (b *Binder) Bind(ctx context.Context, snap *structure.Snapshot, att Attacher) []Result {
	results := make([]Result, len(b.entries))
	for i, e := range b.entries {
		results[i] = b.bindOne(ctx, snap, att, i, e)
		if err := results[i].Err; err != nil {
			b.logger.Warn("bind: entry not bound", "label", e.Label, "error", err)
		} else {
			b.logger.Info("bind: entry bound",
				"label", e.Label, "target", results[i].Target, "ref", results[i].Ref)
		}
	}

	b.mu.Lock()
	b.results = results
	b.mu.Unlock()

	out := make([]Result, len(results))
	copy(out, results)
	return out
}

func (b *Binder) bindOne(ctx context.Context, snap *structure.Snapshot, att Attacher, i int, e Entry) Result {
	r := Result{Label: e.Label, Token: Token(i)}

	match, ok := snap.Find(structure.FieldText, e.Label)
	if !ok {
		r.Err = fmt.Errorf("%w: %q", ErrLabelNotFound, e.Label)
		return r
	}
	mn, _ := snap.Node(match)
	r.Match = mn.ID

	target, ok := snap.Closest(match, TargetKind)
	if !ok {
		r.Err = fmt.Errorf("%w: %q matched %s", ErrNoContainer, e.Label, mn.ID)
		return r
	}
	tn, _ := snap.Node(target)
	r.Target = tn.ID
	r.Ref = tn.Ref

	if err := att.Attach(ctx, tn.Ref, r.Token); err != nil {
		r.Err = fmt.Errorf("bind: attach %s: %w", tn.ID, err)
	}
	return r
}

// Results returns the outcome of the latest Bind.
func (b *Binder) Results() []Result {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Result, len(b.results))
	copy(out, b.results)
	return out
}

// Dispatch runs the action of the entry a click token belongs to.
func (b *Binder) Dispatch(ctx context.Context, token string) error {
	i, err := strconv.Atoi(token)
	if err != nil || i < 0 || i >= len(b.entries) {
		return fmt.Errorf("bind: unknown token %q", token)
	}

	b.mu.RLock()
	bound := i < len(b.results) && b.results[i].OK()
	b.mu.RUnlock()
	if !bound {
		return fmt.Errorf("%w: %q", ErrNotBound, b.entries[i].Label)
	}
	return b.entries[i].Action(ctx)
}

// Fire runs the action of the first entry with the given label, bound or
// not.
func (b *Binder) Fire(ctx context.Context, label string) error {
	for _, e := range b.entries {
		if e.Label == label {
			return e.Action(ctx)
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownLabel, label)
}
