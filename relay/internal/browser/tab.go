package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// NavigateTimeout bounds navigation and the load event of a new tab.
const NavigateTimeout = 30 * time.Second

// Tab is the page holding the overlay.
type Tab struct {
	Page    *rod.Page
	PageURL string
	logger  *slog.Logger
}

// OpenTab creates a blank tab for pageURL. Call Navigate to load it.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error
	if mgr.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	return &Tab{Page: page, PageURL: pageURL, logger: mgr.cfg.Logger}, nil
}

// Navigate loads the tab's URL. Per-document scripts must be installed
// before. A missing load event is logged, not fatal: the overlay keeps
// rendering long after it.
func (t *Tab) Navigate(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, NavigateTimeout)
	defer cancel()

	if err := t.Page.Context(navCtx).Navigate(t.PageURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", t.PageURL, err)
	}
	if err := t.Page.Context(navCtx).WaitLoad(); err != nil {
		t.logger.Warn("browser: wait load timeout", "url", t.PageURL, "error", err)
	}
	return nil
}

// HTML serialises the current document as outer HTML.
func (t *Tab) HTML(ctx context.Context) ([]byte, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("browser: get DOM: %w", err)
	}
	return []byte(res.Value.Str()), nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
