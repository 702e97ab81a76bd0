// File: internal/browser/page.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/clipsight/internal/config"
)

// closeSelectors are the overlay dismiss targets, tried in order. Login and
// cookie modals rotate their markup frequently, so the list is deliberately
// broad.
var closeSelectors = []string{
	`[data-e2e="modal-close-inner-button"]`,
	`[data-e2e="modal-close"]`,
	`button[aria-label="Close"]`,
	`div[role="dialog"] button`,
	`svg[class*="StyledCloseIcon"]`,
	`#login-modal-close`,
}

const screenshotQuality = 80

// Page is one Chrome tab. All methods honor the caller's context on top of
// the tab's own lifetime.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.BrowserConfig
	logger *zap.Logger
}

// run executes actions against the tab, aborting early if the caller's
// context is cancelled.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, opCancel := context.WithCancel(p.ctx)
	defer opCancel()
	stop := context.AfterFunc(ctx, opCancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// runWithTimeout is run with an additional deadline on the operation itself.
func (p *Page) runWithTimeout(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.run(opCtx, actions...)
}

// Navigate loads a URL and waits for the body element to exist.
func (p *Page) Navigate(ctx context.Context, url string) error {
	err := p.runWithTimeout(ctx, p.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Title returns the current document title.
func (p *Page) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return title, nil
}

// HTML returns the full serialized document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	return html, nil
}

// Screenshot captures the full page as JPEG bytes.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, screenshotQuality)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// dismissScript clicks the first visible element matching any of the close
// selectors and reports whether anything was clicked.
func dismissScript() string {
	sels, _ := json.Marshal(closeSelectors)
	return fmt.Sprintf(`(() => {
        for (const sel of %s) {
            for (const el of document.querySelectorAll(sel)) {
                const r = el.getBoundingClientRect();
                if (r.width > 0 && r.height > 0) {
                    el.click();
                    return true;
                }
            }
        }
        return false;
    })()`, string(sels))
}

// DismissOverlays tries to clear login and cookie modals: Escape first, then
// known close buttons, then a click in the top-left corner which collapses
// some full-screen interstitials. Best effort; one pass only.
func (p *Page) DismissOverlays(ctx context.Context) error {
	var clicked bool
	err := p.run(ctx,
		chromedp.KeyEvent(kb.Escape),
		chromedp.Evaluate(dismissScript(), &clicked),
		chromedp.MouseClickXY(10, 10),
	)
	if err != nil {
		return fmt.Errorf("overlay dismissal failed: %w", err)
	}
	if clicked {
		p.logger.Debug("Dismissed an overlay")
	}
	return nil
}

// Scroll scrolls the window to the given vertical offset.
func (p *Page) Scroll(ctx context.Context, y int) error {
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollTo(0, %d)", y), nil)); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// WaitVisible blocks until the selector matches a visible element or the
// timeout lapses.
func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	err := p.runWithTimeout(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err != nil {
		return fmt.Errorf("selector %q did not appear: %w", selector, err)
	}
	return nil
}

const networkIdleQuietPeriod = 500 * time.Millisecond

// WaitNetworkIdle waits for the document to finish loading plus a short
// quiet period, giving embedded state scripts time to land. A timeout is not
// an error; the page is used as-is.
func (p *Page) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		var state string
		if err := p.run(ctx, chromedp.Evaluate("document.readyState", &state)); err != nil {
			return err
		}
		if state == "complete" {
			break
		}
		if time.Now().After(deadline) {
			p.logger.Debug("Page never reached readyState complete", zap.Duration("timeout", timeout))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(networkIdleQuietPeriod):
	}
	return nil
}

// Hrefs returns the href attribute of every element matching the selector.
func (p *Page) Hrefs(ctx context.Context, selector string) ([]string, error) {
	script := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q)).map(el => el.href).filter(Boolean)`,
		selector)

	var hrefs []string
	if err := p.run(ctx, chromedp.Evaluate(script, &hrefs)); err != nil {
		return nil, fmt.Errorf("failed to collect links: %w", err)
	}
	return hrefs, nil
}

// Close closes the tab. Safe to call more than once.
func (p *Page) Close() error {
	p.cancel()
	return nil
}
