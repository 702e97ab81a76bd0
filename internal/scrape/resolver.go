// File: internal/scrape/resolver.go
package scrape

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/clipsight/internal/config"
)

const videoLinkSelector = `a[href*="/video/"]`

// lazyLoadScrollOffset is the single scroll applied after landing on a
// results page to trigger lazy content loading.
const lazyLoadScrollOffset = 500

// Resolver turns a search keyword into a bounded, deduplicated list of
// candidate video URLs. "No results" is a valid outcome, not an error; the
// resolver only fails on navigation-level problems.
type Resolver struct {
	cfg    config.ScraperConfig
	logger *zap.Logger
}

// NewResolver creates a search resolver.
func NewResolver(cfg config.ScraperConfig, logger *zap.Logger) *Resolver {
	return &Resolver{
		cfg:    cfg,
		logger: logger.Named("resolver"),
	}
}

// Search resolves up to limit candidate URLs for the keyword. When the
// primary search page yields nothing (commonly because of a login wall), it
// falls back to the hashtag page for the keyword before giving up.
func (r *Resolver) Search(ctx context.Context, page Page, keyword string, limit int) ([]CandidateURL, error) {
	if limit < 1 {
		return nil, fmt.Errorf("search limit must be at least 1, got %d", limit)
	}

	searchURL := fmt.Sprintf("%s/search?q=%s", r.cfg.BaseURL, url.QueryEscape(keyword))
	r.logger.Info("Resolving candidates", zap.String("keyword", keyword), zap.String("url", searchURL))

	if err := page.Navigate(ctx, searchURL); err != nil {
		return nil, fmt.Errorf("failed to navigate to search page: %w", err)
	}

	if err := page.DismissOverlays(ctx); err != nil {
		// Dismissal is best-effort; a stubborn modal just degrades results.
		r.logger.Debug("Overlay dismissal reported an error", zap.Error(err))
	}

	links, err := r.collectLinks(ctx, page)
	if err != nil {
		return nil, err
	}

	if len(links) == 0 {
		r.logger.Warn("Primary search yielded no links, trying hashtag fallback", zap.String("keyword", keyword))
		links, err = r.hashtagFallback(ctx, page, keyword)
		if err != nil {
			return nil, err
		}
	}

	if len(links) == 0 {
		r.captureDebugScreenshot(ctx, page, keyword)
		return nil, nil
	}

	if len(links) > limit {
		links = links[:limit]
	}

	candidates := make([]CandidateURL, 0, len(links))
	for _, link := range links {
		candidates = append(candidates, CandidateURL{
			URL:        link,
			ExternalID: ParseExternalID(link),
		})
	}
	r.logger.Info("Candidates resolved", zap.String("keyword", keyword), zap.Int("count", len(candidates)))
	return candidates, nil
}

// collectLinks scrolls to trigger lazy loading, waits a bounded time for at
// least one video link, and gathers all matches. A selector-wait timeout is
// tolerated: whatever rendered so far is still collected.
func (r *Resolver) collectLinks(ctx context.Context, page Page) ([]string, error) {
	if err := page.Scroll(ctx, lazyLoadScrollOffset); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Debug("Scroll failed", zap.Error(err))
	}

	if err := page.WaitVisible(ctx, videoLinkSelector, r.cfg.SelectorTimeout); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Debug("Timed out waiting for video links, collecting anyway", zap.Error(err))
	}

	hrefs, err := page.Hrefs(ctx, videoLinkSelector)
	if err != nil {
		return nil, fmt.Errorf("failed to collect video links: %w", err)
	}
	return dedupeLinks(hrefs), nil
}

// hashtagFallback repeats collection against the tag page constructed from
// the keyword with spaces removed.
func (r *Resolver) hashtagFallback(ctx context.Context, page Page, keyword string) ([]string, error) {
	tag := strings.ReplaceAll(keyword, " ", "")
	tagURL := fmt.Sprintf("%s/tag/%s", r.cfg.BaseURL, url.PathEscape(tag))

	r.logger.Info("Navigating to hashtag page", zap.String("url", tagURL))
	if err := page.Navigate(ctx, tagURL); err != nil {
		return nil, fmt.Errorf("failed to navigate to hashtag page: %w", err)
	}

	return r.collectLinks(ctx, page)
}

// captureDebugScreenshot stores a screenshot of the empty results page for
// operator debugging. Failures here never affect the search outcome.
func (r *Resolver) captureDebugScreenshot(ctx context.Context, page Page, keyword string) {
	shot, err := page.Screenshot(ctx)
	if err != nil {
		r.logger.Debug("Failed to capture debug screenshot", zap.Error(err))
		return
	}

	name := fmt.Sprintf("search_debug_%s_%d.png", strings.ReplaceAll(keyword, " ", "_"), time.Now().Unix())
	path := filepath.Join(r.cfg.DebugScreenshotDir, name)
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		r.logger.Debug("Failed to write debug screenshot", zap.String("path", path), zap.Error(err))
		return
	}
	r.logger.Warn("No videos found after fallback, debug screenshot saved", zap.String("path", path))
}

// dedupeLinks removes exact duplicates while keeping first-seen order, and
// drops anything that is not a video link.
func dedupeLinks(hrefs []string) []string {
	seen := make(map[string]struct{}, len(hrefs))
	var out []string
	for _, href := range hrefs {
		if href == "" || !strings.Contains(href, "/video/") {
			continue
		}
		if _, ok := seen[href]; ok {
			continue
		}
		seen[href] = struct{}{}
		out = append(out, href)
	}
	return out
}
