// File: internal/scrape/types.go
package scrape

import (
	"context"
	"regexp"
	"time"
)

// CounterSource records which extraction strategy produced an engagement
// counter. JSON-sourced counters come from the page's embedded state and are
// exact; DOM-sourced counters are parsed from display strings like "1.2K"
// and carry lower confidence.
type CounterSource string

const (
	SourceEmbeddedJSON CounterSource = "json"
	SourceDOM          CounterSource = "dom"
)

// Counter is an engagement count that may be unavailable. The zero value is
// the "unavailable" sentinel, which is distinct from an available zero count.
type Counter struct {
	Value     int64         `json:"value"`
	Source    CounterSource `json:"source,omitempty"`
	Available bool          `json:"available"`
}

// Count constructs an available counter.
func Count(v int64, src CounterSource) Counter {
	return Counter{Value: v, Source: src, Available: true}
}

// EngagementStats groups the per-video counters. Views are typically only
// published in feed contexts, not on detail pages, so they are often left
// unavailable by every strategy.
type EngagementStats struct {
	Views    Counter `json:"views"`
	Likes    Counter `json:"likes"`
	Shares   Counter `json:"shares"`
	Comments Counter `json:"comments"`
}

// CandidateURL is a normalized video URL discovered by the search resolver,
// together with the platform's own numeric identifier parsed from its path.
// Candidates are never mutated after the resolver produces them.
type CandidateURL struct {
	URL        string
	ExternalID string
}

var externalIDPattern = regexp.MustCompile(`/video/(\d+)`)

// ParseExternalID extracts the platform video ID from a URL path.
// It returns an empty string when the URL does not contain one.
func ParseExternalID(url string) string {
	m := externalIDPattern.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	return m[1]
}

// VideoRecord is the scraping result for one URL. Fields set by an
// earlier-priority extraction strategy are never overwritten by a later one.
type VideoRecord struct {
	URL         string          `json:"url"`
	ExternalID  string          `json:"external_id"`
	Author      string          `json:"author"`
	Description string          `json:"description"`
	Stats       EngagementStats `json:"stats"`
	Hashtags    []string        `json:"hashtags"`
	Thumbnail   string          `json:"thumbnail"`
	Screenshot  []byte          `json:"-"`
	Comments    []string        `json:"comments"`
	Keyword     string          `json:"keyword"`
	ScrapedAt   time.Time       `json:"scraped_at"`
}

// Summary reports the aggregate outcome of one keyword job. The invariant
// Scraped+Skipped <= Found holds for every run; candidates whose URL carries
// no parseable external ID are dropped from both tallies.
type Summary struct {
	Keyword   string   `json:"keyword"`
	Found     int      `json:"found"`
	Scraped   int      `json:"scraped"`
	Skipped   int      `json:"skipped"`
	RecordIDs []string `json:"record_ids"`
}

// Page is one browser tab. The production implementation lives in
// internal/browser; tests substitute stubs.
type Page interface {
	// Navigate loads the URL and blocks until the main document committed.
	Navigate(ctx context.Context, url string) error
	// Title returns the current document title.
	Title(ctx context.Context) (string, error)
	// HTML returns the serialized current DOM.
	HTML(ctx context.Context) (string, error)
	// Screenshot captures a full-page screenshot.
	Screenshot(ctx context.Context) ([]byte, error)
	// DismissOverlays runs the best-effort interstitial dismissal sequence
	// (escape key, known close buttons, click outside the modal bounds).
	DismissOverlays(ctx context.Context) error
	// Scroll scrolls the window to the given vertical offset.
	Scroll(ctx context.Context, y int) error
	// WaitVisible blocks until an element matching the selector is visible,
	// or the timeout elapses (in which case it returns the context error).
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// WaitNetworkIdle blocks until the page settles, or the timeout elapses.
	WaitNetworkIdle(ctx context.Context, timeout time.Duration) error
	// Hrefs returns the href attribute of every anchor matching the selector.
	Hrefs(ctx context.Context, selector string) ([]string, error)
	// Close releases the tab. Safe to call more than once.
	Close() error
}

// PageOpener hands out fresh tabs within one browser session.
type PageOpener interface {
	NewPage(ctx context.Context) (Page, error)
}
