// File: internal/scrape/comments.go
package scrape

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/clipsight/internal/config"
)

const (
	commentSelector          = `[data-e2e="comment-level-1"]`
	commentTextSelector      = `p[data-e2e="comment-level-1__content"]`
	commentContainerSelector = `div[class*="DivCommentContentContainer"]`

	// playbackErrorPhrase appears in the player's error banner and must not
	// be mistaken for a user comment.
	playbackErrorPhrase = "trouble playing"

	// Plausible comment length window for the generic-paragraph fallback.
	minFallbackCommentLen = 5
	maxFallbackCommentLen = 200
)

// Harvester collects a bounded number of top-level comment snippets from an
// already-loaded video page.
type Harvester struct {
	cfg    config.ScraperConfig
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewHarvester creates a comment harvester.
func NewHarvester(cfg config.ScraperConfig, logger *zap.Logger) *Harvester {
	return &Harvester{
		cfg:    cfg,
		logger: logger.Named("comments"),
		sleep:  sleepCtx,
	}
}

// Harvest scrolls the page to surface the comment section, waits a fixed
// settle time, then extracts up to the configured cap of comment texts in
// DOM order.
func (h *Harvester) Harvest(ctx context.Context, page Page) ([]string, error) {
	if err := page.Scroll(ctx, lazyLoadScrollOffset); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		h.logger.Debug("Scroll failed before comment harvest", zap.Error(err))
	}
	if err := h.sleep(ctx, h.cfg.CommentSettleWait); err != nil {
		return nil, err
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page HTML for comments: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page HTML for comments: %w", err)
	}

	comments := extractComments(doc, h.cfg.MaxComments)
	h.logger.Debug("Comments harvested", zap.Int("count", len(comments)))
	return comments, nil
}

// extractComments pulls comment texts from the parsed document. It tries the
// structured comment selector first, then a broader container class, and
// finally falls back to scanning all paragraph elements for comment-sized
// text. Results follow DOM order; no dedup is applied.
func extractComments(doc *goquery.Document, limit int) []string {
	if limit <= 0 {
		return nil
	}

	comments := collectStructured(doc.Find(commentSelector), limit)
	if len(comments) == 0 {
		comments = collectStructured(doc.Find(commentContainerSelector), limit)
	}
	if len(comments) == 0 {
		comments = collectParagraphs(doc, limit)
	}
	return comments
}

func collectStructured(sel *goquery.Selection, limit int) []string {
	var comments []string
	sel.EachWithBreak(func(_ int, el *goquery.Selection) bool {
		text := strings.TrimSpace(el.Find(commentTextSelector).First().Text())
		if text == "" {
			text = strings.TrimSpace(el.Find("p").First().Text())
		}
		if text != "" && !strings.Contains(text, playbackErrorPhrase) {
			comments = append(comments, text)
		}
		return len(comments) < limit
	})
	return comments
}

func collectParagraphs(doc *goquery.Document, limit int) []string {
	var comments []string
	doc.Find("p").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		text := strings.TrimSpace(el.Text())
		if len(text) > minFallbackCommentLen && len(text) < maxFallbackCommentLen &&
			!strings.Contains(text, playbackErrorPhrase) {
			comments = append(comments, text)
		}
		return len(comments) < limit
	})
	return comments
}
