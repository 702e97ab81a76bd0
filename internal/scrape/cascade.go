// File: internal/scrape/cascade.go
package scrape

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/clipsight/internal/config"
)

var (
	// ErrBotChallenge marks a load attempt that hit an anti-automation
	// interstitial (captcha or verification prompt).
	ErrBotChallenge = errors.New("bot challenge detected")

	// ErrExtractionFailed is the terminal outcome for a URL once the retry
	// ceiling is exhausted. Callers skip the URL; the job continues.
	ErrExtractionFailed = errors.New("extraction failed after exhausting retries")
)

// attemptState is the outcome of a single load attempt. Together with a
// non-nil error it forms the per-URL state machine:
// loading -> challenged -> loading (bounded) -> loaded -> done, or failed.
type attemptState int

const (
	stateLoaded attemptState = iota
	stateChallenged
)

// Cascade extracts a structured VideoRecord from one candidate URL by
// loading the page and folding the extraction strategies over it.
type Cascade struct {
	cfg    config.ScraperConfig
	logger *zap.Logger
	// sleep is swapped out in tests so retry cooldowns don't slow them down.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCascade creates an extraction cascade.
func NewCascade(cfg config.ScraperConfig, logger *zap.Logger) *Cascade {
	return &Cascade{
		cfg:    cfg,
		logger: logger.Named("cascade"),
		sleep:  sleepCtx,
	}
}

// Extract navigates to the candidate URL and returns a best-effort populated
// record. Bot challenges and transient load errors are retried up to the
// configured ceiling; after that the URL is reported failed via
// ErrExtractionFailed.
func (c *Cascade) Extract(ctx context.Context, page Page, cand CandidateURL) (*VideoRecord, error) {
	rec := &VideoRecord{
		URL:        cand.URL,
		ExternalID: cand.ExternalID,
		ScrapedAt:  time.Now().UTC(),
	}

	attempts := c.cfg.ChallengeRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		state, err := c.attempt(ctx, page, cand.URL, rec)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			c.logger.Warn("Load attempt failed",
				zap.String("url", cand.URL),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		if state == stateChallenged {
			lastErr = ErrBotChallenge
			c.logger.Warn("Bot challenge detected, cooling down",
				zap.String("url", cand.URL),
				zap.Int("attempt", attempt))
			if attempt+1 < attempts {
				if err := c.sleep(ctx, c.cfg.ChallengeCooldown); err != nil {
					return nil, err
				}
			}
			continue
		}

		return rec, nil
	}

	return nil, fmt.Errorf("%w (%d attempts, last: %v)", ErrExtractionFailed, attempts, lastErr)
}

// attempt performs one full load-and-extract pass. It returns
// stateChallenged when the page presented a bot challenge, in which case the
// record is left untouched.
func (c *Cascade) attempt(ctx context.Context, page Page, url string, rec *VideoRecord) (attemptState, error) {
	if err := page.Navigate(ctx, url); err != nil {
		return 0, fmt.Errorf("navigation failed: %w", err)
	}

	// Randomized pause in the configured range to mimic human timing.
	if err := c.sleep(ctx, c.humanDelay()); err != nil {
		return 0, err
	}

	if err := page.DismissOverlays(ctx); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		c.logger.Debug("Overlay dismissal reported an error", zap.Error(err))
	}

	// A network-idle timeout is not fatal; extraction proceeds on whatever
	// has rendered.
	if err := page.WaitNetworkIdle(ctx, c.cfg.NetworkIdleTimeout); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		c.logger.Debug("Network did not settle, proceeding", zap.Error(err))
	}

	title, err := page.Title(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read page title: %w", err)
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read page HTML: %w", err)
	}

	if isBotChallenge(title, html) {
		return stateChallenged, nil
	}

	// A challenged attempt leaves the record untouched; the screenshot is
	// only captured once the page is known to be a real video page.
	if shot, err := page.Screenshot(ctx); err == nil {
		rec.Screenshot = shot
	} else {
		c.logger.Debug("Screenshot capture failed", zap.Error(err))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, fmt.Errorf("failed to parse page HTML: %w", err)
	}

	applyStrategies(rec, &pageDocument{title: title, doc: doc})
	return stateLoaded, nil
}

func (c *Cascade) humanDelay() time.Duration {
	min, max := c.cfg.HumanDelayMin, c.cfg.HumanDelayMax
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// isBotChallenge inspects the page title and raw markup for verification or
// captcha markers.
func isBotChallenge(title, html string) bool {
	return strings.Contains(strings.ToLower(title), "verify") ||
		strings.Contains(strings.ToLower(html), "captcha")
}

// sleepCtx sleeps for d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
