// File: internal/scrape/cascade_test.go
package scrape

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/clipsight/internal/config"
)

// stubPage is a scriptable Page for pipeline tests.
type stubPage struct {
	title      string
	html       string
	screenshot []byte

	navigateErr   error
	htmlErr       error
	screenshotErr error

	navigations []string
	waited      []string
	scrolls     []int
	closed      bool
}

func (s *stubPage) Navigate(_ context.Context, url string) error {
	s.navigations = append(s.navigations, url)
	return s.navigateErr
}

func (s *stubPage) Title(context.Context) (string, error) { return s.title, nil }

func (s *stubPage) HTML(context.Context) (string, error) {
	if s.htmlErr != nil {
		return "", s.htmlErr
	}
	return s.html, nil
}

func (s *stubPage) Screenshot(context.Context) ([]byte, error) {
	if s.screenshotErr != nil {
		return nil, s.screenshotErr
	}
	if s.screenshot != nil {
		return s.screenshot, nil
	}
	return []byte("png"), nil
}

func (s *stubPage) DismissOverlays(context.Context) error { return nil }

func (s *stubPage) Scroll(_ context.Context, y int) error {
	s.scrolls = append(s.scrolls, y)
	return nil
}

func (s *stubPage) WaitVisible(_ context.Context, selector string, _ time.Duration) error {
	s.waited = append(s.waited, selector)
	return nil
}

func (s *stubPage) WaitNetworkIdle(context.Context, time.Duration) error { return nil }

func (s *stubPage) Hrefs(context.Context, string) ([]string, error) { return nil, nil }

func (s *stubPage) Close() error {
	s.closed = true
	return nil
}

func testScraperConfig() config.ScraperConfig {
	return config.ScraperConfig{
		BaseURL:           "https://www.tiktok.com",
		MaxVideos:         5,
		MaxComments:       20,
		SelectorTimeout:   time.Second,
		ChallengeRetries:  2,
		ChallengeCooldown: time.Millisecond,
	}
}

func newTestCascade() *Cascade {
	c := NewCascade(testScraperConfig(), zap.NewNop())
	c.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return c
}

func TestCascadeExtract(t *testing.T) {
	t.Run("populates the record on a clean load", func(t *testing.T) {
		page := &stubPage{title: "funny cats | catlady | TikTok", html: sigiPage}
		c := newTestCascade()

		rec, err := c.Extract(context.Background(), page, CandidateURL{
			URL:        "https://www.tiktok.com/@catlady/video/7123456789",
			ExternalID: "7123456789",
		})
		require.NoError(t, err)

		assert.Equal(t, "7123456789", rec.ExternalID)
		assert.Equal(t, "funny cats compilation", rec.Description)
		assert.Equal(t, []byte("png"), rec.Screenshot)
		assert.False(t, rec.ScrapedAt.IsZero())
		assert.Len(t, page.navigations, 1)
	})

	t.Run("persistent challenge exhausts the retry ceiling", func(t *testing.T) {
		page := &stubPage{title: "Please Verify to continue", html: "<html></html>"}
		c := newTestCascade()

		_, err := c.Extract(context.Background(), page, CandidateURL{URL: "https://x/video/1", ExternalID: "1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrExtractionFailed)
		assert.Len(t, page.navigations, 3, "retries plus the initial attempt")
	})

	t.Run("captcha marker in markup is a challenge", func(t *testing.T) {
		page := &stubPage{title: "ok", html: `<div class="captcha_verify_container"></div>`}
		c := newTestCascade()

		_, err := c.Extract(context.Background(), page, CandidateURL{URL: "https://x/video/1", ExternalID: "1"})
		assert.ErrorIs(t, err, ErrExtractionFailed)
	})

	t.Run("challenge clearing mid-retry succeeds", func(t *testing.T) {
		page := &stubPage{title: "Please Verify", html: "<html></html>"}
		c := newTestCascade()
		sleeps := 0
		c.sleep = func(ctx context.Context, _ time.Duration) error {
			// Sleep call order: human delay, cooldown, human delay. The
			// challenge clears during the cooldown.
			sleeps++
			if sleeps == 2 {
				page.title = "funny cats"
				page.html = sigiPage
			}
			return ctx.Err()
		}

		rec, err := c.Extract(context.Background(), page, CandidateURL{URL: "https://x/video/7123456789", ExternalID: "7123456789"})
		require.NoError(t, err)
		assert.Equal(t, "funny cats compilation", rec.Description)
		assert.Len(t, page.navigations, 2)
	})

	t.Run("challenged attempts leave no screenshot on the record", func(t *testing.T) {
		page := &stubPage{title: "Please Verify", html: "<html></html>", screenshot: []byte("captcha-wall")}
		c := newTestCascade()
		sleeps := 0
		c.sleep = func(ctx context.Context, _ time.Duration) error {
			sleeps++
			if sleeps == 2 {
				page.title = "funny cats"
				page.html = sigiPage
				page.screenshot = []byte("video-page")
			}
			return ctx.Err()
		}

		rec, err := c.Extract(context.Background(), page, CandidateURL{URL: "https://x/video/7123456789", ExternalID: "7123456789"})
		require.NoError(t, err)
		assert.Equal(t, []byte("video-page"), rec.Screenshot)
	})

	t.Run("navigation errors are retried then reported", func(t *testing.T) {
		page := &stubPage{navigateErr: errors.New("net::ERR_CONNECTION_RESET")}
		c := newTestCascade()

		_, err := c.Extract(context.Background(), page, CandidateURL{URL: "https://x/video/1", ExternalID: "1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrExtractionFailed)
		assert.Contains(t, err.Error(), "ERR_CONNECTION_RESET")
	})

	t.Run("cancellation wins over retries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		page := &stubPage{navigateErr: ctx.Err()}
		c := newTestCascade()

		_, err := c.Extract(ctx, page, CandidateURL{URL: "https://x/video/1", ExternalID: "1"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestIsBotChallenge(t *testing.T) {
	assert.True(t, isBotChallenge("Verify you are human", "<html></html>"))
	assert.True(t, isBotChallenge("ok", "please solve the CAPTCHA below"))
	assert.False(t, isBotChallenge("funny cats | TikTok", "<html>cat videos</html>"))
}
