// File: internal/scrape/resolver_test.go
package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// searchPage extends stubPage with per-URL link results so the hashtag
// fallback can be exercised.
type searchPage struct {
	stubPage
	linksByURL map[string][]string
}

func (s *searchPage) Hrefs(context.Context, string) ([]string, error) {
	if len(s.navigations) == 0 {
		return nil, nil
	}
	return s.linksByURL[s.navigations[len(s.navigations)-1]], nil
}

func newTestResolver() *Resolver {
	return NewResolver(testScraperConfig(), zap.NewNop())
}

func TestResolverSearch(t *testing.T) {
	t.Run("resolves, dedupes and truncates candidates", func(t *testing.T) {
		page := &searchPage{linksByURL: map[string][]string{
			"https://www.tiktok.com/search?q=funny+cats": {
				"https://www.tiktok.com/@a/video/111",
				"https://www.tiktok.com/@a/video/111",
				"https://www.tiktok.com/@b/video/222",
				"https://www.tiktok.com/@b/photo/999",
				"https://www.tiktok.com/@c/video/333",
			},
		}}

		candidates, err := newTestResolver().Search(context.Background(), page, "funny cats", 2)
		require.NoError(t, err)

		require.Len(t, candidates, 2, "results are capped at the limit")
		assert.Equal(t, "111", candidates[0].ExternalID)
		assert.Equal(t, "222", candidates[1].ExternalID)
		assert.Equal(t, []string{videoLinkSelector}, page.waited)
		assert.Equal(t, []int{lazyLoadScrollOffset}, page.scrolls)
	})

	t.Run("falls back to the hashtag page when search is empty", func(t *testing.T) {
		page := &searchPage{linksByURL: map[string][]string{
			"https://www.tiktok.com/tag/funnycats": {
				"https://www.tiktok.com/@a/video/444",
			},
		}}

		candidates, err := newTestResolver().Search(context.Background(), page, "funny cats", 5)
		require.NoError(t, err)

		require.Len(t, candidates, 1)
		assert.Equal(t, "444", candidates[0].ExternalID)
		require.Len(t, page.navigations, 2)
		assert.Equal(t, "https://www.tiktok.com/tag/funnycats", page.navigations[1],
			"spaces are stripped from the hashtag")
	})

	t.Run("no results anywhere is a valid empty outcome", func(t *testing.T) {
		page := &searchPage{}
		page.screenshotErr = errors.New("no screenshot in tests")
		candidates, err := newTestResolver().Search(context.Background(), page, "zxqjw", 5)
		require.NoError(t, err)
		assert.Empty(t, candidates)
	})

	t.Run("navigation failure is an error", func(t *testing.T) {
		page := &searchPage{}
		page.navigateErr = errors.New("tab crashed")

		_, err := newTestResolver().Search(context.Background(), page, "cats", 5)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tab crashed")
	})

	t.Run("rejects a non-positive limit", func(t *testing.T) {
		_, err := newTestResolver().Search(context.Background(), &searchPage{}, "cats", 0)
		assert.Error(t, err)
	})

	t.Run("unparseable video URLs keep an empty external ID", func(t *testing.T) {
		page := &searchPage{linksByURL: map[string][]string{
			"https://www.tiktok.com/search?q=cats": {
				"https://www.tiktok.com/@a/video/not-numeric",
			},
		}}

		candidates, err := newTestResolver().Search(context.Background(), page, "cats", 5)
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Empty(t, candidates[0].ExternalID)
	})
}

func TestDedupeLinks(t *testing.T) {
	got := dedupeLinks([]string{
		"https://x/video/1",
		"",
		"https://x/video/1",
		"https://x/photo/2",
		"https://x/video/3",
	})
	assert.Equal(t, []string{"https://x/video/1", "https://x/video/3"}, got)
}
