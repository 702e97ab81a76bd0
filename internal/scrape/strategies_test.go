// File: internal/scrape/strategies_test.go
package scrape

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

const sigiPage = `<html><head>
<meta name="description" content="Meta says something else on TikTok">
</head><body>
<script id="SIGI_STATE" type="application/json">{
  "ItemModule": {
    "7123456789": {
      "desc": "funny cats compilation",
      "author": "catlady",
      "stats": {"playCount": 150000, "diggCount": 12000, "shareCount": 340, "commentCount": 890},
      "video": {"cover": "https://cdn.example.com/cover.jpg"},
      "challenges": [{"title": "cats"}, {"title": "funny"}]
    }
  }
}</script>
</body></html>`

func TestApplyStrategiesEmbeddedState(t *testing.T) {
	rec := &VideoRecord{}
	applyStrategies(rec, &pageDocument{doc: mustDoc(t, sigiPage)})

	assert.Equal(t, "funny cats compilation", rec.Description)
	assert.Equal(t, "catlady", rec.Author)
	assert.Equal(t, "https://cdn.example.com/cover.jpg", rec.Thumbnail)
	assert.Equal(t, []string{"cats", "funny"}, rec.Hashtags)

	require.True(t, rec.Stats.Views.Available)
	assert.Equal(t, int64(150000), rec.Stats.Views.Value)
	assert.Equal(t, SourceEmbeddedJSON, rec.Stats.Views.Source)
	assert.Equal(t, int64(12000), rec.Stats.Likes.Value)
	assert.Equal(t, int64(340), rec.Stats.Shares.Value)
	assert.Equal(t, int64(890), rec.Stats.Comments.Value)
}

func TestApplyStrategiesFirstWriterWins(t *testing.T) {
	// The embedded state and the meta tag disagree; the higher priority
	// strategy's description must survive.
	rec := &VideoRecord{}
	applyStrategies(rec, &pageDocument{doc: mustDoc(t, sigiPage)})
	assert.Equal(t, "funny cats compilation", rec.Description,
		"embedded state beats the meta description")
}

func TestApplyStrategiesUniversalData(t *testing.T) {
	page := `<html><body>
<script id="__UNIVERSAL_DATA_FOR_REHYDRATION__" type="application/json">{
  "__DEFAULT_SCOPE__": {
    "webapp.video-detail": {
      "itemInfo": {
        "itemStruct": {
          "desc": "dance challenge",
          "author": {"nickname": "dancer01"},
          "stats": {"playCount": 5000, "diggCount": 200, "shareCount": 10, "commentCount": 45},
          "video": {"cover": "https://cdn.example.com/dance.jpg"},
          "challenges": [{"title": "dance"}]
        }
      }
    }
  }
}</script>
</body></html>`

	rec := &VideoRecord{}
	applyStrategies(rec, &pageDocument{doc: mustDoc(t, page)})

	assert.Equal(t, "dance challenge", rec.Description)
	assert.Equal(t, "dancer01", rec.Author)
	assert.Equal(t, []string{"dance"}, rec.Hashtags)
	assert.Equal(t, int64(5000), rec.Stats.Views.Value)
}

func TestApplyStrategiesMalformedEmbeddedState(t *testing.T) {
	page := `<html><head>
<meta name="description" content="Fallback description on TikTok">
<meta property="og:image" content="https://cdn.example.com/og.jpg">
</head><body>
<script id="SIGI_STATE" type="application/json">{not valid json</script>
<span data-e2e="like-count">1.2K</span>
</body></html>`

	rec := &VideoRecord{}
	applyStrategies(rec, &pageDocument{doc: mustDoc(t, page)})

	assert.Equal(t, "Fallback description", rec.Description,
		"a corrupt state blob falls through to the DOM strategy")
	assert.Equal(t, "https://cdn.example.com/og.jpg", rec.Thumbnail)
	require.True(t, rec.Stats.Likes.Available)
	assert.Equal(t, int64(1200), rec.Stats.Likes.Value)
	assert.Equal(t, SourceDOM, rec.Stats.Likes.Source)
}

func TestDomDescription(t *testing.T) {
	t.Run("meta description with site suffix trimmed", func(t *testing.T) {
		d := &pageDocument{doc: mustDoc(t,
			`<html><head><meta name="description" content="My video on TikTok"></head><body></body></html>`)}
		assert.Equal(t, "My video", domDescription(d))
	})

	t.Run("title split on the site marker", func(t *testing.T) {
		d := &pageDocument{
			title: "My video | catlady | TikTok",
			doc:   mustDoc(t, `<html><body></body></html>`),
		}
		assert.Equal(t, "My video", domDescription(d))
	})

	t.Run("on-page description element", func(t *testing.T) {
		d := &pageDocument{doc: mustDoc(t,
			`<html><body><div data-e2e="browse-video-desc"> described here </div></body></html>`)}
		assert.Equal(t, "described here", domDescription(d))
	})

	t.Run("sentinel when nothing matches", func(t *testing.T) {
		d := &pageDocument{doc: mustDoc(t, `<html><body></body></html>`)}
		assert.Equal(t, descriptionNotFound, domDescription(d))
	})
}

func TestDomStatsNeverFillsViews(t *testing.T) {
	doc := mustDoc(t, `<html><body>
<span data-e2e="like-count">5K</span>
<span data-e2e="comment-count">42</span>
</body></html>`)

	stats := domStats(doc)
	assert.False(t, stats.Views.Available, "view counts are only published in feed contexts")
	assert.True(t, stats.Likes.Available)
	assert.Equal(t, int64(5000), stats.Likes.Value)
	assert.True(t, stats.Comments.Available)
	assert.Equal(t, int64(42), stats.Comments.Value)
}

func TestMergeCounterKeepsAvailableZero(t *testing.T) {
	dst := Count(0, SourceEmbeddedJSON)
	mergeCounter(&dst, Count(1200, SourceDOM))

	assert.True(t, dst.Available)
	assert.Equal(t, int64(0), dst.Value, "an exact zero is a real value, not a gap")
	assert.Equal(t, SourceEmbeddedJSON, dst.Source)
}

func TestParseCompactCount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"1.2K", 1200, true},
		{"3M", 3000000, true},
		{"1.5B", 1500000000, true},
		{"1,234", 1234, true},
		{"42", 42, true},
		{" 7k ", 7000, true},
		{"", 0, false},
		{"abc", 0, false},
		{"1.2.3K", 0, false},
		{"-5", 0, false},
		{"-1.2K", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseCompactCount(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, "input %q", tc.in)
		}
	}
}

func TestParseExternalID(t *testing.T) {
	assert.Equal(t, "7123456789", ParseExternalID("https://www.tiktok.com/@user/video/7123456789?lang=en"))
	assert.Empty(t, ParseExternalID("https://www.tiktok.com/@user"))
}
