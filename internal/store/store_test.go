// File: internal/store/store_test.go
package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/clipsight/internal/scrape"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(
		pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp),
	)
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return s, mockPool
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestFindVideoByExternalID(t *testing.T) {
	t.Run("returns stored id when the video exists", func(t *testing.T) {
		s, mockPool := newMockStore(t)

		mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT id FROM videos WHERE external_id = $1`)).
			WithArgs("7123456789").
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("row-id-1"))

		id, found, err := s.FindVideoByExternalID(context.Background(), "7123456789")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "row-id-1", id)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("reports not found without error", func(t *testing.T) {
		s, mockPool := newMockStore(t)

		mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT id FROM videos WHERE external_id = $1`)).
			WithArgs("missing").
			WillReturnRows(pgxmock.NewRows([]string{"id"}))

		id, found, err := s.FindVideoByExternalID(context.Background(), "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, id)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestInsertVideo(t *testing.T) {
	t.Run("maps unavailable counters to NULL", func(t *testing.T) {
		s, mockPool := newMockStore(t)

		rec := &scrape.VideoRecord{
			URL:         "https://www.tiktok.com/@cats/video/7123456789",
			ExternalID:  "7123456789",
			Author:      "cats",
			Description: "funny cats compilation",
			Stats: scrape.EngagementStats{
				Views: scrape.Counter{Value: 1200, Source: scrape.SourceEmbeddedJSON, Available: true},
				Likes: scrape.Counter{Value: 0, Source: scrape.SourceEmbeddedJSON, Available: true},
			},
			Hashtags:  []string{"cats", "funny"},
			Keyword:   "funny cats",
			ScrapedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		}

		plays := int64(1200)
		likes := int64(0)
		mockPool.ExpectQuery("INSERT INTO videos").
			WithArgs(
				rec.ExternalID, rec.URL, rec.Author, rec.Description,
				&plays, &likes, (*int64)(nil), (*int64)(nil),
				rec.Hashtags, "", []byte(nil), rec.Keyword, rec.ScrapedAt,
			).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("new-row-id"))

		id, err := s.InsertVideo(context.Background(), rec)
		require.NoError(t, err)
		assert.Equal(t, "new-row-id", id)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("propagates insert failure", func(t *testing.T) {
		s, mockPool := newMockStore(t)

		dbErr := errors.New("unique violation")
		mockPool.ExpectQuery("INSERT INTO videos").WillReturnError(dbErr)

		_, err := s.InsertVideo(context.Background(), &scrape.VideoRecord{ExternalID: "x"})
		require.Error(t, err)
		assert.ErrorIs(t, err, dbErr)
	})
}

func TestInsertComments(t *testing.T) {
	t.Run("copies all rows", func(t *testing.T) {
		s, mockPool := newMockStore(t)

		comments := []string{"so cute", "lol", "following for more"}
		mockPool.ExpectCopyFrom([]string{"comments"}, []string{"video_id", "content", "created_at"}).
			WillReturnResult(int64(len(comments)))

		err := s.InsertComments(context.Background(), "vid-1", comments)
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("no-op for empty slice", func(t *testing.T) {
		s, mockPool := newMockStore(t)

		err := s.InsertComments(context.Background(), "vid-1", nil)
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("fails on count mismatch", func(t *testing.T) {
		s, mockPool := newMockStore(t)

		mockPool.ExpectCopyFrom([]string{"comments"}, []string{"video_id", "content", "created_at"}).
			WillReturnResult(1)

		err := s.InsertComments(context.Background(), "vid-1", []string{"a", "b"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch")
	})
}

func TestInsertSentiment(t *testing.T) {
	s, mockPool := newMockStore(t)

	sent := &Sentiment{
		Topic:      "cat videos",
		Discussion: "viewers enjoy the compilation",
		Verdict:    "positive",
		Score:      0.8,
		Model:      "gemini-1.5-flash",
		AnalyzedAt: time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC),
	}

	mockPool.ExpectExec("INSERT INTO sentiments").
		WithArgs("vid-1", sent.Topic, sent.Discussion, sent.Verdict, sent.Score, sent.Model, sent.AnalyzedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.InsertSentiment(context.Background(), "vid-1", sent)
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRecentVideos(t *testing.T) {
	t.Run("joins sentiment when present", func(t *testing.T) {
		s, mockPool := newMockStore(t)

		scrapedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		analyzedAt := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
		plays := int64(100)
		topic := "cats"
		discussion := "light hearted"
		verdict := "positive"
		score := 0.9
		model := "gemini-1.5-flash"

		rows := pgxmock.NewRows([]string{
			"id", "external_id", "url", "author", "description",
			"play_count", "like_count", "share_count", "comment_count",
			"hashtags", "thumbnail_url", "keyword", "scraped_at",
			"topic", "discussion", "sentiment", "score", "model", "analyzed_at",
		}).
			AddRow("vid-1", "7123", "https://example.com/1", "cats", "desc",
				&plays, (*int64)(nil), (*int64)(nil), (*int64)(nil),
				[]string{"cats"}, "", "funny cats", scrapedAt,
				&topic, &discussion, &verdict, &score, &model, &analyzedAt).
			AddRow("vid-2", "7124", "https://example.com/2", "dogs", "desc2",
				(*int64)(nil), (*int64)(nil), (*int64)(nil), (*int64)(nil),
				[]string{}, "", "funny cats", scrapedAt,
				(*string)(nil), (*string)(nil), (*string)(nil), (*float64)(nil), (*string)(nil), (*time.Time)(nil))

		mockPool.ExpectQuery("SELECT v.id, v.external_id").
			WithArgs("funny cats", 10).
			WillReturnRows(rows)

		videos, err := s.RecentVideos(context.Background(), RecentVideosQuery{Keyword: "funny cats", Limit: 10})
		require.NoError(t, err)
		require.Len(t, videos, 2)

		require.NotNil(t, videos[0].Sentiment)
		assert.Equal(t, "positive", videos[0].Sentiment.Verdict)
		assert.Equal(t, 0.9, videos[0].Sentiment.Score)
		require.NotNil(t, videos[0].PlayCount)
		assert.Equal(t, int64(100), *videos[0].PlayCount)

		assert.Nil(t, videos[1].Sentiment)
		assert.Nil(t, videos[1].PlayCount)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("defaults limit when unset", func(t *testing.T) {
		s, mockPool := newMockStore(t)

		mockPool.ExpectQuery("SELECT v.id, v.external_id").
			WithArgs("", 50).
			WillReturnRows(pgxmock.NewRows([]string{
				"id", "external_id", "url", "author", "description",
				"play_count", "like_count", "share_count", "comment_count",
				"hashtags", "thumbnail_url", "keyword", "scraped_at",
				"topic", "discussion", "sentiment", "score", "model", "analyzed_at",
			}))

		videos, err := s.RecentVideos(context.Background(), RecentVideosQuery{})
		require.NoError(t, err)
		assert.Empty(t, videos)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestUnanalyzedVideos(t *testing.T) {
	s, mockPool := newMockStore(t)

	rows := pgxmock.NewRows([]string{"id", "description", "author", "keyword", "comments"}).
		AddRow("vid-1", "old video", "cats", "funny cats", []string{"first", "nice"})

	mockPool.ExpectQuery("SELECT v.id, v.description, v.author, v.keyword").
		WithArgs(5).
		WillReturnRows(rows)

	vids, err := s.UnanalyzedVideos(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, vids, 1)
	assert.Equal(t, "vid-1", vids[0].ID)
	assert.Equal(t, []string{"first", "nice"}, vids[0].Comments)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
