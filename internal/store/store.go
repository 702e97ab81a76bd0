// File: internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/clipsight/internal/scrape"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Video is a stored video row as returned by read queries.
type Video struct {
	ID           string     `json:"id"`
	ExternalID   string     `json:"external_id"`
	URL          string     `json:"url"`
	Author       string     `json:"author"`
	Description  string     `json:"description"`
	PlayCount    *int64     `json:"play_count"`
	LikeCount    *int64     `json:"like_count"`
	ShareCount   *int64     `json:"share_count"`
	CommentCount *int64     `json:"comment_count"`
	Hashtags     []string   `json:"hashtags"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	Keyword      string     `json:"keyword"`
	ScrapedAt    time.Time  `json:"scraped_at"`
	Sentiment    *Sentiment `json:"sentiment,omitempty"`
}

// Sentiment is one analysis verdict attached to a video.
type Sentiment struct {
	Topic      string    `json:"topic"`
	Discussion string    `json:"discussion"`
	Verdict    string    `json:"sentiment"`
	Score      float64   `json:"score"`
	Model      string    `json:"model"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// VideoContent bundles the text an analyzer needs for one video.
type VideoContent struct {
	ID          string
	Description string
	Author      string
	Keyword     string
	Comments    []string
}

// RecentVideosQuery narrows a RecentVideos call. A zero value means
// "latest 50 across all keywords".
type RecentVideosQuery struct {
	Keyword string
	Limit   int
}

// Store provides the PostgreSQL persistence layer.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// FindVideoByExternalID returns the stored row ID for a platform video ID and
// whether such a row exists.
func (s *Store) FindVideoByExternalID(ctx context.Context, externalID string) (string, bool, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM videos WHERE external_id = $1`, externalID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up video %s: %w", externalID, err)
	}
	return id, true, nil
}

// counterArg maps an unavailable counter to SQL NULL so that "platform did
// not expose this number" stays distinguishable from a literal zero.
func counterArg(c scrape.Counter) *int64 {
	if !c.Available {
		return nil
	}
	v := c.Value
	return &v
}

// InsertVideo persists one scraped record and returns the generated row ID.
func (s *Store) InsertVideo(ctx context.Context, rec *scrape.VideoRecord) (string, error) {
	scrapedAt := rec.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now()
	}

	var id string
	err := s.pool.QueryRow(ctx, `
        INSERT INTO videos (external_id, url, author, description, play_count, like_count, share_count, comment_count, hashtags, thumbnail_url, screenshot, keyword, scraped_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        RETURNING id;
    `,
		rec.ExternalID, rec.URL, rec.Author, rec.Description,
		counterArg(rec.Stats.Views), counterArg(rec.Stats.Likes),
		counterArg(rec.Stats.Shares), counterArg(rec.Stats.Comments),
		rec.Hashtags, rec.Thumbnail, rec.Screenshot, rec.Keyword,
		scrapedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert video %s: %w", rec.ExternalID, err)
	}
	return id, nil
}

// InsertComments bulk-inserts harvested comment texts for a video.
func (s *Store) InsertComments(ctx context.Context, videoID string, comments []string) error {
	if len(comments) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]interface{}, len(comments))
	for i, c := range comments {
		rows[i] = []interface{}{videoID, c, now}
	}

	copyCount, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"comments"},
		[]string{"video_id", "content", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy comments: %w", err)
	}
	if int(copyCount) != len(comments) {
		return fmt.Errorf("mismatch in copied comments count: expected %d, got %d", len(comments), copyCount)
	}
	return nil
}

// InsertSentiment attaches an analysis verdict to a video. A re-analysis
// replaces the previous verdict.
func (s *Store) InsertSentiment(ctx context.Context, videoID string, sent *Sentiment) error {
	analyzedAt := sent.AnalyzedAt
	if analyzedAt.IsZero() {
		analyzedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
        INSERT INTO sentiments (video_id, topic, discussion, sentiment, score, model, analyzed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (video_id) DO UPDATE SET
            topic = EXCLUDED.topic,
            discussion = EXCLUDED.discussion,
            sentiment = EXCLUDED.sentiment,
            score = EXCLUDED.score,
            model = EXCLUDED.model,
            analyzed_at = EXCLUDED.analyzed_at;
    `, videoID, sent.Topic, sent.Discussion, sent.Verdict, sent.Score, sent.Model, analyzedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert sentiment for video %s: %w", videoID, err)
	}
	return nil
}

// RecentVideos returns the most recently scraped videos, newest first,
// optionally filtered by keyword. Sentiment is joined in when present.
func (s *Store) RecentVideos(ctx context.Context, q RecentVideosQuery) ([]Video, error) {
	limit := q.Limit
	if limit < 1 {
		limit = 50
	}

	query := `
        SELECT v.id, v.external_id, v.url, v.author, v.description,
               v.play_count, v.like_count, v.share_count, v.comment_count,
               v.hashtags, v.thumbnail_url, v.keyword, v.scraped_at,
               s.topic, s.discussion, s.sentiment, s.score, s.model, s.analyzed_at
        FROM videos v
        LEFT JOIN sentiments s ON s.video_id = v.id
        WHERE ($1 = '' OR v.keyword = $1)
        ORDER BY v.scraped_at DESC
        LIMIT $2;
    `
	rows, err := s.pool.Query(ctx, query, q.Keyword, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent videos: %w", err)
	}
	defer rows.Close()

	var videos []Video
	for rows.Next() {
		var v Video
		var topic, discussion, verdict, model *string
		var score *float64
		var analyzedAt *time.Time

		err := rows.Scan(
			&v.ID, &v.ExternalID, &v.URL, &v.Author, &v.Description,
			&v.PlayCount, &v.LikeCount, &v.ShareCount, &v.CommentCount,
			&v.Hashtags, &v.ThumbnailURL, &v.Keyword, &v.ScrapedAt,
			&topic, &discussion, &verdict, &score, &model, &analyzedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video row: %w", err)
		}

		if verdict != nil {
			v.Sentiment = &Sentiment{
				Topic:      deref(topic),
				Discussion: deref(discussion),
				Verdict:    *verdict,
				Score:      deref(score),
				Model:      deref(model),
			}
			if analyzedAt != nil {
				v.Sentiment.AnalyzedAt = *analyzedAt
			}
		}
		videos = append(videos, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return videos, nil
}

// UnanalyzedVideos returns videos that have no sentiment verdict yet,
// bundled with their comments, oldest first so backlogs drain in order.
func (s *Store) UnanalyzedVideos(ctx context.Context, limit int) ([]VideoContent, error) {
	if limit < 1 {
		limit = 50
	}

	query := `
        SELECT v.id, v.description, v.author, v.keyword,
               COALESCE(array_agg(c.content ORDER BY c.created_at) FILTER (WHERE c.content IS NOT NULL), '{}')
        FROM videos v
        LEFT JOIN sentiments s ON s.video_id = v.id
        LEFT JOIN comments c ON c.video_id = v.id
        WHERE s.video_id IS NULL
        GROUP BY v.id
        ORDER BY v.scraped_at ASC
        LIMIT $1;
    `
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unanalyzed videos: %w", err)
	}
	defer rows.Close()

	var out []VideoContent
	for rows.Next() {
		var vc VideoContent
		if err := rows.Scan(&vc.ID, &vc.Description, &vc.Author, &vc.Keyword, &vc.Comments); err != nil {
			return nil, fmt.Errorf("failed to scan unanalyzed video row: %w", err)
		}
		out = append(out, vc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
