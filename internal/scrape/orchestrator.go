// File: internal/scrape/orchestrator.go
package scrape

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/clipsight/internal/config"
)

// Searcher resolves a keyword into candidate URLs.
type Searcher interface {
	Search(ctx context.Context, page Page, keyword string, limit int) ([]CandidateURL, error)
}

// Extractor turns one candidate URL into a populated record.
type Extractor interface {
	Extract(ctx context.Context, page Page, cand CandidateURL) (*VideoRecord, error)
}

// CommentHarvester collects comment texts from a loaded page.
type CommentHarvester interface {
	Harvest(ctx context.Context, page Page) ([]string, error)
}

// Persistence is the slice of the storage layer the orchestrator needs:
// existence checks and inserts. It never requires read-modify-write.
type Persistence interface {
	// FindVideoByExternalID returns the stored record ID for the platform
	// video ID, and whether such a record exists.
	FindVideoByExternalID(ctx context.Context, externalID string) (string, bool, error)
	InsertVideo(ctx context.Context, rec *VideoRecord) (string, error)
	InsertComments(ctx context.Context, videoID string, comments []string) error
}

// Orchestrator sequences search resolution, extraction and comment harvest
// for one keyword, de-duplicating against previously stored videos. URLs are
// processed strictly sequentially within a session to keep the traffic
// pattern unremarkable.
type Orchestrator struct {
	cfg       config.ScraperConfig
	resolver  Searcher
	cascade   Extractor
	harvester CommentHarvester
	store     Persistence
	limiter   *rate.Limiter
	logger    *zap.Logger

	// OnProgress, when set, is invoked with the running summary after each
	// candidate is settled. Used by the job registry to expose partial
	// progress mid-run.
	OnProgress func(Summary)
}

// NewOrchestrator wires the per-keyword scraping pipeline.
func NewOrchestrator(
	cfg config.ScraperConfig,
	resolver Searcher,
	cascade Extractor,
	harvester CommentHarvester,
	store Persistence,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if resolver == nil || cascade == nil || harvester == nil || store == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(cfg.RequestsPerMinute / 60.0)
	}

	return &Orchestrator{
		cfg:       cfg,
		resolver:  resolver,
		cascade:   cascade,
		harvester: harvester,
		store:     store,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger.Named("orchestrator"),
	}, nil
}

// WithProgress returns a copy of the orchestrator that reports the running
// summary through fn after each candidate. The copy shares the rate limiter,
// so pacing stays global across copies.
func (o *Orchestrator) WithProgress(fn func(Summary)) *Orchestrator {
	cp := *o
	cp.OnProgress = fn
	return &cp
}

// ScrapeKeyword runs the full pipeline for one keyword and returns the job
// summary. Individual URL failures are counted as skipped and never abort
// the keyword; the only hard failures are candidate resolution itself and
// context cancellation.
func (o *Orchestrator) ScrapeKeyword(ctx context.Context, pages PageOpener, keyword string, maxVideos int) (*Summary, error) {
	if maxVideos < 1 {
		maxVideos = o.cfg.MaxVideos
	}

	summary := &Summary{Keyword: keyword, RecordIDs: []string{}}

	searchPage, err := pages.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open search page: %w", err)
	}
	candidates, err := o.resolver.Search(ctx, searchPage, keyword, maxVideos)
	closeErr := searchPage.Close()
	if err != nil {
		return nil, fmt.Errorf("candidate resolution failed for %q: %w", keyword, err)
	}
	if closeErr != nil {
		o.logger.Debug("Failed to close search page", zap.Error(closeErr))
	}

	summary.Found = len(candidates)
	if len(candidates) == 0 {
		o.logger.Warn("No videos found for keyword", zap.String("keyword", keyword))
		return summary, nil
	}

	for _, cand := range candidates {
		// Cancellation is checked between URLs; mid-extraction cancellation
		// surfaces through the page operations themselves.
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if cand.ExternalID == "" {
			o.logger.Warn("Could not extract video ID from URL, dropping candidate", zap.String("url", cand.URL))
			continue
		}

		if err := o.limiter.Wait(ctx); err != nil {
			return summary, err
		}

		o.processCandidate(ctx, pages, keyword, cand, summary)

		if o.OnProgress != nil {
			o.OnProgress(*summary)
		}
	}

	o.logger.Info("Keyword job complete",
		zap.String("keyword", keyword),
		zap.Int("found", summary.Found),
		zap.Int("scraped", summary.Scraped),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}

// processCandidate settles one candidate URL: skip if already stored,
// otherwise extract, harvest comments and persist. All failures degrade to a
// skip.
func (o *Orchestrator) processCandidate(ctx context.Context, pages PageOpener, keyword string, cand CandidateURL, summary *Summary) {
	recordID, exists, err := o.store.FindVideoByExternalID(ctx, cand.ExternalID)
	if err != nil {
		o.logger.Error("Existence check failed, skipping URL", zap.String("url", cand.URL), zap.Error(err))
		summary.Skipped++
		return
	}
	if exists {
		o.logger.Info("Video already stored, skipping", zap.String("external_id", cand.ExternalID))
		summary.Skipped++
		summary.RecordIDs = append(summary.RecordIDs, recordID)
		return
	}

	page, err := pages.NewPage(ctx)
	if err != nil {
		o.logger.Error("Failed to open page, skipping URL", zap.String("url", cand.URL), zap.Error(err))
		summary.Skipped++
		return
	}
	defer func() {
		if err := page.Close(); err != nil {
			o.logger.Debug("Failed to close page", zap.Error(err))
		}
	}()

	rec, err := o.cascade.Extract(ctx, page, cand)
	if err != nil {
		o.logger.Error("Extraction failed, skipping URL", zap.String("url", cand.URL), zap.Error(err))
		summary.Skipped++
		return
	}
	rec.Keyword = keyword

	comments, err := o.harvester.Harvest(ctx, page)
	if err != nil {
		// A record without comments is still worth keeping.
		o.logger.Warn("Comment harvest failed", zap.String("url", cand.URL), zap.Error(err))
	} else {
		rec.Comments = comments
	}

	videoID, err := o.store.InsertVideo(ctx, rec)
	if err != nil {
		o.logger.Error("Failed to persist video, skipping URL", zap.String("url", cand.URL), zap.Error(err))
		summary.Skipped++
		return
	}

	if len(rec.Comments) > 0 {
		if err := o.store.InsertComments(ctx, videoID, rec.Comments); err != nil {
			o.logger.Error("Failed to persist comments", zap.String("video_id", videoID), zap.Error(err))
		}
	}

	summary.Scraped++
	summary.RecordIDs = append(summary.RecordIDs, videoID)
	o.logger.Info("Video scraped",
		zap.String("external_id", cand.ExternalID),
		zap.String("video_id", videoID),
		zap.Int("comments", len(rec.Comments)))
}
