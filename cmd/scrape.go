// File: cmd/scrape.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/clipsight/internal/analysis"
	"github.com/xkilldash9x/clipsight/internal/observability"
	"github.com/xkilldash9x/clipsight/internal/scrape"
)

var (
	scrapeKeywords  []string
	scrapeMaxVideos int
	scrapeAnalyze   bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape videos for one or more keywords and persist them",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runScrape(ctx)
	},
}

func init() {
	scrapeCmd.Flags().StringSliceVarP(&scrapeKeywords, "keyword", "k", nil, "keyword to search for (repeatable)")
	scrapeCmd.Flags().IntVarP(&scrapeMaxVideos, "max-videos", "n", 0, "max videos per keyword (0 uses the configured default)")
	scrapeCmd.Flags().BoolVarP(&scrapeAnalyze, "analyze", "a", false, "run sentiment analysis after scraping")
	_ = scrapeCmd.MarkFlagRequired("keyword")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(ctx context.Context) error {
	logger := observability.GetLogger()

	st, closeStore, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	orch, err := newPipeline(cfg.Scraper, st, logger)
	if err != nil {
		return err
	}

	maxVideos := scrapeMaxVideos
	if maxVideos < 1 {
		maxVideos = cfg.Scraper.MaxVideos
	}

	sessions := browserSessions(cfg.Browser, logger)
	summaries, err := runKeywordJobs(ctx, orch, sessions, scrapeKeywords, maxVideos, cfg.Scraper.KeywordConcurrency)
	if err != nil {
		return err
	}

	if scrapeAnalyze {
		if err := runBacklogAnalysis(ctx, st, cfg.Analysis.BatchSize, logger); err != nil {
			// Scraped data is already persisted; analysis failure is not
			// worth a non-zero exit.
			logger.Error("Post-scrape analysis failed", zap.Error(err))
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}

// runKeywordJobs fans keywords out over an errgroup. Every keyword job starts
// its own browser session, torn down when the keyword finishes.
func runKeywordJobs(ctx context.Context, orch *scrape.Orchestrator, sessions sessionFactory, keywords []string, maxVideos, concurrency int) ([]scrape.Summary, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu        sync.Mutex
		summaries []scrape.Summary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, keyword := range keywords {
		g.Go(func() error {
			pages, stop, err := sessions(gctx)
			if err != nil {
				return fmt.Errorf("keyword %q: %w", keyword, err)
			}
			defer stop()

			summary, err := orch.ScrapeKeyword(gctx, pages, keyword, maxVideos)
			if err != nil {
				return fmt.Errorf("keyword %q: %w", keyword, err)
			}
			mu.Lock()
			summaries = append(summaries, *summary)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func runBacklogAnalysis(ctx context.Context, backlog analysis.Backlog, limit int, logger *zap.Logger) error {
	if cfg.Analysis.APIKey == "" {
		logger.Warn("Analysis requested but no API key is configured, skipping")
		return nil
	}

	analyzer, err := analysis.NewAnalyzer(ctx, cfg.Analysis, logger)
	if err != nil {
		return err
	}
	n, err := analyzer.AnalyzeBacklog(ctx, backlog, limit)
	if err != nil {
		return err
	}
	logger.Info("Analysis pass complete", zap.Int("analyzed", n))
	return nil
}
