// File: cmd/serve.go
package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/clipsight/internal/api"
	"github.com/xkilldash9x/clipsight/internal/jobs"
	"github.com/xkilldash9x/clipsight/internal/observability"
	"github.com/xkilldash9x/clipsight/internal/scrape"
	"github.com/xkilldash9x/clipsight/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API for triggering and monitoring scrape jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
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

	registry := jobs.NewRegistry(cfg.API.JobIdleTimeout, logger)
	defer registry.Close()

	runner := &jobRunner{
		ctx:      ctx,
		registry: registry,
		orch:     orch,
		sessions: browserSessions(cfg.Browser, logger),
		store:    st,
		logger:   logger.Named("runner"),
	}

	return api.NewServer(cfg.API, registry, runner, st, logger).ListenAndServe(ctx)
}

// jobRunner executes API-submitted jobs in the background, one goroutine per
// job. Each job owns a dedicated browser session for its lifetime; keywords
// within a job run sequentially on that session, and the shared rate limiter
// in the orchestrator paces concurrent jobs against each other.
type jobRunner struct {
	ctx      context.Context
	registry *jobs.Registry
	orch     *scrape.Orchestrator
	sessions sessionFactory
	store    *store.Store
	logger   *zap.Logger
}

func (r *jobRunner) Run(job jobs.Job) {
	go r.execute(job)
}

func (r *jobRunner) execute(job jobs.Job) {
	if err := r.registry.SetStatus(job.ID, jobs.StatusRunning); err != nil {
		r.logger.Warn("Could not start job", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	pages, stop, err := r.sessions(r.ctx)
	if err != nil {
		r.logger.Error("Could not start browser session", zap.String("job_id", job.ID), zap.Error(err))
		_ = r.registry.Fail(job.ID, err.Error())
		return
	}
	defer stop()

	orch := r.orch.WithProgress(func(s scrape.Summary) {
		_ = r.registry.SetResult(job.ID, s)
	})

	for _, keyword := range job.Keywords {
		summary, err := orch.ScrapeKeyword(r.ctx, pages, keyword, job.MaxVideos)
		if err != nil {
			_ = r.registry.Fail(job.ID, err.Error())
			return
		}
		_ = r.registry.SetResult(job.ID, *summary)
	}

	if job.Analyze {
		_ = r.registry.SetStatus(job.ID, jobs.StatusAnalyzing)
		if err := runBacklogAnalysis(r.ctx, r.store, cfg.Analysis.BatchSize, r.logger); err != nil {
			_ = r.registry.Fail(job.ID, err.Error())
			return
		}
	}

	_ = r.registry.SetStatus(job.ID, jobs.StatusCompleted)
	r.logger.Info("Job finished", zap.String("job_id", job.ID))
}
