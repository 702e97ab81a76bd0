// File: cmd/runtime.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/clipsight/internal/browser"
	"github.com/xkilldash9x/clipsight/internal/config"
	"github.com/xkilldash9x/clipsight/internal/scrape"
	"github.com/xkilldash9x/clipsight/internal/store"
)

// sessionFactory starts a dedicated browser session for one unit of work and
// returns the page opener together with its teardown.
type sessionFactory func(ctx context.Context) (scrape.PageOpener, func(), error)

// browserSessions returns a factory that launches a fresh Chrome instance per
// call. Parallel keyword jobs each own their session; their traffic never
// interleaves inside one browser.
func browserSessions(cfg config.BrowserConfig, logger *zap.Logger) sessionFactory {
	return func(ctx context.Context) (scrape.PageOpener, func(), error) {
		m := browser.NewManager(cfg, logger)
		if err := m.Start(ctx); err != nil {
			return nil, nil, err
		}
		return m, m.Stop, nil
	}
}

// openStore connects the Postgres pool and wraps it in the store layer,
// retrying with linear backoff so a database that is still coming up does
// not kill the process. The returned cleanup closes the pool.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*store.Store, func(), error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		st, cleanup, err := connectOnce(ctx, poolCfg, cfg.ConnectTimeout, logger)
		if err == nil {
			return st, cleanup, nil
		}
		lastErr = err

		if attempt < attempts {
			logger.Warn("Database connection failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err))
			delay := time.Duration(attempt) * cfg.RetryBaseDelay
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, nil, fmt.Errorf("database unreachable after %d attempts: %w", attempts, lastErr)
}

func connectOnce(ctx context.Context, poolCfg *pgxpool.Config, timeout time.Duration, logger *zap.Logger) (*store.Store, func(), error) {
	connectCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	st, err := store.New(connectCtx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return st, pool.Close, nil
}

// newPipeline assembles the keyword scraping pipeline over the store.
func newPipeline(cfg config.ScraperConfig, st *store.Store, logger *zap.Logger) (*scrape.Orchestrator, error) {
	return scrape.NewOrchestrator(cfg,
		scrape.NewResolver(cfg, logger),
		scrape.NewCascade(cfg, logger),
		scrape.NewHarvester(cfg, logger),
		st,
		logger,
	)
}
