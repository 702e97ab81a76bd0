// File: internal/browser/manager.go

// Package browser owns the Chrome process lifecycle and hands out isolated
// tabs that implement the page surface the scraping pipeline works against.
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/clipsight/internal/config"
	"github.com/xkilldash9x/clipsight/internal/scrape"
)

// Manager launches one Chrome instance and creates tabs on demand. Tabs share
// the process but have independent lifetimes; stopping the manager closes
// everything.
type Manager struct {
	cfg     config.BrowserConfig
	persona Persona
	logger  *zap.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
	startErr  error
}

// NewManager creates a browser manager. The Chrome process is not launched
// until Start is called.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		persona: PersonaFromConfig(cfg),
		logger:  logger.Named("browser"),
	}
}

// Start launches the Chrome process. Idempotent; subsequent calls return the
// first launch result.
func (m *Manager) Start(ctx context.Context) error {
	m.startOnce.Do(func() {
		m.logger.Info("Launching browser",
			zap.Bool("headless", m.cfg.Headless),
			zap.Int("width", m.cfg.ViewportWidth),
			zap.Int("height", m.cfg.ViewportHeight))

		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(ctx, allocatorOptions(m.cfg)...)
		m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocCtx)

		// An empty Run forces the process to spawn so launch failures
		// surface here instead of on the first page.
		if err := chromedp.Run(m.browserCtx); err != nil {
			m.startErr = fmt.Errorf("failed to launch browser: %w", err)
			m.browserCancel()
			m.allocCancel()
			return
		}
		m.logger.Info("Browser launched")
	})
	return m.startErr
}

// NewPage opens a fresh tab with the stealth persona applied. The caller owns
// the returned page and must Close it.
func (m *Manager) NewPage(ctx context.Context) (scrape.Page, error) {
	if m.browserCtx == nil || m.browserCtx.Err() != nil {
		return nil, fmt.Errorf("browser is not running")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)
	if err := chromedp.Run(tabCtx, applyPersona(m.persona, m.logger)); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to prepare tab: %w", err)
	}

	return &Page{
		ctx:    tabCtx,
		cancel: tabCancel,
		cfg:    m.cfg,
		logger: m.logger,
	}, nil
}

// Stop tears down the browser process and all tabs. Idempotent.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		if m.browserCancel != nil {
			m.browserCancel()
		}
		if m.allocCancel != nil {
			m.allocCancel()
		}
		m.logger.Info("Browser stopped")
	})
}
