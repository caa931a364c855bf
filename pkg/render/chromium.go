package render

import (
	"context"
	"log"

	"github.com/yourusername/chart-render-service/pkg/config"
	"github.com/yourusername/chart-render-service/pkg/model"
	"github.com/yourusername/chart-render-service/pkg/session"
)

// ChromiumEngine renders through a shared headless Chromium process managed
// by go-rod. Each pooled session is one browser page.
type ChromiumEngine struct {
	cfg     *config.Config
	browser *session.Browser
	pool    *session.Pool
}

func NewChromiumEngine(cfg *config.Config) *ChromiumEngine {
	browser := session.NewBrowser(cfg.Renderer.BrowserPath)
	e := &ChromiumEngine{
		cfg:     cfg,
		browser: browser,
	}
	e.pool = session.NewPool(cfg.Renderer.PoolSize, cfg.Renderer.SessionMaxUses, browser.NewConn)
	log.Printf("[BROWSER] Chromium backend ready (pool size %d, session max uses %d)",
		cfg.Renderer.PoolSize, cfg.Renderer.SessionMaxUses)
	return e
}

func (e *ChromiumEngine) Render(ctx context.Context, req *model.RenderRequest) ([]byte, string, error) {
	return renderWithPool(ctx, e.pool, e.cfg, req)
}

func (e *ChromiumEngine) Stats() session.Stats {
	return e.pool.Stats()
}

// Close retires pooled pages first so no page outlives the browser process.
func (e *ChromiumEngine) Close() error {
	e.pool.Close()
	return e.browser.Close()
}

func (e *ChromiumEngine) Name() string {
	return "chromium"
}
