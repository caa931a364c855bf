package render

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/yourusername/chart-render-service/pkg/config"
	"github.com/yourusername/chart-render-service/pkg/model"
	"github.com/yourusername/chart-render-service/pkg/session"
)

// PlaywrightEngine renders through Playwright-driven Chromium. Each pooled
// session is one isolated browser context with a single page.
type PlaywrightEngine struct {
	cfg  *config.Config
	pool *session.Pool

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

func NewPlaywrightEngine(cfg *config.Config) (*PlaywrightEngine, error) {
	e := &PlaywrightEngine{cfg: cfg}
	e.pool = session.NewPool(cfg.Renderer.PoolSize, cfg.Renderer.SessionMaxUses, e.newConn)
	log.Printf("[BROWSER] Playwright backend ready (pool size %d, session max uses %d)",
		cfg.Renderer.PoolSize, cfg.Renderer.SessionMaxUses)
	return e, nil
}

// getBrowser launches the shared Chromium process on first use. Playwright
// needs a writable cache directory, which matters in containers where the
// home directory is read-only.
func (e *PlaywrightEngine) getBrowser() (playwright.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser != nil {
		return e.browser, nil
	}

	if os.Getenv("PLAYWRIGHT_BROWSERS_PATH") == "" {
		cache := "/tmp/.playwright-cache"
		os.Setenv("PLAYWRIGHT_BROWSERS_PATH", cache)
		if err := os.MkdirAll(cache, 0755); err != nil {
			log.Printf("WARNING: Failed to create Playwright cache directory: %v", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start Playwright: %w", err)
	}
	e.pw = pw

	launchOptions := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--disable-dev-shm-usage",
			"--disable-gpu",
			"--no-first-run",
			"--no-default-browser-check",
			"--disable-breakpad",
		},
	}
	if e.cfg.Renderer.BrowserPath != "" {
		launchOptions.ExecutablePath = playwright.String(e.cfg.Renderer.BrowserPath)
	}

	browser, err := pw.Chromium.Launch(launchOptions)
	if err != nil {
		pw.Stop()
		e.pw = nil
		return nil, fmt.Errorf("failed to launch Chromium: %w", err)
	}
	e.browser = browser
	log.Printf("[BROWSER] Playwright Chromium launched")
	return browser, nil
}

// newConn is the pool factory: one fresh context and page per session.
func (e *PlaywrightEngine) newConn(ctx context.Context) (session.Conn, error) {
	browser, err := e.getBrowser()
	if err != nil {
		return nil, err
	}

	browserContext, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: 800, Height: 600},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := browserContext.NewPage()
	if err != nil {
		browserContext.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &pwConn{id: uuid.New().String()[:8], context: browserContext, page: page}, nil
}

func (e *PlaywrightEngine) Render(ctx context.Context, req *model.RenderRequest) ([]byte, string, error) {
	return renderWithPool(ctx, e.pool, e.cfg, req)
}

func (e *PlaywrightEngine) Stats() session.Stats {
	return e.pool.Stats()
}

func (e *PlaywrightEngine) Close() error {
	e.pool.Close()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser != nil {
		if err := e.browser.Close(); err != nil {
			log.Printf("WARNING: Failed to close Playwright browser: %v", err)
		}
		e.browser = nil
	}
	if e.pw != nil {
		if err := e.pw.Stop(); err != nil {
			log.Printf("WARNING: Failed to stop Playwright: %v", err)
		}
		e.pw = nil
	}
	return nil
}

func (e *PlaywrightEngine) Name() string {
	return "playwright"
}

// pwConn adapts a Playwright page to the session.Conn surface.
type pwConn struct {
	id      string
	context playwright.BrowserContext
	page    playwright.Page
}

func (c *pwConn) Navigate(ctx context.Context, url string) error {
	opts := playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateLoad}
	if deadline, ok := ctx.Deadline(); ok {
		opts.Timeout = playwright.Float(float64(time.Until(deadline).Milliseconds()))
	}
	_, err := c.page.Goto(url, opts)
	return err
}

// SetViewport resizes the page. Playwright pins the device scale factor at
// context creation, so per-request scaling is approximated by the page
// template's CSS transform and a warning is logged when a non-default scale
// is requested.
func (c *pwConn) SetViewport(width, height int, scale float64) error {
	if scale != 1.0 {
		log.Printf("WARNING: [BROWSER] Playwright backend cannot change device scale per request (requested %.2f, session %s)", scale, c.id)
	}
	return c.page.SetViewportSize(width, height)
}

func (c *pwConn) Eval(ctx context.Context, js string, args ...interface{}) (interface{}, error) {
	if len(args) > 1 {
		return nil, fmt.Errorf("playwright evaluate accepts at most one argument, got %d", len(args))
	}
	if len(args) == 1 {
		return c.page.Evaluate(js, args[0])
	}
	return c.page.Evaluate(js)
}

func (c *pwConn) CaptureScreenshot(ctx context.Context, width, height int, scale float64) ([]byte, error) {
	opts := playwright.PageScreenshotOptions{
		Type: playwright.ScreenshotTypePng,
		Clip: &playwright.Rect{X: 0, Y: 0, Width: float64(width), Height: float64(height)},
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts.Timeout = playwright.Float(float64(time.Until(deadline).Milliseconds()))
	}
	return c.page.Screenshot(opts)
}

func (c *pwConn) Close() error {
	if err := c.page.Close(); err != nil {
		log.Printf("WARNING: [BROWSER] Failed to close page for session %s: %v", c.id, err)
	}
	return c.context.Close()
}
