package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Browser owns the shared headless Chromium process. Pages created from it
// back the pool's sessions. Launch is lazy: the process starts on the first
// NewConn call.
type Browser struct {
	binPath    string
	instanceID string
	profileDir string

	mu      sync.Mutex
	browser *rod.Browser
}

// findChromeBinary tries to locate a Chrome binary in common locations.
func findChromeBinary() string {
	candidatePaths := []string{
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/snap/bin/chromium",

		// macOS
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"/Applications/Chromium.app/Contents/MacOS/Chromium",
	}

	for _, path := range candidatePaths {
		if info, err := os.Stat(path); err == nil && info.Mode()&0111 != 0 {
			return path
		}
	}
	return ""
}

// generateInstanceID creates a unique identifier for this browser instance.
func generateInstanceID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// NewBrowser prepares a browser handle. binPath may be empty, in which case
// common install locations are probed at launch.
func NewBrowser(binPath string) *Browser {
	instanceID := generateInstanceID()
	return &Browser{
		binPath:    binPath,
		instanceID: instanceID,
		profileDir: fmt.Sprintf("/tmp/.chart-renderd-profile-%s", instanceID),
	}
}

// get launches the browser on first use.
func (b *Browser) get() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return b.browser, nil
	}

	os.MkdirAll(b.profileDir, 0755)
	os.MkdirAll("/tmp/chrome-crashes", 0755)

	l := launcher.New()

	chromePath := b.binPath
	if chromePath == "" {
		chromePath = findChromeBinary()
		if chromePath != "" {
			log.Printf("[BROWSER] Auto-detected Chrome binary at: %s", chromePath)
		}
	}
	if chromePath != "" {
		l = l.Bin(chromePath)
	} else {
		log.Printf("[BROWSER] WARNING: no Chrome binary configured or found, relying on launcher defaults")
	}

	// Flags for headless server environments.
	l = l.Set("no-sandbox")
	l = l.Set("disable-setuid-sandbox")
	l = l.Set("disable-dev-shm-usage")
	l = l.Set("disable-gpu")
	l = l.Set("disable-software-rasterizer")
	l = l.Set("disable-extensions")
	l = l.Set("disable-background-networking")
	l = l.Set("no-first-run")
	l = l.Set("no-default-browser-check")
	l = l.Set("mute-audio")
	l = l.Set("crash-dumps-dir", "/tmp/chrome-crashes")
	l = l.Set("disable-breakpad")
	l = l.Set("user-data-dir", b.profileDir)
	l = l.Headless(true)
	l = l.Set("headless", "new")

	launchURL, err := l.Launch()
	if err != nil {
		if chromePath == "" {
			return nil, fmt.Errorf("failed to launch browser: %w (no Chrome/Chromium binary found; set renderer.browser_path)", err)
		}
		return nil, fmt.Errorf("failed to launch browser at %q: %w", chromePath, err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	b.browser = browser
	log.Printf("[BROWSER] Chromium launched (instance: %s, profile: %s)", b.instanceID, b.profileDir)
	return browser, nil
}

// NewConn creates a fresh isolated page. It is the pool's session factory.
func (b *Browser) NewConn(ctx context.Context) (Conn, error) {
	browser, err := b.get()
	if err != nil {
		return nil, err
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &rodConn{page: page}, nil
}

// Close shuts the browser process down and removes its profile directory.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser == nil {
		return nil
	}
	log.Printf("[BROWSER] Closing Chromium (instance: %s)", b.instanceID)
	err := b.browser.Close()
	b.browser = nil
	os.RemoveAll(b.profileDir)
	return err
}

// rodConn adapts a rod page to the Conn interface.
type rodConn struct {
	page *rod.Page
}

func (c *rodConn) Navigate(ctx context.Context, url string) error {
	p := c.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("failed to wait for page load: %w", err)
	}
	return nil
}

func (c *rodConn) SetViewport(width, height int, scale float64) error {
	return c.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: scale,
		Mobile:            false,
	})
}

func (c *rodConn) Eval(ctx context.Context, js string, args ...interface{}) (interface{}, error) {
	obj, err := c.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return nil, err
	}
	return obj.Value.Val(), nil
}

func (c *rodConn) CaptureScreenshot(ctx context.Context, width, height int, scale float64) ([]byte, error) {
	return c.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
		Clip: &proto.PageViewport{
			X:      0,
			Y:      0,
			Width:  float64(width),
			Height: float64(height),
			Scale:  scale,
		},
		FromSurface: true,
	})
}

func (c *rodConn) Close() error {
	return c.page.Close()
}
