// Package render drives one chart render from request to encoded image:
// resolve the library, compose the document, lease a session, load, inject,
// await the completion marker, capture, encode.
package render

import (
	"context"
	"fmt"

	"github.com/yourusername/chart-render-service/pkg/config"
	"github.com/yourusername/chart-render-service/pkg/model"
	"github.com/yourusername/chart-render-service/pkg/session"
)

// Engine is a rendering backend. Render returns the encoded image bytes and
// their content type, or a typed *model.Error.
type Engine interface {
	Render(ctx context.Context, req *model.RenderRequest) ([]byte, string, error)

	// Stats reports the backend's session pool counters.
	Stats() session.Stats

	// Close cleans up browser processes and pooled sessions.
	Close() error

	// Name returns the backend name.
	Name() string
}

// NewEngine creates the rendering backend selected by configuration.
func NewEngine(cfg *config.Config) (Engine, error) {
	switch cfg.Renderer.Backend {
	case "chromium", "":
		return NewChromiumEngine(cfg), nil
	case "playwright":
		return NewPlaywrightEngine(cfg)
	default:
		return nil, fmt.Errorf("unknown renderer backend %q", cfg.Renderer.Backend)
	}
}
