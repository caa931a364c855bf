// Package session owns the pool of isolated browser execution contexts used
// by the render pipeline. Each context is leased exclusively to one request
// and either recycled or destroyed afterwards.
package session

import "context"

// Conn is one isolated browser execution context (a tab-like page). The
// pipeline drives renders through this interface so the pool and state
// machine are testable without a running browser.
type Conn interface {
	// Navigate loads a document and waits for its load event.
	Navigate(ctx context.Context, url string) error

	// SetViewport sizes the context's visible surface.
	SetViewport(width, height int, scale float64) error

	// Eval runs a script function in the page, passing args as values
	// (marshaled, never concatenated into source), and returns the decoded
	// result.
	Eval(ctx context.Context, js string, args ...interface{}) (interface{}, error)

	// CaptureScreenshot takes a PNG snapshot clipped to width x height,
	// scaled by the device scale factor.
	CaptureScreenshot(ctx context.Context, width, height int, scale float64) ([]byte, error)

	// Close destroys the context.
	Close() error
}
