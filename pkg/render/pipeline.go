package render

import (
	"context"
	"fmt"
	"time"

	"github.com/yourusername/chart-render-service/pkg/encode"
	"github.com/yourusername/chart-render-service/pkg/model"
	"github.com/yourusername/chart-render-service/pkg/session"
	"github.com/yourusername/chart-render-service/pkg/template"
)

// timings are the per-request deadlines derived from configuration and
// request options.
type timings struct {
	load     time.Duration
	complete time.Duration
	poll     time.Duration
	settle   time.Duration
}

// injectScript calls the harness entry point with the payload bound as a
// value argument. The payload never appears in script source.
var injectScript = fmt.Sprintf(`(data) => {
	if (typeof window.%s !== 'function') {
		throw new Error('render harness unavailable');
	}
	window.%s(data);
}`, template.EntryPoint, template.EntryPoint)

// statusProbe reads both completion markers in one round trip. Timestamps
// are carried out for the tie-break when both markers are present.
var statusProbe = fmt.Sprintf(`() => {
	const done = window.%s;
	const failed = window.%s;
	return {
		done: !!done,
		failed: !!failed,
		doneAt: done ? done.at : 0,
		failedAt: failed ? failed.at : 0,
		message: failed ? String(failed.message || '') : ''
	};
}`, template.DoneMarker, template.FailedMarker)

type markerStatus struct {
	done     bool
	failed   bool
	doneAt   float64
	failedAt float64
	message  string
}

func parseMarkerStatus(v interface{}) (markerStatus, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return markerStatus{}, fmt.Errorf("unexpected probe result %T", v)
	}
	st := markerStatus{}
	st.done, _ = m["done"].(bool)
	st.failed, _ = m["failed"].(bool)
	st.doneAt, _ = m["doneAt"].(float64)
	st.failedAt, _ = m["failedAt"].(float64)
	st.message, _ = m["message"].(string)
	return st, nil
}

// runPipeline drives one render through a leased session:
// Loading -> Injecting -> AwaitingCompletion -> Capturing. The caller owns
// Releasing and runs it regardless of which phase failed.
func runPipeline(ctx context.Context, conn session.Conn, doc *template.Document, payload interface{}, opts model.RenderOptions, t timings) (*encode.Surface, error) {
	scale := 1.0
	if opts.DeviceScaleFactor != nil {
		scale = *opts.DeviceScaleFactor
	}

	// Loading.
	if err := conn.SetViewport(opts.Width, opts.Height, scale); err != nil {
		return nil, model.Wrap(model.KindLoadError, err, "failed to size the render viewport")
	}
	loadCtx, cancelLoad := context.WithTimeout(ctx, t.load)
	err := conn.Navigate(loadCtx, doc.DataURL())
	cancelLoad()
	if err != nil {
		return nil, model.Wrap(model.KindLoadError, err, "failed to load the render document")
	}

	// Injecting.
	if _, err := conn.Eval(ctx, injectScript, payload); err != nil {
		return nil, model.Wrap(model.KindLoadError, err, "failed to inject chart data")
	}

	// AwaitingCompletion.
	if err := awaitCompletion(ctx, conn, t); err != nil {
		return nil, err
	}

	// Settle delay before capture so the final paint lands.
	if t.settle > 0 {
		select {
		case <-ctx.Done():
			return nil, model.E(model.KindRenderTimeout, "render deadline exceeded before capture")
		case <-time.After(t.settle):
		}
	}

	// Capturing.
	raw, err := conn.CaptureScreenshot(ctx, opts.Width, opts.Height, scale)
	if err != nil {
		return nil, model.Wrap(model.KindCaptureError, err, "failed to capture the rendered surface")
	}
	surface, err := encode.DecodeSurface(raw)
	if err != nil {
		return nil, model.Wrap(model.KindCaptureError, err, "captured surface is not decodable")
	}
	return surface, nil
}

// awaitCompletion polls the harness markers until success, error, or the
// completion deadline. When both markers are present (harness bug), success
// wins only if it was written first; ambiguity is never allowed to yield a
// corrupt image.
func awaitCompletion(ctx context.Context, conn session.Conn, t timings) error {
	deadline := time.Now().Add(t.complete)
	for {
		res, err := conn.Eval(ctx, statusProbe)
		if err != nil {
			if ctx.Err() != nil {
				return model.E(model.KindRenderTimeout, "render deadline exceeded while awaiting completion")
			}
			return model.Wrap(model.KindInternal, err, "completion probe failed")
		}
		st, perr := parseMarkerStatus(res)
		if perr != nil {
			return model.Wrap(model.KindInternal, perr, "completion probe returned garbage")
		}

		switch {
		case st.done && st.failed:
			if st.doneAt < st.failedAt {
				return nil
			}
			return model.E(model.KindRenderScriptError, "chart script failed: %s", failureMessage(st))
		case st.failed:
			return model.E(model.KindRenderScriptError, "chart script failed: %s", failureMessage(st))
		case st.done:
			return nil
		}

		if time.Now().After(deadline) {
			return model.E(model.KindRenderTimeout, "no completion signal within %s", t.complete)
		}
		select {
		case <-ctx.Done():
			return model.E(model.KindRenderTimeout, "render deadline exceeded while awaiting completion")
		case <-time.After(t.poll):
		}
	}
}

func failureMessage(st markerStatus) string {
	if st.message != "" {
		return st.message
	}
	return "unknown error"
}
