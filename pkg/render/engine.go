package render

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/yourusername/chart-render-service/pkg/config"
	"github.com/yourusername/chart-render-service/pkg/encode"
	"github.com/yourusername/chart-render-service/pkg/model"
	"github.com/yourusername/chart-render-service/pkg/registry"
	"github.com/yourusername/chart-render-service/pkg/session"
	"github.com/yourusername/chart-render-service/pkg/template"
)

// timingsFor derives the per-request deadlines. The overall render budget
// comes from the request's timeout_ms (already validated against the
// configured maximum) or the configured default.
func timingsFor(cfg *config.Config, opts model.RenderOptions) (timings, time.Duration) {
	overall := time.Duration(cfg.Renderer.RenderTimeoutMS) * time.Millisecond
	if opts.TimeoutMS != nil {
		overall = time.Duration(*opts.TimeoutMS) * time.Millisecond
	}

	poll := time.Duration(cfg.Renderer.PollIntervalMS) * time.Millisecond
	if opts.PollIntervalMS != nil {
		poll = time.Duration(*opts.PollIntervalMS) * time.Millisecond
	}

	settle := poll
	if opts.RenderDelayMS != nil {
		settle = time.Duration(*opts.RenderDelayMS) * time.Millisecond
	}

	load := time.Duration(cfg.Renderer.LoadTimeoutMS) * time.Millisecond
	if load > overall {
		load = overall
	}

	return timings{load: load, complete: overall, poll: poll, settle: settle}, overall
}

// renderWithPool is the request orchestration shared by both backends.
// Input validation and library resolution run before any session is leased,
// so client errors never consume pool capacity. Releasing always runs; a
// session whose render did not finish cleanly is released tainted.
func renderWithPool(ctx context.Context, pool *session.Pool, cfg *config.Config, req *model.RenderRequest) ([]byte, string, error) {
	if verr := model.ValidateRenderRequest(req, cfg.Limits()); verr != nil {
		return nil, "", verr
	}
	src, rerr := registry.ResolveRequest(req)
	if rerr != nil {
		return nil, "", rerr
	}

	var payload interface{}
	if err := json.Unmarshal(req.Data, &payload); err != nil {
		return nil, "", model.Wrap(model.KindInvalidOptions, err, "data is not valid JSON")
	}

	doc, err := template.Compose(src, req.Options)
	if err != nil {
		return nil, "", model.Wrap(model.KindInternal, err, "failed to compose render document")
	}

	t, overall := timingsFor(cfg, req.Options)
	rctx, cancel := context.WithTimeout(ctx, overall)
	defer cancel()

	acquireCtx, cancelAcquire := context.WithTimeout(rctx,
		time.Duration(cfg.Renderer.AcquireTimeoutMS)*time.Millisecond)
	sess, aerr := pool.Acquire(acquireCtx)
	cancelAcquire()
	if aerr != nil {
		return nil, "", aerr
	}

	// Tainted until proven clean: a client disconnect or any mid-flight
	// failure leaves the context's state unverified.
	outcome := session.OutcomeTainted
	defer func() { pool.Release(sess, outcome) }()

	start := time.Now()
	surface, perr := runPipeline(rctx, sess.Conn(), doc, payload, req.Options, t)
	if perr != nil {
		log.Printf("[RENDER] %s@%s failed after %s: %v", src.Name, src.Version, time.Since(start).Round(time.Millisecond), perr)
		return nil, "", perr
	}
	if rctx.Err() == nil {
		outcome = session.OutcomeClean
	}

	data, contentType, eerr := encode.Encode(surface, req.Options.Format, req.Options.Quality, req.Options.Background)
	if eerr != nil {
		return nil, "", eerr
	}

	log.Printf("[RENDER] Completed %s@%s %dx%d %s in %s (%d bytes, session %s use %d)",
		src.Name, src.Version, req.Options.Width, req.Options.Height, req.Options.Format,
		time.Since(start).Round(time.Millisecond), len(data), sess.ID, sess.UseCount())
	return data, contentType, nil
}
