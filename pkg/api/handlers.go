// Package api exposes the HTTP surface: synchronous render, library listing,
// run history, and health.
package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/yourusername/chart-render-service/pkg/model"
	"github.com/yourusername/chart-render-service/pkg/registry"
	"github.com/yourusername/chart-render-service/pkg/render"
	"github.com/yourusername/chart-render-service/pkg/store"
)

const maxRequestBody = 8 << 20 // chart payloads are JSON, 8 MiB is generous

// Handler wires the HTTP routes to the render engine and run store.
type Handler struct {
	engine render.Engine
	store  *store.Store
	mux    *http.ServeMux
}

func NewHandler(engine render.Engine, st *store.Store) *Handler {
	h := &Handler{
		engine: engine,
		store:  st,
		mux:    http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("/render", h.handleRender)
	h.mux.HandleFunc("/libraries", h.handleLibraries)
	h.mux.HandleFunc("/health", h.handleHealth)
	h.mux.HandleFunc("/api/runs", h.handleRuns)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// handleRender handles POST /render: one synchronous render, image bytes out.
func (h *Handler) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.RenderRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		respondError(w, model.Wrap(model.KindInvalidOptions, err, "request body is not valid JSON"))
		return
	}

	start := time.Now()
	data, contentType, err := h.engine.Render(r.Context(), &req)
	h.recordRun(&req, data, err, time.Since(start))
	if err != nil {
		respondError(w, err)
		return
	}

	if req.Options.ReturnBase64 {
		respondJSON(w, model.Base64Response{
			Data:     base64.StdEncoding.EncodeToString(data),
			MimeType: contentType,
		})
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, werr := w.Write(data); werr != nil {
		log.Printf("[API] WARNING: Failed to write render response: %v", werr)
	}
}

// recordRun writes the attempt to the run history. History failures are
// logged and never fail the render response.
func (h *Handler) recordRun(req *model.RenderRequest, data []byte, renderErr error, elapsed time.Duration) {
	if h.store == nil {
		return
	}
	run := &model.RunRecord{
		Library:    req.Library.Name,
		Version:    req.Library.Version,
		Width:      req.Options.Width,
		Height:     req.Options.Height,
		Format:     req.Options.Format,
		Status:     model.RunStatusSuccess,
		DurationMS: elapsed.Milliseconds(),
		Bytes:      int64(len(data)),
	}
	if renderErr != nil {
		run.Status = model.RunStatusFailed
		run.ErrorKind = string(model.KindOf(renderErr))
		run.ErrorText = model.PublicMessage(renderErr)
	}
	if err := h.store.CreateRun(run); err != nil {
		log.Printf("[API] WARNING: Failed to record run: %v", err)
	}
}

// handleLibraries handles GET /libraries.
func (h *Handler) handleLibraries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, map[string]interface{}{"libraries": registry.List()})
}

// handleHealth handles GET /health: backend name, pool counters, run totals.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload := map[string]interface{}{
		"status":  "ok",
		"backend": h.engine.Name(),
		"pool":    h.engine.Stats(),
	}
	if h.store != nil {
		total, failed, err := h.store.CountRuns()
		if err != nil {
			log.Printf("[API] WARNING: Failed to count runs for health: %v", err)
		} else {
			payload["runs"] = map[string]int64{"total": total, "failed": failed}
		}
	}
	respondJSON(w, payload)
}

// handleRuns handles GET /api/runs?limit=N.
func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.store == nil {
		http.Error(w, "Run history disabled", http.StatusNotFound)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			respondError(w, model.E(model.KindInvalidOptions, "limit must be an integer between 1 and 1000"))
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list runs: %v", err), http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]interface{}{"runs": runs})
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// respondError maps the typed error to its HTTP status and a stable JSON
// shape. Wrapped internal causes never reach the client.
func respondError(w http.ResponseWriter, err error) {
	kind := model.KindOf(err)
	body := map[string]string{
		"kind":    string(kind),
		"message": model.PublicMessage(err),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(model.HTTPStatus(kind))
	json.NewEncoder(w).Encode(body)
}
