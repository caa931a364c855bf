package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yourusername/chart-render-service/pkg/model"
	"github.com/yourusername/chart-render-service/pkg/session"
	"github.com/yourusername/chart-render-service/pkg/store"
)

// fakeEngine returns canned bytes or a canned error.
type fakeEngine struct {
	data        []byte
	contentType string
	err         error
	lastReq     *model.RenderRequest
}

func (e *fakeEngine) Render(ctx context.Context, req *model.RenderRequest) ([]byte, string, error) {
	e.lastReq = req
	if e.err != nil {
		return nil, "", e.err
	}
	return e.data, e.contentType, nil
}
func (e *fakeEngine) Stats() session.Stats { return session.Stats{Capacity: 4, Free: 2, Open: 2} }
func (e *fakeEngine) Close() error         { return nil }
func (e *fakeEngine) Name() string         { return "fake" }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func renderBody() string {
	return `{
		"render_type": "echarts",
		"library": {"name": "echarts", "version": "5.4.3"},
		"data": {"series": [{"type": "bar", "data": [1, 2, 3]}]},
		"options": {"width": 800, "height": 600, "format": "png"}
	}`
}

func TestRenderReturnsImageBytes(t *testing.T) {
	engine := &fakeEngine{data: []byte("\x89PNG fake"), contentType: "image/png"}
	h := NewHandler(engine, newTestStore(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/render", strings.NewReader(renderBody())))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if cl := rec.Header().Get("Content-Length"); cl != "9" {
		t.Errorf("Content-Length = %q, want 9", cl)
	}
	if !bytes.Equal(rec.Body.Bytes(), engine.data) {
		t.Error("body does not match engine output")
	}
	if engine.lastReq == nil || engine.lastReq.Library.Name != "echarts" {
		t.Error("request did not reach the engine intact")
	}
}

func TestRenderReturnBase64Envelope(t *testing.T) {
	engine := &fakeEngine{data: []byte{1, 2, 3, 4}, contentType: "image/jpeg"}
	h := NewHandler(engine, nil)

	body := strings.Replace(renderBody(), `"format": "png"`, `"format": "jpeg", "return_base64": true`, 1)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/render", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp model.Base64Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp.MimeType != "image/jpeg" {
		t.Errorf("mime_type = %q, want image/jpeg", resp.MimeType)
	}
	decoded, err := base64.StdEncoding.DecodeString(resp.Data)
	if err != nil || !bytes.Equal(decoded, engine.data) {
		t.Errorf("data did not round-trip through base64 (err: %v)", err)
	}
}

func TestRenderErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        *model.Error
		wantStatus int
		wantKind   string
	}{
		{"invalid options", model.E(model.KindInvalidOptions, "width out of range"), http.StatusBadRequest, "invalid_options"},
		{"unknown library", model.E(model.KindUnsupportedLibrary, "no such library"), http.StatusBadRequest, "unsupported_library_or_version"},
		{"script error", model.E(model.KindRenderScriptError, "boom"), http.StatusUnprocessableEntity, "render_script_error"},
		{"pool exhausted", model.E(model.KindPoolExhausted, "busy"), http.StatusServiceUnavailable, "pool_exhausted"},
		{"timeout", model.E(model.KindRenderTimeout, "too slow"), http.StatusGatewayTimeout, "render_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&fakeEngine{err: tt.err}, nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/render", strings.NewReader(renderBody())))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("error body is not JSON: %v", err)
			}
			if body["kind"] != tt.wantKind {
				t.Errorf("kind = %q, want %q", body["kind"], tt.wantKind)
			}
			if body["message"] == "" {
				t.Error("error body is missing a message")
			}
		})
	}
}

func TestRenderRejectsMalformedJSON(t *testing.T) {
	h := NewHandler(&fakeEngine{}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/render", strings.NewReader("{not json")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRenderMethodNotAllowed(t *testing.T) {
	h := NewHandler(&fakeEngine{}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/render", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestRenderRecordsRunHistory(t *testing.T) {
	st := newTestStore(t)
	h := NewHandler(&fakeEngine{err: model.E(model.KindRenderTimeout, "no completion signal")}, st)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/render", strings.NewReader(renderBody())))

	runs, err := st.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	run := runs[0]
	if run.Status != model.RunStatusFailed {
		t.Errorf("status = %q, want failed", run.Status)
	}
	if run.ErrorKind != "render_timeout" {
		t.Errorf("error_kind = %q, want render_timeout", run.ErrorKind)
	}
	if run.Library != "echarts" || run.Width != 800 {
		t.Errorf("run metadata mismatch: %+v", run)
	}
}

func TestLibraries(t *testing.T) {
	h := NewHandler(&fakeEngine{}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/libraries", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Libraries []model.LibraryInfo `json:"libraries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if len(resp.Libraries) != 4 {
		t.Fatalf("len(libraries) = %d, want 4", len(resp.Libraries))
	}
	for _, lib := range resp.Libraries {
		if len(lib.Versions) == 0 || lib.ScriptURLTemplate == "" {
			t.Errorf("library %q entry is incomplete: %+v", lib.Name, lib)
		}
	}
}

func TestHealth(t *testing.T) {
	st := newTestStore(t)
	h := NewHandler(&fakeEngine{}, st)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Status  string        `json:"status"`
		Backend string        `json:"backend"`
		Pool    session.Stats `json:"pool"`
		Runs    map[string]int64
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp.Status != "ok" || resp.Backend != "fake" {
		t.Errorf("status/backend = %q/%q", resp.Status, resp.Backend)
	}
	if resp.Pool.Capacity != 4 {
		t.Errorf("pool capacity = %d, want 4", resp.Pool.Capacity)
	}
}

func TestRunsEndpoint(t *testing.T) {
	st := newTestStore(t)
	h := NewHandler(&fakeEngine{data: []byte("x"), contentType: "image/png"}, st)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/render", strings.NewReader(renderBody())))
		if rec.Code != http.StatusOK {
			t.Fatalf("render %d status = %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Runs []model.RunRecord `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if len(resp.Runs) != 2 {
		t.Errorf("len(runs) = %d, want 2", len(resp.Runs))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", rec.Code)
	}
}
