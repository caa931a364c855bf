package janitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/yourusername/chart-render-service/pkg/model"
	"github.com/yourusername/chart-render-service/pkg/session"
	"github.com/yourusername/chart-render-service/pkg/store"
)

type stubEngine struct {
	stats session.Stats
}

func (e *stubEngine) Render(ctx context.Context, req *model.RenderRequest) ([]byte, string, error) {
	return nil, "", model.E(model.KindInternal, "not a real engine")
}
func (e *stubEngine) Stats() session.Stats { return e.stats }
func (e *stubEngine) Close() error         { return nil }
func (e *stubEngine) Name() string         { return "stub" }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestNewRejectsInvalidSchedule(t *testing.T) {
	st := newTestStore(t)
	if _, err := New(st, &stubEngine{}, "not a cron line", 30); err == nil {
		t.Fatal("expected an error for a malformed schedule")
	}
	if _, err := New(st, &stubEngine{}, "0 0 * * * *", 30); err != nil {
		t.Fatalf("hourly schedule rejected: %v", err)
	}
}

func TestSweepDeletesExpiredRuns(t *testing.T) {
	st := newTestStore(t)

	expired := &model.RunRecord{
		Library: "d3", Version: "7.8.5", Width: 800, Height: 600,
		Format: "png", Status: model.RunStatusSuccess,
		CreatedAt: time.Now().UTC().AddDate(0, 0, -31),
	}
	if err := st.CreateRun(expired); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	kept := &model.RunRecord{
		Library: "d3", Version: "7.8.5", Width: 800, Height: 600,
		Format: "png", Status: model.RunStatusSuccess,
	}
	if err := st.CreateRun(kept); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	j, err := New(st, &stubEngine{}, "0 0 * * * *", 30)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	j.sweep()

	total, _, err := st.CountRuns()
	if err != nil {
		t.Fatalf("CountRuns() error = %v", err)
	}
	if total != 1 {
		t.Errorf("runs after sweep = %d, want 1", total)
	}
}

func TestSweepRetentionDisabled(t *testing.T) {
	st := newTestStore(t)

	old := &model.RunRecord{
		Library: "konva", Version: "9.2.0", Width: 800, Height: 600,
		Format: "png", Status: model.RunStatusFailed,
		ErrorKind: "render_timeout",
		CreatedAt: time.Now().UTC().AddDate(0, 0, -365),
	}
	if err := st.CreateRun(old); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	j, err := New(st, &stubEngine{}, "0 0 * * * *", 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	j.sweep()

	total, _, err := st.CountRuns()
	if err != nil {
		t.Fatalf("CountRuns() error = %v", err)
	}
	if total != 1 {
		t.Errorf("runs = %d, want 1 (retention disabled must not sweep)", total)
	}
}
