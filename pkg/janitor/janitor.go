// Package janitor runs the periodic maintenance job: sweeping expired run
// history and logging session pool health.
package janitor

import (
	"fmt"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/robfig/cron/v3"

	"github.com/yourusername/chart-render-service/pkg/render"
	"github.com/yourusername/chart-render-service/pkg/store"
)

// Janitor owns the maintenance cron schedule.
type Janitor struct {
	store         *store.Store
	engine        render.Engine
	cron          *cron.Cron
	schedule      string
	retentionDays int
}

// New validates schedule (six-field cron, seconds first) and builds the
// janitor. A retentionDays of zero disables the history sweep.
func New(st *store.Store, engine render.Engine, schedule string, retentionDays int) (*Janitor, error) {
	if _, err := cronexpr.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	return &Janitor{
		store:         st,
		engine:        engine,
		cron:          cron.New(cron.WithSeconds()),
		schedule:      schedule,
		retentionDays: retentionDays,
	}, nil
}

// Start registers the sweep job and starts the cron loop.
func (j *Janitor) Start() error {
	entryID, err := j.cron.AddFunc(j.schedule, j.sweep)
	if err != nil {
		return fmt.Errorf("failed to add janitor job: %w", err)
	}
	j.cron.Start()

	next := cronexpr.MustParse(j.schedule).Next(time.Now())
	log.Printf("[JANITOR] Started with schedule '%s' (entry ID: %d), next run at %s",
		j.schedule, entryID, next.Format(time.RFC3339))
	return nil
}

// Stop stops the cron loop and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	log.Println("[JANITOR] Stopped")
}

func (j *Janitor) sweep() {
	stats := j.engine.Stats()
	log.Printf("[JANITOR] Pool: %d open (%d free, %d leased) of %d; %d leases, %d exhausted, %d sessions destroyed",
		stats.Open, stats.Free, stats.Leased, stats.Capacity, stats.Leases, stats.Exhausted, stats.Destroyed)

	if j.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -j.retentionDays)
	deleted, err := j.store.DeleteRunsBefore(cutoff)
	if err != nil {
		log.Printf("[JANITOR] WARNING: Run history sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("[JANITOR] Swept %d runs older than %s", deleted, cutoff.Format("2006-01-02"))
	}
}
