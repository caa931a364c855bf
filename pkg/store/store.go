// Package store keeps the render run history in SQLite. Writes flow through
// a single serialized queue because SQLite supports one writer; reads go
// straight to the database under WAL.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite" // Register SQLite driver

	"github.com/yourusername/chart-render-service/pkg/model"
)

// parseTimestamp parses a timestamp string from SQLite, handling the formats
// the driver actually emits.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05 -0700 MST",
		"2006-01-02 15:04:05 -0700",
		time.RFC3339,
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	log.Printf("[STORE] WARNING: Failed to parse timestamp: %s", s)
	return time.Time{}
}

// Store handles run-history database operations.
type Store struct {
	db         *sql.DB
	writeQueue *writeQueue
}

// NewStore opens (or creates) the run history database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL allows concurrent readers alongside the single writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	log.Println("[STORE] SQLite configured: WAL mode enabled, busy_timeout=5000ms, single writer connection")

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	store.writeQueue = newWriteQueue(store)
	return store, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			library TEXT NOT NULL,
			version TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			format TEXT NOT NULL,
			status TEXT NOT NULL,
			error_kind TEXT,
			error_text TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			bytes INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// CreateRun records one render attempt (queued for serialized execution).
func (s *Store) CreateRun(run *model.RunRecord) error {
	return s.writeQueue.enqueue(opCreateRun, run)
}

func (s *Store) createRunDirect(run *model.RunRecord) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(
		`INSERT INTO runs (library, version, width, height, format, status, error_kind, error_text, duration_ms, bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Library, run.Version, run.Width, run.Height, run.Format,
		run.Status, run.ErrorKind, run.ErrorText, run.DurationMS, run.Bytes,
		run.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	run.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get run ID: %w", err)
	}
	return nil
}

// DeleteRunsBefore removes runs older than cutoff (queued for serialized
// execution) and returns the number deleted.
func (s *Store) DeleteRunsBefore(cutoff time.Time) (int64, error) {
	return s.writeQueue.enqueueCount(opDeleteRunsBefore, cutoff)
}

func (s *Store) deleteRunsBeforeDirect(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM runs WHERE created_at < ?`,
		cutoff.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted runs: %w", err)
	}
	return n, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, library, version, width, height, format, status,
		        COALESCE(error_kind, ''), COALESCE(error_text, ''),
		        duration_ms, bytes, created_at
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var run model.RunRecord
		var createdAt string
		if err := rows.Scan(&run.ID, &run.Library, &run.Version, &run.Width, &run.Height,
			&run.Format, &run.Status, &run.ErrorKind, &run.ErrorText,
			&run.DurationMS, &run.Bytes, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.CreatedAt = parseTimestamp(createdAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CountRuns returns total and failed run counts.
func (s *Store) CountRuns() (total int64, failed int64, err error) {
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return 0, 0, fmt.Errorf("failed to count runs: %w", err)
	}
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE status = ?`, model.RunStatusFailed).Scan(&failed); err != nil {
		return 0, 0, fmt.Errorf("failed to count failed runs: %w", err)
	}
	return total, failed, nil
}

// Close drains the write queue and closes the database.
func (s *Store) Close() error {
	if s.writeQueue != nil {
		s.writeQueue.shutdown()
	}
	return s.db.Close()
}
