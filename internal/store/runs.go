package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// StartRun inserts a running run and returns it.
func (s *Store) StartRun(kind RunKind, url string) (*Run, error) {
	r := &Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		URL:       url,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (id, kind, url, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, string(r.Kind), r.URL, string(r.Status), r.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return r, nil
}

// FinishRun marks a run done, or failed when runErr is non-nil.
func (s *Store) FinishRun(id string, runErr error) error {
	status, msg := StatusDone, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}

	res, err := s.db.Exec(`
		UPDATE runs SET status = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, string(status), msg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun returns a single run.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, kind, url, status, error, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return r, err
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, kind, url, status, error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var kind, status string
	var finished sql.NullTime
	if err := sc.Scan(&r.ID, &kind, &r.URL, &status, &r.Error, &r.StartedAt, &finished); err != nil {
		return nil, err
	}
	r.Kind = RunKind(kind)
	r.Status = RunStatus(status)
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
