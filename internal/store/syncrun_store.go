package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/pmsync/internal/model"
)

const syncRunColumns = `id, started_at, finished_at, type, status, trigger_kind, project_key,
	processed, created_count, updated_count, deleted_count, failed_count,
	duration_ms, error_message, data_cutoff`

type syncRunRow struct {
	ID           string       `db:"id"`
	StartedAt    time.Time    `db:"started_at"`
	FinishedAt   sql.NullTime `db:"finished_at"`
	Type         string       `db:"type"`
	Status       string       `db:"status"`
	Trigger      string       `db:"trigger_kind"`
	ProjectKey   string       `db:"project_key"`
	Processed    int          `db:"processed"`
	Created      int          `db:"created_count"`
	Updated      int          `db:"updated_count"`
	Deleted      int          `db:"deleted_count"`
	Failed       int          `db:"failed_count"`
	DurationMs   int64        `db:"duration_ms"`
	ErrorMessage string       `db:"error_message"`
	DataCutoff   sql.NullTime `db:"data_cutoff"`
}

func (r syncRunRow) toModel() model.SyncRun {
	return model.SyncRun{
		ID:           r.ID,
		StartedAt:    r.StartedAt.UTC(),
		FinishedAt:   timePtr(r.FinishedAt),
		Type:         model.SyncType(r.Type),
		Status:       model.SyncStatus(r.Status),
		Trigger:      model.SyncTrigger(r.Trigger),
		ProjectKey:   r.ProjectKey,
		Processed:    r.Processed,
		Created:      r.Created,
		Updated:      r.Updated,
		Deleted:      r.Deleted,
		Failed:       r.Failed,
		DurationMs:   r.DurationMs,
		ErrorMessage: r.ErrorMessage,
		DataCutoff:   timePtr(r.DataCutoff),
	}
}

// CreateSyncRun opens a new run in Running status. It fails with
// ErrRunActive when another run is already Running, so two processes
// sharing the database never sync at the same time.
func (s *SQLStore) CreateSyncRun(ctx context.Context, run model.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("creating sync run: %w", err)
	}
	defer tx.Rollback()

	// Insert first: on SQLite the write lock is taken before the count,
	// which serializes competing processes.
	if _, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO sync_runs (id, started_at, type, status, trigger_kind, project_key)
		VALUES (?, ?, ?, ?, ?, ?)`),
		run.ID, run.StartedAt.UTC(), string(run.Type), string(model.SyncRunning),
		string(run.Trigger), run.ProjectKey,
	); err != nil {
		return fmt.Errorf("creating sync run: %w", err)
	}

	var running int
	if err := tx.GetContext(ctx, &running, s.q(
		"SELECT COUNT(*) FROM sync_runs WHERE status = ?"), string(model.SyncRunning),
	); err != nil {
		return fmt.Errorf("creating sync run: %w", err)
	}
	if running > 1 {
		return ErrRunActive
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("creating sync run: %w", err)
	}
	return nil
}

// FinishSyncRun finalizes a running run with its terminal status and
// counters. A run that is no longer Running is left untouched and
// reported as not found.
func (s *SQLStore) FinishSyncRun(ctx context.Context, run model.SyncRun) error {
	if run.Status == model.SyncRunning {
		return fmt.Errorf("sync run %s must finish with a terminal status", run.ID)
	}
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE sync_runs SET
			finished_at = ?, type = ?, status = ?,
			processed = ?, created_count = ?, updated_count = ?,
			deleted_count = ?, failed_count = ?,
			duration_ms = ?, error_message = ?, data_cutoff = ?
		WHERE id = ? AND status = ?`),
		nullTime(run.FinishedAt), string(run.Type), string(run.Status),
		run.Processed, run.Created, run.Updated,
		run.Deleted, run.Failed,
		run.DurationMs, run.ErrorMessage, nullTime(run.DataCutoff),
		run.ID, string(model.SyncRunning),
	)
	if err != nil {
		return fmt.Errorf("finishing sync run %s: %w", run.ID, err)
	}
	return requireAffected(result, "running sync run", run.ID)
}

// GetSyncRun retrieves a single run by id.
func (s *SQLStore) GetSyncRun(ctx context.Context, id string) (*model.SyncRun, error) {
	return s.getSyncRun(ctx, "SELECT "+syncRunColumns+" FROM sync_runs WHERE id = ?", id)
}

// LatestSyncRun retrieves the most recently started run.
func (s *SQLStore) LatestSyncRun(ctx context.Context) (*model.SyncRun, error) {
	return s.getSyncRun(ctx,
		"SELECT "+syncRunColumns+" FROM sync_runs ORDER BY started_at DESC LIMIT 1")
}

// LastFullRun retrieves the most recent Completed full run.
func (s *SQLStore) LastFullRun(ctx context.Context) (*model.SyncRun, error) {
	return s.getSyncRun(ctx, `
		SELECT `+syncRunColumns+` FROM sync_runs
		WHERE type = ? AND status = ? AND project_key = ''
		ORDER BY started_at DESC LIMIT 1`,
		string(model.SyncFull), string(model.SyncCompleted))
}

// LatestCutoff returns the data cutoff of the most recent Completed
// unscoped run, or nil when there is none.
func (s *SQLStore) LatestCutoff(ctx context.Context) (*time.Time, error) {
	run, err := s.getSyncRun(ctx, `
		SELECT `+syncRunColumns+` FROM sync_runs
		WHERE status = ? AND project_key = '' AND data_cutoff IS NOT NULL
		ORDER BY started_at DESC LIMIT 1`,
		string(model.SyncCompleted))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return run.DataCutoff, nil
}

func (s *SQLStore) getSyncRun(ctx context.Context, query string, args ...interface{}) (*model.SyncRun, error) {
	var row syncRunRow
	if err := s.get(ctx, &row, query, args...); err != nil {
		return nil, fmt.Errorf("getting sync run: %w", err)
	}
	run := row.toModel()
	return &run, nil
}

// ListSyncRuns retrieves runs matching the filter, newest first.
func (s *SQLStore) ListSyncRuns(ctx context.Context, filter SyncRunFilter) ([]model.SyncRun, error) {
	var conditions []string
	var args []interface{}

	if filter.Since != nil {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := "SELECT " + syncRunColumns + " FROM sync_runs"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var rows []syncRunRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("querying sync runs: %w", err)
	}
	runs := make([]model.SyncRun, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, r.toModel())
	}
	return runs, nil
}

// AbandonRunningSyncRuns marks Running runs started before startedBefore
// as Failed with reason. Younger runs may still belong to a live process
// and are left alone.
func (s *SQLStore) AbandonRunningSyncRuns(ctx context.Context, reason string, startedBefore time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE sync_runs SET status = ?, finished_at = ?, error_message = ?
		WHERE status = ? AND started_at < ?`),
		string(model.SyncFailed), time.Now().UTC(), reason,
		string(model.SyncRunning), startedBefore.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("abandoning running sync runs: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
