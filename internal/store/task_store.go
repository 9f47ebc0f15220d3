package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/pmsync/internal/model"
)

const taskColumns = `id, remote_key, project_id, sprint_id, title, description, status,
	issue_type, parent_key, story_points, original_estimate_seconds, assignee_id,
	due_date, priority, remote_created_at, remote_updated_at, status_changed_at, last_synced_at`

type taskRow struct {
	ID                      string          `db:"id"`
	RemoteKey               string          `db:"remote_key"`
	ProjectID               string          `db:"project_id"`
	SprintID                sql.NullString  `db:"sprint_id"`
	Title                   string          `db:"title"`
	Description             string          `db:"description"`
	Status                  string          `db:"status"`
	IssueType               string          `db:"issue_type"`
	ParentKey               string          `db:"parent_key"`
	StoryPoints             sql.NullFloat64 `db:"story_points"`
	OriginalEstimateSeconds sql.NullInt64   `db:"original_estimate_seconds"`
	AssigneeID              sql.NullString  `db:"assignee_id"`
	DueDate                 sql.NullTime    `db:"due_date"`
	Priority                int             `db:"priority"`
	RemoteCreatedAt         time.Time       `db:"remote_created_at"`
	RemoteUpdatedAt         time.Time       `db:"remote_updated_at"`
	StatusChangedAt         time.Time       `db:"status_changed_at"`
	LastSyncedAt            time.Time       `db:"last_synced_at"`
}

func (r taskRow) toModel() model.Task {
	return model.Task{
		ID:                      r.ID,
		RemoteKey:               r.RemoteKey,
		ProjectID:               r.ProjectID,
		SprintID:                stringPtr(r.SprintID),
		Title:                   r.Title,
		Description:             r.Description,
		Status:                  model.TaskStatus(r.Status),
		IssueType:               r.IssueType,
		ParentKey:               r.ParentKey,
		StoryPoints:             floatPtr(r.StoryPoints),
		OriginalEstimateSeconds: intPtr(r.OriginalEstimateSeconds),
		AssigneeID:              stringPtr(r.AssigneeID),
		DueDate:                 timePtr(r.DueDate),
		Priority:                r.Priority,
		RemoteCreatedAt:         r.RemoteCreatedAt.UTC(),
		RemoteUpdatedAt:         r.RemoteUpdatedAt.UTC(),
		StatusChangedAt:         r.StatusChangedAt.UTC(),
		LastSyncedAt:            r.LastSyncedAt.UTC(),
	}
}

// GetTaskByKey retrieves a single task by its remote key.
func (s *SQLStore) GetTaskByKey(ctx context.Context, key string) (*model.Task, error) {
	var row taskRow
	if err := s.get(ctx, &row,
		"SELECT "+taskColumns+" FROM tasks WHERE remote_key = ?", key); err != nil {
		return nil, fmt.Errorf("getting task %s: %w", key, err)
	}
	task := row.toModel()
	return &task, nil
}

// ListTasksByProject retrieves all tasks of a project ordered by key.
func (s *SQLStore) ListTasksByProject(ctx context.Context, projectID string) ([]model.Task, error) {
	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, s.q(
		"SELECT "+taskColumns+" FROM tasks WHERE project_id = ? ORDER BY remote_key"),
		projectID); err != nil {
		return nil, fmt.Errorf("querying tasks for project %s: %w", projectID, err)
	}
	tasks := make([]model.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.toModel())
	}
	return tasks, nil
}

// SaveTask inserts or updates a task by id.
func (s *SQLStore) SaveTask(ctx context.Context, t model.Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("task title must not be empty")
	}
	if t.Priority == 0 {
		t.Priority = model.PriorityMedium
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			remote_key = excluded.remote_key,
			project_id = excluded.project_id,
			sprint_id = excluded.sprint_id,
			title = excluded.title,
			description = excluded.description,
			status = excluded.status,
			issue_type = excluded.issue_type,
			parent_key = excluded.parent_key,
			story_points = excluded.story_points,
			original_estimate_seconds = excluded.original_estimate_seconds,
			assignee_id = excluded.assignee_id,
			due_date = excluded.due_date,
			priority = excluded.priority,
			remote_created_at = excluded.remote_created_at,
			remote_updated_at = excluded.remote_updated_at,
			status_changed_at = excluded.status_changed_at,
			last_synced_at = excluded.last_synced_at`),
		t.ID, t.RemoteKey, t.ProjectID, nullString(t.SprintID),
		t.Title, t.Description, string(t.Status),
		t.IssueType, t.ParentKey, nullFloat(t.StoryPoints),
		nullInt(t.OriginalEstimateSeconds), nullString(t.AssigneeID),
		nullTime(t.DueDate), t.Priority,
		t.RemoteCreatedAt.UTC(), t.RemoteUpdatedAt.UTC(),
		t.StatusChangedAt.UTC(), t.LastSyncedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving task %s: %w", t.RemoteKey, err)
	}
	return nil
}

// DeleteTask removes a task by id.
func (s *SQLStore) DeleteTask(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.q("DELETE FROM tasks WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	return requireAffected(result, "task", id)
}
