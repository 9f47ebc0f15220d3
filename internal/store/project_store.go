package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/pmsync/internal/model"
)

const projectColumns = `id, remote_key, name, description, lead_name,
	health_level, health_reason, health_score, health_confidence, health_evaluated_at,
	total_tasks, completed_tasks, total_story_points, completed_story_points,
	active_blockers, recent_updates,
	plan_overall_status, plan_executive_summary, plan_owner, plan_start_date, plan_target_date,
	archived, last_synced_at, created_at, updated_at`

type projectRow struct {
	ID          string `db:"id"`
	RemoteKey   string `db:"remote_key"`
	Name        string `db:"name"`
	Description string `db:"description"`
	LeadName    string `db:"lead_name"`

	HealthLevel       string       `db:"health_level"`
	HealthReason      string       `db:"health_reason"`
	HealthScore       float64      `db:"health_score"`
	HealthConfidence  string       `db:"health_confidence"`
	HealthEvaluatedAt sql.NullTime `db:"health_evaluated_at"`

	TotalTasks           int     `db:"total_tasks"`
	CompletedTasks       int     `db:"completed_tasks"`
	TotalStoryPoints     float64 `db:"total_story_points"`
	CompletedStoryPoints float64 `db:"completed_story_points"`
	ActiveBlockers       int     `db:"active_blockers"`
	RecentUpdates        int     `db:"recent_updates"`

	PlanOverallStatus    string       `db:"plan_overall_status"`
	PlanExecutiveSummary string       `db:"plan_executive_summary"`
	PlanOwner            string       `db:"plan_owner"`
	PlanStartDate        sql.NullTime `db:"plan_start_date"`
	PlanTargetDate       sql.NullTime `db:"plan_target_date"`

	Archived     bool         `db:"archived"`
	LastSyncedAt sql.NullTime `db:"last_synced_at"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

func (r projectRow) toModel() model.Project {
	return model.Project{
		ID:          r.ID,
		RemoteKey:   r.RemoteKey,
		Name:        r.Name,
		Description: r.Description,
		LeadName:    r.LeadName,
		Health: model.Health{
			Level:       model.HealthLevel(r.HealthLevel),
			Reason:      r.HealthReason,
			Score:       r.HealthScore,
			Confidence:  model.Confidence(r.HealthConfidence),
			EvaluatedAt: timePtr(r.HealthEvaluatedAt),
		},
		Progress: model.Progress{
			TotalTasks:           r.TotalTasks,
			CompletedTasks:       r.CompletedTasks,
			TotalStoryPoints:     r.TotalStoryPoints,
			CompletedStoryPoints: r.CompletedStoryPoints,
			ActiveBlockers:       r.ActiveBlockers,
			RecentUpdates:        r.RecentUpdates,
		},
		Plan: model.Plan{
			OverallStatus:    r.PlanOverallStatus,
			ExecutiveSummary: r.PlanExecutiveSummary,
			Owner:            r.PlanOwner,
			StartDate:        timePtr(r.PlanStartDate),
			TargetDate:       timePtr(r.PlanTargetDate),
		},
		Archived:     r.Archived,
		LastSyncedAt: timePtr(r.LastSyncedAt),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

// GetProjectByID retrieves a single project by ID.
func (s *SQLStore) GetProjectByID(ctx context.Context, id string) (*model.Project, error) {
	return s.getProject(ctx, "id = ?", id)
}

// GetProjectByKey retrieves a single project by its remote key.
func (s *SQLStore) GetProjectByKey(ctx context.Context, key string) (*model.Project, error) {
	return s.getProject(ctx, "remote_key = ?", key)
}

func (s *SQLStore) getProject(ctx context.Context, where string, arg interface{}) (*model.Project, error) {
	var row projectRow
	if err := s.get(ctx, &row, "SELECT "+projectColumns+" FROM projects WHERE "+where, arg); err != nil {
		return nil, fmt.Errorf("getting project %v: %w", arg, err)
	}
	project := row.toModel()
	return &project, nil
}

// ListProjects retrieves all projects, optionally including archived ones.
func (s *SQLStore) ListProjects(ctx context.Context, includeArchived bool) ([]model.Project, error) {
	query := "SELECT " + projectColumns + " FROM projects"
	if !includeArchived {
		query += " WHERE archived = 0"
	}
	query += " ORDER BY remote_key"

	var rows []projectRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	projects := make([]model.Project, 0, len(rows))
	for _, r := range rows {
		projects = append(projects, r.toModel())
	}
	return projects, nil
}

// SaveSyncedProject inserts a project or updates the remote-sourced,
// progress, and health columns of an existing one. Plan columns and the
// archived flag are only written on insert, where they take their zero
// values.
func (s *SQLStore) SaveSyncedProject(ctx context.Context, p model.Project) error {
	if strings.TrimSpace(p.RemoteKey) == "" {
		return fmt.Errorf("project key must not be empty")
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO projects (
			id, remote_key, name, description, lead_name,
			health_level, health_reason, health_score, health_confidence, health_evaluated_at,
			total_tasks, completed_tasks, total_story_points, completed_story_points,
			active_blockers, recent_updates,
			last_synced_at, created_at, updated_at
		) VALUES (
			?, ?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?,
			?, ?, ?
		)
		ON CONFLICT (id) DO UPDATE SET
			remote_key = excluded.remote_key,
			name = excluded.name,
			description = excluded.description,
			lead_name = excluded.lead_name,
			health_level = excluded.health_level,
			health_reason = excluded.health_reason,
			health_score = excluded.health_score,
			health_confidence = excluded.health_confidence,
			health_evaluated_at = excluded.health_evaluated_at,
			total_tasks = excluded.total_tasks,
			completed_tasks = excluded.completed_tasks,
			total_story_points = excluded.total_story_points,
			completed_story_points = excluded.completed_story_points,
			active_blockers = excluded.active_blockers,
			recent_updates = excluded.recent_updates,
			last_synced_at = excluded.last_synced_at,
			updated_at = excluded.updated_at`),
		p.ID, p.RemoteKey, p.Name, p.Description, p.LeadName,
		string(p.Health.Level), p.Health.Reason, p.Health.Score,
		string(p.Health.Confidence), nullTime(p.Health.EvaluatedAt),
		p.Progress.TotalTasks, p.Progress.CompletedTasks,
		p.Progress.TotalStoryPoints, p.Progress.CompletedStoryPoints,
		p.Progress.ActiveBlockers, p.Progress.RecentUpdates,
		nullTime(p.LastSyncedAt), p.CreatedAt.UTC(), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving project %s: %w", p.RemoteKey, err)
	}
	return nil
}

// UpdateProjectPlan replaces the PM-curated plan of a project.
func (s *SQLStore) UpdateProjectPlan(ctx context.Context, projectID string, plan model.Plan) error {
	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE projects SET
			plan_overall_status = ?, plan_executive_summary = ?, plan_owner = ?,
			plan_start_date = ?, plan_target_date = ?, updated_at = ?
		WHERE id = ?`),
		plan.OverallStatus, plan.ExecutiveSummary, plan.Owner,
		nullTime(plan.StartDate), nullTime(plan.TargetDate), time.Now().UTC(),
		projectID,
	)
	if err != nil {
		return fmt.Errorf("updating plan of project %s: %w", projectID, err)
	}
	return requireAffected(result, "project", projectID)
}

// SetProjectArchived archives or restores a project.
func (s *SQLStore) SetProjectArchived(ctx context.Context, projectID string, archived bool) error {
	result, err := s.db.ExecContext(ctx, s.q(
		"UPDATE projects SET archived = ?, updated_at = ? WHERE id = ?"),
		boolToInt(archived), time.Now().UTC(), projectID,
	)
	if err != nil {
		return fmt.Errorf("archiving project %s: %w", projectID, err)
	}
	return requireAffected(result, "project", projectID)
}

// requireAffected maps an update that matched no row to ErrNotFound.
func requireAffected(result sql.Result, entity, id string) error {
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return nil
}
