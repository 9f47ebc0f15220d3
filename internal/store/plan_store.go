package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/pmsync/internal/model"
)

// AddMilestone inserts a new milestone on a project.
func (s *SQLStore) AddMilestone(ctx context.Context, m model.Milestone) error {
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("milestone title must not be empty")
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO milestones (id, project_id, title, due_date, done, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		m.ID, m.ProjectID, m.Title, nullTime(m.DueDate), boolToInt(m.Done), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating milestone: %w", err)
	}
	return nil
}

// SetMilestoneDone marks a milestone done or reopens it.
func (s *SQLStore) SetMilestoneDone(ctx context.Context, id string, done bool) error {
	result, err := s.db.ExecContext(ctx, s.q(
		"UPDATE milestones SET done = ? WHERE id = ?"), boolToInt(done), id)
	if err != nil {
		return fmt.Errorf("updating milestone %s: %w", id, err)
	}
	return requireAffected(result, "milestone", id)
}

// ListMilestones retrieves the milestones of a project ordered by due date.
func (s *SQLStore) ListMilestones(ctx context.Context, projectID string) ([]model.Milestone, error) {
	var milestones []model.Milestone
	err := s.db.SelectContext(ctx, &milestones, s.q(`
		SELECT id, project_id, title, due_date, done, created_at
		FROM milestones WHERE project_id = ?
		ORDER BY due_date IS NULL, due_date, created_at`), projectID)
	if err != nil {
		return nil, fmt.Errorf("querying milestones for project %s: %w", projectID, err)
	}
	return milestones, nil
}

// AddRisk inserts a new open risk on a project.
func (s *SQLStore) AddRisk(ctx context.Context, r model.Risk) error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("risk title must not be empty")
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Severity == "" {
		r.Severity = model.RiskMedium
	}
	r.Open = true
	r.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO risks (id, project_id, title, severity, mitigation, is_open, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.ProjectID, r.Title, r.Severity, r.Mitigation, boolToInt(r.Open), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating risk: %w", err)
	}
	return nil
}

// CloseRisk marks a risk as no longer open.
func (s *SQLStore) CloseRisk(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.q("UPDATE risks SET is_open = 0 WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("closing risk %s: %w", id, err)
	}
	return requireAffected(result, "risk", id)
}

// ListRisks retrieves the risks of a project, open ones first.
func (s *SQLStore) ListRisks(ctx context.Context, projectID string) ([]model.Risk, error) {
	var risks []model.Risk
	err := s.db.SelectContext(ctx, &risks, s.q(`
		SELECT id, project_id, title, severity, mitigation, is_open, created_at
		FROM risks WHERE project_id = ?
		ORDER BY is_open DESC, created_at`), projectID)
	if err != nil {
		return nil, fmt.Errorf("querying risks for project %s: %w", projectID, err)
	}
	return risks, nil
}
