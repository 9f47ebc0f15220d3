package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nhle/pmsync/internal/model"
)

const boardColumns = `id, remote_id, project_id, name, type, updated_at`

type boardRow struct {
	ID        string    `db:"id"`
	RemoteID  int64     `db:"remote_id"`
	ProjectID string    `db:"project_id"`
	Name      string    `db:"name"`
	Type      string    `db:"type"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r boardRow) toModel() model.Board {
	return model.Board{
		ID:        r.ID,
		RemoteID:  r.RemoteID,
		ProjectID: r.ProjectID,
		Name:      r.Name,
		Type:      r.Type,
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

// GetBoardByRemoteID retrieves a board by its remote id.
func (s *SQLStore) GetBoardByRemoteID(ctx context.Context, remoteID int64) (*model.Board, error) {
	var row boardRow
	if err := s.get(ctx, &row,
		"SELECT "+boardColumns+" FROM boards WHERE remote_id = ?", remoteID); err != nil {
		return nil, fmt.Errorf("getting board %d: %w", remoteID, err)
	}
	board := row.toModel()
	return &board, nil
}

// ListBoards retrieves all boards.
func (s *SQLStore) ListBoards(ctx context.Context) ([]model.Board, error) {
	var rows []boardRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT "+boardColumns+" FROM boards ORDER BY remote_id"); err != nil {
		return nil, fmt.Errorf("querying boards: %w", err)
	}
	boards := make([]model.Board, 0, len(rows))
	for _, r := range rows {
		boards = append(boards, r.toModel())
	}
	return boards, nil
}

// SaveBoard inserts or updates a board by id.
func (s *SQLStore) SaveBoard(ctx context.Context, b model.Board) error {
	b.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO boards (`+boardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			remote_id = excluded.remote_id,
			project_id = excluded.project_id,
			name = excluded.name,
			type = excluded.type,
			updated_at = excluded.updated_at`),
		b.ID, b.RemoteID, b.ProjectID, b.Name, b.Type, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving board %d: %w", b.RemoteID, err)
	}
	return nil
}

const sprintColumns = `id, remote_id, board_id, name, state, start_date, end_date, complete_date, goal, updated_at`

type sprintRow struct {
	ID           string       `db:"id"`
	RemoteID     int64        `db:"remote_id"`
	BoardID      string       `db:"board_id"`
	Name         string       `db:"name"`
	State        string       `db:"state"`
	StartDate    sql.NullTime `db:"start_date"`
	EndDate      sql.NullTime `db:"end_date"`
	CompleteDate sql.NullTime `db:"complete_date"`
	Goal         string       `db:"goal"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

func (r sprintRow) toModel() model.Sprint {
	return model.Sprint{
		ID:           r.ID,
		RemoteID:     r.RemoteID,
		BoardID:      r.BoardID,
		Name:         r.Name,
		State:        r.State,
		StartDate:    timePtr(r.StartDate),
		EndDate:      timePtr(r.EndDate),
		CompleteDate: timePtr(r.CompleteDate),
		Goal:         r.Goal,
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

// GetSprintByRemoteID retrieves a sprint by its remote id.
func (s *SQLStore) GetSprintByRemoteID(ctx context.Context, remoteID int64) (*model.Sprint, error) {
	var row sprintRow
	if err := s.get(ctx, &row,
		"SELECT "+sprintColumns+" FROM sprints WHERE remote_id = ?", remoteID); err != nil {
		return nil, fmt.Errorf("getting sprint %d: %w", remoteID, err)
	}
	sprint := row.toModel()
	return &sprint, nil
}

// ListSprints retrieves the sprints of a board ordered by start date.
func (s *SQLStore) ListSprints(ctx context.Context, boardID string) ([]model.Sprint, error) {
	var rows []sprintRow
	if err := s.db.SelectContext(ctx, &rows, s.q(
		"SELECT "+sprintColumns+" FROM sprints WHERE board_id = ? ORDER BY start_date, remote_id"),
		boardID); err != nil {
		return nil, fmt.Errorf("querying sprints for board %s: %w", boardID, err)
	}
	sprints := make([]model.Sprint, 0, len(rows))
	for _, r := range rows {
		sprints = append(sprints, r.toModel())
	}
	return sprints, nil
}

// SaveSprint inserts or updates a sprint by id.
func (s *SQLStore) SaveSprint(ctx context.Context, sp model.Sprint) error {
	sp.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO sprints (`+sprintColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			remote_id = excluded.remote_id,
			board_id = excluded.board_id,
			name = excluded.name,
			state = excluded.state,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			complete_date = excluded.complete_date,
			goal = excluded.goal,
			updated_at = excluded.updated_at`),
		sp.ID, sp.RemoteID, sp.BoardID, sp.Name, sp.State,
		nullTime(sp.StartDate), nullTime(sp.EndDate), nullTime(sp.CompleteDate),
		sp.Goal, sp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving sprint %d: %w", sp.RemoteID, err)
	}
	return nil
}
