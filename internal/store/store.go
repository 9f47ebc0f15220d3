package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/pmsync/internal/model"
)

// ErrNotFound is returned by lookups when no record matches.
var ErrNotFound = errors.New("not found")

// ErrRunActive is returned by CreateSyncRun while another run is Running.
var ErrRunActive = errors.New("another sync run is running")

// SyncRunFilter controls filtering and pagination for sync run queries.
type SyncRunFilter struct {
	Since  *time.Time        // only runs started at or after Since
	Status *model.SyncStatus // only runs in this status
	Limit  int
}

// Store defines the persistence interface of the synchronized entities,
// the PM-curated project data, and the sync run audit log.
//
// Sync writes go through the Save* methods, which only touch
// remote-sourced, progress, and health columns. PM-facing methods only
// touch plan columns and child collections.
type Store interface {
	// === Users ===

	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByAccountID(ctx context.Context, accountID string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	SaveUser(ctx context.Context, user model.User) error

	// === Projects ===

	GetProjectByID(ctx context.Context, id string) (*model.Project, error)
	GetProjectByKey(ctx context.Context, key string) (*model.Project, error)
	ListProjects(ctx context.Context, includeArchived bool) ([]model.Project, error)
	SaveSyncedProject(ctx context.Context, project model.Project) error

	// === PM-facing project data ===

	UpdateProjectPlan(ctx context.Context, projectID string, plan model.Plan) error
	SetProjectArchived(ctx context.Context, projectID string, archived bool) error
	AddMilestone(ctx context.Context, milestone model.Milestone) error
	SetMilestoneDone(ctx context.Context, id string, done bool) error
	ListMilestones(ctx context.Context, projectID string) ([]model.Milestone, error)
	AddRisk(ctx context.Context, risk model.Risk) error
	CloseRisk(ctx context.Context, id string) error
	ListRisks(ctx context.Context, projectID string) ([]model.Risk, error)

	// === Boards & sprints ===

	GetBoardByRemoteID(ctx context.Context, remoteID int64) (*model.Board, error)
	ListBoards(ctx context.Context) ([]model.Board, error)
	SaveBoard(ctx context.Context, board model.Board) error
	GetSprintByRemoteID(ctx context.Context, remoteID int64) (*model.Sprint, error)
	ListSprints(ctx context.Context, boardID string) ([]model.Sprint, error)
	SaveSprint(ctx context.Context, sprint model.Sprint) error

	// === Tasks ===

	GetTaskByKey(ctx context.Context, key string) (*model.Task, error)
	ListTasksByProject(ctx context.Context, projectID string) ([]model.Task, error)
	SaveTask(ctx context.Context, task model.Task) error
	DeleteTask(ctx context.Context, id string) error

	// === Sync runs ===

	CreateSyncRun(ctx context.Context, run model.SyncRun) error
	FinishSyncRun(ctx context.Context, run model.SyncRun) error
	GetSyncRun(ctx context.Context, id string) (*model.SyncRun, error)
	LatestSyncRun(ctx context.Context) (*model.SyncRun, error)
	LatestCutoff(ctx context.Context) (*time.Time, error)
	LastFullRun(ctx context.Context) (*model.SyncRun, error)
	ListSyncRuns(ctx context.Context, filter SyncRunFilter) ([]model.SyncRun, error)
	AbandonRunningSyncRuns(ctx context.Context, reason string, startedBefore time.Time) (int, error)

	Close() error
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
