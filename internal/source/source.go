package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/pmsync/internal/model"
)

// AuthError indicates that authentication has failed or expired.
// It is returned by remote clients when a 401 response is received.
type AuthError struct {
	BaseURL string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.BaseURL, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// RemoteUser is a user account as listed by the remote system.
type RemoteUser struct {
	AccountID   string
	Email       string
	DisplayName string
	Active      bool
}

// RemoteProject is a project as listed by the remote system. Key is the
// natural key.
type RemoteProject struct {
	Key         string
	Name        string
	Description string
	LeadName    string
}

// RemoteBoard is an agile board. ProjectKey names the owning project.
type RemoteBoard struct {
	ID         int64
	Name       string
	Type       string
	ProjectKey string
}

// RemoteSprint is a sprint of an iterative board. A sprint can show up
// on every board whose filter matches its issues; OriginBoardID is the
// board it was created on, or zero when unknown.
type RemoteSprint struct {
	ID            int64
	BoardID       int64
	OriginBoardID int64
	Name          string
	State         string
	StartDate     *time.Time
	EndDate       *time.Time
	CompleteDate  *time.Time
	Goal          string
}

// RemoteTask is an issue as listed by the remote system. Key is the
// natural key.
type RemoteTask struct {
	Key        string
	ProjectKey string
	Title      string

	Description string
	Status      model.TaskStatus
	IssueType   string
	ParentKey   string

	StoryPoints             *float64
	OriginalEstimateSeconds *int64

	// AssigneeAccountID is empty for unassigned tasks.
	AssigneeAccountID   string
	AssigneeDisplayName string

	// SprintID is the remote id of the current sprint, or 0.
	SprintID int64

	DueDate   *time.Time
	Priority  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaskQuery narrows a task listing.
type TaskQuery struct {
	// UpdatedSince limits the listing to tasks updated at or after this
	// instant. The zero value requests the complete listing.
	UpdatedSince time.Time
}

// IsComplete reports whether the query asks for an exhaustive listing.
func (q TaskQuery) IsComplete() bool {
	return q.UpdatedSince.IsZero()
}

// Remote defines the fetch operations the sync engine consumes. Every
// call is cancellable through ctx and returns a single error on failure;
// retry policy, if any, is the implementation's business.
type Remote interface {
	// ListUsers returns all user accounts.
	ListUsers(ctx context.Context) ([]RemoteUser, error)

	// ListProjects returns all visible projects.
	ListProjects(ctx context.Context) ([]RemoteProject, error)

	// GetProjectMetrics returns the current progress snapshot of a project.
	GetProjectMetrics(ctx context.Context, projectKey string) (model.Progress, error)

	// ListBoards returns all agile boards.
	ListBoards(ctx context.Context) ([]RemoteBoard, error)

	// ListSprintsForBoard returns the sprints of an iterative board.
	ListSprintsForBoard(ctx context.Context, boardID int64) ([]RemoteSprint, error)

	// ListTasksForProject returns the tasks of a project.
	ListTasksForProject(ctx context.Context, projectKey string, q TaskQuery) ([]RemoteTask, error)
}
