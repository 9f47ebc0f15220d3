package model

import "time"

// TaskStatus is the normalized workflow state of a task.
type TaskStatus string

const (
	StatusToDo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
	StatusBlocked    TaskStatus = "blocked"
	StatusOnHold     TaskStatus = "on_hold"
	StatusCancelled  TaskStatus = "cancelled"
)

// Normalized priority constants (lower number = higher priority).
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityMedium   = 3
	PriorityLow      = 4
	PriorityLowest   = 5
)

// Task is the local record of a remote issue.
type Task struct {
	// ID is the internal identifier.
	ID string `json:"id" yaml:"id"`

	// RemoteKey is the issue key in the remote system (e.g. "PROJ-12").
	RemoteKey string `json:"remote_key" yaml:"remote_key"`

	ProjectID string `json:"project_id" yaml:"project_id"`

	// SprintID is nil for unscheduled tasks.
	SprintID *string `json:"sprint_id,omitempty" yaml:"sprint_id,omitempty"`

	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	Status      TaskStatus `json:"status" yaml:"status"`
	IssueType   string     `json:"issue_type" yaml:"issue_type"`

	// ParentKey is the epic or parent issue key, if any.
	ParentKey string `json:"parent_key,omitempty" yaml:"parent_key,omitempty"`

	StoryPoints             *float64 `json:"story_points,omitempty" yaml:"story_points,omitempty"`
	OriginalEstimateSeconds *int64   `json:"original_estimate_seconds,omitempty" yaml:"original_estimate_seconds,omitempty"`

	// AssigneeID references a local User.
	AssigneeID *string `json:"assignee_id,omitempty" yaml:"assignee_id,omitempty"`

	DueDate  *time.Time `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	Priority int        `json:"priority" yaml:"priority"`

	// RemoteCreatedAt and RemoteUpdatedAt are the remote system's
	// timestamps.
	RemoteCreatedAt time.Time `json:"remote_created_at" yaml:"remote_created_at"`
	RemoteUpdatedAt time.Time `json:"remote_updated_at" yaml:"remote_updated_at"`

	// StatusChangedAt moves only when Status transitions.
	StatusChangedAt time.Time `json:"status_changed_at" yaml:"status_changed_at"`

	// LastSyncedAt is when the sync engine last wrote this record.
	LastSyncedAt time.Time `json:"last_synced_at" yaml:"last_synced_at"`
}

// IsCompleted reports whether the task is in a terminal state.
func (t Task) IsCompleted() bool {
	return t.Status == StatusDone || t.Status == StatusCancelled
}
