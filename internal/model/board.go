package model

import "time"

// Board types as reported by the agile API.
const (
	BoardTypeScrum  = "scrum"
	BoardTypeKanban = "kanban"
	BoardTypeSimple = "simple"
)

// Board is the local record of a remote agile board.
type Board struct {
	ID        string `json:"id" yaml:"id"`
	RemoteID  int64  `json:"remote_id" yaml:"remote_id"`
	ProjectID string `json:"project_id" yaml:"project_id"`
	Name      string `json:"name" yaml:"name"`
	Type      string `json:"type" yaml:"type"`

	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// IsIterative reports whether the board plans work in sprints.
func (b Board) IsIterative() bool {
	return b.Type == BoardTypeScrum
}

// Sprint states.
const (
	SprintActive = "active"
	SprintFuture = "future"
	SprintClosed = "closed"
)

// Sprint is the local record of a remote sprint.
type Sprint struct {
	ID           string     `json:"id" yaml:"id"`
	RemoteID     int64      `json:"remote_id" yaml:"remote_id"`
	BoardID      string     `json:"board_id" yaml:"board_id"`
	Name         string     `json:"name" yaml:"name"`
	State        string     `json:"state" yaml:"state"`
	StartDate    *time.Time `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	CompleteDate *time.Time `json:"complete_date,omitempty" yaml:"complete_date,omitempty"`
	Goal         string     `json:"goal" yaml:"goal"`

	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}
