package model

import "time"

// HealthLevel is the classified health of a project.
type HealthLevel string

const (
	HealthUnknown        HealthLevel = "unknown"
	HealthOnTrack        HealthLevel = "on_track"
	HealthNeedsAttention HealthLevel = "needs_attention"
	HealthCritical       HealthLevel = "critical"
)

// Confidence describes how much signal the health verdict is based on.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Health is the derived verdict written by the sync engine after every
// metrics refresh.
type Health struct {
	Level       HealthLevel `json:"level" yaml:"level"`
	Reason      string      `json:"reason" yaml:"reason"`
	Score       float64     `json:"score" yaml:"score"`
	Confidence  Confidence  `json:"confidence" yaml:"confidence"`
	EvaluatedAt *time.Time  `json:"evaluated_at,omitempty" yaml:"evaluated_at,omitempty"`
}

// Progress is a snapshot of the progress metrics of a project. It is both
// what the remote reports and what the risk scorer consumes.
type Progress struct {
	TotalTasks           int     `json:"total_tasks" yaml:"total_tasks"`
	CompletedTasks       int     `json:"completed_tasks" yaml:"completed_tasks"`
	TotalStoryPoints     float64 `json:"total_story_points" yaml:"total_story_points"`
	CompletedStoryPoints float64 `json:"completed_story_points" yaml:"completed_story_points"`
	ActiveBlockers       int     `json:"active_blockers" yaml:"active_blockers"`
	RecentUpdates        int     `json:"recent_updates" yaml:"recent_updates"`
}

// Overall project status values chosen by a PM.
const (
	PlanStatusNotSet   = ""
	PlanStatusPlanned  = "planned"
	PlanStatusActive   = "active"
	PlanStatusOnHold   = "on_hold"
	PlanStatusDone     = "done"
	PlanStatusCanceled = "canceled"
)

// Plan groups the PM-curated strategic fields of a project. The sync
// engine never writes any of them.
type Plan struct {
	OverallStatus    string     `json:"overall_status" yaml:"overall_status"`
	ExecutiveSummary string     `json:"executive_summary" yaml:"executive_summary"`
	Owner            string     `json:"owner" yaml:"owner"`
	StartDate        *time.Time `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	TargetDate       *time.Time `json:"target_date,omitempty" yaml:"target_date,omitempty"`
}

// Project is the local record of a remote project.
type Project struct {
	// ID is the internal identifier.
	ID string `json:"id" yaml:"id"`

	// RemoteKey is the project key in the remote system (e.g. "PROJ").
	// It is the natural key used for matching.
	RemoteKey string `json:"remote_key" yaml:"remote_key"`

	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	LeadName    string `json:"lead_name" yaml:"lead_name"`

	Health   Health   `json:"health" yaml:"health"`
	Progress Progress `json:"progress" yaml:"progress"`
	Plan     Plan     `json:"plan" yaml:"plan"`

	// Archived is toggled by a PM; sync never deletes or archives.
	Archived bool `json:"archived" yaml:"archived"`

	LastSyncedAt *time.Time `json:"last_synced_at,omitempty" yaml:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" yaml:"updated_at"`
}

// Milestone is a PM-managed checkpoint on a project.
type Milestone struct {
	ID        string     `json:"id" db:"id" yaml:"id"`
	ProjectID string     `json:"project_id" db:"project_id" yaml:"project_id"`
	Title     string     `json:"title" db:"title" yaml:"title"`
	DueDate   *time.Time `json:"due_date,omitempty" db:"due_date" yaml:"due_date,omitempty"`
	Done      bool       `json:"done" db:"done" yaml:"done"`
	CreatedAt time.Time  `json:"created_at" db:"created_at" yaml:"created_at"`
}

// Risk severities.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Risk is a PM-tracked delivery risk on a project.
type Risk struct {
	ID         string    `json:"id" db:"id" yaml:"id"`
	ProjectID  string    `json:"project_id" db:"project_id" yaml:"project_id"`
	Title      string    `json:"title" db:"title" yaml:"title"`
	Severity   string    `json:"severity" db:"severity" yaml:"severity"`
	Mitigation string    `json:"mitigation" db:"mitigation" yaml:"mitigation"`
	Open       bool      `json:"open" db:"is_open" yaml:"open"`
	CreatedAt  time.Time `json:"created_at" db:"created_at" yaml:"created_at"`
}
