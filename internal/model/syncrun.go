package model

import "time"

// SyncType distinguishes full listings from incremental windows.
type SyncType string

const (
	SyncFull        SyncType = "full"
	SyncIncremental SyncType = "incremental"
)

// SyncStatus is the lifecycle state of a sync run.
type SyncStatus string

const (
	SyncRunning   SyncStatus = "running"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
	SyncPartial   SyncStatus = "partial"
)

// SyncTrigger records what started a run.
type SyncTrigger string

const (
	TriggerScheduled SyncTrigger = "scheduled"
	TriggerManual    SyncTrigger = "manual"
)

// SyncRun is the audit record of one orchestrator run. It is opened with
// status Running and finalized exactly once.
type SyncRun struct {
	ID         string      `json:"id" yaml:"id"`
	StartedAt  time.Time   `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Type       SyncType    `json:"type" yaml:"type"`
	Status     SyncStatus  `json:"status" yaml:"status"`
	Trigger    SyncTrigger `json:"trigger" yaml:"trigger"`

	// ProjectKey scopes the run to a single remote project when set.
	ProjectKey string `json:"project_key,omitempty" yaml:"project_key,omitempty"`

	Processed int `json:"processed" yaml:"processed"`
	Created   int `json:"created" yaml:"created"`
	Updated   int `json:"updated" yaml:"updated"`
	Deleted   int `json:"deleted" yaml:"deleted"`
	Failed    int `json:"failed" yaml:"failed"`

	DurationMs   int64  `json:"duration_ms" yaml:"duration_ms"`
	ErrorMessage string `json:"error_message,omitempty" yaml:"error_message,omitempty"`

	// DataCutoff is the lower bound of the next incremental fetch window.
	DataCutoff *time.Time `json:"data_cutoff,omitempty" yaml:"data_cutoff,omitempty"`
}

// Duration returns the recorded run duration.
func (r SyncRun) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// SyncRunResult is what callers of RunSync receive.
type SyncRunResult struct {
	RunID    string        `json:"run_id" yaml:"run_id"`
	Type     SyncType      `json:"type" yaml:"type"`
	Status   SyncStatus    `json:"status" yaml:"status"`
	Trigger  SyncTrigger   `json:"trigger" yaml:"trigger"`
	Created  int           `json:"created" yaml:"created"`
	Updated  int           `json:"updated" yaml:"updated"`
	Deleted  int           `json:"deleted" yaml:"deleted"`
	Failed   int           `json:"failed" yaml:"failed"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result converts a finalized run into its caller-facing summary.
func (r SyncRun) Result() SyncRunResult {
	return SyncRunResult{
		RunID:    r.ID,
		Type:     r.Type,
		Status:   r.Status,
		Trigger:  r.Trigger,
		Created:  r.Created,
		Updated:  r.Updated,
		Deleted:  r.Deleted,
		Failed:   r.Failed,
		Duration: r.Duration(),
		Error:    r.ErrorMessage,
	}
}
