package domain

import (
	"time"
)

// TaskStatus represents the lifecycle state of a collection task.
type TaskStatus string

const (
	// TaskPending means the task is registered but not yet running.
	TaskPending TaskStatus = "pending"
	// TaskRunning means the task is actively collecting.
	TaskRunning TaskStatus = "running"
	// TaskCompleted means the task finished with at least partial success.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed means every region failed before any record was stored.
	TaskFailed TaskStatus = "failed"
	// TaskCancelled means cancellation was observed before completion.
	TaskCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// TaskKind discriminates what a task does.
type TaskKind string

const (
	// TaskCollect is a page-by-page collection run over regions.
	TaskCollect TaskKind = "collect"
	// TaskDetails enriches stored cases with detail page data.
	TaskDetails TaskKind = "details"
)

// TaskError records one failure encountered during a run.
type TaskError struct {
	Region  string    `json:"region,omitempty"`
	Page    int       `json:"page,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Task is the progress snapshot of one background run.
type Task struct {
	ID      string     `json:"task_id"`
	Kind    TaskKind   `json:"kind"`
	Status  TaskStatus `json:"status"`
	Regions []string   `json:"regions"`

	// ProcessedCases counts records handled so far. It never regresses.
	ProcessedCases int `json:"processed_cases"`
	// TotalCases is the advisory source-reported total, 0 when unknown.
	TotalCases int `json:"total_cases"`
	// NewCases and UpdatedCases split upserts by outcome.
	NewCases     int `json:"new_cases"`
	UpdatedCases int `json:"updated_cases"`

	// FailedRegions lists regions abandoned after a page failure.
	FailedRegions []string `json:"failed_regions,omitempty"`

	Message string      `json:"message,omitempty"`
	Errors  []TaskError `json:"errors,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// EstimatedRemaining is the advisory time-to-completion in seconds.
	// Nil until enough progress exists to estimate.
	EstimatedRemaining *float64 `json:"estimated_time_remaining,omitempty"`
}

// ProgressPercentage returns completion as 0-100, or 0 while the total is
// unknown.
func (t *Task) ProgressPercentage() float64 {
	if t.TotalCases <= 0 {
		return 0
	}
	pct := float64(t.ProcessedCases) / float64(t.TotalCases) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// RegionResult summarizes one region's outcome within a run.
type RegionResult struct {
	Region  string `json:"region"`
	Pages   int    `json:"pages"`
	Cases   int    `json:"cases"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Failed  bool   `json:"failed"`
	Error   string `json:"error,omitempty"`
}
