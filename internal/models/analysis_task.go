package models

import "time"

// AnalysisTask records one run of a named pipeline entry point
type AnalysisTask struct {
	ID int64 `json:"id" db:"id"`

	// Task identification
	SkillName string `json:"skill_name" db:"skill_name"` // generate_legs, filter_device_data, cluster_legs
	TaskType  string `json:"task_type" db:"task_type"`   // INCREMENTAL, REPAIR
	Cutoff    int64  `json:"cutoff" db:"cutoff"`         // Unix timestamp

	// Status
	Status          string  `json:"status" db:"status"` // pending, running, completed, failed
	ProgressPercent float64 `json:"progress_percent" db:"progress_percent"`

	// Execution info
	TotalUnits     int `json:"total_units" db:"total_units"` // devices or users
	ProcessedUnits int `json:"processed_units" db:"processed_units"`
	FailedUnits    int `json:"failed_units" db:"failed_units"`

	// Results
	ResultSummary string `json:"result_summary,omitempty" db:"result_summary"` // JSON object with summary statistics
	ErrorMessage  string `json:"error_message,omitempty" db:"error_message"`

	// Metadata
	CreatedBy   string     `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// TaskType constants
const (
	TaskTypeIncremental = "INCREMENTAL"
	TaskTypeRepair      = "REPAIR"
)

// TaskStatus constants
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)
