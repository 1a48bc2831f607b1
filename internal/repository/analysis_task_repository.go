package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jengzang/legs-backend-go/internal/models"
)

// AnalysisTaskRepository handles database operations for analysis tasks
type AnalysisTaskRepository struct {
	db *sql.DB
}

// NewAnalysisTaskRepository creates a new analysis task repository
func NewAnalysisTaskRepository(db *sql.DB) *AnalysisTaskRepository {
	return &AnalysisTaskRepository{db: db}
}

// Create creates a new pending analysis task
func (r *AnalysisTaskRepository) Create(ctx context.Context, task *models.AnalysisTask) error {
	now := time.Now().UTC()
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO analysis_tasks (
			skill_name, task_type, cutoff, status, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, task.SkillName, task.TaskType, task.Cutoff, task.Status, task.CreatedBy, now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to create analysis task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	task.ID = id
	task.CreatedAt = fromUnix(now.Unix())
	return nil
}

// GetByID retrieves an analysis task by ID
func (r *AnalysisTaskRepository) GetByID(ctx context.Context, id int64) (*models.AnalysisTask, error) {
	query := `
		SELECT id, skill_name, task_type, cutoff, status, progress_percent,
		       total_units, processed_units, failed_units, result_summary, error_message,
		       created_by, created_at, started_at, completed_at
		FROM analysis_tasks
		WHERE id = ?
	`

	task := &models.AnalysisTask{}
	var summary, errMsg, createdBy sql.NullString
	var createdAt int64
	var startedAt, completedAt sql.NullInt64

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&task.ID, &task.SkillName, &task.TaskType, &task.Cutoff, &task.Status, &task.ProgressPercent,
		&task.TotalUnits, &task.ProcessedUnits, &task.FailedUnits, &summary, &errMsg,
		&createdBy, &createdAt, &startedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("analysis task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis task: %w", err)
	}

	task.ResultSummary = summary.String
	task.ErrorMessage = errMsg.String
	task.CreatedBy = createdBy.String
	task.CreatedAt = fromUnix(createdAt)
	if startedAt.Valid {
		t := fromUnix(startedAt.Int64)
		task.StartedAt = &t
	}
	if completedAt.Valid {
		t := fromUnix(completedAt.Int64)
		task.CompletedAt = &t
	}

	return task, nil
}
