package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/persistence"
	"github.com/google/uuid"
)

const executionColumns = `
	id
  , workflow_id
  , workflow_name
  , trigger_type
  , status
  , started_at
  , completed_at
  , triggered_by
  , trigger_data
  , steps
  , error
  , cancel_requested
  , resume_at
  , resume_after`

// ExecutionRepository stores execution history in workflow_executions.
type ExecutionRepository struct {
	db        *sql.DB
	logger    *slog.Logger
	retention int
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger, retention int) *ExecutionRepository {
	return &ExecutionRepository{
		db:        db,
		logger:    logger.With("component", "execution_repository"),
		retention: retention,
	}
}

// Save upserts the execution, then trims finished history beyond retention.
func (r *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	if execution.ID == "" {
		execution.ID = uuid.NewString()
	}

	if err := r.upsert(ctx, r.db, execution); err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return r.evict(ctx)
}

func (r *ExecutionRepository) upsert(ctx context.Context, db execer, execution *models.WorkflowExecution) error {
	var triggerData any

	if execution.TriggerData != nil {
		data, err := json.Marshal(execution.TriggerData)
		if err != nil {
			return fmt.Errorf("failed to marshal trigger data: %w", err)
		}

		triggerData = string(data)
	}

	steps := execution.Steps
	if steps == nil {
		steps = []models.WorkflowExecutionStep{}
	}

	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	query := `
		INSERT INTO workflow_executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			workflow_name = EXCLUDED.workflow_name,
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			trigger_data = EXCLUDED.trigger_data,
			steps = EXCLUDED.steps,
			error = EXCLUDED.error,
			cancel_requested = EXCLUDED.cancel_requested,
			resume_at = EXCLUDED.resume_at,
			resume_after = EXCLUDED.resume_after
	`

	_, err = db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.WorkflowName,
		string(execution.TriggerType),
		string(execution.Status),
		execution.StartedAt,
		execution.CompletedAt,
		execution.TriggeredBy,
		triggerData,
		string(stepsJSON),
		execution.Error,
		execution.CancelRequested,
		execution.ResumeAt,
		execution.ResumeAfter,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

// List returns matching executions, most recently started first.
func (r *ExecutionRepository) List(ctx context.Context, opts persistence.ListExecutionsOptions) ([]*models.WorkflowExecution, error) {
	var (
		where []string
		args  []any
	)

	if opts.WorkflowID != "" {
		args = append(args, opts.WorkflowID)
		where = append(where, fmt.Sprintf("workflow_id = $%d", len(args)))
	}

	if opts.Status != "" {
		args = append(args, string(opts.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + executionColumns + ` FROM workflow_executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY started_at DESC, id DESC"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// Update applies fn to a locked, unfinished execution row.
func (r *ExecutionRepository) Update(
	ctx context.Context,
	id string,
	fn func(*models.WorkflowExecution) error,
) (*models.WorkflowExecution, error) {
	var updated *models.WorkflowExecution

	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE id = $1 FOR UPDATE`

		execution, err := scanExecution(tx.QueryRowContext(ctx, query, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.NewExecutionError("Update", id, persistence.ErrExecutionNotFound)
			}

			return persistence.NewExecutionError("Update", id, err)
		}

		if execution.IsFinished() {
			return persistence.NewExecutionError("Update", id, persistence.ErrExecutionFinished)
		}

		if err := fn(execution); err != nil {
			return err
		}

		execution.ID = id

		if err := r.upsert(ctx, tx, execution); err != nil {
			return persistence.NewExecutionError("Update", id, err)
		}

		updated = execution

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (r *ExecutionRepository) evict(ctx context.Context) error {
	if r.retention <= 0 {
		return nil
	}

	result, err := r.db.ExecContext(ctx, `
		DELETE FROM workflow_executions WHERE id IN (
			SELECT id FROM workflow_executions
			WHERE status IN ('completed', 'failed', 'cancelled')
			ORDER BY started_at ASC
			LIMIT GREATEST((SELECT COUNT(*) FROM workflow_executions) - $1, 0)
		)
	`, r.retention)
	if err != nil {
		return fmt.Errorf("failed to trim execution history: %w", err)
	}

	if evicted, err := result.RowsAffected(); err == nil && evicted > 0 {
		r.logger.DebugContext(ctx, "trimmed execution history", "evicted", evicted)
	}

	return nil
}

func scanExecution(row scanner) (*models.WorkflowExecution, error) {
	var (
		execution   models.WorkflowExecution
		triggerType string
		status      string
		completedAt sql.NullTime
		resumeAt    sql.NullTime
		triggerData []byte
		stepsJSON   []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.WorkflowName,
		&triggerType,
		&status,
		&execution.StartedAt,
		&completedAt,
		&execution.TriggeredBy,
		&triggerData,
		&stepsJSON,
		&execution.Error,
		&execution.CancelRequested,
		&resumeAt,
		&execution.ResumeAfter,
	)
	if err != nil {
		return nil, err
	}

	execution.TriggerType = models.TriggerType(triggerType)
	execution.Status = models.ExecutionStatus(status)
	execution.StartedAt = execution.StartedAt.UTC()

	if completedAt.Valid {
		t := completedAt.Time.UTC()
		execution.CompletedAt = &t
	}

	if resumeAt.Valid {
		t := resumeAt.Time.UTC()
		execution.ResumeAt = &t
	}

	if len(triggerData) > 0 {
		if err := json.Unmarshal(triggerData, &execution.TriggerData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
		}
	}

	if err := json.Unmarshal(stepsJSON, &execution.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}

	return &execution, nil
}
