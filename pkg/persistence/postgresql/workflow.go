package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/persistence"
	"github.com/google/uuid"
)

const workflowColumns = `
	id
  , name
  , description
  , enabled
  , trigger_type
  , trigger_config
  , actions
  , created_by
  , execution_count
  , last_executed_at
  , created_at
  , updated_at
  , deleted_at`

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger.With("component", "workflow_repository")}
}

// Save inserts or replaces a workflow.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	if err := r.upsert(ctx, r.db, workflow); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *WorkflowRepository) upsert(ctx context.Context, db execer, workflow *models.Workflow) error {
	triggerJSON, err := json.Marshal(workflow.Trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger: %w", err)
	}

	actionsJSON, err := json.Marshal(workflow.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	query := `
		INSERT INTO workflows (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			enabled = EXCLUDED.enabled,
			trigger_type = EXCLUDED.trigger_type,
			trigger_config = EXCLUDED.trigger_config,
			actions = EXCLUDED.actions,
			created_by = EXCLUDED.created_by,
			execution_count = EXCLUDED.execution_count,
			last_executed_at = EXCLUDED.last_executed_at,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err = db.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.Enabled,
		string(workflow.Trigger.Type),
		string(triggerJSON),
		string(actionsJSON),
		workflow.CreatedBy,
		workflow.ExecutionCount,
		workflow.LastExecutedAt,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		workflow.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}

// GetByID retrieves a live workflow by its ID.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1 AND deleted_at IS NULL`

	workflow, err := r.scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return workflow, nil
}

// buildListQuery renders the filtered listing query and its arguments.
func (r *WorkflowRepository) buildListQuery(opts persistence.ListWorkflowsOptions) (string, []any) {
	var (
		where []string
		args  []any
	)

	if !opts.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}

	if opts.TriggerType != "" {
		args = append(args, string(opts.TriggerType))
		where = append(where, fmt.Sprintf("trigger_type = $%d", len(args)))
	}

	if opts.Enabled != nil {
		args = append(args, *opts.Enabled)
		where = append(where, fmt.Sprintf("enabled = $%d", len(args)))
	}

	query := `SELECT ` + workflowColumns + ` FROM workflows`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY created_at ASC, id ASC"

	return query, args
}

// List returns the workflows matching opts, oldest first.
func (r *WorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.Workflow, error) {
	query, args := r.buildListQuery(opts)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// ByTriggerType returns every live workflow listening for triggerType, enabled or not.
func (r *WorkflowRepository) ByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error) {
	return r.List(ctx, persistence.ListWorkflowsOptions{TriggerType: triggerType})
}

// Update applies fn to the row locked with SELECT ... FOR UPDATE.
func (r *WorkflowRepository) Update(ctx context.Context, id string, fn func(*models.Workflow) error) (*models.Workflow, error) {
	var updated *models.Workflow

	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`

		workflow, err := r.scanWorkflow(tx.QueryRowContext(ctx, query, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.NewWorkflowError("Update", id, persistence.ErrWorkflowNotFound)
			}

			return persistence.NewWorkflowError("Update", id, err)
		}

		if err := fn(workflow); err != nil {
			return err
		}

		workflow.ID = id

		if err := r.upsert(ctx, tx, workflow); err != nil {
			return persistence.NewWorkflowError("Update", id, err)
		}

		updated = workflow

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Delete soft deletes a workflow by setting deleted_at timestamp.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	now := time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflows SET deleted_at = $2, updated_at = $2, enabled = false
		WHERE id = $1 AND deleted_at IS NULL
	`, id, now)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) scanWorkflow(row scanner) (*models.Workflow, error) {
	var (
		workflow       models.Workflow
		triggerType    string
		triggerJSON    []byte
		actionsJSON    []byte
		lastExecutedAt sql.NullTime
		deletedAt      sql.NullTime
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.Enabled,
		&triggerType,
		&triggerJSON,
		&actionsJSON,
		&workflow.CreatedBy,
		&workflow.ExecutionCount,
		&lastExecutedAt,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(triggerJSON, &workflow.Trigger); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger: %w", err)
	}

	if err := json.Unmarshal(actionsJSON, &workflow.Actions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
	}

	workflow.Trigger.Type = models.TriggerType(triggerType)
	workflow.CreatedAt = workflow.CreatedAt.UTC()
	workflow.UpdatedAt = workflow.UpdatedAt.UTC()

	if lastExecutedAt.Valid {
		t := lastExecutedAt.Time.UTC()
		workflow.LastExecutedAt = &t
	}

	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		workflow.DeletedAt = &t
	}

	return &workflow, nil
}
