package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/persistence"
	"github.com/dukex/trellis/pkg/protocol"
)

type Workflow struct {
	persistence persistence.Persistence
	scheduler   protocol.Scheduler
	validator   *Validator
	logger      *slog.Logger
	now         func() time.Time
}

// NewWorkflow creates a new workflow service. scheduler may be nil, in which
// case cron registrations are not maintained.
func NewWorkflow(logger *slog.Logger, persistence persistence.Persistence, scheduler protocol.Scheduler) *Workflow {
	return &Workflow{
		persistence: persistence,
		scheduler:   scheduler,
		validator:   NewValidator(),
		logger:      logger.With("module", "workflow_service"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Validate checks a definition without storing it.
func (w *Workflow) Validate(workflow *models.Workflow) error {
	return w.validator.Validate(workflow)
}

// List retrieves workflows in creation order.
func (w *Workflow) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// FetchByID retrieves a live workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// Create validates and stores a new workflow. The store assigns its ID.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if err := w.validator.Validate(workflow); err != nil {
		return nil, err
	}

	now := w.now()
	workflow.ID = ""
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.ExecutionCount = 0
	workflow.LastExecutedAt = nil
	workflow.DeletedAt = nil

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "workflow created", "workflow_id", workflow.ID, "trigger_type", workflow.Trigger.Type)

	if err := w.syncCron(ctx, workflow); err != nil {
		return workflow, err
	}

	return workflow, nil
}

// Update replaces the definition of an existing workflow. Identity, authorship
// and execution statistics are kept.
func (w *Workflow) Update(ctx context.Context, workflowID string, workflow *models.Workflow) (*models.Workflow, error) {
	if err := w.validator.Validate(workflow); err != nil {
		return nil, err
	}

	updated, err := w.persistence.WorkflowRepository().Update(ctx, workflowID, func(stored *models.Workflow) error {
		stored.Name = workflow.Name
		stored.Description = workflow.Description
		stored.Enabled = workflow.Enabled
		stored.Trigger = workflow.Trigger
		stored.Actions = workflow.Actions
		stored.UpdatedAt = w.now()

		return nil
	})
	if err != nil {
		return nil, err
	}

	w.logger.InfoContext(ctx, "workflow updated", "workflow_id", workflowID)

	if err := w.syncCron(ctx, updated); err != nil {
		return updated, err
	}

	return updated, nil
}

// SetEnabled toggles whether the workflow is dispatched.
func (w *Workflow) SetEnabled(ctx context.Context, workflowID string, enabled bool) (*models.Workflow, error) {
	updated, err := w.persistence.WorkflowRepository().Update(ctx, workflowID, func(stored *models.Workflow) error {
		stored.Enabled = enabled
		stored.UpdatedAt = w.now()

		return nil
	})
	if err != nil {
		return nil, err
	}

	w.logger.InfoContext(ctx, "workflow toggled", "workflow_id", workflowID, "enabled", enabled)

	if err := w.syncCron(ctx, updated); err != nil {
		return updated, err
	}

	return updated, nil
}

// Delete soft deletes a workflow. Its history is kept.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	if err := w.persistence.WorkflowRepository().Delete(ctx, workflowID); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "workflow deleted", "workflow_id", workflowID)

	if w.scheduler != nil {
		if err := w.scheduler.UnregisterCron(ctx, workflowID); err != nil {
			return fmt.Errorf("failed to unregister schedule: %w", err)
		}
	}

	return nil
}

func (w *Workflow) syncCron(ctx context.Context, workflow *models.Workflow) error {
	if w.scheduler == nil {
		return nil
	}

	var err error
	if workflow.Enabled && workflow.IsScheduled() {
		err = w.scheduler.RegisterCron(ctx, workflow.ID, workflow.Trigger.ScheduleTime)
	} else {
		err = w.scheduler.UnregisterCron(ctx, workflow.ID)
	}

	if err != nil {
		return fmt.Errorf("failed to update schedule of workflow %s: %w", workflow.ID, err)
	}

	return nil
}
