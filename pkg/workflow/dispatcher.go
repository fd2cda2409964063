package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/trellis/pkg/conditions"
	"github.com/dukex/trellis/pkg/metrics"
	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/persistence"
)

// TriggeredByScheduler is recorded on executions started by a cron schedule.
const TriggeredByScheduler = "scheduler"

// ErrNotScheduled is returned by RunScheduled for a workflow that is disabled
// or no longer has a scheduled_time trigger.
var ErrNotScheduled = errors.New("workflow is not an enabled scheduled workflow")

// Dispatcher selects the workflows matching a trigger and runs each of them
// through the Engine.
type Dispatcher struct {
	workflows persistence.WorkflowRepository
	engine    *Engine
	logger    *slog.Logger
	metrics   *metrics.Collector
	now       func() time.Time
}

type DispatcherOption func(*Dispatcher)

func WithDispatcherMetrics(collector *metrics.Collector) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = collector
	}
}

func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

func NewDispatcher(logger *slog.Logger, workflows persistence.WorkflowRepository, engine *Engine, opts ...DispatcherOption) *Dispatcher {
	dispatcher := &Dispatcher{
		workflows: workflows,
		engine:    engine,
		logger:    logger.With("module", "workflow_dispatcher"),
		now:       func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(dispatcher)
	}

	return dispatcher
}

// Dispatch runs every enabled workflow whose trigger matches triggerType and
// payload. Workflows run concurrently and independently; executions come back
// in definition order. Storage failures are joined into the returned error
// next to the executions that did run.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	triggerType models.TriggerType,
	payload map[string]any,
	triggeredBy string,
) ([]*models.WorkflowExecution, error) {
	candidates, err := d.workflows.ByTriggerType(ctx, triggerType)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflows for trigger %s: %w", triggerType, err)
	}

	matched := make([]*models.Workflow, 0, len(candidates))

	for _, workflow := range candidates {
		if !workflow.Enabled || workflow.IsDeleted() {
			continue
		}

		if len(workflow.Trigger.Conditions) > 0 && !conditions.Evaluate(workflow.Trigger.Conditions, payload) {
			d.logger.DebugContext(ctx, "trigger conditions not met", "workflow_id", workflow.ID, "trigger_type", triggerType)

			continue
		}

		matched = append(matched, workflow)
	}

	d.logger.InfoContext(ctx, "dispatching trigger",
		"trigger_type", triggerType,
		"candidates", len(candidates),
		"matched", len(matched),
	)

	results := make([]*models.WorkflowExecution, len(matched))
	errs := make([]error, len(matched))

	var wg sync.WaitGroup

	for i, workflow := range matched {
		d.metrics.WorkflowMatched(string(triggerType))

		wg.Add(1)

		go func() {
			defer wg.Done()

			results[i], errs[i] = d.run(ctx, workflow, triggerType, payload, triggeredBy)
		}()
	}

	wg.Wait()

	executions := make([]*models.WorkflowExecution, 0, len(results))
	for _, execution := range results {
		if execution != nil {
			executions = append(executions, execution)
		}
	}

	return executions, errors.Join(errs...)
}

// RunScheduled executes one scheduled_time workflow for a cron activation.
func (d *Dispatcher) RunScheduled(ctx context.Context, workflowID string, firedAt time.Time) (*models.WorkflowExecution, error) {
	workflow, err := d.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if !workflow.Enabled || !workflow.IsScheduled() {
		return nil, fmt.Errorf("%w: %s", ErrNotScheduled, workflowID)
	}

	payload := map[string]any{
		"scheduled_at":    firedAt.UTC().Format(time.RFC3339),
		"cron_expression": workflow.Trigger.ScheduleTime,
	}

	d.metrics.WorkflowMatched(string(models.TriggerScheduledTime))

	return d.run(ctx, workflow, models.TriggerScheduledTime, payload, TriggeredByScheduler)
}

func (d *Dispatcher) run(
	ctx context.Context,
	workflow *models.Workflow,
	triggerType models.TriggerType,
	payload map[string]any,
	triggeredBy string,
) (*models.WorkflowExecution, error) {
	execution, err := d.engine.Execute(ctx, workflow, triggerType, payload, triggeredBy)
	if execution == nil {
		return nil, err
	}

	_, countErr := d.workflows.Update(ctx, workflow.ID, func(stored *models.Workflow) error {
		executedAt := d.now()
		stored.ExecutionCount++
		stored.LastExecutedAt = &executedAt

		return nil
	})
	if countErr != nil && !persistence.IsWorkflowNotFound(countErr) {
		d.logger.WarnContext(ctx, "failed to update execution count", "workflow_id", workflow.ID, "error", countErr)

		err = errors.Join(err, fmt.Errorf("failed to update execution count of workflow %s: %w", workflow.ID, countErr))
	}

	return execution, err
}
