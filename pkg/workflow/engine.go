// Package workflow runs workflows: the Engine executes one workflow's action
// chain and records its history, the Dispatcher fans events out to every
// matching workflow.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/trellis/pkg/eventbus"
	"github.com/dukex/trellis/pkg/events"
	"github.com/dukex/trellis/pkg/metrics"
	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/otelhelper"
	"github.com/dukex/trellis/pkg/persistence"
	"github.com/dukex/trellis/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrSchedulerNotConfigured is recorded on a wait_delay step when the
	// engine has no scheduler to hand the rest of the chain to.
	ErrSchedulerNotConfigured = errors.New("scheduler not configured")

	errNotWaiting = errors.New("execution is not waiting")
)

// ActionExecutor runs a single action. *actions.Executor implements it.
type ActionExecutor interface {
	Execute(ctx context.Context, action models.WorkflowAction, execCtx *models.ExecutionContext) models.WorkflowExecutionStep
}

// Engine drives executions through running, waiting and their terminal states.
type Engine struct {
	workflows  persistence.WorkflowRepository
	executions persistence.ExecutionRepository
	executor   ActionExecutor
	scheduler  protocol.Scheduler
	publisher  eventbus.EventPublisher
	logger     *slog.Logger
	metrics    *metrics.Collector
	tracer     trace.Tracer
	now        func() time.Time

	// executions this engine is driving right now
	activeMu sync.Mutex
	active   map[string]struct{}
}

type EngineOption func(*Engine)

// WithScheduler enables durable wait_delay suspension.
func WithScheduler(scheduler protocol.Scheduler) EngineOption {
	return func(e *Engine) {
		e.scheduler = scheduler
	}
}

// WithPublisher publishes lifecycle events for every transition.
func WithPublisher(publisher eventbus.EventPublisher) EngineOption {
	return func(e *Engine) {
		if publisher != nil {
			e.publisher = publisher
		}
	}
}

func WithEngineMetrics(collector *metrics.Collector) EngineOption {
	return func(e *Engine) {
		e.metrics = collector
	}
}

func WithEngineTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(logger *slog.Logger, store persistence.Persistence, executor ActionExecutor, opts ...EngineOption) *Engine {
	engine := &Engine{
		workflows:  store.WorkflowRepository(),
		executions: store.ExecutionRepository(),
		executor:   executor,
		publisher:  eventbus.NopPublisher{},
		logger:     logger.With("module", "workflow_engine"),
		tracer:     otelhelper.Tracer("trellis/workflow"),
		now:        func() time.Time { return time.Now().UTC() },
		active:     make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Execute starts a new execution of workflow and runs it until it finishes
// or suspends on a wait_delay. Action failures are recorded on the returned
// execution; the error reports storage problems only.
func (e *Engine) Execute(
	ctx context.Context,
	workflow *models.Workflow,
	triggerType models.TriggerType,
	payload map[string]any,
	triggeredBy string,
) (*models.WorkflowExecution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.String(otelhelper.TriggerTypeKey, string(triggerType)),
	)
	defer span.End()

	execution := &models.WorkflowExecution{
		ID:           uuid.NewString(),
		WorkflowID:   workflow.ID,
		WorkflowName: workflow.Name,
		TriggerType:  triggerType,
		Status:       models.ExecutionStatusRunning,
		StartedAt:    e.now(),
		TriggeredBy:  triggeredBy,
		TriggerData:  payload,
		Steps:        []models.WorkflowExecutionStep{},
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))

	e.claim(execution.ID)
	defer e.release(execution.ID)

	if err := e.executions.Save(ctx, execution); err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to record execution of workflow %s: %w", workflow.ID, err)
	}

	e.logger.InfoContext(ctx, "execution started",
		"workflow_id", workflow.ID,
		"execution_id", execution.ID,
		"trigger_type", triggerType,
	)
	e.publish(ctx, events.ExecutionStartedEvent, execution)

	result, err := e.run(ctx, execution, workflow.SortedActions(), models.NewExecutionContext(execution))
	e.annotate(span, result, err)

	return result, err
}

// Resume continues a waiting execution after its wait_delay step. A running
// execution that has a resume point but is not driven by this engine was
// interrupted mid-chain, so it continues after its last recorded step.
// Resuming anything else is a no-op that returns its current state.
func (e *Engine) Resume(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	return e.resume(ctx, executionID, false)
}

// Recover continues every running execution no engine is driving, as left
// behind by a process that stopped mid-chain. The action that was in flight
// may run again. It returns how many executions were picked up.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	running, err := e.executions.List(ctx, persistence.ListExecutionsOptions{Status: models.ExecutionStatusRunning})
	if err != nil {
		return 0, fmt.Errorf("failed to list running executions: %w", err)
	}

	recovered := 0

	var errs []error

	for _, execution := range running {
		if e.isActive(execution.ID) {
			continue
		}

		e.logger.WarnContext(ctx, "recovering interrupted execution",
			"execution_id", execution.ID,
			"workflow_id", execution.WorkflowID,
			"steps", len(execution.Steps),
		)

		if _, err := e.resume(ctx, execution.ID, true); err != nil {
			errs = append(errs, fmt.Errorf("execution %s: %w", execution.ID, err))

			continue
		}

		recovered++
	}

	return recovered, errors.Join(errs...)
}

func (e *Engine) resume(ctx context.Context, executionID string, interrupted bool) (*models.WorkflowExecution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.resume",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	if !e.tryClaim(executionID) {
		e.metrics.Resume("skipped")

		return e.executions.GetByID(ctx, executionID)
	}
	defer e.release(executionID)

	execution, err := e.executions.GetByID(ctx, executionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if !resumable(execution, interrupted) {
		e.metrics.Resume("skipped")

		return execution, nil
	}

	logger := e.logger.With("execution_id", executionID, "workflow_id", execution.WorkflowID)

	workflow, err := e.workflows.GetByID(ctx, execution.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			logger.WarnContext(ctx, "workflow of suspended execution no longer exists")

			return e.failResume(ctx, execution, fmt.Sprintf("cannot resume: workflow %s no longer exists", execution.WorkflowID))
		}

		otelhelper.SetError(span, err)

		return nil, err
	}

	sorted := workflow.SortedActions()

	next, anchor := continuation(sorted, execution)
	if next < 0 {
		logger.WarnContext(ctx, "resume point no longer exists", "action_id", anchor)

		return e.failResume(ctx, execution, fmt.Sprintf("cannot resume: action %s no longer exists in workflow %s", anchor, workflow.ID))
	}

	resumed, err := e.executions.Update(ctx, executionID, func(stored *models.WorkflowExecution) error {
		if !resumable(stored, interrupted) {
			return errNotWaiting
		}

		stored.Status = models.ExecutionStatusRunning
		stored.ResumeAt = nil

		return nil
	})
	if err != nil {
		if errors.Is(err, errNotWaiting) || persistence.IsExecutionFinished(err) {
			e.metrics.Resume("skipped")

			return e.executions.GetByID(ctx, executionID)
		}

		otelhelper.SetError(span, err)

		return nil, err
	}

	if execution.Status == models.ExecutionStatusRunning {
		e.metrics.Resume("recovered")
	} else {
		e.metrics.Resume("resumed")
	}

	logger.InfoContext(ctx, "execution resumed", "after_action", anchor)
	e.publish(ctx, events.ExecutionResumedEvent, resumed)

	result, err := e.run(ctx, resumed, sorted[next:], models.NewExecutionContext(resumed))
	e.annotate(span, result, err)

	return result, err
}

// resumable reports whether execution may be continued by a resume. Running
// executions qualify once they passed a wait, or always when recovering.
func resumable(execution *models.WorkflowExecution, interrupted bool) bool {
	switch execution.Status {
	case models.ExecutionStatusWaiting:
		return true
	case models.ExecutionStatusRunning:
		return interrupted || execution.ResumeAfter != ""
	default:
		return false
	}
}

// continuation returns the index in sorted of the first action still to run
// and the action ID it continues after. The index is -1 when that action is
// gone from the workflow.
func continuation(sorted []models.WorkflowAction, execution *models.WorkflowExecution) (int, string) {
	anchor := execution.ResumeAfter

	if execution.Status == models.ExecutionStatusRunning {
		last := execution.LastStep()
		if last == nil {
			return 0, ""
		}

		anchor = last.ActionID
	}

	for i, action := range sorted {
		if action.ID == anchor {
			return i + 1, anchor
		}
	}

	return -1, anchor
}

func (e *Engine) claim(executionID string) {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()

	e.active[executionID] = struct{}{}
}

func (e *Engine) tryClaim(executionID string) bool {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()

	if _, ok := e.active[executionID]; ok {
		return false
	}

	e.active[executionID] = struct{}{}

	return true
}

func (e *Engine) release(executionID string) {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()

	delete(e.active, executionID)
}

func (e *Engine) isActive(executionID string) bool {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()

	_, ok := e.active[executionID]

	return ok
}

// failResume terminates a suspended execution whose continuation cannot be
// honored. The last recorded step, normally the wait, carries the reason so
// the execution still ends on a failed step.
func (e *Engine) failResume(ctx context.Context, execution *models.WorkflowExecution, reason string) (*models.WorkflowExecution, error) {
	failed, err := e.executions.Update(ctx, execution.ID, func(stored *models.WorkflowExecution) error {
		if stored.Status != models.ExecutionStatusWaiting && stored.Status != models.ExecutionStatusRunning {
			return errNotWaiting
		}

		e.failLastStep(stored, reason)

		return nil
	})
	if err != nil {
		if errors.Is(err, errNotWaiting) || persistence.IsExecutionFinished(err) {
			return e.executions.GetByID(ctx, execution.ID)
		}

		return nil, err
	}

	e.metrics.Resume("failed")
	e.finished(ctx, failed)

	return failed, nil
}

func (e *Engine) failLastStep(execution *models.WorkflowExecution, reason string) {
	now := e.now()

	if last := execution.LastStep(); last != nil {
		last.Status = models.StepStatusFailed
		last.Error = reason
		last.ResumeAt = nil
	}

	execution.Status = models.ExecutionStatusFailed
	execution.Error = reason
	execution.ResumeAt = nil
	execution.CompletedAt = &now
}

// run executes actions in order against the running execution.
func (e *Engine) run(
	ctx context.Context,
	execution *models.WorkflowExecution,
	chain []models.WorkflowAction,
	execCtx *models.ExecutionContext,
) (*models.WorkflowExecution, error) {
	current := execution

	for _, action := range chain {
		cancelled, err := e.cancelIfRequested(ctx, current.ID)
		if err != nil {
			return current, err
		}

		if cancelled != nil {
			return cancelled, nil
		}

		step := e.executor.Execute(ctx, action, execCtx)
		suspend := step.Status == models.StepStatusCompleted && step.ResumeAt != nil

		updated, err := e.executions.Update(ctx, current.ID, func(stored *models.WorkflowExecution) error {
			stored.Steps = append(stored.Steps, step)

			switch {
			case step.Status == models.StepStatusFailed:
				now := e.now()
				stored.Status = models.ExecutionStatusFailed
				stored.Error = step.Error
				stored.CompletedAt = &now
			case suspend:
				resumeAt := *step.ResumeAt
				stored.Status = models.ExecutionStatusWaiting
				stored.ResumeAt = &resumeAt
				stored.ResumeAfter = action.ID
			}

			return nil
		})
		if err != nil {
			return current, fmt.Errorf("failed to record step %s: %w", action.ID, err)
		}

		current = updated

		if step.Status == models.StepStatusFailed {
			e.finished(ctx, current)

			return current, nil
		}

		execCtx.SetStepResult(action.ID, step.Result)

		if suspend {
			return e.suspend(ctx, current)
		}
	}

	now := e.now()

	completed, err := e.executions.Update(ctx, current.ID, func(stored *models.WorkflowExecution) error {
		stored.Status = models.ExecutionStatusCompleted
		stored.CompletedAt = &now

		return nil
	})
	if err != nil {
		return current, fmt.Errorf("failed to complete execution: %w", err)
	}

	e.finished(ctx, completed)

	return completed, nil
}

// suspend hands the rest of the chain to the scheduler. Without a durable
// resume record the wait step fails.
func (e *Engine) suspend(ctx context.Context, execution *models.WorkflowExecution) (*models.WorkflowExecution, error) {
	var err error
	if e.scheduler == nil {
		err = ErrSchedulerNotConfigured
	} else {
		err = e.scheduler.ScheduleResume(ctx, execution.ID, *execution.ResumeAt)
	}

	if err != nil {
		e.logger.ErrorContext(ctx, "failed to schedule resume", "execution_id", execution.ID, "error", err)

		failed, updateErr := e.executions.Update(ctx, execution.ID, func(stored *models.WorkflowExecution) error {
			e.failLastStep(stored, fmt.Sprintf("failed to schedule resume: %v", err))

			return nil
		})
		if updateErr != nil {
			return execution, fmt.Errorf("failed to record scheduling failure: %w", updateErr)
		}

		e.finished(ctx, failed)

		return failed, nil
	}

	e.logger.InfoContext(ctx, "execution waiting",
		"execution_id", execution.ID,
		"resume_at", execution.ResumeAt,
	)
	e.metrics.ExecutionStatus(string(execution.Status))
	e.publish(ctx, events.ExecutionWaitingEvent, execution)

	return execution, nil
}

// cancelIfRequested finishes the execution as cancelled when an operator
// asked for it. It returns nil when the run may continue.
func (e *Engine) cancelIfRequested(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	stored, err := e.executions.GetByID(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cancellation flag: %w", err)
	}

	if stored.IsFinished() {
		return stored, nil
	}

	if !stored.CancelRequested {
		return nil, nil
	}

	cancelled, err := e.executions.Update(ctx, executionID, func(stored *models.WorkflowExecution) error {
		now := e.now()
		stored.Status = models.ExecutionStatusCancelled
		stored.CompletedAt = &now
		stored.ResumeAt = nil

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel execution: %w", err)
	}

	e.finished(ctx, cancelled)

	return cancelled, nil
}

func (e *Engine) finished(ctx context.Context, execution *models.WorkflowExecution) {
	e.metrics.ExecutionStatus(string(execution.Status))

	logger := e.logger.With(
		"workflow_id", execution.WorkflowID,
		"execution_id", execution.ID,
		"steps", len(execution.Steps),
	)

	switch execution.Status {
	case models.ExecutionStatusFailed:
		logger.WarnContext(ctx, "execution failed", "error", execution.Error)
		e.publish(ctx, events.ExecutionFailedEvent, execution)
	case models.ExecutionStatusCancelled:
		logger.InfoContext(ctx, "execution cancelled")
		e.publish(ctx, events.ExecutionCancelledEvent, execution)
	default:
		logger.InfoContext(ctx, "execution completed")
		e.publish(ctx, events.ExecutionCompletedEvent, execution)
	}
}

func (e *Engine) publish(ctx context.Context, eventType events.EventType, execution *models.WorkflowExecution) {
	event := events.NewExecutionEvent(eventType, execution, e.now())

	if err := e.publisher.Publish(ctx, execution.ID, event); err != nil {
		e.logger.WarnContext(ctx, "failed to publish execution event",
			"event_type", eventType,
			"execution_id", execution.ID,
			"error", err,
		)
	}
}

func (e *Engine) annotate(span trace.Span, execution *models.WorkflowExecution, err error) {
	if err != nil {
		otelhelper.SetError(span, err)

		return
	}

	span.SetAttributes(attribute.String(otelhelper.StatusKey, string(execution.Status)))

	if execution.Status == models.ExecutionStatusFailed {
		otelhelper.SetFailure(span, execution.Error)
	}
}
