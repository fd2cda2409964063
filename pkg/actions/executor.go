// Package actions executes workflow actions through the engine's ports.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/trellis/pkg/metrics"
	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/otelhelper"
	"github.com/dukex/trellis/pkg/protocol"
	"github.com/dukex/trellis/pkg/template"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultActionTimeout = 30 * time.Second

var (
	// ErrPortNotConfigured is returned when an action needs a port the executor was built without.
	ErrPortNotConfigured = errors.New("port not configured")

	// ErrActionTimeout is matched by every TimeoutError.
	ErrActionTimeout = errors.New("action timed out")
)

// TimeoutError reports an action that did not finish within its deadline.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("action timed out after %s", e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrActionTimeout
}

// Ports are the collaborators actions reach their effects through. Any of
// them may be nil; actions that need a missing port fail.
type Ports struct {
	Notifications protocol.NotificationPort
	Communication protocol.CommunicationPort
	Records       protocol.RecordPort
	Webhooks      protocol.WebhookClient
}

// Executor maps every action kind to its handler.
type Executor struct {
	ports          Ports
	logger         *slog.Logger
	timeout        time.Duration
	simulateDelays bool
	metrics        *metrics.Collector
	tracer         trace.Tracer
	now            func() time.Time
}

type Option func(*Executor)

// WithTimeout bounds every port call. Webhooks may override it per action.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Executor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithSimulatedDelays makes wait_delay sleep in place instead of suspending
// the execution. Meant for tests and dry runs.
func WithSimulatedDelays() Option {
	return func(e *Executor) {
		e.simulateDelays = true
	}
}

func WithMetrics(collector *metrics.Collector) Option {
	return func(e *Executor) {
		e.metrics = collector
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

func NewExecutor(logger *slog.Logger, ports Ports, opts ...Option) *Executor {
	executor := &Executor{
		ports:   ports,
		logger:  logger.With("module", "action_executor"),
		timeout: defaultActionTimeout,
		tracer:  otelhelper.Tracer("trellis/actions"),
		now:     func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// SimulatesDelays reports whether wait_delay sleeps in place.
func (e *Executor) SimulatesDelays() bool {
	return e.simulateDelays
}

// Execute runs one action and returns its step. Handler errors never escape:
// they are recorded on the step as a failure.
func (e *Executor) Execute(ctx context.Context, action models.WorkflowAction, execCtx *models.ExecutionContext) models.WorkflowExecutionStep {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "action.execute",
		attribute.String(otelhelper.ActionIDKey, action.ID),
		attribute.String(otelhelper.ActionTypeKey, string(action.Type)),
		attribute.String(otelhelper.ExecutionIDKey, execCtx.ExecutionID),
	)
	defer span.End()

	startedAt := e.now()
	step := models.WorkflowExecutionStep{
		ActionID:   action.ID,
		ActionType: action.Type,
		Status:     models.StepStatusRunning,
		StartedAt:  &startedAt,
	}

	result, err := e.dispatch(ctx, action, execCtx, &step)

	completedAt := e.now()
	step.CompletedAt = &completedAt
	step.Result = result

	logger := e.logger.With(
		"execution_id", execCtx.ExecutionID,
		"action_id", action.ID,
		"action_type", action.Type,
	)

	if err != nil {
		step.Status = models.StepStatusFailed
		step.Error = err.Error()
		step.ResumeAt = nil

		otelhelper.SetError(span, err)
		logger.WarnContext(ctx, "action failed", "error", err)
	} else {
		step.Status = models.StepStatusCompleted

		logger.DebugContext(ctx, "action completed")
	}

	span.SetAttributes(attribute.String(otelhelper.StatusKey, string(step.Status)))
	e.metrics.StepExecuted(string(action.Type), string(step.Status), completedAt.Sub(startedAt))

	return step
}

func (e *Executor) dispatch(
	ctx context.Context,
	action models.WorkflowAction,
	execCtx *models.ExecutionContext,
	step *models.WorkflowExecutionStep,
) (map[string]any, error) {
	if action.Config == nil {
		return nil, fmt.Errorf("action %s has no config", action.ID)
	}

	if action.Type != action.Config.ActionType() {
		return nil, fmt.Errorf("action %s declares type %s but carries %s config", action.ID, action.Type, action.Config.ActionType())
	}

	data := execCtx.Data()
	config := template.InterpolateConfig(action.Config, data)

	switch typed := config.(type) {
	case *models.SendEmailConfig:
		return e.sendEmail(ctx, typed)
	case *models.SendSMSConfig:
		return e.sendSMS(ctx, typed)
	case *models.CreateTaskConfig:
		return e.createTask(ctx, typed, execCtx)
	case *models.UpdateClientStatusConfig:
		return e.updateClientStatus(ctx, typed)
	case *models.AssignToUserConfig:
		return e.assignToUser(ctx, typed)
	case *models.AddNoteConfig:
		return e.addNote(ctx, typed)
	case *models.UpdateClientFieldConfig:
		return e.updateClientField(ctx, typed)
	case *models.SendNotificationConfig:
		return e.sendNotification(ctx, typed, execCtx)
	case *models.WaitDelayConfig:
		return e.waitDelay(ctx, typed, step)
	case *models.ConditionalBranchConfig:
		return e.conditionalBranch(ctx, typed, execCtx)
	case *models.SendWebhookConfig:
		return e.sendWebhook(ctx, typed)
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownActionType, action.Type)
	}
}

type callOutcome struct {
	result map[string]any
	err    error
}

// bounded runs call under timeout. A call that ignores its context is
// abandoned when the deadline passes.
func (e *Executor) bounded(ctx context.Context, timeout time.Duration, call func(context.Context) (map[string]any, error)) (map[string]any, error) {
	if timeout <= 0 {
		timeout = e.timeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan callOutcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callOutcome{err: fmt.Errorf("action panicked: %v", r)}
			}
		}()

		result, err := call(callCtx)
		done <- callOutcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return out.result, &TimeoutError{Timeout: timeout}
		}

		return out.result, out.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, &TimeoutError{Timeout: timeout}
	}
}

func portMissing(name string) error {
	return fmt.Errorf("%w: %s", ErrPortNotConfigured, name)
}
