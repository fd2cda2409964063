package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/trellis/pkg/eventbus"
	"github.com/dukex/trellis/pkg/events"
	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/persistence"
	"github.com/dukex/trellis/pkg/protocol"
)

const (
	DefaultExecutionLimit = 50
	MaxExecutionLimit     = persistence.DefaultHistoryRetention
)

type Execution struct {
	executions persistence.ExecutionRepository
	scheduler  protocol.Scheduler
	publisher  eventbus.EventPublisher
	logger     *slog.Logger
	now        func() time.Time
}

// NewExecution creates the history service. scheduler and publisher may be nil.
func NewExecution(
	logger *slog.Logger,
	persistence persistence.Persistence,
	scheduler protocol.Scheduler,
	publisher eventbus.EventPublisher,
) *Execution {
	if publisher == nil {
		publisher = eventbus.NopPublisher{}
	}

	return &Execution{
		executions: persistence.ExecutionRepository(),
		scheduler:  scheduler,
		publisher:  publisher,
		logger:     logger.With("module", "execution_service"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// List returns matching executions, most recent first.
func (e *Execution) List(ctx context.Context, opts persistence.ListExecutionsOptions) ([]*models.WorkflowExecution, error) {
	if opts.Limit < 0 {
		return nil, &ValidationError{Op: "List", Fields: []FieldError{{Field: "limit", Message: "must not be negative"}}}
	}

	if opts.Limit == 0 {
		opts.Limit = DefaultExecutionLimit
	}

	if opts.Limit > MaxExecutionLimit {
		opts.Limit = MaxExecutionLimit
	}

	if opts.Status != "" && !opts.Status.IsValid() {
		return nil, &ValidationError{Op: "List", Fields: []FieldError{{Field: "status", Message: fmt.Sprintf("unknown status %q", opts.Status)}}}
	}

	executions, err := e.executions.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return executions, nil
}

func (e *Execution) FetchByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	return e.executions.GetByID(ctx, id)
}

// Cancel asks a running execution to stop before its next action, or ends a
// waiting one immediately and withdraws its resume.
func (e *Execution) Cancel(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	var wasWaiting bool

	cancelled, err := e.executions.Update(ctx, id, func(stored *models.WorkflowExecution) error {
		if stored.Status.IsTerminal() {
			return persistence.ErrExecutionFinished
		}

		stored.CancelRequested = true
		wasWaiting = stored.Status == models.ExecutionStatusWaiting

		if wasWaiting {
			now := e.now()
			stored.Status = models.ExecutionStatusCancelled
			stored.CompletedAt = &now
			stored.ResumeAt = nil
		}

		return nil
	})
	if err != nil {
		if persistence.IsExecutionFinished(err) {
			return nil, &ServiceError{
				Op:      "Cancel",
				Code:    "NOT_CANCELLABLE",
				Message: fmt.Sprintf("execution %s already finished", id),
				Err:     ErrNotCancellable,
			}
		}

		return nil, err
	}

	logger := e.logger.With("execution_id", id, "workflow_id", cancelled.WorkflowID)

	if !wasWaiting {
		logger.InfoContext(ctx, "cancellation requested")

		return cancelled, nil
	}

	logger.InfoContext(ctx, "waiting execution cancelled")

	if e.scheduler != nil {
		if err := e.scheduler.CancelResume(ctx, id); err != nil {
			// The engine ignores the orphan record when it fires.
			logger.WarnContext(ctx, "failed to withdraw resume", "error", err)
		}
	}

	if err := e.publisher.Publish(ctx, id, events.NewExecutionEvent(events.ExecutionCancelledEvent, cancelled, e.now())); err != nil {
		logger.WarnContext(ctx, "failed to publish execution event", "error", err)
	}

	return cancelled, nil
}
