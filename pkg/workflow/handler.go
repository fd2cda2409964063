package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/trellis/pkg/persistence"
	"github.com/dukex/trellis/pkg/scheduler"
)

// SchedulerHandler feeds due scheduler records back into the engine.
type SchedulerHandler struct {
	engine     *Engine
	dispatcher *Dispatcher
}

var _ scheduler.Handler = (*SchedulerHandler)(nil)

func NewSchedulerHandler(engine *Engine, dispatcher *Dispatcher) *SchedulerHandler {
	return &SchedulerHandler{engine: engine, dispatcher: dispatcher}
}

// Resume treats a vanished execution as handled so its record is dropped.
func (h *SchedulerHandler) Resume(ctx context.Context, executionID string) error {
	_, err := h.engine.Resume(ctx, executionID)
	if persistence.IsExecutionNotFound(err) {
		return nil
	}

	return err
}

func (h *SchedulerHandler) FireSchedule(ctx context.Context, workflowID string, firedAt time.Time) error {
	_, err := h.dispatcher.RunScheduled(ctx, workflowID, firedAt)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotScheduled), persistence.IsWorkflowNotFound(err):
		return fmt.Errorf("%w: %w", scheduler.ErrScheduleGone, err)
	default:
		return err
	}
}
