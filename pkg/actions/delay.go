package actions

import (
	"context"
	"errors"
	"time"

	"github.com/dukex/trellis/pkg/models"
)

// ErrInvalidDelay is returned for a wait_delay whose total duration is not positive.
var ErrInvalidDelay = errors.New("wait_delay requires a positive delay")

// waitDelay computes the resume time and leaves suspension to the engine,
// which hands the rest of the chain to the scheduler.
func (e *Executor) waitDelay(ctx context.Context, config *models.WaitDelayConfig, step *models.WorkflowExecutionStep) (map[string]any, error) {
	delay := config.Duration()
	if delay <= 0 {
		return nil, ErrInvalidDelay
	}

	if e.simulateDelays {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		return map[string]any{
			"delay_ms":  delay.Milliseconds(),
			"simulated": true,
		}, nil
	}

	resumeAt := e.now().Add(delay)
	step.ResumeAt = &resumeAt

	return map[string]any{
		"delay_ms":  delay.Milliseconds(),
		"resume_at": resumeAt.Format(time.RFC3339),
	}, nil
}
