package actions

import (
	"context"
	"time"

	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/protocol"
)

func (e *Executor) createTask(ctx context.Context, config *models.CreateTaskConfig, execCtx *models.ExecutionContext) (map[string]any, error) {
	if e.ports.Records == nil {
		return nil, portMissing("records")
	}

	request := protocol.TaskRequest{
		Title:       config.Title,
		Description: config.Description,
		AssigneeID:  config.AssigneeID,
		EntityID:    config.EntityID,
		Priority:    config.Priority,
		WorkflowID:  execCtx.WorkflowID,
		ExecutionID: execCtx.ExecutionID,
	}

	if config.DueInDays > 0 {
		dueDate := e.now().Add(time.Duration(config.DueInDays) * 24 * time.Hour)
		request.DueDate = &dueDate
	}

	return e.bounded(ctx, 0, func(ctx context.Context) (map[string]any, error) {
		return e.ports.Records.CreateTask(ctx, request)
	})
}

func (e *Executor) updateClientStatus(ctx context.Context, config *models.UpdateClientStatusConfig) (map[string]any, error) {
	if e.ports.Records == nil {
		return nil, portMissing("records")
	}

	return e.bounded(ctx, 0, func(ctx context.Context) (map[string]any, error) {
		return e.ports.Records.UpdateStatus(ctx, config.ClientID, config.Status)
	})
}

func (e *Executor) assignToUser(ctx context.Context, config *models.AssignToUserConfig) (map[string]any, error) {
	if e.ports.Records == nil {
		return nil, portMissing("records")
	}

	return e.bounded(ctx, 0, func(ctx context.Context) (map[string]any, error) {
		return e.ports.Records.AssignUser(ctx, config.EntityID, config.UserID)
	})
}

func (e *Executor) addNote(ctx context.Context, config *models.AddNoteConfig) (map[string]any, error) {
	if e.ports.Records == nil {
		return nil, portMissing("records")
	}

	return e.bounded(ctx, 0, func(ctx context.Context) (map[string]any, error) {
		return e.ports.Records.AddNote(ctx, config.EntityID, config.Note)
	})
}

func (e *Executor) updateClientField(ctx context.Context, config *models.UpdateClientFieldConfig) (map[string]any, error) {
	if e.ports.Records == nil {
		return nil, portMissing("records")
	}

	return e.bounded(ctx, 0, func(ctx context.Context) (map[string]any, error) {
		return e.ports.Records.UpdateField(ctx, config.ClientID, config.Field, config.Value)
	})
}
