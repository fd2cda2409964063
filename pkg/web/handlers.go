// Package web provides HTTP handlers and REST API endpoints for workflow management.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/persistence"
	"github.com/dukex/trellis/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// EventDispatcher runs the workflows matching a domain event.
// *workflow.Dispatcher implements it.
type EventDispatcher interface {
	Dispatch(
		ctx context.Context,
		triggerType models.TriggerType,
		payload map[string]any,
		triggeredBy string,
	) ([]*models.WorkflowExecution, error)
}

type APIHandlers struct {
	workflowService  *services.Workflow
	executionService *services.Execution
	dispatcher       EventDispatcher
	validator        *validator.Validate
	logger           *slog.Logger
}

func NewAPIHandlers(
	logger *slog.Logger,
	workflowService *services.Workflow,
	executionService *services.Execution,
	dispatcher EventDispatcher,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService:  workflowService,
		executionService: executionService,
		dispatcher:       dispatcher,
		validator:        validator,
		logger:           logger.With("module", "api"),
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	opts, err := parseListWorkflowsOptions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	workflows, err := h.workflowService.List(c.Context(), opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflows)
}

func parseListWorkflowsOptions(c fiber.Ctx) (persistence.ListWorkflowsOptions, error) {
	opts := persistence.ListWorkflowsOptions{
		TriggerType: models.TriggerType(c.Query("trigger_type")),
	}

	if enabledStr := c.Query("enabled"); enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return opts, err
		}

		opts.Enabled = &enabled
	}

	return opts, nil
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Trellis API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Trellis API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) bindWorkflow(c fiber.Ctx) (*models.Workflow, error) {
	var req WorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return nil, badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, badRequest(c, err.Error())
	}

	return req.ToWorkflow(), nil
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	workflow, respErr := h.bindWorkflow(c)
	if workflow == nil {
		return respErr
	}

	created, err := h.workflowService.Create(c.Context(), workflow)
	if err != nil {
		if created == nil {
			return handleServiceError(c, err)
		}

		// Stored, but its cron registration failed.
		h.logger.WarnContext(c.Context(), "workflow created with schedule error", "workflow_id", created.ID, "error", err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, respErr := h.bindWorkflow(c)
	if workflow == nil {
		return respErr
	}

	updated, err := h.workflowService.Update(c.Context(), id, workflow)
	if err != nil {
		if updated == nil {
			return handleServiceError(c, err)
		}

		h.logger.WarnContext(c.Context(), "workflow updated with schedule error", "workflow_id", id, "error", err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	err := h.workflowService.Delete(c.Context(), id)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) EnableWorkflow(c fiber.Ctx) error {
	return h.setEnabled(c, true)
}

func (h *APIHandlers) DisableWorkflow(c fiber.Ctx) error {
	return h.setEnabled(c, false)
}

func (h *APIHandlers) setEnabled(c fiber.Ctx, enabled bool) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	updated, err := h.workflowService.SetEnabled(c.Context(), id, enabled)
	if err != nil {
		if updated == nil {
			return handleServiceError(c, err)
		}

		h.logger.WarnContext(c.Context(), "workflow toggled with schedule error", "workflow_id", id, "error", err)
	}

	return c.JSON(updated)
}

// GetWorkflowExecutions lists the history of one workflow.
func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	opts, err := parseListExecutionsOptions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	opts.WorkflowID = id

	return h.listExecutions(c, opts)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	opts, err := parseListExecutionsOptions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	opts.WorkflowID = c.Query("workflow_id")

	return h.listExecutions(c, opts)
}

func parseListExecutionsOptions(c fiber.Ctx) (persistence.ListExecutionsOptions, error) {
	opts := persistence.ListExecutionsOptions{
		Status: models.ExecutionStatus(c.Query("status")),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return opts, err
		}

		opts.Limit = limit
	}

	return opts, nil
}

func (h *APIHandlers) listExecutions(c fiber.Ctx, opts persistence.ListExecutionsOptions) error {
	executions, err := h.executionService.List(c.Context(), opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	if c.Query("summary") == "true" {
		summaries := make([]ExecutionSummary, 0, len(executions))
		for _, execution := range executions {
			summaries = append(summaries, TransformExecutionSummary(execution))
		}

		return c.JSON(summaries)
	}

	return c.JSON(executions)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.executionService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.executionService.Cancel(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(execution)
}

// DispatchEvent runs every workflow matching the posted domain event and
// answers with the executions it started.
func (h *APIHandlers) DispatchEvent(c fiber.Ctx) error {
	var req DispatchEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if !req.TriggerType.IsValid() {
		return badRequest(c, "Unknown trigger type: "+string(req.TriggerType))
	}

	if req.TriggerType == models.TriggerScheduledTime {
		return badRequest(c, "scheduled_time workflows are started by the scheduler")
	}

	executions, err := h.dispatcher.Dispatch(c.Context(), req.TriggerType, req.Payload, req.TriggeredBy)
	if err != nil && len(executions) == 0 {
		return internalError(c, err)
	}

	response := DispatchEventResponse{
		Executions: executions,
		Count:      len(executions),
	}

	if err != nil {
		h.logger.WarnContext(c.Context(), "event dispatched with errors", "trigger_type", req.TriggerType, "error", err)
		response.Error = err.Error()
	}

	return c.JSON(response)
}
