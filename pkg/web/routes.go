package web

import "github.com/gofiber/fiber/v3"

// RegisterRoutes mounts the workflow, execution and event endpoints on router.
func RegisterRoutes(router fiber.Router, handlers *APIHandlers) {
	w := router.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Put("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/enable", handlers.EnableWorkflow)
	w.Post("/:id/disable", handlers.DisableWorkflow)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)

	e := router.Group("/executions")
	e.Get("/", handlers.GetExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)

	router.Post("/events", handlers.DispatchEvent)
	router.Get("/health", handlers.HealthCheck)
}
