package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/trellis/pkg/cmd"
	"github.com/dukex/trellis/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger   *slog.Logger
	runtime  *cmd.Runtime
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, runtime *cmd.Runtime) *API {
	return &API{
		logger:   logger,
		runtime:  runtime,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.logger,
		a.runtime.Workflows,
		a.runtime.Executions,
		a.runtime.Dispatcher,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/metrics", adaptor.HTTPHandler(a.runtime.Metrics.Handler()))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Trellis API")
	})

	web.RegisterRoutes(app, handlers)

	return app
}

func (a *API) Start(app *fiber.App, port int) error {
	return app.Listen(":" + strconv.Itoa(port))
}
