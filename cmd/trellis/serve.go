package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/trellis/pkg/log"
	"github.com/dukex/trellis/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const shutdownTimeout = 10 * time.Second

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the REST API, the domain event consumer and the scheduler",
		Flags: append(engineFlags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		),
		Action: serve,
	}
}

func serve(ctx context.Context, command *cli.Command) error {
	log.SetupWithFormat(command.String("log-level"), command.String("log-format"))
	logger := log.WithModule("serve")

	ctx, cancel := log.CreateContextWithLogger(ctx, logger)
	defer cancel()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "Initializing Trellis")

	var tracer trace.Tracer

	if command.Bool("otel-enabled") {
		t, shutdown, err := otelhelper.NewTracer(ctx, "trellis")
		if err != nil {
			return err
		}

		tracer = t

		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.ErrorContext(ctx, "Failed to shut down tracer", "error", err)
			}
		}()
	}

	runtime, closeRuntime, err := openRuntime(ctx, command, logger, false, tracer)
	if err != nil {
		return err
	}

	defer func() {
		if err := closeRuntime(context.Background()); err != nil {
			logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
		}
	}()

	if err := runtime.SubscribeDomainEvents(ctx); err != nil {
		return err
	}

	if err := runtime.Start(ctx); err != nil {
		return err
	}

	api := NewAPI(logger, runtime)
	app := api.App()

	listenErr := make(chan error, 1)

	go func() {
		listenErr <- api.Start(app, command.Int("port"))
	}()

	select {
	case err = <-listenErr:
	case <-ctx.Done():
		logger.InfoContext(ctx, "Shutting down")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	return errors.Join(
		err,
		app.ShutdownWithContext(shutdownCtx),
		runtime.Stop(shutdownCtx),
	)
}
