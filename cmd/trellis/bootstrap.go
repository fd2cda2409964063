package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/trellis/pkg/cmd"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

// openRuntime builds the engine from the engine flags. The returned close
// function releases the bus, the scheduler store and the persistence in that
// order.
func openRuntime(
	ctx context.Context,
	command *cli.Command,
	logger *slog.Logger,
	simulateDelays bool,
	tracer trace.Tracer,
) (*cmd.Runtime, func(context.Context) error, error) {
	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"), command.Int("history-retention"))
	if err != nil {
		return nil, nil, err
	}

	schedulerStore, err := cmd.NewSchedulerStore(ctx, command.String("scheduler-url"), store)
	if err != nil {
		_ = store.Close(ctx)

		return nil, nil, err
	}

	bus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
	if err != nil {
		_ = schedulerStore.Close()
		_ = store.Close(ctx)

		return nil, nil, err
	}

	runtime := cmd.NewRuntime(logger, store, schedulerStore, bus, cmd.RuntimeConfig{
		ActionTimeout:  command.Duration("action-timeout"),
		PollInterval:   command.Duration("poll-interval"),
		SimulateDelays: simulateDelays,
		Tracer:         tracer,
	})

	closeAll := func(ctx context.Context) error {
		return errors.Join(
			bus.Close(),
			schedulerStore.Close(),
			store.Close(ctx),
		)
	}

	return runtime, closeAll, nil
}
