package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/trellis/pkg/actions"
	"github.com/dukex/trellis/pkg/eventbus"
	"github.com/dukex/trellis/pkg/events"
	"github.com/dukex/trellis/pkg/metrics"
	"github.com/dukex/trellis/pkg/outbox"
	"github.com/dukex/trellis/pkg/persistence"
	"github.com/dukex/trellis/pkg/scheduler"
	"github.com/dukex/trellis/pkg/services"
	"github.com/dukex/trellis/pkg/webhook"
	"github.com/dukex/trellis/pkg/workflow"
	"go.opentelemetry.io/otel/trace"
)

// RuntimeConfig tunes the engine built by NewRuntime.
type RuntimeConfig struct {
	ActionTimeout  time.Duration
	PollInterval   time.Duration
	SimulateDelays bool
	Tracer         trace.Tracer // optional
}

// Runtime is the fully wired engine: ports, executor, engine, dispatcher,
// scheduler and the services on top of them.
type Runtime struct {
	Persistence persistence.Persistence
	EventBus    eventbus.EventBus
	Metrics     *metrics.Collector
	Scheduler   *scheduler.Scheduler
	Engine      *workflow.Engine
	Dispatcher  *workflow.Dispatcher
	Workflows   *services.Workflow
	Executions  *services.Execution

	handler *workflow.SchedulerHandler
	logger  *slog.Logger
}

// NewRuntime wires the engine over store and bus. Notification, communication
// and record effects leave through the bus as commands; webhooks are sent
// directly.
func NewRuntime(
	logger *slog.Logger,
	store persistence.Persistence,
	schedulerStore persistence.SchedulerRepository,
	bus eventbus.EventBus,
	config RuntimeConfig,
) *Runtime {
	collector := metrics.NewCollector()
	sched := scheduler.New(logger, schedulerStore,
		scheduler.WithInterval(config.PollInterval),
		scheduler.WithMetrics(collector),
	)
	commands := outbox.New(logger, bus)

	executorOpts := []actions.Option{
		actions.WithTimeout(config.ActionTimeout),
		actions.WithMetrics(collector),
	}
	if config.SimulateDelays {
		executorOpts = append(executorOpts, actions.WithSimulatedDelays())
	}

	engineOpts := []workflow.EngineOption{
		workflow.WithScheduler(sched),
		workflow.WithPublisher(bus),
		workflow.WithEngineMetrics(collector),
	}

	if config.Tracer != nil {
		executorOpts = append(executorOpts, actions.WithTracer(config.Tracer))
		engineOpts = append(engineOpts, workflow.WithEngineTracer(config.Tracer))
	}

	executor := actions.NewExecutor(logger, actions.Ports{
		Notifications: commands,
		Communication: commands,
		Records:       commands,
		Webhooks:      webhook.NewClient(logger, config.ActionTimeout),
	}, executorOpts...)

	engine := workflow.NewEngine(logger, store, executor, engineOpts...)

	dispatcher := workflow.NewDispatcher(logger, store.WorkflowRepository(), engine,
		workflow.WithDispatcherMetrics(collector),
	)

	handler := workflow.NewSchedulerHandler(engine, dispatcher)
	sched.SetHandler(handler)

	return &Runtime{
		Persistence: store,
		EventBus:    bus,
		Metrics:     collector,
		Scheduler:   sched,
		Engine:      engine,
		Dispatcher:  dispatcher,
		Workflows:   services.NewWorkflow(logger, store, sched),
		Executions:  services.NewExecution(logger, store, sched, bus),
		handler:     handler,
		logger:      logger.With("module", "runtime"),
	}
}

// SubscribeDomainEvents dispatches every domain event received on the bus.
// A dispatch that ran no workflow because of a storage failure is nacked so
// the event is redelivered.
func (r *Runtime) SubscribeDomainEvents(ctx context.Context) error {
	err := r.EventBus.Handle(events.DomainEventReceived, func(ctx context.Context, event any) error {
		domainEvent, ok := event.(*events.DomainEvent)
		if !ok {
			return nil
		}

		executions, err := r.Dispatcher.Dispatch(ctx, domainEvent.TriggerType, domainEvent.Payload, domainEvent.TriggeredBy)
		if err != nil {
			r.logger.WarnContext(ctx, "domain event dispatched with errors",
				"event_id", domainEvent.ID,
				"trigger_type", domainEvent.TriggerType,
				"executions", len(executions),
				"error", err,
			)

			if len(executions) == 0 {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	return r.EventBus.Subscribe(ctx)
}

// Start picks up executions a previous process left running, reconciles cron
// schedules with the stored workflows and starts the scheduler poller.
func (r *Runtime) Start(ctx context.Context) error {
	recovered, err := r.Engine.Recover(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to recover interrupted executions", "error", err)
	}

	if recovered > 0 {
		r.logger.InfoContext(ctx, "recovered interrupted executions", "count", recovered)
	}

	enabled := true

	workflows, err := r.Persistence.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{Enabled: &enabled})
	if err != nil {
		return err
	}

	if err := r.Scheduler.Sync(ctx, workflows); err != nil {
		return err
	}

	return r.Scheduler.Start(ctx, r.handler)
}

func (r *Runtime) Stop(ctx context.Context) error {
	return r.Scheduler.Stop(ctx)
}
