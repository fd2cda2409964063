package eventbus_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/trellis/pkg/channels/gochannel"
	"github.com/dukex/trellis/pkg/eventbus"
	"github.com/dukex/trellis/pkg/events"
	"github.com/dukex/trellis/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_DeliversDomainEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newBus(t)
	received := make(chan *events.DomainEvent, 1)

	require.NoError(t, bus.Handle(events.DomainEventReceived, func(_ context.Context, event any) error {
		received <- event.(*events.DomainEvent)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	event := events.NewDomainEvent(models.TriggerClientCreated, map[string]any{"client_id": "c1"}, "user-1")
	require.NoError(t, bus.Publish(ctx, "c1", event))

	select {
	case got := <-received:
		assert.Equal(t, models.TriggerClientCreated, got.TriggerType)
		assert.Equal(t, "c1", got.Payload["client_id"])
		assert.Equal(t, "user-1", got.TriggeredBy)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_ExecutionEventsKeepType(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newBus(t)
	received := make(chan *events.ExecutionEvent, 1)

	require.NoError(t, bus.Handle(events.ExecutionFailedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.ExecutionEvent)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	execution := &models.WorkflowExecution{
		ID:         "e1",
		WorkflowID: "w1",
		Status:     models.ExecutionStatusFailed,
		StartedAt:  time.Now().UTC(),
		Error:      "boom",
	}
	require.NoError(t, bus.Publish(ctx, "e1", events.NewExecutionEvent(events.ExecutionFailedEvent, execution, time.Now().UTC())))

	select {
	case got := <-received:
		assert.Equal(t, events.ExecutionFailedEvent, got.GetType())
		assert.Equal(t, "boom", got.Error)
		assert.Equal(t, "w1", got.WorkflowID)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := eventbus.Decode("nope", []byte(`{}`))
	assert.ErrorIs(t, err, eventbus.ErrUnknownEventType)
}

func TestTopicRouting(t *testing.T) {
	assert.Equal(t, events.DomainTopic, events.Topic(events.DomainEventReceived))
	assert.Equal(t, events.ExecutionTopic, events.Topic(events.ExecutionWaitingEvent))
	assert.Equal(t, events.CommandTopic, events.Topic(events.SendEmailCommand))
}
