package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/erp/salesync/internal/domain/shared"
)

type testEvent struct {
	shared.BaseDomainEvent
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New())}
}

type testHandler struct {
	eventTypes []string
	err        error
	panicWith  any

	mu      sync.Mutex
	handled []shared.DomainEvent
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(_ context.Context, evt shared.DomainEvent) error {
	h.mu.Lock()
	h.handled = append(h.handled, evt)
	h.mu.Unlock()
	if h.panicWith != nil {
		panic(h.panicWith)
	}
	return h.err
}

func (h *testHandler) EventTypes() []string { return h.eventTypes }

func (h *testHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	posted := newTestHandler("InvoicePosted")
	settled := newTestHandler("PaymentSettled")
	bus.Subscribe(posted)
	bus.Subscribe(settled)

	evt := newTestEvent("InvoicePosted")
	require.NoError(t, bus.Publish(context.Background(), evt, newTestEvent("Unrelated")))

	assert.Equal(t, 1, posted.count())
	assert.Same(t, evt, posted.handled[0])
	assert.Zero(t, settled.count())
}

func TestInMemoryEventBus_ExplicitTypesOverrideDeclared(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newTestHandler("InvoicePosted")
	bus.Subscribe(h, "PaymentSettled")

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("InvoicePosted")))
	assert.Zero(t, h.count())
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("PaymentSettled")))
	assert.Equal(t, 1, h.count())
}

func TestInMemoryEventBus_FailuresAreJoinedAndDeliveryContinues(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	bus := NewInMemoryEventBus(zap.New(core))

	boom := errors.New("boom")
	failing := newTestHandler("InvoicePosted")
	failing.err = boom
	panicking := newTestHandler("InvoicePosted")
	panicking.panicWith = "nil map"
	healthy := newTestHandler("InvoicePosted")
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), newTestEvent("InvoicePosted"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "handler panic: nil map")

	var herr *HandlerError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "InvoicePosted", herr.EventType)
	assert.Equal(t, "*event.testHandler", herr.Handler)

	assert.Equal(t, 1, healthy.count(), "later handlers still run")
	assert.Equal(t, 1, logs.FilterMessage("handler panicked").Len())
	assert.Equal(t, 2, logs.FilterMessage("handler failed to process event").Len())
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	h := newTestHandler("InvoicePosted")
	bus.Subscribe(h)
	bus.Unsubscribe(h)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("InvoicePosted")))
	assert.Zero(t, h.count())
}

func TestInMemoryEventBus_StartStop(t *testing.T) {
	ctx := context.Background()
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newTestHandler("InvoicePosted")
	bus.Subscribe(h)

	require.NoError(t, bus.Start(ctx))
	require.NoError(t, bus.Stop(ctx))
	assert.ErrorIs(t, bus.Publish(ctx, newTestEvent("InvoicePosted")), ErrBusStopped)
	assert.Zero(t, h.count())

	require.NoError(t, bus.Start(ctx))
	require.NoError(t, bus.Publish(ctx, newTestEvent("InvoicePosted")))
	assert.Equal(t, 1, h.count())
}
