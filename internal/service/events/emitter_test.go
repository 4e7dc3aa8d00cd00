package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
	"github.com/vladislavdragonenkov/caffe/internal/storage/memory"
)

type failingTimeline struct{}

func (failingTimeline) Append(context.Context, domain.TimelineEvent) error {
	return errors.New("timeline down")
}

func (failingTimeline) List(context.Context, string) ([]domain.TimelineEvent, error) {
	return nil, nil
}

func TestEmitter_OrderEvent(t *testing.T) {
	ctx := context.Background()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	emitter := NewEmitter(outbox, timeline, nil, nil)

	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	order := domain.Order{ID: "order-1", UserID: "user-1", Status: domain.OrderStatusCancelled, UpdatedAt: updated}

	emitter.OrderEvent(ctx, order, domain.EventOrderCanceled, "changed my mind", nil)

	pending := outbox.AllPending()
	require.Len(t, pending, 1)
	require.Equal(t, domain.AggregateOrder, pending[0].AggregateType)
	require.Equal(t, "order-1", pending[0].AggregateID)
	require.Equal(t, string(domain.EventOrderCanceled), pending[0].EventType)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	require.Equal(t, "order-1", payload["order_id"])
	require.Equal(t, "CANCELLED", payload["status"])
	require.Equal(t, "changed my mind", payload["reason"])

	events, err := timeline.List(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, string(domain.EventOrderCanceled), events[0].Type)
	require.Equal(t, "changed my mind", events[0].Reason)
	require.Equal(t, domain.OrderStatusCancelled, events[0].Status)
	require.True(t, events[0].Occurred.Equal(updated))
}

func TestEmitter_TimelineFailureDoesNotDropOutbox(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	emitter := NewEmitter(outbox, failingTimeline{}, nil, nil)

	emitter.OrderEvent(context.Background(), domain.Order{ID: "order-2"}, domain.EventOrderCreated, "", nil)

	require.Len(t, outbox.AllPending(), 1)
}

func TestEmitter_StockDeducted(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	emitter := NewEmitter(outbox, nil, nil, nil)

	stock := domain.IngredientStock{ID: "stock-1", Name: "Flour", Available: 50, Unit: "g"}
	emitter.StockDeducted(context.Background(), stock, 200, "dish-1")

	pending := outbox.AllPending()
	require.Len(t, pending, 1)
	require.Equal(t, domain.AggregateStock, pending[0].AggregateType)
	require.Equal(t, "stock-1", pending[0].AggregateID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	require.Equal(t, float64(200), payload["amount"])
	require.Equal(t, float64(50), payload["available"])
	require.Equal(t, "dish-1", payload["dish_id"])
}
