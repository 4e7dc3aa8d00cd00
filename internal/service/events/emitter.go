// Package events раскладывает доменные события в timeline и transactional outbox.
package events

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
	"github.com/vladislavdragonenkov/caffe/internal/metrics"
)

// Emitter записывает события. Ошибки записи только логируются:
// основная операция к этому моменту уже сохранена.
type Emitter struct {
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	metrics  *metrics.CaffeMetrics
	logger   *log.Entry
	now      func() time.Time
}

// NewEmitter создаёт Emitter. timeline и metrics могут быть nil.
func NewEmitter(outbox domain.OutboxRepository, timeline domain.TimelineRepository, m *metrics.CaffeMetrics, logger *log.Entry) *Emitter {
	if logger == nil {
		logger = log.New().WithField("component", "events")
	}
	return &Emitter{
		outbox:   outbox,
		timeline: timeline,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// OrderEvent пишет событие заказа в outbox и в timeline заказа.
// reason попадает в timeline и в payload, если не пустой.
func (e *Emitter) OrderEvent(ctx context.Context, order domain.Order, eventType domain.EventType, reason string, payload map[string]any) {
	occurred := order.UpdatedAt
	if occurred.IsZero() {
		occurred = e.now()
	}

	if payload == nil {
		payload = make(map[string]any)
	}
	payload["order_id"] = order.ID
	payload["user_id"] = order.UserID
	payload["status"] = string(order.Status)
	payload["ts"] = occurred.Format(time.RFC3339Nano)
	if reason != "" {
		payload["reason"] = reason
	}

	e.enqueue(ctx, domain.AggregateOrder, order.ID, eventType, payload)

	if e.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     string(eventType),
		Status:   order.Status,
		Reason:   reason,
		Occurred: occurred,
	}
	if err := e.timeline.Append(ctx, event); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Warn("append timeline event failed")
		return
	}
	e.metrics.RecordTimelineEvent()
}

// StockDeducted пишет в outbox событие о списании со складской позиции.
func (e *Emitter) StockDeducted(ctx context.Context, stock domain.IngredientStock, amount float64, dishID string) {
	payload := map[string]any{
		"stock_id":  stock.ID,
		"name":      stock.Name,
		"unit":      stock.Unit,
		"amount":    amount,
		"available": stock.Available,
		"dish_id":   dishID,
		"ts":        e.now().Format(time.RFC3339Nano),
	}
	e.enqueue(ctx, domain.AggregateStock, stock.ID, domain.EventStockDeducted, payload)
}

func (e *Emitter) enqueue(ctx context.Context, aggregateType, aggregateID string, eventType domain.EventType, payload map[string]any) {
	if e.outbox == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"aggregate_id": aggregateID,
			"event":        eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     string(eventType),
		Payload:       data,
	}
	if _, err := e.outbox.Enqueue(ctx, msg); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"aggregate_id": aggregateID,
			"event":        eventType,
		}).Error("enqueue event failed")
		return
	}
	e.metrics.RecordOutboxEvent(string(eventType))
}
