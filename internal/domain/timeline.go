package domain

import "time"

// EventType задаёт тип доменного события (timeline + outbox).
type EventType string

const (
	EventOrderCreated       EventType = "order.created"
	EventOrderStatusChanged EventType = "order.status_changed"
	EventOrderCanceled      EventType = "order.canceled"
	EventStockDeducted      EventType = "stock.deducted"
)

// Типы агрегатов в outbox; по ним publisher выбирает topic.
const (
	AggregateOrder = "order"
	AggregateStock = "ingredient_stock"
)

// TimelineEvent — запись в истории заказа, которую отдаёт GET /orders/{id}/timeline.
type TimelineEvent struct {
	OrderID string
	Type    string
	// Status — статус заказа сразу после события.
	Status   OrderStatus
	Reason   string
	Occurred time.Time
}

// OutboxMessage — событие, записанное в одной транзакции с изменением агрегата
// и ожидающее публикации в Kafka.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats — размер очереди неотправленных событий и возраст самого старого.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
