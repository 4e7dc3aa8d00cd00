package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "caffe.order.events"
	TopicStockEvents     = "caffe.stock.events"
	TopicDeadLetterQueue = "caffe.dlq" // Dead Letter Queue для сообщений, не ушедших после retry
)

// Kafka headers outbox-сообщений
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// Topics задаёт topic для каждого типа агрегата.
type Topics struct {
	Orders string
	Stock  string
	DLQ    string
}

// DefaultTopics возвращает topics по умолчанию.
func DefaultTopics() Topics {
	return Topics{
		Orders: TopicOrderEvents,
		Stock:  TopicStockEvents,
		DLQ:    TopicDeadLetterQueue,
	}
}

// withDefaults подставляет значения по умолчанию вместо пустых.
func (t Topics) withDefaults() Topics {
	defaults := DefaultTopics()
	if t.Orders == "" {
		t.Orders = defaults.Orders
	}
	if t.Stock == "" {
		t.Stock = defaults.Stock
	}
	if t.DLQ == "" {
		t.DLQ = defaults.DLQ
	}
	return t
}

// ForAggregate выбирает topic по типу агрегата outbox-сообщения.
// Неизвестные агрегаты уходят в topic заказов.
func (t Topics) ForAggregate(aggregateType string) string {
	t = t.withDefaults()
	switch aggregateType {
	case domain.AggregateStock:
		return t.Stock
	default:
		return t.Orders
	}
}

// Envelope — формат сообщения в topic: метаданные outbox и исходный payload.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение.
func NewEnvelope(event domain.OutboxMessage) Envelope {
	payload := json.RawMessage(event.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishedAt:   time.Now().UTC(),
	}
}
