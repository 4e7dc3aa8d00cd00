package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в Kafka, выбирая topic по типу агрегата.
type OutboxTopicPublisher struct {
	producer *Producer
	topics   Topics
	// fixedTopic, если задан, используется для всех сообщений (DLQ).
	fixedTopic string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topics Topics) *OutboxTopicPublisher {
	return &OutboxTopicPublisher{
		producer: producer,
		topics:   topics.withDefaults(),
	}
}

// NewDLQPublisher создаёт паблишер, отправляющий все сообщения в DLQ topic.
func NewDLQPublisher(producer *Producer, topics Topics) *OutboxTopicPublisher {
	topics = topics.withDefaults()
	return &OutboxTopicPublisher{
		producer:   producer,
		topics:     topics,
		fixedTopic: topics.DLQ,
	}
}

// Publish отправляет сообщение; ключом партиционирования служит идентификатор агрегата,
// так что события одного заказа сохраняют порядок.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	topic := p.fixedTopic
	if topic == "" {
		topic = p.topics.ForAggregate(event.AggregateType)
	}

	headers := map[string]string{
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
		HeaderOutboxID:      event.ID,
	}
	value, err := json.Marshal(NewEnvelope(event))
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", event.EventType, err)
	}
	return p.producer.Send(topic, key, value, headers)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
