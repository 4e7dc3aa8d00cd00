package main

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
	"github.com/vladislavdragonenkov/caffe/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/caffe/internal/service/outbox"
)

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

// saramaConsumerAdapter сужает sarama.PartitionConsumer до partitionConsumer.
type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return a.consumer.ConsumePartition(topic, partition, offset)
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

// window — полуинтервал offset'ов [start, end), который читается из партиции.
type window struct {
	start int64
	end   int64
}

// replayer читает DLQ topic партиция за партицией и переотправляет исходные события.
type replayer struct {
	cfg       config
	offsets   offsetClient
	source    partitionConsumerSource
	publisher domain.OutboxPublisher
}

func newReplayer(cfg config, offsets offsetClient, source partitionConsumerSource, publisher domain.OutboxPublisher) *replayer {
	return &replayer{cfg: cfg, offsets: offsets, source: source, publisher: publisher}
}

// Run обходит партиции по возрастанию номера, пока не наберёт cfg.limit сообщений.
func (r *replayer) Run(ctx context.Context) (replayStats, error) {
	var total replayStats
	switch {
	case r.offsets == nil || r.source == nil:
		return total, fmt.Errorf("kafka client and consumer are required")
	case r.cfg.execute && r.publisher == nil:
		return total, fmt.Errorf("publisher is required in execute mode")
	}

	partitions, err := r.offsets.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("list partitions of %s: %w", r.cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", r.cfg.sourceTopic).Warn("dlq topic has no partitions")
		return total, nil
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		budget := r.cfg.limit - total.processed
		if budget <= 0 {
			break
		}
		stats, err := r.scan(ctx, partition, budget)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	log.WithFields(log.Fields{
		"execute":   r.cfg.execute,
		"processed": total.processed,
		"replayed":  total.replayed,
		"skipped":   total.skipped,
	}).Info("dlq replay finished")
	return total, nil
}

// window вычисляет диапазон чтения; с fromNewest берутся последние budget сообщений.
func (r *replayer) window(partition int32, budget int) (window, error) {
	oldest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return window{}, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return window{}, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}

	w := window{start: oldest, end: newest}
	if r.cfg.fromNewest {
		w.start = max(newest-int64(budget), oldest)
	}
	return w, nil
}

// scan читает одну партицию до конца окна, исчерпания budget или паузы дольше idleTimeout.
func (r *replayer) scan(ctx context.Context, partition int32, budget int) (replayStats, error) {
	var stats replayStats

	w, err := r.window(partition, budget)
	if err != nil || w.end <= w.start {
		return stats, err
	}

	pc, err := r.source.ConsumePartition(r.cfg.sourceTopic, partition, w.start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < budget {
		var msg *sarama.ConsumerMessage
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d: %w", partition, cerr)
			}
			continue
		case m, ok := <-pc.Messages():
			if !ok || m == nil || m.Offset >= w.end {
				return stats, nil
			}
			msg = m
		}
		idle.Reset(r.cfg.idleTimeout)

		stats.processed++
		replayed, err := r.handle(msg)
		if err != nil {
			return stats, err
		}
		if replayed {
			stats.replayed++
		} else {
			stats.skipped++
		}

		if msg.Offset+1 >= w.end {
			break
		}
	}
	return stats, nil
}

// handle возвращает false для записей, которые не являются DLQ-конвертом или
// не проходят фильтр по агрегату.
func (r *replayer) handle(msg *sarama.ConsumerMessage) (bool, error) {
	logger := log.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	event, ok, err := decodeDeadLetter(msg.Value)
	if err != nil {
		logger.WithError(err).Warn("skip malformed dlq message")
	}
	if !ok || (r.cfg.aggregate != "" && event.AggregateType != r.cfg.aggregate) {
		return false, nil
	}

	if !r.cfg.execute {
		logger.WithFields(log.Fields{
			"target_topic": r.cfg.topics.ForAggregate(event.AggregateType),
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID,
		}).Info("dlq replay candidate")
		return true, nil
	}
	if err := r.publisher.Publish(event); err != nil {
		return false, fmt.Errorf("republish %s: %w", event.ID, err)
	}
	return true, nil
}

// decodeDeadLetter восстанавливает исходное outbox-сообщение из DLQ-конверта.
// ok=false без ошибки: сообщение вообще не похоже на DLQ-запись.
func decodeDeadLetter(value []byte) (domain.OutboxMessage, bool, error) {
	var envelope kafka.Envelope
	if err := json.Unmarshal(value, &envelope); err != nil || len(envelope.Payload) == 0 {
		return domain.OutboxMessage{}, false, nil
	}

	var letter outbox.DeadLetter
	if err := json.Unmarshal(envelope.Payload, &letter); err != nil {
		return domain.OutboxMessage{}, false, fmt.Errorf("decode dead letter: %w", err)
	}
	event, err := letter.Event()
	if err != nil {
		return domain.OutboxMessage{}, false, err
	}

	// старые записи могли не нести метаданные внутри DeadLetter
	event.ID = firstNonEmpty(event.ID, envelope.ID)
	event.AggregateType = firstNonEmpty(event.AggregateType, envelope.AggregateType)
	event.AggregateID = firstNonEmpty(event.AggregateID, envelope.AggregateID)
	event.EventType = firstNonEmpty(event.EventType, envelope.EventType)
	return event, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
