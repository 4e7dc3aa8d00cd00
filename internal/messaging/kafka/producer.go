package kafka

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	defaultClientID    = "caffe-service"
	defaultSendTimeout = 5 * time.Second
	defaultSendRetries = 5
)

// ProducerConfig — параметры подключения к брокерам для публикации событий кафе.
type ProducerConfig struct {
	Brokers  []string
	ClientID string
	// Compression: none, gzip, snappy, lz4 или zstd.
	Compression string
	SendTimeout time.Duration
	MaxRetries  int
}

// SaramaConfig собирает настройки idempotent producer: acks=all и
// один in-flight запрос, чтобы события заказа не переставлялись при retry.
func (c ProducerConfig) SaramaConfig() (*sarama.Config, error) {
	codec, err := parseCompression(c.Compression)
	if err != nil {
		return nil, err
	}

	config := sarama.NewConfig()
	config.ClientID = c.ClientID
	if config.ClientID == "" {
		config.ClientID = defaultClientID
	}
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	config.Producer.Return.Successes = true
	config.Producer.Compression = codec

	config.Producer.Retry.Max = c.MaxRetries
	if config.Producer.Retry.Max <= 0 {
		config.Producer.Retry.Max = defaultSendRetries
	}
	config.Producer.Timeout = c.SendTimeout
	if config.Producer.Timeout <= 0 {
		config.Producer.Timeout = defaultSendTimeout
	}
	return config, nil
}

func parseCompression(name string) (sarama.CompressionCodec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "snappy":
		return sarama.CompressionSnappy, nil
	case "none":
		return sarama.CompressionNone, nil
	case "gzip":
		return sarama.CompressionGZIP, nil
	case "lz4":
		return sarama.CompressionLZ4, nil
	case "zstd":
		return sarama.CompressionZSTD, nil
	default:
		return sarama.CompressionNone, fmt.Errorf("unsupported kafka compression %q", name)
	}
}

// Producer отправляет готовые сообщения в Kafka синхронно.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
}

// NewProducer подключается к брокерам.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}
	config, err := cfg.SaramaConfig()
	if err != nil {
		return nil, err
	}

	syncProducer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer to %s: %w", strings.Join(cfg.Brokers, ","), err)
	}
	return NewProducerFromSync(syncProducer, nil), nil
}

// NewProducerFromSync оборачивает готовый sarama.SyncProducer (в тестах mocks).
func NewProducerFromSync(syncProducer sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{sync: syncProducer, logger: logger}
}

// Send публикует value с ключом партиционирования key.
func (p *Producer) Send(topic, key string, value []byte, headers map[string]string) error {
	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(value),
		Timestamp: time.Now().UTC(),
	}
	for name, headerValue := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(name), Value: []byte(headerValue)})
	}

	partition, offset, err := p.sync.SendMessage(msg)
	fields := log.Fields{"topic": topic, "key": key}
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", topic, err)
	}

	fields["partition"] = partition
	fields["offset"] = offset
	p.logger.WithFields(fields).Debug("kafka message sent")
	return nil
}

func (p *Producer) Close() error {
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
