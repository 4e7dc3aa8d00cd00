package kafka

import (
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_Send(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, log.WithField("component", "kafka-producer-test"))

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Key) != HeaderOutboxID {
			return fmt.Errorf("unexpected headers %v", msg.Headers)
		}
		return nil
	})

	err := producer.Send(TopicOrderEvents, "order-123", []byte(`{"order_id":"order-123"}`), map[string]string{HeaderOutboxID: "outbox-1"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := producer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_Send_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, nil)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	if err := producer.Send(TopicStockEvents, "stock-1", []byte(`{}`), nil); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	if _, err := NewProducer(ProducerConfig{}); err == nil {
		t.Fatal("expected error for empty broker list")
	}
}

func TestNewProducer_RejectsUnknownCompression(t *testing.T) {
	if _, err := NewProducer(ProducerConfig{Brokers: []string{"localhost:9092"}, Compression: "brotli"}); err == nil {
		t.Fatal("expected error for unsupported compression")
	}
}

func TestProducerConfig_SaramaConfig(t *testing.T) {
	config, err := ProducerConfig{}.SaramaConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.ClientID != defaultClientID {
		t.Errorf("unexpected client id %q", config.ClientID)
	}
	if !config.Producer.Idempotent || config.Net.MaxOpenRequests != 1 || config.Producer.RequiredAcks != sarama.WaitForAll {
		t.Error("producer must be idempotent with acks=all and one in-flight request")
	}
	if config.Producer.Compression != sarama.CompressionSnappy {
		t.Errorf("expected snappy by default, got %v", config.Producer.Compression)
	}
	if config.Producer.Retry.Max != defaultSendRetries || config.Producer.Timeout != defaultSendTimeout {
		t.Errorf("unexpected defaults: retries=%d timeout=%s", config.Producer.Retry.Max, config.Producer.Timeout)
	}

	config, err = ProducerConfig{ClientID: "barista", Compression: " ZSTD ", SendTimeout: time.Second, MaxRetries: 2}.SaramaConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.ClientID != "barista" || config.Producer.Compression != sarama.CompressionZSTD {
		t.Errorf("unexpected config: client=%q compression=%v", config.ClientID, config.Producer.Compression)
	}
	if config.Producer.Retry.Max != 2 || config.Producer.Timeout != time.Second {
		t.Errorf("unexpected overrides: retries=%d timeout=%s", config.Producer.Retry.Max, config.Producer.Timeout)
	}
}
