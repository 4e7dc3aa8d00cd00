package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/caffe/internal/messaging/kafka"
)

func kafkaProducerConfig(cfg KafkaConfig) kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:     splitList(cfg.Brokers),
		ClientID:    cfg.ClientID,
		Compression: cfg.Compression,
		SendTimeout: cfg.SendTimeout,
	}
}

func kafkaTopics(cfg KafkaConfig) kafka.Topics {
	return kafka.Topics{
		Orders: cfg.OrderTopic,
		Stock:  cfg.StockTopic,
		DLQ:    cfg.DLQTopic,
	}
}

// connectKafka возвращает nil без ошибки, если brokers не заданы: тогда
// события заказов и склада копятся в outbox до запуска с брокером.
func connectKafka(cfg KafkaConfig, logger *log.Entry) (*kafka.Producer, error) {
	producerCfg := kafkaProducerConfig(cfg)
	if len(producerCfg.Brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(producerCfg)
	if err != nil {
		logger.WithError(err).Warn("kafka is unavailable, outbox keeps events pending")
		return nil, err
	}

	logger.WithFields(log.Fields{
		"brokers":     producerCfg.Brokers,
		"compression": cfg.Compression,
		"orders":      cfg.OrderTopic,
		"stock":       cfg.StockTopic,
	}).Info("kafka producer connected")
	return producer, nil
}

func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
