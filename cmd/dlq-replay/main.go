package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
	"github.com/vladislavdragonenkov/caffe/internal/messaging/kafka"
)

const (
	envKafkaBrokers = "CAFFE_KAFKA__BROKERS"
	replayClientID  = "caffe-dlq-replay"

	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

// config — параметры одного запуска. По умолчанию запуск холостой (dry-run).
type config struct {
	brokers     []string
	sourceTopic string
	topics      kafka.Topics

	aggregate   string
	limit       int
	fromNewest  bool
	idleTimeout time.Duration

	execute bool
}

func (c config) validate() error {
	switch {
	case len(c.brokers) == 0:
		return fmt.Errorf("kafka brokers are required (-brokers or %s)", envKafkaBrokers)
	case strings.TrimSpace(c.sourceTopic) == "":
		return errors.New("source-topic is required")
	case strings.TrimSpace(c.topics.Orders) == "" || strings.TrimSpace(c.topics.Stock) == "":
		return errors.New("order-topic and stock-topic are required")
	case c.aggregate != "" && c.aggregate != domain.AggregateOrder && c.aggregate != domain.AggregateStock:
		return fmt.Errorf("unsupported aggregate %q", c.aggregate)
	case c.limit <= 0:
		return fmt.Errorf("limit must be > 0, got %d", c.limit)
	case c.idleTimeout <= 0:
		return fmt.Errorf("idle-timeout must be > 0, got %s", c.idleTimeout)
	}
	return nil
}

// kafkaSession держит соединения одного запуска; producer есть только при -execute.
type kafkaSession struct {
	offsets  offsetClient
	source   partitionConsumerSource
	producer sarama.SyncProducer
}

func (s *kafkaSession) Close() {
	if s.source != nil {
		_ = s.source.Close()
	}
	if s.offsets != nil {
		_ = s.offsets.Close()
	}
}

// connect подменяется в тестах.
var connect = func(cfg config) (*kafkaSession, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to kafka %v: %w", cfg.brokers, err)
	}
	session := &kafkaSession{offsets: client}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("open dlq consumer: %w", err)
	}
	session.source = saramaConsumerAdapter{consumer: consumer}

	if !cfg.execute {
		return session, nil
	}

	producerCfg, err := kafka.ProducerConfig{Brokers: cfg.brokers, ClientID: replayClientID}.SaramaConfig()
	if err == nil {
		session.producer, err = sarama.NewSyncProducer(cfg.brokers, producerCfg)
	}
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("open replay producer: %w", err)
	}
	return session, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		fail("invalid arguments: %v", err)
	}
	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay: %v", err)
	}
}

func readConfig(args []string, lookup func(string) (string, bool)) (config, error) {
	cfg := config{topics: kafka.DefaultTopics()}
	var brokerList string

	flags := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.StringVar(&brokerList, "brokers", "", "comma-separated kafka brokers, "+envKafkaBrokers+" is used when empty")
	flags.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "dead letter topic to read")
	flags.StringVar(&cfg.topics.Orders, "order-topic", cfg.topics.Orders, "target topic for order events")
	flags.StringVar(&cfg.topics.Stock, "stock-topic", cfg.topics.Stock, "target topic for ingredient stock events")
	flags.StringVar(&cfg.aggregate, "aggregate", "", "replay only one aggregate: order or ingredient_stock")
	flags.IntVar(&cfg.limit, "limit", defaultReplayLimit, "upper bound of dlq messages read in one run")
	flags.BoolVar(&cfg.fromNewest, "from-newest", false, "read the tail of each partition instead of the head")
	flags.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this much silence")
	flags.BoolVar(&cfg.execute, "execute", false, "publish events back; without it only logs what would be sent")
	if err := flags.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokerList) == "" {
		brokerList, _ = lookup(envKafkaBrokers)
	}
	cfg.brokers = parseBrokers(brokerList)
	cfg.aggregate = strings.TrimSpace(cfg.aggregate)
	cfg.topics.DLQ = cfg.sourceTopic

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, addr := range strings.Split(raw, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			brokers = append(brokers, addr)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	logger := log.WithField("component", "dlq-replay")
	logger.WithFields(log.Fields{
		"topic":     cfg.sourceTopic,
		"aggregate": cfg.aggregate,
		"limit":     cfg.limit,
		"execute":   cfg.execute,
		"newest":    cfg.fromNewest,
	}).Info("dlq replay started")

	session, err := connect(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	var publisher domain.OutboxPublisher
	if session.producer != nil {
		producer := kafka.NewProducerFromSync(session.producer, logger)
		defer producer.Close()
		publisher = kafka.NewOutboxPublisher(producer, cfg.topics)
	}

	_, err = newReplayer(cfg, session.offsets, session.source, publisher).Run(ctx)
	return err
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
