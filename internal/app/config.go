package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	// EnvPrefix — префикс переменных окружения; вложенность через "__",
	// например CAFFE_STORAGE__DRIVER=postgres.
	EnvPrefix = "CAFFE_"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTP        HTTPConfig        `koanf:"http"`
	Log         LogConfig         `koanf:"log"`
	Storage     StorageConfig     `koanf:"storage"`
	Redis       RedisConfig       `koanf:"redis"`
	Kafka       KafkaConfig       `koanf:"kafka"`
	Outbox      OutboxConfig      `koanf:"outbox"`
	Idempotency IdempotencyConfig `koanf:"idempotency"`
	Auth        AuthConfig        `koanf:"auth"`
	CORS        CORSConfig        `koanf:"cors"`
	Seed        SeedConfig        `koanf:"seed"`
}

type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// File — путь к файлу с ротацией; пусто — только stdout.
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
}

type StorageConfig struct {
	Driver      string `koanf:"driver"`
	PostgresDSN string `koanf:"postgres_dsn"`
	AutoMigrate bool   `koanf:"auto_migrate"`
	// Нули в пуле — значения по умолчанию пакета postgres.
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// RedisConfig — хранилище ключей идемпотентности; пустой addr оставляет их в основном хранилище.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// KafkaConfig — публикация outbox; без brokers outbox worker не запускается.
type KafkaConfig struct {
	Brokers     []string `koanf:"brokers"`
	ClientID    string   `koanf:"client_id"`
	OrderTopic  string   `koanf:"order_topic"`
	StockTopic  string   `koanf:"stock_topic"`
	DLQTopic    string   `koanf:"dlq_topic"`
	DLQDisabled bool     `koanf:"dlq_disabled"`
	// Compression: none, gzip, snappy, lz4, zstd.
	Compression string        `koanf:"compression"`
	SendTimeout time.Duration `koanf:"send_timeout"`
}

type OutboxConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`
	BatchSize    int           `koanf:"batch_size"`
	MaxAttempts  int           `koanf:"max_attempts"`
	RetryDelay   time.Duration `koanf:"retry_delay"`
	// StaleAfter — возраст pending-события, после которого /healthz показывает degraded.
	StaleAfter time.Duration `koanf:"stale_after"`
}

type IdempotencyConfig struct {
	TTL             time.Duration `koanf:"ttl"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	CleanupBatch    int           `koanf:"cleanup_batch"`
}

type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
	Issuer    string `koanf:"issuer"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// SeedConfig — пользователи, создаваемые при старте для локального запуска.
type SeedConfig struct {
	Users []SeedUser `koanf:"users"`
}

type SeedUser struct {
	Email    string `koanf:"email"`
	Username string `koanf:"username"`
	Role     string `koanf:"role"`
}

// DefaultConfig возвращает настройки для локального запуска на in-memory хранилище.
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			RequestTimeout:  3 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Storage: StorageConfig{
			Driver:      StorageDriverMemory,
			AutoMigrate: true,
		},
		Kafka: KafkaConfig{
			ClientID:    "caffe-service",
			OrderTopic:  "caffe.order.events",
			StockTopic:  "caffe.stock.events",
			DLQTopic:    "caffe.dlq",
			Compression: "snappy",
			SendTimeout: 5 * time.Second,
		},
		Outbox: OutboxConfig{
			PollInterval: time.Second,
			BatchSize:    100,
			MaxAttempts:  3,
			RetryDelay:   50 * time.Millisecond,
			StaleAfter:   5 * time.Minute,
		},
		Idempotency: IdempotencyConfig{
			TTL:             24 * time.Hour,
			CleanupInterval: time.Minute,
			CleanupBatch:    500,
		},
		Auth: AuthConfig{
			Issuer: "caffe-auth",
		},
	}
}

// LoadConfig накладывает на DefaultConfig YAML-файл (если path не пуст) и переменные окружения.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load env overlay: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	s = strings.ReplaceAll(s, "__", ".")
	return strings.ToLower(s)
}

func (c *Config) normalize() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Kafka.Brokers = splitList(c.Kafka.Brokers)
	c.CORS.AllowedOrigins = splitList(c.CORS.AllowedOrigins)
}

// splitList убирает пробелы и пустые элементы; "a, b" из env тоже поддерживается.
func splitList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
	}
	return result
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}

	switch c.Storage.Driver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for postgres driver"))
		}
		if c.Storage.MaxOpenConns < 0 || c.Storage.MaxIdleConns < 0 || c.Storage.ConnMaxLifetime < 0 {
			errs = append(errs, errors.New("storage pool settings must be >= 0"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver))
	}

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}

	if _, err := kafkaProducerConfig(c.Kafka).SaramaConfig(); err != nil {
		errs = append(errs, fmt.Errorf("kafka: %w", err))
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unsupported log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
