package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
	"github.com/vladislavdragonenkov/caffe/internal/health"
	"github.com/vladislavdragonenkov/caffe/internal/storage/memory"
	"github.com/vladislavdragonenkov/caffe/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/caffe/internal/storage/redis"
)

// runtimeDependencies — репозитории выбранного хранилища и функции их закрытия.
type runtimeDependencies struct {
	users           domain.UserRepository
	categories      domain.CategoryRepository
	dishes          domain.DishRepository
	stocks          domain.StockRepository
	carts           domain.CartRepository
	orders          domain.OrderRepository
	checkout        domain.CheckoutRepository
	timeline        domain.TimelineRepository
	outbox          domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository

	// idempotencyExpires — хранилище ключей не удаляет их само и нуждается в sweeper.
	idempotencyExpires bool

	checks  []dependencyCheck
	closers []func() error
}

type dependencyCheck struct {
	name    string
	probe   health.Probe
	options []health.ProbeOption
}

func (d *runtimeDependencies) addCheck(name string, probe health.Probe, options ...health.ProbeOption) {
	d.checks = append(d.checks, dependencyCheck{name: name, probe: probe, options: options})
}

// Close освобождает соединения в обратном порядке открытия.
func (d *runtimeDependencies) Close(logger *log.Entry) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close dependency")
		}
	}
	d.closers = nil
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	var deps *runtimeDependencies

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", StorageDriverMemory:
		deps = memoryDependencies()
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		var err error
		deps, err = postgresDependencies(ctx, cfg.Storage, logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Redis.Addr != "" {
		client, err := redisstore.Connect(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			deps.Close(logger)
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		deps.idempotencyRepo = redisstore.NewIdempotencyRepository(client)
		deps.idempotencyExpires = false
		deps.addCheck("redis", redisstore.Pinger{Client: client}.Ping)
		deps.closers = append(deps.closers, client.Close)
		logger.WithField("addr", cfg.Redis.Addr).Info("idempotency keys are stored in redis")
	}

	return deps, nil
}

func memoryDependencies() *runtimeDependencies {
	carts := memory.NewCartRepository()
	orders := memory.NewOrderRepository()
	return &runtimeDependencies{
		users:              memory.NewUserRepository(),
		categories:         memory.NewCategoryRepository(),
		dishes:             memory.NewDishRepository(memory.WithCartCascade(carts)),
		stocks:             memory.NewStockRepository(),
		carts:              carts,
		orders:             orders,
		checkout:           memory.NewCheckoutRepository(carts, orders),
		timeline:           memory.NewTimelineRepository(),
		outbox:             memory.NewOutboxRepository(),
		idempotencyRepo:    memory.NewIdempotencyRepository(),
		idempotencyExpires: true,
	}
}

func postgresDependencies(ctx context.Context, cfg StorageConfig, logger *log.Entry) (*runtimeDependencies, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	store, err := postgres.OpenWithPool(ctx, cfg.PostgresDSN, postgres.PoolConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate postgres schema: %w", err)
		}
		logger.Info("postgres schema is up to date")
	}

	deps := &runtimeDependencies{
		users:              postgres.NewUserRepository(store),
		categories:         postgres.NewCategoryRepository(store),
		dishes:             postgres.NewDishRepository(store),
		stocks:             postgres.NewStockRepository(store),
		carts:              postgres.NewCartRepository(store),
		orders:             postgres.NewOrderRepository(store),
		checkout:           postgres.NewCheckoutRepository(store),
		timeline:           postgres.NewTimelineRepository(store),
		outbox:             postgres.NewOutboxRepository(store),
		idempotencyRepo:    postgres.NewIdempotencyRepository(store),
		idempotencyExpires: true,
		closers:            []func() error{store.Close},
	}
	deps.addCheck("postgres", store.Ping)
	logger.Info("using postgres storage")
	return deps, nil
}

// seedUsers создаёт пользователей из конфигурации; существующие пропускаются.
func seedUsers(ctx context.Context, users domain.UserRepository, seed []SeedUser, logger *log.Entry) error {
	for _, item := range seed {
		role := domain.Role(strings.ToUpper(strings.TrimSpace(item.Role)))
		if role == "" {
			role = domain.RoleUser
		}
		if !role.Valid() {
			return fmt.Errorf("seed user %s: unknown role %q", item.Email, item.Role)
		}

		email := domain.NormalizeEmail(item.Email)
		if email == "" {
			return fmt.Errorf("seed user: email is required")
		}

		err := users.Create(ctx, domain.User{
			ID:        uuid.NewString(),
			Email:     email,
			Username:  item.Username,
			Role:      role,
			CreatedAt: time.Now().UTC(),
		})
		switch {
		case err == nil:
			logger.WithFields(log.Fields{"email": email, "role": role}).Info("seed user created")
		case errors.Is(err, domain.ErrUserAlreadyExists):
		default:
			return fmt.Errorf("seed user %s: %w", email, err)
		}
	}
	return nil
}
