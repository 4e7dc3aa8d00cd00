// Package cart управляет корзиной пользователя: одна корзина на пользователя,
// одна строка на блюдо.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
	"github.com/vladislavdragonenkov/caffe/internal/metrics"
	"github.com/vladislavdragonenkov/caffe/internal/service/retry"
)

// Manager реализует операции корзины поверх репозиториев.
type Manager struct {
	users   domain.UserRepository
	dishes  domain.DishRepository
	carts   domain.CartRepository
	retry   retry.Config
	metrics *metrics.CaffeMetrics
	logger  *log.Entry
	now     func() time.Time
}

// Option настраивает Manager.
type Option func(*Manager)

func WithMetrics(m *metrics.CaffeMetrics) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

func WithLogger(logger *log.Entry) Option {
	return func(mgr *Manager) {
		if logger != nil {
			mgr.logger = logger
		}
	}
}

// WithRetryConfig переопределяет повтор при конфликте версий корзины.
func WithRetryConfig(cfg retry.Config) Option {
	return func(mgr *Manager) {
		mgr.retry = cfg
	}
}

// NewManager создаёт Manager.
func NewManager(users domain.UserRepository, dishes domain.DishRepository, carts domain.CartRepository, opts ...Option) *Manager {
	mgr := &Manager{
		users:  users,
		dishes: dishes,
		carts:  carts,
		retry:  retry.DefaultConfig(),
		logger: log.New().WithField("component", "cart-manager"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr
}

// GetOrCreate возвращает корзину пользователя, создавая пустую при первом обращении.
func (m *Manager) GetOrCreate(ctx context.Context, email string) (domain.Cart, error) {
	user, err := m.users.GetByEmail(ctx, email)
	if err != nil {
		return domain.Cart{}, err
	}
	return m.cartFor(ctx, user.ID)
}

// AddItem добавляет блюдо в корзину или увеличивает количество существующей строки.
func (m *Manager) AddItem(ctx context.Context, email, dishID string, quantity int) (domain.Cart, error) {
	if _, err := m.GetOrCreate(ctx, email); err != nil {
		return domain.Cart{}, err
	}
	if _, err := m.dishes.Get(ctx, dishID); err != nil {
		return domain.Cart{}, err
	}
	return m.mutate(ctx, email, "add", func(c *domain.Cart) bool {
		c.AddItem(dishID, quantity)
		return true
	})
}

// SetItemQuantity перезаписывает количество блюда. Если блюда в корзине нет,
// корзина возвращается без изменений; количество <= 0 удаляет строку.
func (m *Manager) SetItemQuantity(ctx context.Context, email, dishID string, quantity int) (domain.Cart, error) {
	return m.mutate(ctx, email, "update", func(c *domain.Cart) bool {
		return c.SetItemQuantity(dishID, quantity)
	})
}

// RemoveItem удаляет блюдо из корзины.
func (m *Manager) RemoveItem(ctx context.Context, email, dishID string) (domain.Cart, error) {
	return m.mutate(ctx, email, "remove", func(c *domain.Cart) bool {
		return c.RemoveItem(dishID)
	})
}

// Clear удаляет все строки корзины.
func (m *Manager) Clear(ctx context.Context, email string) (domain.Cart, error) {
	return m.mutate(ctx, email, "clear", func(c *domain.Cart) bool {
		if c.IsEmpty() {
			return false
		}
		c.Clear()
		return true
	})
}

// mutate применяет изменение к свежей копии корзины и сохраняет её.
// При конфликте версий изменение применяется заново к перечитанной корзине.
// apply возвращает false, если корзина не изменилась и сохранять нечего.
func (m *Manager) mutate(ctx context.Context, email, op string, apply func(*domain.Cart) bool) (domain.Cart, error) {
	user, err := m.users.GetByEmail(ctx, email)
	if err != nil {
		return domain.Cart{}, err
	}

	var result domain.Cart
	err = retry.OnVersionConflict(ctx, m.retry, m.logger, "cart."+op, func(attempt int) error {
		current, err := m.cartFor(ctx, user.ID)
		if err != nil {
			return err
		}

		next := current.Clone()
		if !apply(&next) {
			result = current
			return nil
		}
		next.UpdatedAt = m.now()

		if err := m.carts.Save(ctx, next); err != nil {
			if domain.IsVersionConflict(err) {
				m.metrics.RecordVersionConflict("cart")
			}
			return err
		}
		next.Version++
		result = next
		return nil
	})
	if err != nil {
		return domain.Cart{}, fmt.Errorf("cart %s: %w", op, err)
	}

	m.metrics.RecordCartMutation(op)
	return result, nil
}

// cartFor читает корзину пользователя или создаёт пустую. Если корзину параллельно
// создал другой запрос (уникальность user_id), возвращается уже сохранённая.
func (m *Manager) cartFor(ctx context.Context, userID string) (domain.Cart, error) {
	existing, err := m.carts.GetByUser(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrCartNotFound) {
		return domain.Cart{}, fmt.Errorf("load cart: %w", err)
	}

	fresh := domain.NewCart(uuid.NewString(), userID, m.now())
	if err := m.carts.Create(ctx, fresh); err != nil {
		if errors.Is(err, domain.ErrCartAlreadyExists) {
			return m.carts.GetByUser(ctx, userID)
		}
		return domain.Cart{}, fmt.Errorf("create cart: %w", err)
	}

	m.logger.WithField("user_id", userID).Debug("cart created")
	return fresh, nil
}
