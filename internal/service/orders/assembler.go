// Package orders оформляет заказы из корзины и ведёт их по жизненному циклу.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
	"github.com/vladislavdragonenkov/caffe/internal/metrics"
	"github.com/vladislavdragonenkov/caffe/internal/service/events"
	"github.com/vladislavdragonenkov/caffe/internal/service/retry"
)

const defaultListLimit = 0

// Assembler превращает корзину пользователя в заказ.
type Assembler struct {
	users    domain.UserRepository
	carts    domain.CartRepository
	orders   domain.OrderRepository
	checkout domain.CheckoutRepository
	timeline domain.TimelineRepository
	events   *events.Emitter
	metrics  *metrics.CaffeMetrics
	retry    retry.Config
	logger   *log.Entry
	now      func() time.Time
}

// AssemblerDeps — зависимости Assembler. Events, Timeline и Metrics необязательны.
type AssemblerDeps struct {
	Users    domain.UserRepository
	Carts    domain.CartRepository
	Orders   domain.OrderRepository
	Checkout domain.CheckoutRepository
	Timeline domain.TimelineRepository
	Events   *events.Emitter
	Metrics  *metrics.CaffeMetrics
	Retry    *retry.Config
	Logger   *log.Entry
}

// NewAssembler создаёт Assembler.
func NewAssembler(deps AssemblerDeps) *Assembler {
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "order-assembler")
	}
	cfg := retry.DefaultConfig()
	if deps.Retry != nil {
		cfg = *deps.Retry
	}
	return &Assembler{
		users:    deps.Users,
		carts:    deps.Carts,
		orders:   deps.Orders,
		checkout: deps.Checkout,
		timeline: deps.Timeline,
		events:   deps.Events,
		metrics:  deps.Metrics,
		retry:    cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create оформляет заказ из корзины пользователя.
// Заказ и очищенная корзина сохраняются одной операцией; если корзину
// параллельно изменили, оформление повторяется с перечитанной корзиной.
func (a *Assembler) Create(ctx context.Context, email string, details domain.DeliveryDetails) (domain.Order, error) {
	start := time.Now()

	user, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		a.metrics.RecordCheckoutRejected(checkoutRejectReason(err))
		return domain.Order{}, err
	}

	var order domain.Order
	err = retry.OnVersionConflict(ctx, a.retry, a.logger, "order.create", func(attempt int) error {
		var attemptErr error
		order, attemptErr = a.placeOnce(ctx, user, details)
		if domain.IsVersionConflict(attemptErr) {
			a.metrics.RecordVersionConflict("cart")
		}
		return attemptErr
	})
	if err != nil {
		a.metrics.RecordCheckoutRejected(checkoutRejectReason(err))
		return domain.Order{}, err
	}

	a.metrics.RecordOrderCreated(time.Since(start))
	if a.events != nil {
		a.events.OrderEvent(ctx, order, domain.EventOrderCreated, "", map[string]any{
			"items_count":   len(order.Items),
			"delivery_type": string(order.DeliveryType),
		})
	}

	a.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"user_id":  user.ID,
		"items":    len(order.Items),
	}).Info("order created")
	return order, nil
}

func (a *Assembler) placeOnce(ctx context.Context, user domain.User, details domain.DeliveryDetails) (domain.Order, error) {
	cart, err := a.carts.GetByUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, domain.ErrCartNotFound) {
			return domain.Order{}, domain.ErrEmptyCart
		}
		return domain.Order{}, fmt.Errorf("load cart: %w", err)
	}
	if cart.IsEmpty() {
		return domain.Order{}, domain.ErrEmptyCart
	}

	deliveryType, address, err := details.Resolve()
	if err != nil {
		return domain.Order{}, err
	}

	now := a.now()
	items := make([]domain.OrderItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		items = append(items, domain.OrderItem{
			ID:        uuid.NewString(),
			DishID:    line.DishID,
			Quantity:  line.Quantity,
			CreatedAt: now,
		})
	}

	order := domain.Order{
		ID:              uuid.NewString(),
		UserID:          user.ID,
		UserEmail:       domain.NormalizeEmail(user.Email),
		Status:          domain.OrderStatusPending,
		Items:           items,
		PhoneNumber:     details.PhoneNumber,
		DeliveryType:    deliveryType,
		DeliveryAddress: address,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}

	cleared := cart.Clone()
	cleared.Clear()
	cleared.UpdatedAt = now

	if err := a.checkout.PlaceOrder(ctx, order, cleared); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// ListForUser возвращает заказы пользователя, новые первыми.
func (a *Assembler) ListForUser(ctx context.Context, email string) ([]domain.Order, error) {
	user, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return a.orders.ListByUser(ctx, user.ID, defaultListLimit)
}

// ListAll возвращает все заказы (для персонала).
func (a *Assembler) ListAll(ctx context.Context) ([]domain.Order, error) {
	return a.orders.ListAll(ctx, defaultListLimit)
}

// Get возвращает заказ по идентификатору.
func (a *Assembler) Get(ctx context.Context, id string) (domain.Order, error) {
	return a.orders.Get(ctx, id)
}

// Timeline возвращает события жизненного цикла заказа.
func (a *Assembler) Timeline(ctx context.Context, id string) ([]domain.TimelineEvent, error) {
	if _, err := a.orders.Get(ctx, id); err != nil {
		return nil, err
	}
	if a.timeline == nil {
		return []domain.TimelineEvent{}, nil
	}
	return a.timeline.List(ctx, id)
}

func checkoutRejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrMissingPhoneNumber),
		errors.Is(err, domain.ErrIncompleteDeliveryAddress),
		errors.Is(err, domain.ErrMissingPickupPoint),
		errors.Is(err, domain.ErrInvalidDeliveryType):
		return "invalid_delivery"
	case domain.IsVersionConflict(err):
		return "version_conflict"
	default:
		return "internal"
	}
}
