package orders

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
	"github.com/vladislavdragonenkov/caffe/internal/metrics"
	"github.com/vladislavdragonenkov/caffe/internal/service/events"
	"github.com/vladislavdragonenkov/caffe/internal/service/retry"
)

const cancelReasonOwner = "canceled by owner"

// StatusMachine переводит заказы по таблице статусов.
type StatusMachine struct {
	orders  domain.OrderRepository
	events  *events.Emitter
	metrics *metrics.CaffeMetrics
	retry   retry.Config
	logger  *log.Entry
	now     func() time.Time
}

// NewStatusMachine создаёт StatusMachine. emitter и m могут быть nil.
func NewStatusMachine(orders domain.OrderRepository, emitter *events.Emitter, m *metrics.CaffeMetrics, logger *log.Entry) *StatusMachine {
	if logger == nil {
		logger = log.New().WithField("component", "order-status")
	}
	return &StatusMachine{
		orders:  orders,
		events:  emitter,
		metrics: m,
		retry:   retry.DefaultConfig(),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Advance переводит заказ в следующий статус. Отмена через Advance недоступна.
func (s *StatusMachine) Advance(ctx context.Context, orderID string, requested domain.OrderStatus) (domain.Order, error) {
	var from domain.OrderStatus
	order, err := s.transition(ctx, orderID, "order.advance", func(order domain.Order) error {
		from = order.Status
		return domain.CheckAdvance(order.Status, requested)
	}, requested)
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.RecordStatusTransition(string(from), string(order.Status))
	if s.events != nil {
		s.events.OrderEvent(ctx, order, domain.EventOrderStatusChanged, "", map[string]any{
			"from": string(from),
			"to":   string(order.Status),
		})
	}
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"from":     from,
		"to":       order.Status,
	}).Info("order status changed")
	return order, nil
}

// Cancel отменяет заказ по запросу владельца. Отменить можно только PENDING.
func (s *StatusMachine) Cancel(ctx context.Context, orderID, requesterEmail string) (domain.Order, error) {
	order, err := s.transition(ctx, orderID, "order.cancel", func(order domain.Order) error {
		if !order.OwnedBy(requesterEmail) {
			return domain.ErrNotOrderOwner
		}
		return domain.CheckCancel(order.Status)
	}, domain.OrderStatusCancelled)
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.RecordStatusTransition(string(domain.OrderStatusPending), string(domain.OrderStatusCancelled))
	s.metrics.RecordOrderCanceled()
	if s.events != nil {
		s.events.OrderEvent(ctx, order, domain.EventOrderCanceled, cancelReasonOwner, nil)
	}
	s.logger.WithField("order_id", order.ID).Info("order canceled")
	return order, nil
}

// transition загружает заказ, проверяет правило и сохраняет новый статус.
// При конфликте версий заказ перечитывается и правило проверяется заново.
func (s *StatusMachine) transition(
	ctx context.Context,
	orderID, operation string,
	check func(domain.Order) error,
	target domain.OrderStatus,
) (domain.Order, error) {
	var result domain.Order
	err := retry.OnVersionConflict(ctx, s.retry, s.logger, operation, func(attempt int) error {
		order, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if err := check(order); err != nil {
			return err
		}

		order.Status = target
		order.UpdatedAt = s.now()
		if err := s.orders.Save(ctx, order); err != nil {
			if domain.IsVersionConflict(err) {
				s.metrics.RecordVersionConflict("order")
			}
			return err
		}
		order.Version++
		result = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}
