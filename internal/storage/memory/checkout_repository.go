package memory

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

// checkoutRepositoryInMemory оформляет заказ поверх in-memory корзин и заказов.
// Транзакции нет, поэтому при ошибке создания заказа корзина восстанавливается.
type checkoutRepositoryInMemory struct {
	carts  domain.CartRepository
	orders domain.OrderRepository
}

// NewCheckoutRepository создаёт CheckoutRepository над in-memory репозиториями.
func NewCheckoutRepository(carts domain.CartRepository, orders domain.OrderRepository) domain.CheckoutRepository {
	return &checkoutRepositoryInMemory{carts: carts, orders: orders}
}

func (r *checkoutRepositoryInMemory) PlaceOrder(ctx context.Context, order domain.Order, cart domain.Cart) error {
	before, err := r.carts.GetByUser(ctx, cart.UserID)
	if err != nil {
		return err
	}
	if before.Version != cart.Version {
		return domain.ErrCartVersionConflict
	}

	if err := r.carts.Save(ctx, cart); err != nil {
		return err
	}

	if err := r.orders.Create(ctx, order); err != nil {
		// компенсация: возвращаем строки корзины поверх новой версии
		restored := before.Clone()
		restored.Version = before.Version + 1
		if restoreErr := r.carts.Save(ctx, restored); restoreErr != nil {
			return fmt.Errorf("create order: %w (restore cart: %v)", err, restoreErr)
		}
		return fmt.Errorf("create order: %w", err)
	}

	return nil
}

var _ domain.CheckoutRepository = (*checkoutRepositoryInMemory)(nil)
