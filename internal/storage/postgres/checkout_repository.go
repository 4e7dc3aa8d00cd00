package postgres

import (
	"context"
	"database/sql"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

type checkoutRepository struct {
	db *sql.DB
}

// NewCheckoutRepository создаёт CheckoutRepository: заказ и очистка корзины в одной транзакции.
func NewCheckoutRepository(store *Store) domain.CheckoutRepository {
	return &checkoutRepository{db: store.DB()}
}

func (r *checkoutRepository) PlaceOrder(ctx context.Context, order domain.Order, cart domain.Cart) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := saveCartTx(ctx, tx, cart); err != nil {
			return err
		}
		return insertOrderTx(ctx, tx, order)
	})
}

var _ domain.CheckoutRepository = (*checkoutRepository)(nil)
