package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{db: store.DB()}
}

func (r *cartRepository) GetByUser(ctx context.Context, userID string) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var cart domain.Cart
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, version, created_at, updated_at
		FROM carts
		WHERE user_id = $1
	`, userID).Scan(&cart.ID, &cart.UserID, &cart.Version, &cart.CreatedAt, &cart.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT dish_id, quantity
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY position, dish_id
	`, cart.ID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()

	cart.Items = make([]domain.CartItem, 0)
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.DishID, &item.Quantity); err != nil {
			return domain.Cart{}, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Cart{}, fmt.Errorf("iterate cart items: %w", err)
	}
	return cart, nil
}

// Create вставляет пустую корзину; UNIQUE(user_id) отсекает вторую корзину пользователя.
func (r *cartRepository) Create(ctx context.Context, cart domain.Cart) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO carts (id, user_id, version, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5)
		`, cart.ID, cart.UserID, cart.Version, cart.CreatedAt, cart.UpdatedAt); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrCartAlreadyExists
			}
			if isForeignKeyViolation(err) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("insert cart: %w", err)
		}
		return replaceCartItemsTx(ctx, tx, cart)
	})
}

func (r *cartRepository) Save(ctx context.Context, cart domain.Cart) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return saveCartTx(ctx, tx, cart)
	})
}

// saveCartTx поднимает версию корзины и заменяет строки; общий код для Save и оформления заказа.
func saveCartTx(ctx context.Context, tx *sql.Tx, cart domain.Cart) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE carts
		SET version = version + 1, updated_at = $3
		WHERE id = $1 AND version = $2
	`, cart.ID, cart.Version, cart.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update cart: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := rowExistsTx(ctx, tx, `SELECT 1 FROM carts WHERE id = $1`, cart.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrCartNotFound
		}
		return domain.ErrCartVersionConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cart.ID); err != nil {
		return fmt.Errorf("delete cart items: %w", err)
	}
	return replaceCartItemsTx(ctx, tx, cart)
}

func replaceCartItemsTx(ctx context.Context, tx *sql.Tx, cart domain.Cart) error {
	for i, item := range cart.Items {
		if item.Quantity <= 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cart_items (cart_id, dish_id, quantity, position)
			VALUES ($1,$2,$3,$4)
		`, cart.ID, item.DishID, item.Quantity, i); err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: %s", domain.ErrDishNotFound, item.DishID)
			}
			return fmt.Errorf("insert cart item: %w", err)
		}
	}
	return nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
