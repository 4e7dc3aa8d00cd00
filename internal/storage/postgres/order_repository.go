package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

const orderColumns = `id, user_id, user_email, status, phone_number, delivery_type, delivery_address, version, created_at, updated_at`

const (
	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, dish_id, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	// Оптимистическая блокировка: строка меняется, только если version совпал.
	updateOrderSQL = `
		UPDATE orders
		SET status = $3, phone_number = $4, delivery_type = $5, delivery_address = $6,
		    updated_at = $7, version = version + 1
		WHERE id = $1 AND version = $2`

	selectOrderItemsSQL = `
		SELECT order_id, id, dish_id, quantity, created_at
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY created_at, id`
)

type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return insertOrderTx(ctx, tx, order)
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.Order{}, domain.ErrOrderNotFound
	case err != nil:
		return domain.Order{}, fmt.Errorf("get order %s: %w", id, err)
	}

	orders := []domain.Order{order}
	if err := r.attachItems(ctx, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	return r.list(ctx, limit, `WHERE user_id = $1`, userID)
}

func (r *orderRepository) ListAll(ctx context.Context, limit int) ([]domain.Order, error) {
	return r.list(ctx, limit, ``)
}

// Save меняет статус и контактные данные, если order.Version совпадает с версией в базе.
// Позиции заказа после оформления не меняются.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, updateOrderSQL,
			order.ID, order.Version,
			string(order.Status), order.PhoneNumber, string(order.DeliveryType), order.DeliveryAddress,
			order.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update order %s: %w", order.ID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("update order %s: %w", order.ID, err)
		} else if n == 1 {
			return nil
		}

		// 0 строк: либо заказа нет, либо его уже изменили
		found, err := rowExistsTx(ctx, tx, `SELECT 1 FROM orders WHERE id = $1`, order.ID)
		switch {
		case err != nil:
			return err
		case found:
			return domain.ErrOrderVersionConflict
		default:
			return domain.ErrOrderNotFound
		}
	})
}

// list отдаёт заказы от новых к старым; limit <= 0 снимает ограничение.
func (r *orderRepository) list(ctx context.Context, limit int, where string, args ...any) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders ` + where + ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		query = fmt.Sprintf("%s LIMIT $%d", query, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("read order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems одним запросом подгружает позиции для всех переданных заказов.
func (r *orderRepository) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	index := make(map[string]int, len(orders))
	ids := make([]string, len(orders))
	for i, order := range orders {
		index[order.ID] = i
		ids[i] = order.ID
	}

	rows, err := r.db.QueryContext(ctx, selectOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ID, &item.DishID, &item.Quantity, &item.CreatedAt); err != nil {
			return fmt.Errorf("read order item: %w", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	return rows.Err()
}

// insertOrderTx пишет заказ и его позиции в транзакции вызывающего.
// Повторный id даёт ErrOrderVersionConflict, неизвестный пользователь — ErrUserNotFound.
func insertOrderTx(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	_, err := tx.ExecContext(ctx, insertOrderSQL,
		order.ID, order.UserID, order.UserEmail, string(order.Status),
		order.PhoneNumber, string(order.DeliveryType), order.DeliveryAddress,
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	switch {
	case isUniqueViolation(err):
		return domain.ErrOrderVersionConflict
	case isForeignKeyViolation(err):
		return domain.ErrUserNotFound
	case err != nil:
		return fmt.Errorf("insert order %s: %w", order.ID, err)
	}

	for _, item := range order.Items {
		if _, err := tx.ExecContext(ctx, insertOrderItemSQL,
			item.ID, order.ID, item.DishID, item.Quantity, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert item %s of order %s: %w", item.ID, order.ID, err)
		}
	}
	return nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order         domain.Order
		status, dtype string
	)
	err := row.Scan(
		&order.ID, &order.UserID, &order.UserEmail, &status,
		&order.PhoneNumber, &dtype, &order.DeliveryAddress,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.DeliveryType = domain.DeliveryType(dtype)
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
