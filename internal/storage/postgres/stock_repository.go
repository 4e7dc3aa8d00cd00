package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

const stockColumns = `id, name, available_quantity, unit, updated_at`

type stockRepository struct {
	db *sql.DB
}

// NewStockRepository создаёт PostgreSQL-реализацию StockRepository.
func NewStockRepository(store *Store) domain.StockRepository {
	return &stockRepository{db: store.DB()}
}

func (r *stockRepository) Create(ctx context.Context, stock domain.IngredientStock) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ingredient_stocks (`+stockColumns+`)
		VALUES ($1,$2,$3,$4,$5)
	`, stock.ID, stock.Name, stock.Available, stock.Unit, stock.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrStockAlreadyExists
		}
		return fmt.Errorf("insert ingredient stock: %w", err)
	}
	return nil
}

func (r *stockRepository) Get(ctx context.Context, id string) (domain.IngredientStock, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	stock, err := scanStock(r.db.QueryRowContext(ctx, `SELECT `+stockColumns+` FROM ingredient_stocks WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IngredientStock{}, domain.ErrStockNotFound
	}
	if err != nil {
		return domain.IngredientStock{}, fmt.Errorf("select ingredient stock: %w", err)
	}
	return stock, nil
}

func (r *stockRepository) FindByName(ctx context.Context, name string) (domain.IngredientStock, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	stock, err := scanStock(r.db.QueryRowContext(ctx,
		`SELECT `+stockColumns+` FROM ingredient_stocks WHERE LOWER(name) = $1`,
		domain.NormalizeStockName(name),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IngredientStock{}, domain.ErrIngredientNotFound
	}
	if err != nil {
		return domain.IngredientStock{}, fmt.Errorf("select ingredient stock by name: %w", err)
	}
	return stock, nil
}

func (r *stockRepository) List(ctx context.Context) ([]domain.IngredientStock, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+stockColumns+` FROM ingredient_stocks ORDER BY LOWER(name)`)
	if err != nil {
		return nil, fmt.Errorf("list ingredient stocks: %w", err)
	}
	defer rows.Close()

	result := make([]domain.IngredientStock, 0)
	for rows.Next() {
		stock, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ingredient stock: %w", err)
		}
		result = append(result, stock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingredient stocks: %w", err)
	}
	return result, nil
}

func (r *stockRepository) Save(ctx context.Context, stock domain.IngredientStock) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE ingredient_stocks
		SET name = $2, available_quantity = $3, unit = $4, updated_at = $5
		WHERE id = $1
	`, stock.ID, stock.Name, stock.Available, stock.Unit, stock.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrStockAlreadyExists
		}
		return fmt.Errorf("update ingredient stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrStockNotFound
	}
	return nil
}

// Deduct списывает остатки в одной транзакции условным UPDATE.
// Строки обновляются в порядке id, чтобы параллельные списания не взаимоблокировались.
func (r *stockRepository) Deduct(ctx context.Context, deductions []domain.StockDeduction) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	totals := sortedTotals(deductions)
	now := time.Now().UTC()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, d := range totals {
			res, err := tx.ExecContext(ctx, `
				UPDATE ingredient_stocks
				SET available_quantity = available_quantity - $2, updated_at = $3
				WHERE id = $1 AND available_quantity >= $2
			`, d.StockID, d.Amount, now)
			if err != nil {
				return fmt.Errorf("deduct ingredient stock: %w", err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if affected > 0 {
				continue
			}

			exists, err := rowExistsTx(ctx, tx, `SELECT 1 FROM ingredient_stocks WHERE id = $1`, d.StockID)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: id %s", domain.ErrStockNotFound, d.StockID)
			}
			return fmt.Errorf("%w: %s (required %v)", domain.ErrInsufficientStock, d.Name, d.Amount)
		}
		return nil
	})
}

func (r *stockRepository) Restore(ctx context.Context, deductions []domain.StockDeduction) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	totals := sortedTotals(deductions)
	now := time.Now().UTC()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, d := range totals {
			if _, err := tx.ExecContext(ctx, `
				UPDATE ingredient_stocks
				SET available_quantity = available_quantity + $2, updated_at = $3
				WHERE id = $1
			`, d.StockID, d.Amount, now); err != nil {
				return fmt.Errorf("restore ingredient stock: %w", err)
			}
		}
		return nil
	})
}

// sortedTotals суммирует списания по складской записи и сортирует по id.
func sortedTotals(deductions []domain.StockDeduction) []domain.StockDeduction {
	index := make(map[string]int, len(deductions))
	totals := make([]domain.StockDeduction, 0, len(deductions))
	for _, d := range deductions {
		if i, ok := index[d.StockID]; ok {
			totals[i].Amount += d.Amount
			continue
		}
		index[d.StockID] = len(totals)
		totals = append(totals, d)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].StockID < totals[j].StockID })
	return totals
}

func scanStock(row rowScanner) (domain.IngredientStock, error) {
	var stock domain.IngredientStock
	err := row.Scan(&stock.ID, &stock.Name, &stock.Available, &stock.Unit, &stock.UpdatedAt)
	return stock, err
}

var _ domain.StockRepository = (*stockRepository)(nil)
