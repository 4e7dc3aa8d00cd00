package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

// RegisterStock заводит складскую позицию. Количество разбирается тем же парсером,
// что и рецепты, но сохраняется с дробной частью.
func (l *Ledger) RegisterStock(ctx context.Context, name, amountText, unit string) (domain.IngredientStock, error) {
	stock, err := l.buildStock(name, amountText, unit)
	if err != nil {
		return domain.IngredientStock{}, err
	}
	stock.ID = uuid.NewString()

	if err := l.stocks.Create(ctx, stock); err != nil {
		return domain.IngredientStock{}, err
	}
	return stock, nil
}

// UpdateStock перезаписывает название, остаток и единицу складской позиции.
func (l *Ledger) UpdateStock(ctx context.Context, id, name, amountText, unit string) (domain.IngredientStock, error) {
	if _, err := l.stocks.Get(ctx, id); err != nil {
		return domain.IngredientStock{}, err
	}

	stock, err := l.buildStock(name, amountText, unit)
	if err != nil {
		return domain.IngredientStock{}, err
	}
	stock.ID = id

	if err := l.stocks.Save(ctx, stock); err != nil {
		return domain.IngredientStock{}, err
	}
	return stock, nil
}

// GetStock возвращает складскую позицию.
func (l *Ledger) GetStock(ctx context.Context, id string) (domain.IngredientStock, error) {
	return l.stocks.Get(ctx, id)
}

// ListStocks возвращает все складские позиции.
func (l *Ledger) ListStocks(ctx context.Context) ([]domain.IngredientStock, error) {
	return l.stocks.List(ctx)
}

func (l *Ledger) buildStock(name, amountText, unit string) (domain.IngredientStock, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.IngredientStock{}, domain.ErrStockNameRequired
	}

	quantity, err := domain.ParseQuantity(amountText)
	if err != nil {
		return domain.IngredientStock{}, fmt.Errorf("stock %s: %w", name, err)
	}

	unit = strings.TrimSpace(unit)
	if unit == "" {
		unit = quantity.Unit
	}

	return domain.IngredientStock{
		Name:      name,
		Available: quantity.Value,
		Unit:      unit,
		UpdatedAt: l.now(),
	}, nil
}
