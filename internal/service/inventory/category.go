package inventory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

// CreateCategory добавляет категорию меню.
func (l *Ledger) CreateCategory(ctx context.Context, name, description string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, domain.ErrCategoryNameRequired
	}

	category := domain.Category{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
	}
	if err := l.categories.Create(ctx, category); err != nil {
		return domain.Category{}, err
	}
	return category, nil
}

func (l *Ledger) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	return l.categories.Get(ctx, id)
}

func (l *Ledger) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return l.categories.List(ctx)
}
