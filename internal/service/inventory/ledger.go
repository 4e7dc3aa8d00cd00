// Package inventory ведёт каталог блюд и склад ингредиентов.
// Списание со склада происходит один раз, при создании блюда по рецепту.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
	"github.com/vladislavdragonenkov/caffe/internal/metrics"
	"github.com/vladislavdragonenkov/caffe/internal/service/events"
)

// IngredientRequest — строка рецепта из запроса: название складской позиции и количество текстом.
type IngredientRequest struct {
	Name     string
	Quantity string
}

// DishDraft — данные блюда из запроса на создание или изменение.
type DishDraft struct {
	Name            string
	Description     string
	PriceMinor      int64
	ImageURL        string
	Weight          string
	PreparationTime string
	CategoryID      string
	Ingredients     []IngredientRequest
}

// Ledger реализует операции каталога и склада.
type Ledger struct {
	dishes     domain.DishRepository
	categories domain.CategoryRepository
	stocks     domain.StockRepository
	events     *events.Emitter
	metrics    *metrics.CaffeMetrics
	logger     *log.Entry
	now        func() time.Time
}

// Option настраивает Ledger.
type Option func(*Ledger)

// WithEmitter включает запись событий stock.deducted в outbox.
func WithEmitter(emitter *events.Emitter) Option {
	return func(l *Ledger) {
		l.events = emitter
	}
}

// WithMetrics подключает prometheus-метрики.
func WithMetrics(m *metrics.CaffeMetrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLedger создаёт Ledger над репозиториями каталога и склада.
func NewLedger(dishes domain.DishRepository, categories domain.CategoryRepository, stocks domain.StockRepository, opts ...Option) *Ledger {
	l := &Ledger{
		dishes:     dishes,
		categories: categories,
		stocks:     stocks,
		logger:     log.New().WithField("component", "inventory-ledger"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// plannedLine — строка рецепта, сопоставленная со складом.
type plannedLine struct {
	stock    domain.IngredientStock
	quantity domain.Quantity
	text     string
}

// CreateDish проверяет рецепт по складу, списывает ингредиенты и сохраняет блюдо.
// Списание атомарно: при нехватке хотя бы одной позиции склад не меняется.
func (l *Ledger) CreateDish(ctx context.Context, draft DishDraft) (domain.Dish, error) {
	now := l.now()
	dish := draftToDish(draft)
	dish.ID = uuid.NewString()
	dish.CreatedAt = now
	dish.UpdatedAt = now

	if err := l.validateDish(ctx, &dish); err != nil {
		l.metrics.RecordDishRejected(rejectReason(err))
		return domain.Dish{}, err
	}

	plan, err := l.planRecipe(ctx, draft.Ingredients)
	if err != nil {
		l.metrics.RecordDishRejected(rejectReason(err))
		return domain.Dish{}, err
	}

	deductions := make([]domain.StockDeduction, 0, len(plan))
	for _, line := range plan {
		deductions = append(deductions, domain.StockDeduction{
			StockID: line.stock.ID,
			Name:    line.stock.Name,
			Amount:  float64(line.quantity.Whole()),
		})
	}

	if len(deductions) > 0 {
		if err := l.stocks.Deduct(ctx, deductions); err != nil {
			l.metrics.RecordDishRejected(rejectReason(err))
			return domain.Dish{}, fmt.Errorf("deduct stock: %w", err)
		}
	}

	dish.Ingredients = recipeSnapshot(plan)
	if err := l.dishes.Create(ctx, dish); err != nil {
		if len(deductions) > 0 {
			if restoreErr := l.stocks.Restore(ctx, deductions); restoreErr != nil {
				l.logger.WithError(restoreErr).WithField("dish_name", dish.Name).Error("failed to restore stock after dish persist failure")
			}
		}
		return domain.Dish{}, fmt.Errorf("persist dish: %w", err)
	}

	l.metrics.RecordDishCreated(len(uniqueStocks(deductions)))
	l.emitDeductions(ctx, dish.ID, deductions)

	l.logger.WithFields(log.Fields{
		"dish_id":     dish.ID,
		"ingredients": len(dish.Ingredients),
	}).Info("dish created")
	return dish, nil
}

// UpdateDish заменяет поля и рецепт блюда. Склад при этом не списывается:
// единицы измерения берутся из склада, если позиция там есть.
func (l *Ledger) UpdateDish(ctx context.Context, id string, draft DishDraft) (domain.Dish, error) {
	current, err := l.dishes.Get(ctx, id)
	if err != nil {
		return domain.Dish{}, err
	}

	dish := draftToDish(draft)
	dish.ID = current.ID
	dish.CreatedAt = current.CreatedAt
	dish.UpdatedAt = l.now()

	if err := l.validateDish(ctx, &dish); err != nil {
		return domain.Dish{}, err
	}

	lines := make([]domain.RecipeLine, 0, len(draft.Ingredients))
	for _, ingredient := range draft.Ingredients {
		line := domain.RecipeLine{
			Name:     strings.TrimSpace(ingredient.Name),
			Quantity: ingredient.Quantity,
		}
		stock, err := l.stocks.FindByName(ctx, ingredient.Name)
		switch {
		case err == nil:
			line.Unit = stock.Unit
		case errors.Is(err, domain.ErrIngredientNotFound):
		default:
			return domain.Dish{}, fmt.Errorf("lookup ingredient %q: %w", ingredient.Name, err)
		}
		lines = append(lines, line)
	}
	dish.Ingredients = lines

	if err := l.dishes.Save(ctx, dish); err != nil {
		return domain.Dish{}, fmt.Errorf("save dish: %w", err)
	}
	return dish, nil
}

// GetDish возвращает блюдо по идентификатору.
func (l *Ledger) GetDish(ctx context.Context, id string) (domain.Dish, error) {
	return l.dishes.Get(ctx, id)
}

// ListDishes возвращает блюда по фильтру каталога.
func (l *Ledger) ListDishes(ctx context.Context, filter domain.DishFilter) ([]domain.Dish, error) {
	return l.dishes.List(ctx, filter)
}

// DeleteDish удаляет блюдо. Списанные ингредиенты не возвращаются.
func (l *Ledger) DeleteDish(ctx context.Context, id string) error {
	return l.dishes.Delete(ctx, id)
}

// planRecipe сопоставляет строки рецепта со складом и проверяет остатки.
// Потребность по одной позиции суммируется в пределах запроса.
func (l *Ledger) planRecipe(ctx context.Context, ingredients []IngredientRequest) ([]plannedLine, error) {
	plan := make([]plannedLine, 0, len(ingredients))
	required := make(map[string]float64, len(ingredients))

	for _, ingredient := range ingredients {
		stock, err := l.stocks.FindByName(ctx, ingredient.Name)
		if err != nil {
			if errors.Is(err, domain.ErrIngredientNotFound) {
				return nil, fmt.Errorf("%w: %s", domain.ErrIngredientNotFound, strings.TrimSpace(ingredient.Name))
			}
			return nil, fmt.Errorf("lookup ingredient %q: %w", ingredient.Name, err)
		}

		quantity, err := domain.ParseQuantity(ingredient.Quantity)
		if err != nil {
			return nil, fmt.Errorf("ingredient %s: %w", stock.Name, err)
		}

		required[stock.ID] += float64(quantity.Whole())
		if stock.Available < required[stock.ID] {
			return nil, fmt.Errorf("%w: %s (available %v, required %v)",
				domain.ErrInsufficientStock, stock.Name, stock.Available, required[stock.ID])
		}

		plan = append(plan, plannedLine{stock: stock, quantity: quantity, text: ingredient.Quantity})
	}
	return plan, nil
}

func (l *Ledger) validateDish(ctx context.Context, dish *domain.Dish) error {
	if err := dish.Validate(); err != nil {
		return err
	}
	if dish.CategoryID == "" {
		return nil
	}
	if _, err := l.categories.Get(ctx, dish.CategoryID); err != nil {
		return err
	}
	return nil
}

func (l *Ledger) emitDeductions(ctx context.Context, dishID string, deductions []domain.StockDeduction) {
	if l.events == nil {
		return
	}
	totals := uniqueStocks(deductions)
	for _, d := range deductions {
		amount, ok := totals[d.StockID]
		if !ok {
			continue
		}
		delete(totals, d.StockID)

		stock, err := l.stocks.Get(ctx, d.StockID)
		if err != nil {
			l.logger.WithError(err).WithField("stock_id", d.StockID).Warn("reload stock for event failed")
			continue
		}
		l.events.StockDeducted(ctx, stock, amount, dishID)
	}
}

// uniqueStocks суммирует списания по складским позициям.
func uniqueStocks(deductions []domain.StockDeduction) map[string]float64 {
	totals := make(map[string]float64, len(deductions))
	for _, d := range deductions {
		totals[d.StockID] += d.Amount
	}
	return totals
}

func recipeSnapshot(plan []plannedLine) []domain.RecipeLine {
	lines := make([]domain.RecipeLine, 0, len(plan))
	for _, line := range plan {
		lines = append(lines, domain.RecipeLine{
			Name:     line.stock.Name,
			Quantity: line.text,
			Unit:     line.stock.Unit,
		})
	}
	return lines
}

func draftToDish(draft DishDraft) domain.Dish {
	return domain.Dish{
		Name:            strings.TrimSpace(draft.Name),
		Description:     draft.Description,
		PriceMinor:      draft.PriceMinor,
		ImageURL:        draft.ImageURL,
		Weight:          draft.Weight,
		PreparationTime: draft.PreparationTime,
		CategoryID:      strings.TrimSpace(draft.CategoryID),
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrIngredientNotFound):
		return "ingredient_not_found"
	case errors.Is(err, domain.ErrInvalidQuantityFormat):
		return "invalid_quantity"
	case errors.Is(err, domain.ErrCategoryNotFound):
		return "category_not_found"
	case errors.Is(err, domain.ErrDishNameRequired), errors.Is(err, domain.ErrDishPriceNegative):
		return "invalid_dish"
	default:
		return "internal"
	}
}
