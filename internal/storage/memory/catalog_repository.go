package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

// categoryRepositoryInMemory — in-memory справочник категорий.
type categoryRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Category
}

// NewCategoryRepository создаёт in-memory реализацию CategoryRepository.
func NewCategoryRepository() domain.CategoryRepository {
	return &categoryRepositoryInMemory{items: make(map[string]domain.Category)}
}

func (r *categoryRepositoryInMemory) Create(_ context.Context, category domain.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[category.ID] = category
	return nil
}

func (r *categoryRepositoryInMemory) Get(_ context.Context, id string) (domain.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	category, ok := r.items[id]
	if !ok {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	return category, nil
}

func (r *categoryRepositoryInMemory) List(_ context.Context) ([]domain.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Category, 0, len(r.items))
	for _, category := range r.items {
		result = append(result, category)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// dishRepositoryInMemory хранит блюда; строки рецепта копируются при записи и чтении.
type dishRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Dish
	carts *cartRepositoryInMemory
}

// DishOption настраивает in-memory репозиторий блюд.
type DishOption func(*dishRepositoryInMemory)

// WithCartCascade убирает строки удалённого блюда из корзин, как ON DELETE CASCADE
// на cart_items в postgres. Корзины из другого хранилища игнорируются.
func WithCartCascade(carts domain.CartRepository) DishOption {
	return func(r *dishRepositoryInMemory) {
		if mem, ok := carts.(*cartRepositoryInMemory); ok {
			r.carts = mem
		}
	}
}

// NewDishRepository создаёт in-memory реализацию DishRepository.
func NewDishRepository(opts ...DishOption) domain.DishRepository {
	r := &dishRepositoryInMemory{items: make(map[string]domain.Dish)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *dishRepositoryInMemory) Create(_ context.Context, dish domain.Dish) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[dish.ID]; exists {
		return fmt.Errorf("dish %s already exists", dish.ID)
	}
	r.items[dish.ID] = cloneDish(dish)
	return nil
}

func (r *dishRepositoryInMemory) Get(_ context.Context, id string) (domain.Dish, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dish, ok := r.items[id]
	if !ok {
		return domain.Dish{}, domain.ErrDishNotFound
	}
	return cloneDish(dish), nil
}

func (r *dishRepositoryInMemory) Save(_ context.Context, dish domain.Dish) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[dish.ID]; !ok {
		return domain.ErrDishNotFound
	}
	r.items[dish.ID] = cloneDish(dish)
	return nil
}

func (r *dishRepositoryInMemory) List(_ context.Context, filter domain.DishFilter) ([]domain.Dish, error) {
	r.mu.RLock()
	result := make([]domain.Dish, 0, len(r.items))
	for _, dish := range r.items {
		if filter.Matches(dish) {
			result = append(result, cloneDish(dish))
		}
	}
	r.mu.RUnlock()

	sortDishes(result, filter.Sort)

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []domain.Dish{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *dishRepositoryInMemory) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrDishNotFound
	}
	delete(r.items, id)
	if r.carts != nil {
		r.carts.dropDish(id)
	}
	return nil
}

func sortDishes(dishes []domain.Dish, order domain.DishSort) {
	less := func(i, j int) bool {
		a, b := strings.ToLower(dishes[i].Name), strings.ToLower(dishes[j].Name)
		if a != b {
			return a < b
		}
		return dishes[i].ID < dishes[j].ID
	}
	switch order {
	case domain.DishSortNameDesc:
		base := less
		less = func(i, j int) bool { return base(j, i) }
	case domain.DishSortPrice:
		less = func(i, j int) bool {
			if dishes[i].PriceMinor != dishes[j].PriceMinor {
				return dishes[i].PriceMinor < dishes[j].PriceMinor
			}
			return dishes[i].ID < dishes[j].ID
		}
	case domain.DishSortPriceDesc:
		less = func(i, j int) bool {
			if dishes[i].PriceMinor != dishes[j].PriceMinor {
				return dishes[i].PriceMinor > dishes[j].PriceMinor
			}
			return dishes[i].ID < dishes[j].ID
		}
	}
	sort.Slice(dishes, less)
}

func cloneDish(src domain.Dish) domain.Dish {
	dst := src
	dst.Ingredients = append([]domain.RecipeLine(nil), src.Ingredients...)
	return dst
}

var (
	_ domain.CategoryRepository = (*categoryRepositoryInMemory)(nil)
	_ domain.DishRepository     = (*dishRepositoryInMemory)(nil)
)
