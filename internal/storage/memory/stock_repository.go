package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

// stockRepositoryInMemory хранит складские остатки.
// Списание проверяет и применяет все позиции под одной блокировкой.
type stockRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[string]domain.IngredientStock
	byName map[string]string
}

// NewStockRepository создаёт in-memory реализацию StockRepository.
func NewStockRepository() domain.StockRepository {
	return &stockRepositoryInMemory{
		items:  make(map[string]domain.IngredientStock),
		byName: make(map[string]string),
	}
}

func (r *stockRepositoryInMemory) Create(_ context.Context, stock domain.IngredientStock) error {
	name := domain.NormalizeStockName(stock.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return domain.ErrStockAlreadyExists
	}
	if _, exists := r.items[stock.ID]; exists {
		return domain.ErrStockAlreadyExists
	}
	r.items[stock.ID] = stock
	r.byName[name] = stock.ID
	return nil
}

func (r *stockRepositoryInMemory) Get(_ context.Context, id string) (domain.IngredientStock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stock, ok := r.items[id]
	if !ok {
		return domain.IngredientStock{}, domain.ErrStockNotFound
	}
	return stock, nil
}

func (r *stockRepositoryInMemory) FindByName(_ context.Context, name string) (domain.IngredientStock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[domain.NormalizeStockName(name)]
	if !ok {
		return domain.IngredientStock{}, domain.ErrIngredientNotFound
	}
	return r.items[id], nil
}

func (r *stockRepositoryInMemory) List(_ context.Context) ([]domain.IngredientStock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.IngredientStock, 0, len(r.items))
	for _, stock := range r.items {
		result = append(result, stock)
	}
	sort.Slice(result, func(i, j int) bool {
		return domain.NormalizeStockName(result[i].Name) < domain.NormalizeStockName(result[j].Name)
	})
	return result, nil
}

func (r *stockRepositoryInMemory) Save(_ context.Context, stock domain.IngredientStock) error {
	name := domain.NormalizeStockName(stock.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[stock.ID]
	if !ok {
		return domain.ErrStockNotFound
	}
	if ownerID, taken := r.byName[name]; taken && ownerID != stock.ID {
		return domain.ErrStockAlreadyExists
	}
	delete(r.byName, domain.NormalizeStockName(current.Name))
	r.items[stock.ID] = stock
	r.byName[name] = stock.ID
	return nil
}

func (r *stockRepositoryInMemory) Deduct(_ context.Context, deductions []domain.StockDeduction) error {
	totals := sumDeductions(deductions)

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, amount := range totals {
		stock, ok := r.items[id]
		if !ok {
			return fmt.Errorf("%w: id %s", domain.ErrStockNotFound, id)
		}
		if stock.Available < amount {
			return fmt.Errorf("%w: %s (available %v, required %v)",
				domain.ErrInsufficientStock, stock.Name, stock.Available, amount)
		}
	}

	now := time.Now().UTC()
	for id, amount := range totals {
		stock := r.items[id]
		stock.Available -= amount
		stock.UpdatedAt = now
		r.items[id] = stock
	}
	return nil
}

func (r *stockRepositoryInMemory) Restore(_ context.Context, deductions []domain.StockDeduction) error {
	totals := sumDeductions(deductions)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for id, amount := range totals {
		stock, ok := r.items[id]
		if !ok {
			return fmt.Errorf("%w: id %s", domain.ErrStockNotFound, id)
		}
		stock.Available += amount
		stock.UpdatedAt = now
		r.items[id] = stock
	}
	return nil
}

func sumDeductions(deductions []domain.StockDeduction) map[string]float64 {
	totals := make(map[string]float64, len(deductions))
	for _, d := range deductions {
		totals[d.StockID] += d.Amount
	}
	return totals
}

var _ domain.StockRepository = (*stockRepositoryInMemory)(nil)
