package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

// cartRepositoryInMemory хранит корзины, индексированные по пользователю.
type cartRepositoryInMemory struct {
	mu     sync.RWMutex
	byUser map[string]domain.Cart
}

// NewCartRepository создаёт in-memory реализацию CartRepository.
func NewCartRepository() domain.CartRepository {
	return &cartRepositoryInMemory{byUser: make(map[string]domain.Cart)}
}

func (r *cartRepositoryInMemory) GetByUser(_ context.Context, userID string) (domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.byUser[userID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cart.Clone(), nil
}

func (r *cartRepositoryInMemory) Create(_ context.Context, cart domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUser[cart.UserID]; exists {
		return domain.ErrCartAlreadyExists
	}
	r.byUser[cart.UserID] = cart.Clone()
	return nil
}

// Save перезаписывает корзину, проверяя версию (optimistic locking).
func (r *cartRepositoryInMemory) Save(_ context.Context, cart domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.saveLocked(cart)
}

func (r *cartRepositoryInMemory) saveLocked(cart domain.Cart) error {
	current, ok := r.byUser[cart.UserID]
	if !ok || current.ID != cart.ID {
		return domain.ErrCartNotFound
	}
	if current.Version != cart.Version {
		return domain.ErrCartVersionConflict
	}
	stored := cart.Clone()
	stored.Version++
	r.byUser[cart.UserID] = stored
	return nil
}

// dropDish убирает блюдо из всех корзин. Версия не меняется: строки исчезают
// так же, как при каскадном удалении в postgres.
func (r *cartRepositoryInMemory) dropDish(dishID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, cart := range r.byUser {
		if cart.RemoveItem(dishID) {
			r.byUser[userID] = cart
		}
	}
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
