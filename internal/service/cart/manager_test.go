package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
	"github.com/vladislavdragonenkov/caffe/internal/service/retry"
	"github.com/vladislavdragonenkov/caffe/internal/storage/memory"
)

const testEmail = "alice@example.com"

// conflictingCarts отдаёт конфликт версий на первые conflicts вызовов Save.
type conflictingCarts struct {
	domain.CartRepository

	mu        sync.Mutex
	conflicts int
	saves     int
}

func (c *conflictingCarts) Save(ctx context.Context, cart domain.Cart) error {
	c.mu.Lock()
	c.saves++
	if c.conflicts > 0 {
		c.conflicts--
		c.mu.Unlock()
		return domain.ErrCartVersionConflict
	}
	c.mu.Unlock()
	return c.CartRepository.Save(ctx, cart)
}

// racingCarts имитирует параллельное создание корзины: GetByUser первый раз
// не находит корзину, а Create натыкается на уникальность user_id.
type racingCarts struct {
	domain.CartRepository
	missed bool
}

func (r *racingCarts) GetByUser(ctx context.Context, userID string) (domain.Cart, error) {
	if !r.missed {
		r.missed = true
		existing := domain.NewCart("winner-cart", userID, time.Now().UTC())
		if err := r.CartRepository.Create(ctx, existing); err != nil {
			return domain.Cart{}, err
		}
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return r.CartRepository.GetByUser(ctx, userID)
}

type fixture struct {
	ctx    context.Context
	users  domain.UserRepository
	dishes domain.DishRepository
	carts  domain.CartRepository
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	f := fixture{
		ctx:    context.Background(),
		users:  memory.NewUserRepository(),
		dishes: memory.NewDishRepository(),
		carts:  memory.NewCartRepository(),
	}
	require.NoError(t, f.users.Create(f.ctx, domain.User{ID: "user-1", Email: testEmail, Role: domain.RoleUser}))
	for _, id := range []string{"dish-1", "dish-2"} {
		require.NoError(t, f.dishes.Create(f.ctx, domain.Dish{ID: id, Name: id, PriceMinor: 100}))
	}
	return f
}

func fastRetry() Option {
	return WithRetryConfig(retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2})
}

func TestGetOrCreate(t *testing.T) {
	f := newFixture(t)
	mgr := NewManager(f.users, f.dishes, f.carts)

	first, err := mgr.GetOrCreate(f.ctx, testEmail)
	require.NoError(t, err)
	require.True(t, first.IsEmpty())

	second, err := mgr.GetOrCreate(f.ctx, "ALICE@example.com")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	_, err = mgr.GetOrCreate(f.ctx, "nobody@example.com")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestGetOrCreate_ConcurrentCreationReturnsExisting(t *testing.T) {
	f := newFixture(t)
	mgr := NewManager(f.users, f.dishes, &racingCarts{CartRepository: f.carts})

	cart, err := mgr.GetOrCreate(f.ctx, testEmail)
	require.NoError(t, err)
	require.Equal(t, "winner-cart", cart.ID)
}

func TestAddItem_MergesLines(t *testing.T) {
	f := newFixture(t)
	mgr := NewManager(f.users, f.dishes, f.carts)

	_, err := mgr.AddItem(f.ctx, testEmail, "dish-1", 2)
	require.NoError(t, err)
	cart, err := mgr.AddItem(f.ctx, testEmail, "dish-1", 3)
	require.NoError(t, err)

	require.Equal(t, []domain.CartItem{{DishID: "dish-1", Quantity: 5}}, cart.Items)

	stored, err := mgr.GetOrCreate(f.ctx, testEmail)
	require.NoError(t, err)
	require.Equal(t, cart.Items, stored.Items)
	require.Equal(t, cart.Version, stored.Version)
}

func TestAddItem_UnknownDish(t *testing.T) {
	f := newFixture(t)
	mgr := NewManager(f.users, f.dishes, f.carts)

	_, err := mgr.AddItem(f.ctx, testEmail, "missing", 1)
	require.ErrorIs(t, err, domain.ErrDishNotFound)
}

func TestAddItem_NonPositiveResultDropsLine(t *testing.T) {
	f := newFixture(t)
	mgr := NewManager(f.users, f.dishes, f.carts)

	_, err := mgr.AddItem(f.ctx, testEmail, "dish-1", 2)
	require.NoError(t, err)
	cart, err := mgr.AddItem(f.ctx, testEmail, "dish-1", -2)
	require.NoError(t, err)
	require.True(t, cart.IsEmpty())
}

func TestSetItemQuantity(t *testing.T) {
	f := newFixture(t)
	mgr := NewManager(f.users, f.dishes, f.carts)

	_, err := mgr.AddItem(f.ctx, testEmail, "dish-1", 1)
	require.NoError(t, err)

	cart, err := mgr.SetItemQuantity(f.ctx, testEmail, "dish-1", 7)
	require.NoError(t, err)
	require.Equal(t, []domain.CartItem{{DishID: "dish-1", Quantity: 7}}, cart.Items)

	unchanged, err := mgr.SetItemQuantity(f.ctx, testEmail, "dish-2", 4)
	require.NoError(t, err)
	require.Equal(t, cart.Items, unchanged.Items)
	require.Equal(t, cart.Version, unchanged.Version)

	cart, err = mgr.SetItemQuantity(f.ctx, testEmail, "dish-1", 0)
	require.NoError(t, err)
	require.True(t, cart.IsEmpty())
}

func TestRemoveItemAndClear(t *testing.T) {
	f := newFixture(t)
	mgr := NewManager(f.users, f.dishes, f.carts)

	_, err := mgr.AddItem(f.ctx, testEmail, "dish-1", 1)
	require.NoError(t, err)
	_, err = mgr.AddItem(f.ctx, testEmail, "dish-2", 2)
	require.NoError(t, err)

	cart, err := mgr.RemoveItem(f.ctx, testEmail, "dish-1")
	require.NoError(t, err)
	require.Equal(t, []domain.CartItem{{DishID: "dish-2", Quantity: 2}}, cart.Items)

	cart, err = mgr.Clear(f.ctx, testEmail)
	require.NoError(t, err)
	require.True(t, cart.IsEmpty())

	stored, err := mgr.GetOrCreate(f.ctx, testEmail)
	require.NoError(t, err)
	require.True(t, stored.IsEmpty())
}

func TestMutate_RetriesOnVersionConflict(t *testing.T) {
	f := newFixture(t)
	carts := &conflictingCarts{CartRepository: f.carts, conflicts: 2}
	mgr := NewManager(f.users, f.dishes, carts, fastRetry())

	cart, err := mgr.AddItem(f.ctx, testEmail, "dish-1", 1)
	require.NoError(t, err)
	require.Equal(t, []domain.CartItem{{DishID: "dish-1", Quantity: 1}}, cart.Items)
	require.Equal(t, 3, carts.saves)
}

func TestMutate_GivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	carts := &conflictingCarts{CartRepository: f.carts, conflicts: 10}
	mgr := NewManager(f.users, f.dishes, carts, fastRetry())

	_, err := mgr.AddItem(f.ctx, testEmail, "dish-1", 1)
	require.ErrorIs(t, err, domain.ErrCartVersionConflict)
	require.Equal(t, 3, carts.saves)
}

func TestConcurrentAdds(t *testing.T) {
	f := newFixture(t)
	mgr := NewManager(f.users, f.dishes, f.carts, WithRetryConfig(retry.Config{
		MaxAttempts:   50,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 1,
	}))
	_, err := mgr.GetOrCreate(f.ctx, testEmail)
	require.NoError(t, err)

	const workers = 5
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.AddItem(f.ctx, testEmail, "dish-1", 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	cart, err := mgr.GetOrCreate(f.ctx, testEmail)
	require.NoError(t, err)
	require.Equal(t, []domain.CartItem{{DishID: "dish-1", Quantity: workers}}, cart.Items)
}
