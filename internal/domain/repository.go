package domain

import "context"

// UserRepository читает учётные записи пользователей.
type UserRepository interface {
	// Create добавляет пользователя; ErrUserAlreadyExists при совпадении email.
	Create(ctx context.Context, user User) error
	// GetByEmail ищет пользователя без учёта регистра email или возвращает ErrUserNotFound.
	GetByEmail(ctx context.Context, email string) (User, error)
	// GetByID возвращает пользователя или ErrUserNotFound.
	GetByID(ctx context.Context, id string) (User, error)
}

// CategoryRepository хранит категории меню.
type CategoryRepository interface {
	Create(ctx context.Context, category Category) error
	// Get возвращает категорию или ErrCategoryNotFound.
	Get(ctx context.Context, id string) (Category, error)
	List(ctx context.Context) ([]Category, error)
}

// DishRepository хранит блюда вместе со строками рецепта.
type DishRepository interface {
	Create(ctx context.Context, dish Dish) error
	// Get возвращает блюдо или ErrDishNotFound.
	Get(ctx context.Context, id string) (Dish, error)
	// Save перезаписывает блюдо и полностью заменяет строки рецепта.
	Save(ctx context.Context, dish Dish) error
	List(ctx context.Context, filter DishFilter) ([]Dish, error)
	Delete(ctx context.Context, id string) error
}

// StockRepository хранит складские остатки ингредиентов.
type StockRepository interface {
	// Create добавляет запись; ErrStockAlreadyExists при совпадении названия без учёта регистра.
	Create(ctx context.Context, stock IngredientStock) error
	// Get возвращает запись или ErrStockNotFound.
	Get(ctx context.Context, id string) (IngredientStock, error)
	// FindByName ищет запись без учёта регистра или возвращает ErrIngredientNotFound.
	FindByName(ctx context.Context, name string) (IngredientStock, error)
	List(ctx context.Context) ([]IngredientStock, error)
	// Save перезаписывает запись (ручная корректировка остатка).
	Save(ctx context.Context, stock IngredientStock) error
	// Deduct списывает все позиции атомарно: либо все, либо ни одной.
	// Если остатка не хватает хотя бы по одной позиции, возвращает ErrInsufficientStock.
	Deduct(ctx context.Context, deductions []StockDeduction) error
	// Restore возвращает ранее списанные количества (компенсация).
	Restore(ctx context.Context, deductions []StockDeduction) error
}

// CartRepository хранит корзины пользователей. На пользователя одна корзина.
type CartRepository interface {
	// GetByUser возвращает корзину пользователя или ErrCartNotFound.
	GetByUser(ctx context.Context, userID string) (Cart, error)
	// Create сохраняет новую корзину; ErrCartAlreadyExists, если у пользователя она уже есть.
	Create(ctx context.Context, cart Cart) error
	// Save заменяет строки корзины с учётом optimistic locking (ErrCartVersionConflict).
	Save(ctx context.Context, cart Cart) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми; limit <= 0 без ограничения.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// ListAll возвращает все заказы, новые первыми.
	ListAll(ctx context.Context, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}

// CheckoutRepository оформляет заказ из корзины одной операцией.
type CheckoutRepository interface {
	// PlaceOrder создаёт заказ и сохраняет очищенную корзину вместе.
	// Если корзина изменилась после чтения, возвращает ErrCartVersionConflict и ничего не сохраняет.
	PlaceOrder(ctx context.Context, order Order, cart Cart) error
}
