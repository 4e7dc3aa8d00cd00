package domain

import "errors"

var (
	// ErrUserNotFound возвращается, если email/идентификатор пользователя не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserAlreadyExists — пользователь с таким email уже зарегистрирован.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrDishNotFound возвращается, если блюдо не найдено в каталоге.
	ErrDishNotFound = errors.New("dish not found")
	// ErrCategoryNotFound возвращается, если категория не найдена.
	ErrCategoryNotFound = errors.New("category not found")
	// Ошибка отсутствующего названия блюда.
	ErrDishNameRequired = errors.New("dish name is required")
	// Ошибка отрицательной цены блюда.
	ErrDishPriceNegative = errors.New("dish price must be non-negative")
	// Ошибка отсутствующего названия категории.
	ErrCategoryNameRequired = errors.New("category name is required")

	// ErrIngredientNotFound — в складе нет ингредиента с таким названием.
	ErrIngredientNotFound = errors.New("ingredient not found")
	// ErrStockNotFound возвращается, если складская запись не найдена по идентификатору.
	ErrStockNotFound = errors.New("ingredient stock not found")
	// ErrStockAlreadyExists — складская запись с таким названием уже существует (без учёта регистра).
	ErrStockAlreadyExists = errors.New("ingredient stock already exists")
	// Ошибка отсутствующего названия складской позиции.
	ErrStockNameRequired = errors.New("ingredient stock name is required")
	// ErrInsufficientStock — на складе недостаточно ингредиента для рецепта.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidQuantityFormat — количество не удалось разобрать однозначно.
	ErrInvalidQuantityFormat = errors.New("invalid quantity format")

	// ErrCartNotFound возвращается, если у пользователя ещё нет корзины.
	ErrCartNotFound = errors.New("cart not found")
	// ErrCartAlreadyExists — корзина для пользователя уже создана (уникальность user_id).
	ErrCartAlreadyExists = errors.New("cart already exists")
	// ErrCartVersionConflict сигнализирует о конкурентном изменении корзины.
	ErrCartVersionConflict = errors.New("cart version conflict")
	// ErrEmptyCart — оформление заказа из пустой корзины.
	ErrEmptyCart = errors.New("cart is empty")

	ErrMissingPhoneNumber        = errors.New("phone number is required")
	ErrIncompleteDeliveryAddress = errors.New("city, street and building are required for delivery")
	ErrMissingPickupPoint        = errors.New("pickup point is required")
	ErrInvalidDeliveryType       = errors.New("invalid delivery type")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderAlreadyFinal — заказ уже в терминальном статусе (COMPLETED или CANCELLED).
	ErrOrderAlreadyFinal = errors.New("order is already in a final status")
	// ErrInvalidStatusTransition — запрошенный статус не является следующим для текущего.
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	// ErrUnknownOrderStatus — строка статуса не относится к известным значениям.
	ErrUnknownOrderStatus = errors.New("unknown order status")
	// ErrNotOrderOwner — отменить заказ может только его владелец.
	ErrNotOrderOwner = errors.New("order belongs to another user")
	// ErrOrderNotCancellable — отмена возможна только из статуса PENDING.
	ErrOrderNotCancellable = errors.New("order can be cancelled only while pending")
	// Ошибка при некорректном количестве позиции заказа (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий заказа или корзины.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict) || errors.Is(err, ErrCartVersionConflict)
}
