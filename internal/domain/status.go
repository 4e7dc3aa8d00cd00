package domain

import (
	"fmt"
	"strings"
)

// orderTransitions — единственный допустимый следующий статус для каждого нефинального.
var orderTransitions = map[OrderStatus]OrderStatus{
	OrderStatusPending:    OrderStatusInProgress,
	OrderStatusInProgress: OrderStatusCompleted,
}

// cancellableFrom — статусы, из которых владелец может отменить заказ.
var cancellableFrom = map[OrderStatus]struct{}{
	OrderStatusPending: {},
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusInProgress, OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// IsFinal сообщает, что из статуса больше нет переходов.
func (s OrderStatus) IsFinal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Next возвращает следующий статус по таблице переходов.
func (s OrderStatus) Next() (OrderStatus, bool) {
	next, ok := orderTransitions[s]
	return next, ok
}

// Cancellable сообщает, можно ли отменить заказ в этом статусе.
func (s OrderStatus) Cancellable() bool {
	_, ok := cancellableFrom[s]
	return ok
}

// ParseOrderStatus разбирает статус из строки запроса (без учёта регистра).
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownOrderStatus, raw)
	}
	return status, nil
}

// CheckAdvance проверяет переход current -> requested по таблице.
// Отмена через этот путь недоступна: для неё есть CheckCancel.
func CheckAdvance(current, requested OrderStatus) error {
	if current.IsFinal() {
		return fmt.Errorf("%w: %s", ErrOrderAlreadyFinal, current)
	}
	next, ok := current.Next()
	if !ok || requested != next {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current, requested)
	}
	return nil
}

// CheckCancel проверяет, что заказ в статусе current можно отменить.
func CheckCancel(current OrderStatus) error {
	if !current.Cancellable() {
		return fmt.Errorf("%w: current status %s", ErrOrderNotCancellable, current)
	}
	return nil
}
