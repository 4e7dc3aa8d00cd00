package domain

import (
	"errors"
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ оформлен и ждёт кухню.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusInProgress — заказ готовится.
	OrderStatusInProgress OrderStatus = "IN_PROGRESS"
	// OrderStatusCompleted — заказ выдан, статус финальный.
	OrderStatusCompleted OrderStatus = "COMPLETED"
	// OrderStatusCancelled — заказ отменён владельцем, статус финальный.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderItem — неизменяемый снимок строки корзины на момент оформления.
type OrderItem struct {
	ID        string
	DishID    string
	Quantity  int
	CreatedAt time.Time
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID              string
	UserID          string
	UserEmail       string
	Status          OrderStatus
	Items           []OrderItem
	PhoneNumber     string
	DeliveryType    DeliveryType
	DeliveryAddress string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

var (
	errOrderUserRequired    = errors.New("order user is required")
	errOrderAddressRequired = errors.New("order delivery address is required")
)

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, errOrderUserRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrUnknownOrderStatus)
	}
	if strings.TrimSpace(o.PhoneNumber) == "" {
		errs = append(errs, ErrMissingPhoneNumber)
	}
	if !o.DeliveryType.Valid() {
		errs = append(errs, ErrInvalidDeliveryType)
	}
	if strings.TrimSpace(o.DeliveryAddress) == "" {
		errs = append(errs, errOrderAddressRequired)
	}

	return errs
}

// OwnedBy сравнивает владельца заказа с email без учёта регистра.
func (o *Order) OwnedBy(email string) bool {
	return NormalizeEmail(o.UserEmail) == NormalizeEmail(email)
}
