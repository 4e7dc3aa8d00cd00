package domain

import (
	"fmt"
	"strings"
)

// DeliveryType — способ получения заказа.
type DeliveryType string

const (
	DeliveryTypePickup   DeliveryType = "pickup"
	DeliveryTypeDelivery DeliveryType = "delivery"
)

// Valid проверяет, что способ получения поддерживается.
func (t DeliveryType) Valid() bool {
	return t == DeliveryTypePickup || t == DeliveryTypeDelivery
}

// DeliveryDetails — данные оформления заказа из запроса клиента.
type DeliveryDetails struct {
	PhoneNumber  string
	DeliveryType string
	City         string
	Street       string
	Building     string
	Apartment    string
	PickupPoint  string
}

// Resolve проверяет данные доставки и собирает строку адреса.
// Порядок проверок: телефон, затем способ получения и его обязательные поля.
func (d DeliveryDetails) Resolve() (DeliveryType, string, error) {
	if isBlank(d.PhoneNumber) {
		return "", "", ErrMissingPhoneNumber
	}

	switch DeliveryType(strings.ToLower(strings.TrimSpace(d.DeliveryType))) {
	case DeliveryTypeDelivery:
		if isBlank(d.City) || isBlank(d.Street) || isBlank(d.Building) {
			return "", "", ErrIncompleteDeliveryAddress
		}
		address := fmt.Sprintf("м. %s, вул. %s, буд. %s",
			strings.TrimSpace(d.City), strings.TrimSpace(d.Street), strings.TrimSpace(d.Building))
		if !isBlank(d.Apartment) {
			address += ", кв. " + strings.TrimSpace(d.Apartment)
		}
		return DeliveryTypeDelivery, address, nil
	case DeliveryTypePickup:
		if isBlank(d.PickupPoint) {
			return "", "", ErrMissingPickupPoint
		}
		return DeliveryTypePickup, "Самовивіз: " + strings.TrimSpace(d.PickupPoint), nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrInvalidDeliveryType, d.DeliveryType)
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
