package domain

import (
	"strings"
	"time"
)

// Role — роль пользователя, приходит в claims токена.
type Role string

const (
	RoleAdmin  Role = "ROLE_ADMIN"
	RoleUser   Role = "ROLE_USER"
	RoleWorker Role = "ROLE_WORKER"
)

// Valid проверяет, что роль известна сервису.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleWorker:
		return true
	default:
		return false
	}
}

// User — учётная запись, которой принадлежат корзина и заказы.
// Записи создаёт внешний сервис аутентификации; здесь они только читаются.
type User struct {
	ID        string
	Email     string
	Username  string
	Role      Role
	CreatedAt time.Time
}

// NormalizeEmail приводит email к виду, в котором он хранится и сравнивается.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
