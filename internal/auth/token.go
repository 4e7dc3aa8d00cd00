// Package auth проверяет bearer-токены внешнего сервиса аутентификации
// и превращает их в идентичность запроса.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

const (
	bearerPrefix  = "Bearer "
	defaultLeeway = 30 * time.Second

	claimEmail = "email"
	claimRoles = "roles"
)

var (
	// ErrMissingCredential — заголовок Authorization пуст или без токена.
	ErrMissingCredential = errors.New("missing bearer token")
	// ErrInvalidToken — подпись, срок действия, issuer или claims не прошли проверку.
	ErrInvalidToken = errors.New("invalid token")
)

// Identity — пользователь, от имени которого выполняется запрос.
type Identity struct {
	Email string
	Roles []domain.Role
}

// HasAnyRole сообщает, есть ли у пользователя хотя бы одна из ролей.
func (i Identity) HasAnyRole(roles ...domain.Role) bool {
	for _, have := range i.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Resolver проверяет HS256-токены общим секретом.
type Resolver struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewResolver создаёт Resolver. Пустой issuer отключает проверку iss.
func NewResolver(secret, issuer string) *Resolver {
	return &Resolver{
		secret: []byte(secret),
		issuer: issuer,
		leeway: defaultLeeway,
	}
}

// ResolveIdentity разбирает credential ("Bearer <jwt>" или голый jwt).
// Email берётся из claim email, роли из roles: строки через запятую или массива.
func (r *Resolver) ResolveIdentity(credential string) (Identity, error) {
	raw := strings.TrimSpace(credential)
	if raw == strings.TrimSpace(bearerPrefix) {
		return Identity{}, ErrMissingCredential
	}
	if strings.HasPrefix(raw, bearerPrefix) {
		raw = strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
	}
	if raw == "" {
		return Identity{}, ErrMissingCredential
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(r.leeway),
		jwt.WithExpirationRequired(),
	}
	if r.issuer != "" {
		options = append(options, jwt.WithIssuer(r.issuer))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, options...)
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	email, _ := claims[claimEmail].(string)
	if email == "" {
		// старые токены кладут email только в sub
		email, _ = claims.GetSubject()
	}
	email = domain.NormalizeEmail(email)
	if email == "" {
		return Identity{}, fmt.Errorf("%w: email claim is missing", ErrInvalidToken)
	}

	return Identity{Email: email, Roles: extractRoles(claims[claimRoles])}, nil
}

func extractRoles(raw any) []domain.Role {
	var names []string
	switch v := raw.(type) {
	case string:
		names = strings.Split(v, ",")
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
	}

	roles := make([]domain.Role, 0, len(names))
	for _, name := range names {
		role := domain.Role(strings.ToUpper(strings.TrimSpace(name)))
		if role.Valid() {
			roles = append(roles, role)
		}
	}
	return roles
}
