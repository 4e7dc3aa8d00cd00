package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
	defaultQuantity   = 1
)

// Шаги сценария в отчёте.
const (
	stepScenario = "scenario"
	stepAddDish  = "cart_add"
	stepCheckout = "checkout"
	stepReplay   = "checkout_replay"
	stepCancel   = "cancel"
)

// apiClient ходит в API от имени одного гостя кафе.
type apiClient struct {
	http    *http.Client
	baseURL string
	token   string
}

func newAPIClient(cfg config, httpClient *http.Client, email string) (*apiClient, error) {
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   email,
		"email": email,
		"roles": "ROLE_USER",
		"iss":   cfg.issuer,
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
	}).SignedString([]byte(cfg.jwtSecret))
	if err != nil {
		return nil, err
	}
	return &apiClient{http: httpClient, baseURL: cfg.baseURL, token: token}, nil
}

var errReplayMismatch = errors.New("checkout replay mismatch")

// statusError — ответ API с кодом >= 300.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

// call выполняет запрос и возвращает заголовки ответа; out заполняется из JSON-тела.
func (c *apiClient) call(method, path string, body any, headers map[string]string, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.Header, err
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return resp.Header, &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}
	if out != nil && len(raw) > 0 {
		return resp.Header, json.Unmarshal(raw, out)
	}
	return resp.Header, nil
}

type createdOrder struct {
	ID string `json:"id"`
}

// runScenario: блюдо в корзину, checkout с Idempotency-Key, затем по режиму
// повтор checkout с тем же ключом или отмена заказа.
func runScenario(client *apiClient, cfg config, index int, rec *recorder) (err error) {
	started := time.Now()
	defer func() { rec.observe(stepScenario, time.Since(started), outcome(err)) }()

	addDish := map[string]any{"dishId": cfg.dishID, "quantity": defaultQuantity}
	if err := timed(rec, stepAddDish, func() error {
		_, err := client.call(http.MethodPost, "/api/cart/add", addDish, nil, nil)
		return err
	}); err != nil {
		return err
	}

	checkout := map[string]string{
		"phoneNumber":  "+380500000000",
		"deliveryType": "PICKUP",
		"pickupPoint":  cfg.pickupPoint,
	}
	keyHeader := map[string]string{idempotencyHeader: uuid.NewString()}

	var order createdOrder
	if err := timed(rec, stepCheckout, func() error {
		_, err := client.call(http.MethodPost, "/api/orders/create", checkout, keyHeader, &order)
		return err
	}); err != nil {
		return err
	}
	if order.ID == "" {
		return errors.New("checkout returned empty order id")
	}

	if cfg.mode == modeCheckoutReplay {
		if err := timed(rec, stepReplay, func() error {
			var replayed createdOrder
			header, err := client.call(http.MethodPost, "/api/orders/create", checkout, keyHeader, &replayed)
			switch {
			case err != nil:
				return err
			case replayed.ID != order.ID:
				return fmt.Errorf("%w: got order %s instead of %s", errReplayMismatch, replayed.ID, order.ID)
			case header.Get(replayedHeader) != "true":
				return fmt.Errorf("%w: order %s without %s header", errReplayMismatch, order.ID, replayedHeader)
			}
			return nil
		}); err != nil {
			return err
		}
	}

	if cfg.mode == modeCheckoutCancel || (cfg.mode == modeCheckout && shouldCancelScenario(index, cfg.cancelRate)) {
		return timed(rec, stepCancel, func() error {
			_, err := client.call(http.MethodPut, "/api/orders/"+order.ID+"/cancel", nil, nil, nil)
			return err
		})
	}
	return nil
}

func timed(rec *recorder, step string, fn func() error) error {
	started := time.Now()
	err := fn()
	rec.observe(step, time.Since(started), outcome(err))
	return err
}

// outcome: "ok", HTTP-код ответа или "transport_error".
func outcome(err error) string {
	if err == nil {
		return outcomeOK
	}
	var se *statusError
	if errors.As(err, &se) {
		return strconv.Itoa(se.status)
	}
	if errors.Is(err, errReplayMismatch) {
		return outcomeReplayMismatch
	}
	return outcomeTransport
}

// shouldCancelScenario отменяет cancelRate сценариев из каждой сотни.
func shouldCancelScenario(index, cancelRate int) bool {
	switch {
	case cancelRate <= 0:
		return false
	case cancelRate >= 100:
		return true
	default:
		return index%100 < cancelRate
	}
}
