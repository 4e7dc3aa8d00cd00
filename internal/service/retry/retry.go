// Package retry повторяет операции с экспоненциально растущей паузой.
package retry

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

// Config конфигурация для retry логики.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultConfig: 3 попытки, задержка от 10ms с удвоением.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      200 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// Delay — пауза после неудачной попытки attempt (с единицы).
// MaxDelay <= 0 снимает потолок, BackoffFactor < 1 считается единицей.
func (c Config) Delay(attempt int) time.Duration {
	factor := max(c.BackoffFactor, 1)
	delay := c.InitialDelay
	for i := 1; i < attempt && delay > 0; i++ {
		delay = time.Duration(float64(delay) * factor)
		if c.MaxDelay > 0 && delay >= c.MaxDelay {
			break
		}
	}
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// Policy — Config плюс правило, какие ошибки повторять.
type Policy struct {
	Config
	// Retryable == nil повторяет любую ошибку.
	Retryable func(error) bool
	// OnRetry вызывается перед паузой.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Do вызывает fn, пока она возвращает повторяемую ошибку и остались попытки.
// Возвращает последнюю ошибку fn или ctx.Err(), если контекст отменён во время паузы.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == attempts || (p.Retryable != nil && !p.Retryable(err)) {
			return err
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if delay <= 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// OnVersionConflict выполняет fn заново, пока она возвращает конфликт версий
// и не исчерпаны попытки. Любая другая ошибка возвращается сразу.
// fn должна сама перечитывать состояние из хранилища на каждой попытке.
func OnVersionConflict(ctx context.Context, cfg Config, logger *log.Entry, operation string, fn func(attempt int) error) error {
	if logger == nil {
		logger = log.New().WithField("component", "retry")
	}

	var attempts int
	err := Policy{
		Config:    cfg,
		Retryable: domain.IsVersionConflict,
		OnRetry: func(attempt int, delay time.Duration, _ error) {
			logger.WithFields(log.Fields{
				"operation": operation,
				"attempt":   attempt,
				"delay":     delay,
			}).Warn("version conflict detected, retrying")
		},
	}.Do(ctx, func(attempt int) error {
		attempts = attempt
		return fn(attempt)
	})

	if err == nil && attempts > 1 {
		logger.WithFields(log.Fields{"operation": operation, "attempt": attempts}).Info("operation succeeded after retry")
	}
	return err
}
