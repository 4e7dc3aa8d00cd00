package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

const (
	idempotencyKeyHeader      = "Idempotency-Key"
	idempotencyReplayedHeader = "Idempotent-Replayed"
	idempotencyStoreTimeout   = 2 * time.Second
)

// idempotencyGuard делает повтор запроса с тем же Idempotency-Key безопасным:
// тот же запрос получает сохранённый ответ, другой запрос с тем же ключом 409.
type idempotencyGuard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
}

func newIdempotencyGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *idempotencyGuard {
	if ttl <= 0 {
		ttl = domain.DefaultIdempotencyTTL
	}
	return &idempotencyGuard{repo: repo, ttl: ttl, logger: logger}
}

// serve выполняет run не более одного раза на ключ. Без ключа run вызывается как есть.
func (g *idempotencyGuard) serve(c *gin.Context, scope string, body []byte, run func() (int, any, error)) {
	key := strings.TrimSpace(c.GetHeader(idempotencyKeyHeader))
	if g == nil || g.repo == nil || key == "" {
		status, resp, err := run()
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(status, resp)
		return
	}

	logger := requestLogger(c).WithField("idempotency_key", key)
	hash := requestHash(c.Request.Method, c.FullPath(), scope, body)

	record, err := g.repo.CreateProcessing(c.Request.Context(), key, hash, time.Now().UTC().Add(g.ttl))
	if err != nil {
		g.replay(c, logger, err, record)
		return
	}

	status, resp, runErr := run()
	if runErr != nil {
		errStatus, errBody := errorBody(c, runErr)
		payload, _ := json.Marshal(errBody)
		// 5xx не кэшируется: сбой временный, повтор с тем же ключом выполнится заново.
		if errStatus >= http.StatusInternalServerError {
			g.release(logger, key)
		} else {
			g.store(logger, key, domain.IdempotencyStatusFailed, payload, errStatus)
		}
		_ = c.Error(runErr)
		c.Data(errStatus, gin.MIMEJSON, payload)
		c.Abort()
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		logger.WithError(err).Error("failed to encode response")
		g.release(logger, key)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: http.StatusText(http.StatusInternalServerError)})
		return
	}
	g.store(logger, key, domain.IdempotencyStatusDone, payload, status)
	c.Data(status, gin.MIMEJSON, payload)
}

func (g *idempotencyGuard) replay(c *gin.Context, logger *log.Entry, createErr error, record domain.IdempotencyRecord) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		c.AbortWithStatusJSON(http.StatusConflict, errorResponse{Error: "idempotency key is already used with different request payload"})
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			if len(record.ResponseBody) == 0 || record.HTTPStatus == 0 {
				logger.Warn("idempotency record has no stored response")
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "idempotency cache is empty"})
				return
			}
			c.Header(idempotencyReplayedHeader, "true")
			c.Data(record.HTTPStatus, gin.MIMEJSON, record.ResponseBody)
			c.Abort()
		case domain.IdempotencyStatusProcessing:
			c.AbortWithStatusJSON(http.StatusConflict, errorResponse{Error: "request with the same idempotency key is already processing"})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "unknown idempotency record status"})
		}
	default:
		logger.WithError(createErr).Warn("failed to create idempotency record")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "failed to initialize idempotency request"})
	}
}

// store сохраняет ответ даже если контекст запроса уже отменён.
func (g *idempotencyGuard) store(logger *log.Entry, key string, status domain.IdempotencyStatus, payload []byte, httpStatus int) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyStoreTimeout)
	defer cancel()

	var err error
	if status == domain.IdempotencyStatusDone {
		err = g.repo.MarkDone(ctx, key, payload, httpStatus)
	} else {
		err = g.repo.MarkFailed(ctx, key, payload, httpStatus)
	}
	if err != nil {
		logger.WithError(err).WithField("status", status).Warn("failed to store idempotent response")
	}
}

func (g *idempotencyGuard) release(logger *log.Entry, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyStoreTimeout)
	defer cancel()

	if err := g.repo.Release(ctx, key); err != nil {
		logger.WithError(err).Warn("failed to release idempotency key")
	}
}

// requestHash связывает ключ с маршрутом, пользователем и телом запроса.
func requestHash(method, route, scope string, body []byte) string {
	h := sha256.New()
	for _, part := range []string{method, route, scope} {
		h.Write([]byte(part))
		h.Write([]byte{':'})
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
