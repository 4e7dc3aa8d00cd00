package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/caffe/internal/auth"
	"github.com/vladislavdragonenkov/caffe/internal/domain"
	"github.com/vladislavdragonenkov/caffe/internal/metrics"
)

const (
	requestIDHeader = "X-Request-Id"

	ctxKeyLogger   = "caffe.logger"
	ctxKeyIdentity = "caffe.identity"
)

// IdentityResolver проверяет credential из заголовка Authorization.
type IdentityResolver interface {
	ResolveIdentity(credential string) (auth.Identity, error)
}

// requestLogging проставляет request id, кладёт logger запроса в контекст gin
// и пишет одну строку лога на запрос.
func requestLogging(base *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)

		logger := base.WithFields(log.Fields{
			"request_id": reqID,
			"method":     c.Request.Method,
			"route":      c.FullPath(),
		})
		c.Set(ctxKeyLogger, logger)

		c.Next()

		fields := log.Fields{
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"remote":      c.ClientIP(),
		}
		if identity, ok := identityFrom(c); ok {
			fields["user"] = identity.Email
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		entry := logger.WithFields(fields)
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("http request")
		case status >= http.StatusBadRequest:
			entry.Warn("http request")
		default:
			entry.Info("http request")
		}
	}
}

func requestMetrics(m *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// requestTimeout ограничивает время обработки запроса, включая обращения к хранилищу.
func requestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// authenticate требует валидный bearer-токен; без него 401.
func authenticate(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := resolver.ResolveIdentity(c.GetHeader("Authorization"))
		if err != nil {
			requestLogger(c).WithError(err).Debug("identity resolution failed")
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		c.Set(ctxKeyIdentity, identity)
		c.Next()
	}
}

// requireRole пропускает только пользователей с одной из ролей; иначе 403.
func requireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := identityFrom(c)
		if !ok || !identity.HasAnyRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: "forbidden"})
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) (auth.Identity, bool) {
	value, ok := c.Get(ctxKeyIdentity)
	if !ok {
		return auth.Identity{}, false
	}
	identity, ok := value.(auth.Identity)
	return identity, ok
}

func mustIdentity(c *gin.Context) auth.Identity {
	identity, _ := identityFrom(c)
	return identity
}

func requestLogger(c *gin.Context) *log.Entry {
	if value, ok := c.Get(ctxKeyLogger); ok {
		if logger, ok := value.(*log.Entry); ok {
			return logger
		}
	}
	return log.WithField("component", "http")
}
