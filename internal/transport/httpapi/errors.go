package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

// errorResponse — единый формат тела ошибки.
type errorResponse struct {
	Error string `json:"error"`
}

var (
	badRequestErrors = []error{
		domain.ErrInvalidQuantityFormat,
		domain.ErrEmptyCart,
		domain.ErrMissingPhoneNumber,
		domain.ErrIncompleteDeliveryAddress,
		domain.ErrMissingPickupPoint,
		domain.ErrInvalidDeliveryType,
		domain.ErrUnknownOrderStatus,
		domain.ErrDishNameRequired,
		domain.ErrDishPriceNegative,
		domain.ErrCategoryNameRequired,
		domain.ErrStockNameRequired,
		domain.ErrItemQtyInvalid,
		domain.ErrItemsRequired,
		domain.ErrIdempotencyKeyRequired,
	}
	notFoundErrors = []error{
		domain.ErrUserNotFound,
		domain.ErrDishNotFound,
		domain.ErrCategoryNotFound,
		domain.ErrIngredientNotFound,
		domain.ErrStockNotFound,
		domain.ErrCartNotFound,
		domain.ErrOrderNotFound,
	}
	conflictErrors = []error{
		domain.ErrOrderAlreadyFinal,
		domain.ErrInvalidStatusTransition,
		domain.ErrOrderNotCancellable,
		domain.ErrInsufficientStock,
		domain.ErrStockAlreadyExists,
		domain.ErrUserAlreadyExists,
		domain.ErrCartAlreadyExists,
		domain.ErrCartVersionConflict,
		domain.ErrOrderVersionConflict,
		domain.ErrIdempotencyHashMismatch,
		domain.ErrIdempotencyKeyAlreadyExists,
	}
)

// statusForError переводит доменную ошибку в HTTP-статус.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotOrderOwner):
		return http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case matchesAny(err, badRequestErrors):
		return http.StatusBadRequest
	case matchesAny(err, notFoundErrors):
		return http.StatusNotFound
	case matchesAny(err, conflictErrors):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeError отвечает ошибкой; внутренние ошибки логируются, а клиенту уходит общий текст.
func writeError(c *gin.Context, err error) {
	status, body := errorBody(c, err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func errorBody(c *gin.Context, err error) (int, errorResponse) {
	status := statusForError(err)
	if status < http.StatusInternalServerError {
		return status, errorResponse{Error: err.Error()}
	}
	requestLogger(c).WithError(err).WithFields(log.Fields{
		"route":  c.FullPath(),
		"status": status,
	}).Error("request failed")
	return status, errorResponse{Error: http.StatusText(status)}
}

func writeBadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: message})
}
