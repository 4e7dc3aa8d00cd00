package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

func (h *handlers) createOrder(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		writeBadRequest(c, "failed to read request body")
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeBadRequest(c, "invalid request body")
		return
	}

	identity := mustIdentity(c)
	h.idempotency.serve(c, identity.Email, body, func() (int, any, error) {
		order, err := h.orders.Create(c.Request.Context(), identity.Email, req.details())
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, toOrderResponse(order), nil
	})
}

func (h *handlers) myOrders(c *gin.Context) {
	orders, err := h.orders.ListForUser(c.Request.Context(), mustIdentity(c).Email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponses(orders))
}

func (h *handlers) allOrders(c *gin.Context) {
	orders, err := h.orders.ListAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponses(orders))
}

// orderTimeline доступен персоналу и владельцу заказа.
func (h *handlers) orderTimeline(c *gin.Context) {
	ctx := c.Request.Context()
	orderID := c.Param("id")

	identity := mustIdentity(c)
	if !identity.HasAnyRole(domain.RoleAdmin, domain.RoleWorker) {
		order, err := h.orders.Get(ctx, orderID)
		if err != nil {
			writeError(c, err)
			return
		}
		if !order.OwnedBy(identity.Email) {
			writeError(c, domain.ErrNotOrderOwner)
			return
		}
	}

	events, err := h.orders.Timeline(ctx, orderID)
	if err != nil {
		writeError(c, err)
		return
	}

	result := make([]timelineEventResponse, 0, len(events))
	for _, event := range events {
		result = append(result, timelineEventResponse{
			Type:     event.Type,
			Status:   string(event.Status),
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) advanceOrder(c *gin.Context) {
	requested, err := domain.ParseOrderStatus(c.Query("status"))
	if err != nil {
		writeError(c, err)
		return
	}

	order, err := h.status.Advance(c.Request.Context(), c.Param("id"), requested)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *handlers) cancelOrder(c *gin.Context) {
	order, err := h.status.Cancel(c.Request.Context(), c.Param("id"), mustIdentity(c).Email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}
