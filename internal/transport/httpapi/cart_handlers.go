package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (h *handlers) getCart(c *gin.Context) {
	cart, err := h.carts.GetOrCreate(c.Request.Context(), mustIdentity(c).Email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(cart))
}

func (h *handlers) addToCart(c *gin.Context) {
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "dishId and quantity >= 1 are required")
		return
	}

	cart, err := h.carts.AddItem(c.Request.Context(), mustIdentity(c).Email, req.DishID, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(cart))
}

func (h *handlers) updateCartItem(c *gin.Context) {
	var req cartUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "dishId and quantity >= 0 are required")
		return
	}

	cart, err := h.carts.SetItemQuantity(c.Request.Context(), mustIdentity(c).Email, req.DishID, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(cart))
}

func (h *handlers) removeFromCart(c *gin.Context) {
	dishID := strings.TrimSpace(c.Query("dishId"))
	if dishID == "" {
		writeBadRequest(c, "dishId is required")
		return
	}

	cart, err := h.carts.RemoveItem(c.Request.Context(), mustIdentity(c).Email, dishID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(cart))
}

func (h *handlers) clearCart(c *gin.Context) {
	cart, err := h.carts.Clear(c.Request.Context(), mustIdentity(c).Email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(cart))
}
