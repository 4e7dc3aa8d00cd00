package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (h *handlers) listDishes(c *gin.Context) {
	filter, err := dishFilterFromQuery(c)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}

	dishes, err := h.inventory.ListDishes(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	result := make([]dishResponse, 0, len(dishes))
	for _, dish := range dishes {
		result = append(result, toDishResponse(dish))
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) getDish(c *gin.Context) {
	dish, err := h.inventory.GetDish(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDishResponse(dish))
}

func (h *handlers) createDish(c *gin.Context) {
	var req dishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "invalid dish payload")
		return
	}

	dish, err := h.inventory.CreateDish(c.Request.Context(), req.draft())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toDishResponse(dish))
}

func (h *handlers) updateDish(c *gin.Context) {
	var req dishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "invalid dish payload")
		return
	}

	dish, err := h.inventory.UpdateDish(c.Request.Context(), c.Param("id"), req.draft())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDishResponse(dish))
}

func (h *handlers) deleteDish(c *gin.Context) {
	if err := h.inventory.DeleteDish(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) listCategories(c *gin.Context) {
	categories, err := h.inventory.ListCategories(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	result := make([]categoryResponse, 0, len(categories))
	for _, category := range categories {
		result = append(result, categoryResponse{ID: category.ID, Name: category.Name, Description: category.Description})
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) getCategory(c *gin.Context) {
	category, err := h.inventory.GetCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, categoryResponse{ID: category.ID, Name: category.Name, Description: category.Description})
}

func (h *handlers) createCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "invalid category payload")
		return
	}

	category, err := h.inventory.CreateCategory(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, categoryResponse{ID: category.ID, Name: category.Name, Description: category.Description})
}

func (h *handlers) listStocks(c *gin.Context) {
	stocks, err := h.inventory.ListStocks(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	result := make([]stockResponse, 0, len(stocks))
	for _, stock := range stocks {
		result = append(result, toStockResponse(stock))
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) getStock(c *gin.Context) {
	stock, err := h.inventory.GetStock(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStockResponse(stock))
}

func (h *handlers) createStock(c *gin.Context) {
	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "name and amount are required")
		return
	}

	stock, err := h.inventory.RegisterStock(c.Request.Context(), req.Name, req.Amount, req.Unit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toStockResponse(stock))
}

func (h *handlers) updateStock(c *gin.Context) {
	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "name and amount are required")
		return
	}

	stock, err := h.inventory.UpdateStock(c.Request.Context(), c.Param("id"), req.Name, req.Amount, req.Unit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStockResponse(stock))
}

// dishFilterFromQuery разбирает categoryId, name, minPrice, maxPrice, sort, page и size.
func dishFilterFromQuery(c *gin.Context) (domain.DishFilter, error) {
	filter := domain.DishFilter{
		CategoryID: strings.TrimSpace(c.Query("categoryId")),
		NameLike:   strings.TrimSpace(c.Query("name")),
		Limit:      defaultPageSize,
	}

	for param, target := range map[string]**int64{
		"minPrice": &filter.MinPriceMinor,
		"maxPrice": &filter.MaxPriceMinor,
	} {
		raw := strings.TrimSpace(c.Query(param))
		if raw == "" {
			continue
		}
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value < 0 {
			return domain.DishFilter{}, fmt.Errorf("%s must be a non-negative integer", param)
		}
		*target = &value
	}

	switch sort := domain.DishSort(strings.TrimSpace(c.Query("sort"))); sort {
	case "":
	case domain.DishSortName, domain.DishSortNameDesc, domain.DishSortPrice, domain.DishSortPriceDesc:
		filter.Sort = sort
	default:
		return domain.DishFilter{}, fmt.Errorf("unsupported sort %q", sort)
	}

	size, err := queryInt(c, "size", defaultPageSize)
	if err != nil || size <= 0 {
		return domain.DishFilter{}, fmt.Errorf("size must be a positive integer")
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	page, err := queryInt(c, "page", 0)
	if err != nil || page < 0 {
		return domain.DishFilter{}, fmt.Errorf("page must be a non-negative integer")
	}

	filter.Limit = size
	filter.Offset = page * size
	return filter, nil
}

func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
