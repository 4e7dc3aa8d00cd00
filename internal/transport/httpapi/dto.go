package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
	"github.com/vladislavdragonenkov/caffe/internal/service/inventory"
)

type cartItemRequest struct {
	DishID   string `json:"dishId" binding:"required"`
	Quantity int    `json:"quantity" binding:"min=1"`
}

type cartUpdateRequest struct {
	DishID   string `json:"dishId" binding:"required"`
	Quantity int    `json:"quantity" binding:"min=0"`
}

type createOrderRequest struct {
	PhoneNumber  string `json:"phoneNumber"`
	DeliveryType string `json:"deliveryType"`
	City         string `json:"city"`
	Street       string `json:"street"`
	Building     string `json:"building"`
	Apartment    string `json:"apartment"`
	PickupPoint  string `json:"pickupPoint"`
}

func (r createOrderRequest) details() domain.DeliveryDetails {
	return domain.DeliveryDetails{
		PhoneNumber:  r.PhoneNumber,
		DeliveryType: r.DeliveryType,
		City:         r.City,
		Street:       r.Street,
		Building:     r.Building,
		Apartment:    r.Apartment,
		PickupPoint:  r.PickupPoint,
	}
}

type ingredientRequest struct {
	Name     string `json:"name" binding:"required"`
	Quantity string `json:"quantity" binding:"required"`
}

type dishRequest struct {
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	PriceMinor      int64               `json:"priceMinor"`
	ImageURL        string              `json:"imageUrl"`
	Weight          string              `json:"weight"`
	PreparationTime string              `json:"preparationTime"`
	CategoryID      string              `json:"categoryId"`
	Ingredients     []ingredientRequest `json:"ingredients" binding:"dive"`
}

func (r dishRequest) draft() inventory.DishDraft {
	ingredients := make([]inventory.IngredientRequest, 0, len(r.Ingredients))
	for _, line := range r.Ingredients {
		ingredients = append(ingredients, inventory.IngredientRequest{Name: line.Name, Quantity: line.Quantity})
	}
	return inventory.DishDraft{
		Name:            r.Name,
		Description:     r.Description,
		PriceMinor:      r.PriceMinor,
		ImageURL:        r.ImageURL,
		Weight:          r.Weight,
		PreparationTime: r.PreparationTime,
		CategoryID:      r.CategoryID,
		Ingredients:     ingredients,
	}
}

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type stockRequest struct {
	Name   string `json:"name" binding:"required"`
	Amount string `json:"amount" binding:"required"`
	Unit   string `json:"unit"`
}

type cartItemResponse struct {
	DishID   string `json:"dishId"`
	Quantity int    `json:"quantity"`
}

type cartResponse struct {
	ID        string             `json:"id"`
	UserID    string             `json:"userId"`
	Items     []cartItemResponse `json:"items"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

func toCartResponse(cart domain.Cart) cartResponse {
	items := make([]cartItemResponse, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemResponse{DishID: item.DishID, Quantity: item.Quantity})
	}
	return cartResponse{ID: cart.ID, UserID: cart.UserID, Items: items, UpdatedAt: cart.UpdatedAt}
}

type orderItemResponse struct {
	ID       string `json:"id"`
	DishID   string `json:"dishId"`
	Quantity int    `json:"quantity"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	UserEmail       string              `json:"userEmail"`
	Status          string              `json:"status"`
	Items           []orderItemResponse `json:"items"`
	PhoneNumber     string              `json:"phoneNumber"`
	DeliveryType    string              `json:"deliveryType"`
	DeliveryAddress string              `json:"deliveryAddress"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{ID: item.ID, DishID: item.DishID, Quantity: item.Quantity})
	}
	return orderResponse{
		ID:              order.ID,
		UserEmail:       order.UserEmail,
		Status:          string(order.Status),
		Items:           items,
		PhoneNumber:     order.PhoneNumber,
		DeliveryType:    string(order.DeliveryType),
		DeliveryAddress: order.DeliveryAddress,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func toOrderResponses(orders []domain.Order) []orderResponse {
	result := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		result = append(result, toOrderResponse(order))
	}
	return result
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Status   string    `json:"status,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type recipeLineResponse struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Unit     string `json:"unit"`
}

type dishResponse struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Description     string               `json:"description"`
	PriceMinor      int64                `json:"priceMinor"`
	ImageURL        string               `json:"imageUrl"`
	Weight          string               `json:"weight"`
	PreparationTime string               `json:"preparationTime"`
	CategoryID      string               `json:"categoryId,omitempty"`
	Ingredients     []recipeLineResponse `json:"ingredients"`
}

func toDishResponse(dish domain.Dish) dishResponse {
	lines := make([]recipeLineResponse, 0, len(dish.Ingredients))
	for _, line := range dish.Ingredients {
		lines = append(lines, recipeLineResponse{Name: line.Name, Quantity: line.Quantity, Unit: line.Unit})
	}
	return dishResponse{
		ID:              dish.ID,
		Name:            dish.Name,
		Description:     dish.Description,
		PriceMinor:      dish.PriceMinor,
		ImageURL:        dish.ImageURL,
		Weight:          dish.Weight,
		PreparationTime: dish.PreparationTime,
		CategoryID:      dish.CategoryID,
		Ingredients:     lines,
	}
}

type categoryResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type stockResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Available float64   `json:"available"`
	Unit      string    `json:"unit"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toStockResponse(stock domain.IngredientStock) stockResponse {
	return stockResponse{
		ID:        stock.ID,
		Name:      stock.Name,
		Available: stock.Available,
		Unit:      stock.Unit,
		UpdatedAt: stock.UpdatedAt,
	}
}
