package domain

import (
	"strings"
	"time"
)

// Category группирует блюда в меню.
type Category struct {
	ID          string
	Name        string
	Description string
}

// RecipeLine — снимок строки рецепта на момент сохранения блюда.
// Это значение, а не ссылка на складскую запись.
type RecipeLine struct {
	Name string
	// Quantity хранит количество так, как его ввели ("200 g").
	Quantity string
	// Unit берётся из складской записи.
	Unit string
}

// Dish — позиция меню с рецептом.
type Dish struct {
	ID              string
	Name            string
	Description     string
	PriceMinor      int64
	ImageURL        string
	Weight          string
	PreparationTime string
	CategoryID      string
	Ingredients     []RecipeLine
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate проверяет поля блюда, не зависящие от склада и категорий.
func (d *Dish) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrDishNameRequired
	}
	if d.PriceMinor < 0 {
		return ErrDishPriceNegative
	}
	return nil
}

// DishSort задаёт порядок выдачи блюд.
type DishSort string

const (
	DishSortName      DishSort = "name"
	DishSortNameDesc  DishSort = "-name"
	DishSortPrice     DishSort = "price"
	DishSortPriceDesc DishSort = "-price"
)

// DishFilter описывает выборку блюд для каталога.
type DishFilter struct {
	CategoryID string
	// NameLike — подстрока названия без учёта регистра.
	NameLike      string
	MinPriceMinor *int64
	MaxPriceMinor *int64
	Sort          DishSort
	Limit         int
	Offset        int
}

// Matches проверяет блюдо по условиям фильтра (без сортировки и пагинации).
func (f DishFilter) Matches(d Dish) bool {
	if f.CategoryID != "" && d.CategoryID != f.CategoryID {
		return false
	}
	if f.NameLike != "" && !strings.Contains(strings.ToLower(d.Name), strings.ToLower(f.NameLike)) {
		return false
	}
	if f.MinPriceMinor != nil && d.PriceMinor < *f.MinPriceMinor {
		return false
	}
	if f.MaxPriceMinor != nil && d.PriceMinor > *f.MaxPriceMinor {
		return false
	}
	return true
}

// IngredientStock — складской остаток ингредиента.
// Available никогда не уходит в минус.
type IngredientStock struct {
	ID        string
	Name      string
	Available float64
	Unit      string
	UpdatedAt time.Time
}

// StockDeduction — списание одного ингредиента в рамках одного рецепта.
type StockDeduction struct {
	StockID string
	Name    string
	Amount  float64
}

// NormalizeStockName используется для сравнения названий без учёта регистра.
func NormalizeStockName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
