package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
	"github.com/vladislavdragonenkov/caffe/internal/service/events"
	"github.com/vladislavdragonenkov/caffe/internal/storage/memory"
)

// failingDishes отдаёт ошибку на Create, остальное делегирует in-memory репозиторию.
type failingDishes struct {
	domain.DishRepository
	createErr error
}

func (f *failingDishes) Create(ctx context.Context, dish domain.Dish) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.DishRepository.Create(ctx, dish)
}

type LedgerSuite struct {
	suite.Suite

	ctx        context.Context
	dishes     *failingDishes
	categories domain.CategoryRepository
	stocks     domain.StockRepository
	outbox     *memory.OutboxRepository
	ledger     *Ledger
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.dishes = &failingDishes{DishRepository: memory.NewDishRepository()}
	s.categories = memory.NewCategoryRepository()
	s.stocks = memory.NewStockRepository()
	s.outbox = memory.NewOutboxRepository()
	s.ledger = NewLedger(s.dishes, s.categories, s.stocks,
		WithEmitter(events.NewEmitter(s.outbox, nil, nil, nil)))
}

func (s *LedgerSuite) registerStock(name, amount, unit string) domain.IngredientStock {
	stock, err := s.ledger.RegisterStock(s.ctx, name, amount, unit)
	s.Require().NoError(err)
	return stock
}

func (s *LedgerSuite) available(id string) float64 {
	stock, err := s.stocks.Get(s.ctx, id)
	s.Require().NoError(err)
	return stock.Available
}

func (s *LedgerSuite) TestCreateDishDeductsStock() {
	flour := s.registerStock("Flour", "1000", "g")
	milk := s.registerStock("Milk", "2,5", "l")

	dish, err := s.ledger.CreateDish(s.ctx, DishDraft{
		Name:       "Pancakes",
		PriceMinor: 12000,
		Ingredients: []IngredientRequest{
			{Name: "flour", Quantity: "200 g"},
			{Name: "MILK", Quantity: "1,5 l"},
		},
	})
	s.Require().NoError(err)
	s.Require().NotEmpty(dish.ID)

	s.Equal(800.0, s.available(flour.ID))
	s.Equal(1.5, s.available(milk.ID))

	s.Require().Len(dish.Ingredients, 2)
	s.Equal(domain.RecipeLine{Name: "Flour", Quantity: "200 g", Unit: "g"}, dish.Ingredients[0])
	s.Equal(domain.RecipeLine{Name: "Milk", Quantity: "1,5 l", Unit: "l"}, dish.Ingredients[1])

	stored, err := s.ledger.GetDish(s.ctx, dish.ID)
	s.Require().NoError(err)
	s.Equal("Pancakes", stored.Name)

	pending := s.outbox.AllPending()
	s.Require().Len(pending, 2)
	for _, msg := range pending {
		s.Equal(domain.AggregateStock, msg.AggregateType)
		s.Equal(string(domain.EventStockDeducted), msg.EventType)
	}
}

func (s *LedgerSuite) TestCreateDishInsufficientStockLeavesStockUntouched() {
	flour := s.registerStock("Flour", "250", "g")

	_, err := s.ledger.CreateDish(s.ctx, DishDraft{
		Name:        "Bread",
		Ingredients: []IngredientRequest{{Name: "Flour", Quantity: "300 g"}},
	})
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)
	s.Equal(250.0, s.available(flour.ID))
	s.Empty(s.outbox.AllPending())
}

func (s *LedgerSuite) TestCreateDishSecondLineInsufficientKeepsFirst() {
	flour := s.registerStock("Flour", "500", "g")
	sugar := s.registerStock("Sugar", "10", "g")

	_, err := s.ledger.CreateDish(s.ctx, DishDraft{
		Name: "Cake",
		Ingredients: []IngredientRequest{
			{Name: "Flour", Quantity: "200 g"},
			{Name: "Sugar", Quantity: "50 g"},
		},
	})
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)
	s.Equal(500.0, s.available(flour.ID))
	s.Equal(10.0, s.available(sugar.ID))
}

func (s *LedgerSuite) TestCreateDishCumulativeRequirement() {
	flour := s.registerStock("Flour", "300", "g")

	_, err := s.ledger.CreateDish(s.ctx, DishDraft{
		Name: "Double dough",
		Ingredients: []IngredientRequest{
			{Name: "Flour", Quantity: "200 g"},
			{Name: "flour", Quantity: "200 g"},
		},
	})
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)
	s.Equal(300.0, s.available(flour.ID))
}

func (s *LedgerSuite) TestCreateDishTruncatesFraction() {
	oil := s.registerStock("Oil", "5", "l")

	_, err := s.ledger.CreateDish(s.ctx, DishDraft{
		Name:        "Fries",
		Ingredients: []IngredientRequest{{Name: "Oil", Quantity: "1.9 l"}},
	})
	s.Require().NoError(err)
	s.Equal(4.0, s.available(oil.ID))
}

func (s *LedgerSuite) TestCreateDishValidation() {
	s.registerStock("Flour", "100", "g")

	tests := []struct {
		name  string
		draft DishDraft
		err   error
	}{
		{name: "name required", draft: DishDraft{Name: "  "}, err: domain.ErrDishNameRequired},
		{name: "negative price", draft: DishDraft{Name: "Tea", PriceMinor: -1}, err: domain.ErrDishPriceNegative},
		{name: "unknown category", draft: DishDraft{Name: "Tea", CategoryID: "missing"}, err: domain.ErrCategoryNotFound},
		{
			name:  "unknown ingredient",
			draft: DishDraft{Name: "Tea", Ingredients: []IngredientRequest{{Name: "Leaves", Quantity: "5 g"}}},
			err:   domain.ErrIngredientNotFound,
		},
		{
			name:  "bad quantity",
			draft: DishDraft{Name: "Tea", Ingredients: []IngredientRequest{{Name: "Flour", Quantity: "some"}}},
			err:   domain.ErrInvalidQuantityFormat,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.ledger.CreateDish(s.ctx, tt.draft)
			s.Require().ErrorIs(err, tt.err)
		})
	}
}

func (s *LedgerSuite) TestCreateDishRestoresStockWhenPersistFails() {
	flour := s.registerStock("Flour", "1000", "g")
	s.dishes.createErr = errors.New("db down")

	_, err := s.ledger.CreateDish(s.ctx, DishDraft{
		Name:        "Bread",
		Ingredients: []IngredientRequest{{Name: "Flour", Quantity: "400 g"}},
	})
	s.Require().Error(err)
	s.Equal(1000.0, s.available(flour.ID))
	s.Empty(s.outbox.AllPending())
}

func (s *LedgerSuite) TestUpdateDishDoesNotDeduct() {
	flour := s.registerStock("Flour", "1000", "g")
	category, err := s.ledger.CreateCategory(s.ctx, "Bakery", "")
	s.Require().NoError(err)

	dish, err := s.ledger.CreateDish(s.ctx, DishDraft{
		Name:        "Bread",
		Ingredients: []IngredientRequest{{Name: "Flour", Quantity: "100 g"}},
	})
	s.Require().NoError(err)

	updated, err := s.ledger.UpdateDish(s.ctx, dish.ID, DishDraft{
		Name:       "Rye bread",
		PriceMinor: 5000,
		CategoryID: category.ID,
		Ingredients: []IngredientRequest{
			{Name: "Flour", Quantity: "800 g"},
			{Name: "Caraway", Quantity: "2 g"},
		},
	})
	s.Require().NoError(err)

	s.Equal(900.0, s.available(flour.ID))
	s.Equal(dish.CreatedAt, updated.CreatedAt)
	s.Require().Len(updated.Ingredients, 2)
	s.Equal("g", updated.Ingredients[0].Unit)
	s.Equal("", updated.Ingredients[1].Unit)

	stored, err := s.ledger.GetDish(s.ctx, dish.ID)
	s.Require().NoError(err)
	s.Equal("Rye bread", stored.Name)
	s.Equal(category.ID, stored.CategoryID)
}

func (s *LedgerSuite) TestUpdateDishNotFound() {
	_, err := s.ledger.UpdateDish(s.ctx, "missing", DishDraft{Name: "X"})
	s.Require().ErrorIs(err, domain.ErrDishNotFound)
}

func (s *LedgerSuite) TestDeleteDish() {
	dish, err := s.ledger.CreateDish(s.ctx, DishDraft{Name: "Water"})
	s.Require().NoError(err)

	s.Require().NoError(s.ledger.DeleteDish(s.ctx, dish.ID))
	_, err = s.ledger.GetDish(s.ctx, dish.ID)
	s.Require().ErrorIs(err, domain.ErrDishNotFound)
}

func (s *LedgerSuite) TestStockRegistry() {
	stock := s.registerStock("Butter", "1,25 kg", "")
	s.Equal(1.25, stock.Available)
	s.Equal("kg", stock.Unit)

	_, err := s.ledger.RegisterStock(s.ctx, "BUTTER", "1", "kg")
	s.Require().ErrorIs(err, domain.ErrStockAlreadyExists)

	_, err = s.ledger.RegisterStock(s.ctx, "Salt", "a lot", "g")
	s.Require().ErrorIs(err, domain.ErrInvalidQuantityFormat)

	_, err = s.ledger.RegisterStock(s.ctx, " ", "1", "g")
	s.Require().ErrorIs(err, domain.ErrStockNameRequired)

	updated, err := s.ledger.UpdateStock(s.ctx, stock.ID, "Butter", "3", "kg")
	s.Require().NoError(err)
	s.Equal(3.0, updated.Available)

	_, err = s.ledger.UpdateStock(s.ctx, "missing", "Butter", "3", "kg")
	s.Require().ErrorIs(err, domain.ErrStockNotFound)

	list, err := s.ledger.ListStocks(s.ctx)
	s.Require().NoError(err)
	s.Len(list, 1)
}

func TestRejectReason(t *testing.T) {
	require.Equal(t, "insufficient_stock", rejectReason(domain.ErrInsufficientStock))
	require.Equal(t, "invalid_quantity", rejectReason(domain.ErrInvalidQuantityFormat))
	require.Equal(t, "internal", rejectReason(errors.New("x")))
}
