package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/caffe/internal/auth"
	"github.com/vladislavdragonenkov/caffe/internal/domain"
	"github.com/vladislavdragonenkov/caffe/internal/health"
	"github.com/vladislavdragonenkov/caffe/internal/metrics"
	"github.com/vladislavdragonenkov/caffe/internal/service/cart"
	"github.com/vladislavdragonenkov/caffe/internal/service/events"
	"github.com/vladislavdragonenkov/caffe/internal/service/inventory"
	"github.com/vladislavdragonenkov/caffe/internal/service/orders"
	"github.com/vladislavdragonenkov/caffe/internal/storage/memory"
)

const (
	testSecret  = "router-test-secret"
	testIssuer  = "caffe-auth"
	userEmail   = "guest@example.com"
	otherEmail  = "other@example.com"
	workerEmail = "cook@example.com"
	adminEmail  = "boss@example.com"
)

type RouterSuite struct {
	suite.Suite

	ctx      context.Context
	router   *gin.Engine
	ledger   *inventory.Ledger
	orders   domain.OrderRepository
	checkout *flakyCheckout
	dishID   string
}

// flakyCheckout отказывает failures раз подряд, потом передаёт вызов дальше.
type flakyCheckout struct {
	domain.CheckoutRepository
	failures int
}

func (f *flakyCheckout) PlaceOrder(ctx context.Context, order domain.Order, cart domain.Cart) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("db connection reset")
	}
	return f.CheckoutRepository.PlaceOrder(ctx, order, cart)
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
}

func (s *RouterSuite) SetupTest() {
	s.ctx = context.Background()

	users := memory.NewUserRepository()
	for _, u := range []domain.User{
		{ID: "u-guest", Email: userEmail, Role: domain.RoleUser},
		{ID: "u-other", Email: otherEmail, Role: domain.RoleUser},
		{ID: "u-cook", Email: workerEmail, Role: domain.RoleWorker},
		{ID: "u-boss", Email: adminEmail, Role: domain.RoleAdmin},
	} {
		s.Require().NoError(users.Create(s.ctx, u))
	}

	carts := memory.NewCartRepository()
	dishes := memory.NewDishRepository(memory.WithCartCascade(carts))
	s.orders = memory.NewOrderRepository()
	s.checkout = &flakyCheckout{CheckoutRepository: memory.NewCheckoutRepository(carts, s.orders)}
	timeline := memory.NewTimelineRepository()
	emitter := events.NewEmitter(memory.NewOutboxRepository(), timeline, nil, nil)

	s.ledger = inventory.NewLedger(dishes, memory.NewCategoryRepository(), memory.NewStockRepository(), inventory.WithEmitter(emitter))
	_, err := s.ledger.RegisterStock(s.ctx, "Flour", "1000 g", "g")
	s.Require().NoError(err)
	dish, err := s.ledger.CreateDish(s.ctx, inventory.DishDraft{
		Name:        "Pancake",
		PriceMinor:  12000,
		Ingredients: []inventory.IngredientRequest{{Name: "flour", Quantity: "200 g"}},
	})
	s.Require().NoError(err)
	s.dishID = dish.ID

	reg := prometheus.NewRegistry()
	healthHandler := health.NewHandler("test")
	healthHandler.Register("storage", func(context.Context) error { return nil })

	s.router = NewRouter(Deps{
		Carts: cart.NewManager(users, dishes, carts),
		Orders: orders.NewAssembler(orders.AssemblerDeps{
			Users:    users,
			Carts:    carts,
			Orders:   s.orders,
			Checkout: s.checkout,
			Timeline: timeline,
			Events:   emitter,
		}),
		Status:      orders.NewStatusMachine(s.orders, emitter, nil, nil),
		Inventory:   s.ledger,
		Identity:    auth.NewResolver(testSecret, testIssuer),
		Idempotency: memory.NewIdempotencyRepository(),
		Health:      healthHandler,
		Metrics:     metrics.NewHTTPMetricsWithRegisterer(reg),
		Gatherer:    reg,
		CORSOrigins: []string{"http://localhost:3000"},
	})
}

func tokenFor(t require.TestingT, email string, roles ...domain.Role) string {
	names := make([]any, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": email,
		"roles": names,
		"iss":   testIssuer,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func (s *RouterSuite) do(method, path, email string, body any, headers map[string]string, roles ...domain.Role) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if email != "" {
		req.Header.Set("Authorization", "Bearer "+tokenFor(s.T(), email, roles...))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](s *RouterSuite, w *httptest.ResponseRecorder) T {
	var out T
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func pickupBody() map[string]string {
	return map[string]string{
		"phoneNumber":  "+380501112233",
		"deliveryType": "PICKUP",
		"pickupPoint":  "Хрещатик 1",
	}
}

func (s *RouterSuite) placeOrder(email string) orderResponse {
	w := s.do(http.MethodPost, "/api/cart/add", email, map[string]any{"dishId": s.dishID, "quantity": 1}, nil, domain.RoleUser)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/orders/create", email, pickupBody(), nil, domain.RoleUser)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	return decode[orderResponse](s, w)
}

func (s *RouterSuite) TestOperationalRoutesArePublic() {
	for _, path := range []string{"/livez", "/healthz", "/readyz", "/metrics"} {
		w := s.do(http.MethodGet, path, "", nil, nil)
		s.Equal(http.StatusOK, w.Code, path)
	}
}

func (s *RouterSuite) TestAPIRequiresToken() {
	w := s.do(http.MethodGet, "/api/cart", "", nil, nil)
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal("unauthorized", decode[errorResponse](s, w).Error)

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RouterSuite) TestRequestIDIsEchoed() {
	w := s.do(http.MethodGet, "/livez", "", nil, map[string]string{requestIDHeader: "req-42"})
	s.Equal("req-42", w.Header().Get(requestIDHeader))

	w = s.do(http.MethodGet, "/livez", "", nil, nil)
	s.NotEmpty(w.Header().Get(requestIDHeader))
}

func (s *RouterSuite) TestCartAccumulatesQuantity() {
	w := s.do(http.MethodGet, "/api/cart", userEmail, nil, nil, domain.RoleUser)
	s.Require().Equal(http.StatusOK, w.Code)
	first := decode[cartResponse](s, w)

	s.do(http.MethodPost, "/api/cart/add", userEmail, map[string]any{"dishId": s.dishID, "quantity": 2}, nil, domain.RoleUser)
	w = s.do(http.MethodPost, "/api/cart/add", userEmail, map[string]any{"dishId": s.dishID, "quantity": 3}, nil, domain.RoleUser)
	s.Require().Equal(http.StatusOK, w.Code)

	got := decode[cartResponse](s, w)
	s.Equal(first.ID, got.ID)
	s.Require().Len(got.Items, 1)
	s.Equal(5, got.Items[0].Quantity)

	w = s.do(http.MethodPut, "/api/cart/update", userEmail, map[string]any{"dishId": s.dishID, "quantity": 0}, nil, domain.RoleUser)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Empty(decode[cartResponse](s, w).Items)
}

func (s *RouterSuite) TestCartValidation() {
	w := s.do(http.MethodPost, "/api/cart/add", userEmail, map[string]any{"dishId": s.dishID, "quantity": 0}, nil, domain.RoleUser)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/cart/add", userEmail, map[string]any{"dishId": "missing", "quantity": 1}, nil, domain.RoleUser)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(domain.ErrDishNotFound.Error(), decode[errorResponse](s, w).Error)

	w = s.do(http.MethodDelete, "/api/cart/remove", userEmail, nil, nil, domain.RoleUser)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterSuite) TestCartForUnknownUser() {
	w := s.do(http.MethodGet, "/api/cart", "ghost@example.com", nil, nil, domain.RoleUser)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *RouterSuite) TestCheckoutPickup() {
	order := s.placeOrder(userEmail)
	s.Equal(string(domain.OrderStatusPending), order.Status)
	s.Equal("Самовивіз: Хрещатик 1", order.DeliveryAddress)
	s.Require().Len(order.Items, 1)

	w := s.do(http.MethodGet, "/api/cart", userEmail, nil, nil, domain.RoleUser)
	s.Empty(decode[cartResponse](s, w).Items)

	w = s.do(http.MethodGet, "/api/orders/my", userEmail, nil, nil, domain.RoleUser)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Len(decode[[]orderResponse](s, w), 1)
}

func (s *RouterSuite) TestCheckoutValidationErrors() {
	w := s.do(http.MethodPost, "/api/orders/create", userEmail, pickupBody(), nil, domain.RoleUser)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(domain.ErrEmptyCart.Error(), decode[errorResponse](s, w).Error)

	s.do(http.MethodPost, "/api/cart/add", userEmail, map[string]any{"dishId": s.dishID, "quantity": 1}, nil, domain.RoleUser)

	body := map[string]string{"phoneNumber": "+380501112233", "deliveryType": "delivery", "city": "Київ"}
	w = s.do(http.MethodPost, "/api/orders/create", userEmail, body, nil, domain.RoleUser)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(domain.ErrIncompleteDeliveryAddress.Error(), decode[errorResponse](s, w).Error)

	w = s.do(http.MethodPost, "/api/orders/create", userEmail, "{not json", nil, domain.RoleUser)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterSuite) TestIdempotentCheckoutReplays() {
	s.do(http.MethodPost, "/api/cart/add", userEmail, map[string]any{"dishId": s.dishID, "quantity": 2}, nil, domain.RoleUser)

	headers := map[string]string{idempotencyKeyHeader: "checkout-1"}
	first := s.do(http.MethodPost, "/api/orders/create", userEmail, pickupBody(), headers, domain.RoleUser)
	s.Require().Equal(http.StatusOK, first.Code, first.Body.String())

	second := s.do(http.MethodPost, "/api/orders/create", userEmail, pickupBody(), headers, domain.RoleUser)
	s.Require().Equal(http.StatusOK, second.Code, second.Body.String())
	s.Equal("true", second.Header().Get(idempotencyReplayedHeader))
	s.Equal(decode[orderResponse](s, first).ID, decode[orderResponse](s, second).ID)

	all, err := s.orders.ListAll(s.ctx, 0)
	s.Require().NoError(err)
	s.Len(all, 1)

	other := pickupBody()
	other["pickupPoint"] = "Поділ"
	w := s.do(http.MethodPost, "/api/orders/create", userEmail, other, headers, domain.RoleUser)
	s.Equal(http.StatusConflict, w.Code)
}

func (s *RouterSuite) TestIdempotentCheckoutReplaysFailure() {
	headers := map[string]string{idempotencyKeyHeader: "checkout-empty"}
	first := s.do(http.MethodPost, "/api/orders/create", userEmail, pickupBody(), headers, domain.RoleUser)
	s.Require().Equal(http.StatusBadRequest, first.Code)

	second := s.do(http.MethodPost, "/api/orders/create", userEmail, pickupBody(), headers, domain.RoleUser)
	s.Equal(http.StatusBadRequest, second.Code)
	s.Equal(first.Body.String(), second.Body.String())
}

func (s *RouterSuite) TestIdempotentCheckoutRetriesAfterServerError() {
	s.do(http.MethodPost, "/api/cart/add", userEmail, map[string]any{"dishId": s.dishID, "quantity": 1}, nil, domain.RoleUser)
	s.checkout.failures = 1

	headers := map[string]string{idempotencyKeyHeader: "k1"}
	first := s.do(http.MethodPost, "/api/orders/create", userEmail, pickupBody(), headers, domain.RoleUser)
	s.Require().Equal(http.StatusInternalServerError, first.Code, first.Body.String())

	second := s.do(http.MethodPost, "/api/orders/create", userEmail, pickupBody(), headers, domain.RoleUser)
	s.Require().Equal(http.StatusOK, second.Code, second.Body.String())
	s.Empty(second.Header().Get(idempotencyReplayedHeader))

	third := s.do(http.MethodPost, "/api/orders/create", userEmail, pickupBody(), headers, domain.RoleUser)
	s.Require().Equal(http.StatusOK, third.Code)
	s.Equal("true", third.Header().Get(idempotencyReplayedHeader))

	all, err := s.orders.ListAll(s.ctx, 0)
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *RouterSuite) TestStatusProgression() {
	order := s.placeOrder(userEmail)
	path := fmt.Sprintf("/api/orders/%s/status?status=%%s", order.ID)

	w := s.do(http.MethodPut, fmt.Sprintf(path, "IN_PROGRESS"), userEmail, nil, nil, domain.RoleUser)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPut, fmt.Sprintf(path, "COMPLETED"), workerEmail, nil, nil, domain.RoleWorker)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal(domain.ErrInvalidStatusTransition.Error(), decode[errorResponse](s, w).Error)

	w = s.do(http.MethodPut, fmt.Sprintf(path, "cooking"), workerEmail, nil, nil, domain.RoleWorker)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, fmt.Sprintf(path, "in_progress"), workerEmail, nil, nil, domain.RoleWorker)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal(string(domain.OrderStatusInProgress), decode[orderResponse](s, w).Status)

	w = s.do(http.MethodPut, fmt.Sprintf("/api/orders/%s/cancel", order.ID), userEmail, nil, nil, domain.RoleUser)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal(domain.ErrOrderNotCancellable.Error(), decode[errorResponse](s, w).Error)

	w = s.do(http.MethodPut, "/api/orders/missing/status?status=IN_PROGRESS", adminEmail, nil, nil, domain.RoleAdmin)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *RouterSuite) TestCancelByOwnerOnly() {
	order := s.placeOrder(userEmail)

	w := s.do(http.MethodPut, fmt.Sprintf("/api/orders/%s/cancel", order.ID), otherEmail, nil, nil, domain.RoleUser)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPut, fmt.Sprintf("/api/orders/%s/cancel", order.ID), userEmail, nil, nil, domain.RoleUser)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(string(domain.OrderStatusCancelled), decode[orderResponse](s, w).Status)

	w = s.do(http.MethodPut, fmt.Sprintf("/api/orders/%s/status?status=IN_PROGRESS", order.ID), workerEmail, nil, nil, domain.RoleWorker)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal(domain.ErrOrderAlreadyFinal.Error(), decode[errorResponse](s, w).Error)
}

func (s *RouterSuite) TestTimelineAccess() {
	order := s.placeOrder(userEmail)
	path := fmt.Sprintf("/api/orders/%s/timeline", order.ID)

	w := s.do(http.MethodGet, path, userEmail, nil, nil, domain.RoleUser)
	s.Require().Equal(http.StatusOK, w.Code)
	events := decode[[]timelineEventResponse](s, w)
	s.Require().NotEmpty(events)
	s.Equal(string(domain.EventOrderCreated), events[0].Type)

	w = s.do(http.MethodGet, path, otherEmail, nil, nil, domain.RoleUser)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, path, workerEmail, nil, nil, domain.RoleWorker)
	s.Equal(http.StatusOK, w.Code)
}

func (s *RouterSuite) TestListAllRequiresStaff() {
	s.placeOrder(userEmail)

	w := s.do(http.MethodGet, "/api/orders/all", userEmail, nil, nil, domain.RoleUser)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/orders/all", adminEmail, nil, nil, domain.RoleAdmin)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Len(decode[[]orderResponse](s, w), 1)
}

func (s *RouterSuite) TestDishAdministration() {
	draft := map[string]any{
		"name":        "Big pancake",
		"priceMinor":  20000,
		"ingredients": []map[string]string{{"name": "Flour", "quantity": "900 g"}},
	}

	w := s.do(http.MethodPost, "/api/dishes", workerEmail, draft, nil, domain.RoleWorker)
	s.Equal(http.StatusForbidden, w.Code)

	// 800 g осталось после блюда из SetupTest
	w = s.do(http.MethodPost, "/api/dishes", adminEmail, draft, nil, domain.RoleAdmin)
	s.Equal(http.StatusConflict, w.Code)

	draft["ingredients"] = []map[string]string{{"name": "Flour", "quantity": "300 g"}}
	w = s.do(http.MethodPost, "/api/dishes", adminEmail, draft, nil, domain.RoleAdmin)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	created := decode[dishResponse](s, w)
	s.Require().Len(created.Ingredients, 1)
	s.Equal("g", created.Ingredients[0].Unit)

	w = s.do(http.MethodGet, "/api/ingredient-stocks", workerEmail, nil, nil, domain.RoleWorker)
	s.Require().Equal(http.StatusOK, w.Code)
	stocks := decode[[]stockResponse](s, w)
	s.Require().Len(stocks, 1)
	s.InDelta(500, stocks[0].Available, 1e-9)

	w = s.do(http.MethodGet, "/api/dishes?sort=-price&size=1", userEmail, nil, nil, domain.RoleUser)
	s.Require().Equal(http.StatusOK, w.Code)
	listed := decode[[]dishResponse](s, w)
	s.Require().Len(listed, 1)
	s.Equal(created.ID, listed[0].ID)

	w = s.do(http.MethodDelete, "/api/dishes/"+created.ID, adminEmail, nil, nil, domain.RoleAdmin)
	s.Equal(http.StatusNoContent, w.Code)

	w = s.do(http.MethodGet, "/api/dishes/"+created.ID, userEmail, nil, nil, domain.RoleUser)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *RouterSuite) TestDishListValidation() {
	for _, query := range []string{"sort=random", "size=0", "page=-1", "minPrice=abc"} {
		w := s.do(http.MethodGet, "/api/dishes?"+query, userEmail, nil, nil, domain.RoleUser)
		s.Equal(http.StatusBadRequest, w.Code, query)
	}
}

func (s *RouterSuite) TestStockRegistry() {
	w := s.do(http.MethodGet, "/api/ingredient-stocks", userEmail, nil, nil, domain.RoleUser)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/ingredient-stocks", adminEmail, map[string]string{"name": "flour", "amount": "5 kg"}, nil, domain.RoleAdmin)
	s.Equal(http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/api/ingredient-stocks", adminEmail, map[string]string{"name": "Milk", "amount": "1,5 л"}, nil, domain.RoleAdmin)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	milk := decode[stockResponse](s, w)
	s.InDelta(1.5, milk.Available, 1e-9)
	s.Equal("л", milk.Unit)

	w = s.do(http.MethodPost, "/api/ingredient-stocks", adminEmail, map[string]string{"name": "Salt", "amount": "a lot"}, nil, domain.RoleAdmin)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterSuite) TestCategories() {
	w := s.do(http.MethodPost, "/api/categories", userEmail, map[string]string{"name": "Desserts"}, nil, domain.RoleUser)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/categories", adminEmail, map[string]string{"name": "Desserts"}, nil, domain.RoleAdmin)
	s.Require().Equal(http.StatusCreated, w.Code)

	created := decode[categoryResponse](s, w)

	w = s.do(http.MethodGet, "/api/categories", userEmail, nil, nil, domain.RoleUser)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Len(decode[[]categoryResponse](s, w), 1)

	w = s.do(http.MethodGet, "/api/categories/"+created.ID, userEmail, nil, nil, domain.RoleUser)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("Desserts", decode[categoryResponse](s, w).Name)

	w = s.do(http.MethodGet, "/api/categories/missing", userEmail, nil, nil, domain.RoleUser)
	s.Equal(http.StatusNotFound, w.Code)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrEmptyCart, http.StatusBadRequest},
		{fmt.Errorf("ingredient %q: %w", "milk", domain.ErrInvalidQuantityFormat), http.StatusBadRequest},
		{domain.ErrNotOrderOwner, http.StatusForbidden},
		{domain.ErrOrderNotFound, http.StatusNotFound},
		{fmt.Errorf("ingredient %q: %w", "milk", domain.ErrIngredientNotFound), http.StatusNotFound},
		{domain.ErrOrderAlreadyFinal, http.StatusConflict},
		{domain.ErrInsufficientStock, http.StatusConflict},
		{domain.ErrIdempotencyHashMismatch, http.StatusConflict},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			require.Equal(t, tt.want, statusForError(tt.err))
		})
	}
}
