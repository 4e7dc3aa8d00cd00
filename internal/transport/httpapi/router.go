// Package httpapi — HTTP API сервиса на gin.
package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
	"github.com/vladislavdragonenkov/caffe/internal/health"
	"github.com/vladislavdragonenkov/caffe/internal/metrics"
	"github.com/vladislavdragonenkov/caffe/internal/service/cart"
	"github.com/vladislavdragonenkov/caffe/internal/service/inventory"
	"github.com/vladislavdragonenkov/caffe/internal/service/orders"
)

const defaultRequestTimeout = 3 * time.Second

// Deps — зависимости HTTP API.
type Deps struct {
	Carts     *cart.Manager
	Orders    *orders.Assembler
	Status    *orders.StatusMachine
	Inventory *inventory.Ledger
	Identity  IdentityResolver

	// Idempotency опционален: без него Idempotency-Key игнорируется.
	Idempotency    domain.IdempotencyRepository
	IdempotencyTTL time.Duration

	Health   *health.Handler
	Metrics  *metrics.HTTPMetrics
	Gatherer prometheus.Gatherer

	CORSOrigins    []string
	RequestTimeout time.Duration
	Logger         *log.Entry
}

type handlers struct {
	carts       *cart.Manager
	orders      *orders.Assembler
	status      *orders.StatusMachine
	inventory   *inventory.Ledger
	idempotency *idempotencyGuard
}

// NewRouter собирает gin.Engine со всеми маршрутами.
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &handlers{
		carts:       deps.Carts,
		orders:      deps.Orders,
		status:      deps.Status,
		inventory:   deps.Inventory,
		idempotency: newIdempotencyGuard(deps.Idempotency, deps.IdempotencyTTL, logger),
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestMetrics(deps.Metrics), requestLogging(logger))
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.New(corsConfig(deps.CORSOrigins)))
	}

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/livez", health.Livez)
	if deps.Health != nil {
		r.GET("/healthz", deps.Health.Healthz)
		r.GET("/readyz", deps.Health.Readyz)
	}

	staff := requireRole(domain.RoleAdmin, domain.RoleWorker)
	admin := requireRole(domain.RoleAdmin)

	api := r.Group("/api", requestTimeout(timeout), authenticate(deps.Identity))
	{
		cartGroup := api.Group("/cart")
		cartGroup.GET("", h.getCart)
		cartGroup.POST("/add", h.addToCart)
		cartGroup.PUT("/update", h.updateCartItem)
		cartGroup.DELETE("/remove", h.removeFromCart)
		cartGroup.DELETE("/clear", h.clearCart)

		orderGroup := api.Group("/orders")
		orderGroup.POST("/create", h.createOrder)
		orderGroup.GET("/my", h.myOrders)
		orderGroup.GET("/all", staff, h.allOrders)
		orderGroup.GET("/:id/timeline", h.orderTimeline)
		orderGroup.PUT("/:id/status", staff, h.advanceOrder)
		orderGroup.PUT("/:id/cancel", h.cancelOrder)

		dishGroup := api.Group("/dishes")
		dishGroup.GET("", h.listDishes)
		dishGroup.GET("/:id", h.getDish)
		dishGroup.POST("", admin, h.createDish)
		dishGroup.PUT("/:id", admin, h.updateDish)
		dishGroup.DELETE("/:id", admin, h.deleteDish)

		categoryGroup := api.Group("/categories")
		categoryGroup.GET("", h.listCategories)
		categoryGroup.GET("/:id", h.getCategory)
		categoryGroup.POST("", admin, h.createCategory)

		stockGroup := api.Group("/ingredient-stocks", staff)
		stockGroup.GET("", h.listStocks)
		stockGroup.GET("/:id", h.getStock)
		stockGroup.POST("", admin, h.createStock)
		stockGroup.PUT("/:id", admin, h.updateStock)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
		}
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowOrigins = origins
	}
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", idempotencyKeyHeader, requestIDHeader)
	cfg.ExposeHeaders = []string{requestIDHeader, idempotencyReplayedHeader}
	return cfg
}
