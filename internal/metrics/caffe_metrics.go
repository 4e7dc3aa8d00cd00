package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CaffeMetrics содержит доменные метрики сервиса: заказы, корзины, склад.
// Методы безопасно вызывать на nil (метрики отключены).
type CaffeMetrics struct {
	ordersCreated     prometheus.Counter
	checkoutRejected  *prometheus.CounterVec
	checkoutDuration  prometheus.Histogram
	statusTransitions *prometheus.CounterVec
	ordersCanceled    prometheus.Counter
	versionConflicts  *prometheus.CounterVec

	cartMutations *prometheus.CounterVec

	stockDeductions prometheus.Counter
	dishesRejected  *prometheus.CounterVec
	dishesCreated   prometheus.Counter

	timelineEvents prometheus.Counter
	outboxEvents   *prometheus.CounterVec
}

// NewCaffeMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewCaffeMetrics() *CaffeMetrics {
	return NewCaffeMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCaffeMetricsWithRegisterer регистрирует метрики в заданном реестре (в тестах свой реестр).
func NewCaffeMetricsWithRegisterer(registerer prometheus.Registerer) *CaffeMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CaffeMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "caffe_orders_created_total",
			Help: "Total number of orders placed from carts",
		}),
		checkoutRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "caffe_checkout_rejected_total",
			Help: "Total number of rejected checkouts by reason",
		}, []string{"reason"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "caffe_checkout_duration_seconds",
			Help:    "Duration of checkout operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		statusTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "caffe_order_status_transitions_total",
			Help: "Total number of order status transitions",
		}, []string{"from", "to"}),
		ordersCanceled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "caffe_orders_canceled_total",
			Help: "Total number of orders canceled by owners",
		}),
		versionConflicts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "caffe_version_conflicts_total",
			Help: "Total number of optimistic locking conflicts by aggregate",
		}, []string{"aggregate"}),
		cartMutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "caffe_cart_mutations_total",
			Help: "Total number of cart mutations by operation",
		}, []string{"op"}),
		stockDeductions: registerCounter(registerer, prometheus.CounterOpts{
			Name: "caffe_stock_deductions_total",
			Help: "Total number of ingredient stock rows decremented",
		}),
		dishesRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "caffe_dishes_rejected_total",
			Help: "Total number of rejected dish definitions by reason",
		}, []string{"reason"}),
		dishesCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "caffe_dishes_created_total",
			Help: "Total number of dishes created",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "caffe_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "caffe_outbox_events_enqueued_total",
			Help: "Total number of events written to the outbox",
		}, []string{"event"}),
	}
}

// RecordOrderCreated фиксирует оформленный заказ и длительность checkout.
func (m *CaffeMetrics) RecordOrderCreated(duration time.Duration) {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordCheckoutRejected фиксирует отказ в оформлении заказа.
func (m *CaffeMetrics) RecordCheckoutRejected(reason string) {
	if m == nil {
		return
	}
	m.checkoutRejected.WithLabelValues(reason).Inc()
}

// RecordStatusTransition фиксирует смену статуса заказа.
func (m *CaffeMetrics) RecordStatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(from, to).Inc()
}

// RecordOrderCanceled увеличивает счётчик отменённых заказов.
func (m *CaffeMetrics) RecordOrderCanceled() {
	if m == nil {
		return
	}
	m.ordersCanceled.Inc()
}

// RecordVersionConflict фиксирует конфликт optimistic locking.
func (m *CaffeMetrics) RecordVersionConflict(aggregate string) {
	if m == nil {
		return
	}
	m.versionConflicts.WithLabelValues(aggregate).Inc()
}

// RecordCartMutation фиксирует изменение корзины.
func (m *CaffeMetrics) RecordCartMutation(op string) {
	if m == nil {
		return
	}
	m.cartMutations.WithLabelValues(op).Inc()
}

// RecordDishCreated фиксирует созданное блюдо и число списанных складских позиций.
func (m *CaffeMetrics) RecordDishCreated(deductedRows int) {
	if m == nil {
		return
	}
	m.dishesCreated.Inc()
	m.stockDeductions.Add(float64(deductedRows))
}

// RecordDishRejected фиксирует отклонённое блюдо.
func (m *CaffeMetrics) RecordDishRejected(reason string) {
	if m == nil {
		return
	}
	m.dishesRejected.WithLabelValues(reason).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *CaffeMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CaffeMetrics) RecordOutboxEvent(eventType string) {
	if m == nil {
		return
	}
	m.outboxEvents.WithLabelValues(eventType).Inc()
}
