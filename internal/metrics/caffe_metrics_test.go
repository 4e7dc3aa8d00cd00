package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestNewCaffeMetricsWithRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCaffeMetricsWithRegisterer(reg)

	m.RecordOrderCreated(15 * time.Millisecond)
	m.RecordOrderCreated(5 * time.Millisecond)
	m.RecordCheckoutRejected("empty_cart")
	m.RecordStatusTransition("PENDING", "IN_PROGRESS")
	m.RecordOrderCanceled()
	m.RecordCartMutation("add")
	m.RecordCartMutation("add")
	m.RecordDishCreated(3)
	m.RecordDishRejected("insufficient_stock")
	m.RecordTimelineEvent()
	m.RecordOutboxEvent("order.created")
	m.RecordVersionConflict("cart")

	if got := testutil.ToFloat64(m.ordersCreated); got != 2 {
		t.Fatalf("expected 2 orders created, got %v", got)
	}
	if got := testutil.ToFloat64(m.checkoutRejected.WithLabelValues("empty_cart")); got != 1 {
		t.Fatalf("expected 1 rejected checkout, got %v", got)
	}
	if got := testutil.ToFloat64(m.statusTransitions.WithLabelValues("PENDING", "IN_PROGRESS")); got != 1 {
		t.Fatalf("expected 1 transition, got %v", got)
	}
	if got := testutil.ToFloat64(m.cartMutations.WithLabelValues("add")); got != 2 {
		t.Fatalf("expected 2 cart mutations, got %v", got)
	}
	if got := testutil.ToFloat64(m.stockDeductions); got != 3 {
		t.Fatalf("expected 3 stock deductions, got %v", got)
	}

	metric := &dto.Metric{}
	if err := m.checkoutDuration.Write(metric); err != nil {
		t.Fatalf("failed to write histogram: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 2 {
		t.Fatalf("expected 2 checkout samples, got %d", metric.Histogram.GetSampleCount())
	}
}

func TestNewCaffeMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewCaffeMetricsWithRegisterer(reg)
	second := NewCaffeMetricsWithRegisterer(reg)

	first.RecordOrderCanceled()
	second.RecordOrderCanceled()

	if got := testutil.ToFloat64(first.ordersCanceled); got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}

func TestCaffeMetrics_NilSafe(t *testing.T) {
	var m *CaffeMetrics

	m.RecordOrderCreated(time.Millisecond)
	m.RecordCheckoutRejected("x")
	m.RecordStatusTransition("a", "b")
	m.RecordOrderCanceled()
	m.RecordCartMutation("add")
	m.RecordDishCreated(1)
	m.RecordDishRejected("x")
	m.RecordTimelineEvent()
	m.RecordOutboxEvent("x")
	m.RecordVersionConflict("order")
}
