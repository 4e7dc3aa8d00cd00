package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetrics_ObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetricsWithRegisterer(reg)

	m.ObserveRequest("GET", "/api/cart", 200, 15*time.Millisecond)
	m.ObserveRequest("GET", "/api/cart", 200, 5*time.Millisecond)
	m.ObserveRequest("GET", "", 404, time.Millisecond)

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/cart", "200")); got != 2 {
		t.Errorf("expected 2 requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("expected unmatched route to be counted, got %v", got)
	}
	if got := testutil.CollectAndCount(m.duration); got != 2 {
		t.Errorf("expected 2 histogram series, got %d", got)
	}
}

func TestHTTPMetrics_NilSafe(t *testing.T) {
	var m *HTTPMetrics
	m.ObserveRequest("GET", "/", 200, time.Millisecond)
}

func TestHTTPMetrics_ReRegisterReturnsExisting(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewHTTPMetricsWithRegisterer(reg)
	second := NewHTTPMetricsWithRegisterer(reg)

	first.ObserveRequest("POST", "/api/orders/create", 200, time.Millisecond)
	if got := testutil.ToFloat64(second.requests.WithLabelValues("POST", "/api/orders/create", "200")); got != 1 {
		t.Errorf("expected shared collector, got %v", got)
	}
}
