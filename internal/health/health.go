// Package health отдаёт liveness, readiness и подробный отчёт о зависимостях кафе.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultProbeTimeout = 2 * time.Second

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Probe проверяет одну зависимость; nil означает, что она в порядке.
type Probe func(ctx context.Context) error

// ComponentReport — результат одной проверки.
type ComponentReport struct {
	Status    Status `json:"status"`
	Optional  bool   `json:"optional,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Report — тело ответа /healthz.
type Report struct {
	Status        Status                     `json:"status"`
	Version       string                     `json:"version,omitempty"`
	CheckedAt     time.Time                  `json:"checked_at"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Components    map[string]ComponentReport `json:"components,omitempty"`
}

type component struct {
	probe    Probe
	optional bool
	timeout  time.Duration
}

// ProbeOption настраивает регистрацию проверки.
type ProbeOption func(*component)

// Optional помечает зависимость, без которой сервис работает: её отказ
// даёт degraded, а не unhealthy, и не снимает под с балансировки.
func Optional() ProbeOption {
	return func(c *component) { c.optional = true }
}

func WithTimeout(timeout time.Duration) ProbeOption {
	return func(c *component) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// Handler хранит зарегистрированные проверки.
type Handler struct {
	mu         sync.RWMutex
	components map[string]component
	version    string
	startedAt  time.Time
}

func NewHandler(version string) *Handler {
	return &Handler{
		components: make(map[string]component),
		version:    version,
		startedAt:  time.Now(),
	}
}

// Register добавляет или заменяет проверку с именем name.
func (h *Handler) Register(name string, probe Probe, options ...ProbeOption) {
	c := component{probe: probe, timeout: defaultProbeTimeout}
	for _, option := range options {
		option(&c)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.components[name] = c
}

// Names возвращает имена зарегистрированных проверок по алфавиту.
func (h *Handler) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.components))
	for name := range h.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluate запускает все проверки параллельно и сводит их статусы.
func (h *Handler) Evaluate(ctx context.Context) Report {
	h.mu.RLock()
	components := make(map[string]component, len(h.components))
	for name, c := range h.components {
		components[name] = c
	}
	h.mu.RUnlock()

	report := Report{
		Status:        StatusHealthy,
		Version:       h.version,
		CheckedAt:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Components:    make(map[string]ComponentReport, len(components)),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, c := range components {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := runProbe(ctx, c)
			mu.Lock()
			report.Components[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, result := range report.Components {
		switch {
		case result.Status == StatusUnhealthy:
			report.Status = StatusUnhealthy
		case result.Status == StatusDegraded && report.Status == StatusHealthy:
			report.Status = StatusDegraded
		}
	}
	return report
}

func runProbe(ctx context.Context, c component) ComponentReport {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	err := c.probe(ctx)
	result := ComponentReport{
		Status:    StatusHealthy,
		Optional:  c.optional,
		LatencyMs: time.Since(started).Milliseconds(),
	}
	if err == nil {
		return result
	}

	result.Error = err.Error()
	result.Status = StatusUnhealthy
	if c.optional {
		result.Status = StatusDegraded
	}
	return result
}

// Healthz отдаёт подробный отчёт; 503 только если отказала обязательная зависимость.
func (h *Handler) Healthz(c *gin.Context) {
	report := h.Evaluate(c.Request.Context())
	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

// Readyz — probe для балансировщика.
func (h *Handler) Readyz(c *gin.Context) {
	if h.Evaluate(c.Request.Context()).Status == StatusUnhealthy {
		c.String(http.StatusServiceUnavailable, "not ready")
		return
	}
	c.String(http.StatusOK, "ready")
}

// Livez отвечает 200, пока процесс обслуживает HTTP.
func Livez(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
