package monitoring

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthCheckFunc func(ctx context.Context) error

// StatsFunc reports point-in-time counters shown alongside the checks.
type StatsFunc func() map[string]interface{}

type HealthCheck struct {
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	Message  string    `json:"message,omitempty"`
	Critical bool      `json:"critical"`
	LastRun  time.Time `json:"last_run"`
}

type registeredCheck struct {
	fn       HealthCheckFunc
	critical bool
}

// HealthChecker runs registered dependency checks on demand. Only critical
// checks decide readiness; the rest are reported as degraded.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]registeredCheck
	stats   map[string]StatsFunc
	timeout time.Duration
}

func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{
		checks:  make(map[string]registeredCheck),
		stats:   make(map[string]StatsFunc),
		timeout: timeout,
	}
}

func (h *HealthChecker) Register(name string, critical bool, fn HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = registeredCheck{fn: fn, critical: critical}
}

func (h *HealthChecker) RegisterStats(name string, fn StatsFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats[name] = fn
}

func (h *HealthChecker) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]interface{}, len(h.stats))
	for name, fn := range h.stats {
		out[name] = fn()
	}
	return out
}

func (h *HealthChecker) Run(ctx context.Context) []HealthCheck {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]registeredCheck, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	results := make([]HealthCheck, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string, rc registeredCheck) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			result := HealthCheck{Name: name, Status: "healthy", Critical: rc.critical, LastRun: time.Now()}
			if err := rc.fn(cctx); err != nil {
				result.Status = "unhealthy"
				result.Message = err.Error()
			}
			results[i] = result
		}(i, name, checks[name])
	}
	wg.Wait()
	return results
}

func summarize(results []HealthCheck) string {
	status := "healthy"
	for _, r := range results {
		if r.Status == "healthy" {
			continue
		}
		if r.Critical {
			return "unhealthy"
		}
		status = "degraded"
	}
	return status
}

func (h *HealthChecker) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		results := h.Run(c.Request.Context())
		overall := summarize(results)

		status := http.StatusOK
		if overall == "unhealthy" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status":    overall,
			"timestamp": time.Now(),
			"checks":    results,
			"stats":     h.Stats(),
			"system":    GetSystemMetrics(),
		})
	}
}

func (h *HealthChecker) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if summarize(h.Run(c.Request.Context())) == "unhealthy" {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "not ready",
				"timestamp": time.Now(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now(),
		})
	}
}
