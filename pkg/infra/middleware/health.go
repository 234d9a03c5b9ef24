package middleware

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus represents the health status.
type HealthStatus string

const (
	// HealthStatusUp indicates the service is healthy.
	HealthStatusUp HealthStatus = "UP"
	// HealthStatusDown indicates the service is unhealthy.
	HealthStatusDown HealthStatus = "DOWN"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status HealthStatus           `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult represents an individual health check result.
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthChecker performs one readiness check.
type HealthChecker func(ctx context.Context) error

// HealthManager holds readiness checks.
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	timeout  time.Duration
}

// NewHealthManager creates a health manager whose checks run with timeout.
func NewHealthManager(timeout time.Duration) *HealthManager {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HealthManager{
		checkers: make(map[string]HealthChecker),
		timeout:  timeout,
	}
}

// RegisterChecker registers a readiness check under name.
func (h *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// Check runs all checks concurrently.
func (h *HealthManager) Check(ctx context.Context) HealthResponse {
	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	resp := HealthResponse{Status: HealthStatusUp}
	if len(names) == 0 {
		return resp
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make([]CheckResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		h.mu.RLock()
		checker := h.checkers[name]
		h.mu.RUnlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := checker(ctx); err != nil {
				results[i] = CheckResult{Status: HealthStatusDown, Message: err.Error()}
				return
			}
			results[i] = CheckResult{Status: HealthStatusUp}
		}()
	}
	wg.Wait()

	resp.Checks = make(map[string]CheckResult, len(names))
	for i, name := range names {
		resp.Checks[name] = results[i]
		if results[i].Status == HealthStatusDown {
			resp.Status = HealthStatusDown
		}
	}
	return resp
}

// RegisterHealthRoutes registers GET /healthz (liveness) and GET /readyz
// (readiness, runs the registered checks).
func RegisterHealthRoutes(r gin.IRoutes, h *HealthManager) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{Status: HealthStatusUp})
	})
	r.GET("/readyz", func(c *gin.Context) {
		resp := h.Check(c.Request.Context())
		status := http.StatusOK
		if resp.Status == HealthStatusDown {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, resp)
	})
}
