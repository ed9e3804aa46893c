// Package health serves the liveness, readiness and dependency endpoints of trellis.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// pingTimeout bounds each dependency check.
const pingTimeout = 5 * time.Second

type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Response struct {
	Status     Status                 `json:"status"`
	Version    string                 `json:"version,omitempty"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

// Pinger is anything with a connectivity check (database, redis).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error {
	return f(ctx)
}

// Checker pings the registered dependencies. It reports not ready until startup has finished and
// again once shutdown begins.
type Checker struct {
	version string
	started time.Time
	ready   atomic.Bool

	mu      sync.RWMutex
	pingers map[string]Pinger
}

func NewChecker(version string) *Checker {
	return &Checker{
		version: version,
		started: time.Now(),
		pingers: map[string]Pinger{},
	}
}

func (c *Checker) AddCheck(name string, pinger Pinger) {
	c.mu.Lock()
	c.pingers[name] = pinger
	c.mu.Unlock()
}

func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

// RegisterRoutes mounts /api/v1/health, /api/v1/health/live and /api/v1/health/ready.
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/health")
	g.GET("", c.health)
	g.GET("/live", c.live)
	g.GET("/ready", c.readyz)
}

func (c *Checker) live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.response(StatusHealthy, nil))
}

func (c *Checker) readyz(ctx echo.Context) error {
	if c.ready.Load() {
		return c.health(ctx)
	}
	return ctx.JSON(http.StatusServiceUnavailable, c.response(StatusUnhealthy, map[string]CheckResult{
		"startup": {Status: StatusUnhealthy, Message: "service is not accepting traffic"},
	}))
}

func (c *Checker) health(ctx echo.Context) error {
	results := c.ping(ctx.Request().Context())

	status, code := StatusHealthy, http.StatusOK
	for _, result := range results {
		if result.Status == StatusUnhealthy {
			status, code = StatusUnhealthy, http.StatusServiceUnavailable
			break
		}
	}
	return ctx.JSON(code, c.response(status, results))
}

func (c *Checker) response(status Status, checks map[string]CheckResult) Response {
	return Response{
		Status:     status,
		Version:    c.version,
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		Checks:     checks,
		ReportedAt: time.Now(),
	}
}

// ping checks every dependency concurrently.
func (c *Checker) ping(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	pingers := make(map[string]Pinger, len(c.pingers))
	for name, pinger := range c.pingers {
		pingers[name] = pinger
	}
	c.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(pingers))
	)
	for name, pinger := range pingers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := pingOne(ctx, pinger)
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

func pingOne(ctx context.Context, pinger Pinger) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	err := pinger.PingContext(ctx)
	result := CheckResult{Status: StatusHealthy, Latency: time.Since(start).String()}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	return result
}
