package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/response"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck is one dependency probed by GET /health.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// SystemHandler serves liveness and runtime information.
type SystemHandler struct {
	checks    []HealthCheck
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(log zerolog.Logger, checks ...HealthCheck) *SystemHandler {
	return &SystemHandler{
		checks:    checks,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type runtimeStats struct {
	Goroutines     int    `json:"goroutines"`
	HeapAllocBytes uint64 `json:"heap_alloc_bytes"`
	NumGC          uint32 `json:"num_gc"`
}

// Health godoc
// GET /health
// Returns 200 when every dependency answers, 503 otherwise.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", check.Name).Msg("Health check failed")
			deps[check.Name] = "down"
			status = "degraded"
			continue
		}
		deps[check.Name] = "up"
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	response.Success(c, code, gin.H{
		"status":       status,
		"dependencies": deps,
		"uptime":       time.Since(h.startTime).Round(time.Second).String(),
		"runtime": runtimeStats{
			Goroutines:     runtime.NumGoroutine(),
			HeapAllocBytes: mem.HeapAlloc,
			NumGC:          mem.NumGC,
		},
	})
}
