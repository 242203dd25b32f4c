package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/response"
	"github.com/stemsi/exstem-academy/internal/service"
)

const (
	defaultRecentAttempts = 10
	maxRecentAttempts     = 100
)

// DashboardHandler handles the admin exam dashboard.
type DashboardHandler struct {
	dashboardService *service.DashboardService
	log              zerolog.Logger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(dashboardService *service.DashboardService, log zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
		log:              log.With().Str("component", "dashboard_handler").Logger(),
	}
}

// GetExamDashboard godoc
// GET /api/v1/admin/exams/:exam_ref/dashboard?recent=10
// Returns attempt totals, pass rate, per-question correctness, recent
// attempts and live session counts.
func (h *DashboardHandler) GetExamDashboard(c *gin.Context) {
	ref, ok := parseUUIDParam(c, "exam_ref")
	if !ok {
		return
	}

	limit := defaultRecentAttempts
	if raw := c.Query("recent"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRecentAttempts {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"recent": "must be between 1 and 100"})
			return
		}
		limit = n
	}

	data, err := h.dashboardService.GetExamDashboard(c.Request.Context(), ref, limit)
	if err != nil {
		status, code := errorStatus(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Str("exam_ref", ref.String()).Msg("Dashboard query failed")
		}
		response.Fail(c, status, code)
		return
	}

	response.Success(c, http.StatusOK, data)
}
