package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/middleware"
	"github.com/stemsi/exstem-academy/internal/response"
	"github.com/stemsi/exstem-academy/internal/service"
)

// ExamHandler handles admin exam endpoints.
type ExamHandler struct {
	catalog  *service.ExamCatalogService
	attempts *service.AttemptService
	log      zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(catalog *service.ExamCatalogService, attempts *service.AttemptService, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		catalog:  catalog,
		attempts: attempts,
		log:      log.With().Str("component", "exam_handler").Logger(),
	}
}

// RefreshCache godoc
// POST /api/v1/admin/exams/:exam_ref/refresh-cache
// Reloads the definition from Postgres and replaces the cached copy.
// Attempts already running keep the definition they started with.
func (h *ExamHandler) RefreshCache(c *gin.Context) {
	ref, ok := parseUUIDParam(c, "exam_ref")
	if !ok {
		return
	}

	def, err := h.catalog.Refresh(c.Request.Context(), ref)
	if err != nil {
		status, code := errorStatus(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Str("exam_ref", ref.String()).Msg("Refresh cache failed")
		}
		response.Fail(c, status, code)
		return
	}

	inProgress, unsaved := h.attempts.LiveCount(def.ID)
	adminID := 0
	if claims := middleware.GetClaims(c); claims != nil {
		adminID = claims.UserID
	}
	h.log.Info().
		Int("admin_id", adminID).
		Str("exam_id", def.ID).
		Int("live_attempts", inProgress).
		Msg("Exam cache refreshed")

	response.Success(c, http.StatusOK, gin.H{
		"exam_id":        def.ID,
		"question_count": len(def.Questions),
		"max_score":      def.MaxScore(),
		"live_attempts":  inProgress,
		"unsaved":        unsaved,
	})
}
