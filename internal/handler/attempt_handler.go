package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/exam"
	"github.com/stemsi/exstem-academy/internal/middleware"
	"github.com/stemsi/exstem-academy/internal/model"
	"github.com/stemsi/exstem-academy/internal/response"
	"github.com/stemsi/exstem-academy/internal/service"
	"github.com/stemsi/exstem-academy/internal/validator"
)

// AttemptHandler handles the student exam-taking endpoints.
type AttemptHandler struct {
	attempts *service.AttemptService
	catalog  *service.ExamCatalogService
	log      zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts *service.AttemptService, catalog *service.ExamCatalogService, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempts: attempts,
		catalog:  catalog,
		log:      log.With().Str("component", "attempt_handler").Logger(),
	}
}

// GetPaper godoc
// GET /api/v1/student/exams/:exam_ref/paper
// Returns the exam questions without answer keys.
func (h *AttemptHandler) GetPaper(c *gin.Context) {
	ref, ok := parseUUIDParam(c, "exam_ref")
	if !ok {
		return
	}

	def, err := h.catalog.Load(c.Request.Context(), ref)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"paper": h.catalog.Paper(def)})
}

// BeginAttempt godoc
// POST /api/v1/student/exams/:exam_ref/attempts
// Starts an attempt, or returns the one already in progress.
func (h *AttemptHandler) BeginAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	ref, ok := parseUUIDParam(c, "exam_ref")
	if !ok {
		return
	}

	view, err := h.attempts.Begin(c.Request.Context(), claims.UserID, ref)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"attempt": view})
}

// ListAttempts godoc
// GET /api/v1/student/exams/:exam_ref/attempts
// Lists the student's stored attempts of an exam, newest first.
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	ref, ok := parseUUIDParam(c, "exam_ref")
	if !ok {
		return
	}

	records, err := h.attempts.History(c.Request.Context(), claims.UserID, ref)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": records})
}

// GetAttempt godoc
// GET /api/v1/student/attempts/:attempt_id
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	claims, id, ok := h.attemptScope(c)
	if !ok {
		return
	}

	view, err := h.attempts.State(c.Request.Context(), id, claims.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": view})
}

// AnswerQuestion godoc
// PUT /api/v1/student/attempts/:attempt_id/answers/:question_id
// Replaces the stored answer. Body: {"value": "text"} or {"value": ["a","b"]}.
func (h *AttemptHandler) AnswerQuestion(c *gin.Context) {
	claims, id, ok := h.attemptScope(c)
	if !ok {
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	var value exam.Value
	if err := json.Unmarshal(req.Value, &value); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	questionID := c.Param("question_id")
	if err := h.attempts.Answer(id, claims.UserID, questionID, value); err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_id": questionID, "value": value})
}

// GotoQuestion godoc
// POST /api/v1/student/attempts/:attempt_id/goto
func (h *AttemptHandler) GotoQuestion(c *gin.Context) {
	claims, id, ok := h.attemptScope(c)
	if !ok {
		return
	}

	var req model.GotoRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.attempts.Goto(id, claims.UserID, *req.Index)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": view})
}

// SubmitAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/submit
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	h.finish(c, h.attempts.Submit)
}

// AbandonAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/abandon
func (h *AttemptHandler) AbandonAttempt(c *gin.Context) {
	h.finish(c, h.attempts.Abandon)
}

// PersistAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/persist
// Retries saving a graded attempt whose first save failed.
func (h *AttemptHandler) PersistAttempt(c *gin.Context) {
	h.finish(c, h.attempts.Persist)
}

type finishFunc func(ctx context.Context, attemptID uuid.UUID, studentID int) (*service.AttemptView, error)

func (h *AttemptHandler) finish(c *gin.Context, fn finishFunc) {
	claims, id, ok := h.attemptScope(c)
	if !ok {
		return
	}

	view, err := fn(c.Request.Context(), id, claims.UserID)
	if errors.Is(err, exam.ErrPersistence) && view != nil {
		// The attempt is graded; the client keeps the result and may retry.
		response.FailWithData(c, http.StatusServiceUnavailable, response.ErrPersistenceFailed, gin.H{"attempt": view})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": view})
}

func (h *AttemptHandler) attemptScope(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}
	id, ok := parseUUIDParam(c, "attempt_id")
	if !ok {
		return nil, uuid.Nil, false
	}
	return claims, id, true
}

func (h *AttemptHandler) fail(c *gin.Context, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("request_id", response.RequestID(c)).Msg("Attempt request failed")
	}
	response.Fail(c, status, code)
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
