package handler

import (
	"errors"
	"net/http"

	"github.com/stemsi/exstem-academy/internal/exam"
	"github.com/stemsi/exstem-academy/internal/response"
	"github.com/stemsi/exstem-academy/internal/service"
)

// errorStatus maps service and engine errors to an HTTP status and code.
// ErrSessionCompleted wraps ErrInvalidState, so it is matched first.
func errorStatus(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, exam.ErrNotFound):
		return http.StatusNotFound, response.ErrExamNotFound
	case errors.Is(err, exam.ErrEmpty):
		return http.StatusUnprocessableEntity, response.ErrExamEmpty
	case errors.Is(err, exam.ErrMalformedExam):
		return http.StatusUnprocessableEntity, response.ErrExamMalformed
	case errors.Is(err, service.ErrAttemptNotFound):
		return http.StatusNotFound, response.ErrAttemptNotFound
	case errors.Is(err, service.ErrMaxAttemptsReached):
		return http.StatusConflict, response.ErrMaxAttemptsReached
	case errors.Is(err, exam.ErrSessionCompleted):
		return http.StatusConflict, response.ErrSessionCompleted
	case errors.Is(err, exam.ErrInvalidState):
		return http.StatusConflict, response.ErrInvalidState
	case errors.Is(err, exam.ErrUnknownQuestion):
		return http.StatusNotFound, response.ErrUnknownQuestion
	case errors.Is(err, exam.ErrInvalidAnswerShape):
		return http.StatusUnprocessableEntity, response.ErrInvalidAnswerShape
	case errors.Is(err, exam.ErrIndexOutOfRange):
		return http.StatusUnprocessableEntity, response.ErrIndexOutOfRange
	case errors.Is(err, exam.ErrPersistence):
		return http.StatusServiceUnavailable, response.ErrPersistenceFailed
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}
