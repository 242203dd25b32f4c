package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates how a stored attempt ended.
type AttemptStatus string

const (
	AttemptStatusSubmitted   AttemptStatus = "SUBMITTED"
	AttemptStatusTimeExpired AttemptStatus = "TIME_EXPIRED"
	AttemptStatusAbandoned   AttemptStatus = "ABANDONED"
)

// AttemptRecord is a persisted, graded exam attempt.
type AttemptRecord struct {
	ID                  uuid.UUID       `json:"id"`
	ExamID              uuid.UUID       `json:"exam_id"`
	CourseID            *uuid.UUID      `json:"course_id,omitempty"`
	StudentID           int             `json:"student_id"`
	AttemptNumber       int             `json:"attempt_number"`
	Status              AttemptStatus   `json:"status"`
	RawScore            int             `json:"raw_score"`
	MaxScore            int             `json:"max_score"`
	Percentage          int             `json:"percentage"`
	Passed              bool            `json:"passed"`
	CertificateEligible bool            `json:"certificate_eligible"`
	ElapsedSeconds      int             `json:"elapsed_seconds"`
	Answers             json.RawMessage `json:"answers"`
	Correctness         json.RawMessage `json:"per_question_correctness"`
	StartedAt           time.Time       `json:"started_at"`
	CompletedAt         time.Time       `json:"completed_at"`
	CreatedAt           time.Time       `json:"created_at"`
}

// GotoRequest is the payload for moving the question cursor.
type GotoRequest struct {
	Index *int `json:"index" binding:"required,min=0"`
}

// AnswerRequest is the payload for answering a question. Value is a string
// for single choice and free text, an array of strings for multi select.
type AnswerRequest struct {
	Value json.RawMessage `json:"value" binding:"required,answer_value"`
}
