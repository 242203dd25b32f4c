package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the publication states of a course exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// CourseExam is the stored exam metadata of a course.
type CourseExam struct {
	ID                  uuid.UUID  `json:"id"`
	CourseID            *uuid.UUID `json:"course_id,omitempty"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	PassingScorePercent int        `json:"passing_score_percent"`
	TimeLimitSeconds    int        `json:"time_limit_seconds"`
	MaxAttempts         int        `json:"max_attempts"`
	Status              ExamStatus `json:"status"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// ExamQuestion is a stored question row. Options and CorrectAnswer are JSON:
// an array of strings and a string or array of strings respectively.
type ExamQuestion struct {
	ID            uuid.UUID       `json:"id"`
	ExamID        uuid.UUID       `json:"exam_id"`
	QuestionType  string          `json:"question_type"`
	Prompt        string          `json:"prompt"`
	Options       json.RawMessage `json:"options"`
	CorrectAnswer json.RawMessage `json:"correct_answer"`
	Points        int             `json:"points"`
	OrderNum      int             `json:"order_num"`
}

// ExamPaper is the student-facing view of an exam: no answer keys.
type ExamPaper struct {
	ExamID              string          `json:"exam_id"`
	Title               string          `json:"title"`
	Description         string          `json:"description"`
	PassingScorePercent int             `json:"passing_score_percent"`
	TimeLimitSeconds    int             `json:"time_limit_seconds"`
	MaxAttempts         int             `json:"max_attempts"`
	Questions           []PaperQuestion `json:"questions"`
}

// PaperQuestion is a question without its correct answer.
type PaperQuestion struct {
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
	Points  int      `json:"points"`
}
