package model

import (
	"time"

	"github.com/google/uuid"
)

// Certificate is issued for an attempt that passed its exam.
type Certificate struct {
	ID         uuid.UUID  `json:"id"`
	AttemptID  uuid.UUID  `json:"attempt_id"`
	ExamID     uuid.UUID  `json:"exam_id"`
	CourseID   *uuid.UUID `json:"course_id,omitempty"`
	StudentID  int        `json:"student_id"`
	Percentage int        `json:"percentage"`
	IssuedAt   time.Time  `json:"issued_at"`
}

// CertificateRequest is the queued instruction to issue a certificate.
type CertificateRequest struct {
	AttemptID  string `json:"attempt_id"`
	ExamID     string `json:"exam_id"`
	CourseID   string `json:"course_id,omitempty"`
	StudentID  int    `json:"student_id"`
	Percentage int    `json:"percentage"`
}
