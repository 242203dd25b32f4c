package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-academy/internal/model"
)

// CertificateRepository stores issued certificates.
type CertificateRepository struct {
	pool *pgxpool.Pool
}

// NewCertificateRepository creates a new CertificateRepository.
func NewCertificateRepository(pool *pgxpool.Pool) *CertificateRepository {
	return &CertificateRepository{pool: pool}
}

// BulkIssue inserts one certificate per request using UNNEST. Attempts that
// already hold a certificate are skipped.
func (r *CertificateRepository) BulkIssue(ctx context.Context, batch []model.CertificateRequest) error {
	n := len(batch)
	if n == 0 {
		return nil
	}

	ids := make([]uuid.UUID, n)
	attemptIDs := make([]uuid.UUID, n)
	examIDs := make([]uuid.UUID, n)
	courseIDs := make([]*uuid.UUID, n)
	students := make([]int, n)
	percentages := make([]int, n)

	for i, req := range batch {
		a, e, c, err := parseCertificateIDs(req)
		if err != nil {
			return err
		}
		ids[i] = uuid.New()
		attemptIDs[i], examIDs[i], courseIDs[i] = a, e, c
		students[i] = req.StudentID
		percentages[i] = req.Percentage
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO certificates (id, attempt_id, exam_id, course_id, student_id, percentage)
		SELECT u.id, u.attempt_id, u.exam_id, u.course_id, u.student_id, u.percentage
		FROM UNNEST(
			$1::uuid[],
			$2::uuid[],
			$3::uuid[],
			$4::uuid[],
			$5::int[],
			$6::int[]
		) AS u (id, attempt_id, exam_id, course_id, student_id, percentage)
		ON CONFLICT (attempt_id) DO NOTHING
	`, ids, attemptIDs, examIDs, courseIDs, students, percentages)
	return err
}

// Issue inserts a single certificate. Used as the fallback when a batch fails.
func (r *CertificateRepository) Issue(ctx context.Context, req model.CertificateRequest) error {
	attemptID, examID, courseID, err := parseCertificateIDs(req)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO certificates (id, attempt_id, exam_id, course_id, student_id, percentage)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (attempt_id) DO NOTHING`,
		uuid.New(), attemptID, examID, courseID, req.StudentID, req.Percentage)
	return err
}

// GetByAttempt returns the certificate issued for an attempt.
func (r *CertificateRepository) GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*model.Certificate, error) {
	c := &model.Certificate{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, attempt_id, exam_id, course_id, student_id, percentage, issued_at
		 FROM certificates WHERE attempt_id = $1`, attemptID,
	).Scan(&c.ID, &c.AttemptID, &c.ExamID, &c.CourseID, &c.StudentID, &c.Percentage, &c.IssuedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func parseCertificateIDs(req model.CertificateRequest) (attemptID, examID uuid.UUID, courseID *uuid.UUID, err error) {
	if attemptID, err = uuid.Parse(req.AttemptID); err != nil {
		return uuid.Nil, uuid.Nil, nil, fmt.Errorf("parse attempt id: %w", err)
	}
	if examID, err = uuid.Parse(req.ExamID); err != nil {
		return uuid.Nil, uuid.Nil, nil, fmt.Errorf("parse exam id: %w", err)
	}
	if req.CourseID != "" {
		id, perr := uuid.Parse(req.CourseID)
		if perr != nil {
			return uuid.Nil, uuid.Nil, nil, fmt.Errorf("parse course id: %w", perr)
		}
		courseID = &id
	}
	return attemptID, examID, courseID, nil
}
