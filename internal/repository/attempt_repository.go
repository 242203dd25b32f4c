package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-academy/internal/exam"
	"github.com/stemsi/exstem-academy/internal/model"
)

// ErrMaxAttemptsReached is returned when a student has used every attempt
// an exam allows.
var ErrMaxAttemptsReached = errors.New("maximum number of attempts reached")

const attemptColumns = `id, exam_id, course_id, student_id, attempt_number, status,
	raw_score, max_score, percentage, passed, certificate_eligible, elapsed_seconds,
	answers, correctness, started_at, completed_at, created_at`

// AttemptRepository stores graded exam attempts.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// CountByStudent returns how many attempts a student has stored for an exam.
func (r *AttemptRepository) CountByStudent(ctx context.Context, examID uuid.UUID, studentID int) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_attempts WHERE exam_id = $1 AND student_id = $2`,
		examID, studentID,
	).Scan(&n)
	return n, err
}

// Create stores a finished attempt. Storing the same attempt id twice
// returns the existing record, so callers may retry freely. The attempt
// limit is checked under a per exam/student advisory lock.
func (r *AttemptRepository) Create(ctx context.Context, out exam.Outcome, maxAttempts int) (*model.AttemptRecord, error) {
	attemptID, err := uuid.Parse(out.Context.AttemptID)
	if err != nil {
		return nil, fmt.Errorf("parse attempt id: %w", err)
	}
	examID, err := uuid.Parse(out.Context.ExamID)
	if err != nil {
		return nil, fmt.Errorf("parse exam id: %w", err)
	}
	var courseID *uuid.UUID
	if out.Context.CourseID != "" {
		id, err := uuid.Parse(out.Context.CourseID)
		if err != nil {
			return nil, fmt.Errorf("parse course id: %w", err)
		}
		courseID = &id
	}

	answers, err := json.Marshal(out.Answers)
	if err != nil {
		return nil, fmt.Errorf("marshal answers: %w", err)
	}
	correctness, err := json.Marshal(out.Result.Correctness)
	if err != nil {
		return nil, fmt.Errorf("marshal correctness: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if existing, err := scanAttempt(tx.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, attemptID)); err == nil {
		return existing, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing attempt: %w", err)
	}

	lockKey := fmt.Sprintf("attempts:%s:%d", examID, out.Context.StudentID)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return nil, fmt.Errorf("lock attempts: %w", err)
	}

	var used int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_attempts WHERE exam_id = $1 AND student_id = $2`,
		examID, out.Context.StudentID,
	).Scan(&used); err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if maxAttempts > 0 && used >= maxAttempts {
		return nil, ErrMaxAttemptsReached
	}

	rec, err := scanAttempt(tx.QueryRow(ctx,
		`INSERT INTO exam_attempts (id, exam_id, course_id, student_id, attempt_number, status,
		     raw_score, max_score, percentage, passed, certificate_eligible, elapsed_seconds,
		     answers, correctness, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 RETURNING `+attemptColumns,
		attemptID, examID, courseID, out.Context.StudentID, used+1, attemptStatus(out.Reason),
		out.Result.RawScore, out.Result.MaxScore, out.Result.Percentage, out.Result.Passed,
		out.CertificateEligible, out.ElapsedSeconds, answers, correctness,
		out.Context.StartedAt, out.Context.CompletedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// GetByID retrieves a stored attempt.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AttemptRecord, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id))
}

// ListByStudent returns a student's attempts for an exam, newest first.
func (r *AttemptRepository) ListByStudent(ctx context.Context, examID uuid.UUID, studentID int) ([]model.AttemptRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE exam_id = $1 AND student_id = $2
		 ORDER BY attempt_number DESC`, examID, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.AttemptRecord
	for rows.Next() {
		rec, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanAttempt(row pgx.Row) (*model.AttemptRecord, error) {
	a := &model.AttemptRecord{}
	err := row.Scan(&a.ID, &a.ExamID, &a.CourseID, &a.StudentID, &a.AttemptNumber, &a.Status,
		&a.RawScore, &a.MaxScore, &a.Percentage, &a.Passed, &a.CertificateEligible, &a.ElapsedSeconds,
		&a.Answers, &a.Correctness, &a.StartedAt, &a.CompletedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func attemptStatus(reason exam.CompletionReason) model.AttemptStatus {
	switch reason {
	case exam.ReasonTimeExpired:
		return model.AttemptStatusTimeExpired
	case exam.ReasonAbandoned:
		return model.AttemptStatusAbandoned
	default:
		return model.AttemptStatusSubmitted
	}
}
