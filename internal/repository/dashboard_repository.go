package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-academy/internal/model"
)

// DashboardRepository aggregates stored attempts of one exam for admins.
type DashboardRepository struct {
	pool *pgxpool.Pool
}

// NewDashboardRepository creates a new DashboardRepository.
func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	return &DashboardRepository{pool: pool}
}

// ExamSummary holds the headline numbers of an exam.
type ExamSummary struct {
	Attempts          int     `json:"attempts"`
	Students          int     `json:"students"`
	Passed            int     `json:"passed"`
	AveragePercentage float64 `json:"average_percentage"`
	AverageElapsed    float64 `json:"average_elapsed_seconds"`
	Certificates      int     `json:"certificates"`
}

// GetSummary retrieves the headline numbers for examID.
func (r *DashboardRepository) GetSummary(ctx context.Context, examID uuid.UUID) (ExamSummary, error) {
	var s ExamSummary
	err := r.pool.QueryRow(ctx,
		`SELECT
			COUNT(*),
			COUNT(DISTINCT student_id),
			COUNT(*) FILTER (WHERE passed),
			COALESCE(AVG(percentage), 0)::float8,
			COALESCE(AVG(elapsed_seconds), 0)::float8,
			(SELECT COUNT(*) FROM certificates WHERE exam_id = $1)
		 FROM exam_attempts WHERE exam_id = $1`, examID,
	).Scan(&s.Attempts, &s.Students, &s.Passed, &s.AveragePercentage, &s.AverageElapsed, &s.Certificates)
	return s, err
}

// GetStatusCounts retrieves the distribution of attempts by how they ended.
func (r *DashboardRepository) GetStatusCounts(ctx context.Context, examID uuid.UUID) (map[model.AttemptStatus]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM exam_attempts WHERE exam_id = $1 GROUP BY status`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.AttemptStatus]int)
	for rows.Next() {
		var status model.AttemptStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// QuestionStat is how often one question was answered correctly.
type QuestionStat struct {
	QuestionID string `json:"question_id"`
	Correct    int    `json:"correct"`
	Graded     int    `json:"graded"`
}

// GetQuestionStats unpacks the correctness map of every scored attempt.
// Abandoned attempts are excluded since they were never graded.
func (r *DashboardRepository) GetQuestionStats(ctx context.Context, examID uuid.UUID) ([]QuestionStat, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.key, COUNT(*) FILTER (WHERE c.value = 'true'::jsonb), COUNT(*)
		 FROM exam_attempts a, jsonb_each(a.correctness) AS c
		 WHERE a.exam_id = $1 AND a.status <> $2
		 GROUP BY c.key`,
		examID, model.AttemptStatusAbandoned,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []QuestionStat
	for rows.Next() {
		var s QuestionStat
		if err := rows.Scan(&s.QuestionID, &s.Correct, &s.Graded); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// RecentAttempt is a row of the most recent attempts list.
type RecentAttempt struct {
	ID            uuid.UUID           `json:"id"`
	StudentID     int                 `json:"student_id"`
	AttemptNumber int                 `json:"attempt_number"`
	Status        model.AttemptStatus `json:"status"`
	Percentage    int                 `json:"percentage"`
	Passed        bool                `json:"passed"`
	CompletedAt   time.Time           `json:"completed_at"`
}

// GetRecentAttempts retrieves the latest N attempts of an exam.
func (r *DashboardRepository) GetRecentAttempts(ctx context.Context, examID uuid.UUID, limit int) ([]RecentAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, student_id, attempt_number, status, percentage, passed, completed_at
		 FROM exam_attempts WHERE exam_id = $1
		 ORDER BY completed_at DESC LIMIT $2`,
		examID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []RecentAttempt
	for rows.Next() {
		var a RecentAttempt
		if err := rows.Scan(&a.ID, &a.StudentID, &a.AttemptNumber, &a.Status, &a.Percentage, &a.Passed, &a.CompletedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
