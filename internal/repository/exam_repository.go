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

// ExamRepository reads course exams and their questions.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetPublished resolves ref as an exam id, or failing that as a course id,
// and returns the published exam. A course with several published exams
// resolves to the newest one.
func (r *ExamRepository) GetPublished(ctx context.Context, ref uuid.UUID) (*model.CourseExam, error) {
	e := &model.CourseExam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, course_id, title, description, passing_score_percent,
		        time_limit_seconds, max_attempts, status, created_at, updated_at
		 FROM course_exams
		 WHERE (id = $1 OR course_id = $1) AND status = $2
		 ORDER BY (id = $1) DESC, created_at DESC
		 LIMIT 1`, ref, model.ExamStatusPublished,
	).Scan(&e.ID, &e.CourseID, &e.Title, &e.Description, &e.PassingScorePercent,
		&e.TimeLimitSeconds, &e.MaxAttempts, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListQuestions retrieves all questions of an exam ordered by order_num.
func (r *ExamRepository) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.ExamQuestion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question_type, prompt, options, correct_answer, points, order_num
		 FROM exam_questions WHERE exam_id = $1
		 ORDER BY order_num, id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.ExamQuestion
	for rows.Next() {
		var q model.ExamQuestion
		if err := rows.Scan(&q.ID, &q.ExamID, &q.QuestionType, &q.Prompt, &q.Options, &q.CorrectAnswer, &q.Points, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// LoadDefinition builds an exam definition for ref. It returns
// exam.ErrNotFound when no published exam matches. The definition is not
// validated here.
func (r *ExamRepository) LoadDefinition(ctx context.Context, ref uuid.UUID) (*exam.Definition, error) {
	e, err := r.GetPublished(ctx, ref)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, exam.ErrNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	rows, err := r.ListQuestions(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	def := &exam.Definition{
		ID:                  e.ID.String(),
		Title:               e.Title,
		Description:         e.Description,
		PassingScorePercent: e.PassingScorePercent,
		TimeLimitSeconds:    e.TimeLimitSeconds,
		MaxAttempts:         e.MaxAttempts,
		Questions:           make([]exam.Question, 0, len(rows)),
	}
	if e.CourseID != nil {
		def.CourseID = e.CourseID.String()
	}

	for _, row := range rows {
		q, err := toQuestion(row)
		if err != nil {
			return nil, err
		}
		def.Questions = append(def.Questions, q)
	}
	return def, nil
}

// Create inserts an exam and its questions in one transaction. IDs left as
// uuid.Nil are generated; order_num follows the slice order.
func (r *ExamRepository) Create(ctx context.Context, e *model.CourseExam, questions []model.ExamQuestion) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if err := tx.QueryRow(ctx,
		`INSERT INTO course_exams (id, course_id, title, description, passing_score_percent,
		                           time_limit_seconds, max_attempts, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at, updated_at`,
		e.ID, e.CourseID, e.Title, e.Description, e.PassingScorePercent,
		e.TimeLimitSeconds, e.MaxAttempts, e.Status,
	).Scan(&e.CreatedAt, &e.UpdatedAt); err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range questions {
		q := &questions[i]
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		q.ExamID = e.ID
		q.OrderNum = i + 1
		batch.Queue(
			`INSERT INTO exam_questions (id, exam_id, question_type, prompt, options, correct_answer, points, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			q.ID, q.ExamID, q.QuestionType, q.Prompt, q.Options, q.CorrectAnswer, q.Points, q.OrderNum)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}
	return tx.Commit(ctx)
}

// ListPublishedIDs returns the ids of every published exam.
func (r *ExamRepository) ListPublishedIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM course_exams WHERE status = $1 ORDER BY created_at`, model.ExamStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func toQuestion(row model.ExamQuestion) (exam.Question, error) {
	q := exam.Question{
		ID:     row.ID.String(),
		Type:   exam.QuestionType(row.QuestionType),
		Prompt: row.Prompt,
		Points: row.Points,
	}
	if len(row.Options) > 0 && string(row.Options) != "null" {
		if err := json.Unmarshal(row.Options, &q.Options); err != nil {
			return exam.Question{}, fmt.Errorf("%w: question %s options: %v", exam.ErrMalformedExam, row.ID, err)
		}
	}
	if err := json.Unmarshal(row.CorrectAnswer, &q.CorrectAnswer); err != nil {
		return exam.Question{}, fmt.Errorf("%w: question %s correct answer: %v", exam.ErrMalformedExam, row.ID, err)
	}
	return q, nil
}
