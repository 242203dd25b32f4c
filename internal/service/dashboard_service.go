package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-academy/internal/model"
	"github.com/stemsi/exstem-academy/internal/repository"
)

// DashboardStore reads aggregated attempt data.
type DashboardStore interface {
	GetSummary(ctx context.Context, examID uuid.UUID) (repository.ExamSummary, error)
	GetStatusCounts(ctx context.Context, examID uuid.UUID) (map[model.AttemptStatus]int, error)
	GetQuestionStats(ctx context.Context, examID uuid.UUID) ([]repository.QuestionStat, error)
	GetRecentAttempts(ctx context.Context, examID uuid.UUID, limit int) ([]repository.RecentAttempt, error)
}

// QuestionReport is the correctness rate of one question.
type QuestionReport struct {
	QuestionID string  `json:"question_id"`
	Prompt     string  `json:"prompt"`
	Points     int     `json:"points"`
	Correct    int     `json:"correct"`
	Graded     int     `json:"graded"`
	Rate       float64 `json:"correct_rate"`
}

// ExamDashboard consolidates stored and live metrics of one exam.
type ExamDashboard struct {
	ExamID       string                      `json:"exam_id"`
	Title        string                      `json:"title"`
	Summary      repository.ExamSummary      `json:"summary"`
	PassRate     float64                     `json:"pass_rate"`
	StatusCounts map[model.AttemptStatus]int `json:"status_counts"`
	Questions    []QuestionReport            `json:"questions"`
	Recent       []repository.RecentAttempt  `json:"recent_attempts"`
	LiveAttempts int                         `json:"live_attempts"`
	Unsaved      int                         `json:"unsaved"`
}

// DashboardService handles the admin exam dashboard.
type DashboardService struct {
	repo     DashboardStore
	catalog  *ExamCatalogService
	attempts *AttemptService
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(repo DashboardStore, catalog *ExamCatalogService, attempts *AttemptService) *DashboardService {
	return &DashboardService{repo: repo, catalog: catalog, attempts: attempts}
}

// GetExamDashboard resolves ref and gathers its metrics sequentially.
func (s *DashboardService) GetExamDashboard(ctx context.Context, ref uuid.UUID, recentLimit int) (*ExamDashboard, error) {
	def, err := s.catalog.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	examID, err := uuid.Parse(def.ID)
	if err != nil {
		return nil, fmt.Errorf("parse exam id: %w", err)
	}

	summary, err := s.repo.GetSummary(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	statusCounts, err := s.repo.GetStatusCounts(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	stats, err := s.repo.GetQuestionStats(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("question stats: %w", err)
	}
	recent, err := s.repo.GetRecentAttempts(ctx, examID, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("recent attempts: %w", err)
	}

	byQuestion := make(map[string]repository.QuestionStat, len(stats))
	for _, st := range stats {
		byQuestion[st.QuestionID] = st
	}

	// Questions follow paper order; stats for questions since removed are dropped.
	questions := make([]QuestionReport, 0, len(def.Questions))
	for _, q := range def.Questions {
		st := byQuestion[q.ID]
		questions = append(questions, QuestionReport{
			QuestionID: q.ID,
			Prompt:     q.Prompt,
			Points:     q.Points,
			Correct:    st.Correct,
			Graded:     st.Graded,
			Rate:       ratio(st.Correct, st.Graded),
		})
	}

	if recent == nil {
		recent = []repository.RecentAttempt{}
	}
	inProgress, unsaved := s.attempts.LiveCount(def.ID)

	return &ExamDashboard{
		ExamID:       def.ID,
		Title:        def.Title,
		Summary:      summary,
		PassRate:     ratio(summary.Passed, summary.Attempts),
		StatusCounts: statusCounts,
		Questions:    questions,
		Recent:       recent,
		LiveAttempts: inProgress,
		Unsaved:      unsaved,
	}, nil
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
