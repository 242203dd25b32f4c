package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-academy/internal/config"
	"github.com/stemsi/exstem-academy/internal/database"
	"github.com/stemsi/exstem-academy/internal/exam"
	"github.com/stemsi/exstem-academy/internal/logger"
	"github.com/stemsi/exstem-academy/internal/model"
	"github.com/stemsi/exstem-academy/internal/repository"
	"github.com/stemsi/exstem-academy/internal/service"
)

type seedQuestion struct {
	Type    exam.QuestionType
	Prompt  string
	Options []string
	Answer  exam.Value
	Points  int
}

var webFundamentals = []seedQuestion{
	{exam.QuestionTypeSingleChoice, "Which tag creates a hyperlink?", []string{"<a>", "<link>", "<href>", "<url>"}, exam.Text("<a>"), 2},
	{exam.QuestionTypeMultiSelect, "Which of these run in the browser?", []string{"HTML", "CSS", "JavaScript", "PostgreSQL"}, exam.Selection("HTML", "CSS", "JavaScript"), 3},
	{exam.QuestionTypeSingleChoice, "Which HTTP method is idempotent?", []string{"POST", "PUT", "PATCH"}, exam.Text("PUT"), 2},
	{exam.QuestionTypeFreeText, "Which language styles a web page?", nil, exam.Text("CSS"), 1},
	{exam.QuestionTypeMultiSelect, "Which status codes are client errors?", []string{"200", "301", "404", "422", "503"}, exam.Selection("404", "422"), 2},
}

func main() {
	var (
		timeLimit   int
		maxAttempts int
		passing     int
		studentID   int
		courseRef   string
	)
	flag.IntVar(&timeLimit, "time-limit", 600, "Time limit in seconds, 0 for untimed")
	flag.IntVar(&maxAttempts, "max-attempts", 3, "Attempts allowed per student")
	flag.IntVar(&passing, "passing", 70, "Passing score percent")
	flag.IntVar(&studentID, "student", 1, "Student id to issue a demo token for")
	flag.StringVar(&courseRef, "course", "", "Course id to attach the exam to")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	examRepo := repository.NewExamRepository(pool)
	authService := service.NewAuthService(cfg.JWTSecret)

	e := &model.CourseExam{
		Title:               "Web Fundamentals Final",
		Description:         "Seeded demo exam",
		PassingScorePercent: passing,
		TimeLimitSeconds:    timeLimit,
		MaxAttempts:         maxAttempts,
		Status:              model.ExamStatusPublished,
	}
	if courseRef != "" {
		id, err := uuid.Parse(courseRef)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid course id")
		}
		e.CourseID = &id
	}

	questions := make([]model.ExamQuestion, 0, len(webFundamentals))
	for _, sq := range webFundamentals {
		q := model.ExamQuestion{
			QuestionType: string(sq.Type),
			Prompt:       sq.Prompt,
			Points:       sq.Points,
		}
		if sq.Options != nil {
			if q.Options, err = json.Marshal(sq.Options); err != nil {
				log.Fatal().Err(err).Msg("Failed to encode options")
			}
		}
		if q.CorrectAnswer, err = json.Marshal(sq.Answer); err != nil {
			log.Fatal().Err(err).Msg("Failed to encode answer key")
		}
		questions = append(questions, q)
	}

	// Reject a broken seed before it reaches the database.
	if err := toDefinition(e, webFundamentals).Validate(); err != nil {
		log.Fatal().Err(err).Msg("Seed exam is invalid")
	}

	fmt.Println("=== Seeding demo exam ===")
	if err := examRepo.Create(ctx, e, questions); err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}
	fmt.Printf("Created exam %s with %d questions\n", e.ID, len(questions))

	token, err := authService.IssueToken(service.TokenTypeStudent, studentID, 24*time.Hour)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue student token")
	}
	fmt.Printf("\nStudent %d token (24h):\n%s\n", studentID, token)
}

func toDefinition(e *model.CourseExam, seed []seedQuestion) *exam.Definition {
	def := &exam.Definition{
		ID:                  "seed",
		Title:               e.Title,
		PassingScorePercent: e.PassingScorePercent,
		TimeLimitSeconds:    e.TimeLimitSeconds,
		MaxAttempts:         e.MaxAttempts,
	}
	for i, sq := range seed {
		def.Questions = append(def.Questions, exam.Question{
			ID:            fmt.Sprintf("q%d", i+1),
			Type:          sq.Type,
			Prompt:        sq.Prompt,
			Options:       sq.Options,
			CorrectAnswer: sq.Answer,
			Points:        sq.Points,
		})
	}
	return def
}
