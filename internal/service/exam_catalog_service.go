package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/config"
	"github.com/stemsi/exstem-academy/internal/exam"
	"github.com/stemsi/exstem-academy/internal/metrics"
	"github.com/stemsi/exstem-academy/internal/model"
)

// DefinitionSource is the read-only store exam definitions are loaded from.
type DefinitionSource interface {
	LoadDefinition(ctx context.Context, ref uuid.UUID) (*exam.Definition, error)
	ListPublishedIDs(ctx context.Context) ([]uuid.UUID, error)
}

// ExamCatalogService loads exam definitions, caching validated ones in Redis.
// A nil Redis client disables the cache.
type ExamCatalogService struct {
	source DefinitionSource
	rdb    *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewExamCatalogService creates a new ExamCatalogService.
func NewExamCatalogService(source DefinitionSource, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *ExamCatalogService {
	return &ExamCatalogService{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
		log:    log.With().Str("component", "exam_catalog").Logger(),
	}
}

// Load returns the validated definition for an exam or course id.
// Errors are exam.ErrNotFound, exam.ErrEmpty, exam.ErrMalformedExam or a
// wrapped storage error.
func (s *ExamCatalogService) Load(ctx context.Context, ref uuid.UUID) (*exam.Definition, error) {
	if def := s.cached(ctx, ref); def != nil {
		if err := def.Validate(); err == nil {
			metrics.DefinitionLoads.WithLabelValues("cache").Inc()
			return def, nil
		}
		s.log.Warn().Str("ref", ref.String()).Msg("Cached definition invalid, reloading")
	}

	def, err := s.source.LoadDefinition(ctx, ref)
	if err != nil {
		if errors.Is(err, exam.ErrNotFound) || errors.Is(err, exam.ErrMalformedExam) {
			return nil, err
		}
		return nil, fmt.Errorf("load definition: %w", err)
	}

	if err := def.Validate(); err != nil {
		metrics.DefinitionLoads.WithLabelValues("rejected").Inc()
		s.log.Warn().Err(err).Str("exam_id", def.ID).Msg("Exam definition rejected")
		return nil, err
	}

	metrics.DefinitionLoads.WithLabelValues("store").Inc()
	s.store(ctx, ref, def)
	return def, nil
}

// Refresh drops the cached definition for ref and loads it again.
func (s *ExamCatalogService) Refresh(ctx context.Context, ref uuid.UUID) (*exam.Definition, error) {
	if s.rdb != nil {
		if err := s.rdb.Del(ctx, config.CacheKey.ExamDefinitionKey(ref.String())).Err(); err != nil {
			return nil, fmt.Errorf("drop cached definition: %w", err)
		}
	}
	def, err := s.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("exam_id", def.ID).Msg("Definition cache refreshed")
	return def, nil
}

// PrewarmAll loads every published exam into the cache. Exams that fail to
// load are logged and skipped.
func (s *ExamCatalogService) PrewarmAll(ctx context.Context) error {
	ids, err := s.source.ListPublishedIDs(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}
	if len(ids) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	warmed := 0
	for _, id := range ids {
		if _, err := s.Refresh(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(ids)).
		Msg("Prewarming complete")
	return nil
}

// Paper builds the student-facing view of def, without answer keys.
func (s *ExamCatalogService) Paper(def *exam.Definition) *model.ExamPaper {
	paper := &model.ExamPaper{
		ExamID:              def.ID,
		Title:               def.Title,
		Description:         def.Description,
		PassingScorePercent: def.PassingScorePercent,
		TimeLimitSeconds:    def.TimeLimitSeconds,
		MaxAttempts:         def.MaxAttempts,
		Questions:           make([]model.PaperQuestion, len(def.Questions)),
	}
	for i, q := range def.Questions {
		paper.Questions[i] = model.PaperQuestion{
			ID:      q.ID,
			Type:    string(q.Type),
			Prompt:  q.Prompt,
			Options: append([]string(nil), q.Options...),
			Points:  q.Points,
		}
	}
	return paper
}

func (s *ExamCatalogService) cached(ctx context.Context, ref uuid.UUID) *exam.Definition {
	if s.rdb == nil {
		return nil
	}
	data, err := s.rdb.Get(ctx, config.CacheKey.ExamDefinitionKey(ref.String())).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("Definition cache read failed")
		}
		return nil
	}

	var def exam.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		s.log.Warn().Err(err).Msg("Definition cache entry unreadable")
		return nil
	}
	return &def
}

func (s *ExamCatalogService) store(ctx context.Context, ref uuid.UUID, def *exam.Definition) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(def)
	if err != nil {
		s.log.Warn().Err(err).Msg("Marshal definition failed")
		return
	}
	if err := s.rdb.Set(ctx, config.CacheKey.ExamDefinitionKey(ref.String()), data, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Definition cache write failed")
		return
	}
	s.log.Debug().
		Str("exam_id", def.ID).
		Int("questions", len(def.Questions)).
		Msg("Definition cached")
}
