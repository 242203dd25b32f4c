package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/config"
	"github.com/stemsi/exstem-academy/internal/exam"
	"github.com/stemsi/exstem-academy/internal/metrics"
	"github.com/stemsi/exstem-academy/internal/model"
	"github.com/stemsi/exstem-academy/internal/repository"
)

var (
	ErrAttemptNotFound    = errors.New("attempt not found")
	ErrMaxAttemptsReached = repository.ErrMaxAttemptsReached
)

// AttemptStore persists finished attempts.
type AttemptStore interface {
	CountByStudent(ctx context.Context, examID uuid.UUID, studentID int) (int, error)
	Create(ctx context.Context, out exam.Outcome, maxAttempts int) (*model.AttemptRecord, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.AttemptRecord, error)
	ListByStudent(ctx context.Context, examID uuid.UUID, studentID int) ([]model.AttemptRecord, error)
}

// CertificateQueue accepts certificate issuance requests.
type CertificateQueue interface {
	Enqueue(ctx context.Context, req model.CertificateRequest) error
}

// AttemptEventType names the events pushed to attempt subscribers.
type AttemptEventType string

const (
	AttemptEventTick      AttemptEventType = "tick"
	AttemptEventCompleted AttemptEventType = "completed"
)

// AttemptEvent is pushed to subscribers of a live attempt.
type AttemptEvent struct {
	Type             AttemptEventType `json:"type"`
	AttemptID        string           `json:"attempt_id"`
	RemainingSeconds *int             `json:"remaining_seconds,omitempty"`
	Outcome          *exam.Outcome    `json:"outcome,omitempty"`
}

// AttemptView is what callers see of an attempt, live or stored.
type AttemptView struct {
	AttemptID     uuid.UUID            `json:"attempt_id"`
	ExamID        string               `json:"exam_id"`
	AttemptNumber int                  `json:"attempt_number"`
	Session       *exam.Snapshot       `json:"session,omitempty"`
	Outcome       *exam.Outcome        `json:"outcome,omitempty"`
	Record        *model.AttemptRecord `json:"record,omitempty"`
	Persisted     bool                 `json:"persisted"`
	PersistError  string               `json:"persist_error,omitempty"`
}

// AttemptOptions tunes AttemptService.
type AttemptOptions struct {
	TickInterval   time.Duration
	PersistTimeout time.Duration
	ReapInterval   time.Duration
	SessionOptions []exam.SessionOption
}

type liveAttempt struct {
	id          uuid.UUID
	studentID   int
	examID      string
	number      int
	maxAttempts int
	session     *exam.Session
	cancel      context.CancelFunc

	mu          sync.Mutex
	outcome     *exam.Outcome
	record      *model.AttemptRecord
	persistErr  error
	persistedAt time.Time
	certQueued  bool

	subsMu sync.Mutex
	subs   map[int]chan AttemptEvent
	nextID int
}

// AttemptService runs live exam sessions and hands finished ones to storage.
type AttemptService struct {
	catalog *ExamCatalogService
	store   AttemptStore
	certs   CertificateQueue
	rdb     *redis.Client
	gate    *exam.Gate
	opts    AttemptOptions
	log     zerolog.Logger

	mu       sync.RWMutex
	attempts map[uuid.UUID]*liveAttempt
}

// NewAttemptService creates a new AttemptService. A nil Redis client disables
// the outcome cache and monitor events.
func NewAttemptService(
	catalog *ExamCatalogService,
	store AttemptStore,
	certs CertificateQueue,
	rdb *redis.Client,
	opts AttemptOptions,
	log zerolog.Logger,
) *AttemptService {
	if opts.TickInterval <= 0 {
		opts.TickInterval = exam.DefaultTickInterval
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 10 * time.Second
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = 5 * time.Minute
	}
	return &AttemptService{
		catalog:  catalog,
		store:    store,
		certs:    certs,
		rdb:      rdb,
		gate:     exam.NewGate(nil),
		opts:     opts,
		log:      log.With().Str("component", "attempt_service").Logger(),
		attempts: make(map[uuid.UUID]*liveAttempt),
	}
}

// ----------------------------------------------------------------
// Lifecycle
// ----------------------------------------------------------------

// Begin starts a new attempt of the exam identified by ref. A student with an
// attempt of the same exam still in progress gets that attempt back.
func (s *AttemptService) Begin(ctx context.Context, studentID int, ref uuid.UUID) (*AttemptView, error) {
	def, err := s.catalog.Load(ctx, ref)
	if err != nil {
		return nil, err
	}

	if att := s.findActive(def.ID, studentID); att != nil {
		return s.view(att), nil
	}

	examID, err := uuid.Parse(def.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: exam id %q", exam.ErrMalformedExam, def.ID)
	}
	used, err := s.store.CountByStudent(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	used += s.pendingCount(def.ID, studentID)
	if used >= def.MaxAttempts {
		return nil, ErrMaxAttemptsReached
	}

	att := &liveAttempt{
		id:          uuid.New(),
		studentID:   studentID,
		examID:      def.ID,
		number:      used + 1,
		maxAttempts: def.MaxAttempts,
		subs:        make(map[int]chan AttemptEvent),
	}

	opts := []exam.SessionOption{
		exam.WithTickInterval(s.opts.TickInterval),
		exam.WithTickListener(att.broadcastTick),
	}
	opts = append(opts, s.opts.SessionOptions...)

	session, err := exam.NewSession(def, opts...)
	if err != nil {
		return nil, err
	}
	att.session = session

	runCtx, cancel := context.WithCancel(context.Background())
	att.cancel = cancel
	if err := session.Start(runCtx); err != nil {
		cancel()
		return nil, err
	}

	s.mu.Lock()
	// A concurrent Begin for the same student may have registered first.
	if other := s.findActiveLocked(def.ID, studentID); other != nil {
		s.mu.Unlock()
		cancel()
		return s.view(other), nil
	}
	s.attempts[att.id] = att
	s.mu.Unlock()
	metrics.AttemptsStarted.Inc()
	metrics.AttemptsLive.Inc()

	go s.watch(att)

	s.log.Info().
		Str("attempt_id", att.id.String()).
		Str("exam_id", def.ID).
		Int("student_id", studentID).
		Int("attempt_number", att.number).
		Int("time_limit_seconds", def.TimeLimitSeconds).
		Msg("Attempt started")

	return s.view(att), nil
}

// Answer records value for questionID.
func (s *AttemptService) Answer(attemptID uuid.UUID, studentID int, questionID string, value exam.Value) error {
	att, err := s.live(attemptID, studentID)
	if err != nil {
		return err
	}
	return att.session.Answer(questionID, value)
}

// Goto moves the attempt's cursor.
func (s *AttemptService) Goto(attemptID uuid.UUID, studentID int, index int) (*AttemptView, error) {
	att, err := s.live(attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if err := att.session.Goto(index); err != nil {
		return nil, err
	}
	return s.view(att), nil
}

// Submit completes the attempt and persists it. When persistence fails the
// view is still returned alongside an error wrapping exam.ErrPersistence.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID, studentID int) (*AttemptView, error) {
	return s.complete(ctx, attemptID, studentID, (*exam.Session).Submit)
}

// Abandon completes the attempt with a zero score and persists it.
func (s *AttemptService) Abandon(ctx context.Context, attemptID uuid.UUID, studentID int) (*AttemptView, error) {
	return s.complete(ctx, attemptID, studentID, (*exam.Session).Abandon)
}

func (s *AttemptService) complete(
	ctx context.Context,
	attemptID uuid.UUID,
	studentID int,
	finish func(*exam.Session) (exam.Result, error),
) (*AttemptView, error) {
	att, err := s.live(attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if _, err := finish(att.session); err != nil {
		return nil, err
	}
	err = s.finalize(ctx, att)
	return s.view(att), err
}

// Persist retries storage of a completed attempt. The outcome computed at
// completion is reused as is.
func (s *AttemptService) Persist(ctx context.Context, attemptID uuid.UUID, studentID int) (*AttemptView, error) {
	att, err := s.live(attemptID, studentID)
	if errors.Is(err, ErrAttemptNotFound) {
		return s.stored(ctx, attemptID, studentID)
	}
	if err != nil {
		return nil, err
	}
	if att.session.State() != exam.StateCompleted {
		return nil, exam.ErrInvalidState
	}
	err = s.finalize(ctx, att)
	return s.view(att), err
}

// State returns the live view of an attempt, or its stored record once the
// attempt has left memory.
func (s *AttemptService) State(ctx context.Context, attemptID uuid.UUID, studentID int) (*AttemptView, error) {
	att, err := s.live(attemptID, studentID)
	if errors.Is(err, ErrAttemptNotFound) {
		return s.stored(ctx, attemptID, studentID)
	}
	if err != nil {
		return nil, err
	}
	return s.view(att), nil
}

// History lists a student's stored attempts of an exam, newest first.
func (s *AttemptService) History(ctx context.Context, studentID int, ref uuid.UUID) ([]model.AttemptRecord, error) {
	def, err := s.catalog.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	examID, err := uuid.Parse(def.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: exam id %q", exam.ErrMalformedExam, def.ID)
	}
	records, err := s.store.ListByStudent(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	if records == nil {
		records = []model.AttemptRecord{}
	}
	return records, nil
}

// Subscribe registers for events of a live attempt. The returned function
// releases the subscription. If the attempt already completed, the channel
// receives the completed event straight away.
func (s *AttemptService) Subscribe(attemptID uuid.UUID, studentID int) (<-chan AttemptEvent, func(), error) {
	att, err := s.live(attemptID, studentID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan AttemptEvent, 8)

	// att.mu orders registration against finalize's completed broadcast.
	att.mu.Lock()
	att.subsMu.Lock()
	id := att.nextID
	att.nextID++
	att.subs[id] = ch
	att.subsMu.Unlock()
	if att.outcome != nil {
		out := *att.outcome
		ch <- AttemptEvent{Type: AttemptEventCompleted, AttemptID: att.id.String(), Outcome: &out}
	}
	att.mu.Unlock()

	unsubscribe := func() {
		att.subsMu.Lock()
		delete(att.subs, id)
		att.subsMu.Unlock()
	}
	return ch, unsubscribe, nil
}

// ----------------------------------------------------------------
// Completion
// ----------------------------------------------------------------

// watch finalizes the attempt however it completes, including timer expiry
// with no client connected.
func (s *AttemptService) watch(att *liveAttempt) {
	<-att.session.Done()
	att.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.PersistTimeout)
	defer cancel()
	_ = s.finalize(ctx, att)
}

// finalize packages the outcome once and stores it until storage succeeds.
func (s *AttemptService) finalize(ctx context.Context, att *liveAttempt) error {
	att.mu.Lock()
	defer att.mu.Unlock()

	log := s.log.With().
		Str("attempt_id", att.id.String()).
		Str("exam_id", att.examID).
		Int("student_id", att.studentID).
		Logger()

	if att.outcome == nil {
		out, err := s.gate.Package(att.session, exam.AttemptContext{
			AttemptID:     att.id.String(),
			StudentID:     att.studentID,
			AttemptNumber: att.number,
		})
		if err != nil {
			return err
		}
		att.outcome = &out
		metrics.AttemptsCompleted.WithLabelValues(string(out.Reason), strconv.FormatBool(out.Result.Passed)).Inc()

		log.Info().
			Str("reason", string(out.Reason)).
			Int("raw_score", out.Result.RawScore).
			Int("percentage", out.Result.Percentage).
			Bool("passed", out.Result.Passed).
			Int("elapsed_seconds", out.ElapsedSeconds).
			Msg("Attempt completed")

		s.cacheOutcome(ctx, out)
		att.broadcast(AttemptEvent{Type: AttemptEventCompleted, AttemptID: att.id.String(), Outcome: &out})
	}

	if att.record == nil {
		rec, err := s.store.Create(ctx, *att.outcome, att.maxAttempts)
		if err != nil {
			att.persistErr = err
			metrics.PersistFailures.Inc()
			log.Error().Err(err).Msg("Failed to persist attempt")
			return fmt.Errorf("%w: %w", exam.ErrPersistence, err)
		}
		att.record = rec
		att.persistErr = nil
		att.persistedAt = time.Now()
		att.outcome.Context.AttemptNumber = rec.AttemptNumber
		log.Info().Int("attempt_number", rec.AttemptNumber).Msg("Attempt persisted")
	}

	return s.queueCertificateLocked(ctx, att, log)
}

// queueCertificateLocked hands an eligible stored attempt to the certificate
// queue. A failure leaves the attempt unfinished so Persist and the reaper
// retry it.
func (s *AttemptService) queueCertificateLocked(ctx context.Context, att *liveAttempt, log zerolog.Logger) error {
	if att.certQueued || !att.outcome.CertificateEligible {
		return nil
	}

	req := model.CertificateRequest{
		AttemptID:  att.id.String(),
		ExamID:     att.outcome.Context.ExamID,
		CourseID:   att.outcome.Context.CourseID,
		StudentID:  att.studentID,
		Percentage: att.outcome.Result.Percentage,
	}
	if err := s.certs.Enqueue(ctx, req); err != nil {
		att.persistErr = fmt.Errorf("enqueue certificate: %w", err)
		log.Error().Err(err).Msg("Failed to enqueue certificate")
		return fmt.Errorf("%w: %w", exam.ErrPersistence, att.persistErr)
	}
	att.certQueued = true
	att.persistErr = nil
	return nil
}

// finishedLocked reports whether nothing is left to hand off.
func (a *liveAttempt) finishedLocked() bool {
	return a.record != nil && (a.certQueued || !a.outcome.CertificateEligible)
}

func (s *AttemptService) cacheOutcome(ctx context.Context, out exam.Outcome) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(out)
	if err != nil {
		s.log.Warn().Err(err).Msg("Marshal outcome failed")
		return
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.AttemptOutcomeKey(out.Context.AttemptID), data, 24*time.Hour)
	pipe.Publish(ctx, config.CacheKey.ExamAttemptsChannel(out.Context.ExamID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", out.Context.AttemptID).Msg("Outcome cache write failed")
	}
}

// ----------------------------------------------------------------
// Registry
// ----------------------------------------------------------------

// StartReaper retries unfinished hand-offs and drops finished attempts from
// memory until ctx ends.
func (s *AttemptService) StartReaper(ctx context.Context) {
	ticker := time.NewTicker(s.opts.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.retryUnfinished(ctx)
			if n := s.reap(time.Now()); n > 0 {
				s.log.Debug().Int("reaped", n).Msg("Persisted attempts released")
			}
		}
	}
}

// retryUnfinished runs finalize again for completed attempts whose storage
// or certificate hand-off failed.
func (s *AttemptService) retryUnfinished(ctx context.Context) int {
	s.mu.RLock()
	var pending []*liveAttempt
	for _, att := range s.attempts {
		if att.session.State() != exam.StateCompleted {
			continue
		}
		att.mu.Lock()
		if att.outcome != nil && !att.finishedLocked() {
			pending = append(pending, att)
		}
		att.mu.Unlock()
	}
	s.mu.RUnlock()

	recovered := 0
	for _, att := range pending {
		retryCtx, cancel := context.WithTimeout(ctx, s.opts.PersistTimeout)
		if err := s.finalize(retryCtx, att); err == nil {
			recovered++
		}
		cancel()
	}
	if recovered > 0 {
		s.log.Info().Int("recovered", recovered).Msg("Unfinished attempts handed off")
	}
	return recovered
}

func (s *AttemptService) reap(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, att := range s.attempts {
		att.mu.Lock()
		done := att.finishedLocked() && now.Sub(att.persistedAt) >= s.opts.ReapInterval
		att.mu.Unlock()
		if done {
			delete(s.attempts, id)
			metrics.AttemptsLive.Dec()
			n++
		}
	}
	return n
}

// Shutdown stops every running timer. In-progress attempts are not completed.
func (s *AttemptService) Shutdown() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, att := range s.attempts {
		att.cancel()
	}
}

func (s *AttemptService) live(attemptID uuid.UUID, studentID int) (*liveAttempt, error) {
	s.mu.RLock()
	att, ok := s.attempts[attemptID]
	s.mu.RUnlock()
	if !ok || att.studentID != studentID {
		return nil, ErrAttemptNotFound
	}
	return att, nil
}

func (s *AttemptService) findActive(examID string, studentID int) *liveAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findActiveLocked(examID, studentID)
}

func (s *AttemptService) findActiveLocked(examID string, studentID int) *liveAttempt {
	for _, att := range s.attempts {
		if att.examID == examID && att.studentID == studentID &&
			att.session.State() == exam.StateInProgress {
			return att
		}
	}
	return nil
}

// LiveCount reports attempts of examID held in memory: those still running
// and completed ones not yet stored.
func (s *AttemptService) LiveCount(examID string) (inProgress, unsaved int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, att := range s.attempts {
		if att.examID != examID {
			continue
		}
		if att.session.State() == exam.StateInProgress {
			inProgress++
			continue
		}
		att.mu.Lock()
		if att.record == nil {
			unsaved++
		}
		att.mu.Unlock()
	}
	return inProgress, unsaved
}

// pendingCount counts completed attempts not yet in storage.
func (s *AttemptService) pendingCount(examID string, studentID int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, att := range s.attempts {
		if att.examID != examID || att.studentID != studentID {
			continue
		}
		att.mu.Lock()
		if att.record == nil {
			n++
		}
		att.mu.Unlock()
	}
	return n
}

func (s *AttemptService) stored(ctx context.Context, attemptID uuid.UUID, studentID int) (*AttemptView, error) {
	rec, err := s.store.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if rec.StudentID != studentID {
		return nil, ErrAttemptNotFound
	}
	return &AttemptView{
		AttemptID:     rec.ID,
		ExamID:        rec.ExamID.String(),
		AttemptNumber: rec.AttemptNumber,
		Record:        rec,
		Persisted:     true,
	}, nil
}

func (s *AttemptService) view(att *liveAttempt) *AttemptView {
	snap := att.session.Snapshot()

	att.mu.Lock()
	defer att.mu.Unlock()

	v := &AttemptView{
		AttemptID:     att.id,
		ExamID:        att.examID,
		AttemptNumber: att.number,
		Session:       &snap,
		Record:        att.record,
		Persisted:     att.record != nil,
	}
	if att.record != nil {
		v.AttemptNumber = att.record.AttemptNumber
	}
	if att.outcome != nil {
		out := *att.outcome
		v.Outcome = &out
	}
	if att.persistErr != nil {
		v.PersistError = att.persistErr.Error()
	}
	return v
}

// ----------------------------------------------------------------
// Subscribers
// ----------------------------------------------------------------

func (a *liveAttempt) broadcastTick(remaining int) {
	a.broadcast(AttemptEvent{
		Type:             AttemptEventTick,
		AttemptID:        a.id.String(),
		RemainingSeconds: &remaining,
	})
}

// broadcast never blocks; slow subscribers miss events.
func (a *liveAttempt) broadcast(ev AttemptEvent) {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	for _, ch := range a.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
