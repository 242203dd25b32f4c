package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/exam"
	"github.com/stemsi/exstem-academy/internal/model"
	"github.com/stemsi/exstem-academy/internal/repository"
)

var errStoreDown = errors.New("connection refused")

func webDefinition(id uuid.UUID) *exam.Definition {
	return &exam.Definition{
		ID:                  id.String(),
		CourseID:            uuid.NewString(),
		Title:               "Web Basics",
		PassingScorePercent: 70,
		MaxAttempts:         3,
		Questions: []exam.Question{
			{
				ID:            "q1",
				Type:          exam.QuestionTypeSingleChoice,
				Prompt:        "Which tag creates a hyperlink?",
				Options:       []string{"<a>", "<p>", "<div>"},
				CorrectAnswer: exam.Text("<a>"),
				Points:        3,
			},
			{
				ID:            "q2",
				Type:          exam.QuestionTypeMultiSelect,
				Prompt:        "Which run in the browser?",
				Options:       []string{"HTML", "CSS", "JavaScript", "SQL"},
				CorrectAnswer: exam.Selection("HTML", "CSS", "JavaScript"),
				Points:        4,
			},
			{
				ID:            "q3",
				Type:          exam.QuestionTypeFreeText,
				Prompt:        "Name the styling language of the web.",
				CorrectAnswer: exam.Text("CSS"),
				Points:        3,
			},
		},
	}
}

type fakeSource struct {
	mu      sync.Mutex
	defs    map[uuid.UUID]*exam.Definition
	loads   int
	listErr error
}

func newFakeSource(defs ...*exam.Definition) *fakeSource {
	f := &fakeSource{defs: make(map[uuid.UUID]*exam.Definition)}
	for _, d := range defs {
		f.defs[uuid.MustParse(d.ID)] = d
	}
	return f
}

func (f *fakeSource) LoadDefinition(_ context.Context, ref uuid.UUID) (*exam.Definition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	def, ok := f.defs[ref]
	if !ok {
		return nil, exam.ErrNotFound
	}
	return def, nil
}

func (f *fakeSource) ListPublishedIDs(context.Context) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := make([]uuid.UUID, 0, len(f.defs))
	for id := range f.defs {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*model.AttemptRecord
	fail    bool
	creates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[uuid.UUID]*model.AttemptRecord)}
}

func (f *fakeStore) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeStore) createCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func (f *fakeStore) CountByStudent(_ context.Context, examID uuid.UUID, studentID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countLocked(examID, studentID), nil
}

func (f *fakeStore) countLocked(examID uuid.UUID, studentID int) int {
	n := 0
	for _, r := range f.records {
		if r.ExamID == examID && r.StudentID == studentID {
			n++
		}
	}
	return n
}

func (f *fakeStore) Create(_ context.Context, out exam.Outcome, maxAttempts int) (*model.AttemptRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.fail {
		return nil, errStoreDown
	}

	id := uuid.MustParse(out.Context.AttemptID)
	if rec, ok := f.records[id]; ok {
		return rec, nil
	}
	examID := uuid.MustParse(out.Context.ExamID)
	used := f.countLocked(examID, out.Context.StudentID)
	if used >= maxAttempts {
		return nil, repository.ErrMaxAttemptsReached
	}

	rec := &model.AttemptRecord{
		ID:                  id,
		ExamID:              examID,
		StudentID:           out.Context.StudentID,
		AttemptNumber:       used + 1,
		Status:              model.AttemptStatus(out.Reason),
		RawScore:            out.Result.RawScore,
		MaxScore:            out.Result.MaxScore,
		Percentage:          out.Result.Percentage,
		Passed:              out.Result.Passed,
		CertificateEligible: out.CertificateEligible,
		ElapsedSeconds:      out.ElapsedSeconds,
		StartedAt:           out.Context.StartedAt,
		CompletedAt:         out.Context.CompletedAt,
		CreatedAt:           time.Now(),
	}
	f.records[id] = rec
	return rec, nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*model.AttemptRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return rec, nil
}

func (f *fakeStore) ListByStudent(_ context.Context, examID uuid.UUID, studentID int) ([]model.AttemptRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AttemptRecord
	for _, r := range f.records {
		if r.ExamID == examID && r.StudentID == studentID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) record(id uuid.UUID) *model.AttemptRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[id]
}

type fakeQueue struct {
	mu    sync.Mutex
	reqs  []model.CertificateRequest
	fails int
}

func (f *fakeQueue) failNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails = n
}

func (f *fakeQueue) Enqueue(_ context.Context, req model.CertificateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("queue unavailable")
	}
	f.reqs = append(f.reqs, req)
	return nil
}

func (f *fakeQueue) requests() []model.CertificateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.CertificateRequest(nil), f.reqs...)
}

type harness struct {
	svc    *AttemptService
	source *fakeSource
	store  *fakeStore
	queue  *fakeQueue
}

func newHarness(defs ...*exam.Definition) *harness {
	source := newFakeSource(defs...)
	store := newFakeStore()
	queue := &fakeQueue{}
	catalog := NewExamCatalogService(source, nil, time.Minute, zerolog.Nop())
	svc := NewAttemptService(catalog, store, queue, nil, AttemptOptions{
		PersistTimeout: time.Second,
		ReapInterval:   time.Minute,
		SessionOptions: []exam.SessionOption{exam.WithExternalTicks()},
	}, zerolog.Nop())
	return &harness{svc: svc, source: source, store: store, queue: queue}
}

func (h *harness) session(t *testing.T, id uuid.UUID) *exam.Session {
	t.Helper()
	h.svc.mu.RLock()
	defer h.svc.mu.RUnlock()
	att, ok := h.svc.attempts[id]
	if !ok {
		t.Fatalf("attempt %s not live", id)
	}
	return att.session
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
