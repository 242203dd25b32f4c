package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/config"
	"github.com/stemsi/exstem-academy/internal/exam"
	"github.com/stemsi/exstem-academy/internal/handler"
	"github.com/stemsi/exstem-academy/internal/middleware"
	"github.com/stemsi/exstem-academy/internal/model"
	"github.com/stemsi/exstem-academy/internal/repository"
	"github.com/stemsi/exstem-academy/internal/response"
	"github.com/stemsi/exstem-academy/internal/service"
	"github.com/stemsi/exstem-academy/internal/validator"
)

const testSecret = "router-test-secret"

type memSource struct {
	defs map[uuid.UUID]*exam.Definition
}

func (m *memSource) LoadDefinition(_ context.Context, ref uuid.UUID) (*exam.Definition, error) {
	def, ok := m.defs[ref]
	if !ok {
		return nil, exam.ErrNotFound
	}
	return def, nil
}

func (m *memSource) ListPublishedIDs(context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(m.defs))
	for id := range m.defs {
		ids = append(ids, id)
	}
	return ids, nil
}

type memStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*model.AttemptRecord
	fail    bool
}

func (m *memStore) setFail(v bool) {
	m.mu.Lock()
	m.fail = v
	m.mu.Unlock()
}

func (m *memStore) CountByStudent(_ context.Context, examID uuid.UUID, studentID int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.ExamID == examID && r.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) Create(_ context.Context, out exam.Outcome, _ int) (*model.AttemptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("connection reset")
	}
	id := uuid.MustParse(out.Context.AttemptID)
	if rec, ok := m.records[id]; ok {
		return rec, nil
	}
	rec := &model.AttemptRecord{
		ID:            id,
		ExamID:        uuid.MustParse(out.Context.ExamID),
		StudentID:     out.Context.StudentID,
		AttemptNumber: len(m.records) + 1,
		Percentage:    out.Result.Percentage,
		Passed:        out.Result.Passed,
	}
	m.records[id] = rec
	return rec, nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*model.AttemptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		return rec, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *memStore) ListByStudent(_ context.Context, examID uuid.UUID, studentID int) ([]model.AttemptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AttemptRecord
	for _, r := range m.records {
		if r.ExamID == examID && r.StudentID == studentID {
			out = append(out, *r)
		}
	}
	return out, nil
}

type nopQueue struct{}

func (nopQueue) Enqueue(context.Context, model.CertificateRequest) error { return nil }

type testServer struct {
	engine *gin.Engine
	auth   *service.AuthService
	store  *memStore
	examID uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validator.Setup()

	examID := uuid.New()
	def := &exam.Definition{
		ID:                  examID.String(),
		Title:               "HTTP Basics",
		PassingScorePercent: 50,
		MaxAttempts:         2,
		Questions: []exam.Question{
			{
				ID:            "q1",
				Type:          exam.QuestionTypeSingleChoice,
				Prompt:        "Which method is idempotent?",
				Options:       []string{"POST", "PUT"},
				CorrectAnswer: exam.Text("PUT"),
				Points:        2,
			},
			{
				ID:            "q2",
				Type:          exam.QuestionTypeMultiSelect,
				Prompt:        "Which are 4xx codes?",
				Options:       []string{"404", "409", "503"},
				CorrectAnswer: exam.Selection("404", "409"),
				Points:        2,
			},
		},
	}

	log := zerolog.Nop()
	store := &memStore{records: make(map[uuid.UUID]*model.AttemptRecord)}
	catalog := service.NewExamCatalogService(&memSource{defs: map[uuid.UUID]*exam.Definition{examID: def}}, nil, time.Minute, log)
	attempts := service.NewAttemptService(catalog, store, nopQueue{}, nil, service.AttemptOptions{}, log)
	t.Cleanup(attempts.Shutdown)
	auth := service.NewAuthService(testSecret)

	handlers := &Handlers{
		Attempt:   handler.NewAttemptHandler(attempts, catalog, log),
		Exam:      handler.NewExamHandler(catalog, attempts, log),
		Dashboard: handler.NewDashboardHandler(service.NewDashboardService(memDashboard{}, catalog, attempts), log),
		Monitor:   handler.NewMonitorHandler(nil, catalog, attempts, log),
		WS:        handler.NewWSHandler(attempts, log, nil),
		System:    handler.NewSystemHandler(log),
	}
	cfg := &config.Config{GinMode: gin.TestMode}
	engine := SetupRouter(auth, handlers, middleware.NewRateLimiter(1000, time.Minute), cfg, log)

	return &testServer{engine: engine, auth: auth, store: store, examID: examID}
}

func (s *testServer) token(t *testing.T, typ service.TokenType, userID int, perms ...string) string {
	t.Helper()
	tok, err := s.auth.IssueToken(typ, userID, time.Hour, perms...)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return tok
}

type memDashboard struct{}

func (memDashboard) GetSummary(context.Context, uuid.UUID) (repository.ExamSummary, error) {
	return repository.ExamSummary{}, nil
}

func (memDashboard) GetStatusCounts(context.Context, uuid.UUID) (map[model.AttemptStatus]int, error) {
	return map[model.AttemptStatus]int{}, nil
}

func (memDashboard) GetQuestionStats(context.Context, uuid.UUID) ([]repository.QuestionStat, error) {
	return nil, nil
}

func (memDashboard) GetRecentAttempts(context.Context, uuid.UUID, int) ([]repository.RecentAttempt, error) {
	return nil, nil
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

type attemptData struct {
	Attempt service.AttemptView `json:"attempt"`
}

func decodeAttempt(t *testing.T, env envelope) service.AttemptView {
	t.Helper()
	var d attemptData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		t.Fatalf("decode attempt: %v", err)
	}
	return d.Attempt
}

func errCode(env envelope) response.ErrCode {
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

func TestAttemptFlow(t *testing.T) {
	s := newTestServer(t)
	student := s.token(t, service.TokenTypeStudent, 11)
	examPath := "/api/v1/student/exams/" + s.examID.String()

	code, env := s.do(t, http.MethodGet, examPath+"/paper", student, "")
	if code != http.StatusOK {
		t.Fatalf("paper status = %d", code)
	}
	if strings.Contains(string(env.Data), "correct_answer") {
		t.Errorf("paper leaks answer keys: %s", env.Data)
	}

	code, env = s.do(t, http.MethodPost, examPath+"/attempts", student, "")
	if code != http.StatusCreated {
		t.Fatalf("begin status = %d (%v)", code, env.Error)
	}
	attempt := decodeAttempt(t, env)
	attemptPath := "/api/v1/student/attempts/" + attempt.AttemptID.String()

	steps := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
		code   response.ErrCode
	}{
		{"answer single", http.MethodPut, attemptPath + "/answers/q1", `{"value":"PUT"}`, http.StatusOK, ""},
		{"answer multi", http.MethodPut, attemptPath + "/answers/q2", `{"value":["409","404"]}`, http.StatusOK, ""},
		{"wrong shape", http.MethodPut, attemptPath + "/answers/q1", `{"value":["PUT"]}`, http.StatusUnprocessableEntity, response.ErrInvalidAnswerShape},
		{"unknown question", http.MethodPut, attemptPath + "/answers/q9", `{"value":"x"}`, http.StatusNotFound, response.ErrUnknownQuestion},
		{"bad value", http.MethodPut, attemptPath + "/answers/q1", `{"value":7}`, http.StatusBadRequest, response.ErrValidation},
		{"goto", http.MethodPost, attemptPath + "/goto", `{"index":1}`, http.StatusOK, ""},
		{"goto out of range", http.MethodPost, attemptPath + "/goto", `{"index":2}`, http.StatusUnprocessableEntity, response.ErrIndexOutOfRange},
		{"persist while running", http.MethodPost, attemptPath + "/persist", "", http.StatusConflict, response.ErrInvalidState},
		{"submit", http.MethodPost, attemptPath + "/submit", "", http.StatusOK, ""},
		{"answer after submit", http.MethodPut, attemptPath + "/answers/q1", `{"value":"POST"}`, http.StatusConflict, response.ErrSessionCompleted},
		{"goto after submit", http.MethodPost, attemptPath + "/goto", `{"index":0}`, http.StatusConflict, response.ErrSessionCompleted},
	}
	for _, st := range steps {
		code, env := s.do(t, st.method, st.path, student, st.body)
		if code != st.want || errCode(env) != st.code {
			t.Errorf("%s: status %d code %q, want %d %q", st.name, code, errCode(env), st.want, st.code)
		}
	}

	code, env = s.do(t, http.MethodGet, attemptPath, student, "")
	if code != http.StatusOK {
		t.Fatalf("state status = %d", code)
	}
	final := decodeAttempt(t, env)
	if !final.Persisted || final.Outcome == nil || final.Outcome.Result.Percentage != 100 {
		t.Errorf("final attempt = %+v", final)
	}

	other := s.token(t, service.TokenTypeStudent, 12)
	if code, env := s.do(t, http.MethodGet, attemptPath, other, ""); code != http.StatusNotFound || errCode(env) != response.ErrAttemptNotFound {
		t.Errorf("foreign state: status %d code %q", code, errCode(env))
	}

	code, env = s.do(t, http.MethodGet, examPath+"/attempts", student, "")
	if code != http.StatusOK || !strings.Contains(string(env.Data), attempt.AttemptID.String()) {
		t.Errorf("history status %d body %s", code, env.Data)
	}
}

func TestPersistenceFailureKeepsOutcome(t *testing.T) {
	s := newTestServer(t)
	student := s.token(t, service.TokenTypeStudent, 21)

	_, env := s.do(t, http.MethodPost, "/api/v1/student/exams/"+s.examID.String()+"/attempts", student, "")
	attempt := decodeAttempt(t, env)
	attemptPath := "/api/v1/student/attempts/" + attempt.AttemptID.String()

	s.store.setFail(true)
	code, env := s.do(t, http.MethodPost, attemptPath+"/submit", student, "")
	if code != http.StatusServiceUnavailable || errCode(env) != response.ErrPersistenceFailed {
		t.Fatalf("submit: status %d code %q", code, errCode(env))
	}
	failed := decodeAttempt(t, env)
	if failed.Outcome == nil || failed.Persisted {
		t.Fatalf("failed submit attempt = %+v", failed)
	}

	s.store.setFail(false)
	code, env = s.do(t, http.MethodPost, attemptPath+"/persist", student, "")
	if code != http.StatusOK {
		t.Fatalf("persist: status %d code %q", code, errCode(env))
	}
	if saved := decodeAttempt(t, env); !saved.Persisted || saved.Record == nil {
		t.Errorf("persisted attempt = %+v", saved)
	}
}

func TestRouteErrors(t *testing.T) {
	s := newTestServer(t)
	student := s.token(t, service.TokenTypeStudent, 31)
	admin := s.token(t, service.TokenTypeAdmin, 1, service.PermExamCacheManage)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
		code   response.ErrCode
	}{
		{"no token", http.MethodGet, "/api/v1/student/exams/" + s.examID.String() + "/paper", "", http.StatusUnauthorized, response.ErrTokenRequired},
		{"bad exam id", http.MethodGet, "/api/v1/student/exams/not-a-uuid/paper", student, http.StatusBadRequest, response.ErrInvalidID},
		{"unknown exam", http.MethodPost, "/api/v1/student/exams/" + uuid.NewString() + "/attempts", student, http.StatusNotFound, response.ErrExamNotFound},
		{"unknown attempt", http.MethodGet, "/api/v1/student/attempts/" + uuid.NewString(), student, http.StatusNotFound, response.ErrAttemptNotFound},
		{"student on admin route", http.MethodPost, "/api/v1/admin/exams/" + s.examID.String() + "/refresh-cache", student, http.StatusForbidden, response.ErrAdminAccessOnly},
		{"admin refresh", http.MethodPost, "/api/v1/admin/exams/" + s.examID.String() + "/refresh-cache", admin, http.StatusOK, ""},
		{"admin dashboard", http.MethodGet, "/api/v1/admin/exams/" + s.examID.String() + "/dashboard", admin, http.StatusOK, ""},
		{"dashboard bad limit", http.MethodGet, "/api/v1/admin/exams/" + s.examID.String() + "/dashboard?recent=0", admin, http.StatusBadRequest, response.ErrValidation},
		{"dashboard unknown exam", http.MethodGet, "/api/v1/admin/exams/" + uuid.NewString() + "/dashboard", admin, http.StatusNotFound, response.ErrExamNotFound},
		{"health", http.MethodGet, "/health", "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.do(t, tt.method, tt.path, tt.token, "")
			if code != tt.want || errCode(env) != tt.code {
				t.Errorf("status %d code %q, want %d %q", code, errCode(env), tt.want, tt.code)
			}
		})
	}
}

func TestMaxAttemptsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	student := s.token(t, service.TokenTypeStudent, 41)
	examPath := "/api/v1/student/exams/" + s.examID.String() + "/attempts"

	for i := 0; i < 2; i++ {
		_, env := s.do(t, http.MethodPost, examPath, student, "")
		attempt := decodeAttempt(t, env)
		if code, env := s.do(t, http.MethodPost, "/api/v1/student/attempts/"+attempt.AttemptID.String()+"/abandon", student, ""); code != http.StatusOK {
			t.Fatalf("abandon %d: status %d code %q", i, code, errCode(env))
		}
	}

	code, env := s.do(t, http.MethodPost, examPath, student, "")
	if code != http.StatusConflict || errCode(env) != response.ErrMaxAttemptsReached {
		t.Errorf("third begin: status %d code %q", code, errCode(env))
	}
}

func TestAttemptStream(t *testing.T) {
	s := newTestServer(t)
	student := s.token(t, service.TokenTypeStudent, 51)

	_, env := s.do(t, http.MethodPost, "/api/v1/student/exams/"+s.examID.String()+"/attempts", student, "")
	attempt := decodeAttempt(t, env)

	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/ws/v1/student/attempts/" + attempt.AttemptID.String() + "/stream?token=" + student
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() map[string]json.RawMessage {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg map[string]json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		return msg
	}
	event := func(msg map[string]json.RawMessage) string {
		var e string
		_ = json.Unmarshal(msg["event"], &e)
		return e
	}

	if e := event(read()); e != "state" {
		t.Fatalf("first event = %s, want state", e)
	}

	_ = conn.WriteJSON(map[string]any{"action": "answer", "question_id": "q1", "value": "PUT"})
	if e := event(read()); e != "ack" {
		t.Fatalf("answer reply = %s, want ack", e)
	}

	_ = conn.WriteJSON(map[string]any{"action": "goto", "index": 5})
	msg := read()
	var code string
	_ = json.Unmarshal(msg["code"], &code)
	if event(msg) != "error" || code != string(response.ErrIndexOutOfRange) {
		t.Fatalf("goto reply = %v", msg)
	}

	_ = conn.WriteJSON(map[string]any{"action": "submit"})
	seen := map[string]bool{}
	for !(seen["state"] && seen["completed"]) {
		seen[event(read())] = true
	}
}

func TestAttemptStreamRejectsForeignAttempt(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(t, service.TokenTypeStudent, 61)
	_, env := s.do(t, http.MethodPost, "/api/v1/student/exams/"+s.examID.String()+"/attempts", owner, "")
	attempt := decodeAttempt(t, env)

	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	other := s.token(t, service.TokenTypeStudent, 62)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/ws/v1/student/attempts/" + attempt.AttemptID.String() + "/stream?token=" + other
	_, resp, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial succeeded for a foreign attempt")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("response = %v, want 404", resp)
	}
}

func TestMonitorSendsCounts(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, service.TokenTypeAdmin, 1, service.PermExamCacheManage)
	student := s.token(t, service.TokenTypeStudent, 71)
	if code, _ := s.do(t, http.MethodPost, "/api/v1/student/exams/"+s.examID.String()+"/attempts", student, ""); code != http.StatusCreated {
		t.Fatalf("begin status = %d", code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/exams/"+s.examID.String()+"/monitor", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+admin)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), `"type":"counts"`) || !strings.Contains(w.Body.String(), `"in_progress":1`) {
		t.Errorf("body = %s", w.Body.String())
	}
}
