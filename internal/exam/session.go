package exam

import (
	"context"
	"sync"
	"time"
)

// State enumerates the session lifecycle.
type State string

const (
	StateUnstarted  State = "UNSTARTED"
	StateInProgress State = "IN_PROGRESS"
	StateCompleted  State = "COMPLETED"
)

// CompletionReason records which transition completed a session.
type CompletionReason string

const (
	ReasonSubmitted   CompletionReason = "SUBMITTED"
	ReasonTimeExpired CompletionReason = "TIME_EXPIRED"
	ReasonAbandoned   CompletionReason = "ABANDONED"
)

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithClock replaces time.Now for elapsed and time-spent measurement.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithScorer replaces the scoring function.
func WithScorer(scorer Scorer) SessionOption {
	return func(s *Session) { s.scorer = scorer }
}

// WithTickInterval changes the timer period.
func WithTickInterval(d time.Duration) SessionOption {
	return func(s *Session) { s.tick = d }
}

// WithExternalTicks leaves the timer armed but undriven; the host calls
// Session.Tick from its own event loop.
func WithExternalTicks() SessionOption {
	return func(s *Session) { s.externalTicks = true }
}

// WithTickListener is called with the remaining seconds after every tick.
func WithTickListener(fn func(remaining int)) SessionOption {
	return func(s *Session) { s.onTick = fn }
}

// Session is one exam attempt. All methods are safe for concurrent use;
// the transition to COMPLETED happens exactly once.
type Session struct {
	mu  sync.Mutex
	def *Definition

	state  State
	ledger Ledger
	cursor int
	timer  *Timer

	now           func() time.Time
	scorer        Scorer
	tick          time.Duration
	externalTicks bool
	onTick        func(remaining int)

	startedAt   time.Time
	cursorSince time.Time
	completedAt time.Time
	elapsed     int
	reason      CompletionReason
	result      *Result
	done        chan struct{}
}

// NewSession validates def and returns an unstarted session over a private
// copy of it. No session is returned when validation fails.
func NewSession(def *Definition, opts ...SessionOption) (*Session, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		def:    def.clone(),
		state:  StateUnstarted,
		now:    time.Now,
		scorer: Score,
		tick:   DefaultTickInterval,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Definition returns the session's definition. Callers must not modify it.
func (s *Session) Definition() *Definition { return s.def }

// Start moves the session to IN_PROGRESS, allocating the ledger and starting
// the timer for timed exams. The timer goroutine ends with ctx.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUnstarted {
		return s.stateErrLocked()
	}

	now := s.now()
	s.ledger = NewLedger(s.def)
	s.cursor = 0
	s.startedAt = now
	s.cursorSince = now
	s.state = StateInProgress

	if s.def.Timed() {
		s.timer = NewTimer(s.def.TimeLimitSeconds, s.expire)
		s.timer.SetInterval(s.tick)
		if s.onTick != nil {
			s.timer.OnTick(s.onTick)
		}
		if s.externalTicks {
			s.timer.Arm()
		} else {
			s.timer.Run(ctx)
		}
	}
	return nil
}

// Tick advances the timer by one second. It is a no-op for untimed or
// finished sessions.
func (s *Session) Tick() {
	s.mu.Lock()
	t := s.timer
	s.mu.Unlock()
	if t != nil {
		t.Tick()
	}
}

// Answer replaces the stored value for questionID.
func (s *Session) Answer(questionID string, v Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInProgress {
		return s.stateErrLocked()
	}

	q, _, ok := s.def.question(questionID)
	if !ok {
		return ErrUnknownQuestion
	}
	if !q.accepts(v) {
		return ErrInvalidAnswerShape
	}
	s.ledger.set(questionID, v)
	return nil
}

// Goto moves the cursor to index.
func (s *Session) Goto(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInProgress {
		return s.stateErrLocked()
	}
	if index < 0 || index >= len(s.def.Questions) {
		return ErrIndexOutOfRange
	}

	s.flushTimeSpentLocked(s.now())
	s.cursor = index
	return nil
}

// Submit completes the session and returns its result. Submitting an already
// completed session returns the existing result without error.
func (s *Session) Submit() (Result, error) {
	return s.complete(ReasonSubmitted)
}

// Abandon completes the session with a zero score. Like Submit, it is a
// no-op on a completed session.
func (s *Session) Abandon() (Result, error) {
	return s.complete(ReasonAbandoned)
}

func (s *Session) expire() {
	_, _ = s.complete(ReasonTimeExpired)
}

func (s *Session) complete(reason CompletionReason) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateCompleted:
		return *s.result, nil
	case StateUnstarted:
		return Result{}, ErrInvalidState
	}

	now := s.now()
	s.flushTimeSpentLocked(now)

	if s.timer != nil {
		s.timer.Stop()
		s.elapsed = s.def.TimeLimitSeconds - s.timer.Remaining()
	} else {
		s.elapsed = wholeSeconds(now.Sub(s.startedAt))
	}

	s.ledger = s.ledger.Clone()

	var res Result
	if reason == ReasonAbandoned {
		res = ZeroResult(s.def)
	} else {
		res = s.scorer(s.def, s.ledger)
	}

	s.result = &res
	s.reason = reason
	s.completedAt = now
	s.state = StateCompleted
	close(s.done)
	return res, nil
}

// Done is closed once the session completes.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cursor returns the current question index while IN_PROGRESS.
func (s *Session) Cursor() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return 0, s.stateErrLocked()
	}
	return s.cursor, nil
}

// Remaining returns the seconds left; ok is false for untimed sessions.
func (s *Session) Remaining() (seconds int, ok bool) {
	s.mu.Lock()
	t := s.timer
	s.mu.Unlock()
	if t == nil {
		if s.def.Timed() {
			return s.def.TimeLimitSeconds, true
		}
		return 0, false
	}
	return t.Remaining(), true
}

// Ledger returns a copy of the current (or frozen) ledger.
func (s *Session) Ledger() Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Clone()
}

// Result returns the result of a completed session.
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

// Completion returns why and when the session completed and the seconds it
// consumed. ok is false until the session completes.
func (s *Session) Completion() (reason CompletionReason, elapsed int, at time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCompleted {
		return "", 0, time.Time{}, false
	}
	return s.reason, s.elapsed, s.completedAt, true
}

// StartedAt returns when Start was called.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	State            State            `json:"state"`
	Cursor           *int             `json:"cursor,omitempty"`
	QuestionCount    int              `json:"question_count"`
	Answered         int              `json:"answered"`
	RemainingSeconds *int             `json:"remaining_seconds,omitempty"`
	ElapsedSeconds   int              `json:"elapsed_seconds"`
	Reason           CompletionReason `json:"completion_reason,omitempty"`
	Answers          Ledger           `json:"answers"`
	Result           *Result          `json:"result,omitempty"`
}

// Snapshot captures the session's current state.
func (s *Session) Snapshot() Snapshot {
	remaining, timed := s.Remaining()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:         s.state,
		QuestionCount: len(s.def.Questions),
		Answers:       s.ledger.Clone(),
		Answered:      s.ledger.Answered(),
		Reason:        s.reason,
	}
	if timed {
		snap.RemainingSeconds = &remaining
	}

	switch s.state {
	case StateInProgress:
		cursor := s.cursor
		snap.Cursor = &cursor
		if s.timer != nil {
			snap.ElapsedSeconds = s.def.TimeLimitSeconds - remaining
		} else {
			snap.ElapsedSeconds = wholeSeconds(s.now().Sub(s.startedAt))
		}
	case StateCompleted:
		res := *s.result
		snap.Result = &res
		snap.ElapsedSeconds = s.elapsed
	}
	return snap
}

func (s *Session) flushTimeSpentLocked(now time.Time) {
	s.ledger.addTime(s.cursor, wholeSeconds(now.Sub(s.cursorSince)))
	s.cursorSince = now
}

func (s *Session) stateErrLocked() error {
	if s.state == StateCompleted {
		return ErrSessionCompleted
	}
	return ErrInvalidState
}

func wholeSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}
