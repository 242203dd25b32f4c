package exam

import "time"

// AttemptContext identifies the attempt an outcome belongs to.
type AttemptContext struct {
	AttemptID     string    `json:"attempt_id"`
	ExamID        string    `json:"exam_id"`
	CourseID      string    `json:"course_id,omitempty"`
	StudentID     int       `json:"student_id"`
	AttemptNumber int       `json:"attempt_number"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Outcome is a finished attempt ready for the persistence collaborator.
type Outcome struct {
	Result              Result           `json:"result"`
	ElapsedSeconds      int              `json:"elapsed_seconds"`
	Reason              CompletionReason `json:"completion_reason"`
	Context             AttemptContext   `json:"attempt"`
	Answers             []AnswerEntry    `json:"answers"`
	CertificateEligible bool             `json:"certificate_eligible"`
}

// CertificatePolicy decides whether a result earns a certificate.
type CertificatePolicy interface {
	Eligible(Result) bool
}

// PassedPolicy grants a certificate to every passed attempt.
type PassedPolicy struct{}

func (PassedPolicy) Eligible(r Result) bool { return r.Passed }

// Gate packages completed sessions into outcomes.
type Gate struct {
	policy CertificatePolicy
}

// NewGate returns a Gate using policy, or PassedPolicy when nil.
func NewGate(policy CertificatePolicy) *Gate {
	if policy == nil {
		policy = PassedPolicy{}
	}
	return &Gate{policy: policy}
}

// Package assembles the outcome of a completed session. It returns
// ErrInvalidState while the session is still running.
func (g *Gate) Package(s *Session, attempt AttemptContext) (Outcome, error) {
	res, ok := s.Result()
	if !ok {
		return Outcome{}, ErrInvalidState
	}
	reason, elapsed, completedAt, _ := s.Completion()

	if attempt.ExamID == "" {
		attempt.ExamID = s.def.ID
	}
	if attempt.CourseID == "" {
		attempt.CourseID = s.def.CourseID
	}
	attempt.StartedAt = s.StartedAt()
	attempt.CompletedAt = completedAt

	return Outcome{
		Result:              res,
		ElapsedSeconds:      elapsed,
		Reason:              reason,
		Context:             attempt,
		Answers:             s.Ledger().Entries(),
		CertificateEligible: g.policy.Eligible(res),
	}, nil
}
