package exam

import (
	"errors"
	"fmt"
)

// Definition loading errors. These are fatal to session creation.
var (
	ErrNotFound      = errors.New("exam not found")
	ErrEmpty         = errors.New("exam has no questions")
	ErrMalformedExam = errors.New("exam definition is malformed")
)

// Operation errors on a live session. The session is left unchanged.
var (
	ErrInvalidState       = errors.New("operation not allowed in current session state")
	ErrSessionCompleted   = fmt.Errorf("%w: session already completed", ErrInvalidState)
	ErrUnknownQuestion    = errors.New("question does not belong to this exam")
	ErrInvalidAnswerShape = errors.New("answer shape does not match question type")
	ErrIndexOutOfRange    = errors.New("question index out of range")
)

// ErrPersistence reports a failure of the attempt persistence collaborator.
// The outcome stays in memory so persistence can be retried.
var ErrPersistence = errors.New("attempt persistence failed")

// malformed wraps ErrMalformedExam with the offending detail.
func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedExam, fmt.Sprintf(format, args...))
}
