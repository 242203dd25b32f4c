package websocket

import (
	"encoding/json"

	"github.com/stemsi/exstem-academy/internal/exam"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer  Action = "answer"
	ActionGoto    Action = "goto"
	ActionSubmit  Action = "submit"
	ActionAbandon Action = "abandon"
	ActionState   Action = "state"
	ActionPing    Action = "ping"
)

// Request is every client message. Fields beyond Action depend on it:
// answer uses QuestionID and Value, goto uses Index.
type Request struct {
	Action     Action          `json:"action"`
	QuestionID string          `json:"question_id,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
	Index      *int            `json:"index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState     Event = "state"
	EventAck       Event = "ack"
	EventTick      Event = "tick"
	EventCompleted Event = "completed"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// StateResponse carries the full attempt view.
type StateResponse struct {
	Event   Event       `json:"event"`
	Attempt interface{} `json:"attempt"`
}

// AckResponse confirms an answer.
type AckResponse struct {
	Event      Event      `json:"event"`
	Action     Action     `json:"action"`
	QuestionID string     `json:"question_id,omitempty"`
	Value      exam.Value `json:"value"`
}

// TickResponse is pushed once per exam second of a timed attempt.
type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

// CompletedResponse is pushed when the attempt ends, however it ended.
type CompletedResponse struct {
	Event   Event         `json:"event"`
	Outcome *exam.Outcome `json:"outcome"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
