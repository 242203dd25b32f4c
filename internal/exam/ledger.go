package exam

import (
	"encoding/json"
	"fmt"
)

// AnswerEntry is the stored answer for one question.
type AnswerEntry struct {
	QuestionID       string `json:"question_id"`
	Value            Value  `json:"value"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

// Ledger holds exactly one AnswerEntry per question, in question order.
type Ledger struct {
	entries []AnswerEntry
	index   map[string]int
}

// NewLedger allocates a default entry for every question of def.
func NewLedger(def *Definition) Ledger {
	l := Ledger{
		entries: make([]AnswerEntry, len(def.Questions)),
		index:   make(map[string]int, len(def.Questions)),
	}
	for i := range def.Questions {
		q := &def.Questions[i]
		l.entries[i] = AnswerEntry{QuestionID: q.ID, Value: q.DefaultValue()}
		l.index[q.ID] = i
	}
	return l
}

// Len returns the number of entries.
func (l Ledger) Len() int { return len(l.entries) }

// Entry returns a copy of the entry for questionID.
func (l Ledger) Entry(questionID string) (AnswerEntry, bool) {
	i, ok := l.index[questionID]
	if !ok {
		return AnswerEntry{}, false
	}
	e := l.entries[i]
	e.Value = e.Value.clone()
	return e, true
}

// Entries returns a copy of all entries in question order.
func (l Ledger) Entries() []AnswerEntry {
	out := make([]AnswerEntry, len(l.entries))
	for i, e := range l.entries {
		e.Value = e.Value.clone()
		out[i] = e
	}
	return out
}

// Answered counts entries holding a non-default value.
func (l Ledger) Answered() int {
	n := 0
	for _, e := range l.entries {
		if !e.Value.IsEmpty() {
			n++
		}
	}
	return n
}

// Clone returns a ledger sharing no memory with l.
func (l Ledger) Clone() Ledger {
	c := Ledger{
		entries: l.Entries(),
		index:   make(map[string]int, len(l.index)),
	}
	for k, v := range l.index {
		c.index[k] = v
	}
	return c
}

// Equal reports whether both ledgers hold the same entries in the same order.
func (l Ledger) Equal(o Ledger) bool {
	if len(l.entries) != len(o.entries) {
		return false
	}
	for i := range l.entries {
		a, b := l.entries[i], o.entries[i]
		if a.QuestionID != b.QuestionID || a.TimeSpentSeconds != b.TimeSpentSeconds || !a.Value.Equal(b.Value) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the ledger as its ordered entry list.
func (l Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Entries())
}

// UnmarshalJSON rebuilds a ledger from its entry list. Duplicate question ids
// are rejected.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var entries []AnswerEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	index := make(map[string]int, len(entries))
	for i, e := range entries {
		if _, dup := index[e.QuestionID]; dup {
			return fmt.Errorf("duplicate ledger entry %q", e.QuestionID)
		}
		index[e.QuestionID] = i
	}
	l.entries, l.index = entries, index
	return nil
}

func (l Ledger) set(questionID string, v Value) bool {
	i, ok := l.index[questionID]
	if !ok {
		return false
	}
	l.entries[i].Value = v.clone()
	return true
}

func (l Ledger) addTime(position, seconds int) {
	if position < 0 || position >= len(l.entries) || seconds <= 0 {
		return
	}
	l.entries[position].TimeSpentSeconds += seconds
}
