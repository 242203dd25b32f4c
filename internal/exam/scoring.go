package exam

// Result is the graded outcome of a completed session.
type Result struct {
	RawScore    int             `json:"raw_score"`
	MaxScore    int             `json:"max_score"`
	Percentage  int             `json:"percentage"`
	Passed      bool            `json:"passed"`
	Correctness map[string]bool `json:"per_question_correctness"`
}

// Scorer grades a frozen ledger against a definition.
type Scorer func(def *Definition, ledger Ledger) Result

// Score grades every question of def against ledger.
//
// Text answers must match the key exactly: comparison is case-sensitive and
// nothing is trimmed. Selections must equal the key set; there is no partial
// credit. Unanswered questions are incorrect.
func Score(def *Definition, ledger Ledger) Result {
	res := Result{
		MaxScore:    def.MaxScore(),
		Correctness: make(map[string]bool, len(def.Questions)),
	}

	for i := range def.Questions {
		q := &def.Questions[i]
		entry, ok := ledger.Entry(q.ID)
		correct := ok && isCorrect(q, entry.Value)
		res.Correctness[q.ID] = correct
		if correct {
			res.RawScore += q.Points
		}
	}

	res.Percentage = Percentage(res.RawScore, res.MaxScore)
	res.Passed = res.Percentage >= def.PassingScorePercent
	return res
}

// ZeroResult is the result of an abandoned attempt: nothing is credited and
// the attempt never passes.
func ZeroResult(def *Definition) Result {
	res := Result{
		MaxScore:    def.MaxScore(),
		Correctness: make(map[string]bool, len(def.Questions)),
	}
	for i := range def.Questions {
		res.Correctness[def.Questions[i].ID] = false
	}
	return res
}

// Percentage returns raw/max*100 rounded half-up to the nearest integer.
func Percentage(raw, max int) int {
	if max <= 0 || raw <= 0 {
		return 0
	}
	return (raw*200 + max) / (2 * max)
}

func isCorrect(q *Question, v Value) bool {
	if v.IsEmpty() || !q.accepts(v) {
		return false
	}
	return v.Equal(q.CorrectAnswer)
}
