package exam

// Definition is an exam as loaded from the catalog. It is treated as
// immutable once a session has been created from it.
type Definition struct {
	ID                  string     `json:"id"`
	CourseID            string     `json:"course_id,omitempty"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	PassingScorePercent int        `json:"passing_score_percent"`
	TimeLimitSeconds    int        `json:"time_limit_seconds"`
	MaxAttempts         int        `json:"max_attempts"`
	Questions           []Question `json:"questions"`
}

// Timed reports whether the exam enforces a time limit.
func (d *Definition) Timed() bool { return d.TimeLimitSeconds > 0 }

// MaxScore is the sum of all question points.
func (d *Definition) MaxScore() int {
	total := 0
	for i := range d.Questions {
		total += d.Questions[i].Points
	}
	return total
}

// Validate checks the definition shape. A definition without questions
// yields ErrEmpty, any other problem ErrMalformedExam.
func (d *Definition) Validate() error {
	if d == nil {
		return ErrNotFound
	}
	if len(d.Questions) == 0 {
		return ErrEmpty
	}
	if d.PassingScorePercent < 0 || d.PassingScorePercent > 100 {
		return malformed("passing score percent %d outside 0..100", d.PassingScorePercent)
	}
	if d.TimeLimitSeconds < 0 {
		return malformed("negative time limit")
	}
	if d.MaxAttempts < 1 {
		return malformed("max attempts must be at least 1")
	}

	seen := make(map[string]struct{}, len(d.Questions))
	for i := range d.Questions {
		q := &d.Questions[i]
		if err := q.validate(); err != nil {
			return err
		}
		if _, dup := seen[q.ID]; dup {
			return malformed("duplicate question id %s", q.ID)
		}
		seen[q.ID] = struct{}{}
	}
	return nil
}

// question returns the question with the given id and its index.
func (d *Definition) question(id string) (*Question, int, bool) {
	for i := range d.Questions {
		if d.Questions[i].ID == id {
			return &d.Questions[i], i, true
		}
	}
	return nil, -1, false
}

// clone deep-copies d so a session cannot observe later caller mutation.
func (d *Definition) clone() *Definition {
	c := *d
	c.Questions = make([]Question, len(d.Questions))
	for i, q := range d.Questions {
		q.Options = append([]string(nil), q.Options...)
		q.CorrectAnswer = q.CorrectAnswer.clone()
		c.Questions[i] = q
	}
	return &c
}
