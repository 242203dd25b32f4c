package exam

import "slices"

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "SINGLE_CHOICE"
	QuestionTypeMultiSelect  QuestionType = "MULTI_SELECT"
	QuestionTypeFreeText     QuestionType = "FREE_TEXT"
)

// IsChoice reports whether questions of this type carry options.
func (t QuestionType) IsChoice() bool {
	return t == QuestionTypeSingleChoice || t == QuestionTypeMultiSelect
}

// Question is one scored question together with its grading key.
type Question struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type"`
	Prompt        string       `json:"prompt"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer Value        `json:"correct_answer"`
	Points        int          `json:"points"`
}

// DefaultValue is the "unanswered" value for the question's type.
func (q *Question) DefaultValue() Value {
	if q.Type == QuestionTypeMultiSelect {
		return Selection()
	}
	return Text("")
}

// accepts reports whether v has the shape this question expects.
func (q *Question) accepts(v Value) bool {
	if q.Type == QuestionTypeMultiSelect {
		return v.IsSelection()
	}
	return !v.IsSelection()
}

func (q *Question) validate() error {
	if q.ID == "" {
		return malformed("question without id")
	}
	if q.Points < 1 {
		return malformed("question %s: points must be at least 1", q.ID)
	}

	switch q.Type {
	case QuestionTypeSingleChoice, QuestionTypeMultiSelect:
		if len(q.Options) < 2 {
			return malformed("question %s: choice questions need at least 2 options", q.ID)
		}
		seen := make(map[string]struct{}, len(q.Options))
		for _, o := range q.Options {
			if o == "" {
				return malformed("question %s: empty option", q.ID)
			}
			if _, dup := seen[o]; dup {
				return malformed("question %s: duplicate option %q", q.ID, o)
			}
			seen[o] = struct{}{}
		}
	case QuestionTypeFreeText:
		if len(q.Options) > 0 {
			return malformed("question %s: free text questions take no options", q.ID)
		}
	default:
		return malformed("question %s: unknown type %q", q.ID, q.Type)
	}

	if !q.accepts(q.CorrectAnswer) {
		return malformed("question %s: correct answer shape does not match type", q.ID)
	}

	switch q.Type {
	case QuestionTypeFreeText:
		if q.CorrectAnswer.IsEmpty() {
			return malformed("question %s: free text answer key is empty", q.ID)
		}
	case QuestionTypeSingleChoice:
		if !slices.Contains(q.Options, q.CorrectAnswer.String()) {
			return malformed("question %s: correct answer is not an option", q.ID)
		}
	case QuestionTypeMultiSelect:
		if q.CorrectAnswer.IsEmpty() {
			return malformed("question %s: correct answer selects nothing", q.ID)
		}
		for _, m := range q.CorrectAnswer.Members() {
			if !slices.Contains(q.Options, m) {
				return malformed("question %s: correct answer %q is not an option", q.ID, m)
			}
		}
	}
	return nil
}
