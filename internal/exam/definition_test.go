package exam

import (
	"errors"
	"testing"
)

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Definition)
		want   error
	}{
		{name: "valid", mutate: func(d *Definition) {}, want: nil},
		{name: "no questions", mutate: func(d *Definition) { d.Questions = nil }, want: ErrEmpty},
		{name: "zero points", mutate: func(d *Definition) { d.Questions[0].Points = 0 }, want: ErrMalformedExam},
		{name: "single option", mutate: func(d *Definition) { d.Questions[0].Options = []string{"<a>"} }, want: ErrMalformedExam},
		{name: "key not an option", mutate: func(d *Definition) { d.Questions[0].CorrectAnswer = Text("<span>") }, want: ErrMalformedExam},
		{name: "multi key not an option", mutate: func(d *Definition) { d.Questions[1].CorrectAnswer = Selection("HTML", "Rust") }, want: ErrMalformedExam},
		{name: "multi key is text", mutate: func(d *Definition) { d.Questions[1].CorrectAnswer = Text("HTML") }, want: ErrMalformedExam},
		{name: "single key is selection", mutate: func(d *Definition) { d.Questions[0].CorrectAnswer = Selection("<a>") }, want: ErrMalformedExam},
		{name: "free text with options", mutate: func(d *Definition) { d.Questions[2].Options = []string{"CSS", "XSL"} }, want: ErrMalformedExam},
		{name: "duplicate ids", mutate: func(d *Definition) { d.Questions[2].ID = "q1" }, want: ErrMalformedExam},
		{name: "unknown type", mutate: func(d *Definition) { d.Questions[0].Type = "ORDERING" }, want: ErrMalformedExam},
		{name: "passing over 100", mutate: func(d *Definition) { d.PassingScorePercent = 101 }, want: ErrMalformedExam},
		{name: "negative limit", mutate: func(d *Definition) { d.TimeLimitSeconds = -1 }, want: ErrMalformedExam},
		{name: "zero attempts", mutate: func(d *Definition) { d.MaxAttempts = 0 }, want: ErrMalformedExam},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			def := sampleDefinition()
			tc.mutate(def)
			err := def.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNewSessionRejectsMalformedDefinition(t *testing.T) {
	def := sampleDefinition()
	def.Questions[1].Options = []string{"HTML"}

	s, err := NewSession(def)
	if !errors.Is(err, ErrMalformedExam) {
		t.Fatalf("got %v, want ErrMalformedExam", err)
	}
	if s != nil {
		t.Fatal("no session must be returned for a malformed exam")
	}
}

func TestSessionIsolatedFromDefinitionMutation(t *testing.T) {
	def := sampleDefinition()
	s, err := NewSession(def)
	if err != nil {
		t.Fatal(err)
	}
	def.Questions[0].CorrectAnswer = Text("<p>")
	def.Questions[1].Options[0] = "XML"

	if got := s.Definition().Questions[0].CorrectAnswer.String(); got != "<a>" {
		t.Errorf("session key changed to %q", got)
	}
	if got := s.Definition().Questions[1].Options[0]; got != "HTML" {
		t.Errorf("session option changed to %q", got)
	}
}
