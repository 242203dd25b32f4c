package exam

import (
	"sync"
	"time"
)

// sampleDefinition is a three question exam worth 3/4/3 points, pass at 70%.
func sampleDefinition() *Definition {
	return &Definition{
		ID:                  "exam-web-basics",
		CourseID:            "course-web",
		Title:               "Web Basics",
		PassingScorePercent: 70,
		TimeLimitSeconds:    0,
		MaxAttempts:         3,
		Questions: []Question{
			{
				ID:            "q1",
				Type:          QuestionTypeSingleChoice,
				Prompt:        "Which tag creates a hyperlink?",
				Options:       []string{"<a>", "<p>", "<div>"},
				CorrectAnswer: Text("<a>"),
				Points:        3,
			},
			{
				ID:            "q2",
				Type:          QuestionTypeMultiSelect,
				Prompt:        "Which run in the browser?",
				Options:       []string{"HTML", "CSS", "JavaScript", "SQL"},
				CorrectAnswer: Selection("HTML", "CSS", "JavaScript"),
				Points:        4,
			},
			{
				ID:            "q3",
				Type:          QuestionTypeFreeText,
				Prompt:        "Name the styling language of the web.",
				CorrectAnswer: Text("CSS"),
				Points:        3,
			},
		},
	}
}

func timedDefinition(seconds int) *Definition {
	def := sampleDefinition()
	def.TimeLimitSeconds = seconds
	return def
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
