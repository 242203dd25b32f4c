package exam

import (
	"encoding/json"
	"testing"
)

func TestSelectionIsASet(t *testing.T) {
	a := Selection("CSS", "HTML", "CSS")
	b := Selection("HTML", "CSS")
	if !a.Equal(b) {
		t.Fatalf("expected %v to equal %v", a.Members(), b.Members())
	}
	if Selection("HTML").Equal(Text("HTML")) {
		t.Fatal("selection must not equal text")
	}
}

func TestValueDefaults(t *testing.T) {
	var zero Value
	if zero.IsSelection() || !zero.IsEmpty() {
		t.Fatal("zero value should be empty text")
	}
	if !Selection().IsEmpty() || !Selection().IsSelection() {
		t.Fatal("empty selection should be an empty set")
	}
}

func TestValueJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Value
	}{
		{name: "text", input: `"CSS"`, want: Text("CSS")},
		{name: "empty text", input: `""`, want: Text("")},
		{name: "selection", input: `["JavaScript","HTML"]`, want: Selection("HTML", "JavaScript")},
		{name: "empty selection", input: `[]`, want: Selection()},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got Value
			if err := json.Unmarshal([]byte(tc.input), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("got %#v, want %#v", got, tc.want)
			}
		})
	}

	var v Value
	if err := json.Unmarshal([]byte(`42`), &v); err == nil {
		t.Error("expected error for numeric value")
	}

	raw, err := json.Marshal(Selection("b", "a"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `["a","b"]` {
		t.Errorf("marshal selection = %s", raw)
	}
}
