package exam

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

type valueKind uint8

const (
	kindText valueKind = iota
	kindSelection
)

// Value is an answer or answer key: either a single string or a set of strings.
// The zero Value is an empty text answer.
type Value struct {
	kind valueKind
	text string
	set  []string
}

// Text returns a single-string value.
func Text(s string) Value {
	return Value{kind: kindText, text: s}
}

// Selection returns a set value. Members are de-duplicated and sorted.
func Selection(members ...string) Value {
	set := slices.Clone(members)
	slices.Sort(set)
	set = slices.Compact(set)
	if set == nil {
		set = []string{}
	}
	return Value{kind: kindSelection, set: set}
}

// IsSelection reports whether v holds a set of strings.
func (v Value) IsSelection() bool { return v.kind == kindSelection }

// String returns the text of a text value, or "" for a selection.
func (v Value) String() string {
	if v.kind == kindSelection {
		return ""
	}
	return v.text
}

// Members returns a copy of the selection members in sorted order.
func (v Value) Members() []string {
	if v.kind != kindSelection {
		return nil
	}
	return slices.Clone(v.set)
}

// IsEmpty reports whether v is the default "unanswered" value for its kind.
func (v Value) IsEmpty() bool {
	if v.kind == kindSelection {
		return len(v.set) == 0
	}
	return v.text == ""
}

// Equal compares kind and content. Selections compare as sets.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	if v.kind == kindSelection {
		return slices.Equal(v.set, o.set)
	}
	return v.text == o.text
}

// clone returns a Value that shares no memory with v.
func (v Value) clone() Value {
	if v.kind == kindSelection {
		return Value{kind: kindSelection, set: slices.Clone(v.set)}
	}
	return v
}

// MarshalJSON encodes text as a JSON string and selections as an array.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == kindSelection {
		return json.Marshal(v.set)
	}
	return json.Marshal(v.text)
}

// UnmarshalJSON accepts a JSON string or an array of strings.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty answer value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	case '[':
		var members []string
		if err := json.Unmarshal(data, &members); err != nil {
			return err
		}
		*v = Selection(members...)
		return nil
	default:
		return fmt.Errorf("answer value must be a string or an array of strings")
	}
}
