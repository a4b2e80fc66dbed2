package backup

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Nullable distinguishes three wire states for a field: absent key
// (Set=false), explicit null (Set=true, Valid=false), and a value
// (Set=true, Valid=true). Absent means "keep the stored value", null
// means "clear it".
type Nullable[T any] struct {
	Set   bool
	Valid bool
	Value T
}

func NullableOf[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Valid: true, Value: v}
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Valid = false
		return nil
	}
	if err := json.Unmarshal(data, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// IsZero makes absent fields drop out under the omitzero tag.
func (n Nullable[T]) IsZero() bool {
	return !n.Set
}

// Ptr returns the value as a nullable pointer, nil when the field was
// absent or null.
func (n Nullable[T]) Ptr() *T {
	if !n.Set || !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// FlexInt64 accepts a JSON number or a numeric string. Some sources
// assign ids wider than what the client serializes as a plain number,
// so they arrive quoted.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var err error
		s, err = strconv.Unquote(s)
		if err != nil {
			return err
		}
	}
	// Some clients serialize whole numbers with a fractional part.
	if strings.ContainsAny(s, ".eE") {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = FlexInt64(int64(v))
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*f = FlexInt64(v)
	return nil
}

func (f FlexInt64) Int64() int64 { return int64(f) }

// StringList accepts a JSON array of strings or a single comma-joined
// string ("a, b"), normalizing both to an ordered list.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*l = nil
		return nil
	}
	if len(s) > 0 && s[0] == '[' {
		var arr []string
		if err := json.Unmarshal(data, &arr); err != nil {
			return err
		}
		*l = arr
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	if joined == "" {
		*l = []string{}
		return nil
	}
	parts := strings.Split(joined, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	*l = out
	return nil
}
