package awsiot

import (
	"fmt"
)

// EnumTable maps the variants of an int-based enum to their wire names.
// Value zero is reserved for the Unknown variant and has no wire name.
type EnumTable[T ~int] struct {
	kind  string
	names []string
	index map[string]T
}

// NewEnumTable builds a table where names[i] is the wire name of value i+1.
func NewEnumTable[T ~int](kind string, names ...string) *EnumTable[T] {
	t := &EnumTable[T]{
		kind:  kind,
		names: append([]string{""}, names...),
		index: make(map[string]T, len(names)),
	}
	for i, name := range names {
		t.index[name] = T(i + 1)
	}
	return t
}

// Name returns the wire name of v, or "" for Unknown and out of range values.
func (t *EnumTable[T]) Name(v T) string {
	if v <= 0 || int(v) >= len(t.names) {
		return ""
	}
	return t.names[v]
}

// String returns the wire name of v, or "Unknown".
func (t *EnumTable[T]) String(v T) string {
	if name := t.Name(v); name != "" {
		return name
	}
	return "Unknown"
}

// Parse returns the variant named s.
// An unrecognised name yields the Unknown variant and ErrUnknownEnumValue.
func (t *EnumTable[T]) Parse(s string) (T, error) {
	if v, ok := t.index[s]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("%w: %s %q", ErrUnknownEnumValue, t.kind, s)
}

// MarshalText encodes v. Unknown variants cannot be encoded.
func (t *EnumTable[T]) MarshalText(v T) ([]byte, error) {
	name := t.Name(v)
	if name == "" {
		return nil, fmt.Errorf("%w: %s %d", ErrUnknownEnumValue, t.kind, int(v))
	}
	return []byte(name), nil
}

// UnmarshalText decodes text, mapping unrecognised names to Unknown.
// Decoding never fails so a new service value does not break a whole document.
func (t *EnumTable[T]) UnmarshalText(text []byte) T {
	return t.index[string(text)]
}

// Values returns every defined variant in declaration order.
func (t *EnumTable[T]) Values() []T {
	out := make([]T, 0, len(t.names)-1)
	for i := 1; i < len(t.names); i++ {
		out = append(out, T(i))
	}
	return out
}
