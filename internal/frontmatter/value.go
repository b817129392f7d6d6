package frontmatter

import (
	"slices"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindStringArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindStringArray:
		return "array"
	default:
		return "unknown"
	}
}

// Value is a typed frontmatter value. The zero Value is Null.
type Value struct {
	kind  Kind
	b     bool
	n     float64
	s     string
	items []string
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// StringArray returns an array value holding a copy of items.
func StringArray(items ...string) Value {
	cp := make([]string, len(items))
	copy(cp, items)
	return Value{kind: KindStringArray, items: cp}
}

func (v Value) Kind() Kind { return v.kind }

// Bool reports the boolean held by v; false for other kinds.
func (v Value) Bool() bool { return v.kind == KindBool && v.b }

// Num reports the number held by v; 0 for other kinds.
func (v Value) Num() float64 {
	if v.kind != KindNumber {
		return 0
	}
	return v.n
}

// Text returns the string held by v and whether v is a string.
func (v Value) Text() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// Items returns a copy of the array elements, or nil for other kinds.
func (v Value) Items() []string {
	if v.kind != KindStringArray {
		return nil
	}
	return slices.Clone(v.items)
}

// IsEmpty reports whether v counts as an unpopulated field:
// null, the empty string, or an empty array.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == ""
	case KindStringArray:
		return len(v.items) == 0
	default:
		return false
	}
}

// Equal reports whether v and o hold the same variant and contents.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindStringArray:
		return slices.Equal(v.items, o.items)
	default:
		return true
	}
}

// Any converts v to a plain Go value suitable for JSON encoding.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindStringArray:
		return v.Items()
	default:
		return nil
	}
}

// String renders v as a single-line scalar. Arrays render in flow style.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return formatNumber(v.n)
	case KindString:
		return quoteIfNeeded(v.s)
	case KindStringArray:
		if len(v.items) == 0 {
			return "[]"
		}
		out := "["
		for i, it := range v.items {
			if i > 0 {
				out += ", "
			}
			out += it
		}
		return out + "]"
	default:
		return "null"
	}
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
