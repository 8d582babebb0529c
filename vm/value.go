package vm

import (
	"math"
	"strconv"
	"strings"
)

// Kind tags the dynamic type of a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNumber
	KindString
	KindArray
)

var kindNames = [...]string{"undefined", "number", "string", "array"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Value is a tagged Orca runtime value.
//
// Booleans are numbers (1 and 0). Objects are field vectors addressed by
// member declaration index and share the array representation; both are
// handles, so copying a Value aliases the underlying vector.
type Value struct {
	kind Kind
	num  float64
	str  string
	arr  *Array
}

// Array is a growable vector of values shared by reference.
type Array struct {
	Elems []Value
}

// Undefined is the value of a freshly reserved scalar slot.
var Undefined = Value{}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// FromFloat64 returns a number value.
func FromFloat64(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// FromInt returns a number value.
func FromInt(n int) Value {
	return Value{kind: KindNumber, num: float64(n)}
}

// FromBool returns 1 for true and 0 for false.
func FromBool(b bool) Value {
	if b {
		return FromFloat64(1)
	}
	return FromFloat64(0)
}

// FromString returns a string value.
func FromString(s string) Value {
	return Value{kind: KindString, str: s}
}

// NewArray returns a handle to a fresh array holding elems.
func NewArray(elems ...Value) Value {
	return Value{kind: KindArray, arr: &Array{Elems: elems}}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Kind returns the value's tag.
func (v Value) Kind() Kind { return v.kind }

// IsUndefined returns true for an unassigned slot value.
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// IsNumber returns true if v holds a number.
func (v Value) IsNumber() bool { return v.kind == KindNumber }

// IsString returns true if v holds a string.
func (v Value) IsString() bool { return v.kind == KindString }

// IsArray returns true if v holds an array or object handle.
func (v Value) IsArray() bool { return v.kind == KindArray }

// Float64 returns the number payload; zero for other kinds.
func (v Value) Float64() float64 { return v.num }

// Str returns the string payload; empty for other kinds.
func (v Value) Str() string { return v.str }

// Array returns the array handle, or nil.
func (v Value) Array() *Array { return v.arr }

// ---------------------------------------------------------------------------
// Comparison and formatting
// ---------------------------------------------------------------------------

// Equal compares two values. Numbers and strings compare by content, array
// handles by identity.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindArray:
		return v.arr == o.arr
	}
	return true
}

// String returns the form print writes.
func (v Value) String() string {
	var b strings.Builder
	v.format(&b, nil)
	return b.String()
}

func (v Value) format(b *strings.Builder, seen map[*Array]bool) {
	switch v.kind {
	case KindUndefined:
		b.WriteString("null")
	case KindNumber:
		b.WriteString(FormatNumber(v.num))
	case KindString:
		b.WriteString(v.str)
	case KindArray:
		if seen[v.arr] {
			b.WriteString("[...]")
			return
		}
		if seen == nil {
			seen = make(map[*Array]bool)
		}
		seen[v.arr] = true
		b.WriteByte('[')
		for i, e := range v.arr.Elems {
			if i > 0 {
				b.WriteByte(',')
			}
			e.format(b, seen)
		}
		b.WriteByte(']')
		delete(seen, v.arr)
	}
}

// FormatNumber renders integral numbers without a fraction.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
