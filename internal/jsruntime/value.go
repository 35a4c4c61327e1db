package jsruntime

import (
	"math"
	"strconv"
)

// ValueKind identifies the JavaScript type a Value was copied from.
type ValueKind int

const (
	KindUndefined ValueKind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindObject
	KindFunction
)

func (k ValueKind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Value is an immutable host-side copy of an engine value. It never holds an
// engine handle, so it stays valid after the session that produced it is shut
// down. Objects and functions keep only their string form.
type Value struct {
	kind ValueKind
	b    bool
	n    float64
	s    string
}

func Undefined() Value { return Value{kind: KindUndefined} }

func Null() Value { return Value{kind: KindNull} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

func String(s string) Value { return Value{kind: KindString, s: s} }

// Object records an object value by its display form.
func Object(display string) Value { return Value{kind: KindObject, s: display} }

// Function records a callable value by its display form.
func Function(display string) Value { return Value{kind: KindFunction, s: display} }

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

func (v Value) IsCallable() bool { return v.kind == KindFunction }

// AsString converts a string value. Other kinds report ok=false.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsNumber converts a number value. Other kinds report ok=false.
func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.n, true
}

// AsInt converts a number value holding an integer that fits in int64.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindNumber || math.IsNaN(v.n) || math.IsInf(v.n, 0) || v.n != math.Trunc(v.n) {
		return 0, false
	}
	if v.n < math.MinInt64 || v.n >= math.MaxInt64 {
		return 0, false
	}
	return int64(v.n), true
}

// AsBool converts a boolean value. Other kinds report ok=false.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// String renders the value the way JavaScript's String() would for
// primitives.
func (v Value) String() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return formatNumber(v.n)
	default:
		return v.s
	}
}

func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	case n == math.Trunc(n) && math.Abs(n) < 1e21:
		return strconv.FormatFloat(n, 'f', -1, 64)
	default:
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
}
