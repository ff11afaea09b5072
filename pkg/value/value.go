/*
Package value holds the runtime's dynamically typed Value and the structured Document it can carry.

Value is a closed tagged union: Unit, Bool, Num, Str or Doc.
There is no implicit conversion between kinds; every coercion goes through
AsBool or TryNum so that each coercion site is visible.
*/
package value

import (
	"math"
	"strconv"
	"strings"
)

// Kind discriminates Value.
type Kind uint8

const (
	KindUnit Kind = iota
	KindBool
	KindNum
	KindStr
	KindDoc
)

func (k Kind) String() string {
	switch k {
	case KindUnit:
		return "unit"
	case KindBool:
		return "bool"
	case KindNum:
		return "num"
	case KindStr:
		return "str"
	case KindDoc:
		return "doc"
	}
	return "invalid"
}

// Value is the result of every evaluation.
// The zero Value is Unit.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	doc  *Document
}

var Unit = Value{}

func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func Num(n float64) Value       { return Value{kind: KindNum, n: n} }
func Str(s string) Value        { return Value{kind: KindStr, s: s} }
func FromDoc(d *Document) Value { return Value{kind: KindDoc, doc: d} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsUnit() bool { return v.kind == KindUnit }

// Document returns the carried document, or nil when v is not a Doc.
func (v Value) Document() *Document {
	if v.kind != KindDoc {
		return nil
	}
	return v.doc
}

// AsBool is truthiness: Num is false for zero and NaN, Str for "", Unit always, Doc never.
func (v Value) AsBool() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNum:
		return v.n != 0 && !math.IsNaN(v.n)
	case KindStr:
		return v.s != ""
	case KindDoc:
		return true
	}
	return false
}

// TryNum coerces a Num, or a Str that parses as a float, to a float.
func (v Value) TryNum() (float64, bool) {
	switch v.kind {
	case KindNum:
		return v.n, true
	case KindStr:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Clone returns a copy sharing no mutable state with v.
func (v Value) Clone() Value {
	if v.kind == KindDoc && v.doc != nil {
		return FromDoc(v.doc.Clone())
	}
	return v
}

// String renders the value for output: Unit is empty, numbers drop a zero fraction, documents are JSON.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNum:
		return FormatNum(v.n)
	case KindStr:
		return v.s
	case KindDoc:
		if v.doc == nil {
			return "null"
		}
		b, err := v.doc.Encode(FormatJSON)
		if err != nil {
			return "<document: " + err.Error() + ">"
		}
		return string(b)
	}
	return ""
}

// FormatNum prints integral values without a fraction.
func FormatNum(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Equal is structural equality within a kind.
// Values of different kinds are never equal; two Units are equal; documents never compare equal.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUnit:
		return true
	case KindBool:
		return a.b == b.b
	case KindNum:
		return a.n == b.n
	case KindStr:
		return a.s == b.s
	}
	return false
}
