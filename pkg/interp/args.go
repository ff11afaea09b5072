package interp

import (
	"math"

	"github.com/tagspeak/tagspeak/pkg/parser"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

// ArgValue evaluates a packet's argument.
// A string or number is itself; an identifier reads the variable of that name (Unit when unset);
// a parenthesized condition evaluates to a Bool. A packet without an argument yields the last value.
//
// Errors:
//
//   - tagspeak-error-parse -- if a condition argument does not parse.
//   - any error raised while evaluating a condition or binding.
func (rt *Runtime) ArgValue(p *tsapi.Packet) (value.Value, error) {
	if p.Arg == nil {
		return rt.Last(), nil
	}
	switch p.Arg.Kind {
	case tsapi.ArgStr:
		return value.Str(p.Arg.Text), nil
	case tsapi.ArgNumber:
		return value.Num(p.Arg.Num), nil
	case tsapi.ArgIdent:
		return rt.Var(p.Arg.Text)
	case tsapi.ArgCond:
		c, err := parser.ParseCond(p.Arg.Text)
		if err != nil {
			return value.Unit, err
		}
		ok, err := rt.EvalCond(c)
		if err != nil {
			return value.Unit, err
		}
		return value.Bool(ok), nil
	}
	return value.Unit, nil
}

// ArgText is the argument as literal text: the contents of a string, the raw identifier or number,
// or the condition source. It is "" when there is no argument.
func ArgText(p *tsapi.Packet) string {
	if p.Arg == nil {
		return ""
	}
	return p.Arg.Text
}

// ArgName is the argument read as a name (of a variable, tag or task).
//
// Errors:
//
//   - tagspeak-error-invalid -- if the argument is missing or is a condition.
func ArgName(p *tsapi.Packet) (string, error) {
	if p.Arg == nil || p.Arg.Text == "" || p.Arg.Kind == tsapi.ArgCond {
		return "", tsapi.ErrorInvalid(p.Op+" needs a name, as in ["+p.Op+"@name]", [2]string{"packet", p.String()})
	}
	return p.Arg.Text, nil
}

// ArgCount evaluates the argument as a repeat count: truncated toward zero, negatives clamp to 0.
// An identifier naming no variable is parsed as a number instead.
//
// Errors:
//
//   - tagspeak-error-non-numeric -- if the value is not numeric.
func (rt *Runtime) ArgCount(p *tsapi.Packet) (int, error) {
	v, err := rt.ArgValue(p)
	if err != nil {
		return 0, err
	}
	if p.Arg != nil && p.Arg.Kind == tsapi.ArgIdent && v.IsUnit() {
		v = value.Str(p.Arg.Text)
	}
	f, ok := v.TryNum()
	if !ok || math.IsNaN(f) {
		return 0, tsapi.ErrorNonNumeric(p.Op+" count", v.String())
	}
	if f <= 0 {
		return 0, nil
	}
	if f > math.MaxInt32 {
		return math.MaxInt32, nil
	}
	return int(math.Trunc(f)), nil
}
