package interp

import (
	"fmt"

	"github.com/tagspeak/tagspeak/pkg/parser"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

// EvalCond decides a condition. And and Or short-circuit.
// Comparison operands and Lit clauses run on a fork, so they leave this runtime's
// variables and last value untouched.
//
// Errors:
//
//   - tagspeak-error-non-numeric -- if an ordering comparison gets a non-numeric operand.
//   - tagspeak-error-parse -- if a Lit clause is not a valid operand.
//   - any error raised while evaluating an operand.
func (rt *Runtime) EvalCond(c tsapi.BExpr) (bool, error) {
	switch c := c.(type) {
	case *tsapi.Cmp:
		l, err := rt.Fork().Eval(c.Lhs)
		if err != nil {
			return false, err
		}
		r, err := rt.Fork().Eval(c.Rhs)
		if err != nil {
			return false, err
		}
		return Compare(l, c.Op, r)
	case *tsapi.And:
		ok, err := rt.EvalCond(c.L)
		if err != nil || !ok {
			return false, err
		}
		return rt.EvalCond(c.R)
	case *tsapi.Or:
		ok, err := rt.EvalCond(c.L)
		if err != nil || ok {
			return ok, err
		}
		return rt.EvalCond(c.R)
	case *tsapi.Not:
		ok, err := rt.EvalCond(c.X)
		return !ok, err
	case *tsapi.Lit:
		n, err := parser.ParseOperand(c.Raw)
		if err != nil {
			return false, err
		}
		v, err := rt.Fork().Eval(n)
		if err != nil {
			return false, err
		}
		return v.AsBool(), nil
	}
	return false, tsapi.ErrorInternal("evaluating condition", fmt.Errorf("unexpected condition type %T", c))
}

// Compare applies a canonical comparator.
// The base comparison comes first; IncludeEq then ORs in equality, and Negate inverts the result.
// Eq is structural and false across kinds. Lt and Gt coerce both sides with TryNum,
// and their equality term is numeric.
//
// Errors:
//
//   - tagspeak-error-non-numeric -- if Lt or Gt gets an operand TryNum rejects.
func Compare(l value.Value, cmp tsapi.Comparator, r value.Value) (bool, error) {
	var res, eq bool
	switch cmp.Base {
	case tsapi.CmpEq:
		res = value.Equal(l, r)
		eq = res
	case tsapi.CmpLt, tsapi.CmpGt:
		lf, ok := l.TryNum()
		if !ok {
			return false, tsapi.ErrorNonNumeric("left side of "+cmp.String(), l.String())
		}
		rf, ok := r.TryNum()
		if !ok {
			return false, tsapi.ErrorNonNumeric("right side of "+cmp.String(), r.String())
		}
		if cmp.Base == tsapi.CmpLt {
			res = lf < rf
		} else {
			res = lf > rf
		}
		eq = lf == rf
	}
	if cmp.IncludeEq {
		res = res || eq
	}
	if cmp.Negate {
		res = !res
	}
	return res, nil
}
