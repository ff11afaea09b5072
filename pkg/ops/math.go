package ops

import (
	"math"

	starlarkmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"

	"github.com/tagspeak/tagspeak/pkg/interp"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

// opMath evaluates the argument as a starlark expression.
// Numeric, string and boolean variables are visible by name, along with the math module.
func opMath(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	if p.Arg == nil {
		return rt.Last(), nil
	}
	if p.Arg.Kind == tsapi.ArgNumber {
		return value.Num(p.Arg.Num), nil
	}
	expr := p.Arg.Text
	globals := starlark.StringDict{"math": starlarkmath.Module}
	for name, v := range rt.Vars() {
		if sv, ok := toStarlark(v); ok {
			globals[name] = sv
		}
	}
	thread := &starlark.Thread{Name: "math"}
	out, err := starlark.ExecFile(thread, "math", "__result__ = ("+expr+"\n)\n", globals)
	if err != nil {
		return value.Unit, tsapi.ErrorInvalid("math: "+err.Error(), [2]string{"expression", expr})
	}
	switch res := out["__result__"].(type) {
	case starlark.Int, starlark.Float:
		f, _ := starlark.AsFloat(res)
		return value.Num(f), nil
	case starlark.Bool:
		return value.Bool(bool(res)), nil
	case starlark.String:
		return value.Str(string(res)), nil
	case starlark.NoneType:
		return value.Unit, nil
	default:
		return value.Unit, tsapi.ErrorInvalid("math: unsupported result type "+res.Type(), [2]string{"expression", expr})
	}
}

func toStarlark(v value.Value) (starlark.Value, bool) {
	switch v.Kind() {
	case value.KindNum:
		f, _ := v.TryNum()
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return starlark.MakeInt64(int64(f)), true
		}
		return starlark.Float(f), true
	case value.KindStr:
		return starlark.String(v.String()), true
	case value.KindBool:
		return starlark.Bool(v.AsBool()), true
	}
	return nil, false
}
