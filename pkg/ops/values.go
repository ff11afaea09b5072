package ops

import (
	"math"
	"math/rand"
	"strconv"

	"github.com/tagspeak/tagspeak/pkg/interp"
	"github.com/tagspeak/tagspeak/pkg/parser"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

func registerValues(r *interp.Registry) {
	for _, e := range []interp.Entry{
		{Op: "int", Usage: "[int@x]", Summary: "Number truncated toward zero.", Handler: opInt},
		{Op: "num", Usage: "[num@x]", Summary: "Number.", Handler: opNum},
		{Op: "float", Usage: "[float@x]", Summary: "Alias of num.", Handler: opNum},
		{Op: "str", Usage: `[str@"text"]`, Summary: "String; a bare word is taken literally.", Handler: opStr},
		{Op: "msg", Usage: `[msg@"text"]`, Summary: "Alias of str.", Handler: opStr},
		{Op: "bool", Usage: "[bool@true]", Summary: "Boolean, or the truthiness of a value.", Handler: opBool},
		{Op: "var", Usage: "[var@name]", Summary: "Read a variable; unset reads as nothing.", Handler: opVar},
		{Op: "store", Usage: "[store@name] [store(rigid)@name]", Summary: "Store the last value in a variable.", Handler: opStore},
		{Namespace: "store", Op: "fluid", Usage: "[store:fluid@name]", Summary: "Store, overwritable.", Handler: opStore},
		{Namespace: "store", Op: "rigid", Usage: "[store:rigid@name]", Summary: "Store, write-once.", Handler: opStore},
		{Namespace: "store", Op: "context", Usage: "[store:context(cond)@name]", Summary: "Bind the last value to name while cond holds.", Handler: opStoreContext},
		{Op: "inc", Usage: "[inc@name]", Summary: "Add one to a numeric variable.", Handler: opStep(1)},
		{Op: "dec", Usage: "[dec@name]", Summary: "Subtract one from a numeric variable.", Handler: opStep(-1)},
		{Op: "rand", Usage: "[rand] [rand(n)] [rand(lo,hi)]", Summary: "Random number: [0,1), 1..n, or lo..hi inclusive.", Handler: opRand},
		{Op: "math", Usage: "[math@x*2+1]", Summary: "Evaluate an arithmetic expression over the variables.", Handler: opMath},
	} {
		r.Register(e)
	}
}

// numArg reads the argument as a number; an unset identifier is parsed as written.
func numArg(rt *interp.Runtime, p *tsapi.Packet) (float64, error) {
	v, err := rt.ArgValue(p)
	if err != nil {
		return 0, err
	}
	if p.Arg != nil && p.Arg.Kind == tsapi.ArgIdent && v.IsUnit() {
		v = value.Str(p.Arg.Text)
	}
	f, ok := v.TryNum()
	if !ok {
		return 0, tsapi.ErrorNonNumeric(p.Op+" argument", v.String())
	}
	return f, nil
}

func opInt(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	f, err := numArg(rt, p)
	if err != nil {
		return value.Unit, err
	}
	return value.Num(math.Trunc(f)), nil
}

func opNum(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	f, err := numArg(rt, p)
	if err != nil {
		return value.Unit, err
	}
	return value.Num(f), nil
}

func opStr(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	if p.Arg == nil {
		return value.Str(rt.Last().String()), nil
	}
	if p.Arg.Kind == tsapi.ArgCond {
		v, err := rt.ArgValue(p)
		return value.Str(v.String()), err
	}
	return value.Str(p.Arg.Text), nil
}

func opBool(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	if p.Arg != nil && p.Arg.Kind == tsapi.ArgIdent {
		if b, err := strconv.ParseBool(p.Arg.Text); err == nil {
			return value.Bool(b), nil
		}
	}
	v, err := rt.ArgValue(p)
	if err != nil {
		return value.Unit, err
	}
	return value.Bool(v.AsBool()), nil
}

func opVar(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	name, err := interp.ArgName(p)
	if err != nil {
		return value.Unit, err
	}
	return rt.Var(name)
}

// opStore stores the last value. The kind comes from the namespace op (store:rigid) or the mode (store(rigid)).
func opStore(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	name, err := interp.ArgName(p)
	if err != nil {
		return value.Unit, err
	}
	kind := "fluid"
	if p.Namespace == "store" {
		kind = p.Op
	}
	args, err := modeArgs(p)
	if err != nil {
		return value.Unit, err
	}
	if len(args) > 0 {
		kind = args[0]
	}
	v := rt.Last()
	switch kind {
	case "fluid":
		return v, rt.SetVar(name, v, false)
	case "rigid":
		return v, rt.SetVar(name, v, true)
	case "context":
		if len(args) < 2 {
			return value.Unit, tsapi.ErrorInvalid("store(context) needs a condition, as in [store:context(x > 1)@name]")
		}
		return bindContext(rt, name, args[1], v)
	}
	return value.Unit, tsapi.ErrorInvalid("unknown store kind "+strconv.Quote(kind), [2]string{"kind", kind})
}

func opStoreContext(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	name, err := interp.ArgName(p)
	if err != nil {
		return value.Unit, err
	}
	if p.ModeText() == "" {
		return value.Unit, tsapi.ErrorInvalid("store:context needs a condition, as in [store:context(x > 1)@name]")
	}
	return bindContext(rt, name, p.ModeText(), rt.Last())
}

func bindContext(rt *interp.Runtime, name, cond string, v value.Value) (value.Value, error) {
	c, err := parser.ParseCond(cond)
	if err != nil {
		return value.Unit, err
	}
	return v, rt.AddBinding(name, c, v)
}

func opStep(delta float64) interp.Handler {
	return func(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
		name, err := interp.ArgName(p)
		if err != nil {
			return value.Unit, err
		}
		cur, ok := rt.LookupVar(name)
		if !ok {
			return value.Unit, tsapi.ErrorVariableMissing(name)
		}
		f, ok := cur.TryNum()
		if !ok {
			return value.Unit, tsapi.ErrorNonNumeric("variable "+strconv.Quote(name), cur.String())
		}
		next := value.Num(f + delta)
		return next, rt.SetVar(name, next, false)
	}
}

func opRand(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	args, err := modeArgs(p)
	if err != nil {
		return value.Unit, err
	}
	bounds := make([]int64, len(args))
	for i, a := range args {
		n, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return value.Unit, tsapi.ErrorNonNumeric("rand bound", a)
		}
		bounds[i] = n
	}
	var lo, hi int64
	switch len(bounds) {
	case 0:
		return value.Num(rand.Float64()), nil
	case 1:
		lo, hi = 1, bounds[0]
	case 2:
		lo, hi = bounds[0], bounds[1]
	default:
		return value.Unit, tsapi.ErrorInvalid("rand takes at most two bounds, as in [rand(1,6)]")
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return value.Num(float64(randInRange(lo, hi))), nil
}

// randInRange picks uniformly from [lo, hi], lo <= hi, for any int64 bounds.
func randInRange(lo, hi int64) int64 {
	span := uint64(hi) - uint64(lo)
	var r uint64
	switch {
	case span == math.MaxUint64:
		r = rand.Uint64()
	case span < math.MaxInt64:
		r = uint64(rand.Int63n(int64(span + 1)))
	default:
		// at least half of the uint64 range, so rejection ends quickly.
		for r = rand.Uint64(); r > span; r = rand.Uint64() {
		}
	}
	return int64(uint64(lo) + r)
}
