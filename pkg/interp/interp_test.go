package interp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/serum-errors/go-serum"

	"github.com/tagspeak/tagspeak/pkg/config"
	"github.com/tagspeak/tagspeak/pkg/parser"
	"github.com/tagspeak/tagspeak/pkg/sandbox"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

// testRegistry holds just enough packets to drive the evaluator.
func testRegistry() *Registry {
	r := NewRegistry()
	lit := func(rt *Runtime, p *tsapi.Packet) (value.Value, error) { return rt.ArgValue(p) }
	r.Register(Entry{Op: "num", Handler: lit})
	r.Register(Entry{Op: "str", Handler: func(rt *Runtime, p *tsapi.Packet) (value.Value, error) {
		return value.Str(ArgText(p)), nil
	}})
	r.Register(Entry{Op: "bool", Handler: func(rt *Runtime, p *tsapi.Packet) (value.Value, error) {
		return value.Bool(ArgText(p) == "true"), nil
	}})
	r.Register(Entry{Op: "var", Handler: lit})
	r.Register(Entry{Op: "store", Handler: func(rt *Runtime, p *tsapi.Packet) (value.Value, error) {
		name, err := ArgName(p)
		if err != nil {
			return value.Unit, err
		}
		v := rt.Last()
		return v, rt.SetVar(name, v, p.ModeText() == "rigid")
	}})
	r.Register(Entry{Op: "print", Handler: func(rt *Runtime, p *tsapi.Packet) (value.Value, error) {
		v, err := rt.ArgValue(p)
		if err != nil {
			return value.Unit, err
		}
		fmt.Fprintln(rt.Stdout(), v.String())
		return v, nil
	}})
	r.Register(Entry{Op: "call", Handler: func(rt *Runtime, p *tsapi.Packet) (value.Value, error) {
		return rt.CallTag(ArgText(p))
	}})
	r.Register(Entry{Op: "break", Handler: func(rt *Runtime, p *tsapi.Packet) (value.Value, error) {
		rt.SetSignal(FlowSignal{Kind: SignalBreak})
		return rt.Last(), nil
	}})
	r.Register(Entry{Namespace: "fx", Op: Wildcard, Handler: func(rt *Runtime, p *tsapi.Packet) (value.Value, error) {
		return value.Str("fx:" + p.Op), nil
	}})
	return r
}

func newTestRuntime(out *bytes.Buffer) *Runtime {
	return New(context.Background(), Options{Registry: testRegistry(), Config: config.Default(), Stdout: out, Allow: &sandbox.AllowSet{}})
}

func eval(t *testing.T, rt *Runtime, src string) (value.Value, error) {
	t.Helper()
	prog, err := parser.Parse(src)
	qt.Assert(t, err, qt.IsNil)
	return rt.EvalProgram(prog)
}

func TestCompare(t *testing.T) {
	cmp := func(sym string) tsapi.Comparator {
		c, ok := tsapi.ComparatorFor(sym)
		qt.Assert(t, ok, qt.IsTrue)
		return c
	}
	for _, tc := range []struct {
		l    value.Value
		op   string
		r    value.Value
		want bool
	}{
		{value.Num(3), "<=", value.Num(3), true},
		{value.Num(3), "<", value.Num(3), false},
		{value.Num(3), ">=", value.Num(2), true},
		{value.Num(2), ">=", value.Num(3), false},
		{value.Str("a"), "==", value.Str("a"), true},
		{value.Str("a"), "!=", value.Str("a"), false},
		{value.Num(1), "==", value.Str("1"), false},
		{value.Num(1), "!=", value.Str("1"), true},
		{value.Bool(true), "==", value.Bool(true), true},
		{value.Str("10"), ">", value.Num(9), true},
		{value.Str("2.5"), "<=", value.Str("2.5"), true},
		{value.Unit, "==", value.Unit, true},
	} {
		got, err := Compare(tc.l, cmp(tc.op), tc.r)
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, got, qt.Equals, tc.want, qt.Commentf("%v %s %v", tc.l, tc.op, tc.r))
	}
	t.Run("negate-applies-after-base", func(t *testing.T) {
		got, err := Compare(value.Str("a"), tsapi.Comparator{Base: tsapi.CmpEq, Negate: true}, value.Str("a"))
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, got, qt.IsFalse)
		got, err = Compare(value.Num(3), tsapi.Comparator{Base: tsapi.CmpLt, IncludeEq: true, Negate: true}, value.Num(3))
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, got, qt.IsFalse)
	})
	t.Run("ordering-needs-numbers", func(t *testing.T) {
		_, err := Compare(value.Str("x"), cmp("<"), value.Num(1))
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeNonNumeric)
		_, err = Compare(value.Num(1), cmp(">"), value.Bool(true))
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeNonNumeric)
	})
}

func TestEvalCond(t *testing.T) {
	var out bytes.Buffer
	rt := newTestRuntime(&out)
	qt.Assert(t, rt.SetVar("x", value.Num(2), false), qt.IsNil)
	qt.Assert(t, rt.SetVar("name", value.Str("bob"), false), qt.IsNil)
	for _, tc := range []struct {
		src  string
		want bool
	}{
		{"x == 2", true},
		{"x [eq] 2", true},
		{"x > 1 && name == 'bob'", true},
		{"x > 1 [and] name == 'alice'", false},
		{"x < 1 || name == 'bob'", true},
		{"!x == 2", false},
		{"[not] x == 3", true},
		{"!(x == 3) && x", true},
		{"missing", false},
		{"name", true},
		{"[var@x] >= 2", true},
		{"true", true},
		{"(1 == 0) [or] (1 == 1)", true},
	} {
		c, err := parser.ParseCond(tc.src)
		qt.Assert(t, err, qt.IsNil, qt.Commentf("cond %q", tc.src))
		got, err := rt.EvalCond(c)
		qt.Assert(t, err, qt.IsNil, qt.Commentf("cond %q", tc.src))
		qt.Check(t, got, qt.Equals, tc.want, qt.Commentf("cond %q", tc.src))
	}
	t.Run("short-circuit", func(t *testing.T) {
		c, err := parser.ParseCond("x == 2 || 'a' < 1")
		qt.Assert(t, err, qt.IsNil)
		got, err := rt.EvalCond(c)
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, got, qt.IsTrue)
	})
	t.Run("operands-do-not-touch-last", func(t *testing.T) {
		rt.SetLast(value.Str("keep"))
		c, err := parser.ParseCond("[str@other] == 'other'")
		qt.Assert(t, err, qt.IsNil)
		_, err = rt.EvalCond(c)
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, rt.Last().String(), qt.Equals, "keep")
	})
}

func TestVariables(t *testing.T) {
	var out bytes.Buffer
	rt := newTestRuntime(&out)
	t.Run("fluid-overwrite", func(t *testing.T) {
		qt.Check(t, rt.SetVar("a", value.Num(1), false), qt.IsNil)
		qt.Check(t, rt.SetVar("a", value.Num(2), false), qt.IsNil)
		v, err := rt.Var("a")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, v.String(), qt.Equals, "2")
	})
	t.Run("rigid-twice-fails", func(t *testing.T) {
		qt.Check(t, rt.SetVar("r", value.Num(1), true), qt.IsNil)
		qt.Check(t, serum.Code(rt.SetVar("r", value.Num(2), true)), qt.Equals, tsapi.ECodeVariableExists)
		qt.Check(t, serum.Code(rt.SetVar("r", value.Num(2), false)), qt.Equals, tsapi.ECodeVariableExists)
		qt.Check(t, rt.RigidNames(), qt.DeepEquals, []string{"r"})
	})
	t.Run("rigid-over-fluid-fails", func(t *testing.T) {
		qt.Check(t, serum.Code(rt.SetVar("a", value.Num(3), true)), qt.Equals, tsapi.ECodeVariableExists)
	})
	t.Run("missing-reads-unit", func(t *testing.T) {
		v, err := rt.Var("nope")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, v.IsUnit(), qt.IsTrue)
	})
	t.Run("bindings", func(t *testing.T) {
		qt.Assert(t, rt.SetVar("mode", value.Str("dev"), false), qt.IsNil)
		c1, _ := parser.ParseCond("mode == 'prod'")
		c2, _ := parser.ParseCond("mode == 'dev'")
		qt.Assert(t, rt.AddBinding("url", c1, value.Str("https://prod")), qt.IsNil)
		qt.Assert(t, rt.AddBinding("url", c2, value.Str("http://localhost")), qt.IsNil)
		v, err := rt.Var("url")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, v.String(), qt.Equals, "http://localhost")

		qt.Assert(t, rt.SetVar("mode", value.Str("test"), false), qt.IsNil)
		v, err = rt.Var("url")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, v.IsUnit(), qt.IsTrue)
	})
	t.Run("binding-reads-its-own-name", func(t *testing.T) {
		qt.Assert(t, rt.SetVar("x", value.Num(5), false), qt.IsNil)
		c, _ := parser.ParseCond("x > 1")
		qt.Assert(t, rt.AddBinding("x", c, value.Num(9)), qt.IsNil)
		v, err := rt.Var("x")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, v.String(), qt.Equals, "9")

		qt.Assert(t, rt.SetVar("x", value.Num(0), false), qt.IsNil)
		v, err = rt.Var("x")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, v.String(), qt.Equals, "0")
	})
	t.Run("bindings-reading-each-other", func(t *testing.T) {
		cp, _ := parser.ParseCond("q > 0")
		cq, _ := parser.ParseCond("p > 0")
		qt.Assert(t, rt.SetVar("p", value.Num(1), false), qt.IsNil)
		qt.Assert(t, rt.SetVar("q", value.Num(1), false), qt.IsNil)
		qt.Assert(t, rt.AddBinding("p", cp, value.Num(2)), qt.IsNil)
		qt.Assert(t, rt.AddBinding("q", cq, value.Num(3)), qt.IsNil)
		v, err := rt.Var("p")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, v.String(), qt.Equals, "2")
	})
	t.Run("tag-names-natural-order", func(t *testing.T) {
		for _, n := range []string{"step10", "step2", "alpha"} {
			rt.DefineTag(n, nil)
		}
		qt.Check(t, rt.TagNames(), qt.DeepEquals, []string{"alpha", "step2", "step10"})
	})
}

func TestFork(t *testing.T) {
	var out bytes.Buffer
	rt := newTestRuntime(&out)
	qt.Assert(t, rt.SetVar("x", value.Num(1), false), qt.IsNil)
	doc := value.NewDocument(map[string]any{"k": int64(1)}, value.FormatJSON)
	qt.Assert(t, rt.SetVar("d", value.FromDoc(doc), false), qt.IsNil)

	f := rt.Fork()
	qt.Assert(t, f.SetVar("x", value.Num(99), false), qt.IsNil)
	qt.Assert(t, f.SetVar("y", value.Num(1), false), qt.IsNil)
	h, err := f.Handle("d")
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, h.Apply("set k 2"), qt.IsNil)
	f.DefineTag("t", nil)

	v, _ := rt.Var("x")
	qt.Check(t, v.String(), qt.Equals, "1")
	_, ok := rt.LookupVar("y")
	qt.Check(t, ok, qt.IsFalse)
	live, err := rt.Handle("d")
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, live.Data, qt.DeepEquals, map[string]any{"k": int64(1)})
	_, ok = rt.Tag("t")
	qt.Check(t, ok, qt.IsFalse)
}

func TestDispatch(t *testing.T) {
	var out bytes.Buffer
	rt := newTestRuntime(&out)
	t.Run("chain-threads-last", func(t *testing.T) {
		v, err := eval(t, rt, `[num@4]>[store@n]>[print]`)
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, v.String(), qt.Equals, "4")
		qt.Check(t, out.String(), qt.Equals, "4\n")
	})
	t.Run("namespace-wildcard", func(t *testing.T) {
		v, err := eval(t, rt, `[fx:anything]`)
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, v.String(), qt.Equals, "fx:anything")
	})
	t.Run("unknown-operation-suggests", func(t *testing.T) {
		_, err := eval(t, rt, "[num@1]\n  [prnt@x]")
		qt.Assert(t, serum.Code(err), qt.Equals, tsapi.ECodeUnknownOperation)
		qt.Check(t, tsapi.Detail(err, "suggestion"), qt.Equals, "print")
		qt.Check(t, tsapi.Detail(err, "line"), qt.Equals, "2")
		qt.Check(t, tsapi.Detail(err, "col"), qt.Equals, "3")
	})
	t.Run("unknown-operation-far-away", func(t *testing.T) {
		_, err := eval(t, rt, `[zzzzzzzz]`)
		qt.Assert(t, serum.Code(err), qt.Equals, tsapi.ECodeUnknownOperation)
		qt.Check(t, tsapi.Detail(err, "suggestion"), qt.Equals, "")
	})
	t.Run("tag-fallback-and-dynamic-scope", func(t *testing.T) {
		out.Reset()
		_, err := eval(t, rt, "[bump: [num@7]>[store@seen]]\n[num@1]>[store@seen]\n[bump]\n[call@bump]\n[print@seen]")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, out.String(), qt.Equals, "7\n")
	})
	t.Run("call-undefined", func(t *testing.T) {
		_, err := eval(t, rt, `[call@nothing]`)
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeUndefinedFunction)
	})
	t.Run("error-aborts-chain", func(t *testing.T) {
		out.Reset()
		_, err := eval(t, rt, `[print@a]>[nope]>[print@b]`)
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeUnknownOperation)
		qt.Check(t, out.String(), qt.Equals, "\n")
	})
	t.Run("break-stops-sequence", func(t *testing.T) {
		out.Reset()
		_, err := eval(t, rt, `[print@"one"] [break] [print@"two"]`)
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, out.String(), qt.Equals, "one\n")
		rt.ClearSignal()
	})
	t.Run("if-or-else", func(t *testing.T) {
		v, err := eval(t, rt, `[if@(1==0)]{[num@1]>[store@y]}[or@(1==1)]{[num@2]>[store@y]}`)
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, v.String(), qt.Equals, "2")
		y, _ := rt.Var("y")
		qt.Check(t, y.String(), qt.Equals, "2")

		v, err = eval(t, rt, `[if@(1==0)]{[num@1]}`)
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, v.IsUnit(), qt.IsTrue)
		qt.Check(t, rt.Last().IsUnit(), qt.IsTrue)
	})
}

func TestSuggest(t *testing.T) {
	cands := []string{"print", "store", "store:rigid", "loop", "log"}
	qt.Check(t, Suggest("prnit", cands), qt.Equals, "print")
	qt.Check(t, Suggest("stor", cands), qt.Equals, "store")
	qt.Check(t, Suggest("lop", cands), qt.Equals, "log")
	qt.Check(t, Suggest("Loop", cands), qt.Equals, "loop")
	qt.Check(t, Suggest("completely", cands), qt.Equals, "")
}

func TestTasks(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	rt := newTestRuntime(&out)
	prog, err := parser.Parse(`[num@5]>[store@inner]`)
	qt.Assert(t, err, qt.IsNil)

	qt.Assert(t, rt.SpawnAsync("job", prog.Root.Nodes), qt.IsNil)
	qt.Check(t, serum.Code(rt.SpawnAsync("job", prog.Root.Nodes)), qt.Equals, tsapi.ECodeAsyncDuplicate)
	qt.Check(t, rt.Tasks().Pending(), qt.DeepEquals, []string{"job"})

	v, err := rt.Tasks().Await(ctx, "job")
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, v.String(), qt.Equals, "5")
	_, ok := rt.LookupVar("inner")
	qt.Check(t, ok, qt.IsFalse)

	_, err = rt.Tasks().Await(ctx, "job")
	qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeAsyncUnknown)
	rt.Wait()
}

func TestRunSource(t *testing.T) {
	dir := t.TempDir()
	qt.Assert(t, os.WriteFile(filepath.Join(dir, sandbox.MarkerFilename), nil, 0o644), qt.IsNil)
	sub := filepath.Join(dir, "scripts")
	qt.Assert(t, os.Mkdir(sub, 0o755), qt.IsNil)

	var out bytes.Buffer
	v, rt, err := RunSource(context.Background(), `[num@3]>[store@x]`, filepath.Join(sub, "main.tgsk"),
		Options{Registry: testRegistry(), Stdout: &out}, config.Env{config.EnvMaxRunDepth: "4"})
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, v.String(), qt.Equals, "3")
	qt.Check(t, rt.Cwd(), qt.Equals, "/scripts")
	qt.Check(t, rt.ScriptPath(), qt.Equals, "/scripts/main.tgsk")
	qt.Check(t, rt.Config().Run.MaxDepth, qt.Equals, 4)

	t.Run("parse-errors-run-nothing", func(t *testing.T) {
		out.Reset()
		_, _, err := RunSource(context.Background(), "[print@x]\n[oops", filepath.Join(sub, "bad.tgsk"),
			Options{Registry: testRegistry(), Stdout: &out}, nil)
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeParse)
		qt.Check(t, out.String(), qt.Equals, "")
	})
	t.Run("run-depth", func(t *testing.T) {
		self := filepath.Join(dir, "self.tgsk")
		qt.Assert(t, os.WriteFile(self, []byte("[num@1]"), 0o644), qt.IsNil)
		rt.config.Run.MaxDepth = 1
		_, err := rt.RunNested(self)
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, rt.RunDepth(), qt.Equals, 0)
		qt.Check(t, rt.Cwd(), qt.Equals, "/scripts")

		rt.runDepth = 1
		_, err = rt.RunNested(self)
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeRunDepthExceeded)
		qt.Check(t, tsapi.Detail(err, "path"), qt.Equals, "/self.tgsk")
		rt.runDepth = 0
	})
}
