package ops

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/serum-errors/go-serum"

	"github.com/tagspeak/tagspeak/pkg/config"
	"github.com/tagspeak/tagspeak/pkg/interp"
	"github.com/tagspeak/tagspeak/pkg/sandbox"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

type fixture struct {
	rt  *interp.Runtime
	out *bytes.Buffer
}

type fixtureOpt func(*interp.Options)

func withRoot(root string) fixtureOpt {
	return func(o *interp.Options) { o.Root = root }
}

func withConfig(cfg config.Config) fixtureOpt {
	return func(o *interp.Options) { o.Config = cfg }
}

func withStdin(s string) fixtureOpt {
	return func(o *interp.Options) { o.Stdin = strings.NewReader(s) }
}

func withPrompter(p sandbox.Prompter) fixtureOpt {
	return func(o *interp.Options) {
		o.Prompter = p
		o.Interactive = true
	}
}

func newFixture(opts ...fixtureOpt) *fixture {
	out := &bytes.Buffer{}
	o := interp.Options{
		Registry: NewRegistry(),
		Config:   config.Default(),
		Stdout:   out,
		Stdin:    strings.NewReader(""),
		Allow:    &sandbox.AllowSet{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &fixture{rt: interp.New(context.Background(), o), out: out}
}

// run evaluates src to completion the way the runner does, timers included.
func (f *fixture) run(src string) (value.Value, error) {
	return f.rt.Finish(f.rt.EvalSource(src))
}

func (f *fixture) mustRun(t *testing.T, src string) value.Value {
	t.Helper()
	v, err := f.run(src)
	qt.Assert(t, err, qt.IsNil, qt.Commentf("script: %s", src))
	return v
}

func (f *fixture) varString(t *testing.T, name string) string {
	t.Helper()
	v, ok := f.rt.LookupVar(name)
	qt.Assert(t, ok, qt.IsTrue, qt.Commentf("variable %q is not set", name))
	return v.String()
}

// newRoot makes a sandbox root holding the given files.
func newRoot(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	files[sandbox.MarkerFilename] = ""
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		qt.Assert(t, os.MkdirAll(filepath.Dir(p), 0o755), qt.IsNil)
		qt.Assert(t, os.WriteFile(p, []byte(content), 0o644), qt.IsNil)
	}
	return root
}

func TestScenarios(t *testing.T) {
	t.Run("counter", func(t *testing.T) {
		f := newFixture()
		f.mustRun(t, "[int@4]>[store@counter]>[inc@counter]")
		qt.Check(t, f.varString(t, "counter"), qt.Equals, "5")
	})
	t.Run("if-or", func(t *testing.T) {
		f := newFixture()
		f.mustRun(t, "[if@(1==0)]{[math@1]>[store@y]}[or@(1==1)]{[math@2]>[store@y]}")
		qt.Check(t, f.varString(t, "y"), qt.Equals, "2")
	})
	t.Run("rand-range", func(t *testing.T) {
		f := newFixture()
		for i := 0; i < 200; i++ {
			v := f.mustRun(t, "[rand(1,3)]")
			qt.Assert(t, v.String(), qt.Matches, "[123]")
		}
	})
	t.Run("loop-count", func(t *testing.T) {
		f := newFixture()
		v := f.mustRun(t, "[int@0]>[store@n] [loop@3]{[inc@n]}")
		qt.Check(t, v.String(), qt.Equals, "3")
		qt.Check(t, f.varString(t, "n"), qt.Equals, "3")

		v = f.mustRun(t, "[loop@0]{[inc@n]}")
		qt.Check(t, v.IsUnit(), qt.IsTrue)
		qt.Check(t, f.varString(t, "n"), qt.Equals, "3")
	})
	t.Run("rigid", func(t *testing.T) {
		f := newFixture()
		f.mustRun(t, "[int@1]>[store@a] [int@2]>[store@a]")
		qt.Check(t, f.varString(t, "a"), qt.Equals, "2")

		f.mustRun(t, "[int@1]>[store:rigid@b]")
		_, err := f.run("[int@2]>[store:rigid@b]")
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeVariableExists)
		_, err = f.run("[int@2]>[store@b]")
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeVariableExists)
		qt.Check(t, f.varString(t, "b"), qt.Equals, "1")
	})
	t.Run("dynamic-scope", func(t *testing.T) {
		f := newFixture()
		f.mustRun(t, "[funct@twice]{[math@v*2]>[store@v]} [int@3]>[store@v] [call@twice] [call@twice]")
		qt.Check(t, f.varString(t, "v"), qt.Equals, "12")
	})
}

func TestValues(t *testing.T) {
	f := newFixture()
	for _, tc := range []struct {
		src  string
		want string
	}{
		{"[int@3.7]", "3"},
		{"[int@-3.7]", "-3"},
		{`[int@"12"]`, "12"},
		{`[num@"2.5"]`, "2.5"},
		{"[float@0.25]", "0.25"},
		{"[str@hello]", "hello"},
		{`[msg@"two words"]`, "two words"},
		{"[int@7]>[str]", "7"},
		{"[bool@true]", "true"},
		{"[bool@0]", "false"},
		{`[bool@"x"]`, "true"},
		{"[bool@(2 > 1)]", "true"},
		{"[int@4]>[store@x] [math@x*2+1]", "9"},
		{`[math@"x - 5"]`, "-1"},
		{"[math@3 > 2]", "true"},
		{"[math@math.sqrt(16)]", "4"},
		{"[math@7 // 2]", "3"},
		{`[str@ab]>[store@s] [math@s + "c"]`, "abc"},
		{"[int@5]>[note@ignored]", "5"},
	} {
		v, err := f.run(tc.src)
		qt.Assert(t, err, qt.IsNil, qt.Commentf("%s", tc.src))
		qt.Check(t, v.String(), qt.Equals, tc.want, qt.Commentf("%s", tc.src))
	}

	t.Run("errors", func(t *testing.T) {
		for _, tc := range []struct {
			src  string
			code string
		}{
			{"[inc@nothing]", tsapi.ECodeVariableMissing},
			{"[str@abc]>[store@s] [dec@s]", tsapi.ECodeNonNumeric},
			{"[int@abc]", tsapi.ECodeNonNumeric},
			{"[math@1 +]", tsapi.ECodeInvalid},
			{"[rand(a)]", tsapi.ECodeNonNumeric},
			{"[rand(1,2,3)]", tsapi.ECodeInvalid},
			{"[store]", tsapi.ECodeInvalid},
			{"[store(sticky)@x]", tsapi.ECodeInvalid},
		} {
			_, err := newFixture().run(tc.src)
			qt.Check(t, serum.Code(err), qt.Equals, tc.code, qt.Commentf("%s", tc.src))
		}
	})
	t.Run("rand-bounds", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			v := f.mustRun(t, "[rand(5,2)]")
			n, _ := v.TryNum()
			qt.Assert(t, n >= 2 && n <= 5, qt.IsTrue, qt.Commentf("got %v", n))
			v = f.mustRun(t, "[rand]")
			n, _ = v.TryNum()
			qt.Assert(t, n >= 0 && n < 1, qt.IsTrue, qt.Commentf("got %v", n))
		}
	})
	t.Run("rand-wide-bounds", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			v := f.mustRun(t, "[rand(0,9223372036854775807)]")
			n, _ := v.TryNum()
			qt.Assert(t, n >= 0 && n <= float64(1<<63), qt.IsTrue, qt.Commentf("got %v", n))
			v = f.mustRun(t, "[rand(-9223372036854775808,9223372036854775807)]")
			n, _ = v.TryNum()
			qt.Assert(t, n >= -float64(1<<63) && n <= float64(1<<63), qt.IsTrue, qt.Commentf("got %v", n))
		}
	})
}

func TestStoreKinds(t *testing.T) {
	f := newFixture()
	f.mustRun(t, "[int@1]>[store:fluid@a] [int@2]>[store(rigid)@b] [int@3]>[store:rigid@c]")
	v := f.mustRun(t, "[rigid]")
	qt.Check(t, v.String(), qt.Equals, "b,c")

	t.Run("context", func(t *testing.T) {
		f := newFixture()
		f.mustRun(t, "[int@1]>[store@x] "+
			"[str@big]>[store:context(x > 5)@size] "+
			"[str@small]>[store(context, x <= 5)@size]")
		qt.Check(t, f.mustRun(t, "[var@size]").String(), qt.Equals, "small")
		qt.Check(t, f.mustRun(t, "[int@9]>[store@x] [var@size]").String(), qt.Equals, "big")
		qt.Check(t, f.mustRun(t, "[str@nan]>[store@x] [var@size]").IsUnit(), qt.IsTrue)
	})
	t.Run("context-on-its-own-name", func(t *testing.T) {
		f := newFixture()
		v := f.mustRun(t, "[int@5]>[store@x]>[int@9]>[store:context(x > 1)@x]>[var@x]")
		qt.Check(t, v.String(), qt.Equals, "9")
	})
}

func TestOutput(t *testing.T) {
	f := newFixture()
	f.mustRun(t, `[print@"hi"] [int@5]>[print] [str@v]>[store@w] [print@w] [log@w]`)
	qt.Check(t, f.out.String(), qt.Equals, "hi\n5\nv\nv\n")

	f.out.Reset()
	f.mustRun(t, `[log(json)@"hello"]`)
	qt.Check(t, f.out.String(), qt.Equals, `{"value":"hello"}`+"\n")

	f.out.Reset()
	f.mustRun(t, `[log(yaml)@"hello"]`)
	qt.Check(t, f.out.String(), qt.Equals, "value: hello\n")

	_, err := f.run(`[log(toml)@"x"]`)
	qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeFormatUnsupported)
}

func TestReflection(t *testing.T) {
	f := newFixture()
	v := f.mustRun(t, "[b10: [int@1]]\n[b2: [int@2]]\n[tags]")
	qt.Check(t, v.String(), qt.Equals, "b2,b10")

	v = f.mustRun(t, "[str@x]>[store@b] [bool@true]>[store@c] [vars]")
	qt.Check(t, v.String(), qt.Contains, `"b":"x"`)
	qt.Check(t, v.String(), qt.Contains, `"c":true`)
}

func TestFlow(t *testing.T) {
	t.Run("loop-break", func(t *testing.T) {
		f := newFixture()
		f.mustRun(t, "[int@0]>[store@i] [loop@10]{[inc@i] [if@(i == 3)]{[break]}} [int@1]>[store@after]")
		qt.Check(t, f.varString(t, "i"), qt.Equals, "3")
		qt.Check(t, f.varString(t, "after"), qt.Equals, "1")
	})
	t.Run("loop-tag", func(t *testing.T) {
		f := newFixture()
		f.mustRun(t, "[step: [inc@i]]\n[int@0]>[store@i] [loop(step)@2] [int@3]>[store@n] [loop@n]{[call@step]}")
		qt.Check(t, f.varString(t, "i"), qt.Equals, "5")
		_, err := f.run("[loop(missing)@2]")
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeUndefinedFunction)
		_, err = f.run("[loop@2]")
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeInvalid)
	})
	t.Run("loop-count-coercion", func(t *testing.T) {
		f := newFixture()
		f.mustRun(t, `[int@0]>[store@i] [loop@"2.9"]{[inc@i]} [loop@-4]{[inc@i]}`)
		qt.Check(t, f.varString(t, "i"), qt.Equals, "2")
	})
	t.Run("funct-forms", func(t *testing.T) {
		f := newFixture()
		v := f.mustRun(t, "[int@7]>[funct:bump]{[inc@v]} ")
		qt.Check(t, v.String(), qt.Equals, "7")
		f.mustRun(t, "[int@0]>[store@v] [bump] [call@bump]")
		qt.Check(t, f.varString(t, "v"), qt.Equals, "2")
		_, err := f.run("[call@nowhere]")
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeUndefinedFunction)
	})
	t.Run("interrupt", func(t *testing.T) {
		f := newFixture()
		v := f.mustRun(t, "[int@1]>[store@a] [loop@5]{[interrupt@42]} [int@2]>[store@a]")
		qt.Check(t, v.String(), qt.Equals, "42")
		qt.Check(t, f.varString(t, "a"), qt.Equals, "1")
	})
	t.Run("async-isolation", func(t *testing.T) {
		f := newFixture()
		f.mustRun(t, "[int@1]>[store@x] [async@job]{[int@99]>[store@x] [math@x+1]} [await@job]>[store@r]")
		qt.Check(t, f.varString(t, "r"), qt.Equals, "100")
		qt.Check(t, f.varString(t, "x"), qt.Equals, "1")
	})
	t.Run("async-forms", func(t *testing.T) {
		f := newFixture()
		v := f.mustRun(t, "[async]{[int@5]}>[store@id] [await@id]")
		qt.Check(t, v.String(), qt.Equals, "5")
		qt.Check(t, f.varString(t, "id"), qt.HasLen, 36)

		v = f.mustRun(t, "[work: [int@7]]\n[async@work] [await@work]")
		qt.Check(t, v.String(), qt.Equals, "7")

		v = f.mustRun(t, "[async@early]{[int@1] [interrupt@8] [int@2]} [await@early]")
		qt.Check(t, v.String(), qt.Equals, "8")

		v = f.mustRun(t, "[int@1]>[store@job]>[async@job]{[int@2]}>[await@job]")
		qt.Check(t, v.String(), qt.Equals, "2")
		v = f.mustRun(t, "[async]{[int@6]}>[await]")
		qt.Check(t, v.String(), qt.Equals, "6")

		_, err := f.run("[await@work]")
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeAsyncUnknown)
		_, err = f.run("[async@nosuchtag]")
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeUndefinedFunction)
		_, err = f.run("[async@bad]{[inc@missing]} [await@bad]")
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeVariableMissing)
	})
	t.Run("concurrent-output", func(t *testing.T) {
		f := newFixture()
		var src strings.Builder
		for i := 0; i < 20; i++ {
			fmt.Fprintf(&src, "[async@p%d]{[print@\"line\"]}\n", i)
		}
		for i := 0; i < 20; i++ {
			fmt.Fprintf(&src, "[await@p%d]\n", i)
		}
		f.mustRun(t, src.String())
		qt.Check(t, f.out.String(), qt.Equals, strings.Repeat("line\n", 20))
	})
	t.Run("deadman", func(t *testing.T) {
		f := newFixture()
		v := f.mustRun(t, `[deadman@"careful"] [disarm]`)
		qt.Check(t, v.String(), qt.Equals, "careful")
		v = f.mustRun(t, "[disarm]")
		qt.Check(t, v.IsUnit(), qt.IsTrue)
	})
	t.Run("timers", func(t *testing.T) {
		f := newFixture()
		f.mustRun(t, `[timeout@5]{[print@"tick"]}`)
		qt.Check(t, f.out.String(), qt.Equals, "tick\n")

		f.out.Reset()
		f.mustRun(t, `[interval(3)@1]{[print@"x"]} `)
		qt.Check(t, f.out.String(), qt.Equals, "x\nx\nx\n")

		f.out.Reset()
		f.mustRun(t, `[int@0]>[store@n] [interval@1]{[inc@n]>[print] [if@(n >= 3)]{[break]}}`)
		qt.Check(t, f.out.String(), qt.Equals, "1\n2\n3\n")
		qt.Check(t, f.varString(t, "n"), qt.Equals, "0")

		f.out.Reset()
		f.mustRun(t, `[interval(0)@1]{[print@"never"]}`)
		qt.Check(t, f.out.String(), qt.Equals, "")
	})
}

func TestUnknownOperation(t *testing.T) {
	_, err := newFixture().run("[int@1] [prnt@x]")
	qt.Assert(t, serum.Code(err), qt.Equals, tsapi.ECodeUnknownOperation)
	qt.Check(t, tsapi.Detail(err, "suggestion"), qt.Equals, "print")
}

func TestCatalog(t *testing.T) {
	r := NewRegistry()
	for _, e := range r.Entries() {
		qt.Check(t, e.Usage, qt.Not(qt.Equals), "", qt.Commentf("%s has no usage", e.Token()))
		qt.Check(t, e.Summary, qt.Not(qt.Equals), "", qt.Commentf("%s has no summary", e.Token()))
	}
	for _, tok := range []string{"store:rigid", "exec", "http", "run", "repl", "yellow", "confirm", "doc"} {
		qt.Check(t, r.Tokens(), qt.Contains, tok)
	}
}
