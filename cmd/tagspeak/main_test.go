package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	qt "github.com/frankban/quicktest"
	"github.com/serum-errors/go-serum"
	"github.com/warpfork/go-testmark"
)

func init() {
	color.NoColor = true
}

// inDir runs fn with the process working directory set to dir.
// Not safe for parallel tests.
func inDir(t *testing.T, dir string, fn func()) {
	t.Helper()
	pwd, err := os.Getwd()
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, os.Chdir(dir), qt.IsNil)
	defer os.Chdir(pwd)
	fn()
}

func runApp(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := makeApp(strings.NewReader(stdin), &stdout, &stderr).Run(append([]string{"tagspeak"}, args...))
	t.Logf("stderr:\n%s", stderr.String())
	return stdout.String(), stderr.String(), err
}

func TestCLIFixtures(t *testing.T) {
	t.Setenv("TAGSPEAK_NONINTERACTIVE", "1")
	doc, err := testmark.ReadFile("testdata/cli.md")
	if err != nil {
		t.Fatalf("spec file parse failed?!: %s", err)
	}
	doc.BuildDirIndex()
	for _, dir := range doc.DirEnt.ChildrenList {
		dir := dir
		t.Run(dir.Name, func(t *testing.T) {
			work := t.TempDir()
			if files := dir.Children["fs"]; files != nil {
				writeTree(t, work, "", files)
			}
			args := strings.Split(strings.TrimRight(string(dir.Children["args"].Hunk.Body), "\n"), "\n")

			var stdout, stderr string
			inDir(t, work, func() {
				stdout, stderr, err = runApp(t, "", args...)
			})

			if want := dir.Children["code"]; want != nil {
				qt.Assert(t, err, qt.IsNotNil)
				qt.Check(t, serum.Code(err), qt.Equals, strings.TrimSpace(string(want.Hunk.Body)))
			} else {
				qt.Assert(t, err, qt.IsNil)
			}
			qt.Check(t, strings.TrimRight(stdout, "\n"), qt.Equals, trimmedHunk(dir, "stdout"))
			if dir.Children["stderr"] != nil {
				qt.Check(t, strings.TrimRight(stderr, "\n"), qt.Equals, trimmedHunk(dir, "stderr"))
			}
		})
	}
}

func trimmedHunk(dir *testmark.DirEnt, name string) string {
	ent := dir.Children[name]
	if ent == nil || ent.Hunk == nil {
		return ""
	}
	return strings.TrimRight(string(ent.Hunk.Body), "\n")
}

func writeTree(t *testing.T, root, prefix string, dir *testmark.DirEnt) {
	for _, child := range dir.ChildrenList {
		rel := filepath.Join(prefix, child.Name)
		if child.Hunk != nil {
			path := filepath.Join(root, rel)
			qt.Assert(t, os.MkdirAll(filepath.Dir(path), 0o755), qt.IsNil)
			qt.Assert(t, os.WriteFile(path, child.Hunk.Body, 0o644), qt.IsNil)
		}
		writeTree(t, root, rel, child)
	}
}

func TestErrorOutput(t *testing.T) {
	t.Setenv("TAGSPEAK_NONINTERACTIVE", "1")
	work := t.TempDir()

	t.Run("box", func(t *testing.T) {
		inDir(t, work, func() {
			_, stderr, err := runApp(t, "", "eval", "[int@1]>[prnt]")
			qt.Assert(t, err, qt.IsNotNil)
			qt.Check(t, stderr, qt.Contains, "tagspeak-error-unknown-operation")
			qt.Check(t, stderr, qt.Contains, "1 | [int@1]>[prnt]")
			qt.Check(t, stderr, qt.Contains, "did you mean [print]?")
			qt.Check(t, stderr, qt.Not(qt.Contains), "\x1b[")
		})
	})
	t.Run("json", func(t *testing.T) {
		inDir(t, work, func() {
			stdout, stderr, err := runApp(t, "", "--json", "eval", "[int@1]>[prnt]")
			qt.Assert(t, err, qt.IsNotNil)
			qt.Check(t, stdout, qt.Equals, "")
			qt.Check(t, strings.HasPrefix(stderr, "{"), qt.IsTrue)
			qt.Check(t, stderr, qt.Contains, `"tagspeak-error-unknown-operation"`)
		})
	})
	t.Run("nothing-to-run", func(t *testing.T) {
		inDir(t, work, func() {
			_, stderr, err := runApp(t, "", "run")
			qt.Check(t, err, qt.IsNotNil)
			qt.Check(t, stderr, qt.Contains, "no main.tgsk")
		})
	})
}

func TestTraceFile(t *testing.T) {
	t.Setenv("TAGSPEAK_NONINTERACTIVE", "1")
	work := t.TempDir()
	spans := filepath.Join(work, "spans.json")
	inDir(t, work, func() {
		stdout, _, err := runApp(t, "", "--trace.file", spans, "eval", `[print@"hi"]`)
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, stdout, qt.Equals, "hi\n")
	})
	body, err := os.ReadFile(spans)
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, string(body), qt.Contains, `"tagspeak eval"`)
	qt.Check(t, string(body), qt.Contains, `"packet print"`)
}

func TestOpsCommand(t *testing.T) {
	t.Run("markdown", func(t *testing.T) {
		stdout, _, err := runApp(t, "", "ops", "--markdown")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, strings.HasPrefix(stdout, "# TagSpeak operations"), qt.IsTrue)
		qt.Check(t, stdout, qt.Contains, "| `[loop@3]{...} [loop(tag)@n]` |")
		qt.Check(t, stdout, qt.Contains, "| `[print] [print@x]` |")
	})
	t.Run("rendered", func(t *testing.T) {
		stdout, _, err := runApp(t, "", "ops", "--style", "ascii")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, stdout, qt.Contains, "TagSpeak operations")
		qt.Check(t, stdout, qt.Contains, "interrupt")
	})
}

func TestReplCommand(t *testing.T) {
	t.Setenv("TAGSPEAK_NONINTERACTIVE", "1")
	inDir(t, t.TempDir(), func() {
		stdout, _, err := runApp(t, "[int@4]>[store@q]\n[var@q]>[inc@q]\nquit\n", "repl")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, stdout, qt.Contains, "tgsk> ")
		qt.Check(t, stdout, qt.Contains, "5")
	})
}
