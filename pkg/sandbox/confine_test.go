package sandbox

import (
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/serum-errors/go-serum"

	"github.com/tagspeak/tagspeak/tsapi"
)

func TestConfine(t *testing.T) {
	for _, tc := range []struct {
		cwd     string
		request string
		want    string
		ok      bool
	}{
		{"/", "a.txt", "/a.txt", true},
		{"/", "./a.txt", "/a.txt", true},
		{"/", "", "/", true},
		{"/", ".", "/", true},
		{"/", "/", "/", true},
		{"/sub", "a.txt", "/sub/a.txt", true},
		{"/sub", "/a.txt", "/a.txt", true},
		{"/sub", "../a.txt", "/a.txt", true},
		{"/sub", "..", "/", true},
		{"/sub", "../..", "", false},
		{"/", "..", "", false},
		{"/", "../x", "", false},
		{"/", "/../x", "", false},
		{"/", "a/../../x", "", false},
		{"/", "../a/..", "", false},
		{"/", "a//b///c", "/a/b/c", true},
		{"/", `a\b\..\c`, "/a/c", true},
		{"/", `..\x`, "", false},
		{"/", `\x`, "/x", true},
		{"/a/b", "../../c/./d/", "/c/d", true},
		{"/a/b", "../../../c", "", false},
		{"/", "...", "/...", true},
		{"/", "..foo", "/..foo", true},
	} {
		got, ok := Confine(tc.cwd, tc.request)
		qt.Check(t, ok, qt.Equals, tc.ok, qt.Commentf("cwd %q request %q", tc.cwd, tc.request))
		qt.Check(t, got, qt.Equals, tc.want, qt.Commentf("cwd %q request %q", tc.cwd, tc.request))
	}
}

func TestResolve(t *testing.T) {
	root := filepath.FromSlash("/srv/proj")
	t.Run("inside", func(t *testing.T) {
		got, err := Resolve(root, "data/a.json")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, got, qt.Equals, filepath.FromSlash("/srv/proj/data/a.json"))

		got, err = Resolve(root, "/")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, got, qt.Equals, root)
	})
	t.Run("parent-always-fails", func(t *testing.T) {
		_, err := Resolve(root, "../x")
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeSandboxBoundary)
	})
	t.Run("sibling-with-common-prefix", func(t *testing.T) {
		_, err := Resolve(root, "../proj-evil/x")
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeSandboxBoundary)
	})
	t.Run("from-cwd", func(t *testing.T) {
		got, err := ResolveFrom(root, "/sub", "../b")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, got, qt.Equals, filepath.FromSlash("/srv/proj/b"))
	})
	t.Run("no-root", func(t *testing.T) {
		_, err := Resolve("", "a")
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeSandboxRequired)
	})
}

// Every resolution either lands under the root or fails with a boundary error.
func TestResolveNeverEscapes(t *testing.T) {
	root := filepath.FromSlash("/srv/proj")
	parts := []string{"a", "b", "..", ".", "", "/", `\`, "proj", "...", "x.tgsk"}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 5000; i++ {
		n := rng.Intn(7)
		var sb strings.Builder
		for j := 0; j < n; j++ {
			if j > 0 {
				sb.WriteByte('/')
			}
			sb.WriteString(parts[rng.Intn(len(parts))])
		}
		req := sb.String()
		cwd, _ := Confine("/", parts[rng.Intn(3)])
		got, err := ResolveFrom(root, cwd, req)
		if err != nil {
			qt.Assert(t, serum.Code(err), qt.Equals, tsapi.ECodeSandboxBoundary, qt.Commentf("request %q", req))
			continue
		}
		qt.Assert(t, got == root || strings.HasPrefix(got, root+string(filepath.Separator)), qt.IsTrue, qt.Commentf("request %q resolved to %q", req, got))
	}
}

func TestVirtual(t *testing.T) {
	root := filepath.FromSlash("/srv/proj")
	v, ok := Virtual(root, filepath.FromSlash("/srv/proj/a/b"))
	qt.Check(t, ok, qt.IsTrue)
	qt.Check(t, v, qt.Equals, "/a/b")
	v, ok = Virtual(root, root)
	qt.Check(t, ok, qt.IsTrue)
	qt.Check(t, v, qt.Equals, "/")
	_, ok = Virtual(root, filepath.FromSlash("/srv/project"))
	qt.Check(t, ok, qt.IsFalse)
}
