package value

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/serum-errors/go-serum"

	"github.com/tagspeak/tagspeak/tsapi"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	qt.Assert(t, os.WriteFile(p, []byte(body), 0o644), qt.IsNil)
	return p
}

func TestDocumentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "data.json", `{"name":"x","nested":{"a":1,"b":[1,2]},"keep":true,"deep":{"k.x":{"z":0}}}`)

	doc, err := LoadDocument(p, dir)
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, doc.Dirty(), qt.IsFalse)

	err = doc.Apply(`set nested.a 2; push nested.b 3; del name; merge {"extra": {"k": "v"}}; set deep["k.x"].z "hi"`)
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, doc.Dirty(), qt.IsTrue)

	wrote, err := doc.Save("")
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, wrote, qt.IsTrue)

	again, err := LoadDocument(p, dir)
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, again.Data, qt.DeepEquals, map[string]any{
		"nested": map[string]any{"a": int64(2), "b": []any{int64(1), int64(2), int64(3)}},
		"keep":   true,
		"deep":   map[string]any{"k.x": map[string]any{"z": "hi"}},
		"extra":  map[string]any{"k": "v"},
	})

	t.Run("second-save-is-a-no-op", func(t *testing.T) {
		wrote, err := doc.Save("")
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, wrote, qt.IsFalse)
	})
	t.Run("save-as-switches-format", func(t *testing.T) {
		out := filepath.Join(dir, "copy.yaml")
		wrote, err := doc.Save(out)
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, wrote, qt.IsTrue)
		qt.Check(t, doc.Format, qt.Equals, FormatYAML)
		reread, err := LoadDocument(out, dir)
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, reread.Data, qt.DeepEquals, again.Data)
	})
}

func TestDocumentConflict(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "data.json", `{"a":1}`)
	doc, err := LoadDocument(p, dir)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, doc.Apply("set a 2"), qt.IsNil)

	qt.Assert(t, os.WriteFile(p, []byte(`{"a":99}`), 0o644), qt.IsNil)
	later := time.Now().Add(time.Hour)
	qt.Assert(t, os.Chtimes(p, later, later), qt.IsNil)

	_, err = doc.Save("")
	qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeDocumentConflict)
}

func TestFormats(t *testing.T) {
	dir := t.TempDir()
	t.Run("yaml", func(t *testing.T) {
		doc, err := LoadDocument(writeFile(t, dir, "a.yaml", "a: 1\nb: [x, y]\n"), dir)
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, doc.Data, qt.DeepEquals, map[string]any{"a": int64(1), "b": []any{"x", "y"}})
	})
	t.Run("jsonc", func(t *testing.T) {
		doc, err := LoadDocument(writeFile(t, dir, "a.jsonc", "{\n  // comment\n  \"a\": 1,\n}\n"), dir)
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, doc.Data, qt.DeepEquals, map[string]any{"a": int64(1)})
	})
	t.Run("cbor", func(t *testing.T) {
		tree := map[string]any{"a": int64(1), "b": "x"}
		b, err := Encode(FormatCBOR, tree)
		qt.Assert(t, err, qt.IsNil)
		back, err := Decode(FormatCBOR, b)
		qt.Assert(t, err, qt.IsNil)
		qt.Check(t, back, qt.DeepEquals, tree)
	})
	t.Run("unsupported-extension", func(t *testing.T) {
		_, err := LoadDocument(writeFile(t, dir, "a.toml", "a = 1"), dir)
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeFormatUnsupported)
	})
	t.Run("bad-json", func(t *testing.T) {
		_, err := LoadDocument(writeFile(t, dir, "bad.json", "{"), dir)
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeSerialization)
	})
}

func TestParsePath(t *testing.T) {
	segs, err := ParsePath(`a.b[0]["k.x"]`)
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, segs, qt.DeepEquals, []Segment{
		{Key: "a"},
		{Key: "b"},
		{Index: 0, IsIndex: true},
		{Key: "k.x"},
	})

	segs, err = ParsePath("")
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, segs, qt.HasLen, 0)

	for _, bad := range []string{"a..b", "a.", "a[x]", "a[1", `a["k]`} {
		_, err := ParsePath(bad)
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeEditPath, qt.Commentf("path %q", bad))
	}
}

func TestApplyErrorsLeaveDocumentUntouched(t *testing.T) {
	doc := NewDocument(map[string]any{"a": []any{int64(1)}}, FormatJSON)
	for _, script := range []string{
		"set a[5] 1",
		"frob a 1",
		"set b 1; del nope",
		"push b.c[0] 1",
		"merge a {}",
	} {
		err := doc.Apply(script)
		qt.Check(t, serum.Code(err), qt.Equals, tsapi.ECodeEditPath, qt.Commentf("script %q", script))
	}
	qt.Check(t, doc.Data, qt.DeepEquals, map[string]any{"a": []any{int64(1)}})
}

func TestContentID(t *testing.T) {
	a := NewDocument(map[string]any{"x": int64(1), "y": "z"}, FormatJSON)
	b := NewDocument(map[string]any{"y": "z", "x": 1.0}, FormatYAML)
	ca, err := a.ContentID()
	qt.Assert(t, err, qt.IsNil)
	cb, err := b.ContentID()
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, ca, qt.Equals, cb)
	qt.Check(t, strings.HasPrefix(ca, "bafyrei"), qt.IsTrue)
}
