package value

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/ipfs/go-cid"
	_ "github.com/ipld/go-ipld-prime/codec/dagcbor"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/multiformats/go-multihash"

	"github.com/tagspeak/tagspeak/tsapi"
)

// Document is a structured value loaded from (or destined for) a file inside the sandbox.
type Document struct {
	Data    any    // tree of map[string]any, []any, string, int64, float64, bool, nil
	Path    string // host path; empty for detached documents
	Format  Format
	ModTime time.Time // as observed at load or last save
	Root    string    // sandbox root the document was loaded under

	// lastJSON is the canonical snapshot at load or last save.
	lastJSON []byte
}

// NewDocument wraps a tree that has no backing file.
func NewDocument(data any, format Format) *Document {
	return &Document{Data: data, Format: format}
}

// LoadDocument reads and decodes the file at path (already resolved by the sandbox).
//
// Errors:
//
//   - tagspeak-error-io -- if the file cannot be read.
//   - tagspeak-error-format-unsupported -- if the extension is not a known format.
//   - tagspeak-error-serialization -- if the content does not parse.
func LoadDocument(path string, root string) (*Document, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, tsapi.ErrorIo("loading document", path, err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, tsapi.ErrorIo("loading document", path, err)
	}
	tree, err := Decode(format, raw)
	if err != nil {
		return nil, err
	}
	snap, err := canonicalJSON(tree)
	if err != nil {
		return nil, err
	}
	return &Document{
		Data:     tree,
		Path:     path,
		Format:   format,
		ModTime:  fi.ModTime(),
		Root:     root,
		lastJSON: snap,
	}, nil
}

// Clone deep-copies the tree; metadata and snapshot are carried over.
func (d *Document) Clone() *Document {
	c := *d
	c.Data = cloneTree(d.Data)
	return &c
}

// Encode serializes the tree in the given format.
//
// Errors:
//
//   - tagspeak-error-serialization --
//   - tagspeak-error-format-unsupported --
func (d *Document) Encode(format Format) ([]byte, error) {
	return Encode(format, d.Data)
}

// Dirty reports whether the tree differs from the snapshot taken at load or last save.
func (d *Document) Dirty() bool {
	now, err := canonicalJSON(d.Data)
	if err != nil {
		return true
	}
	return !bytes.Equal(now, d.lastJSON)
}

// Save writes the document to path, or to its own path when path is empty.
// It reports false without touching the disk when saving in place would change nothing.
//
// Errors:
//
//   - tagspeak-error-invalid -- if there is nowhere to save to.
//   - tagspeak-error-document-conflict -- if the file changed on disk since it was loaded or saved.
//   - tagspeak-error-io -- if writing fails.
//   - tagspeak-error-serialization --
//   - tagspeak-error-format-unsupported --
func (d *Document) Save(path string) (bool, error) {
	if path == "" {
		path = d.Path
	}
	if path == "" {
		return false, tsapi.ErrorInvalid("document has no file to save to; use save(path)")
	}
	inPlace := path == d.Path
	format := d.Format
	if !inPlace {
		var err error
		if format, err = FormatForPath(path); err != nil {
			return false, err
		}
	}
	snap, err := canonicalJSON(d.Data)
	if err != nil {
		return false, err
	}
	if inPlace {
		if bytes.Equal(snap, d.lastJSON) {
			return false, nil
		}
		if err := d.checkConflict(); err != nil {
			return false, err
		}
	}
	out, err := encodeFile(format, d.Data)
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return false, tsapi.ErrorIo("saving document", path, err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return false, tsapi.ErrorIo("saving document", path, err)
	}
	d.Path, d.Format, d.ModTime, d.lastJSON = path, format, fi.ModTime(), snap
	return true, nil
}

func (d *Document) checkConflict() error {
	fi, err := os.Stat(d.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return tsapi.ErrorIo("saving document", d.Path, err)
	case fi.ModTime().Equal(d.ModTime):
		return nil
	}
	raw, err := os.ReadFile(d.Path)
	if err != nil {
		return tsapi.ErrorIo("saving document", d.Path, err)
	}
	tree, err := Decode(d.Format, raw)
	if err != nil {
		return tsapi.ErrorDocumentConflict(d.Path)
	}
	disk, err := canonicalJSON(tree)
	if err != nil || !bytes.Equal(disk, d.lastJSON) {
		return tsapi.ErrorDocumentConflict(d.Path)
	}
	return nil
}

// ContentID hashes the tree as dag-cbor with sha2-256 and returns the CIDv1 string.
//
// Errors:
//
//   - tagspeak-error-serialization --
func (d *Document) ContentID() (string, error) {
	n, err := toNode(d.Data)
	if err != nil {
		return "", err
	}
	lsys := cidlink.DefaultLinkSystem()
	lnk, err := lsys.ComputeLink(cidlink.LinkPrototype{Prefix: cid.Prefix{
		Version:  1,
		Codec:    cid.DagCBOR,
		MhType:   multihash.SHA2_256,
		MhLength: 32,
	}}, n)
	if err != nil {
		return "", tsapi.ErrorSerialization("computing content id", err)
	}
	return lnk.String(), nil
}

// Get looks up an edit path (see ParsePath) in the tree.
//
// Errors:
//
//   - tagspeak-error-edit-path -- if the path is malformed.
func (d *Document) Get(path string) (any, bool, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, false, err
	}
	cur := d.Data
	for _, s := range segs {
		switch node := cur.(type) {
		case map[string]any:
			if s.IsIndex {
				return nil, false, nil
			}
			v, ok := node[s.Key]
			if !ok {
				return nil, false, nil
			}
			cur = v
		case []any:
			if !s.IsIndex || s.Index >= len(node) {
				return nil, false, nil
			}
			cur = node[s.Index]
		default:
			return nil, false, nil
		}
	}
	return cur, true, nil
}

// ToValue turns a tree node into a Value; objects and lists become detached documents.
func ToValue(v any) Value {
	switch x := v.(type) {
	case nil:
		return Unit
	case bool:
		return Bool(x)
	case int64:
		return Num(float64(x))
	case float64:
		return Num(x)
	case string:
		return Str(x)
	}
	return FromDoc(NewDocument(cloneTree(v), FormatJSON))
}

// FromValue turns a Value into a tree node.
func FromValue(v Value) any {
	switch v.Kind() {
	case KindBool:
		return v.b
	case KindNum:
		return v.n
	case KindStr:
		return v.s
	case KindDoc:
		if v.doc != nil {
			return cloneTree(v.doc.Data)
		}
	}
	return nil
}

func cloneTree(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneTree(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneTree(e)
		}
		return out
	}
	return v
}
