package ops

import (
	"encoding/hex"

	"github.com/tagspeak/tagspeak/pkg/interp"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

func registerDocuments(r *interp.Registry) {
	for _, e := range []interp.Entry{
		{Op: "save", Usage: `[save@cfg] [save("out.yaml")@cfg]`, Summary: "Write a document back, or to a new file; false when nothing changed.", Handler: opSave},
		{Op: "query", Usage: `[query(cfg)@"a.b[0]"]`, Summary: "Read a path out of a document.", Handler: opQuery},
		{Op: "modify", Usage: `[modify(cfg)@"set a.b 1; del c"]`, Summary: "Edit a document in place: set, del, push, merge.", Handler: opModify},
		{Op: "doc", Usage: "[doc(json)@cfg] [doc(yaml)@cfg] [doc(cbor)@cfg] [doc(cid)@cfg]", Summary: "Render a document, or its content id.", Handler: opDoc},
	} {
		r.Register(e)
	}
}

// handleFromMode reads the document handle named by the packet mode.
func handleFromMode(rt *interp.Runtime, p *tsapi.Packet) (*value.Document, error) {
	args, err := modeArgs(p)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 || args[0] == "" {
		return nil, tsapi.ErrorInvalid(p.Op+" needs a document handle, as in ["+p.Op+"(name)@...]", [2]string{"packet", p.String()})
	}
	return rt.Handle(args[0])
}

func opSave(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	name, err := interp.ArgName(p)
	if err != nil {
		return value.Unit, err
	}
	doc, err := rt.Handle(name)
	if err != nil {
		return value.Unit, err
	}
	if err := rt.RequireRoot("save"); err != nil {
		return value.Unit, err
	}
	target := doc.Path
	if p.Mode != nil {
		args, err := modeArgs(p)
		if err != nil {
			return value.Unit, err
		}
		if len(args) > 0 && args[0] != "" {
			if target, err = rt.Resolve("save", args[0]); err != nil {
				return value.Unit, err
			}
		}
	}
	if target == "" {
		return value.Unit, tsapi.ErrorInvalid("document "+name+" has no file; use [save(\"path\")@"+name+"]")
	}
	wrote, err := doc.Save(target)
	if err != nil {
		return value.Unit, err
	}
	return value.Bool(wrote), nil
}

func opQuery(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	doc, err := handleFromMode(rt, p)
	if err != nil {
		return value.Unit, err
	}
	v, ok, err := doc.Get(interp.ArgText(p))
	if err != nil || !ok {
		return value.Unit, err
	}
	return value.ToValue(v), nil
}

func opModify(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	doc, err := handleFromMode(rt, p)
	if err != nil {
		return value.Unit, err
	}
	if err := doc.Apply(interp.ArgText(p)); err != nil {
		return value.Unit, err
	}
	return value.FromDoc(doc.Clone()), nil
}

// opDoc renders a document; cbor comes out hex encoded so it stays printable.
func opDoc(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	name, err := interp.ArgName(p)
	if err != nil {
		return value.Unit, err
	}
	doc, err := rt.Handle(name)
	if err != nil {
		return value.Unit, err
	}
	format := p.ModeText()
	if format == "cid" {
		id, err := doc.ContentID()
		if err != nil {
			return value.Unit, err
		}
		return value.Str(id), nil
	}
	if format == "" {
		format = string(value.FormatJSON)
	}
	f, err := value.ParseFormat(format)
	if err != nil {
		return value.Unit, err
	}
	b, err := doc.Encode(f)
	if err != nil {
		return value.Unit, err
	}
	if f == value.FormatCBOR {
		return value.Str(hex.EncodeToString(b)), nil
	}
	return value.Str(string(b)), nil
}
