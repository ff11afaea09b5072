package ops

import (
	"strings"

	"github.com/tagspeak/tagspeak/pkg/interp"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

func registerReflection(r *interp.Registry) {
	for _, e := range []interp.Entry{
		{Op: "vars", Usage: "[vars]", Summary: "The variables as a JSON object.", Handler: opVars},
		{Op: "tags", Usage: "[tags]", Summary: "Defined tag names, comma separated.", Handler: opTags},
		{Op: "rigid", Usage: "[rigid]", Summary: "Rigid variable names, comma separated.", Handler: opRigid},
	} {
		r.Register(e)
	}
}

func opVars(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	tree := map[string]any{}
	for name, v := range rt.Vars() {
		tree[name] = value.FromValue(v)
	}
	b, err := value.Encode(value.FormatJSON, tree)
	if err != nil {
		return value.Unit, err
	}
	return value.Str(string(b)), nil
}

func opTags(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	return value.Str(strings.Join(rt.TagNames(), ",")), nil
}

func opRigid(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	return value.Str(strings.Join(rt.RigidNames(), ",")), nil
}
