package ops

import (
	"fmt"
	"strings"

	"github.com/tagspeak/tagspeak/pkg/interp"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

func registerOutput(r *interp.Registry) {
	for _, e := range []interp.Entry{
		{Op: "print", Usage: "[print] [print@x]", Summary: "Write a value to standard output.", Handler: opPrint},
		{Op: "log", Usage: "[log@x] [log(json)@x] [log(yaml)@x]", Summary: "Write a value to standard output, structured when asked.", Handler: opLog},
		{Op: "note", Usage: `[note@"text"]`, Summary: "Comment; passes the last value through.", Handler: opNote},
	} {
		r.Register(e)
	}
}

func opPrint(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	v, err := rt.ArgValue(p)
	if err != nil {
		return value.Unit, err
	}
	if _, err := fmt.Fprintln(rt.Stdout(), v.String()); err != nil {
		return value.Unit, tsapi.ErrorIo("print", "", err)
	}
	return v, nil
}

// opLog prints like print, but a log(json) or log(yaml) renders the value in that format.
// Scalars are wrapped as a one-key {"value": ...} object so the output is always a valid document.
func opLog(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	v, err := rt.ArgValue(p)
	if err != nil {
		return value.Unit, err
	}
	args, err := modeArgs(p)
	if err != nil {
		return value.Unit, err
	}
	text := v.String()
	if len(args) > 0 {
		format, err := value.ParseFormat(args[0])
		if err != nil {
			return value.Unit, err
		}
		if format != value.FormatJSON && format != value.FormatYAML {
			return value.Unit, tsapi.ErrorFormatUnsupported(args[0])
		}
		tree := value.FromValue(v)
		if _, ok := tree.(map[string]any); !ok && v.Kind() != value.KindDoc {
			tree = map[string]any{"value": tree}
		}
		b, err := value.Encode(format, tree)
		if err != nil {
			return value.Unit, err
		}
		text = strings.TrimRight(string(b), "\n")
	}
	if _, err := fmt.Fprintln(rt.Stdout(), text); err != nil {
		return value.Unit, tsapi.ErrorIo("log", "", err)
	}
	return v, nil
}

func opNote(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	return rt.Last(), nil
}
