/*
Package ops holds the packet handlers: flow control, variables, output, reflection,
and the sandboxed packets that touch files, processes and the network.

Register installs every handler into an interp.Registry; NewRegistry returns a registry
holding exactly the standard catalog.
*/
package ops

import (
	"github.com/tagspeak/tagspeak/pkg/interp"
	"github.com/tagspeak/tagspeak/pkg/parser"
	"github.com/tagspeak/tagspeak/tsapi"
)

// NewRegistry returns a registry holding the standard catalog.
func NewRegistry() *interp.Registry {
	r := interp.NewRegistry()
	Register(r)
	return r
}

// Register installs the standard catalog into r.
func Register(r *interp.Registry) {
	registerValues(r)
	registerOutput(r)
	registerReflection(r)
	registerFlow(r)
	registerFiles(r)
	registerDocuments(r)
	registerExec(r)
	registerNet(r)
	registerRun(r)
}

// modeArgs splits the packet's mode into arguments; a packet without a mode has none.
//
// Errors:
//
//   - tagspeak-error-invalid -- if the mode is malformed.
func modeArgs(p *tsapi.Packet) ([]string, error) {
	if p.Mode == nil {
		return nil, nil
	}
	args, err := parser.ParseMode(*p.Mode)
	if err != nil {
		return nil, tsapi.AnnotateLocation(err, p.Pos, p.String())
	}
	return args, nil
}

// needBody fails for packets that only make sense with a {...} body.
//
// Errors:
//
//   - tagspeak-error-invalid -- if the packet has no body.
func needBody(p *tsapi.Packet) error {
	if !p.HasBody {
		return tsapi.ErrorInvalid(p.Op+" needs a {...} body", [2]string{"packet", p.String()})
	}
	return nil
}
