package interp

import (
	"fmt"

	"github.com/tagspeak/tagspeak/pkg/logging"
	"github.com/tagspeak/tagspeak/pkg/parser"
	"github.com/tagspeak/tagspeak/pkg/tracing"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

// Eval evaluates one node. Every successful evaluation becomes the runtime's last value.
//
// Errors:
//
//   - any error raised by a packet handler, annotated with the packet's location.
//   - tagspeak-error-unknown-operation -- if no handler or tag matches a packet.
func (rt *Runtime) Eval(n tsapi.Node) (value.Value, error) {
	switch n := n.(type) {
	case *tsapi.Packet:
		return rt.dispatch(n)
	case *tsapi.Chain:
		return rt.EvalSeq(n.Nodes)
	case *tsapi.Block:
		return rt.EvalSeq(n.Nodes)
	case *tsapi.If:
		v, err := rt.evalIf(n)
		if err != nil {
			return value.Unit, err
		}
		rt.last = v
		return v, nil
	}
	return value.Unit, tsapi.ErrorInternal("evaluating node", fmt.Errorf("unexpected node type %T", n))
}

// EvalSeq evaluates nodes in order and yields the last result; an empty sequence yields Unit.
// It stops early, without error, as soon as a flow signal is raised.
//
// Errors:
//
//   - see Eval; the first failure aborts the rest of the sequence.
func (rt *Runtime) EvalSeq(nodes []tsapi.Node) (value.Value, error) {
	result := value.Unit
	for _, n := range nodes {
		v, err := rt.Eval(n)
		if err != nil {
			return value.Unit, err
		}
		result = v
		if rt.signal.Kind != SignalNone {
			break
		}
	}
	return result, nil
}

// EvalProgram registers the program's tags and evaluates its statements.
//
// Errors:
//
//   - see Eval.
func (rt *Runtime) EvalProgram(prog *parser.Program) (value.Value, error) {
	for name, body := range prog.Tags {
		rt.DefineTag(name, body)
	}
	return rt.EvalSeq(prog.Root.Nodes)
}

// EvalSource parses and evaluates src in this runtime, as the REPL does for each line.
//
// Errors:
//
//   - tagspeak-error-parse --
//   - see Eval.
func (rt *Runtime) EvalSource(src string) (value.Value, error) {
	prog, err := parser.Parse(src)
	if err != nil {
		return value.Unit, err
	}
	return rt.EvalProgram(prog)
}

func (rt *Runtime) evalIf(n *tsapi.If) (value.Value, error) {
	ok, err := rt.EvalCond(n.Cond)
	if err != nil {
		return value.Unit, tsapi.AnnotateLocation(err, n.Pos, "[if]")
	}
	if ok {
		return rt.EvalSeq(n.Then)
	}
	if n.Else != nil {
		return rt.EvalSeq(n.Else)
	}
	return value.Unit, nil
}

// CallTag evaluates a tag body in this runtime: the callee sees and changes the caller's variables.
//
// Errors:
//
//   - tagspeak-error-undefined-function -- if no tag has that name.
//   - see Eval.
func (rt *Runtime) CallTag(name string) (value.Value, error) {
	body, ok := rt.tags[name]
	if !ok {
		return value.Unit, tsapi.ErrorUndefinedFunction(name)
	}
	return rt.EvalSeq(body)
}

func (rt *Runtime) dispatch(p *tsapi.Packet) (value.Value, error) {
	outer := rt.ctx
	ctx, span := tracing.StartPacket(outer, p)
	defer span.End()
	rt.ctx = ctx
	defer func() { rt.ctx = outer }()

	log := logging.Ctx(ctx)
	var v value.Value
	var err error
	if entry, ok := rt.registry.Lookup(p.Namespace, p.Op); ok {
		log.Debug(LOG_TAG, "%s %s", p.Pos, p)
		v, err = entry.Handler(rt, p)
	} else if _, isTag := rt.tags[p.Op]; isTag && p.Namespace == "" && p.Mode == nil {
		log.Debug(LOG_TAG, "%s %s (tag)", p.Pos, p)
		v, err = rt.CallTag(p.Op)
	} else {
		head := (&tsapi.Packet{Namespace: p.Namespace, Op: p.Op}).Token()
		err = tsapi.ErrorUnknownOperation(p.Token(), Suggest(head, append(rt.registry.Tokens(), rt.TagNames()...)))
	}
	if err != nil {
		err = tsapi.AnnotateLocation(err, p.Pos, p.String())
		tracing.Fail(ctx, err)
		return value.Unit, err
	}
	rt.last = v
	return v, nil
}
