package ops

import (
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tagspeak/tagspeak/pkg/interp"
	"github.com/tagspeak/tagspeak/pkg/logging"
	"github.com/tagspeak/tagspeak/pkg/tracing"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

func registerFlow(r *interp.Registry) {
	for _, e := range []interp.Entry{
		{Op: "loop", Usage: "[loop@3]{...} [loop(tag)@n]", Summary: "Repeat a body or tag; break leaves the loop.", Handler: opLoop},
		{Op: "funct", Usage: "[funct@name]{...}", Summary: "Define a tag without running it.", Handler: opFunct},
		{Namespace: "funct", Op: interp.Wildcard, Usage: "[funct:name]{...}", Summary: "Define a tag without running it.", Handler: opFunct},
		{Op: "call", Usage: "[call@name]", Summary: "Run a tag in the caller's variables.", Handler: opCall},
		{Op: "break", Usage: "[break]", Summary: "Leave the nearest loop or interval.", Handler: opBreak},
		{Op: "interrupt", Usage: "[interrupt] [interrupt@x]", Summary: "Stop the script, optionally with a final value.", Handler: opInterrupt},
		{Op: "async", Usage: "[async@tag] [async@name]{...} [async]{...}", Summary: "Run a tag or body in the background; yields the task name.", Handler: opAsync},
		{Op: "await", Usage: "[await@name]", Summary: "Wait for a background task and yield its result.", Handler: opAwait},
		{Op: "deadman", Usage: `[deadman@"message"]`, Summary: "Arm the deadman switch.", Handler: opDeadman},
		{Op: "disarm", Usage: "[disarm]", Summary: "Clear the deadman switch; yields what was cleared.", Handler: opDisarm},
		{Op: "timeout", Usage: "[timeout@500]{...}", Summary: "Run a body once after a delay in milliseconds.", Handler: opTimer(tracing.AttrFullTaskKindTimeout, false)},
		{Op: "interval", Usage: "[interval@500]{...} [interval(3)@500]{...}", Summary: "Run a body every delay, n times or until it breaks.", Handler: opTimer(tracing.AttrFullTaskKindInterval, true)},
		{Op: "yellow", Usage: `[yellow]{...} [yellow@"reason"]{...}`, Summary: "Consent block for exec, http, run and repl.", Handler: opYellow},
		{Op: "confirm", Usage: `[confirm]{...}`, Summary: "Alias of yellow.", Handler: opYellow},
	} {
		r.Register(e)
	}
}

// opLoop runs the body count times, threading last between iterations.
// A break ends the loop and is consumed; an interrupt ends it and propagates.
func opLoop(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	n, err := rt.ArgCount(p)
	if err != nil {
		return value.Unit, err
	}
	body := p.Body
	if tag := p.ModeText(); tag != "" {
		b, ok := rt.Tag(tag)
		if !ok {
			return value.Unit, tsapi.ErrorUndefinedFunction(tag)
		}
		body = b
	} else if err := needBody(p); err != nil {
		return value.Unit, err
	}
	result := value.Unit
	for i := 0; i < n; i++ {
		v, err := rt.EvalSeq(body)
		if err != nil {
			return value.Unit, err
		}
		result = v
		rt.SetLast(v)
		sig := rt.Signal()
		if sig.Kind == interp.SignalBreak {
			rt.ClearSignal()
			break
		}
		if sig.Kind == interp.SignalInterrupt {
			break
		}
	}
	return result, nil
}

func opFunct(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	name := p.Op
	if p.Namespace == "" {
		var err error
		if name, err = interp.ArgName(p); err != nil {
			return value.Unit, err
		}
	}
	if err := needBody(p); err != nil {
		return value.Unit, err
	}
	rt.DefineTag(name, p.Body)
	return rt.Last(), nil
}

func opCall(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	name, err := interp.ArgName(p)
	if err != nil {
		return value.Unit, err
	}
	return rt.CallTag(name)
}

func opBreak(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	rt.SetSignal(interp.FlowSignal{Kind: interp.SignalBreak})
	return rt.Last(), nil
}

func opInterrupt(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	if p.Arg == nil {
		rt.SetSignal(interp.FlowSignal{Kind: interp.SignalInterrupt})
		return rt.Last(), nil
	}
	v, err := rt.ArgValue(p)
	if err != nil {
		return value.Unit, err
	}
	rt.SetSignal(interp.FlowSignal{Kind: interp.SignalInterrupt, Value: v, HasValue: true})
	return v, nil
}

// opAsync starts a task. With a body the task is named by the argument, or a fresh uuid;
// without one the argument names both the tag to run and the task.
func opAsync(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	var name string
	var body []tsapi.Node
	switch {
	case p.HasBody && p.Arg == nil:
		name, body = uuid.NewString(), p.Body
	case p.HasBody:
		name, body = interp.ArgText(p), p.Body
	default:
		var err error
		if name, err = interp.ArgName(p); err != nil {
			return value.Unit, err
		}
		b, ok := rt.Tag(name)
		if !ok {
			return value.Unit, tsapi.ErrorUndefinedFunction(name)
		}
		body = b
	}
	if err := rt.SpawnAsync(name, body); err != nil {
		return value.Unit, err
	}
	return value.Str(name), nil
}

func opAwait(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	name, err := taskHandle(rt, p)
	if err != nil {
		return value.Unit, err
	}
	return rt.Tasks().Await(rt.Ctx(), name)
}

// taskHandle resolves an await argument. The literal name comes first, as async registers it;
// an identifier naming no pending task is then read as a variable holding a handle.
// Without an argument the last value is the handle.
func taskHandle(rt *interp.Runtime, p *tsapi.Packet) (string, error) {
	if p.Arg == nil {
		return rt.Last().String(), nil
	}
	switch p.Arg.Kind {
	case tsapi.ArgCond:
		v, err := rt.ArgValue(p)
		return v.String(), err
	case tsapi.ArgIdent:
		if rt.Tasks().Has(p.Arg.Text) {
			return p.Arg.Text, nil
		}
		v, err := rt.Var(p.Arg.Text)
		if err != nil || v.IsUnit() {
			return p.Arg.Text, err
		}
		return v.String(), nil
	}
	return p.Arg.Text, nil
}

func opDeadman(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	v, err := rt.ArgValue(p)
	if err != nil {
		return value.Unit, err
	}
	msg := v.String()
	if p.Arg != nil && p.Arg.Kind == tsapi.ArgIdent && v.IsUnit() {
		msg = p.Arg.Text
	}
	if prev, ok := rt.Arm(msg); ok {
		logging.Ctx(rt.Ctx()).Debug("[deadman]", "replaced %q", prev)
	}
	return value.Str(msg), nil
}

func opDisarm(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	msg, ok := rt.Disarm()
	if !ok {
		return value.Unit, nil
	}
	logging.Ctx(rt.Ctx()).Info("[deadman]", "disarmed: %s", msg)
	return value.Str(msg), nil
}

// opTimer schedules the body on a fork. A repeating timer runs n times when given a mode,
// otherwise until its body breaks or interrupts.
func opTimer(kind attribute.KeyValue, repeat bool) interp.Handler {
	return func(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
		if err := needBody(p); err != nil {
			return value.Unit, err
		}
		ms, err := numArg(rt, p)
		if err != nil {
			return value.Unit, err
		}
		if ms < 0 || math.IsNaN(ms) {
			ms = 0
		}
		times := 1
		if repeat {
			times = 0
			args, err := modeArgs(p)
			if err != nil {
				return value.Unit, err
			}
			if len(args) > 0 {
				n, err := countOf(args[0])
				if err != nil {
					return value.Unit, err
				}
				if n == 0 {
					return rt.Last(), nil
				}
				times = n
			}
		}
		rt.Schedule(kind, time.Duration(ms*float64(time.Millisecond)), times, p.Body)
		return rt.Last(), nil
	}
}

// opYellow evaluates its body with the consent gate open one level deeper.
func opYellow(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	if err := needBody(p); err != nil {
		return value.Unit, err
	}
	if reason := interp.ArgText(p); reason != "" {
		logging.Ctx(rt.Ctx()).Info("[yellow]", "%s", reason)
	}
	rt.EnterYellow()
	defer rt.LeaveYellow()
	return rt.EvalSeq(p.Body)
}

// countOf reads a repeat count from mode text, truncated toward zero; negatives are 0.
//
// Errors:
//
//   - tagspeak-error-non-numeric -- if the text is not a number.
func countOf(text string) (int, error) {
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) {
		return 0, tsapi.ErrorNonNumeric("count", text)
	}
	if f <= 0 {
		return 0, nil
	}
	if f > math.MaxInt32 {
		return math.MaxInt32, nil
	}
	return int(f), nil
}
