package ops

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/tagspeak/tagspeak/pkg/interp"
	"github.com/tagspeak/tagspeak/pkg/logging"
	"github.com/tagspeak/tagspeak/pkg/sandbox"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

// ReplPrompt is printed before every line the repl packet reads.
const ReplPrompt = "tgsk> "

func registerRun(r *interp.Registry) {
	for _, e := range []interp.Entry{
		{Op: "run", Usage: `[run@"lib/setup.tgsk"]`, Summary: "Run another script with the same variables and tags.", Handler: opRun},
		{Op: "repl", Usage: "[repl]", Summary: "Read and run packets from standard input until exit.", Handler: opRepl},
	} {
		r.Register(e)
	}
}

func opRun(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	req, err := pathArg(rt, p)
	if err != nil {
		return value.Unit, err
	}
	host, err := rt.Resolve("run", req)
	if err != nil {
		return value.Unit, err
	}
	virtual, _ := sandbox.Virtual(rt.Root(), host)
	if err := rt.CheckGate(sandbox.Request{
		Kind: sandbox.KindRun,
		Op:   p.String(),
		Key:  "run:" + virtual,
		Path: virtual,
	}); err != nil {
		return value.Unit, err
	}
	return rt.RunNested(host)
}

// opRepl evaluates one line at a time in this runtime. Errors are reported and the session goes on;
// It ends at "exit" or "quit", at end of input, or on a flow signal; a break is consumed.
func opRepl(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	if err := rt.CheckGate(sandbox.Request{Kind: sandbox.KindRepl, Op: p.String(), Key: "repl"}); err != nil {
		return value.Unit, err
	}
	guard := sandbox.ProcessReplGuard()
	if err := guard.Enter(); err != nil {
		return value.Unit, err
	}
	defer guard.Leave()

	log := logging.Ctx(rt.Ctx())
	out := rt.Stdout()
	in := bufio.NewScanner(rt.Stdin())
	result := rt.Last()
	for {
		fmt.Fprint(out, ReplPrompt)
		if !in.Scan() {
			fmt.Fprintln(out)
			break
		}
		line := strings.TrimSpace(in.Text())
		if line == "exit" || line == "quit" {
			break
		}
		if line == "" {
			continue
		}
		v, err := rt.EvalSource(line)
		if err != nil {
			log.Warn("[repl]", "%s", err)
			continue
		}
		result = v
		if !v.IsUnit() {
			fmt.Fprintln(out, v.String())
		}
		if sig := rt.Signal(); sig.Kind == interp.SignalBreak {
			rt.ClearSignal()
			break
		} else if sig.Kind == interp.SignalInterrupt {
			break
		}
	}
	if err := in.Err(); err != nil {
		return value.Unit, tsapi.ErrorIo("reading repl input", "", err)
	}
	return result, nil
}
