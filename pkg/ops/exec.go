package ops

import (
	"bytes"
	"strings"

	shinterp "mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/tagspeak/tagspeak/pkg/interp"
	"github.com/tagspeak/tagspeak/pkg/logging"
	"github.com/tagspeak/tagspeak/pkg/sandbox"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

func registerExec(r *interp.Registry) {
	r.Register(interp.Entry{
		Op:      "exec",
		Usage:   `[exec@"ls -l"] [exec(status)@"test -f x"]`,
		Summary: "Run a shell line in the current directory; yields trimmed stdout, or the exit status.",
		Handler: opExec,
	})
}

// commandNames lists the command word of every simple command in the file.
// Words that are not plain literals, such as "$cmd", are listed as "<dynamic>" and never match an allowlist.
func commandNames(f *syntax.File) []string {
	var names []string
	seen := map[string]bool{}
	syntax.Walk(f, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		name := call.Args[0].Lit()
		if name == "" {
			name = "<dynamic>"
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		return true
	})
	return names
}

// opExec parses the line before asking the gate, so consent covers every command it would run.
// A non-zero exit fails the packet, unless exec(status) asked for the status instead of the output.
func opExec(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	if err := rt.RequireRoot("exec"); err != nil {
		return value.Unit, err
	}
	line := interp.ArgText(p)
	if p.Arg != nil && p.Arg.Kind != tsapi.ArgStr {
		v, err := rt.ArgValue(p)
		if err != nil {
			return value.Unit, err
		}
		line = v.String()
	}
	if strings.TrimSpace(line) == "" {
		return value.Unit, tsapi.ErrorInvalid("exec needs a command line", [2]string{"packet", p.String()})
	}
	statusMode := p.ModeText() == "status"
	if p.Mode != nil && !statusMode {
		return value.Unit, tsapi.ErrorInvalid("unknown exec mode "+p.ModeText()+"; only exec(status) exists")
	}

	file, err := syntax.NewParser().Parse(strings.NewReader(line), "exec")
	if err != nil {
		return value.Unit, tsapi.ErrorInvalid("exec: "+err.Error(), [2]string{"command", line})
	}
	names := commandNames(file)
	if err := rt.CheckGate(sandbox.Request{
		Kind:     sandbox.KindExec,
		Op:       p.String(),
		Key:      sandbox.ExecKey(names),
		Commands: names,
	}); err != nil {
		return value.Unit, err
	}

	dir, err := rt.Resolve("exec", ".")
	if err != nil {
		return value.Unit, err
	}
	log := logging.Ctx(rt.Ctx())
	var stdout bytes.Buffer
	runner, err := shinterp.New(
		shinterp.StdIO(nil, &stdout, log.InfoWriter("[exec]")),
		shinterp.Dir(dir),
	)
	if err != nil {
		return value.Unit, tsapi.ErrorExecFailed(line, err)
	}
	log.Debug("[exec]", "%s (in %s)", line, rt.Cwd())
	err = runner.Run(rt.Ctx(), file)
	if err != nil {
		if status, ok := shinterp.IsExitStatus(err); ok && statusMode {
			return value.Num(float64(status)), nil
		}
		return value.Unit, tsapi.ErrorExecFailed(line, err)
	}
	if statusMode {
		return value.Num(0), nil
	}
	return value.Str(strings.TrimRight(stdout.String(), "\r\n")), nil
}
