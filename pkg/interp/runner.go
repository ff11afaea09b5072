package interp

import (
	"context"
	"os"
	"path/filepath"

	"github.com/tagspeak/tagspeak/pkg/config"
	"github.com/tagspeak/tagspeak/pkg/logging"
	"github.com/tagspeak/tagspeak/pkg/parser"
	"github.com/tagspeak/tagspeak/pkg/sandbox"
	"github.com/tagspeak/tagspeak/pkg/tracing"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

// Prepare builds a runtime for a script living in the host directory dir:
// it discovers the sandbox root, loads the project config with env layered on top,
// and places the runtime's current directory at dir.
// Without a root the runtime still works, but every sandboxed packet fails.
//
// opts.Interactive should report whether stdin is a terminal; prompts.noninteractive is applied here.
//
// Errors:
//
//   - tagspeak-error-searching-filesystem -- if root discovery hits an unexpected filesystem error.
//   - tagspeak-error-io -- if the config file cannot be read.
//   - tagspeak-error-serialization -- if the config file does not parse.
//   - tagspeak-error-invalid -- if the configuration is invalid.
func Prepare(ctx context.Context, dir string, opts Options, env config.Env) (*Runtime, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, tsapi.ErrorIo("resolving script directory", dir, err)
	}
	root, err := sandbox.FindHostRoot(dir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadHost(root, env)
	if err != nil {
		return nil, err
	}
	opts.Config = cfg
	opts.Root = root
	opts.Interactive = opts.Interactive && !cfg.Prompts.NonInteractive
	opts.Cwd = "/"
	if root != "" {
		opts.Cwd, _ = sandbox.Virtual(root, dir)
		logging.Ctx(ctx).Debug(LOG_TAG, "sandbox root %s", root)
	} else {
		logging.Ctx(ctx).Debug(LOG_TAG, "no %s found above %s; sandboxed packets are disabled", sandbox.MarkerFilename, dir)
	}
	if cfg.Source != "" {
		logging.Ctx(ctx).Debug(LOG_TAG, "config loaded from /%s", cfg.Source)
	}
	return New(ctx, opts), nil
}

// RunFile parses and runs the script at the host path, then waits for its timers and tasks.
// The runtime is returned even on failure so callers can inspect its state.
//
// Errors:
//
//   - tagspeak-error-io -- if the script cannot be read.
//   - tagspeak-error-parse -- if the script is malformed; nothing is run.
//   - see Prepare and Runtime.Eval.
func RunFile(ctx context.Context, path string, opts Options, env config.Env) (value.Value, *Runtime, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return value.Unit, nil, tsapi.ErrorIo("resolving script path", path, err)
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return value.Unit, nil, tsapi.ErrorIo("reading script", abs, err)
	}
	return RunSource(ctx, string(src), abs, opts, env)
}

// RunSource runs script text as if it were the file at the host path scriptPath.
//
// Errors:
//
//   - tagspeak-error-parse -- if the script is malformed; nothing is run.
//   - see Prepare and Runtime.Eval.
func RunSource(ctx context.Context, src string, scriptPath string, opts Options, env config.Env) (value.Value, *Runtime, error) {
	ctx, span := tracing.StartRun(ctx, scriptPath, 0)
	defer span.End()

	prog, err := parser.Parse(src)
	if err != nil {
		tracing.Fail(ctx, err)
		return value.Unit, nil, err
	}
	rt, err := Prepare(ctx, filepath.Dir(scriptPath), opts, env)
	if err != nil {
		tracing.Fail(ctx, err)
		return value.Unit, nil, err
	}
	rt.script = filepath.Base(scriptPath)
	if v, ok := sandbox.Virtual(rt.root, scriptPath); ok && rt.root != "" {
		rt.script = v
	}
	v, err := rt.EvalProgram(prog)
	v, err = rt.Finish(v, err)
	if err != nil {
		tracing.Fail(ctx, err)
	}
	return v, rt, err
}

// Finish ends a top-level evaluation: it waits for timers and tasks, warns about an armed
// deadman switch, and resolves a pending interrupt into the final value.
func (rt *Runtime) Finish(v value.Value, err error) (value.Value, error) {
	rt.Wait()
	if msg, armed := rt.Deadman(); armed {
		logging.Ctx(rt.ctx).Warn("[deadman]", "deadman switch still armed at end of script: %s", msg)
	}
	if err != nil {
		return value.Unit, err
	}
	if rt.signal.Kind == SignalInterrupt && rt.signal.HasValue {
		v = rt.signal.Value
	}
	rt.ClearSignal()
	return v, nil
}

// RunNested evaluates another script inside this runtime, as the run packet does:
// variables and tags are shared, and the current directory is the nested script's
// directory until it returns.
//
// Errors:
//
//   - tagspeak-error-run-depth-exceeded -- if this would nest deeper than run.max_depth.
//   - tagspeak-error-io -- if the script cannot be read.
//   - tagspeak-error-parse -- if the script is malformed.
//   - see Runtime.Eval.
func (rt *Runtime) RunNested(host string) (value.Value, error) {
	virtual, _ := sandbox.Virtual(rt.root, host)
	if maxDepth := rt.config.Run.MaxDepth; rt.runDepth+1 > maxDepth {
		return value.Unit, tsapi.ErrorRunDepthExceeded(virtual, maxDepth)
	}
	src, err := os.ReadFile(host)
	if err != nil {
		return value.Unit, tsapi.ErrorIo("reading script", virtual, err)
	}
	prog, err := parser.Parse(string(src))
	if err != nil {
		return value.Unit, tsapi.AnnotateScript(err, virtual)
	}

	outer := rt.ctx
	ctx, span := tracing.StartRun(outer, virtual, rt.runDepth+1)
	defer span.End()
	savedCwd, savedScript := rt.cwd, rt.script
	rt.ctx = ctx
	rt.runDepth++
	rt.cwd, rt.script = virtualDir(virtual), virtual
	defer func() {
		rt.ctx = outer
		rt.runDepth--
		rt.cwd, rt.script = savedCwd, savedScript
	}()

	v, err := rt.EvalProgram(prog)
	if err != nil {
		err = tsapi.AnnotateScript(err, virtual)
		tracing.Fail(ctx, err)
	}
	return v, err
}

func virtualDir(v string) string {
	d := filepath.ToSlash(filepath.Dir(filepath.FromSlash(v)))
	if d == "." || d == "" {
		return "/"
	}
	return d
}
