/*
Package interp evaluates parsed TagSpeak programs.

A Runtime holds the mutable state of one script execution: variables, the rigid set,
tags, context bindings, the current directory inside the sandbox, the flow signal,
async tasks, the deadman switch and the last computed value.
Evaluation is depth-first and synchronous; the only concurrency comes from async
tasks and timers, which run on a Fork of the runtime and share nothing mutable with it.

Packets are dispatched through a Registry of handlers keyed by (namespace, op).
The handlers themselves live in package ops.
*/
package interp

import (
	"context"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/facette/natsort"

	"github.com/tagspeak/tagspeak/pkg/config"
	"github.com/tagspeak/tagspeak/pkg/sandbox"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

const LOG_TAG = "[interp]"

// SignalKind discriminates FlowSignal.
type SignalKind uint8

const (
	SignalNone SignalKind = iota
	SignalBreak
	SignalInterrupt
)

// FlowSignal is the break/interrupt token checked after every evaluation step.
type FlowSignal struct {
	Kind     SignalKind
	Value    value.Value
	HasValue bool
}

// Binding is one context-conditional value of a variable.
type Binding struct {
	Cond  tsapi.BExpr
	Value value.Value
}

type Runtime struct {
	ctx      context.Context
	registry *Registry
	config   config.Config
	gate     *sandbox.Gate

	vars     map[string]value.Value
	rigid    map[string]struct{}
	tags     map[string][]tsapi.Node
	bindings map[string][]Binding

	root        string // host path of the sandbox root; "" when there is none
	cwd         string // virtual, root-anchored
	script      string // virtual path of the script being evaluated
	yellowDepth int
	runDepth    int

	signal  FlowSignal
	tasks   *Tasks
	deadman *string
	last    value.Value

	stdout io.Writer
	stdin  io.Reader
	timers *sync.WaitGroup
}

// Options configure a new Runtime.
type Options struct {
	Registry *Registry
	Config   config.Config
	Root     string // host sandbox root, or ""
	Cwd      string // virtual working directory; defaults to "/"

	Stdout io.Writer
	Stdin  io.Reader

	Prompter    sandbox.Prompter
	Interactive bool
	Allow       *sandbox.AllowSet // defaults to the process-wide set
}

// New creates a runtime for one script execution.
func New(ctx context.Context, opts Options) *Runtime {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Allow == nil {
		opts.Allow = sandbox.ProcessAllowSet()
	}
	if opts.Cwd == "" {
		opts.Cwd = "/"
	}
	return &Runtime{
		ctx:      ctx,
		registry: opts.Registry,
		config:   opts.Config,
		gate: &sandbox.Gate{
			Config:      opts.Config,
			Allow:       opts.Allow,
			Prompter:    opts.Prompter,
			Interactive: opts.Interactive,
		},
		vars:     map[string]value.Value{},
		rigid:    map[string]struct{}{},
		tags:     map[string][]tsapi.Node{},
		bindings: map[string][]Binding{},
		root:     opts.Root,
		cwd:      opts.Cwd,
		tasks:    NewTasks(),
		stdout:   &lockedWriter{w: opts.Stdout},
		stdin:    opts.Stdin,
		timers:   &sync.WaitGroup{},
	}
}

// lockedWriter serializes output from a runtime and its forks.
// Writes from concurrent bodies do not interleave, but their order is not defined.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// Fork clones the variable and tag state into an independent runtime.
// Nothing the fork does is visible to rt; timers are still waited for together.
func (rt *Runtime) Fork() *Runtime {
	f := *rt
	f.vars = make(map[string]value.Value, len(rt.vars))
	for k, v := range rt.vars {
		f.vars[k] = v.Clone()
	}
	f.rigid = make(map[string]struct{}, len(rt.rigid))
	for k := range rt.rigid {
		f.rigid[k] = struct{}{}
	}
	f.tags = make(map[string][]tsapi.Node, len(rt.tags))
	for k, v := range rt.tags {
		f.tags[k] = v
	}
	f.bindings = make(map[string][]Binding, len(rt.bindings))
	for k, v := range rt.bindings {
		f.bindings[k] = append([]Binding(nil), v...)
	}
	f.signal = FlowSignal{}
	f.tasks = NewTasks()
	f.deadman = nil
	f.last = rt.last.Clone()
	return &f
}

func (rt *Runtime) Ctx() context.Context   { return rt.ctx }
func (rt *Runtime) Registry() *Registry    { return rt.registry }
func (rt *Runtime) Config() config.Config  { return rt.config }
func (rt *Runtime) Stdout() io.Writer      { return rt.stdout }
func (rt *Runtime) Stdin() io.Reader       { return rt.stdin }
func (rt *Runtime) Tasks() *Tasks          { return rt.tasks }
func (rt *Runtime) Last() value.Value      { return rt.last.Clone() }
func (rt *Runtime) SetLast(v value.Value)  { rt.last = v }
func (rt *Runtime) Signal() FlowSignal     { return rt.signal }
func (rt *Runtime) SetSignal(s FlowSignal) { rt.signal = s }
func (rt *Runtime) ClearSignal()           { rt.signal = FlowSignal{} }
func (rt *Runtime) YellowDepth() int       { return rt.yellowDepth }
func (rt *Runtime) RunDepth() int          { return rt.runDepth }
func (rt *Runtime) Root() string           { return rt.root }
func (rt *Runtime) Cwd() string            { return rt.cwd }
func (rt *Runtime) ScriptPath() string     { return rt.script }

// WithContext replaces the context used for logging, tracing and cancellation.
func (rt *Runtime) WithContext(ctx context.Context) {
	rt.ctx = ctx
}

// Var reads a variable. Context bindings are consulted first, in the order they were added;
// the first whose condition holds wins. An unset variable reads as Unit.
//
// Errors:
//
//   - any error raised while evaluating a binding condition.
func (rt *Runtime) Var(name string) (value.Value, error) {
	bindings := rt.bindings[name]
	if len(bindings) == 0 {
		return rt.vars[name].Clone(), nil
	}
	// Inside its own conditions a name reads as its plain value.
	scope := rt.Fork()
	delete(scope.bindings, name)
	for _, b := range bindings {
		ok, err := scope.EvalCond(b.Cond)
		if err != nil {
			return value.Unit, err
		}
		if ok {
			return b.Value.Clone(), nil
		}
	}
	return rt.vars[name].Clone(), nil
}

// LookupVar reads a plain variable, reporting whether it is set. Bindings are not consulted.
func (rt *Runtime) LookupVar(name string) (value.Value, bool) {
	v, ok := rt.vars[name]
	return v.Clone(), ok
}

// SetVar stores a variable; a rigid store also adds the name to the rigid set.
//
// Errors:
//
//   - tagspeak-error-variable-exists -- if name is rigid, or a rigid store hits an existing name.
func (rt *Runtime) SetVar(name string, v value.Value, rigid bool) error {
	if _, ok := rt.rigid[name]; ok {
		return tsapi.ErrorVariableExists(name)
	}
	if _, ok := rt.vars[name]; ok && rigid {
		return tsapi.ErrorVariableExists(name)
	}
	rt.vars[name] = v.Clone()
	if rigid {
		rt.rigid[name] = struct{}{}
	}
	return nil
}

// AddBinding appends a context-conditional value for name.
//
// Errors:
//
//   - tagspeak-error-variable-exists -- if name is rigid.
func (rt *Runtime) AddBinding(name string, cond tsapi.BExpr, v value.Value) error {
	if _, ok := rt.rigid[name]; ok {
		return tsapi.ErrorVariableExists(name)
	}
	rt.bindings[name] = append(rt.bindings[name], Binding{Cond: cond, Value: v.Clone()})
	return nil
}

// Handle returns the live document bound to name, for in-place edits.
//
// Errors:
//
//   - tagspeak-error-handle-unknown -- if name does not hold a document.
func (rt *Runtime) Handle(name string) (*value.Document, error) {
	doc := rt.vars[name].Document()
	if doc == nil {
		return nil, tsapi.ErrorHandleUnknown(name)
	}
	return doc, nil
}

func (rt *Runtime) IsRigid(name string) bool {
	_, ok := rt.rigid[name]
	return ok
}

// Vars is a snapshot of the plain variables.
func (rt *Runtime) Vars() map[string]value.Value {
	out := make(map[string]value.Value, len(rt.vars))
	for k, v := range rt.vars {
		out[k] = v.Clone()
	}
	return out
}

// RigidNames lists the rigid variables, sorted.
func (rt *Runtime) RigidNames() []string {
	names := make([]string, 0, len(rt.rigid))
	for k := range rt.rigid {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// TagNames lists the defined tags in natural order ("step2" before "step10").
func (rt *Runtime) TagNames() []string {
	names := make([]string, 0, len(rt.tags))
	for k := range rt.tags {
		names = append(names, k)
	}
	natsort.Sort(names)
	return names
}

func (rt *Runtime) Tag(name string) ([]tsapi.Node, bool) {
	body, ok := rt.tags[name]
	return body, ok
}

// DefineTag registers a body under name, replacing any previous definition.
func (rt *Runtime) DefineTag(name string, body []tsapi.Node) {
	rt.tags[name] = body
}

// Arm sets the deadman switch, returning the message it replaced, if any.
func (rt *Runtime) Arm(msg string) (string, bool) {
	prev := rt.deadman
	rt.deadman = &msg
	if prev == nil {
		return "", false
	}
	return *prev, true
}

// Disarm clears the deadman switch and reports what was cleared.
func (rt *Runtime) Disarm() (string, bool) {
	prev := rt.deadman
	rt.deadman = nil
	if prev == nil {
		return "", false
	}
	return *prev, true
}

// Deadman reports the armed message, if any.
func (rt *Runtime) Deadman() (string, bool) {
	if rt.deadman == nil {
		return "", false
	}
	return *rt.deadman, true
}

// EnterYellow and LeaveYellow bracket the evaluation of a yellow block; they nest.
func (rt *Runtime) EnterYellow() { rt.yellowDepth++ }
func (rt *Runtime) LeaveYellow() { rt.yellowDepth-- }

// CheckGate asks the consent gate about a side effect of the current packet.
//
// Errors:
//
//   - tagspeak-error-consent-required --
//   - tagspeak-error-network-denied --
//   - tagspeak-error-io --
func (rt *Runtime) CheckGate(req sandbox.Request) error {
	return rt.gate.Check(rt.ctx, req, rt.yellowDepth)
}

// RequireRoot fails unless the script runs inside a sandbox root.
//
// Errors:
//
//   - tagspeak-error-sandbox-required --
func (rt *Runtime) RequireRoot(op string) error {
	if rt.root == "" {
		return tsapi.ErrorSandboxRequired(op)
	}
	return nil
}

// Resolve maps a script path, relative to the current directory, to a host path inside the sandbox.
//
// Errors:
//
//   - tagspeak-error-sandbox-required --
//   - tagspeak-error-sandbox-boundary --
func (rt *Runtime) Resolve(op string, request string) (string, error) {
	if err := rt.RequireRoot(op); err != nil {
		return "", err
	}
	return sandbox.ResolveFrom(rt.root, rt.cwd, request)
}

// SetCwd changes the current directory; request is taken relative to the current one.
//
// Errors:
//
//   - tagspeak-error-sandbox-required --
//   - tagspeak-error-sandbox-boundary --
func (rt *Runtime) SetCwd(request string) (string, error) {
	if err := rt.RequireRoot("cd"); err != nil {
		return "", err
	}
	v, ok := sandbox.Confine(rt.cwd, request)
	if !ok {
		return "", tsapi.ErrorSandboxBoundary(rt.root, request)
	}
	rt.cwd = v
	return v, nil
}

// Go runs fn on its own goroutine; Wait blocks until every such goroutine has finished.
func (rt *Runtime) Go(fn func()) {
	rt.timers.Add(1)
	go func() {
		defer rt.timers.Done()
		fn()
	}()
}

func (rt *Runtime) Wait() {
	rt.timers.Wait()
}
