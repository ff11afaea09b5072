package interp

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tagspeak/tagspeak/pkg/logging"
	"github.com/tagspeak/tagspeak/pkg/tracing"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

// Tasks is the async registry: task name to a handle that will carry the result.
// A name can be awaited once.
type Tasks struct {
	mu      sync.Mutex
	pending map[string]*task
}

type task struct {
	done chan struct{}
	val  value.Value
	err  error
}

func NewTasks() *Tasks {
	return &Tasks{pending: map[string]*task{}}
}

// add registers a pending task.
//
// Errors:
//
//   - tagspeak-error-async-duplicate -- if a task of that name is still pending.
func (t *Tasks) add(name string) (*task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[name]; ok {
		return nil, tsapi.ErrorAsyncDuplicate(name)
	}
	tk := &task{done: make(chan struct{})}
	t.pending[name] = tk
	return tk, nil
}

// Await blocks until the named task finishes, then yields its result and forgets it.
//
// Errors:
//
//   - tagspeak-error-async-unknown -- if nothing by that name is pending.
//   - tagspeak-error-internal -- if ctx is cancelled while waiting.
//   - any error the task itself failed with.
func (t *Tasks) Await(ctx context.Context, name string) (value.Value, error) {
	t.mu.Lock()
	tk, ok := t.pending[name]
	delete(t.pending, name)
	t.mu.Unlock()
	if !ok {
		return value.Unit, tsapi.ErrorAsyncUnknown(name)
	}
	select {
	case <-tk.done:
		return tk.val, tk.err
	case <-ctx.Done():
		return value.Unit, tsapi.ErrorInternal("awaiting "+name, ctx.Err())
	}
}

// Has reports whether a task of that name is waiting to be awaited.
func (t *Tasks) Has(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[name]
	return ok
}

// Pending lists the names that have not been awaited, sorted.
func (t *Tasks) Pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.pending))
	for k := range t.pending {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SpawnAsync starts body on a fork of the runtime and registers it under name.
// An interrupt carrying a value inside the body makes that value the result.
//
// Errors:
//
//   - tagspeak-error-async-duplicate -- if a task of that name is still pending.
func (rt *Runtime) SpawnAsync(name string, body []tsapi.Node) error {
	tk, err := rt.tasks.add(name)
	if err != nil {
		return err
	}
	fork := rt.Fork()
	parent := rt.ctx
	rt.Go(func() {
		defer close(tk.done)
		ctx, span := tracing.StartTask(parent, tracing.AttrFullTaskKindAsync, name)
		defer span.End()
		fork.ctx = ctx
		v, err := fork.EvalSeq(body)
		if sig := fork.signal; err == nil && sig.Kind == SignalInterrupt && sig.HasValue {
			v = sig.Value
		}
		if err != nil {
			tracing.Fail(ctx, err)
		}
		tk.val, tk.err = v, err
	})
	return nil
}

// Schedule runs body on a fork of the runtime after delay, times times in a row
// (times <= 0 repeats until the body raises a flow signal).
// The fork keeps its state between repetitions. A failing body stops the timer;
// the failure is logged, as nothing is left to report it to.
func (rt *Runtime) Schedule(kind attribute.KeyValue, delay time.Duration, times int, body []tsapi.Node) {
	fork := rt.Fork()
	parent := rt.ctx
	rt.Go(func() {
		ctx, span := tracing.StartTask(parent, kind, "")
		defer span.End()
		fork.ctx = ctx
		log := logging.Ctx(ctx)
		for i := 0; times <= 0 || i < times; i++ {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			if _, err := fork.EvalSeq(body); err != nil {
				tracing.Fail(ctx, err)
				log.Debug(LOG_TAG, "%s timer stopped: %s", kind.Value.AsString(), err)
				return
			}
			if fork.signal.Kind != SignalNone {
				return
			}
		}
	})
}
