package interp

import (
	"sort"

	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

// Handler performs one packet. It reads arguments through the Runtime and
// reports failures as tagspeak errors rather than panicking.
type Handler func(rt *Runtime, p *tsapi.Packet) (value.Value, error)

// Wildcard as an op registers a handler for every op of a namespace.
const Wildcard = "*"

// Entry is one row of the dispatch table.
type Entry struct {
	Namespace string
	Op        string
	Usage     string // e.g. "[loop@n]{...}"
	Summary   string
	Handler   Handler
}

// Token is the dispatch key as written in a script: "ns:op" or "op".
func (e Entry) Token() string {
	if e.Namespace == "" {
		return e.Op
	}
	return e.Namespace + ":" + e.Op
}

type dispatchKey struct {
	namespace string
	op        string
}

// Registry is the dispatch table: (namespace, op) to handler.
type Registry struct {
	entries map[dispatchKey]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: map[dispatchKey]Entry{}}
}

// Register adds or replaces an entry.
func (r *Registry) Register(e Entry) {
	r.entries[dispatchKey{e.Namespace, e.Op}] = e
}

// Lookup finds the handler for a packet head: the exact key first, then the namespace wildcard.
func (r *Registry) Lookup(namespace, op string) (Entry, bool) {
	if e, ok := r.entries[dispatchKey{namespace, op}]; ok {
		return e, true
	}
	if namespace != "" {
		if e, ok := r.entries[dispatchKey{namespace, Wildcard}]; ok {
			return e, true
		}
	}
	return Entry{}, false
}

// Entries lists the table sorted by token.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token() < out[j].Token() })
	return out
}

// Tokens lists every concrete token, for suggestions.
func (r *Registry) Tokens() []string {
	var out []string
	for _, e := range r.Entries() {
		if e.Op != Wildcard {
			out = append(out, e.Token())
		}
	}
	return out
}
