package sandbox

import (
	"sync"

	"github.com/tagspeak/tagspeak/tsapi"
)

/*
	"Always" answers to a consent prompt must hold for every later packet in the same process,
	including nested runs and forked async bodies, which each have their own Runtime.
	So they live here, process-wide, behind a lock, and never on disk.
	The REPL guard is process-wide for the same reason: there is one terminal.
*/

// AllowSet is the set of consent keys answered "always" during this process.
// The zero value is ready to use.
type AllowSet struct {
	once sync.Once
	mu   sync.Mutex
	keys map[string]struct{}
}

var processAllow AllowSet

// ProcessAllowSet returns the allow set shared by every runtime in the process.
func ProcessAllowSet() *AllowSet {
	return &processAllow
}

func (s *AllowSet) init() {
	s.once.Do(func() {
		s.keys = make(map[string]struct{})
	})
}

func (s *AllowSet) Has(key string) bool {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

func (s *AllowSet) Add(key string) {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = struct{}{}
}

// Reset forgets every key.
func (s *AllowSet) Reset() {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = make(map[string]struct{})
}

// ReplGuard admits at most one active REPL session.
type ReplGuard struct {
	mu     sync.Mutex
	active bool
}

var processRepl ReplGuard

// ProcessReplGuard returns the REPL guard shared by every runtime in the process.
func ProcessReplGuard() *ReplGuard {
	return &processRepl
}

// Enter claims the session. It never blocks.
//
// Errors:
//
//   - tagspeak-error-repl-already-active -- if a session is already active.
func (g *ReplGuard) Enter() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active {
		return tsapi.ErrorReplAlreadyActive()
	}
	g.active = true
	return nil
}

// Leave releases the session.
func (g *ReplGuard) Leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
}
