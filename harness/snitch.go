// Package harness provides the test/fixture tooling named by the spec's
// budget table: a recording listener (snitch), a panic/error recovering
// push wrapper (catch), and a scripted SourceChange driver (replay), used
// both by this module's own _test.go files and by cmd/ivmreplay.
package harness

import (
	"sync"

	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/op"
)

// Snitch is an op.Output that records every Change pushed through it, for
// assertion against an expected sequence with testify/require.
type Snitch struct {
	mu      sync.Mutex
	changes []change.Change
}

var _ op.Output = (*Snitch)(nil)

// NewSnitch returns an empty Snitch.
func NewSnitch() *Snitch {
	return &Snitch{}
}

// Push records c and never fails; a Snitch is a pure observer.
func (s *Snitch) Push(c change.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, c)
	return nil
}

// Changes returns every Change recorded so far, in push order.
func (s *Snitch) Changes() []change.Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]change.Change, len(s.changes))
	copy(out, s.changes)
	return out
}

// Kinds returns the Kind of every recorded Change, in order, a common
// shorthand for assertions that only care about the change shape.
func (s *Snitch) Kinds() []change.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]change.Kind, len(s.changes))
	for i, c := range s.changes {
		out[i] = c.Kind
	}
	return out
}

// Reset discards every recorded Change.
func (s *Snitch) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = nil
}
