// Package op defines the Input/Output contract every operator and row
// source connection implements (§4.3, §6), and the concrete operators
// (Filter, Take, Skip, Project, Join) that compose into query pipelines.
package op

import (
	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/row"
)

// Input is the upstream contract every operator (and every source
// connection) exposes (§4.3, §6).
type Input interface {
	// Fetch pulls rows matching constraint (nil means no constraint) in
	// this Input's declared ordering, returning a lazy, single-consumer
	// sequence. filters are additional optional comparison conjuncts the
	// caller would like pushed down; applied reports which of them (by
	// column) the Input actually applied — any filter not reported must
	// be re-evaluated by the caller.
	Fetch(constraint *change.Constraint, filters ...change.OptionalFilter) (change.Seq, change.AppliedFilters, error)

	// Cleanup pulls the same rows Fetch would, with the side effect of
	// releasing any scratch entries this Input (or anything upstream of
	// it) holds for them (§4.3).
	Cleanup(constraint *change.Constraint) (change.Seq, error)

	// Ordering is this Input's declared total order (already normalized
	// with the source's primary key, §3/§6).
	Ordering() row.Ordering

	// SetOutput wires the Input's downstream consumer. Exactly one
	// Output may be set, at construction time, per §4.3.
	SetOutput(out Output)

	// Destroy recursively releases subscriptions held by this Input and
	// everything upstream of it (§5: cancellation).
	Destroy() error
}

// Output is the downstream contract an Input pushes Changes into.
type Output interface {
	Push(c change.Change) error
}

// OutputFunc adapts a plain function to Output, used by tests and by the
// materialized view's upstream attachment point.
type OutputFunc func(c change.Change) error

func (f OutputFunc) Push(c change.Change) error { return f(c) }
