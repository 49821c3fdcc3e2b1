package source

import (
	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/op"
	"github.com/orbitflow/ivmcore/row"
)

// connection is one Input returned by Source.Connect. Multiple
// connections to the same source are independent and may request
// different orderings (§4.1).
type connection struct {
	source      *Source
	ordering    row.Ordering
	orderingIdx *orderingIndex
	filters     []change.OptionalFilter
	output      op.Output
}

var _ op.Input = (*connection)(nil)

func (c *connection) Ordering() row.Ordering { return c.ordering }

func (c *connection) Fetch(constraint *change.Constraint, filters ...change.OptionalFilter) (change.Seq, change.AppliedFilters, error) {
	all := make([]change.OptionalFilter, 0, len(c.filters)+len(filters))
	all = append(all, c.filters...)
	all = append(all, filters...)
	return c.source.fetch(c, constraint, all)
}

// Cleanup for a bare source connection has nothing of its own to
// release — there is no operator scratch at this level — so it behaves
// like Fetch with no ad hoc filters; draining it simply releases the
// badger transaction/iterator it opened (§4.1, §4.3).
func (c *connection) Cleanup(constraint *change.Constraint) (change.Seq, error) {
	seq, _, err := c.Fetch(constraint)
	return seq, err
}

func (c *connection) SetOutput(out op.Output) { c.output = out }

func (c *connection) Destroy() error { return nil }
