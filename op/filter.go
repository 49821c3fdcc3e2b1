package op

import (
	"github.com/pkg/errors"

	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/row"
)

// Predicate decides whether a row belongs in a Filter's output.
type Predicate func(r row.Row) bool

// Filter keeps only the rows matching predicate, recomputing membership
// incrementally on every upstream change rather than re-scanning (§4.5).
type Filter struct {
	upstream  Input
	predicate Predicate
	output    Output
}

func NewFilter(upstream Input, predicate Predicate) *Filter {
	f := &Filter{upstream: upstream, predicate: predicate}
	upstream.SetOutput(f)
	return f
}

func (f *Filter) Ordering() row.Ordering { return f.upstream.Ordering() }

func (f *Filter) SetOutput(out Output) { f.output = out }

func (f *Filter) Destroy() error {
	return f.upstream.Destroy()
}

func (f *Filter) Fetch(constraint *change.Constraint, filters ...change.OptionalFilter) (change.Seq, change.AppliedFilters, error) {
	seq, applied, err := f.upstream.Fetch(constraint, filters...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "filter: couldn't fetch upstream")
	}
	return &filteredSeq{upstream: seq, predicate: f.predicate}, applied, nil
}

func (f *Filter) Cleanup(constraint *change.Constraint) (change.Seq, error) {
	seq, err := f.upstream.Cleanup(constraint)
	if err != nil {
		return nil, err
	}
	return &filteredSeq{upstream: seq, predicate: f.predicate}, nil
}

// Push implements Output: it receives every change from upstream and
// re-derives the matching add/remove/edit relative to predicate before
// forwarding (§4.5's general incremental-operator shape).
func (f *Filter) Push(c change.Change) error {
	switch c.Kind {
	case change.KindAdd:
		if f.predicate(c.Node.Row) {
			return f.output.Push(c)
		}
		return c.Node.Close()
	case change.KindRemove:
		if f.predicate(c.Node.Row) {
			return f.output.Push(c)
		}
		return c.Node.Close()
	case change.KindEdit:
		return f.pushEdit(c)
	case change.KindChild:
		// A child change belongs to a relationship nested under rows this
		// Filter never sees directly; pass it through unchanged.
		return f.output.Push(c)
	default:
		return errors.Errorf("filter: unknown change kind %v", c.Kind)
	}
}

func (f *Filter) pushEdit(c change.Change) error {
	oldMatch := f.predicate(c.OldRow)
	newMatch := f.predicate(c.Row)
	switch {
	case oldMatch && newMatch:
		return f.output.Push(c)
	case newMatch && !oldMatch:
		return f.output.Push(change.Add(change.Node{Row: c.Row, Relationships: map[string]change.Seq{}}))
	case oldMatch && !newMatch:
		return f.output.Push(change.Remove(change.Node{Row: c.OldRow, Relationships: map[string]change.Seq{}}))
	default:
		return nil
	}
}

// filteredSeq lazily re-applies predicate over an upstream Seq.
type filteredSeq struct {
	upstream  change.Seq
	predicate Predicate
}

func (s *filteredSeq) Next() (change.Node, error) {
	for {
		n, err := s.upstream.Next()
		if err != nil {
			return change.Node{}, err
		}
		if s.predicate(n.Row) {
			return n, nil
		}
		if err := n.Close(); err != nil {
			return change.Node{}, err
		}
	}
}

func (s *filteredSeq) Close() error { return s.upstream.Close() }
