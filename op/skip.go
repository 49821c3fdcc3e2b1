package op

import (
	"github.com/pkg/errors"

	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/row"
)

// Skip forwards every row of upstream's ordering except the first n,
// maintained as the complement of the same kind of boundary window Take
// keeps: a row inside the skip window is suppressed, a row outside it is
// forwarded directly (DESIGN.md "Take/Skip refill strategy").
type Skip struct {
	upstream Input
	n        int
	order    row.Ordering
	skipped  *window
	output   Output
}

func NewSkip(upstream Input, n int) *Skip {
	s := &Skip{
		upstream: upstream,
		n:        n,
		order:    upstream.Ordering(),
		skipped:  newWindow(upstream.Ordering(), n),
	}
	upstream.SetOutput(s)
	return s
}

func (s *Skip) Ordering() row.Ordering { return s.order }

func (s *Skip) SetOutput(out Output) { s.output = out }

func (s *Skip) Destroy() error { return s.upstream.Destroy() }

func (s *Skip) Fetch(constraint *change.Constraint, filters ...change.OptionalFilter) (change.Seq, change.AppliedFilters, error) {
	seq, applied, err := s.upstream.Fetch(constraint, filters...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "skip: couldn't fetch upstream")
	}

	var skippedRows []row.Row
	var forwarded []change.Node
	for {
		node, err := seq.Next()
		if err == change.ErrEndOfSequence {
			break
		}
		if err != nil {
			_ = seq.Close()
			return nil, nil, err
		}
		if len(skippedRows) < s.n {
			skippedRows = append(skippedRows, node.Row)
			if err := node.Close(); err != nil {
				return nil, nil, err
			}
			continue
		}
		forwarded = append(forwarded, node)
	}
	if err := seq.Close(); err != nil {
		return nil, nil, err
	}

	if constraint == nil {
		s.skipped.reset(skippedRows)
	}
	return change.NewSliceSeq(forwarded), applied, nil
}

func (s *Skip) Cleanup(constraint *change.Constraint) (change.Seq, error) {
	return s.upstream.Cleanup(constraint)
}

func (s *Skip) Push(c change.Change) error {
	switch c.Kind {
	case change.KindAdd:
		return s.handleAdd(c.Node)
	case change.KindRemove:
		return s.handleRemove(c.Node)
	case change.KindEdit:
		return s.handleEdit(c)
	case change.KindChild:
		return s.output.Push(c)
	default:
		return errors.Errorf("skip: unknown change kind %v", c.Kind)
	}
}

func (s *Skip) handleAdd(node change.Node) error {
	if s.skipped.Len() < s.n {
		s.skipped.Set(node.Row)
		return node.Close()
	}
	maxRow, _ := s.skipped.Max()
	if s.order.Compare(node.Row, maxRow) < 0 {
		s.skipped.Delete(maxRow)
		s.skipped.Set(node.Row)
		if err := node.Close(); err != nil {
			return err
		}
		return s.output.Push(change.Add(change.Node{Row: maxRow, Relationships: map[string]change.Seq{}}))
	}
	return s.output.Push(change.Add(node))
}

func (s *Skip) handleRemove(node change.Node) error {
	if !s.skipped.Has(node.Row) {
		return s.output.Push(change.Remove(node))
	}
	s.skipped.Delete(node.Row)
	if err := node.Close(); err != nil {
		return err
	}
	refilled, ok, err := s.skipped.refill(s.upstream)
	if err != nil {
		return err
	}
	if ok {
		return s.output.Push(change.Remove(change.Node{Row: refilled, Relationships: map[string]change.Seq{}}))
	}
	return nil
}

func (s *Skip) handleEdit(c change.Change) error {
	oldKey := s.order.Key(c.OldRow)
	newKey := s.order.Key(c.Row)
	if oldKey.Equal(newKey) {
		if s.skipped.Has(c.OldRow) {
			s.skipped.Delete(c.OldRow)
			s.skipped.Set(c.Row)
			return nil
		}
		return s.output.Push(c)
	}
	if err := s.handleRemove(change.Node{Row: c.OldRow, Relationships: map[string]change.Seq{}}); err != nil {
		return err
	}
	return s.handleAdd(change.Node{Row: c.Row, Relationships: map[string]change.Seq{}})
}
