package op

import (
	"github.com/pkg/errors"

	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/row"
)

// Take forwards only the first n rows of upstream's ordering, maintaining
// that boundary incrementally: an add past the boundary is dropped, an
// add ahead of it evicts the current last member, and a remove inside
// the window triggers a bounded refill scan (§4.5, DESIGN.md "Take/Skip
// refill strategy").
type Take struct {
	upstream Input
	n        int
	order    row.Ordering
	window   *window
	output   Output
}

func NewTake(upstream Input, n int) *Take {
	t := &Take{
		upstream: upstream,
		n:        n,
		order:    upstream.Ordering(),
		window:   newWindow(upstream.Ordering(), n),
	}
	upstream.SetOutput(t)
	return t
}

func (t *Take) Ordering() row.Ordering { return t.order }

func (t *Take) SetOutput(out Output) { t.output = out }

func (t *Take) Destroy() error { return t.upstream.Destroy() }

// Fetch returns the first n matching rows and, for an unconstrained
// top-level fetch, resets the window to match. NewTake starts with an
// empty window; this first unconstrained Fetch is what hydrates it.
func (t *Take) Fetch(constraint *change.Constraint, filters ...change.OptionalFilter) (change.Seq, change.AppliedFilters, error) {
	seq, applied, err := t.upstream.Fetch(constraint, filters...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "take: couldn't fetch upstream")
	}

	var nodes []change.Node
	for len(nodes) < t.n {
		node, err := seq.Next()
		if err == change.ErrEndOfSequence {
			break
		}
		if err != nil {
			_ = seq.Close()
			return nil, nil, err
		}
		nodes = append(nodes, node)
	}
	if err := seq.Close(); err != nil {
		return nil, nil, err
	}

	if constraint == nil {
		rows := make([]row.Row, len(nodes))
		for i, n := range nodes {
			rows[i] = n.Row
		}
		t.window.reset(rows)
	}
	return change.NewSliceSeq(nodes), applied, nil
}

func (t *Take) Cleanup(constraint *change.Constraint) (change.Seq, error) {
	return t.upstream.Cleanup(constraint)
}

func (t *Take) Push(c change.Change) error {
	switch c.Kind {
	case change.KindAdd:
		return t.handleAdd(c.Node)
	case change.KindRemove:
		return t.handleRemove(c.Node)
	case change.KindEdit:
		return t.handleEdit(c)
	case change.KindChild:
		return t.output.Push(c)
	default:
		return errors.Errorf("take: unknown change kind %v", c.Kind)
	}
}

func (t *Take) handleAdd(node change.Node) error {
	if t.window.Len() < t.n {
		t.window.Set(node.Row)
		return t.output.Push(change.Add(node))
	}
	maxRow, _ := t.window.Max()
	if t.order.Compare(node.Row, maxRow) < 0 {
		t.window.Delete(maxRow)
		t.window.Set(node.Row)
		if err := t.output.Push(change.Add(node)); err != nil {
			return err
		}
		return t.output.Push(change.Remove(change.Node{Row: maxRow, Relationships: map[string]change.Seq{}}))
	}
	return node.Close()
}

func (t *Take) handleRemove(node change.Node) error {
	if !t.window.Has(node.Row) {
		return node.Close()
	}
	t.window.Delete(node.Row)
	if err := t.output.Push(change.Remove(node)); err != nil {
		return err
	}
	if t.window.Len() < t.n {
		refilled, ok, err := t.window.refill(t.upstream)
		if err != nil {
			return err
		}
		if ok {
			return t.output.Push(change.Add(change.Node{Row: refilled, Relationships: map[string]change.Seq{}}))
		}
	}
	return nil
}

func (t *Take) handleEdit(c change.Change) error {
	oldKey := t.order.Key(c.OldRow)
	newKey := t.order.Key(c.Row)
	if oldKey.Equal(newKey) {
		if !t.window.Has(c.OldRow) {
			return nil
		}
		t.window.Delete(c.OldRow)
		t.window.Set(c.Row)
		return t.output.Push(c)
	}
	if err := t.handleRemove(change.Node{Row: c.OldRow, Relationships: map[string]change.Seq{}}); err != nil {
		return err
	}
	return t.handleAdd(change.Node{Row: c.Row, Relationships: map[string]change.Seq{}})
}
