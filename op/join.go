package op

import (
	"github.com/pkg/errors"

	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/row"
	"github.com/orbitflow/ivmcore/scratch"
)

// joinScratchKey identifies one (childJoinValue, parent) pairing the join
// currently has live. parentID is the parent's normalized ordering key,
// which always includes the parent's primary key columns and so
// uniquely identifies the parent row.
type joinScratchKey struct {
	childValue row.Value
	parentID   row.Tuple
}

func lessJoinScratchKey(a, b joinScratchKey) bool {
	if c := a.childValue.Compare(b.childValue); c != 0 {
		return c < 0
	}
	return a.parentID.Compare(b.parentID) < 0
}

// Join composes parent rows with a lazily-fetched sequence of matching
// child nodes under relationshipName, maintained incrementally from both
// the parent and child side (§4.4). Orientation (one-to-many vs
// many-to-one) is a property of the data, not of construction.
type Join struct {
	parent           Input
	parentKey        string
	child            Input
	childKey         string
	relationshipName string
	hidden           bool

	output  Output
	present *scratch.Store[joinScratchKey, bool]

	// childFilter/parentFilter are optional pushed-down filters combined
	// with the key equality via Constraint.And whenever the join
	// re-fetches matching children or parents (§ SUPPLEMENT
	// constraint.And), set with SetChildFilter/SetParentFilter.
	childFilter  *change.Constraint
	parentFilter *change.Constraint
}

func NewJoin(parent Input, parentKey string, child Input, childKey string, relationshipName string, hidden bool) *Join {
	j := &Join{
		parent:           parent,
		parentKey:        parentKey,
		child:            child,
		childKey:         childKey,
		relationshipName: relationshipName,
		hidden:           hidden,
		present:          scratch.New[joinScratchKey, bool](lessJoinScratchKey),
	}
	parent.SetOutput(joinParentOutput{j})
	child.SetOutput(joinChildOutput{j})
	return j
}

func (j *Join) Ordering() row.Ordering { return j.parent.Ordering() }

func (j *Join) SetOutput(out Output) { j.output = out }

func (j *Join) Destroy() error {
	if err := j.child.Destroy(); err != nil {
		return err
	}
	return j.parent.Destroy()
}

func (j *Join) parentID(r row.Row) row.Tuple { return j.parent.Ordering().Key(r) }

// SetChildFilter attaches a pushed-down filter combined with the child
// key equality (via Constraint.And) on every subsequent child fetch.
func (j *Join) SetChildFilter(c change.Constraint) { j.childFilter = &c }

// SetParentFilter attaches a pushed-down filter combined with the
// parent key equality (via Constraint.And) on every subsequent parent
// fetch triggered by a child-side change.
func (j *Join) SetParentFilter(c change.Constraint) { j.parentFilter = &c }

func (j *Join) childConstraint(childVal row.Value) change.Constraint {
	c := change.Eq(j.childKey, childVal)
	if j.childFilter != nil {
		c = c.And(*j.childFilter)
	}
	return c
}

func (j *Join) parentConstraint(joinVal row.Value) change.Constraint {
	c := change.Eq(j.parentKey, joinVal)
	if j.parentFilter != nil {
		c = c.And(*j.parentFilter)
	}
	return c
}

func (j *Join) composeParent(pnode change.Node) (change.Node, error) {
	childVal := pnode.Row.Get(j.parentKey)
	constraint := j.childConstraint(childVal)
	childSeq, _, err := j.child.Fetch(&constraint)
	if err != nil {
		return change.Node{}, errors.Wrap(err, "join: couldn't fetch matching children")
	}
	j.present.Set(joinScratchKey{childValue: childVal, parentID: j.parentID(pnode.Row)}, true)

	out := change.Node{Row: pnode.Row, Relationships: make(map[string]change.Seq, len(pnode.Relationships)+1)}
	for name, seq := range pnode.Relationships {
		out.Relationships[name] = seq
	}
	if j.hidden {
		if err := childSeq.Close(); err != nil {
			return change.Node{}, err
		}
	} else {
		out.Relationships[j.relationshipName] = childSeq
	}
	return out, nil
}

func (j *Join) Fetch(constraint *change.Constraint, filters ...change.OptionalFilter) (change.Seq, change.AppliedFilters, error) {
	parentSeq, applied, err := j.parent.Fetch(constraint, filters...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "join: couldn't fetch parent")
	}
	return &joinFetchSeq{j: j, parentSeq: parentSeq, cleanup: false}, applied, nil
}

func (j *Join) Cleanup(constraint *change.Constraint) (change.Seq, error) {
	parentSeq, err := j.parent.Cleanup(constraint)
	if err != nil {
		return nil, err
	}
	return &joinFetchSeq{j: j, parentSeq: parentSeq, cleanup: true}, nil
}

// joinFetchSeq composes each parent Node with its matching children as it
// is pulled; cleanup controls whether the child side is fetched (add
// scratch) or cleaned up (release scratch).
type joinFetchSeq struct {
	j         *Join
	parentSeq change.Seq
	cleanup   bool
}

func (s *joinFetchSeq) Next() (change.Node, error) {
	pnode, err := s.parentSeq.Next()
	if err != nil {
		return change.Node{}, err
	}
	if !s.cleanup {
		return s.j.composeParent(pnode)
	}
	return s.j.cleanupParent(pnode)
}

func (s *joinFetchSeq) Close() error { return s.parentSeq.Close() }

func (j *Join) cleanupParent(pnode change.Node) (change.Node, error) {
	childVal := pnode.Row.Get(j.parentKey)
	constraint := j.childConstraint(childVal)
	childSeq, err := j.child.Cleanup(&constraint)
	if err != nil {
		return change.Node{}, err
	}
	j.present.Delete(joinScratchKey{childValue: childVal, parentID: j.parentID(pnode.Row)})

	out := change.Node{Row: pnode.Row, Relationships: make(map[string]change.Seq, len(pnode.Relationships)+1)}
	for name, seq := range pnode.Relationships {
		out.Relationships[name] = seq
	}
	if j.hidden {
		if err := childSeq.Close(); err != nil {
			return change.Node{}, err
		}
	} else {
		out.Relationships[j.relationshipName] = childSeq
	}
	return out, nil
}

// joinParentOutput/joinChildOutput disambiguate which side of the join a
// pushed Change arrived from, since Output exposes a single Push method.
type joinParentOutput struct{ j *Join }

func (o joinParentOutput) Push(c change.Change) error { return o.j.pushFromParent(c) }

type joinChildOutput struct{ j *Join }

func (o joinChildOutput) Push(c change.Change) error { return o.j.pushFromChild(c) }

func (j *Join) pushFromParent(c change.Change) error {
	switch c.Kind {
	case change.KindAdd:
		return j.addParent(c.Node)
	case change.KindRemove:
		return j.removeParent(c.Node)
	case change.KindEdit:
		if c.OldRow.Get(j.parentKey).Equal(c.Row.Get(j.parentKey)) {
			return j.output.Push(c)
		}
		if err := j.removeParent(change.Node{Row: c.OldRow, Relationships: map[string]change.Seq{}}); err != nil {
			return err
		}
		return j.addParent(change.Node{Row: c.Row, Relationships: map[string]change.Seq{}})
	case change.KindChild:
		return j.output.Push(c)
	default:
		return errors.Errorf("join: unknown change kind %v", c.Kind)
	}
}

func (j *Join) addParent(node change.Node) error {
	out, err := j.composeParent(node)
	if err != nil {
		return err
	}
	return j.output.Push(change.Add(out))
}

func (j *Join) removeParent(node change.Node) error {
	out, err := j.cleanupParent(node)
	if err != nil {
		return err
	}
	return j.output.Push(change.Remove(out))
}

func (j *Join) pushFromChild(c change.Change) error {
	switch c.Kind {
	case change.KindAdd:
		return j.addChild(c.Node)
	case change.KindRemove:
		return j.removeChild(c.Node)
	case change.KindEdit:
		if c.OldRow.Get(j.childKey).Equal(c.Row.Get(j.childKey)) {
			return j.emitToMatchingParents(c.Row.Get(j.childKey), change.Edit(c.OldRow, c.Row))
		}
		return j.editChildKeyChanged(c.OldRow, c.Row)
	case change.KindChild:
		return j.emitToMatchingParents(c.ParentRow.Get(j.childKey), c)
	default:
		return errors.Errorf("join: unknown change kind %v", c.Kind)
	}
}

// matchingParents returns the bare rows of every parent currently
// matching joinVal. Any relationships the parent Input attaches while
// fetching are discarded — callers only need the row for routing, since
// Change.ParentRow carries a plain row.Row.
func (j *Join) matchingParents(joinVal row.Value) ([]row.Row, error) {
	constraint := j.parentConstraint(joinVal)
	seq, _, err := j.parent.Fetch(&constraint)
	if err != nil {
		return nil, err
	}
	nodes, err := change.Drain(seq)
	if err != nil {
		return nil, err
	}
	rows := make([]row.Row, len(nodes))
	for i, n := range nodes {
		rows[i] = n.Row
		if err := n.Close(); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func (j *Join) emitToMatchingParents(joinVal row.Value, inner change.Change) error {
	parents, err := j.matchingParents(joinVal)
	if err != nil {
		return err
	}
	if len(parents) == 0 {
		return inner.Close()
	}
	copies, err := cloneChangeForFanout(inner, len(parents))
	if err != nil {
		return err
	}
	for i, p := range parents {
		if err := j.output.Push(change.Child(p, j.relationshipName, copies[i])); err != nil {
			return err
		}
	}
	return nil
}

func (j *Join) addChild(node change.Node) error {
	return j.emitToMatchingParents(node.Row.Get(j.childKey), change.Add(node))
}

func (j *Join) removeChild(node change.Node) error {
	return j.emitToMatchingParents(node.Row.Get(j.childKey), change.Remove(node))
}

// editChildKeyChanged decomposes a child-side edit that moved join keys
// into an independent remove under the old parents and add under the
// new ones (§4.4: "do not coalesce across parents").
func (j *Join) editChildKeyChanged(oldRow, newRow row.Row) error {
	if err := j.emitToMatchingParents(oldRow.Get(j.childKey), change.Remove(change.Node{Row: oldRow, Relationships: map[string]change.Seq{}})); err != nil {
		return err
	}
	return j.emitToMatchingParents(newRow.Get(j.childKey), change.Add(change.Node{Row: newRow, Relationships: map[string]change.Seq{}}))
}

// cloneNodeForFanout materializes node's relationships once and returns
// copies independent Nodes sharing the same row but each with its own
// replay of the relationship sequences, needed when the same child
// change must be wrapped under more than one matching parent. Grandchild
// nodes nested inside a relationship are shared by reference across
// copies, not themselves re-cloned.
func cloneNodeForFanout(node change.Node, copies int) ([]change.Node, error) {
	if copies <= 1 {
		return []change.Node{node}, nil
	}
	materialized := make(map[string][]change.Node, len(node.Relationships))
	for name, seq := range node.Relationships {
		nodes, err := change.Drain(seq)
		if err != nil {
			return nil, err
		}
		materialized[name] = nodes
	}
	out := make([]change.Node, copies)
	for i := 0; i < copies; i++ {
		rels := make(map[string]change.Seq, len(materialized))
		for name, nodes := range materialized {
			cp := make([]change.Node, len(nodes))
			copy(cp, nodes)
			rels[name] = change.NewSliceSeq(cp)
		}
		out[i] = change.Node{Row: node.Row, Relationships: rels}
	}
	return out, nil
}

// cloneChangeForFanout is cloneNodeForFanout lifted to Change, used when
// a single child-side Change must be re-wrapped under several matching
// parents (§4.4's many-to-many edge case).
func cloneChangeForFanout(c change.Change, copies int) ([]change.Change, error) {
	if copies <= 1 {
		return []change.Change{c}, nil
	}
	switch c.Kind {
	case change.KindAdd:
		nodes, err := cloneNodeForFanout(c.Node, copies)
		if err != nil {
			return nil, err
		}
		out := make([]change.Change, copies)
		for i, n := range nodes {
			out[i] = change.Add(n)
		}
		return out, nil
	case change.KindRemove:
		nodes, err := cloneNodeForFanout(c.Node, copies)
		if err != nil {
			return nil, err
		}
		out := make([]change.Change, copies)
		for i, n := range nodes {
			out[i] = change.Remove(n)
		}
		return out, nil
	case change.KindEdit:
		out := make([]change.Change, copies)
		for i := range out {
			out[i] = c
		}
		return out, nil
	case change.KindChild:
		inners, err := cloneChangeForFanout(*c.Inner, copies)
		if err != nil {
			return nil, err
		}
		out := make([]change.Change, copies)
		for i, inner := range inners {
			out[i] = change.Child(c.ParentRow, c.RelationshipName, inner)
		}
		return out, nil
	default:
		return nil, errors.Errorf("join: cannot fan out change kind %v", c.Kind)
	}
}
