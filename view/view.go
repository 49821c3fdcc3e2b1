// Package view implements the ordered materialized view: the terminal
// consumer of an operator pipeline's change stream, maintaining a mutable
// ordered sequence (or single value, if singular) with nested child
// arrays that mirror the pipeline's relationships (§4.6).
package view

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/op"
	"github.com/orbitflow/ivmcore/row"
)

// RelationshipSpec declares, for one named relationship, the ordering its
// child array is kept in, whether it is singular (length 0 or 1), and the
// specs of relationships nested inside each child — mirroring the nesting
// of Join/Project operators upstream.
type RelationshipSpec struct {
	Ordering      row.Ordering
	Singular      bool
	Relationships map[string]*RelationshipSpec
}

// Snapshot is a deep, read-only copy of one view entry, safe to retain
// and inspect after the View that produced it has moved on (§4.6,
// SPEC_FULL "View.data is exposed as a read-only snapshot").
type Snapshot struct {
	Row           row.Row
	Relationships map[string][]Snapshot
}

// entry is the View's live, mutable representation of one row and its
// nested relationship arrays.
type entry struct {
	row           row.Row
	relationships map[string][]*entry
}

// View consumes a pipeline's final Input/Output and maintains it as a
// mutable ordered sequence with nested child arrays (§4.6).
type View struct {
	upstream      op.Input
	ordering      row.Ordering
	singular      bool
	relationships map[string]*RelationshipSpec

	data      []*entry
	dirty     bool
	listeners []func([]Snapshot)
}

var _ op.Output = (*View)(nil)

// NewView wires a View onto upstream's output. Call Hydrate before using
// the view; NewView alone does not perform the initial fetch.
func NewView(upstream op.Input, ordering row.Ordering, singular bool, relationships map[string]*RelationshipSpec) *View {
	v := &View{
		upstream:      upstream,
		ordering:      ordering,
		singular:      singular,
		relationships: relationships,
	}
	upstream.SetOutput(v)
	return v
}

// Hydrate performs the initial full fetch into the view (§4.6).
func (v *View) Hydrate() error {
	seq, _, err := v.upstream.Fetch(nil)
	if err != nil {
		return errors.Wrap(err, "view: couldn't fetch upstream for hydrate")
	}
	nodes, err := change.Drain(seq)
	if err != nil {
		return errors.Wrap(err, "view: couldn't drain upstream hydrate sequence")
	}
	entries := make([]*entry, 0, len(nodes))
	for _, n := range nodes {
		e, err := materializeNode(n, v.relationships)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}
	if v.singular && len(entries) > 1 {
		return errors.Errorf("view: hydrate produced %d rows for a singular view", len(entries))
	}
	v.data = entries
	v.dirty = true
	return nil
}

// AddListener registers fn to receive the view's current snapshot after
// each Flush (§4.6).
func (v *View) AddListener(fn func([]Snapshot)) {
	v.listeners = append(v.listeners, fn)
}

// Flush delivers the current snapshot to every listener if the view has
// changed since the last flush, batching whatever Pushes arrived in
// between (§4.6).
func (v *View) Flush() {
	if !v.dirty {
		return
	}
	snap := v.snapshot()
	for _, fn := range v.listeners {
		fn(snap)
	}
	v.dirty = false
}

// Destroy detaches the view from upstream (§4.6).
func (v *View) Destroy() error {
	return v.upstream.Destroy()
}

// Push applies one Change to the view (§4.6's algorithm). A Change the
// upstream pipeline should never have produced against this view's
// current state — a missing row on remove/edit/child, or a second value
// arriving for a singular relationship — is an upstream contract breach,
// not a normal error, and is signaled by panicking; harness.Catch is the
// intended recovery boundary at the top of a push cascade.
func (v *View) Push(c change.Change) error {
	return v.apply(&v.data, v.ordering, v.singular, v.relationships, c)
}

func (v *View) apply(entries *[]*entry, ordering row.Ordering, singular bool, specs map[string]*RelationshipSpec, c change.Change) error {
	defer func() { v.dirty = true }()

	switch c.Kind {
	case change.KindAdd:
		return applyAdd(entries, ordering, singular, specs, c.Node)
	case change.KindRemove:
		return applyRemove(entries, ordering, c.Node)
	case change.KindEdit:
		return applyEdit(entries, ordering, c.OldRow, c.Row)
	case change.KindChild:
		return v.applyChild(entries, ordering, specs, c)
	default:
		return errors.Errorf("view: unknown change kind %v", c.Kind)
	}
}

func applyAdd(entries *[]*entry, ordering row.Ordering, singular bool, specs map[string]*RelationshipSpec, node change.Node) error {
	e, err := materializeNode(node, specs)
	if err != nil {
		return err
	}
	if singular {
		if len(*entries) != 0 {
			panic(errors.New("view: singular relationship received a second add"))
		}
		*entries = append(*entries, e)
		return nil
	}
	idx := searchRow(*entries, ordering, e.row)
	*entries = insertEntryAt(*entries, idx, e)
	return nil
}

func applyRemove(entries *[]*entry, ordering row.Ordering, node change.Node) error {
	idx := searchRow(*entries, ordering, node.Row)
	if idx >= len(*entries) || ordering.Compare((*entries)[idx].row, node.Row) != 0 {
		panic(errors.Errorf("view: remove for row not present: %v", node.Row))
	}
	*entries = append((*entries)[:idx], (*entries)[idx+1:]...)
	return node.Close()
}

func applyEdit(entries *[]*entry, ordering row.Ordering, oldRow, newRow row.Row) error {
	idx := searchRow(*entries, ordering, oldRow)
	if idx >= len(*entries) || ordering.Compare((*entries)[idx].row, oldRow) != 0 {
		panic(errors.Errorf("view: edit for row not present: %v", oldRow))
	}
	e := (*entries)[idx]
	if ordering.Key(oldRow).Equal(ordering.Key(newRow)) {
		e.row = newRow
		return nil
	}
	*entries = append((*entries)[:idx], (*entries)[idx+1:]...)
	e.row = newRow
	newIdx := searchRow(*entries, ordering, e.row)
	*entries = insertEntryAt(*entries, newIdx, e)
	return nil
}

func (v *View) applyChild(entries *[]*entry, ordering row.Ordering, specs map[string]*RelationshipSpec, c change.Change) error {
	idx := searchRow(*entries, ordering, c.ParentRow)
	if idx >= len(*entries) || ordering.Compare((*entries)[idx].row, c.ParentRow) != 0 {
		panic(errors.Errorf("view: child change for missing parent: %v", c.ParentRow))
	}
	parent := (*entries)[idx]

	spec := specs[c.RelationshipName]
	var childOrdering row.Ordering
	var childSingular bool
	var childSpecs map[string]*RelationshipSpec
	if spec != nil {
		childOrdering = spec.Ordering
		childSingular = spec.Singular
		childSpecs = spec.Relationships
	}

	children := parent.relationships[c.RelationshipName]
	if err := v.apply(&children, childOrdering, childSingular, childSpecs, *c.Inner); err != nil {
		return err
	}
	parent.relationships[c.RelationshipName] = children
	return nil
}

func materializeNode(n change.Node, specs map[string]*RelationshipSpec) (*entry, error) {
	e := &entry{row: n.Row, relationships: make(map[string][]*entry, len(n.Relationships))}
	for name, seq := range n.Relationships {
		var childSpecs map[string]*RelationshipSpec
		if spec, ok := specs[name]; ok {
			childSpecs = spec.Relationships
		}
		nodes, err := change.Drain(seq)
		if err != nil {
			return nil, err
		}
		children := make([]*entry, 0, len(nodes))
		for _, cn := range nodes {
			ce, err := materializeNode(cn, childSpecs)
			if err != nil {
				return nil, err
			}
			children = append(children, ce)
		}
		e.relationships[name] = children
	}
	return e, nil
}

func searchRow(entries []*entry, ordering row.Ordering, r row.Row) int {
	return sort.Search(len(entries), func(i int) bool {
		return ordering.Compare(entries[i].row, r) >= 0
	})
}

func insertEntryAt(entries []*entry, idx int, e *entry) []*entry {
	entries = append(entries, nil)
	copy(entries[idx+1:], entries[idx:])
	entries[idx] = e
	return entries
}

// snapshot deep-copies the current data into an immutable Snapshot tree.
func (v *View) snapshot() []Snapshot {
	return snapshotEntries(v.data)
}

func snapshotEntries(entries []*entry) []Snapshot {
	out := make([]Snapshot, len(entries))
	for i, e := range entries {
		out[i] = Snapshot{
			Row:           e.row,
			Relationships: make(map[string][]Snapshot, len(e.relationships)),
		}
		for name, children := range e.relationships {
			out[i].Relationships[name] = snapshotEntries(children)
		}
	}
	return out
}
