package change

import "github.com/orbitflow/ivmcore/row"

// Kind is the closed set of Change variants (§3).
type Kind int

const (
	KindAdd Kind = iota
	KindRemove
	KindChild
	KindEdit
)

func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "add"
	case KindRemove:
		return "remove"
	case KindChild:
		return "child"
	case KindEdit:
		return "edit"
	default:
		return "unknown"
	}
}

// Change is a tagged variant describing one delta in the output stream
// (§3). Only the fields relevant to Kind are populated; implementations
// must pattern-match on Kind rather than inspecting fields directly.
type Change struct {
	Kind Kind

	// KindAdd / KindRemove
	Node Node

	// KindEdit
	OldRow row.Row
	Row    row.Row

	// KindChild
	ParentRow        row.Row
	RelationshipName string
	Inner            *Change
}

// Add constructs an add(node) change.
func Add(n Node) Change {
	return Change{Kind: KindAdd, Node: n}
}

// Remove constructs a remove(node) change.
func Remove(n Node) Change {
	return Change{Kind: KindRemove, Node: n}
}

// Edit constructs an edit(oldRow, row) change. Callers must only use this
// when primary-key columns are unchanged between oldRow and row (§3); a
// PK-changing edit must be decomposed into Remove then Add instead.
func Edit(oldRow, newRow row.Row) Change {
	return Change{Kind: KindEdit, OldRow: oldRow, Row: newRow}
}

// Child wraps inner inside the named relationship of parentRow (§3),
// recursively nesting changes for composed joins.
func Child(parentRow row.Row, relationshipName string, inner Change) Change {
	return Change{
		Kind:             KindChild,
		ParentRow:        parentRow,
		RelationshipName: relationshipName,
		Inner:            &inner,
	}
}

// Close releases any lazy Seq still held by this Change (the Node on an
// add/remove, or recursively through a child's inner change), so a
// discarded Change never leaks scratch-backed sequences.
func (c Change) Close() error {
	switch c.Kind {
	case KindAdd, KindRemove:
		return c.Node.Close()
	case KindChild:
		if c.Inner != nil {
			return c.Inner.Close()
		}
	}
	return nil
}

// SourceChangeKind is the closed set of primitive leaf-level changes
// accepted by Source.push (§3).
type SourceChangeKind int

const (
	SourceAdd SourceChangeKind = iota
	SourceRemove
	SourceEdit
)

// SourceChange is the primitive change a caller pushes into a Source.
type SourceChange struct {
	Kind   SourceChangeKind
	Row    row.Row // Add, Remove
	OldRow row.Row // Edit
	NewRow row.Row // Edit
}

func SourceChangeAdd(r row.Row) SourceChange {
	return SourceChange{Kind: SourceAdd, Row: r}
}

func SourceChangeRemove(r row.Row) SourceChange {
	return SourceChange{Kind: SourceRemove, Row: r}
}

func SourceChangeEdit(oldRow, newRow row.Row) SourceChange {
	return SourceChange{Kind: SourceEdit, OldRow: oldRow, NewRow: newRow}
}
