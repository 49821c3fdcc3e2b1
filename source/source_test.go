package source

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/row"
)

func issuesSchema() Schema {
	return Schema{
		Name: "issues",
		Columns: map[string]Column{
			"id":     {Type: ColumnString},
			"status": {Type: ColumnString},
		},
		PrimaryKey: row.PrimaryKey{"id"},
	}
}

func mustRow(t *testing.T, cols map[string]row.Value) row.Row {
	t.Helper()
	r, err := row.New(cols)
	require.NoError(t, err)
	return r
}

type recordingOutput struct {
	changes []change.Change
}

func (r *recordingOutput) Push(c change.Change) error {
	r.changes = append(r.changes, c)
	return nil
}

func newTestSource(t *testing.T) *Source {
	t.Helper()
	s, err := NewSource(issuesSchema())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSourcePushAddFanOutAndDuplicate(t *testing.T) {
	s := newTestSource(t)

	conn, err := s.Connect(row.Ordering{{Column: "id"}})
	require.NoError(t, err)
	out := &recordingOutput{}
	conn.SetOutput(out)

	i1 := mustRow(t, map[string]row.Value{"id": row.String("i1"), "status": row.String("open")})
	require.NoError(t, s.Push(change.SourceChangeAdd(i1)))

	require.Len(t, out.changes, 1)
	require.Equal(t, change.KindAdd, out.changes[0].Kind)
	require.True(t, out.changes[0].Node.Row.Equal(i1))

	err = s.Push(change.SourceChangeAdd(i1))
	require.ErrorIs(t, err, ErrDuplicatePrimaryKey)
	// Failed push must not have re-emitted anything.
	require.Len(t, out.changes, 1)
}

func TestSourcePushRemoveNotFound(t *testing.T) {
	s := newTestSource(t)
	i1 := mustRow(t, map[string]row.Value{"id": row.String("i1"), "status": row.String("open")})

	err := s.Push(change.SourceChangeRemove(i1))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Push(change.SourceChangeAdd(i1)))
	different := mustRow(t, map[string]row.Value{"id": row.String("i1"), "status": row.String("closed")})
	err = s.Push(change.SourceChangeRemove(different))
	require.ErrorIs(t, err, ErrNotFound, "remove must require identical column values, not just matching PK")
}

func TestSourcePushEditInPlace(t *testing.T) {
	s := newTestSource(t)
	conn, err := s.Connect(row.Ordering{{Column: "id"}})
	require.NoError(t, err)
	out := &recordingOutput{}
	conn.SetOutput(out)

	i1 := mustRow(t, map[string]row.Value{"id": row.String("i1"), "status": row.String("open")})
	require.NoError(t, s.Push(change.SourceChangeAdd(i1)))

	updated := mustRow(t, map[string]row.Value{"id": row.String("i1"), "status": row.String("closed")})
	require.NoError(t, s.Push(change.SourceChangeEdit(i1, updated)))

	require.Len(t, out.changes, 2)
	require.Equal(t, change.KindEdit, out.changes[1].Kind)
	require.True(t, out.changes[1].Row.Equal(updated))
}

func TestSourcePushEditDecomposesOnPKChange(t *testing.T) {
	s := newTestSource(t)
	conn, err := s.Connect(row.Ordering{{Column: "id"}})
	require.NoError(t, err)
	out := &recordingOutput{}
	conn.SetOutput(out)

	i1 := mustRow(t, map[string]row.Value{"id": row.String("i1"), "status": row.String("open")})
	require.NoError(t, s.Push(change.SourceChangeAdd(i1)))

	i2 := mustRow(t, map[string]row.Value{"id": row.String("i2"), "status": row.String("open")})
	require.NoError(t, s.Push(change.SourceChangeEdit(i1, i2)))

	require.Len(t, out.changes, 3) // add i1, remove i1, add i2
	require.Equal(t, change.KindRemove, out.changes[1].Kind)
	require.Equal(t, change.KindAdd, out.changes[2].Kind)
	require.True(t, out.changes[2].Node.Row.Equal(i2))
}

func TestSourceFetchOrderingTotalOrder(t *testing.T) {
	s := newTestSource(t)
	conn, err := s.Connect(row.Ordering{{Column: "status"}})
	require.NoError(t, err)

	rows := []row.Row{
		mustRow(t, map[string]row.Value{"id": row.String("i3"), "status": row.String("closed")}),
		mustRow(t, map[string]row.Value{"id": row.String("i1"), "status": row.String("open")}),
		mustRow(t, map[string]row.Value{"id": row.String("i2"), "status": row.String("open")}),
	}
	for _, r := range rows {
		require.NoError(t, s.Push(change.SourceChangeAdd(r)))
	}

	seq, applied, err := conn.Fetch(nil)
	require.NoError(t, err)
	require.NotNil(t, applied)

	nodes, err := change.Drain(seq)
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	// Ordered by status asc, then id asc (normalized PK tie-break).
	require.Equal(t, "closed", nodes[0].Row.Get("status").Str)
	require.Equal(t, "i1", nodes[1].Row.Get("id").Str)
	require.Equal(t, "i2", nodes[2].Row.Get("id").Str)
}

func TestSourceHashIndex(t *testing.T) {
	s := newTestSource(t)

	i1 := mustRow(t, map[string]row.Value{"id": row.String("i1"), "status": row.String("open")})
	i2 := mustRow(t, map[string]row.Value{"id": row.String("i2"), "status": row.String("open")})
	require.NoError(t, s.Push(change.SourceChangeAdd(i1)))

	hi, err := s.GetOrCreateAndMaintainHashIndex("status")
	require.NoError(t, err)

	// Backfilled from existing rows.
	rows, err := hi.Get(row.String("open"))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// Maintained synchronously on subsequent pushes.
	require.NoError(t, s.Push(change.SourceChangeAdd(i2)))
	rows, err = hi.Get(row.String("open"))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	hi2, err := s.GetOrCreateAndMaintainHashIndex("status")
	require.NoError(t, err)
	require.Same(t, hi, hi2, "same instance must be returned for later callers")
}

func TestSourceFetchConstraint(t *testing.T) {
	s := newTestSource(t)
	conn, err := s.Connect(row.Ordering{{Column: "id"}})
	require.NoError(t, err)

	i1 := mustRow(t, map[string]row.Value{"id": row.String("i1"), "status": row.String("open")})
	i2 := mustRow(t, map[string]row.Value{"id": row.String("i2"), "status": row.String("closed")})
	require.NoError(t, s.Push(change.SourceChangeAdd(i1)))
	require.NoError(t, s.Push(change.SourceChangeAdd(i2)))

	c := change.Eq("status", row.String("closed"))
	seq, _, err := conn.Fetch(&c)
	require.NoError(t, err)
	nodes, err := change.Drain(seq)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, "i2", nodes[0].Row.Get("id").Str)
}
