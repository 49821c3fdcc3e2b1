package op_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/op"
	"github.com/orbitflow/ivmcore/row"
	"github.com/orbitflow/ivmcore/source"
)

func openIssuesFilter(t *testing.T) (src *source.Source, f *op.Filter, out *recordingOutput) {
	t.Helper()
	src = newIssuesSource(t)
	conn, err := src.Connect(row.Ordering{{Column: "id"}})
	require.NoError(t, err)
	f = op.NewFilter(conn, func(r row.Row) bool {
		return r.Get("status").Str == "open"
	})
	out = &recordingOutput{}
	f.SetOutput(out)
	return src, f, out
}

func TestFilterPassesMatchingAdd(t *testing.T) {
	src, _, out := openIssuesFilter(t)
	i1 := mustRow(t, map[string]row.Value{"id": row.String("i1"), "status": row.String("open")})
	require.NoError(t, src.Push(change.SourceChangeAdd(i1)))

	require.Len(t, out.changes, 1)
	require.Equal(t, change.KindAdd, out.changes[0].Kind)
}

func TestFilterDropsNonMatchingAdd(t *testing.T) {
	src, _, out := openIssuesFilter(t)
	i1 := mustRow(t, map[string]row.Value{"id": row.String("i1"), "status": row.String("closed")})
	require.NoError(t, src.Push(change.SourceChangeAdd(i1)))

	require.Empty(t, out.changes)
}

func TestFilterEditTransitionsEmitAddOrRemove(t *testing.T) {
	src, _, out := openIssuesFilter(t)
	i1 := mustRow(t, map[string]row.Value{"id": row.String("i1"), "status": row.String("closed")})
	require.NoError(t, src.Push(change.SourceChangeAdd(i1)))
	require.Empty(t, out.changes)

	opened := mustRow(t, map[string]row.Value{"id": row.String("i1"), "status": row.String("open")})
	require.NoError(t, src.Push(change.SourceChangeEdit(i1, opened)))
	require.Len(t, out.changes, 1)
	require.Equal(t, change.KindAdd, out.changes[0].Kind)

	closed := mustRow(t, map[string]row.Value{"id": row.String("i1"), "status": row.String("closed")})
	require.NoError(t, src.Push(change.SourceChangeEdit(opened, closed)))
	require.Len(t, out.changes, 2)
	require.Equal(t, change.KindRemove, out.changes[1].Kind)
}

func TestFilterEditBothMatchingForwardsEdit(t *testing.T) {
	src, _, out := openIssuesFilter(t)
	i1 := mustRow(t, map[string]row.Value{"id": row.String("i1"), "status": row.String("open")})
	require.NoError(t, src.Push(change.SourceChangeAdd(i1)))

	i1b := mustRow(t, map[string]row.Value{"id": row.String("i1"), "status": row.String("open")})
	require.NoError(t, src.Push(change.SourceChangeEdit(i1, i1b)))

	require.Len(t, out.changes, 2)
	require.Equal(t, change.KindEdit, out.changes[1].Kind)
}

func TestFilterFetchAppliesPredicate(t *testing.T) {
	src, f, _ := openIssuesFilter(t)
	require.NoError(t, src.Push(change.SourceChangeAdd(mustRow(t, map[string]row.Value{"id": row.String("i1"), "status": row.String("open")}))))
	require.NoError(t, src.Push(change.SourceChangeAdd(mustRow(t, map[string]row.Value{"id": row.String("i2"), "status": row.String("closed")}))))

	seq, _, err := f.Fetch(nil)
	require.NoError(t, err)
	rows := drainRows(t, seq)
	require.Len(t, rows, 1)
	require.Equal(t, "i1", rows[0].Get("id").Str)
}
