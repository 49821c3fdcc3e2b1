package op_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/op"
	"github.com/orbitflow/ivmcore/row"
)

func TestSkipSuppressesFirstN(t *testing.T) {
	src := newIssuesSource(t)
	conn, err := src.Connect(row.Ordering{{Column: "id"}})
	require.NoError(t, err)
	skip := op.NewSkip(conn, 1)
	out := &recordingOutput{}
	skip.SetOutput(out)

	require.NoError(t, src.Push(change.SourceChangeAdd(issueRow(t, "a"))))
	require.Empty(t, out.changes, "\"a\" is the single skipped row")

	require.NoError(t, src.Push(change.SourceChangeAdd(issueRow(t, "b"))))
	require.Len(t, out.changes, 1)
	require.Equal(t, "b", out.changes[0].Node.Row.Get("id").Str)

	// "0" sorts before "a", bumping "a" out of the skip set and forward.
	require.NoError(t, src.Push(change.SourceChangeAdd(issueRow(t, "0"))))
	require.Len(t, out.changes, 2)
	require.Equal(t, change.KindAdd, out.changes[1].Kind)
	require.Equal(t, "a", out.changes[1].Node.Row.Get("id").Str)
}

func TestSkipRemoveFromSkipSetRefills(t *testing.T) {
	src := newIssuesSource(t)
	conn, err := src.Connect(row.Ordering{{Column: "id"}})
	require.NoError(t, err)
	skip := op.NewSkip(conn, 1)
	out := &recordingOutput{}
	skip.SetOutput(out)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, src.Push(change.SourceChangeAdd(issueRow(t, id))))
	}
	require.Len(t, out.changes, 2) // b, c forwarded; a skipped

	require.NoError(t, src.Push(change.SourceChangeRemove(issueRow(t, "a"))))
	// "b" now enters the skip set, so it must be suppressed from the forwarded stream.
	require.Len(t, out.changes, 3)
	require.Equal(t, change.KindRemove, out.changes[2].Kind)
	require.Equal(t, "b", out.changes[2].Node.Row.Get("id").Str)
}

func TestSkipFetchForwardsRemainder(t *testing.T) {
	src := newIssuesSource(t)
	conn, err := src.Connect(row.Ordering{{Column: "id"}})
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, src.Push(change.SourceChangeAdd(issueRow(t, id))))
	}

	skip := op.NewSkip(conn, 1)
	seq, _, err := skip.Fetch(nil)
	require.NoError(t, err)
	rows := drainRows(t, seq)
	require.Len(t, rows, 2)
	require.Equal(t, "b", rows[0].Get("id").Str)
	require.Equal(t, "c", rows[1].Get("id").Str)
}
