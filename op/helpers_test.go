package op_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/op"
	"github.com/orbitflow/ivmcore/row"
	"github.com/orbitflow/ivmcore/source"
)

func mustRow(t *testing.T, cols map[string]row.Value) row.Row {
	t.Helper()
	r, err := row.New(cols)
	require.NoError(t, err)
	return r
}

// recordingOutput implements op.Output and records every Change it sees,
// mirroring the teacher's InMemoryStream-as-expectation style but for a
// push-based pipeline rather than a pull-based one.
type recordingOutput struct {
	changes []change.Change
}

func (r *recordingOutput) Push(c change.Change) error {
	r.changes = append(r.changes, c)
	return nil
}

func newIssuesSource(t *testing.T) *source.Source {
	t.Helper()
	s, err := source.NewSource(source.Schema{
		Name: "issues",
		Columns: map[string]source.Column{
			"id":     {Type: source.ColumnString},
			"status": {Type: source.ColumnString},
		},
		PrimaryKey: row.PrimaryKey{"id"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newCommentsSource(t *testing.T) *source.Source {
	t.Helper()
	s, err := source.NewSource(source.Schema{
		Name: "comments",
		Columns: map[string]source.Column{
			"id":      {Type: source.ColumnString},
			"issueId": {Type: source.ColumnString},
			"body":    {Type: source.ColumnString},
		},
		PrimaryKey: row.PrimaryKey{"id"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRevisionsSource(t *testing.T) *source.Source {
	t.Helper()
	s, err := source.NewSource(source.Schema{
		Name: "revisions",
		Columns: map[string]source.Column{
			"id":        {Type: source.ColumnString},
			"commentId": {Type: source.ColumnString},
		},
		PrimaryKey: row.PrimaryKey{"id"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func drainRows(t *testing.T, seq change.Seq) []row.Row {
	t.Helper()
	nodes, err := change.Drain(seq)
	require.NoError(t, err)
	out := make([]row.Row, len(nodes))
	for i, n := range nodes {
		out[i] = n.Row
		require.NoError(t, n.Close())
	}
	return out
}

var _ op.Output = (*recordingOutput)(nil)
