package ivm_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/ivm"
	"github.com/orbitflow/ivmcore/row"
	"github.com/orbitflow/ivmcore/source"
	"github.com/orbitflow/ivmcore/view"
	"github.com/orbitflow/ivmcore/wire"
)

func mustRow(t *testing.T, cols map[string]row.Value) row.Row {
	t.Helper()
	r, err := row.New(cols)
	require.NoError(t, err)
	return r
}

func TestNewSourceBuildsAndConnects(t *testing.T) {
	src, err := ivm.NewSource(source.Schema{
		Name:       "issues",
		Columns:    map[string]source.Column{"id": {Type: source.ColumnString}},
		PrimaryKey: row.PrimaryKey{"id"},
	}, ivm.DefaultBuildOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	conn, err := ivm.Connect(src, row.Ordering{{Column: "id"}})
	require.NoError(t, err)
	require.NotNil(t, conn)
}

func TestPipelineHydrateFlushEncodesSnapshot(t *testing.T) {
	src, err := ivm.NewSource(source.Schema{
		Name:       "issues",
		Columns:    map[string]source.Column{"id": {Type: source.ColumnString}},
		PrimaryKey: row.PrimaryKey{"id"},
	}, ivm.DefaultBuildOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	conn, err := ivm.Connect(src, row.Ordering{{Column: "id"}})
	require.NoError(t, err)

	v := view.NewView(conn, row.Ordering{{Column: "id"}}, false, nil)
	p := ivm.NewPipeline(v)
	require.NotEmpty(t, p.ID)

	var buf bytes.Buffer
	p.AttachEncoder(wire.NewEncoder(&buf))

	require.NoError(t, src.Push(change.SourceChangeAdd(mustRow(t, map[string]row.Value{"id": row.String("i1")}))))
	require.NoError(t, p.Hydrate())
	p.Flush()

	require.NotZero(t, buf.Len())
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded))
	require.Equal(t, "add", decoded["type"])
}
