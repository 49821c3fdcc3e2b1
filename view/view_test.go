package view_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/op"
	"github.com/orbitflow/ivmcore/row"
	"github.com/orbitflow/ivmcore/source"
	"github.com/orbitflow/ivmcore/view"
)

func mustRow(t *testing.T, cols map[string]row.Value) row.Row {
	t.Helper()
	r, err := row.New(cols)
	require.NoError(t, err)
	return r
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

func TestViewHydrateOrdersByKey(t *testing.T) {
	src := newIssuesSource(t)
	conn, err := src.Connect(row.Ordering{{Column: "id"}})
	require.NoError(t, err)
	require.NoError(t, src.Push(change.SourceChangeAdd(mustRow(t, map[string]row.Value{"id": row.String("b"), "status": row.String("open")}))))
	require.NoError(t, src.Push(change.SourceChangeAdd(mustRow(t, map[string]row.Value{"id": row.String("a"), "status": row.String("open")}))))

	v := view.NewView(conn, row.Ordering{{Column: "id"}}, false, nil)
	require.NoError(t, v.Hydrate())

	var snap []view.Snapshot
	v.AddListener(func(s []view.Snapshot) { snap = s })
	v.Flush()

	require.Len(t, snap, 2)
	require.Equal(t, "a", snap[0].Row.Get("id").Str)
	require.Equal(t, "b", snap[1].Row.Get("id").Str)
}

func TestViewPushAddInsertsInOrder(t *testing.T) {
	src := newIssuesSource(t)
	conn, err := src.Connect(row.Ordering{{Column: "id"}})
	require.NoError(t, err)

	v := view.NewView(conn, row.Ordering{{Column: "id"}}, false, nil)
	require.NoError(t, v.Hydrate())

	require.NoError(t, src.Push(change.SourceChangeAdd(mustRow(t, map[string]row.Value{"id": row.String("b"), "status": row.String("open")}))))
	require.NoError(t, src.Push(change.SourceChangeAdd(mustRow(t, map[string]row.Value{"id": row.String("a"), "status": row.String("open")}))))

	var snap []view.Snapshot
	v.AddListener(func(s []view.Snapshot) { snap = s })
	v.Flush()

	require.Len(t, snap, 2)
	require.Equal(t, "a", snap[0].Row.Get("id").Str)
	require.Equal(t, "b", snap[1].Row.Get("id").Str)
}

func TestViewPushRemoveSplicesOut(t *testing.T) {
	src := newIssuesSource(t)
	conn, err := src.Connect(row.Ordering{{Column: "id"}})
	require.NoError(t, err)
	v := view.NewView(conn, row.Ordering{{Column: "id"}}, false, nil)
	require.NoError(t, v.Hydrate())

	a := mustRow(t, map[string]row.Value{"id": row.String("a"), "status": row.String("open")})
	require.NoError(t, src.Push(change.SourceChangeAdd(a)))
	require.NoError(t, src.Push(change.SourceChangeRemove(a)))

	var snap []view.Snapshot
	v.AddListener(func(s []view.Snapshot) { snap = s })
	v.Flush()
	require.Empty(t, snap)
}

func TestViewFlushOnlyNotifiesWhenDirty(t *testing.T) {
	src := newIssuesSource(t)
	conn, err := src.Connect(row.Ordering{{Column: "id"}})
	require.NoError(t, err)
	v := view.NewView(conn, row.Ordering{{Column: "id"}}, false, nil)
	require.NoError(t, v.Hydrate())

	calls := 0
	v.AddListener(func([]view.Snapshot) { calls++ })
	v.Flush()
	require.Equal(t, 1, calls) // hydrate dirtied it once

	v.Flush()
	require.Equal(t, 1, calls, "a second flush with no intervening push must not notify again")
}

func TestViewSingularRejectsSecondAdd(t *testing.T) {
	src := newIssuesSource(t)
	conn, err := src.Connect(row.Ordering{{Column: "id"}})
	require.NoError(t, err)
	v := view.NewView(conn, row.Ordering{{Column: "id"}}, true, nil)
	require.NoError(t, v.Hydrate())

	require.NoError(t, src.Push(change.SourceChangeAdd(mustRow(t, map[string]row.Value{"id": row.String("a"), "status": row.String("open")}))))

	require.Panics(t, func() {
		_ = src.Push(change.SourceChangeAdd(mustRow(t, map[string]row.Value{"id": row.String("b"), "status": row.String("open")})))
	})
}

func TestViewChildChangeUpdatesNestedRelationship(t *testing.T) {
	issueSrc := newIssuesSource(t)
	commentSrc, err := source.NewSource(source.Schema{
		Name: "comments",
		Columns: map[string]source.Column{
			"id":      {Type: source.ColumnString},
			"issueId": {Type: source.ColumnString},
		},
		PrimaryKey: row.PrimaryKey{"id"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = commentSrc.Close() })

	issueConn, err := issueSrc.Connect(row.Ordering{{Column: "id"}})
	require.NoError(t, err)
	commentConn, err := commentSrc.Connect(row.Ordering{{Column: "id"}})
	require.NoError(t, err)

	j := op.NewJoin(issueConn, "id", commentConn, "issueId", "comments", false)

	v := view.NewView(j, row.Ordering{{Column: "id"}}, false, map[string]*view.RelationshipSpec{
		"comments": {Ordering: row.Ordering{{Column: "id"}}},
	})
	require.NoError(t, v.Hydrate())

	require.NoError(t, issueSrc.Push(change.SourceChangeAdd(mustRow(t, map[string]row.Value{"id": row.String("i1"), "status": row.String("open")}))))
	require.NoError(t, commentSrc.Push(change.SourceChangeAdd(mustRow(t, map[string]row.Value{"id": row.String("c1"), "issueId": row.String("i1")}))))

	var snap []view.Snapshot
	v.AddListener(func(s []view.Snapshot) { snap = s })
	v.Flush()

	require.Len(t, snap, 1)
	require.Len(t, snap[0].Relationships["comments"], 1)
	require.Equal(t, "c1", snap[0].Relationships["comments"][0].Row.Get("id").Str)
}
