// Package ivm wires sources, operators, and views into a runnable
// pipeline; it is the package a caller actually imports, matching the
// teacher's top-level cmd/root.go role of assembling physical plans from
// smaller pieces rather than exposing the pieces directly.
package ivm

import (
	"log"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"

	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/op"
	"github.com/orbitflow/ivmcore/row"
	"github.com/orbitflow/ivmcore/source"
	"github.com/orbitflow/ivmcore/view"
	"github.com/orbitflow/ivmcore/wire"
)

// BuildOptions configures the storage a Source is built on (§ AMBIENT
// Configuration). There is no external config file format: the core has
// no outer deployment surface, so BuildOptions is a plain Go struct
// passed at construction rather than parsed from a file.
type BuildOptions struct {
	// InMemory records whether the source's badger store is in-memory.
	// The core never needs durability across process restarts (§1
	// Non-goals), so this defaults to true. NewSource only reports it in
	// its log line; source.NewSource always opens badger in-memory
	// whatever this field says.
	InMemory bool
}

// DefaultBuildOptions returns the options every NewSource call uses
// unless the caller overrides them.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{InMemory: true}
}

// NewSource constructs a row source from schema, logging its assigned
// ID the way the teacher logs a materialized operator's ID at
// construction (execution/nodes/limit.go's ulid.MustNew).
//
// opts is accepted for forward compatibility with non-in-memory storage;
// source.NewSource itself always opens badger in-memory (§4.1), so opts
// is not yet threaded further than this log line.
func NewSource(schema source.Schema, opts BuildOptions) (*source.Source, error) {
	id := ulid.Make().String()
	src, err := source.NewSource(schema)
	if err != nil {
		return nil, errors.Wrapf(err, "ivm: building source %q", schema.Name)
	}
	log.Printf("ivm: source %q ready (id=%s, inMemory=%v)", schema.Name, id, opts.InMemory)
	return src, nil
}

// Pipeline is a named, assembled operator chain terminating in a View,
// with its own opaque ID for logging and for correlating replayed
// fixtures to the view they fed (§6 "operator/connection/snapshot IDs").
type Pipeline struct {
	ID   string
	View *view.View
	enc  *wire.Encoder
}

// NewPipeline wraps a constructed View, assigning it an opaque ID. Call
// Hydrate on the returned Pipeline (not directly on the View) so the
// hydrate is logged consistently with every other lifecycle event.
func NewPipeline(v *view.View) *Pipeline {
	return &Pipeline{ID: ulid.Make().String(), View: v}
}

// AttachEncoder wires enc so every Flush also serializes the batch to
// enc's writer in the §6 wire shape (§4.6 "View optionally attaches a
// wire.Encoder").
func (p *Pipeline) AttachEncoder(enc *wire.Encoder) {
	p.enc = enc
	p.View.AddListener(func(snap []view.Snapshot) {
		if p.enc == nil {
			return
		}
		if err := p.enc.EncodeBatch(snapshotChanges(snap)); err != nil {
			log.Printf("ivm: pipeline %s: couldn't encode snapshot: %v", p.ID, err)
		}
	})
}

// Hydrate performs the view's initial fetch, logging the pipeline's ID.
func (p *Pipeline) Hydrate() error {
	if err := p.View.Hydrate(); err != nil {
		return errors.Wrapf(err, "ivm: pipeline %s: hydrate", p.ID)
	}
	log.Printf("ivm: pipeline %s hydrated", p.ID)
	return nil
}

// Flush delivers the pipeline's buffered changes to its listeners,
// including any attached wire.Encoder.
func (p *Pipeline) Flush() {
	p.View.Flush()
}

// Destroy detaches the pipeline from its upstream sources.
func (p *Pipeline) Destroy() error {
	return p.View.Destroy()
}

// snapshotChanges re-expresses a flushed Snapshot tree as a flat sequence
// of synthetic add Changes, the shape wire.Encoder expects; a Pipeline's
// encoder mirrors the view's *current materialization* on every flush
// rather than the incremental deltas view.Push saw; replaying the
// resulting stream from empty reproduces the current snapshot.
func snapshotChanges(snap []view.Snapshot) []change.Change {
	out := make([]change.Change, 0, len(snap))
	for _, s := range snap {
		out = append(out, change.Add(snapshotToNode(s)))
	}
	return out
}

func snapshotToNode(s view.Snapshot) change.Node {
	n := change.Node{Row: s.Row}
	if len(s.Relationships) == 0 {
		return n
	}
	n.Relationships = make(map[string]change.Seq, len(s.Relationships))
	for name, children := range s.Relationships {
		nodes := make([]change.Node, 0, len(children))
		for _, c := range children {
			nodes = append(nodes, snapshotToNode(c))
		}
		n.Relationships[name] = change.NewSliceSeq(nodes)
	}
	return n
}

// Connect opens ordering on src and returns the raw op.Input, the entry
// point for building an operator chain (Filter/Take/Skip/Project/Join)
// on top of one source (§4.3).
func Connect(src *source.Source, ordering row.Ordering) (op.Input, error) {
	conn, err := src.Connect(ordering)
	if err != nil {
		return nil, errors.Wrap(err, "ivm: connect")
	}
	return conn, nil
}
