// Package change defines the Node, Change, SourceChange and Constraint
// types that flow between row sources, operators, and the materialized
// view (§3).
package change

import (
	"io"

	"github.com/pkg/errors"

	"github.com/orbitflow/ivmcore/row"
)

// ErrEndOfSequence is returned by Seq.Next once a sequence is exhausted,
// mirroring the teacher's RecordStream.Next/ErrEndOfStream contract.
var ErrEndOfSequence = errors.New("end of sequence")

// ErrLazySequenceAbandoned is a programming error: a caller dropped a Seq
// without draining it or calling Close (§7, §9).
var ErrLazySequenceAbandoned = errors.New("lazy sequence abandoned without drain or cleanup")

// Seq is a single-consumer, single-pass lazy pull iterator over Nodes
// (§4.3, §9). Callers must either drain it to ErrEndOfSequence or call
// Close before the next push; Seq is not safe for concurrent use.
type Seq interface {
	// Next returns the next Node, or ErrEndOfSequence once exhausted.
	Next() (Node, error)
	io.Closer
}

// Node is the unit of output: a row plus its named lazy relationships to
// other nodes (§3). Relationship sequences are lazy and consumed at most
// once per fetch.
type Node struct {
	Row           row.Row
	Relationships map[string]Seq
}

// WithoutRelationship returns a copy of n with relName removed from the
// relationships map, closing its Seq first if present (used by nested
// projection / relationship hiding, §4.5).
func (n Node) WithoutRelationship(relName string) Node {
	out := Node{Row: n.Row, Relationships: make(map[string]Seq, len(n.Relationships))}
	for k, v := range n.Relationships {
		if k == relName {
			_ = v.Close()
			continue
		}
		out.Relationships[k] = v
	}
	return out
}

// Close drains and closes every relationship Seq still attached to n,
// used when a Node is discarded without its relationships being consumed
// by a caller (e.g. a join emitting a parent row whose child relationship
// nobody materializes further).
func (n Node) Close() error {
	var firstErr error
	for _, seq := range n.Relationships {
		if err := seq.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SliceSeq adapts a pre-materialized slice of Nodes into a Seq, used by
// sources and for test fixtures.
type SliceSeq struct {
	nodes []Node
	pos   int
	done  bool
}

func NewSliceSeq(nodes []Node) *SliceSeq {
	return &SliceSeq{nodes: nodes}
}

func (s *SliceSeq) Next() (Node, error) {
	if s.pos >= len(s.nodes) {
		return Node{}, ErrEndOfSequence
	}
	n := s.nodes[s.pos]
	s.pos++
	return n, nil
}

func (s *SliceSeq) Close() error {
	for s.pos < len(s.nodes) {
		if err := s.nodes[s.pos].Close(); err != nil {
			return err
		}
		s.pos++
	}
	s.done = true
	return nil
}

// Drain fully consumes seq and returns every Node it produced, closing it
// on completion. Used by tests and by the materialized view's hydrate.
func Drain(seq Seq) ([]Node, error) {
	var out []Node
	for {
		n, err := seq.Next()
		if err == ErrEndOfSequence {
			return out, seq.Close()
		}
		if err != nil {
			_ = seq.Close()
			return nil, err
		}
		out = append(out, n)
	}
}
