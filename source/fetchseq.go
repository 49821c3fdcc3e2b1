package source

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/row"
)

// fetchSeq is the lazy, single-consumer sequence returned by a source
// connection's Fetch/Cleanup: it walks one ordering index's badger
// keyspace in ascending byte order (which matches the declared ordering,
// §4.1's invariant), resolving each entry to its authoritative row and
// applying the constraint/filters lazily, one Next() call at a time.
type fetchSeq struct {
	tx         *badger.Txn
	it         *badger.Iterator
	prefix     []byte
	constraint *change.Constraint
	filters    []change.OptionalFilter
	lookupRow  func([]byte) (row.Row, error)

	started bool
	closed  bool
}

func (f *fetchSeq) Next() (change.Node, error) {
	if f.closed {
		return change.Node{}, change.ErrEndOfSequence
	}
	if !f.started {
		f.it.Seek(f.prefix)
		f.started = true
	}
	for f.it.ValidForPrefix(f.prefix) {
		item := f.it.Item()
		pkBytes, err := item.ValueCopy(nil)
		if err != nil {
			return change.Node{}, err
		}
		f.it.Next()

		r, err := f.lookupRow(pkBytes)
		if err != nil {
			return change.Node{}, err
		}
		if f.constraint != nil && !f.constraint.Matches(r) {
			continue
		}
		matched := true
		for _, filter := range f.filters {
			if !filter.Matches(r) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		return change.Node{Row: r, Relationships: map[string]change.Seq{}}, nil
	}
	_ = f.Close()
	return change.Node{}, change.ErrEndOfSequence
}

func (f *fetchSeq) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.it.Close()
	f.tx.Discard()
	return nil
}
