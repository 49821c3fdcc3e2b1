package source

import (
	"fmt"

	"github.com/dgraph-io/badger/v2"
	"github.com/pkg/errors"

	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/op"
	"github.com/orbitflow/ivmcore/row"
)

// orderingIndex is one maintained secondary ordering over a Source's
// rows: a badger keyspace (keyed by orderKeyBytes, valued by the primary
// key's encoding) that multiple connections requesting the same ordering
// share (§4.1: "Multiple connections are independent and may request
// different orderings").
type orderingIndex struct {
	ordering row.Ordering
	prefix   []byte
}

// Source owns the rows of one table and serves ordered, optionally
// filtered scans; it fans changes out to every connected operator in
// connection-registration order (§4.1, §5).
type Source struct {
	schema     Schema
	storage    *Storage
	rowsPrefix []byte

	orderings   map[string]*orderingIndex
	hashIndices map[string]*HashIndex

	conns []*connection
}

// NewSource validates schema and opens a fresh Source backed by its own
// in-memory badger instance.
func NewSource(schema Schema) (*Source, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	storage, err := OpenStorage()
	if err != nil {
		return nil, errors.Wrap(err, "couldn't open source storage")
	}
	return &Source{
		schema:      schema,
		storage:     storage,
		rowsPrefix:  []byte("rows/" + schema.Name + "/"),
		orderings:   make(map[string]*orderingIndex),
		hashIndices: make(map[string]*HashIndex),
	}, nil
}

func (s *Source) Schema() Schema { return s.schema }

func (s *Source) rowKey(pkBytes []byte) []byte {
	return append(append([]byte{}, s.rowsPrefix...), pkBytes...)
}

func orderingSignature(o row.Ordering) string {
	sig := ""
	for _, p := range o {
		dir := "a"
		if p.Desc {
			dir = "d"
		}
		sig += fmt.Sprintf("%s:%s,", p.Column, dir)
	}
	return sig
}

// ensureOrderingIndex returns the orderingIndex for the (already
// normalized) ordering, creating and backfilling it from the current
// authoritative contents if this is the first request for it.
func (s *Source) ensureOrderingIndex(ordering row.Ordering) (*orderingIndex, error) {
	sig := orderingSignature(ordering)
	if idx, ok := s.orderings[sig]; ok {
		return idx, nil
	}

	idx := &orderingIndex{
		ordering: ordering,
		prefix:   []byte("ord/" + s.schema.Name + "/" + sig + "/"),
	}

	tx := s.storage.Tx()
	err := prefixIterate(tx, s.rowsPrefix, func(key, val []byte) (bool, error) {
		r, err := decodeRow(val)
		if err != nil {
			return false, err
		}
		pkBytes := key[len(s.rowsPrefix):]
		if err := tx.Set(append(append([]byte{}, idx.prefix...), orderKeyBytes(ordering, r)...), pkBytes); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		tx.Discard()
		return nil, errors.Wrap(err, "couldn't backfill ordering index")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "couldn't commit ordering index backfill")
	}

	s.orderings[sig] = idx
	return idx, nil
}

// Connect returns an Input producing rows in ordering (normalized with
// the source's primary key), optionally with optionalFilters baked in
// for every Fetch on this connection (§4.1).
func (s *Source) Connect(ordering row.Ordering, filters ...change.OptionalFilter) (op.Input, error) {
	norm := ordering.Normalize(s.schema.PrimaryKey)
	idx, err := s.ensureOrderingIndex(norm)
	if err != nil {
		return nil, err
	}
	c := &connection{source: s, ordering: norm, orderingIdx: idx, filters: filters}
	s.conns = append(s.conns, c)
	return c, nil
}

// GetOrCreateAndMaintainHashIndex lazily builds and incrementally
// maintains a hash index on column, backfilling it from current
// contents. The same instance is returned for later callers (§4.1).
func (s *Source) GetOrCreateAndMaintainHashIndex(column string) (*HashIndex, error) {
	if hi, ok := s.hashIndices[column]; ok {
		return hi, nil
	}
	hi := newHashIndex(s.storage, s.schema.Name, column, s.lookupRowByBytes)

	tx := s.storage.Tx()
	err := prefixIterate(tx, s.rowsPrefix, func(key, val []byte) (bool, error) {
		r, err := decodeRow(val)
		if err != nil {
			return false, err
		}
		pkBytes := key[len(s.rowsPrefix):]
		if err := hi.add(tx, r, pkBytes); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		tx.Discard()
		return nil, errors.Wrap(err, "couldn't backfill hash index")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "couldn't commit hash index backfill")
	}

	s.hashIndices[column] = hi
	return hi, nil
}

func (s *Source) lookupRowByBytes(pkBytes []byte) (row.Row, error) {
	var out row.Row
	err := s.storage.db.View(func(tx *badger.Txn) error {
		raw, err := get(tx, s.rowKey(pkBytes))
		if err != nil {
			return err
		}
		r, err := decodeRow(raw)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

// Push applies sc and fans the derived Change out to every connection,
// in connection-registration order (§4.1, §5).
func (s *Source) Push(sc change.SourceChange) error {
	switch sc.Kind {
	case change.SourceAdd:
		return s.pushAdd(sc.Row)
	case change.SourceRemove:
		return s.pushRemove(sc.Row)
	case change.SourceEdit:
		return s.pushEdit(sc.OldRow, sc.NewRow)
	default:
		return errors.Errorf("unknown source change kind %d", sc.Kind)
	}
}

func (s *Source) pushAdd(r row.Row) error {
	if err := s.schema.checkRow(r); err != nil {
		return errors.Wrap(err, "row does not match schema")
	}
	pkBytes := primaryKeyBytes(s.schema.PrimaryKey, r)

	tx := s.storage.Tx()
	if _, err := get(tx, s.rowKey(pkBytes)); err == nil {
		tx.Discard()
		return ErrDuplicatePrimaryKey
	} else if err != badger.ErrKeyNotFound {
		tx.Discard()
		return errors.Wrap(err, "couldn't check for existing primary key")
	}

	if err := s.writeRow(tx, pkBytes, r); err != nil {
		tx.Discard()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "couldn't commit add")
	}

	return s.fanOut(change.Add(change.Node{Row: r, Relationships: map[string]change.Seq{}}))
}

func (s *Source) pushRemove(r row.Row) error {
	pkBytes := primaryKeyBytes(s.schema.PrimaryKey, r)

	tx := s.storage.Tx()
	raw, err := get(tx, s.rowKey(pkBytes))
	if err == badger.ErrKeyNotFound {
		tx.Discard()
		return ErrNotFound
	} else if err != nil {
		tx.Discard()
		return errors.Wrap(err, "couldn't look up row to remove")
	}
	existing, err := decodeRow(raw)
	if err != nil {
		tx.Discard()
		return err
	}
	if !existing.Equal(r) {
		tx.Discard()
		return ErrNotFound
	}

	if err := s.deleteRow(tx, pkBytes, existing); err != nil {
		tx.Discard()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "couldn't commit remove")
	}

	return s.fanOut(change.Remove(change.Node{Row: existing, Relationships: map[string]change.Seq{}}))
}

func (s *Source) pushEdit(oldRow, newRow row.Row) error {
	oldKey := row.Of(oldRow, s.schema.PrimaryKey)
	newKey := row.Of(newRow, s.schema.PrimaryKey)

	if !oldKey.Equal(newKey) {
		// §3/§9: PK-changing edits are decomposed into remove+add at the
		// source boundary.
		if err := s.pushRemove(oldRow); err != nil {
			return err
		}
		return s.pushAdd(newRow)
	}

	if err := s.schema.checkRow(newRow); err != nil {
		return errors.Wrap(err, "row does not match schema")
	}

	pkBytes := primaryKeyBytes(s.schema.PrimaryKey, oldRow)

	tx := s.storage.Tx()
	raw, err := get(tx, s.rowKey(pkBytes))
	if err == badger.ErrKeyNotFound {
		tx.Discard()
		return ErrNotFound
	} else if err != nil {
		tx.Discard()
		return errors.Wrap(err, "couldn't look up row to edit")
	}
	existing, err := decodeRow(raw)
	if err != nil {
		tx.Discard()
		return err
	}
	if !existing.Equal(oldRow) {
		tx.Discard()
		return ErrPrimaryKeyMismatch
	}

	if err := tx.Set(s.rowKey(pkBytes), encodeRow(newRow)); err != nil {
		tx.Discard()
		return errors.Wrap(err, "couldn't write edited row")
	}
	for _, idx := range s.orderings {
		oldOrderKey := append(append([]byte{}, idx.prefix...), orderKeyBytes(idx.ordering, existing)...)
		newOrderKey := append(append([]byte{}, idx.prefix...), orderKeyBytes(idx.ordering, newRow)...)
		if string(oldOrderKey) != string(newOrderKey) {
			if err := tx.Delete(oldOrderKey); err != nil {
				tx.Discard()
				return err
			}
			if err := tx.Set(newOrderKey, pkBytes); err != nil {
				tx.Discard()
				return err
			}
		}
	}
	for _, hi := range s.hashIndices {
		if !existing.Get(hi.column).Equal(newRow.Get(hi.column)) {
			if err := hi.remove(tx, existing, pkBytes); err != nil {
				tx.Discard()
				return err
			}
			if err := hi.add(tx, newRow, pkBytes); err != nil {
				tx.Discard()
				return err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "couldn't commit edit")
	}

	return s.fanOut(change.Edit(existing, newRow))
}

// writeRow inserts r's authoritative entry plus every ordering-index and
// hash-index entry, all within tx.
func (s *Source) writeRow(tx *badger.Txn, pkBytes []byte, r row.Row) error {
	if err := tx.Set(s.rowKey(pkBytes), encodeRow(r)); err != nil {
		return errors.Wrap(err, "couldn't write row")
	}
	for _, idx := range s.orderings {
		key := append(append([]byte{}, idx.prefix...), orderKeyBytes(idx.ordering, r)...)
		if err := tx.Set(key, pkBytes); err != nil {
			return errors.Wrap(err, "couldn't write ordering index entry")
		}
	}
	for _, hi := range s.hashIndices {
		if err := hi.add(tx, r, pkBytes); err != nil {
			return errors.Wrap(err, "couldn't write hash index entry")
		}
	}
	return nil
}

func (s *Source) deleteRow(tx *badger.Txn, pkBytes []byte, r row.Row) error {
	if err := tx.Delete(s.rowKey(pkBytes)); err != nil {
		return errors.Wrap(err, "couldn't delete row")
	}
	for _, idx := range s.orderings {
		key := append(append([]byte{}, idx.prefix...), orderKeyBytes(idx.ordering, r)...)
		if err := tx.Delete(key); err != nil {
			return errors.Wrap(err, "couldn't delete ordering index entry")
		}
	}
	for _, hi := range s.hashIndices {
		if err := hi.remove(tx, r, pkBytes); err != nil {
			return errors.Wrap(err, "couldn't delete hash index entry")
		}
	}
	return nil
}

func (s *Source) fanOut(c change.Change) error {
	for _, conn := range s.conns {
		if conn.output == nil {
			continue
		}
		if err := conn.output.Push(c); err != nil {
			return errors.Wrap(err, "couldn't push change downstream")
		}
	}
	return nil
}

func (s *Source) fetch(c *connection, constraint *change.Constraint, filters []change.OptionalFilter) (change.Seq, change.AppliedFilters, error) {
	tx := s.storage.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = c.orderingIdx.prefix
	it := tx.NewIterator(opts)

	applied := make(change.AppliedFilters, len(filters))
	for _, f := range filters {
		applied[f.Column] = true
	}

	return &fetchSeq{
		tx:        tx,
		it:        it,
		prefix:    c.orderingIdx.prefix,
		constraint: constraint,
		filters:   filters,
		lookupRow: s.lookupRowByBytes,
	}, applied, nil
}

// Close releases the source's underlying storage. Not part of the
// spec's external interface; used by tests and the replay harness to
// tear pipelines down deterministically.
func (s *Source) Close() error {
	return s.storage.Close()
}
