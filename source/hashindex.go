package source

import (
	"github.com/dgraph-io/badger/v2"
	"github.com/pkg/errors"

	"github.com/orbitflow/ivmcore/row"
)

// HashIndex maintains column value -> set of rows for a source,
// updated synchronously with every source change (§4.2). Join does not
// read it: a join's constrained fetch goes through a source connection,
// which scans that connection's ordering index and filters each row by
// the constraint.
type HashIndex struct {
	storage   *Storage
	column    string
	prefix    []byte
	lookupRow func([]byte) (row.Row, error)
}

func newHashIndex(storage *Storage, sourceName, column string, lookupRow func([]byte) (row.Row, error)) *HashIndex {
	return &HashIndex{
		storage:   storage,
		column:    column,
		prefix:    []byte("hashidx/" + sourceName + "/" + column + "/"),
		lookupRow: lookupRow,
	}
}

func (h *HashIndex) entryKey(value row.Value, pkBytes []byte) []byte {
	k := append([]byte{}, h.prefix...)
	k = append(k, encodeValueAscending(value)...)
	return append(k, pkBytes...)
}

func (h *HashIndex) add(tx *badger.Txn, r row.Row, pkBytes []byte) error {
	return tx.Set(h.entryKey(r.Get(h.column), pkBytes), pkBytes)
}

func (h *HashIndex) remove(tx *badger.Txn, r row.Row, pkBytes []byte) error {
	return tx.Delete(h.entryKey(r.Get(h.column), pkBytes))
}

// Get returns every row currently indexed under value.
func (h *HashIndex) Get(value row.Value) ([]row.Row, error) {
	tx := h.storage.db.NewTransaction(false)
	defer tx.Discard()

	valuePrefix := append(append([]byte{}, h.prefix...), encodeValueAscending(value)...)

	var out []row.Row
	err := prefixIterate(tx, valuePrefix, func(_ []byte, pkBytes []byte) (bool, error) {
		r, err := h.lookupRow(pkBytes)
		if err != nil {
			return false, errors.Wrap(err, "couldn't resolve hash index entry to row")
		}
		out = append(out, r)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
