package source

import (
	"github.com/dgraph-io/badger/v2"
	"github.com/pkg/errors"
)

// Storage wraps an embedded, in-memory badger.DB. A Source opens exactly
// one Storage and derives its authoritative keyspace, per-ordering index
// keyspaces, and hash-index keyspaces from it via key prefixes, mirroring
// the teacher's storage.Storage/WithPrefix pattern (storage/transaction.go)
// but holding one live badger.Txn per push instead of one fresh
// transaction per call, so that every index mutation a single push
// performs commits — or aborts — together (§3: "updates its scratch
// storage atomically with emission"; §4.1 failure semantics: "leave all
// indices unchanged").
//
// Per §1 Non-goals ("durability of operator scratch state across
// restarts... rebuilt from sources on start"), and because persistence/
// replication is an explicit out-of-scope external collaborator (§1),
// the badger instance here never touches disk.
type Storage struct {
	db *badger.DB
}

// OpenStorage opens a fresh in-memory badger instance.
func OpenStorage() (*Storage, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't open in-memory badger storage")
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Tx begins a new read-write transaction. Callers must Commit or
// Discard it exactly once.
func (s *Storage) Tx() *badger.Txn {
	return s.db.NewTransaction(true)
}

// get returns the value stored under key, or (nil, badger.ErrKeyNotFound).
func get(tx *badger.Txn, key []byte) ([]byte, error) {
	item, err := tx.Get(key)
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// prefixIterate calls fn for every key/value pair whose key starts with
// prefix, in ascending byte order, stopping early if fn returns false or
// returns an error.
func prefixIterate(tx *badger.Txn, prefix []byte, fn func(key, value []byte) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := tx.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return errors.Wrap(err, "couldn't copy iterator value")
		}
		keyCopy := append([]byte{}, item.Key()...)
		cont, err := fn(keyCopy, val)
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return nil
}
