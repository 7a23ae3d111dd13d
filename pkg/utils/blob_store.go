package utils

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BlobStore is a persistent key/value store for fetched source bytes, so
// images survive across sessions without hitting the network again.
type BlobStore struct {
	db   *badger.DB
	ttl  time.Duration
	hits atomic.Uint64
	miss atomic.Uint64
}

// OpenBlobStore opens (or creates) the store at path. Entries older than ttl
// expire; zero keeps them forever.
func OpenBlobStore(path string, ttl time.Duration) (*BlobStore, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}
	opts := badger.DefaultOptions(path)
	// Decrease logging verbosity
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BlobStore{db: db, ttl: ttl}, nil
}

// OpenInMemoryBlobStore is used by tests and by sessions without a store dir.
func OpenInMemoryBlobStore() (*BlobStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BlobStore{db: db}, nil
}

func (s *BlobStore) Close() error {
	return s.db.Close()
}

// Get returns nil, nil when the key is absent.
func (s *BlobStore) Get(key string) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		s.miss.Add(1)
		return nil, nil
	}
	if err == nil {
		s.hits.Add(1)
	}
	return val, err
}

func (s *BlobStore) Put(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Delete removes key. Deleting an absent key is not an error.
func (s *BlobStore) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Stats returns the number of Get hits and misses since open.
func (s *BlobStore) Stats() (hits, misses uint64) {
	return s.hits.Load(), s.miss.Load()
}
