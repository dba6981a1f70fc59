// Package badgerstore implements the durable store on an embedded BadgerDB.
//
// It serves deployments that want records to survive restarts without
// running a Redis server. Expiration uses Badger's per-entry TTL.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/legendaryobs/crystal/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// ErrConflict is returned when an update keeps conflicting with concurrent
// transactions.
var ErrConflict = errors.New("badgerstore: too many conflicting updates")

const defaultMaxAttempts = 8

// Options configures the database.
type Options struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps all data in RAM. Useful for tests.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// MaxAttempts bounds conflict retries in Update. Default is 8.
	MaxAttempts int
}

// Store is a Badger-backed store.
type Store struct {
	db          *badger.DB
	maxAttempts int
}

// New opens the database described by opts.
func New(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Dir).
		WithLogger(nil).
		WithSyncWrites(opts.SyncWrites)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	// Records are small; keep the memory profile modest.
	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Store{db: db, maxAttempts: maxAttempts}, nil
}

// Get reads a key. Expired entries are reported as ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return data, nil
}

// Put writes a key with the given expiration.
func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(newEntry(key, value, ttl))
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

// Update applies fn in a read-write transaction, retrying on conflicts.
func (s *Store) Update(ctx context.Context, key string, ttl time.Duration, fn store.UpdateFunc) error {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			var (
				current   []byte
				expiresAt uint64
			)
			item, err := txn.Get([]byte(key))
			switch {
			case err == nil:
				if current, err = item.ValueCopy(nil); err != nil {
					return err
				}
				expiresAt = item.ExpiresAt()
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}

			next, err := fn(current)
			if err != nil {
				return err
			}

			var e *badger.Entry
			if ttl == store.KeepTTL {
				e = badger.NewEntry([]byte(key), next)
				e.ExpiresAt = expiresAt
			} else {
				e = newEntry(key, next, ttl)
			}
			return txn.SetEntry(e)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
	return ErrConflict
}

// ScanKeys iterates keys only, without fetching values.
func (s *Store) ScanKeys(ctx context.Context, prefix string, max int) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(it.Item().KeyCopy(nil)))
			if max > 0 && len(keys) >= max {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger scan: %w", err)
	}
	return keys, nil
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// Size returns the LSM tree plus value log size.
func (s *Store) Size(ctx context.Context) (int64, error) {
	lsm, vlog := s.db.Size()
	return lsm + vlog, nil
}

// Ping fails once the database has been closed.
func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badgerstore: database closed")
	}
	return nil
}

// Kind returns store.KindDurable.
func (s *Store) Kind() store.Kind {
	return store.KindDurable
}

// Name returns "badger".
func (s *Store) Name() string {
	return "badger"
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func newEntry(key string, value []byte, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry([]byte(key), value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}
