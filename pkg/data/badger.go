package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefixes for BadgerDB storage
const (
	entryKeyPrefix = "entry:"
	orderKeyPrefix = "order:" // Insertion sequence -> entry id
	seqKey         = "meta:seq"
)

// BadgerStorage keeps one key per entry in a BadgerDB directory. Conditional
// writes run inside a single read-write transaction, so a concurrent writer
// makes the commit fail with a version conflict instead of losing an update.
type BadgerStorage struct {
	db *badger.DB
}

// OpenBadgerStorage opens (or creates) a Badger library at dir
func OpenBadgerStorage(dir string) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger at %s: %v", ErrStorageOperation, dir, err)
	}
	return NewBadgerStorage(db), nil
}

// NewBadgerStorage wraps an already open database
func NewBadgerStorage(db *badger.DB) *BadgerStorage {
	return &BadgerStorage{db: db}
}

// Load implements Storage. Entries come back in insertion order.
func (s *BadgerStorage) Load(ctx context.Context) (*Library, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(orderKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var id string
			if err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}

			entry, err := getEntry(txn, id)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list entries: %w", ErrStorageOperation, err)
	}
	return NewLibrary(entries)
}

// Get implements Storage
func (s *BadgerStorage) Get(ctx context.Context, id string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		entry, err = getEntry(txn, id)
		return err
	})
	return entry, err
}

// Put implements Storage
func (s *BadgerStorage) Put(ctx context.Context, entries ...Entry) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	written := make([]Entry, 0, len(entries))
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, e := range entries {
			if err := e.Item.Validate(); err != nil {
				return fmt.Errorf("entry %s: %w", e.ID(), err)
			}

			stored := int64(0)
			existing, err := getEntry(txn, e.ID())
			switch {
			case err == nil:
				stored = existing.Version
			case errors.Is(err, ErrEntryNotFound):
				if err := appendOrder(txn, e.ID()); err != nil {
					return err
				}
			default:
				return err
			}
			if stored != e.Version {
				return fmt.Errorf("%w: entry %s has version %d, caller read %d",
					ErrVersionConflict, e.ID(), stored, e.Version)
			}

			e.Version++
			e.UpdatedAt = now
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal entry: %w", err)
			}
			if err := txn.Set([]byte(entryKeyPrefix+e.ID()), data); err != nil {
				return fmt.Errorf("set entry: %w", err)
			}
			written = append(written, e)
		}
		return nil
	})

	if errors.Is(err, badger.ErrConflict) {
		return nil, fmt.Errorf("%w: %v", ErrVersionConflict, err)
	}
	if err != nil {
		return nil, err
	}
	return written, nil
}

// Close implements Storage
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

func getEntry(txn *badger.Txn, id string) (Entry, error) {
	var entry Entry
	item, err := txn.Get([]byte(entryKeyPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return entry, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if err != nil {
		return entry, fmt.Errorf("get entry: %w", err)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entry)
	})
	if err != nil {
		return entry, fmt.Errorf("%w: entry %s: %v", ErrCorruptedFile, id, err)
	}
	return entry, nil
}

// appendOrder records id at the next insertion sequence number
func appendOrder(txn *badger.Txn, id string) error {
	var seq uint64
	item, err := txn.Get([]byte(seqKey))
	switch {
	case err == nil:
		if err := item.Value(func(val []byte) error {
			_, scanErr := fmt.Sscanf(string(val), "%d", &seq)
			return scanErr
		}); err != nil {
			return fmt.Errorf("read sequence: %w", err)
		}
	case !errors.Is(err, badger.ErrKeyNotFound):
		return fmt.Errorf("get sequence: %w", err)
	}

	seq++
	if err := txn.Set([]byte(seqKey), fmt.Appendf(nil, "%d", seq)); err != nil {
		return fmt.Errorf("set sequence: %w", err)
	}
	// Zero-padded so lexical key order is numeric order
	return txn.Set(fmt.Appendf(nil, "%s%020d", orderKeyPrefix, seq), []byte(id))
}
