package data

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Error types for storage operations
var (
	ErrStorageOperation  = errors.New("storage operation failed")
	ErrJSONSerialization = errors.New("JSON serialization error")
	ErrAtomicWrite       = errors.New("atomic write operation failed")
	ErrBackupRotation    = errors.New("backup rotation failed")
	ErrCorruptedFile     = errors.New("corrupted file detected")
)

// Storage persists the library. Writes are versioned: an entry is written only
// if the stored version still equals the version the caller read, so two
// sessions touching the same item cannot silently overwrite each other.
type Storage interface {
	// Load returns a snapshot of every entry
	Load(ctx context.Context) (*Library, error)
	// Get returns a single entry
	Get(ctx context.Context, id string) (Entry, error)
	// Put writes entries atomically and returns them with their new versions.
	// A new entry must carry version 0. On ErrVersionConflict nothing is written.
	Put(ctx context.Context, entries ...Entry) ([]Entry, error)
	Close() error
}

// NewStorage opens the backend selected by config
func NewStorage(config StorageConfig) (Storage, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Backend {
	case BackendBadger:
		return OpenBadgerStorage(config.Path)
	default:
		fs := NewFileStorage(config.Path)
		fs.SetAtomicWrites(config.AtomicWrites)
		fs.SetBackups(config.Backups)
		return fs, nil
	}
}

// libraryFile is the on-disk layout of the file backend
type libraryFile struct {
	FormatVersion int       `json:"format_version"`
	SavedAt       time.Time `json:"saved_at"`
	Entries       []Entry   `json:"entries"`
}

const libraryFormatVersion = 1

// FileStorage keeps the whole library in one JSON document
type FileStorage struct {
	mu           sync.RWMutex // Protects concurrent operations
	path         string
	atomicWrites bool // Whether to use atomic writes for safety
	backups      int  // Number of rotated copies to keep
}

// NewFileStorage creates a new FileStorage instance with sensible defaults
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path:         path,
		atomicWrites: true,
	}
}

// SetAtomicWrites enables or disables atomic write operations
func (fs *FileStorage) SetAtomicWrites(enabled bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.atomicWrites = enabled
}

// SetBackups sets how many previous library files are kept
func (fs *FileStorage) SetBackups(n int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.backups = max(n, 0)
}

// Load implements Storage. A missing file is an empty library.
func (fs *FileStorage) Load(ctx context.Context) (*Library, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	entries, err := fs.readEntries()
	if err != nil {
		return nil, err
	}
	return NewLibrary(entries)
}

// Get implements Storage
func (fs *FileStorage) Get(ctx context.Context, id string) (Entry, error) {
	lib, err := fs.Load(ctx)
	if err != nil {
		return Entry{}, err
	}
	return lib.Get(id)
}

// Put implements Storage
func (fs *FileStorage) Put(ctx context.Context, entries ...Entry) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	current, err := fs.readEntries()
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(current))
	for i, e := range current {
		index[e.ID()] = i
	}

	now := time.Now()
	written := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if err := e.Item.Validate(); err != nil {
			return nil, fmt.Errorf("%w: entry %s: %w", ErrStorageOperation, e.ID(), err)
		}
		stored := int64(0)
		idx, exists := index[e.ID()]
		if exists {
			stored = current[idx].Version
		}
		if stored != e.Version {
			return nil, fmt.Errorf("%w: entry %s has version %d, caller read %d",
				ErrVersionConflict, e.ID(), stored, e.Version)
		}

		e.Version++
		e.UpdatedAt = now
		if exists {
			current[idx] = e
		} else {
			index[e.ID()] = len(current)
			current = append(current, e)
		}
		written = append(written, e)
	}

	if err := fs.writeEntries(current, now); err != nil {
		return nil, err
	}
	return written, nil
}

// Close implements Storage
func (fs *FileStorage) Close() error { return nil }

func (fs *FileStorage) readEntries() ([]Entry, error) {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("%w: cannot read library file: %v", ErrStorageOperation, err)
	}

	var doc libraryFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptedFile, fs.path, err)
	}
	if doc.FormatVersion > libraryFormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorruptedFile, doc.FormatVersion)
	}
	if doc.Entries == nil {
		doc.Entries = []Entry{}
	}
	return doc.Entries, nil
}

func (fs *FileStorage) writeEntries(entries []Entry, now time.Time) error {
	doc := libraryFile{
		FormatVersion: libraryFormatVersion,
		SavedAt:       now.UTC(),
		Entries:       entries,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to encode library: %v", ErrJSONSerialization, err)
	}

	if dir := filepath.Dir(fs.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: cannot create library directory: %v", ErrStorageOperation, err)
		}
	}

	if err := fs.rotateBackups(); err != nil {
		return err
	}

	if fs.atomicWrites {
		return fs.writeAtomic(data)
	}
	if err := os.WriteFile(fs.path, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageOperation, err)
	}
	return nil
}

// writeAtomic performs an atomic write using temporary file + rename
func (fs *FileStorage) writeAtomic(data []byte) error {
	tempFile := fs.path + ".tmp"

	file, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("%w: cannot create temp library file: %v", ErrAtomicWrite, err)
	}

	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		_ = os.Remove(tempFile)
		return fmt.Errorf("%w: failed to write library: %v", ErrAtomicWrite, err)
	}

	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tempFile)
		return fmt.Errorf("%w: failed to sync library file: %v", ErrAtomicWrite, err)
	}

	_ = file.Close()

	if err := os.Rename(tempFile, fs.path); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("%w: atomic rename failed: %v", ErrAtomicWrite, err)
	}

	return nil
}

// rotateBackups shifts library.json.N to .N+1 and copies the current file to .1
func (fs *FileStorage) rotateBackups() error {
	if fs.backups <= 0 {
		return nil
	}
	current, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBackupRotation, err)
	}

	_ = os.Remove(fs.backupName(fs.backups))
	for i := fs.backups - 1; i >= 1; i-- {
		if err := os.Rename(fs.backupName(i), fs.backupName(i+1)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: %v", ErrBackupRotation, err)
		}
	}
	if err := os.WriteFile(fs.backupName(1), current, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrBackupRotation, err)
	}
	return nil
}

func (fs *FileStorage) backupName(n int) string {
	return fmt.Sprintf("%s.%d", fs.path, n)
}
