package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/stitionai/devika-go/internal/fileutil"
	"github.com/stitionai/devika-go/internal/logging"
)

// FileKV is a file-backed KV implementation. The whole key space is
// kept in memory and flushed to a single JSON file atomically on every
// Set. Safe for concurrent use.
type FileKV struct {
	path string

	mu     sync.RWMutex
	data   map[string]json.RawMessage
	closed bool
}

// OpenFileKV loads (or initializes) the snapshot file at path.
// A missing file starts an empty key space; a malformed file is an error.
func OpenFileKV(path string) (*FileKV, error) {
	kv := &FileKV{
		path: path,
		data: make(map[string]json.RawMessage),
	}

	if err := fileutil.ReadJSON(path, &kv.data); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("open snapshot %s: %w", path, err)
		}
	}

	logging.Cache().Debug("snapshot cache opened", "path", path, "keys", len(kv.data))
	return kv, nil
}

// Path returns the snapshot file path.
func (kv *FileKV) Path() string {
	return kv.path
}

// Get returns the value for key, if present.
func (kv *FileKV) Get(key string) (json.RawMessage, bool, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	if kv.closed {
		return nil, false, fmt.Errorf("snapshot cache closed")
	}
	v, ok := kv.data[key]
	return v, ok, nil
}

// Set stores the value and flushes the snapshot file.
func (kv *FileKV) Set(key string, value json.RawMessage) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if kv.closed {
		return fmt.Errorf("snapshot cache closed")
	}
	kv.data[key] = value

	if err := fileutil.WriteJSONAtomic(kv.path, kv.data, 0644); err != nil {
		return fmt.Errorf("flush snapshot %s: %w", kv.path, err)
	}
	return nil
}

// Reload re-reads the snapshot file, replacing the in-memory key
// space. Used when another process rewrote the file; last writer wins.
func (kv *FileKV) Reload() error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if kv.closed {
		return fmt.Errorf("snapshot cache closed")
	}

	data := make(map[string]json.RawMessage)
	if err := fileutil.ReadJSON(kv.path, &data); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("reload snapshot %s: %w", kv.path, err)
		}
	}
	kv.data = data
	return nil
}

// Close marks the backend closed. The snapshot file is already durable
// after every Set, so there is nothing to flush.
func (kv *FileKV) Close() error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.closed = true
	return nil
}

// MemoryKV is an in-memory KV for tests and ephemeral use.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]json.RawMessage
}

// NewMemoryKV creates an empty in-memory backend.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]json.RawMessage)}
}

// Get returns the value for key, if present.
func (kv *MemoryKV) Get(key string) (json.RawMessage, bool, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	v, ok := kv.data[key]
	return v, ok, nil
}

// Set stores the value.
func (kv *MemoryKV) Set(key string, value json.RawMessage) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.data[key] = value
	return nil
}

// Close is a no-op.
func (kv *MemoryKV) Close() error { return nil }
