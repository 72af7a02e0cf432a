// Package cache provides the durable snapshot cache: a small key-value
// surface that survives process restarts. It remembers the last user
// selections (project, model, search engine) and the full bootstrap
// payload from the most recent successful load.
//
// The persistence backend is injected through the KV interface so the
// core stays testable without touching the filesystem.
package cache

import (
	"encoding/json"
	"fmt"
)

// Well-known keys. The selection keys mirror the browser-storage keys
// the Devika frontend uses.
const (
	KeySelectedProject      = "selectedProject"
	KeySelectedModel        = "selectedModel"
	KeySelectedSearchEngine = "selectedSearchEngine"
	KeyBootstrap            = "data"
)

// Placeholder values written on first read when a selection key is absent.
const (
	DefaultProject      = "select project"
	DefaultModel        = "select model"
	DefaultSearchEngine = "select search engine"
)

// KV is the injected persistence capability. Implementations must be
// safe for concurrent use. Get reports found=false for absent keys;
// Set overwrites unconditionally (last write wins).
type KV interface {
	Get(key string) (value json.RawMessage, found bool, err error)
	Set(key string, value json.RawMessage) error
	Close() error
}

// Bootstrap is the full initial dataset returned by the backend's
// bootstrap endpoint, cached under one key and overwritten on every
// successful load.
type Bootstrap struct {
	Projects      []string `json:"projects"`
	Models        []string `json:"models"`
	SearchEngines []string `json:"search_engines"`
}

// Cache wraps a KV backend with the domain keys.
type Cache struct {
	kv KV
}

// New creates a cache over the given backend.
func New(kv KV) *Cache {
	return &Cache{kv: kv}
}

// Close releases the backend.
func (c *Cache) Close() error {
	return c.kv.Close()
}

// getString reads a string key, writing and returning the default when
// the key is absent.
func (c *Cache) getString(key, def string) (string, error) {
	raw, found, err := c.kv.Get(key)
	if err != nil {
		return "", fmt.Errorf("cache get %s: %w", key, err)
	}
	if !found {
		if err := c.setString(key, def); err != nil {
			return "", err
		}
		return def, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("cache get %s: %w", key, err)
	}
	return s, nil
}

func (c *Cache) setString(key, value string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	if err := c.kv.Set(key, raw); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// SelectedProject returns the persisted project selection, defaulting
// the key on first access.
func (c *Cache) SelectedProject() (string, error) {
	return c.getString(KeySelectedProject, DefaultProject)
}

// SetSelectedProject persists the project selection.
func (c *Cache) SetSelectedProject(name string) error {
	return c.setString(KeySelectedProject, name)
}

// SelectedModel returns the persisted model selection, defaulting the
// key on first access.
func (c *Cache) SelectedModel() (string, error) {
	return c.getString(KeySelectedModel, DefaultModel)
}

// SetSelectedModel persists the model selection.
func (c *Cache) SetSelectedModel(name string) error {
	return c.setString(KeySelectedModel, name)
}

// SelectedSearchEngine returns the persisted search engine selection,
// defaulting the key on first access.
func (c *Cache) SelectedSearchEngine() (string, error) {
	return c.getString(KeySelectedSearchEngine, DefaultSearchEngine)
}

// SetSelectedSearchEngine persists the search engine selection.
func (c *Cache) SetSelectedSearchEngine(name string) error {
	return c.setString(KeySelectedSearchEngine, name)
}

// SetBootstrap overwrites the cached bootstrap payload.
func (c *Cache) SetBootstrap(b Bootstrap) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", KeyBootstrap, err)
	}
	if err := c.kv.Set(KeyBootstrap, raw); err != nil {
		return fmt.Errorf("cache set %s: %w", KeyBootstrap, err)
	}
	return nil
}

// Bootstrap returns the cached bootstrap payload, or found=false when
// no successful load has happened yet.
func (c *Cache) Bootstrap() (Bootstrap, bool, error) {
	raw, found, err := c.kv.Get(KeyBootstrap)
	if err != nil {
		return Bootstrap{}, false, fmt.Errorf("cache get %s: %w", KeyBootstrap, err)
	}
	if !found {
		return Bootstrap{}, false, nil
	}
	var b Bootstrap
	if err := json.Unmarshal(raw, &b); err != nil {
		return Bootstrap{}, false, fmt.Errorf("cache get %s: %w", KeyBootstrap, err)
	}
	return b, true, nil
}
