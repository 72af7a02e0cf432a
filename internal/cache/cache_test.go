package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSelectionDefaults_FirstRead(t *testing.T) {
	c := New(NewMemoryKV())

	tests := []struct {
		name string
		get  func() (string, error)
		want string
	}{
		{"project", c.SelectedProject, DefaultProject},
		{"model", c.SelectedModel, DefaultModel},
		{"search engine", c.SelectedSearchEngine, DefaultSearchEngine},
	}

	for _, tt := range tests {
		got, err := tt.get()
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s default = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSelection_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")

	kv, err := OpenFileKV(path)
	if err != nil {
		t.Fatalf("OpenFileKV: %v", err)
	}
	c := New(kv)

	if err := c.SetSelectedProject("web-scraper"); err != nil {
		t.Fatalf("SetSelectedProject: %v", err)
	}
	if err := c.SetSelectedModel("claude-3"); err != nil {
		t.Fatalf("SetSelectedModel: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen and verify the values survived.
	kv2, err := OpenFileKV(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	c2 := New(kv2)
	defer c2.Close()

	if got, _ := c2.SelectedProject(); got != "web-scraper" {
		t.Errorf("project after reopen = %q, want %q", got, "web-scraper")
	}
	if got, _ := c2.SelectedModel(); got != "claude-3" {
		t.Errorf("model after reopen = %q, want %q", got, "claude-3")
	}
	// Untouched key still defaults.
	if got, _ := c2.SelectedSearchEngine(); got != DefaultSearchEngine {
		t.Errorf("search engine after reopen = %q, want default", got)
	}
}

func TestBootstrap_OverwrittenOnEveryLoad(t *testing.T) {
	c := New(NewMemoryKV())

	if _, found, err := c.Bootstrap(); err != nil || found {
		t.Fatalf("Bootstrap on empty cache: found=%v err=%v", found, err)
	}

	first := Bootstrap{Projects: []string{"alpha"}, Models: []string{"gpt-4"}}
	if err := c.SetBootstrap(first); err != nil {
		t.Fatalf("SetBootstrap: %v", err)
	}

	second := Bootstrap{
		Projects:      []string{"alpha", "beta"},
		Models:        []string{"gpt-4", "claude-3"},
		SearchEngines: []string{"Bing", "Google", "DuckDuckGo"},
	}
	if err := c.SetBootstrap(second); err != nil {
		t.Fatalf("SetBootstrap: %v", err)
	}

	got, found, err := c.Bootstrap()
	if err != nil || !found {
		t.Fatalf("Bootstrap: found=%v err=%v", found, err)
	}
	if len(got.Projects) != 2 || len(got.SearchEngines) != 3 {
		t.Errorf("Bootstrap = %+v, want the second payload", got)
	}
}

func TestFileKV_ClosedRejectsOperations(t *testing.T) {
	kv, err := OpenFileKV(filepath.Join(t.TempDir(), "snapshot.json"))
	if err != nil {
		t.Fatalf("OpenFileKV: %v", err)
	}
	kv.Close()

	if _, _, err := kv.Get("k"); err == nil {
		t.Error("Get after Close should fail")
	}
	if err := kv.Set("k", []byte(`"v"`)); err == nil {
		t.Error("Set after Close should fail")
	}
}

func TestOpenFileKV_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenFileKV(path); err == nil {
		t.Error("expected error for malformed snapshot file")
	}
}

func TestWatcher_NotifiesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")

	kv, err := OpenFileKV(path)
	if err != nil {
		t.Fatalf("OpenFileKV: %v", err)
	}
	defer kv.Close()

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.SetDebounceDelay(20 * time.Millisecond)

	notified := make(chan struct{}, 1)
	w.Subscribe(func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})
	w.Start()
	defer w.Close()

	if err := kv.Set("selectedProject", []byte(`"alpha"`)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never fired after snapshot change")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.SetDebounceDelay(20 * time.Millisecond)

	notified := make(chan struct{}, 1)
	w.Subscribe(func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})
	w.Start()
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-notified:
		t.Fatal("watcher fired for an unrelated file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestFileKV_ReloadPicksUpExternalWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")

	kv, err := OpenFileKV(path)
	if err != nil {
		t.Fatalf("OpenFileKV: %v", err)
	}
	defer kv.Close()

	if err := kv.Set("selectedModel", []byte(`"gpt-4"`)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Another process rewrites the file.
	other, err := OpenFileKV(path)
	if err != nil {
		t.Fatalf("OpenFileKV: %v", err)
	}
	if err := other.Set("selectedModel", []byte(`"claude"`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	other.Close()

	// Without a reload the stale value wins.
	v, _, err := kv.Get("selectedModel")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != `"gpt-4"` {
		t.Fatalf("stale read = %s", v)
	}

	if err := kv.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	v, found, err := kv.Get("selectedModel")
	if err != nil || !found {
		t.Fatalf("Get after reload: found=%v err=%v", found, err)
	}
	if string(v) != `"claude"` {
		t.Errorf("reloaded value = %s, want \"claude\"", v)
	}
}
