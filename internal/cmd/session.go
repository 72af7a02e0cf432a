package cmd

import (
	"fmt"
	"os"

	"github.com/stitionai/devika-go/internal/appdir"
	"github.com/stitionai/devika-go/internal/cache"
	"github.com/stitionai/devika-go/internal/store"
	"github.com/stitionai/devika-go/internal/sync"
)

// stderrPresenter renders advisories on stderr so they never interleave
// with command output on stdout.
type stderrPresenter struct{}

func (stderrPresenter) Error(m string)   { fmt.Fprintf(os.Stderr, "error: %s\n", m) }
func (stderrPresenter) Warning(m string) { fmt.Fprintf(os.Stderr, "warning: %s\n", m) }
func (stderrPresenter) Info(m string)    { fmt.Fprintf(os.Stderr, "info: %s\n", m) }

// session bundles the pieces a command needs to talk to the backend.
type session struct {
	store      *store.Store
	cache      *cache.Cache
	kv         *cache.FileKV
	reconciler *sync.Reconciler
}

// newSession builds a reconciler backed by the durable snapshot cache.
func newSession() (*session, error) {
	snapshotPath, err := appdir.SnapshotPath()
	if err != nil {
		return nil, err
	}
	kv, err := cache.OpenFileKV(snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("open snapshot cache: %w", err)
	}

	st := store.New()
	c := cache.New(kv)
	r := sync.New(sync.Config{
		BaseURL:   cfg.Server.URL,
		Store:     st,
		Cache:     c,
		Presenter: stderrPresenter{},
	})
	return &session{store: st, cache: c, kv: kv, reconciler: r}, nil
}

// close releases the channel and the snapshot cache.
func (s *session) close() {
	s.reconciler.Close()
	s.cache.Close()
}
