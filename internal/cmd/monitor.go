package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stitionai/devika-go/internal/appdir"
	"github.com/stitionai/devika-go/internal/cache"
	"github.com/stitionai/devika-go/internal/logging"
	"github.com/stitionai/devika-go/internal/store"
	"github.com/stitionai/devika-go/internal/sync"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [project]",
	Short: "Follow a project's live agent activity",
	Long: `Monitor attaches to the backend's event channel and prints agent
messages, state transitions, and token usage as they happen.

Without a project argument, the last selected project is used.
Press Ctrl-C to stop.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	if _, err := s.reconciler.Bootstrap(); err != nil {
		return err
	}

	project := s.store.Selection().Project
	if len(args) == 1 {
		project = args[0]
		s.reconciler.SelectProject(project)
	}
	if project == "" || project == cache.DefaultProject {
		return fmt.Errorf("no project selected; pass one as an argument")
	}

	if err := s.reconciler.LoadProject(project); err != nil {
		return err
	}
	for _, msg := range s.store.Messages() {
		printMessage(msg)
	}

	// Print store changes as they stream in. The subscription fires
	// after each mutation, so reading back the new value is safe.
	s.store.Subscribe(func(c store.Change) {
		switch c.Kind {
		case store.ChangeMessages:
			msgs := s.store.Messages()
			if len(msgs) > 0 {
				printMessage(msgs[len(msgs)-1])
			}
		case store.ChangeTokenUsage:
			fmt.Printf("-- token usage: %d\n", s.store.TokenUsage())
		case store.ChangeConnected:
			if s.store.Connected() {
				fmt.Println("-- connected")
			} else {
				fmt.Println("-- disconnected")
			}
		}
	})

	if err := s.reconciler.Attach(ctx); err != nil {
		return err
	}
	defer s.reconciler.Detach()

	poller := sync.NewPoller(s.reconciler, cfg.Server.ProbeInterval)
	poller.Start(ctx)
	defer poller.Stop()

	// Another client instance may change the selection on disk; follow
	// it so the view stays consistent across processes.
	snapshotPath, err := appdir.SnapshotPath()
	if err != nil {
		return err
	}
	watcher, err := cache.NewWatcher(snapshotPath)
	if err != nil {
		logging.CLI().Warn("snapshot watcher unavailable", "error", err)
	} else {
		watcher.Subscribe(func() { reloadSelection(s) })
		watcher.Start()
		defer watcher.Close()
	}

	fmt.Printf("monitoring %q (Ctrl-C to stop)\n", project)
	<-ctx.Done()
	return nil
}

// reloadSelection re-reads the persisted selection after the snapshot
// file changed on disk. Our own write-through triggers the watcher too,
// so an unchanged selection must not be re-applied or the resulting
// persist would ping-pong with the watcher.
func reloadSelection(s *session) {
	if err := s.kv.Reload(); err != nil {
		logging.CLI().Warn("snapshot reload failed", "error", err)
		return
	}
	project, err := s.cache.SelectedProject()
	if err != nil {
		return
	}
	model, err := s.cache.SelectedModel()
	if err != nil {
		return
	}
	engine, err := s.cache.SelectedSearchEngine()
	if err != nil {
		return
	}
	next := store.Selection{Project: project, Model: model, SearchEngine: engine}
	if next == s.store.Selection() {
		return
	}
	logging.CLI().Debug("selection changed on disk", "project", project, "model", model)
	s.store.SetSelection(next)
}

func printMessage(msg store.Message) {
	who := "you"
	if msg.FromDevika {
		who = "devika"
	}
	if msg.Timestamp != "" {
		fmt.Printf("[%s] %s: %s\n", msg.Timestamp, who, msg.Message)
		return
	}
	fmt.Printf("%s: %s\n", who, msg.Message)
}
