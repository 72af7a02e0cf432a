package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stitionai/devika-go/internal/store"
	"github.com/stitionai/devika-go/internal/sync"
)

var (
	promptProject string
	promptModel   string
	promptEngine  string
	promptNoWait  bool
)

var promptCmd = &cobra.Command{
	Use:   "prompt <text>",
	Short: "Send a prompt to the agent",
	Long: `Prompt dispatches an agent invocation and follows the run until the
agent reports completion.

The project, model, and search engine default to the last selection;
flags override them for this run and become the new selection.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().StringVarP(&promptProject, "project", "p", "", "Project to run in")
	promptCmd.Flags().StringVarP(&promptModel, "model", "m", "", "Base model to use")
	promptCmd.Flags().StringVarP(&promptEngine, "engine", "e", "", "Search engine to use")
	promptCmd.Flags().BoolVar(&promptNoWait, "no-wait", false,
		"Dispatch and return without following the run")
}

func runPrompt(cmd *cobra.Command, args []string) error {
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
	if promptProject != "" {
		s.reconciler.SelectProject(promptProject)
	}
	if promptModel != "" {
		s.reconciler.SelectModel(promptModel)
	}
	if promptEngine != "" {
		s.reconciler.SelectSearchEngine(promptEngine)
	}

	if err := s.reconciler.Attach(ctx); err != nil {
		return err
	}
	defer s.reconciler.Detach()

	done := make(chan struct{}, 1)
	s.store.Subscribe(func(c store.Change) {
		switch c.Kind {
		case store.ChangeMessages:
			msgs := s.store.Messages()
			if len(msgs) > 0 && msgs[len(msgs)-1].FromDevika {
				printMessage(msgs[len(msgs)-1])
			}
		case store.ChangeSending:
			if !s.store.Sending() {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		}
	})

	prompt := strings.Join(args, " ")
	if err := s.reconciler.Execute(prompt); err != nil {
		if errors.Is(err, sync.ErrNoModelSelected) {
			return fmt.Errorf("no model selected; pass one with --model")
		}
		return err
	}

	if promptNoWait {
		fmt.Println("dispatched")
		return nil
	}

	// The run ends when a terminal signal clears the sending phase:
	// either a completed agent state or an error advisory.
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			if state := s.store.AgentState(); state != nil && state.Completed {
				fmt.Println("-- run completed")
			} else {
				fmt.Println("-- run ended")
			}
			return nil
		case <-time.After(30 * time.Minute):
			return fmt.Errorf("run did not finish within 30m")
		}
	}
}
