package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stitionai/devika-go/internal/gateway"
)

var statusProject string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check backend reachability and agent activity",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusProject, "project", "p", "",
		"Also report agent activity and token usage for a project")
}

func runStatus(cmd *cobra.Command, args []string) error {
	gw := gateway.New(cfg.Server.URL)

	if !gw.Status() {
		fmt.Printf("backend %s: unreachable\n", cfg.Server.URL)
		return nil
	}
	fmt.Printf("backend %s: up\n", cfg.Server.URL)

	if statusProject == "" {
		return nil
	}

	active, err := gw.IsAgentActive(statusProject)
	if err != nil {
		return err
	}
	fmt.Printf("agent active: %v\n", active)

	usage, err := gw.TokenUsage(statusProject)
	if err != nil {
		return err
	}
	fmt.Printf("token usage: %d\n", usage)
	return nil
}
