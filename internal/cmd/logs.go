package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stitionai/devika-go/internal/gateway"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the backend's log file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		gw := gateway.New(cfg.Server.URL)
		logs, err := gw.FetchLogs()
		if err != nil {
			return err
		}
		fmt.Print(logs)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
}
