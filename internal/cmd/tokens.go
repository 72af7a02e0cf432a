package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stitionai/devika-go/internal/gateway"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens <prompt>",
	Short: "Count the tokens a prompt would use",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gw := gateway.New(cfg.Server.URL)
		count, err := gw.CalculateTokens(strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Println(count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokensCmd)
}
