package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stitionai/devika-go/internal/gateway"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and change backend settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the backend settings document",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one top-level backend setting",
	Long: `Set fetches the settings document, replaces one top-level key, and
writes the document back. The value is parsed as JSON when possible,
otherwise stored as a string.`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	gw := gateway.New(cfg.Server.URL)
	settings, err := gw.FetchSettings()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, k := range keys {
		v, _ := json.Marshal(settings[k])
		fmt.Fprintf(w, "%s\t%s\n", k, v)
	}
	return w.Flush()
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	key, raw := args[0], args[1]

	gw := gateway.New(cfg.Server.URL)
	settings, err := gw.FetchSettings()
	if err != nil {
		return err
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}
	settings[key] = value

	if err := gw.SaveSettings(settings); err != nil {
		return err
	}
	fmt.Printf("set %s\n", key)
	return nil
}
