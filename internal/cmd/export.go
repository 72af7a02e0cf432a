package cmd

import (
	"fmt"
	"html"
	"os"

	"github.com/spf13/cobra"

	"github.com/stitionai/devika-go/internal/gateway"
	"github.com/stitionai/devika-go/internal/render"
)

var (
	exportOutput    string
	exportWithFiles bool
)

var exportCmd = &cobra.Command{
	Use:   "export <project>",
	Short: "Export a project's conversation as an HTML transcript",
	Long: `Export fetches a project's message log and renders it to a standalone
HTML page. Agent replies are rendered as markdown with syntax
highlighting; user prompts are included verbatim.

With --files, the project's generated source files are appended as
highlighted code blocks.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"Write to a file instead of stdout")
	exportCmd.Flags().BoolVar(&exportWithFiles, "files", false,
		"Append the project's generated files")
}

func runExport(cmd *cobra.Command, args []string) error {
	project := args[0]
	gw := gateway.New(cfg.Server.URL)

	msgs, err := gw.FetchMessages(project)
	if err != nil {
		return err
	}

	r := render.New(render.WithStyle(cfg.Render.Style))
	page := r.Transcript(project, msgs)

	if exportWithFiles {
		files, err := gw.FetchProjectFiles(project)
		if err != nil {
			return err
		}
		var extra string
		for _, f := range files {
			extra += "<h2>" + html.EscapeString(f.File) + "</h2>\n" + r.Code(f.File, f.Code)
		}
		// Splice before the closing tags so the page stays valid.
		page = spliceBeforeClose(page, extra)
	}

	if exportOutput == "" {
		fmt.Print(page)
		return nil
	}
	if err := os.WriteFile(exportOutput, []byte(page), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	fmt.Printf("wrote %s\n", exportOutput)
	return nil
}

func spliceBeforeClose(page, extra string) string {
	const closing = "</body>\n</html>\n"
	if n := len(page) - len(closing); n > 0 && page[n:] == closing {
		return page[:n] + extra + closing
	}
	return page + extra
}
