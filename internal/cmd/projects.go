package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stitionai/devika-go/internal/gateway"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage backend projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects known to the backend",
	Args:  cobra.NoArgs,
	RunE:  runProjectsList,
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectsCreate,
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectsDelete,
}

var projectsFilesCmd = &cobra.Command{
	Use:   "files <name>",
	Short: "List a project's generated files",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectsFiles,
}

func init() {
	rootCmd.AddCommand(projectsCmd)
	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsCreateCmd)
	projectsCmd.AddCommand(projectsDeleteCmd)
	projectsCmd.AddCommand(projectsFilesCmd)
}

func runProjectsList(cmd *cobra.Command, args []string) error {
	gw := gateway.New(cfg.Server.URL)
	data, err := gw.FetchData()
	if err != nil {
		return err
	}
	if len(data.Projects) == 0 {
		fmt.Println("no projects")
		return nil
	}
	for _, p := range data.Projects {
		fmt.Println(p)
	}
	return nil
}

func runProjectsCreate(cmd *cobra.Command, args []string) error {
	gw := gateway.New(cfg.Server.URL)
	if err := gw.CreateProject(args[0]); err != nil {
		return err
	}
	fmt.Printf("created %q\n", args[0])
	return nil
}

func runProjectsDelete(cmd *cobra.Command, args []string) error {
	gw := gateway.New(cfg.Server.URL)
	if err := gw.DeleteProject(args[0]); err != nil {
		return err
	}
	fmt.Printf("deleted %q\n", args[0])
	return nil
}

func runProjectsFiles(cmd *cobra.Command, args []string) error {
	gw := gateway.New(cfg.Server.URL)
	files, err := gw.FetchProjectFiles(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("no files")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tSIZE")
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%d\n", f.File, len(f.Code))
	}
	return w.Flush()
}
