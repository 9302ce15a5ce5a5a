package cli

import (
	"github.com/dl-alexandre/bimview/internal/config"
	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Configured projects",
	Long:  "Named entry points into a drive, read from projects.yaml in the config directory",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured projects",
	RunE:  runProjectsList,
}

var projectsOpenCmd = &cobra.Command{
	Use:   "open <name>",
	Short: "Open a project and show its tree",
	Long: `Resolve the project's shared link or drive, expand the folders along its
path and print the visible tree.`,
	Args: cobra.ExactArgs(1),
	RunE: runProjectsOpen,
}

func init() {
	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsOpenCmd)
	rootCmd.AddCommand(projectsCmd)
}

func runProjectsList(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	projects, err := loadProjects()
	if err != nil {
		return out.Fail("projects.list", err)
	}
	if len(projects.Projects) == 0 {
		if p, err := config.GetProjectsPath(); err == nil {
			out.Verbose("No projects in %s", p)
		}
	}
	return out.WriteSuccess("projects.list", projects)
}

func runProjectsOpen(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := cmd.Context()

	v, _, err := newSession(ctx)
	if err != nil {
		return out.Fail("projects.open", err)
	}
	defer v.Close()

	if _, err := (location{project: args[0]}).open(ctx, v); err != nil {
		return out.Fail("projects.open", err)
	}
	view, _ := v.Project()
	return out.WriteSuccess("projects.open", view)
}
