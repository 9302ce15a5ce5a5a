package cli

import (
	"github.com/spf13/cobra"
)

var browseCmd = &cobra.Command{
	Use:   "browse [folder-path]",
	Short: "List a folder",
	Long: `List the direct children of a folder on the remote drive.

The path is relative to the project's folder with --project, otherwise to
the top of the drive named by --drive-id.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBrowse,
}

var treeCmd = &cobra.Command{
	Use:   "tree [folder-path]",
	Short: "Show the folder tree down to a path",
	Long: `Expand the folders along a path and print the visible tree. Selectable
model files are marked by kind, other files are shown for information.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTree,
}

var browseProject string

func init() {
	for _, c := range []*cobra.Command{browseCmd, treeCmd} {
		c.Flags().StringVar(&browseProject, "project", "", "Configured project to start from")
	}
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(treeCmd)
}

func locationFromArgs(args []string) location {
	loc := location{project: browseProject, driveID: globalFlags.DriveID}
	if len(args) > 0 {
		loc.path = args[0]
	}
	return loc
}

func runBrowse(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := cmd.Context()

	v, _, err := newSession(ctx)
	if err != nil {
		return out.Fail("browse", err)
	}
	defer v.Close()

	at, err := locationFromArgs(args).open(ctx, v)
	if err != nil {
		return out.Fail("browse", err)
	}
	listing, err := v.Cache.Get(ctx, at.driveID, at.folderID)
	if err != nil {
		return out.Fail("browse", err)
	}
	return out.WriteSuccess("browse", listing)
}

func runTree(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := cmd.Context()

	v, _, err := newSession(ctx)
	if err != nil {
		return out.Fail("tree", err)
	}
	defer v.Close()

	if _, err := locationFromArgs(args).open(ctx, v); err != nil {
		return out.Fail("tree", err)
	}
	return out.WriteSuccess("tree", v.Tree.Visible())
}
