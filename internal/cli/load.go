package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"

	"github.com/dl-alexandre/bimview/internal/progress"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
	"github.com/dl-alexandre/bimview/internal/viewer"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loadCmd = &cobra.Command{
	Use:   "load [file]...",
	Short: "Load model files into a scene",
	Long: `Select model files and load them as one batch.

Files are named relative to the folder given by --folder (inside --project
or --drive-id), by name or by remote id. Files load in the order given;
one file failing does not stop the rest. The exit status is 60 when any
file failed or was skipped.`,
	Example: `  bimview load --project Tower --folder "Models/Tower A" AR1.ifc HV1.gltf
  bimview load --drive-id b!xyz --folder Models --all`,
	RunE: runLoad,
}

var (
	loadProject string
	loadFolder  string
	loadAll     bool
	loadScene   bool
)

func init() {
	loadCmd.Flags().StringVar(&loadProject, "project", "", "Configured project to start from")
	loadCmd.Flags().StringVar(&loadFolder, "folder", "", "Folder the file names are relative to")
	loadCmd.Flags().BoolVar(&loadAll, "all", false, "Select every model file in the folder")
	loadCmd.Flags().BoolVar(&loadScene, "scene", false, "Include the scene contents in the output")
	rootCmd.AddCommand(loadCmd)
}

// loadResult is the load command's output
type loadResult struct {
	*types.BatchReport
	Scene interface{} `json:"scene,omitempty"`
}

func (r *loadResult) AsTableRenderer() types.TableRenderer {
	return r.BatchReport
}

func runLoad(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	if len(args) == 0 && !loadAll {
		return out.Fail("load", utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"name at least one file, or pass --all").Build()))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v, _, err := newSession(ctx)
	if err != nil {
		return out.Fail("load", err)
	}
	defer v.Close()

	at, err := location{project: loadProject, driveID: flags.DriveID, path: loadFolder}.open(ctx, v)
	if err != nil {
		return out.Fail("load", err)
	}
	if err := selectFiles(ctx, v, at, args, loadAll); err != nil {
		return out.Fail("load", err)
	}
	out.Verbose("Selected %d files", v.Selection.Len())

	var rendered chan struct{}
	if !flags.Quiet && flags.OutputFormat == types.OutputFormatTable && term.IsTerminal(int(os.Stderr.Fd())) {
		events, unsubscribe := v.Events.Subscribe()
		defer unsubscribe()
		rendered = make(chan struct{})
		go func() {
			defer close(rendered)
			progress.Render(ctx, events, progress.NewCLIProgress(os.Stderr))
		}()
	}

	report, err := v.Load(ctx)
	if rendered != nil {
		v.Events.Close()
		<-rendered
	}
	if err != nil {
		return out.Fail("load", err)
	}

	result := &loadResult{BatchReport: report}
	if loadScene {
		result.Scene = v.Scene.Snapshot()
	}
	for _, f := range report.Files {
		if f.Error != nil {
			out.AddWarning(f.Error.Code, fmt.Sprintf("%s: %s", f.Name, f.Error.Message), "error")
		}
	}
	if err := out.WriteSuccess("load", result); err != nil {
		return err
	}
	if report.Failed > 0 || report.Skipped > 0 {
		return &exitError{code: utils.GetExitCode(utils.ErrCodeBatchPartialFailure)}
	}
	return nil
}

// selectFiles checks each named file in the tree. Names may carry a
// folder prefix relative to the opened folder.
func selectFiles(ctx context.Context, v *viewer.Context, at opened, names []string, all bool) error {
	if all {
		listing, err := v.Cache.Get(ctx, at.driveID, at.folderID)
		if err != nil {
			return err
		}
		for _, n := range listing.Nodes {
			if _, kind, ok := v.Tree.Node(n.ID); ok && kind == types.NodeKindSelectable && !v.Selection.IsSelected(n.ID) {
				if _, err := v.Check(n.ID); err != nil {
					return err
				}
			}
		}
	}

	for _, name := range names {
		name = strings.Trim(name, "/")
		dir, base := path.Split(name)
		folderID := at.folderID
		if dir != "" {
			var err error
			folderID, err = v.Tree.OpenPath(ctx, joinPath(at.path, dir))
			if err != nil {
				return err
			}
		}

		listing, err := v.Cache.Get(ctx, at.driveID, folderID)
		if err != nil {
			return err
		}
		id := ""
		for _, n := range listing.Nodes {
			if n.Name == base || n.ID == name {
				if n.IsFolder {
					return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
						fmt.Sprintf("%s is a folder", name)).Build())
				}
				id = n.ID
				break
			}
		}
		if id == "" {
			return utils.NewAppError(utils.NewCLIError(utils.ErrCodeFileNotFound,
				fmt.Sprintf("%s not found", name)).
				WithContext("folderId", folderID).
				Build())
		}
		if v.Selection.IsSelected(id) {
			continue
		}
		if _, err := v.Check(id); err != nil {
			return err
		}
	}

	if v.Selection.Len() == 0 {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"no model files selected").Build())
	}
	return nil
}
