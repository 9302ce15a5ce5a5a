package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"runtime"
	"strings"

	"github.com/dl-alexandre/bimview/internal/auth"
	"github.com/dl-alexandre/bimview/internal/config"
	"github.com/dl-alexandre/bimview/internal/utils"
	"github.com/dl-alexandre/bimview/internal/viewer"
	"golang.org/x/term"
)

// loadConfig reads the config file named by --config, or the default one,
// and applies the global flag overrides
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if globalFlags.ConfigPath != "" {
		cfg, err = config.LoadFrom(globalFlags.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build())
	}

	if globalFlags.Backend != "" {
		cfg.Backend = globalFlags.Backend
	}
	if globalFlags.CacheTTL >= 0 {
		cfg.CacheTTL = globalFlags.CacheTTL
	}
	return cfg, nil
}

func saveConfig(cfg *config.Config) error {
	if globalFlags.ConfigPath != "" {
		return cfg.SaveTo(globalFlags.ConfigPath)
	}
	return cfg.Save()
}

func profileFor(cfg *config.Config) string {
	if globalFlags.Profile != "" {
		return globalFlags.Profile
	}
	return cfg.DefaultProfile
}

func loadProjects() (*config.ProjectSet, error) {
	p, err := config.GetProjectsPath()
	if err != nil {
		return nil, err
	}
	set, err := config.LoadProjects(p)
	if err != nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).
			WithContext("path", p).
			Build())
	}
	return set, nil
}

// isInteractive reports whether a person can answer a browser sign-in
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stderr.Fd()))
}

// newSession assembles the configured backend and a viewer session on it.
// On a terminal a missing sign-in starts the browser flow; otherwise it
// is an error.
func newSession(ctx context.Context) (*viewer.Context, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	mgr, err := viewer.NewAuthManager(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	profile := profileFor(cfg)
	opts := viewer.BackendOptions{Profile: profile, Logger: logger}
	if debugTransport != nil {
		opts.Transport = debugTransport
	}
	if mgr != nil && isInteractive() {
		opts.Interactive = auth.NewInteractiveProvider(mgr, profile, openBrowser, auth.OAuthAuthOptions{
			Out: os.Stderr,
			In:  os.Stdin,
		})
	}

	backend, err := viewer.NewBackend(ctx, cfg, mgr, opts)
	if err != nil {
		return nil, nil, err
	}

	v, err := viewer.New(viewer.Options{
		Config: cfg,
		Store:  backend.Store,
		Tokens: backend.Tokens,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return v, cfg, nil
}

// location names where a command starts browsing: a configured project
// or a drive, plus a folder path below it
type location struct {
	project string
	driveID string
	path    string
}

// opened is where location.open left the tree. path is relative to the
// tree's root folder.
type opened struct {
	driveID  string
	folderID string
	path     string
}

// open roots the session's tree at loc and expands the folders down to
// loc.path
func (loc location) open(ctx context.Context, v *viewer.Context) (opened, error) {
	if loc.project != "" {
		projects, err := loadProjects()
		if err != nil {
			return opened{}, err
		}
		p, ok := projects.Find(loc.project)
		if !ok {
			return opened{}, utils.NewAppError(utils.NewCLIError(utils.ErrCodeProjectNotFound,
				fmt.Sprintf("project %q is not configured", loc.project)).Build())
		}
		p.SpecificPath = joinPath(p.SpecificPath, loc.path)
		view, err := v.OpenProject(ctx, p)
		if err != nil {
			return opened{}, err
		}
		return opened{driveID: view.Drive.DriveID, folderID: view.FolderID, path: p.SpecificPath}, nil
	}

	if loc.driveID == "" && v.Backend() == utils.BackendS3 {
		return opened{}, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"--drive-id (bucket) or --project is required for the s3 backend").Build())
	}
	if _, err := v.OpenDrive(ctx, loc.driveID, ""); err != nil {
		return opened{}, err
	}
	folderID, err := v.Tree.OpenPath(ctx, loc.path)
	if err != nil {
		return opened{}, err
	}
	return opened{driveID: loc.driveID, folderID: folderID, path: loc.path}, nil
}

func joinPath(base, rel string) string {
	base = strings.Trim(base, "/")
	rel = strings.Trim(rel, "/")
	switch {
	case base == "":
		return rel
	case rel == "":
		return base
	}
	return path.Join(base, rel)
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}
	return cmd.Start()
}
