// Package viewer owns one viewing session: the folder tree, the selection,
// the scene and the loader that fills it. Commands and the HTTP server
// drive a session through a Context instead of package-level state.
package viewer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dl-alexandre/bimview/internal/assets"
	"github.com/dl-alexandre/bimview/internal/auth"
	"github.com/dl-alexandre/bimview/internal/browse"
	"github.com/dl-alexandre/bimview/internal/config"
	"github.com/dl-alexandre/bimview/internal/loader"
	"github.com/dl-alexandre/bimview/internal/logging"
	"github.com/dl-alexandre/bimview/internal/model"
	"github.com/dl-alexandre/bimview/internal/progress"
	"github.com/dl-alexandre/bimview/internal/scene"
	"github.com/dl-alexandre/bimview/internal/store"
	"github.com/dl-alexandre/bimview/internal/styling"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
)

// Options configures a Context. Config and Store are required.
type Options struct {
	Config  *config.Config
	Store   store.FileStore
	Tokens  auth.TokenProvider
	Parsers *model.Registry
	Logger  logging.Logger
}

// Context is one viewing session
type Context struct {
	cfg      *config.Config
	store    store.FileStore
	logger   logging.Logger
	viewport scene.Viewport

	Cache     *browse.FolderCache
	Selection *browse.SelectionTracker
	Tree      *browse.Tree
	Scene     *scene.Manager
	Tracker   *progress.Tracker
	Events    *progress.Broadcaster
	Loader    *loader.Loader

	mu      sync.RWMutex
	project *ProjectView
}

// ProjectView describes where the tree is rooted after opening a project
type ProjectView struct {
	Name     string          `json:"name,omitempty"`
	Drive    store.DriveRef  `json:"drive"`
	FolderID string          `json:"folderId"`
	Tree     *types.TreeView `json:"tree"`
}

func (p *ProjectView) AsTableRenderer() types.TableRenderer {
	if p.Tree == nil {
		return &types.TreeView{}
	}
	return p.Tree
}

// New builds a session from configuration
func New(opts Options) (*Context, error) {
	if opts.Config == nil || opts.Store == nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"viewer needs a configuration and a file store").Build())
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.Parsers == nil {
		opts.Parsers = DefaultParsers()
	}
	cfg := opts.Config

	styles, err := styling.FromConfig(cfg.ColorRules)
	if err != nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build())
	}
	mode := assets.MatchMode(cfg.CompanionMatch)
	resolver := assets.NewResolver(cfg.SupportedExtensions, mode)

	c := &Context{
		cfg:       cfg,
		store:     opts.Store,
		logger:    opts.Logger,
		viewport:  scene.Viewport{Width: cfg.Viewport.Width, Height: cfg.Viewport.Height},
		Cache:     browse.NewFolderCache(opts.Store, cfg.GetCacheTTL(), opts.Logger),
		Selection: browse.NewSelectionTracker(),
		Scene:     scene.NewManager(opts.Logger),
		Tracker:   progress.NewTracker(),
		Events:    progress.NewBroadcaster(0),
	}
	c.Tree = browse.NewTree(c.Cache, c.Selection, resolver.Supports)
	c.Loader = loader.New(loader.Config{
		Store:    opts.Store,
		Cache:    c.Cache,
		Tokens:   opts.Tokens,
		Resolver: resolver,
		Parsers:  opts.Parsers,
		Styles:   styles,
		Scene:    c.Scene,
		Tracker:  c.Tracker,
		Events:   c.Events,
		Logger:   opts.Logger,
	})
	return c, nil
}

// Backend names the file store the session reads from
func (c *Context) Backend() string {
	return c.store.Name()
}

// OpenDrive roots the tree at folderID of driveID and expands it
func (c *Context) OpenDrive(ctx context.Context, driveID, folderID string) (*types.TreeView, error) {
	root, err := c.Tree.Reroot(ctx, driveID, folderID, "")
	if err != nil {
		return nil, err
	}
	c.setProject(&ProjectView{Drive: store.DriveRef{DriveID: driveID}, FolderID: root})
	return c.Tree.Visible(), nil
}

// OpenProject resolves a project's location, roots the tree at its drive
// and expands the folders along its specific path
func (c *Context) OpenProject(ctx context.Context, p config.Project) (*ProjectView, error) {
	ref := store.DriveRef{DriveID: p.DriveID, Name: p.Name}
	if p.SharedLink != "" {
		lr, ok := c.store.(store.LinkResolver)
		if !ok {
			return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
				fmt.Sprintf("the %s backend cannot open shared links", c.store.Name())).
				WithContext("project", p.Name).
				Build())
		}
		resolved, err := lr.ResolveSharedLink(ctx, p.SharedLink)
		if err != nil {
			return nil, err
		}
		ref = *resolved
	}

	folderID, err := c.Tree.Reroot(ctx, ref.DriveID, p.FolderID, p.SpecificPath)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Project opened",
		logging.F("project", p.Name),
		logging.F("driveId", ref.DriveID),
		logging.F("folderId", folderID),
	)

	view := &ProjectView{Name: p.Name, Drive: ref, FolderID: folderID}
	c.setProject(view)
	out := *view
	out.Tree = c.Tree.Visible()
	return &out, nil
}

// setProject records p as the current location. Selected file ids only
// make sense inside one drive, so switching drives clears the selection.
func (c *Context) setProject(p *ProjectView) {
	c.mu.Lock()
	prev := c.project
	c.project = p
	c.mu.Unlock()

	if prev != nil && prev.Drive.DriveID != p.Drive.DriveID {
		c.Selection.Clear()
	}
}

// Project returns the location opened last, if any
func (c *Context) Project() (*ProjectView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.project == nil {
		return nil, false
	}
	out := *c.project
	out.Tree = c.Tree.Visible()
	return &out, true
}

// Toggle expands or collapses a folder and returns the visible tree
func (c *Context) Toggle(ctx context.Context, id string) (*types.TreeView, error) {
	if _, err := c.Tree.Toggle(ctx, id); err != nil {
		return nil, err
	}
	return c.Tree.Visible(), nil
}

// Check flips the checked state of a file and returns the selection
func (c *Context) Check(id string) ([]types.SelectedFile, error) {
	if _, err := c.Tree.Check(id); err != nil {
		return nil, err
	}
	return c.Selection.Selected(), nil
}

// Load runs a batch over the current selection
func (c *Context) Load(ctx context.Context) (*types.BatchReport, error) {
	driveID, _ := c.Tree.Root()
	return c.Loader.Load(ctx, loader.Request{
		DriveID:  driveID,
		Files:    c.Selection.Selected(),
		Viewport: c.viewport,
	})
}

// Status is a point-in-time view of the session
type Status struct {
	Backend   string             `json:"backend"`
	State     loader.State       `json:"state"`
	FileIndex int                `json:"fileIndex"`
	Progress  types.LoadProgress `json:"progress"`
	Percent   float64            `json:"percentage"`
	Selected  int                `json:"selected"`
	Cache     browse.CacheStats  `json:"cache"`
	Time      time.Time          `json:"time"`
}

// Status reports loader state, progress and cache statistics
func (c *Context) Status() Status {
	state, idx := c.Loader.State()
	p := c.Tracker.Snapshot()
	return Status{
		Backend:   c.store.Name(),
		State:     state,
		FileIndex: idx,
		Progress:  p,
		Percent:   progress.Percentage(p),
		Selected:  c.Selection.Len(),
		Cache:     c.Cache.Stats(),
		Time:      time.Now(),
	}
}

// Close ends progress subscriptions and releases scene content
func (c *Context) Close() {
	c.Events.Close()
	c.Scene.Clear()
}
