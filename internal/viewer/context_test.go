package viewer

import (
	"context"
	"testing"

	"github.com/dl-alexandre/bimview/internal/config"
	"github.com/dl-alexandre/bimview/internal/loader"
	"github.com/dl-alexandre/bimview/internal/model"
	"github.com/dl-alexandre/bimview/internal/store"
	testutil "github.com/dl-alexandre/bimview/internal/testing"
	"github.com/dl-alexandre/bimview/internal/testing/mocks"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linkStore adds shared-link resolution to the mock store
type linkStore struct {
	*mocks.MockFileStore
	links map[string]store.DriveRef
}

func (s *linkStore) ResolveSharedLink(ctx context.Context, link string) (*store.DriveRef, error) {
	ref, ok := s.links[link]
	if !ok {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeFileNotFound, "no such link").Build())
	}
	return &ref, nil
}

func projectTree() *mocks.MockFileStore {
	s := mocks.NewMockFileStore()
	s.AddFolder(utils.RootFolderID,
		testutil.TestFolder("models", "Models", ""),
		testutil.TestFile("readme", "README.md", ""),
	)
	s.AddFolder("models",
		testutil.TestFolder("tower", "Tower A", ""),
	)
	s.AddFolder("tower",
		testutil.TestFile("ar1", "AR1.ifc", ""),
		testutil.TestFile("ts1", "TS1.glb", ""),
		testutil.TestFile("pdf", "Spec.pdf", ""),
	)
	s.SetContent("ar1", []byte(testutil.SampleIFC))
	s.SetContent("ts1", testutil.TriangleGLB(3))
	return s
}

func newSession(t *testing.T, s store.FileStore) *Context {
	t.Helper()
	c, err := New(Options{Config: config.DefaultConfig(), Store: s})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Options{Config: config.DefaultConfig()})
	assert.Equal(t, utils.ErrCodeInvalidArgument, utils.ErrorCode(err))
}

func TestNew_RejectsBadColorRule(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ColorRules = []config.ColorRule{{Prefix: "AR", Color: "orange", Opacity: 1}}
	_, err := New(Options{Config: cfg, Store: mocks.NewMockFileStore()})
	assert.Error(t, err)
}

func TestOpenProject_ByDriveAndPath(t *testing.T) {
	c := newSession(t, projectTree())

	view, err := c.OpenProject(context.Background(), config.Project{
		Name: "Tower", DriveID: "d1", SpecificPath: "Models/Tower A",
	})
	require.NoError(t, err)
	assert.Equal(t, "tower", view.FolderID)
	assert.Equal(t, "d1", view.Drive.DriveID)

	var names []string
	for _, r := range view.Tree.Items {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"Models", "Tower A", "AR1.ifc", "TS1.glb", "Spec.pdf", "README.md"}, names)

	got, ok := c.Project()
	require.True(t, ok)
	assert.Equal(t, "Tower", got.Name)
}

func TestOpenProject_MissingFolder(t *testing.T) {
	c := newSession(t, projectTree())
	_, err := c.OpenProject(context.Background(), config.Project{
		Name: "Tower", DriveID: "d1", SpecificPath: "Models/Tower B",
	})
	assert.Equal(t, utils.ErrCodeInvalidPath, utils.ErrorCode(err))
}

func TestOpenProject_SharedLink(t *testing.T) {
	const link = "https://contoso.sharepoint.com/:f:/s/TowerA/EoQx"

	t.Run("backend without link support", func(t *testing.T) {
		c := newSession(t, projectTree())
		_, err := c.OpenProject(context.Background(), config.Project{Name: "Tower", SharedLink: link})
		assert.Equal(t, utils.ErrCodeInvalidArgument, utils.ErrorCode(err))
	})

	t.Run("resolved to a drive", func(t *testing.T) {
		s := &linkStore{MockFileStore: projectTree(), links: map[string]store.DriveRef{
			link: {DriveID: "b!drive", SiteID: "site-1", Name: "Documents"},
		}}
		c := newSession(t, s)
		view, err := c.OpenProject(context.Background(), config.Project{Name: "Tower", SharedLink: link, SpecificPath: "Models"})
		require.NoError(t, err)
		assert.Equal(t, "b!drive", view.Drive.DriveID)
		assert.Equal(t, "models", view.FolderID)
		driveID, _ := c.Tree.Root()
		assert.Equal(t, "b!drive", driveID)
	})
}

func TestSession_CheckAndLoad(t *testing.T) {
	s := projectTree()
	c := newSession(t, s)
	ctx := context.Background()

	_, err := c.OpenProject(ctx, config.Project{Name: "Tower", DriveID: "d1", SpecificPath: "Models/Tower A"})
	require.NoError(t, err)

	_, err = c.Check("pdf")
	assert.Equal(t, utils.ErrCodeUnsupportedFormat, utils.ErrorCode(err))

	_, err = c.Check("ts1")
	require.NoError(t, err)
	selected, err := c.Check("ar1")
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "ts1", selected[0].ID)

	report, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Loaded)
	assert.Equal(t, []string{"ts1", "ar1"}, s.FetchCalls())
	assert.Equal(t, 1, s.ListCalls("tower"), "the loader reuses the tree's listing")

	st := c.Status()
	assert.Equal(t, loader.StateIdle, st.State)
	assert.InDelta(t, 100, st.Percent, 1e-9)
	assert.Equal(t, 2, st.Selected)
	assert.Equal(t, "mock", st.Backend)
}

func TestSession_SwitchingDriveClearsSelection(t *testing.T) {
	c := newSession(t, projectTree())
	ctx := context.Background()

	_, err := c.OpenProject(ctx, config.Project{Name: "Tower", DriveID: "d1", SpecificPath: "Models/Tower A"})
	require.NoError(t, err)
	_, err = c.Check("ar1")
	require.NoError(t, err)

	_, err = c.OpenDrive(ctx, "d1", "")
	require.NoError(t, err)
	assert.Len(t, c.Selection.Selected(), 1, "same drive keeps the selection")

	_, err = c.OpenDrive(ctx, "d2", "")
	require.NoError(t, err)
	assert.Empty(t, c.Selection.Selected())
}

func TestSession_FailedOpenKeepsPreviousDrive(t *testing.T) {
	s := projectTree()
	c := newSession(t, s)
	ctx := context.Background()

	_, err := c.OpenProject(ctx, config.Project{Name: "Tower", DriveID: "d1", SpecificPath: "Models/Tower A"})
	require.NoError(t, err)
	_, err = c.Check("ar1")
	require.NoError(t, err)
	_, towerRoot := c.Tree.Root()

	_, err = c.OpenProject(ctx, config.Project{Name: "Other", DriveID: "d2", SpecificPath: "Nope"})
	assert.Equal(t, utils.ErrCodeInvalidPath, utils.ErrorCode(err))

	driveID, rootID := c.Tree.Root()
	assert.Equal(t, "d1", driveID)
	assert.Equal(t, towerRoot, rootID)
	view, ok := c.Project()
	require.True(t, ok)
	assert.Equal(t, "d1", view.Drive.DriveID)
	assert.Len(t, c.Selection.Selected(), 1)

	// the restored tree still knows the checked file
	_, kind, ok := c.Tree.Node("ar1")
	require.True(t, ok)
	assert.Equal(t, types.NodeKindSelectable, kind)
}

func TestSession_ToggleCollapses(t *testing.T) {
	c := newSession(t, projectTree())
	ctx := context.Background()

	view, err := c.OpenDrive(ctx, "d1", "")
	require.NoError(t, err)
	require.Len(t, view.Items, 2)

	view, err = c.Toggle(ctx, "models")
	require.NoError(t, err)
	assert.Len(t, view.Items, 3)

	view, err = c.Toggle(ctx, "models")
	require.NoError(t, err)
	assert.Len(t, view.Items, 2)

	_, err = c.Toggle(ctx, "readme")
	assert.Equal(t, utils.ErrCodeInvalidArgument, utils.ErrorCode(err))
}

func TestDefaultParsers(t *testing.T) {
	r := DefaultParsers()
	for _, f := range []model.Format{model.FormatIFC, model.FormatGLTF, model.FormatGLB} {
		_, err := r.For(f)
		assert.NoError(t, err, string(f))
	}
}
