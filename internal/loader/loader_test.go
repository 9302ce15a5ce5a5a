package loader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dl-alexandre/bimview/internal/assets"
	"github.com/dl-alexandre/bimview/internal/browse"
	"github.com/dl-alexandre/bimview/internal/config"
	"github.com/dl-alexandre/bimview/internal/model"
	"github.com/dl-alexandre/bimview/internal/model/gltf"
	"github.com/dl-alexandre/bimview/internal/model/ifc"
	"github.com/dl-alexandre/bimview/internal/progress"
	"github.com/dl-alexandre/bimview/internal/scene"
	"github.com/dl-alexandre/bimview/internal/styling"
	testutil "github.com/dl-alexandre/bimview/internal/testing"
	"github.com/dl-alexandre/bimview/internal/testing/mocks"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var viewport = scene.Viewport{Width: 800, Height: 600}

// projectStore holds one folder with an IFC file, a glTF with its buffer,
// a GLB and a text file, plus a second folder with another GLB
func projectStore() *mocks.MockFileStore {
	s := mocks.NewMockFileStore()
	s.AddFolder("A",
		testutil.TestFile("ar1", "AR1.ifc", ""),
		testutil.TestFile("hv1", "HV1.gltf", ""),
		testutil.TestFile("hv1b", "HV1.bin", ""),
		testutil.TestFile("ts1", "TS1.glb", ""),
		testutil.TestFile("txt", "notes.txt", ""),
	)
	s.AddFolder("B", testutil.TestFile("ts2", "TS2.glb", ""))
	s.SetContent("ar1", []byte(testutil.SampleIFC))
	s.SetContent("hv1", testutil.TriangleGLTF("HV1.bin", 20))
	s.SetContent("hv1b", testutil.TriangleBin())
	s.SetContent("ts1", testutil.TriangleGLB(-5))
	s.SetContent("ts2", testutil.TriangleGLB(40))
	s.SetContent("txt", []byte("hello"))
	return s
}

type fixture struct {
	store  *mocks.MockFileStore
	tokens *mocks.MockTokenProvider
	scene  *scene.Manager
	events *progress.Broadcaster
	loader *Loader
}

func newFixture(t *testing.T, s *mocks.MockFileStore, parsers *model.Registry) *fixture {
	t.Helper()
	if parsers == nil {
		parsers = model.NewRegistry()
		parsers.Register(model.FormatIFC, ifc.New())
		parsers.Register(model.FormatGLTF, gltf.New())
		parsers.Register(model.FormatGLB, gltf.New())
	}
	styles, err := styling.FromConfig(config.DefaultColorRules())
	require.NoError(t, err)

	f := &fixture{
		store:  s,
		tokens: &mocks.MockTokenProvider{},
		scene:  scene.NewManager(nil),
		events: progress.NewBroadcaster(256),
	}
	f.loader = New(Config{
		Store:    s,
		Cache:    browse.NewFolderCache(s, 0, nil),
		Tokens:   f.tokens,
		Resolver: assets.NewResolver(utils.DefaultSupportedExtensions, assets.MatchExact),
		Parsers:  parsers,
		Styles:   styles,
		Scene:    f.scene,
		Events:   f.events,
	})
	return f
}

func mockParsers(p *mocks.MockParser) *model.Registry {
	r := model.NewRegistry()
	for _, format := range []model.Format{model.FormatIFC, model.FormatGLTF, model.FormatGLB} {
		r.Register(format, p)
	}
	return r
}

func sel(id, name, parent string) types.SelectedFile {
	return testutil.TestSelection(id, name, parent)
}

func statuses(r *types.BatchReport) []types.FileStatus {
	out := make([]types.FileStatus, len(r.Files))
	for i, f := range r.Files {
		out[i] = f.Status
	}
	return out
}

func TestLoad_EndToEnd(t *testing.T) {
	f := newFixture(t, projectStore(), nil)

	report, err := f.loader.Load(context.Background(), Request{
		DriveID:  "d1",
		Viewport: viewport,
		Files: []types.SelectedFile{
			sel("ar1", "AR1.ifc", "A"),
			sel("hv1", "HV1.gltf", "A"),
			sel("ts1", "TS1.glb", "A"),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Loaded)
	assert.Equal(t, 0, report.Failed)
	assert.InDelta(t, 100, report.Progress, 1e-9)
	assert.Equal(t, []string{"ar1", "hv1", "hv1b", "ts1"}, f.store.FetchCalls())
	assert.Equal(t, 1, f.store.ListCalls("A"), "siblings are listed once per batch")
	assert.Equal(t, 1, f.tokens.Calls())

	models := f.scene.Models()
	require.Len(t, models, 3)
	wantColors := []string{"#ffa500", "#0000ff", "#800080"}
	for i, m := range models {
		for _, mat := range m.Materials() {
			assert.Equal(t, wantColors[i], mat.Hex(), m.Name)
			assert.InDelta(t, 0.7, mat.Opacity, 1e-6)
			assert.True(t, mat.Transparent)
			assert.True(t, mat.DoubleSided)
		}
	}

	// union spans the GLB at x=-5 to the glTF at x=21
	require.NotNil(t, report.Bounds)
	assert.InDelta(t, -5, report.Bounds.Min[0], 1e-4)
	assert.InDelta(t, 21, report.Bounds.Max[0], 1e-4)
	assert.InDelta(t, (report.Bounds.Min[0]+report.Bounds.Max[0])/2, report.Camera.Target[0], 1e-4)

	state, _ := f.loader.State()
	assert.Equal(t, StateIdle, state)
}

func TestLoad_OneBadFileDoesNotBlockTheRest(t *testing.T) {
	p := &mocks.MockParser{ParseFunc: func(ctx context.Context, in model.Input) (*model.Model, error) {
		if in.Name == "HV1.gltf" {
			return nil, errors.New("corrupt accessor")
		}
		return mocks.TriangleModel(in.Name, 0), nil
	}}
	f := newFixture(t, projectStore(), mockParsers(p))

	report, err := f.loader.Load(context.Background(), Request{
		DriveID:  "d1",
		Viewport: viewport,
		Files: []types.SelectedFile{
			sel("ar1", "AR1.ifc", "A"),
			sel("hv1", "HV1.gltf", "A"),
			sel("ts1", "TS1.glb", "A"),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []types.FileStatus{types.FileStatusLoaded, types.FileStatusFailed, types.FileStatusLoaded}, statuses(report))
	assert.Equal(t, 2, report.Loaded)
	assert.Equal(t, 1, report.Failed)
	require.NotNil(t, report.Files[1].Error)
	assert.Equal(t, utils.ErrCodeParseFailed, report.Files[1].Error.Code)
	assert.Len(t, f.scene.Models(), 2)
	assert.InDelta(t, 100, report.Progress, 1e-9, "failed files still count toward completion")
}

func TestLoad_CompanionHandling(t *testing.T) {
	t.Run("buffer handed to the parser", func(t *testing.T) {
		p := &mocks.MockParser{}
		f := newFixture(t, projectStore(), mockParsers(p))
		_, err := f.loader.Load(context.Background(), Request{DriveID: "d1", Viewport: viewport,
			Files: []types.SelectedFile{sel("hv1", "HV1.gltf", "A")}})
		require.NoError(t, err)

		inputs := p.Inputs()
		require.Len(t, inputs, 1)
		assert.Equal(t, testutil.TriangleBin(), inputs[0].Auxiliary)
		assert.Equal(t, "HV1.bin", inputs[0].AuxiliaryName)
	})

	t.Run("missing companion is a warning", func(t *testing.T) {
		s := mocks.NewMockFileStore()
		s.AddFolder("A", testutil.TestFile("hv1", "HV1.gltf", ""))
		s.SetContent("hv1", testutil.TriangleGLTF("HV1.bin", 0))
		p := &mocks.MockParser{}
		f := newFixture(t, s, mockParsers(p))

		report, err := f.loader.Load(context.Background(), Request{DriveID: "d1", Viewport: viewport,
			Files: []types.SelectedFile{sel("hv1", "HV1.gltf", "A")}})
		require.NoError(t, err)
		assert.Equal(t, types.FileStatusLoaded, report.Files[0].Status)
		require.NotEmpty(t, report.Files[0].Warnings)
		assert.Contains(t, report.Files[0].Warnings[0], "HV1.bin not found")
		assert.Nil(t, p.Inputs()[0].Auxiliary)
	})

	t.Run("real parser fails without its buffer", func(t *testing.T) {
		s := mocks.NewMockFileStore()
		s.AddFolder("A", testutil.TestFile("hv1", "HV1.gltf", ""))
		s.SetContent("hv1", testutil.TriangleGLTF("HV1.bin", 0))
		f := newFixture(t, s, nil)

		report, err := f.loader.Load(context.Background(), Request{DriveID: "d1", Viewport: viewport,
			Files: []types.SelectedFile{sel("hv1", "HV1.gltf", "A")}})
		require.NoError(t, err)
		assert.Equal(t, types.FileStatusFailed, report.Files[0].Status)
		assert.Equal(t, utils.ErrCodeParseFailed, report.Files[0].Error.Code)
		assert.NotEmpty(t, report.Files[0].Warnings)
	})

	t.Run("companion download failure is a warning", func(t *testing.T) {
		s := projectStore()
		s.FetchContentFunc = func(ctx context.Context, driveID, fileID string, w io.Writer) (int64, error) {
			if fileID == "hv1b" {
				return 0, errors.New("connection reset")
			}
			n, err := w.Write(testutil.TriangleGLTF("HV1.bin", 0))
			return int64(n), err
		}
		p := &mocks.MockParser{}
		f := newFixture(t, s, mockParsers(p))

		report, err := f.loader.Load(context.Background(), Request{DriveID: "d1", Viewport: viewport,
			Files: []types.SelectedFile{sel("hv1", "HV1.gltf", "A")}})
		require.NoError(t, err)
		assert.Equal(t, types.FileStatusLoaded, report.Files[0].Status)
		require.Len(t, report.Files[0].Warnings, 1)
		assert.Contains(t, report.Files[0].Warnings[0], "could not be downloaded")
	})
}

func TestLoad_ContentMismatch(t *testing.T) {
	s := projectStore()
	s.SetContent("ar1", testutil.TriangleGLB(0))
	f := newFixture(t, s, nil)

	report, err := f.loader.Load(context.Background(), Request{DriveID: "d1", Viewport: viewport,
		Files: []types.SelectedFile{sel("ar1", "AR1.ifc", "A"), sel("ts1", "TS1.glb", "A")}})
	require.NoError(t, err)
	assert.Equal(t, []types.FileStatus{types.FileStatusFailed, types.FileStatusLoaded}, statuses(report))
	assert.Equal(t, utils.ErrCodeUnsupportedFormat, report.Files[0].Error.Code)
}

func TestLoad_TokenFailureIsFatal(t *testing.T) {
	f := newFixture(t, projectStore(), nil)
	f.tokens.Err = errors.New("dns lookup failed")

	report, err := f.loader.Load(context.Background(), Request{DriveID: "d1", Viewport: viewport,
		Files: []types.SelectedFile{sel("ar1", "AR1.ifc", "A")}})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.Equal(t, utils.ErrCodeAuthRequired, utils.ErrorCode(err))
	assert.Empty(t, f.store.FetchCalls())
	assert.False(t, f.scene.Ready())
}

func TestLoad_SceneInitFailureIsFatal(t *testing.T) {
	f := newFixture(t, projectStore(), nil)

	_, err := f.loader.Load(context.Background(), Request{DriveID: "d1", Viewport: scene.Viewport{},
		Files: []types.SelectedFile{sel("ar1", "AR1.ifc", "A")}})
	assert.Equal(t, utils.ErrCodeSceneInitFailed, utils.ErrorCode(err))
	assert.Empty(t, f.store.FetchCalls())
}

func TestLoad_AuthRejectionMidBatchSkipsTheRest(t *testing.T) {
	s := projectStore()
	s.FetchContentFunc = func(ctx context.Context, driveID, fileID string, w io.Writer) (int64, error) {
		if fileID == "hv1" {
			return 0, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthExpired, "token expired").WithHTTPStatus(401).Build())
		}
		n, err := w.Write([]byte(testutil.SampleIFC))
		return int64(n), err
	}
	f := newFixture(t, s, nil)

	report, err := f.loader.Load(context.Background(), Request{DriveID: "d1", Viewport: viewport,
		Files: []types.SelectedFile{sel("ar1", "AR1.ifc", "A"), sel("hv1", "HV1.gltf", "A"), sel("ts1", "TS1.glb", "A")}})
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeAuthExpired, utils.ErrorCode(err))
	require.NotNil(t, report)
	assert.Equal(t, []types.FileStatus{types.FileStatusLoaded, types.FileStatusFailed, types.FileStatusSkipped}, statuses(report))
	assert.Len(t, f.scene.Models(), 1)
}

func TestLoad_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &mocks.MockParser{ParseFunc: func(_ context.Context, in model.Input) (*model.Model, error) {
		cancel()
		return mocks.TriangleModel(in.Name, 0), nil
	}}
	f := newFixture(t, projectStore(), mockParsers(p))

	report, err := f.loader.Load(ctx, Request{DriveID: "d1", Viewport: viewport,
		Files: []types.SelectedFile{sel("ar1", "AR1.ifc", "A"), sel("ts1", "TS1.glb", "A")}})
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeCancelled, utils.ErrorCode(err))
	assert.Equal(t, []types.FileStatus{types.FileStatusLoaded, types.FileStatusSkipped}, statuses(report))
	assert.Equal(t, []string{"ar1"}, f.store.FetchCalls())
}

func TestLoad_RejectsConcurrentBatch(t *testing.T) {
	s := projectStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s.FetchContentFunc = func(ctx context.Context, driveID, fileID string, w io.Writer) (int64, error) {
		once.Do(func() { close(entered) })
		<-release
		n, err := w.Write([]byte(testutil.SampleIFC))
		return int64(n), err
	}
	f := newFixture(t, s, nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.loader.Load(context.Background(), Request{DriveID: "d1", Viewport: viewport,
			Files: []types.SelectedFile{sel("ar1", "AR1.ifc", "A")}})
		done <- err
	}()

	<-entered
	assert.True(t, f.loader.Busy())
	state, idx := f.loader.State()
	assert.Equal(t, StateLoading, state)
	assert.Equal(t, 0, idx)

	_, err := f.loader.Load(context.Background(), Request{DriveID: "d1", Viewport: viewport,
		Files: []types.SelectedFile{sel("ts1", "TS1.glb", "A")}})
	assert.Equal(t, utils.ErrCodeBatchInProgress, utils.ErrorCode(err))

	close(release)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first batch did not finish")
	}
	assert.False(t, f.loader.Busy())
}

func TestLoad_ProgressIsMonotonic(t *testing.T) {
	f := newFixture(t, projectStore(), nil)
	events, unsubscribe := f.events.Subscribe()
	defer unsubscribe()

	_, err := f.loader.Load(context.Background(), Request{DriveID: "d1", Viewport: viewport,
		Files: []types.SelectedFile{
			sel("ar1", "AR1.ifc", "A"),
			sel("missing", "Gone.ifc", "A"),
			sel("ts1", "TS1.glb", "A"),
			sel("ts2", "TS2.glb", "B"),
		}})
	require.NoError(t, err)

	var got []progress.Event
	for {
		select {
		case ev := <-events:
			got = append(got, ev)
			continue
		default:
		}
		break
	}
	require.NotEmpty(t, got)
	assert.Equal(t, progress.EventBatchStarted, got[0].Type)
	assert.Equal(t, progress.EventBatchFinished, got[len(got)-1].Type)
	assert.InDelta(t, 100, got[len(got)-1].Percentage, 1e-9)

	last := -1.0
	finished := 0
	for _, ev := range got {
		assert.GreaterOrEqual(t, ev.Percentage, last, "progress went backwards at %s %s", ev.Type, ev.File)
		last = ev.Percentage
		if ev.Type == progress.EventFileFinished {
			finished++
		}
	}
	assert.Equal(t, 4, finished)
	assert.Zero(t, f.events.Dropped())
}

func TestLoad_SelectionOrderIsLoadOrder(t *testing.T) {
	p := &mocks.MockParser{}
	f := newFixture(t, projectStore(), mockParsers(p))

	_, err := f.loader.Load(context.Background(), Request{DriveID: "d1", Viewport: viewport,
		Files: []types.SelectedFile{sel("ts2", "TS2.glb", "B"), sel("ar1", "AR1.ifc", "A"), sel("ts1", "TS1.glb", "A")}})
	require.NoError(t, err)

	var names []string
	for _, in := range p.Inputs() {
		names = append(names, in.Name)
	}
	assert.Equal(t, []string{"TS2.glb", "AR1.ifc", "TS1.glb"}, names)
	assert.Equal(t, 1, f.store.ListCalls("A"))
	assert.Equal(t, 1, f.store.ListCalls("B"))
}

func TestLoad_ClearsPreviousBatch(t *testing.T) {
	f := newFixture(t, projectStore(), nil)
	ctx := context.Background()

	_, err := f.loader.Load(ctx, Request{DriveID: "d1", Viewport: viewport,
		Files: []types.SelectedFile{sel("ar1", "AR1.ifc", "A")}})
	require.NoError(t, err)
	first := f.scene.Models()
	require.NotEmpty(t, first)

	_, err = f.loader.Load(ctx, Request{DriveID: "d1", Viewport: viewport,
		Files: []types.SelectedFile{sel("ts1", "TS1.glb", "A")}})
	require.NoError(t, err)

	for _, m := range first {
		assert.True(t, m.Disposed())
	}
	require.Len(t, f.scene.Models(), 1)
	assert.Equal(t, "TS1.glb", f.scene.Models()[0].Name)
	assert.Equal(t, 1, f.store.ListCalls("A"), "the second batch reuses the cached listing")
}

func TestLoad_EmptySelection(t *testing.T) {
	f := newFixture(t, projectStore(), nil)
	report, err := f.loader.Load(context.Background(), Request{DriveID: "d1", Viewport: viewport})
	require.NoError(t, err)
	assert.Empty(t, report.Files)
	assert.InDelta(t, 100, report.Progress, 1e-9)
	assert.Equal(t, [3]float32{10, 10, 10}, report.Camera.Position)
}

func TestProgressWriter_ReportsOncePerPercent(t *testing.T) {
	var sink bytes.Buffer
	var fracs []float64
	w := &progressWriter{w: &sink, total: 10000, report: func(f float64) { fracs = append(fracs, f) }}

	chunk := make([]byte, 7)
	for sink.Len() < 10000 {
		n := 10000 - sink.Len()
		if n > len(chunk) {
			n = len(chunk)
		}
		_, err := w.Write(chunk[:n])
		require.NoError(t, err)
	}

	assert.Len(t, fracs, 100)
	assert.Equal(t, 1.0, fracs[len(fracs)-1])
	for i := 1; i < len(fracs); i++ {
		assert.Greater(t, fracs[i], fracs[i-1])
	}

	// unknown size reports nothing
	quiet := &progressWriter{w: &sink, report: func(float64) { t.Error("unexpected report") }}
	_, err := quiet.Write(chunk)
	require.NoError(t, err)
}
