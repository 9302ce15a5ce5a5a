package scene

import (
	"testing"

	"cogentcore.org/core/math32"
	"github.com/dl-alexandre/bimview/internal/model"
	"github.com/dl-alexandre/bimview/internal/testing/mocks"
	"github.com/dl-alexandre/bimview/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ready(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(nil)
	require.NoError(t, m.Init(Viewport{Width: 800, Height: 600}))
	return m
}

func assertFinite(t *testing.T, c Camera) {
	t.Helper()
	for _, v := range []math32.Vector3{c.Position, c.Target} {
		assert.True(t, finiteVec(v), "vector %v", v)
	}
	assert.True(t, finite(c.Near) && finite(c.Far) && c.Far > c.Near, "near %v far %v", c.Near, c.Far)
}

func TestInit(t *testing.T) {
	m := NewManager(nil)
	assert.False(t, m.Ready())

	for _, vp := range []Viewport{{0, 600}, {800, 0}, {-1, -1}} {
		err := m.Init(vp)
		require.Error(t, err)
		assert.Equal(t, utils.ErrCodeSceneInitFailed, utils.ErrorCode(err))
	}
	assert.False(t, m.Ready())

	require.NoError(t, m.Init(Viewport{Width: 800, Height: 400}))
	assert.True(t, m.Ready())
	assert.InDelta(t, 2.0, m.Camera().Aspect, 1e-6)
	assert.Len(t, m.Snapshot().Lights, 2)
}

func TestAdd(t *testing.T) {
	err := NewManager(nil).Add(mocks.TriangleModel("a", 0))
	assert.Equal(t, utils.ErrCodeSceneInitFailed, utils.ErrorCode(err))

	m := ready(t)
	assert.Error(t, m.Add(nil))
	require.NoError(t, m.Add(mocks.TriangleModel("a", 0)))

	gone := mocks.TriangleModel("b", 0)
	gone.Dispose()
	assert.Error(t, m.Add(gone))
	assert.Len(t, m.Models(), 1)
}

func TestClear_DisposesAndRestoresLights(t *testing.T) {
	m := ready(t)
	a := mocks.TriangleModel("a", 0)
	b := mocks.TriangleModel("b", 3)
	require.NoError(t, m.Add(a))
	require.NoError(t, m.Add(b))

	m.Clear()
	assert.True(t, a.Disposed())
	assert.True(t, b.Disposed())
	assert.True(t, a.Meshes[0].Material.Disposed())
	assert.Empty(t, m.Models())

	snap := m.Snapshot()
	require.Len(t, snap.Lights, 2)
	assert.Equal(t, LightAmbient, snap.Lights[0].Kind)
	assert.InDelta(t, 0.8, snap.Lights[0].Intensity, 1e-6)
	assert.Equal(t, LightDirectional, snap.Lights[1].Kind)
	assert.InDelta(t, 0.5, snap.Lights[1].Intensity, 1e-6)
	assert.Equal(t, [3]float32{0, 10, 0}, snap.Lights[1].Position)
}

func TestFitToContent_FramesUnion(t *testing.T) {
	m := ready(t)
	require.NoError(t, m.Add(mocks.TriangleModel("a", 0)))
	require.NoError(t, m.Add(mocks.TriangleModel("b", 9)))

	cam := m.FitToContent()
	assertFinite(t, cam)
	assert.Equal(t, math32.Vec3(5, 0.5, 0), cam.Target)

	// box is 10 wide; half-width over tan(22.5deg) with a 1.5 margin
	want := float32(5 / 0.41421356 * 1.5)
	assert.InDelta(t, want, cam.Position.Sub(cam.Target).Length(), 1e-3)

	// the default camera sits on the (1,1,1) diagonal and fitting keeps that direction
	dir := cam.Position.Sub(cam.Target).Normal()
	assert.InDelta(t, dir.X, dir.Y, 1e-5)
	assert.InDelta(t, dir.Y, dir.Z, 1e-5)

	b := m.Bounds()
	farthest := cam.Position.Sub(b.Min).Length()
	assert.Greater(t, cam.Far, farthest)
}

func TestFitToContent_DegenerateScenes(t *testing.T) {
	point := &model.Model{Name: "point", Meshes: []*model.Mesh{{
		Positions: []math32.Vector3{math32.Vec3(3, 3, 3)},
		Material:  model.DefaultMaterial(),
	}}}

	tests := []struct {
		name   string
		models []*model.Model
	}{
		{"empty scene", nil},
		{"zero-size box", []*model.Model{point}},
		{"model without geometry", []*model.Model{{Name: "void"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ready(t)
			for _, mdl := range tt.models {
				require.NoError(t, m.Add(mdl))
			}
			cam := m.FitToContent()
			assertFinite(t, cam)
			assert.Equal(t, math32.Vec3(10, 10, 10), cam.Position)
			assert.Equal(t, math32.Vec3(0, 0, 0), cam.Target)
		})
	}
}

func TestFitToContent_NaNCameraRecovers(t *testing.T) {
	m := ready(t)
	require.NoError(t, m.Add(mocks.TriangleModel("a", 0)))
	m.camera.Position = math32.Vec3(math32.NaN(), 0, 0)
	m.camera.FOV = 0

	cam := m.FitToContent()
	assertFinite(t, cam)
	assert.Equal(t, float32(utils.DefaultCameraFOV), cam.FOV)
}

func TestDiagnostics(t *testing.T) {
	m := ready(t)
	d := m.Diagnostics()
	assert.Contains(t, d.Warnings, "scene is empty")
	assert.Nil(t, d.Bounds)

	require.NoError(t, m.Add(mocks.TriangleModel("a", 0)))
	require.NoError(t, m.Add(&model.Model{Name: "void"}))
	m.FitToContent()

	d = m.LogDiagnostics()
	assert.Equal(t, 2, d.Models)
	assert.Equal(t, 1, d.Meshes)
	assert.Equal(t, 3, d.Vertices)
	assert.Equal(t, 1, d.Triangles)
	assert.Equal(t, 2, d.Lights)
	require.NotNil(t, d.Bounds)
	assert.Equal(t, [3]float32{1, 1, 0}, d.Bounds.Size)
	assert.Equal(t, []string{"model void has no vertices"}, d.Warnings)
}

func TestSnapshot(t *testing.T) {
	m := ready(t)
	require.NoError(t, m.Add(mocks.TriangleModel("AR1.ifc", 0)))
	snap := m.Snapshot()

	require.Len(t, snap.Models, 1)
	assert.Equal(t, "AR1.ifc", snap.Models[0].Name)
	assert.Equal(t, "ifc", snap.Models[0].Format)
	require.Len(t, snap.Models[0].Materials, 1)
	assert.Equal(t, "#cccccc", snap.Models[0].Materials[0].Color)
	assert.Equal(t, [][]string{{"AR1.ifc", "ifc", "1", "3", "#cccccc"}}, snap.Rows())
}
