// Package scene owns the set of loaded models, the light rig and the camera
// that frames them. It is a data model for a renderer; nothing here draws.
package scene

import (
	"fmt"
	"image/color"
	"sync"

	"cogentcore.org/core/math32"
	"github.com/dl-alexandre/bimview/internal/logging"
	"github.com/dl-alexandre/bimview/internal/model"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
)

// Viewport is the pixel size of the surface the camera renders to
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Aspect returns width / height
func (v Viewport) Aspect() float32 {
	return float32(v.Width) / float32(v.Height)
}

type LightKind string

const (
	LightAmbient     LightKind = "ambient"
	LightDirectional LightKind = "directional"
)

// Light is one entry of the scene's light rig. Position only applies to
// directional lights, which shine toward the origin.
type Light struct {
	Name      string         `json:"name"`
	Kind      LightKind      `json:"kind"`
	Color     color.RGBA     `json:"-"`
	Intensity float32        `json:"intensity"`
	Position  math32.Vector3 `json:"position"`
}

// DefaultLights is the rig every cleared scene starts with: white ambient
// light plus a white directional light overhead
func DefaultLights() []Light {
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	return []Light{
		{Name: "ambient", Kind: LightAmbient, Color: white, Intensity: utils.AmbientIntensity},
		{Name: "sun", Kind: LightDirectional, Color: white, Intensity: utils.DirectionalIntensity, Position: math32.Vec3(0, 10, 0)},
	}
}

// Camera is a perspective camera looking from Position at Target
type Camera struct {
	Position math32.Vector3
	Target   math32.Vector3
	Up       math32.Vector3
	// FOV is the vertical field of view in degrees
	FOV    float32
	Aspect float32
	Near   float32
	Far    float32
}

// DefaultCamera looks at the origin from (10, 10, 10)
func DefaultCamera(aspect float32) Camera {
	return Camera{
		Position: math32.Vec3(10, 10, 10),
		Target:   math32.Vec3(0, 0, 0),
		Up:       math32.Vec3(0, 1, 0),
		FOV:      utils.DefaultCameraFOV,
		Aspect:   aspect,
		Near:     utils.DefaultCameraNear,
		Far:      utils.DefaultCameraFar,
	}
}

// Summary converts the camera for JSON output
func (c Camera) Summary() types.CameraSummary {
	return types.CameraSummary{
		Position: vec(c.Position),
		Target:   vec(c.Target),
		FOV:      c.FOV,
		Near:     c.Near,
		Far:      c.Far,
	}
}

func vec(v math32.Vector3) [3]float32 {
	return [3]float32{v.X, v.Y, v.Z}
}

// SummarizeBounds converts a box for JSON output. An empty box yields nil.
func SummarizeBounds(b math32.Box3) *types.BoundsSummary {
	if b.IsEmpty() {
		return nil
	}
	return &types.BoundsSummary{
		Min:    vec(b.Min),
		Max:    vec(b.Max),
		Center: vec(b.Center()),
		Size:   vec(b.Size()),
	}
}

// Manager owns the scene. All methods are safe for concurrent use, but the
// loader is its only writer while a batch runs.
type Manager struct {
	logger logging.Logger
	margin float32

	mu       sync.RWMutex
	ready    bool
	viewport Viewport
	camera   Camera
	lights   []Light
	models   []*model.Model
}

// NewManager creates an uninitialized scene. Call Init before adding models.
func NewManager(logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Manager{
		logger: logger,
		margin: utils.DefaultFitMargin,
		camera: DefaultCamera(1),
	}
}

// Init prepares the scene for a viewport. A zero-sized viewport cannot
// be framed and fails with SCENE_INIT_FAILED. Calling Init again only
// updates the viewport.
func (m *Manager) Init(vp Viewport) error {
	if vp.Width <= 0 || vp.Height <= 0 {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeSceneInitFailed,
			fmt.Sprintf("invalid viewport %dx%d", vp.Width, vp.Height)).
			WithContext("width", vp.Width).
			WithContext("height", vp.Height).
			Build())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewport = vp
	m.camera.Aspect = vp.Aspect()
	if !m.ready {
		m.camera = DefaultCamera(vp.Aspect())
		m.lights = DefaultLights()
		m.ready = true
		m.logger.Debug("Scene initialized",
			logging.F("width", vp.Width),
			logging.F("height", vp.Height),
		)
	}
	return nil
}

// Ready reports whether Init has succeeded
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// Clear disposes every model, empties the scene and restores the default
// light rig
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	disposed := len(m.models)
	for _, mdl := range m.models {
		mdl.Dispose()
	}
	m.models = nil
	m.lights = DefaultLights()

	if disposed > 0 {
		m.logger.Debug("Scene cleared", logging.F("disposedModels", disposed))
	}
}

// Add inserts a parsed model. The scene owns it from here on.
func (m *Manager) Add(mdl *model.Model) error {
	if mdl == nil {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, "cannot add a nil model").Build())
	}
	if mdl.Disposed() {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("model %s has been disposed", mdl.Name)).Build())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeSceneInitFailed, "scene is not initialized").Build())
	}
	m.models = append(m.models, mdl)
	return nil
}

// Bounds returns the box around all scene content
func (m *Manager) Bounds() math32.Box3 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.boundsLocked()
}

func (m *Manager) boundsLocked() math32.Box3 {
	b := math32.B3Empty()
	for _, mdl := range m.models {
		mb := mdl.Bounds()
		if !mb.IsEmpty() {
			b.ExpandByBox(mb)
		}
	}
	return b
}

// Camera returns the current camera
func (m *Manager) Camera() Camera {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.camera
}

// Models returns the models in insertion order
func (m *Manager) Models() []*model.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*model.Model(nil), m.models...)
}

// FitToContent points the camera at the centre of all content and backs
// it off along its current view direction until the whole box fits the
// field of view, with a safety margin. An empty or zero-sized scene
// resets to the default camera.
func (m *Manager) FitToContent() Camera {
	m.mu.Lock()
	defer m.mu.Unlock()

	aspect := m.camera.Aspect
	if !finite(aspect) || aspect <= 0 {
		aspect = 1
	}

	b := m.boundsLocked()
	cam, ok := fitBox(b, m.camera, m.margin)
	if !ok {
		cam = DefaultCamera(aspect)
	}
	cam.Aspect = aspect
	m.camera = cam

	m.logger.Debug("Camera fitted",
		logging.F("position", vec(cam.Position)),
		logging.F("target", vec(cam.Target)),
		logging.F("far", cam.Far),
	)
	return cam
}

// fitBox frames b with cur's field of view. It reports false when b cannot
// be framed.
func fitBox(b math32.Box3, cur Camera, margin float32) (Camera, bool) {
	if b.IsEmpty() {
		return Camera{}, false
	}
	size := b.Size()
	maxDim := math32.Max(size.X, math32.Max(size.Y, size.Z))
	if !finite(maxDim) || maxDim <= 0 {
		return Camera{}, false
	}

	fov := cur.FOV
	if !finite(fov) || fov <= 0 || fov >= 180 {
		fov = utils.DefaultCameraFOV
	}
	center := b.Center()
	radius := size.Length() / 2
	dist := (maxDim / 2) / math32.Tan(math32.DegToRad(fov)/2) * margin
	// the whole bounding sphere must sit beyond the near plane
	dist = math32.Max(dist, radius*margin)

	dir := cur.Position.Sub(cur.Target)
	if l := dir.Length(); !finite(l) || l == 0 {
		dir = math32.Vec3(1, 1, 1)
	}
	dir = dir.Normal()

	cam := Camera{
		Position: center.Add(dir.MulScalar(dist)),
		Target:   center,
		Up:       math32.Vec3(0, 1, 0),
		FOV:      fov,
		Near:     utils.DefaultCameraNear,
		Far:      (dist + radius) * 3,
	}
	if cam.Far <= cam.Near {
		cam.Far = utils.DefaultCameraFar
	}
	if !finiteVec(cam.Position) || !finiteVec(cam.Target) || !finite(cam.Far) {
		return Camera{}, false
	}
	return cam, true
}

func finite(f float32) bool {
	return !math32.IsNaN(f) && !math32.IsInf(f, 0)
}

func finiteVec(v math32.Vector3) bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}
