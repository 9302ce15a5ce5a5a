package scene

import (
	"fmt"

	"github.com/dl-alexandre/bimview/internal/logging"
	"github.com/dl-alexandre/bimview/internal/types"
)

// Diagnostics is a summary of what the scene holds
type Diagnostics struct {
	Models    int                  `json:"models"`
	Meshes    int                  `json:"meshes"`
	Vertices  int                  `json:"vertices"`
	Triangles int                  `json:"triangles"`
	Materials int                  `json:"materials"`
	Lights    int                  `json:"lights"`
	Bounds    *types.BoundsSummary `json:"bounds,omitempty"`
	Camera    types.CameraSummary  `json:"camera"`
	Warnings  []string             `json:"warnings,omitempty"`
}

// Diagnostics counts scene content and flags content a renderer would
// show as nothing: empty scenes, empty models and content behind the far plane
func (m *Manager) Diagnostics() Diagnostics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d := Diagnostics{
		Models: len(m.models),
		Lights: len(m.lights),
		Camera: m.camera.Summary(),
	}
	for _, mdl := range m.models {
		d.Meshes += len(mdl.Meshes)
		d.Vertices += mdl.VertexCount()
		d.Materials += len(mdl.Materials())
		for _, ms := range mdl.Meshes {
			d.Triangles += ms.Triangles()
		}
		if mdl.VertexCount() == 0 {
			d.Warnings = append(d.Warnings, fmt.Sprintf("model %s has no vertices", mdl.Name))
		}
	}

	b := m.boundsLocked()
	d.Bounds = SummarizeBounds(b)
	switch {
	case len(m.models) == 0:
		d.Warnings = append(d.Warnings, "scene is empty")
	case !b.IsEmpty():
		if far := b.DistanceToPoint(m.camera.Position) + b.Size().Length(); far > m.camera.Far {
			d.Warnings = append(d.Warnings, "content extends beyond the camera far plane")
		}
	}
	return d
}

// LogDiagnostics writes Diagnostics to the logger
func (m *Manager) LogDiagnostics() Diagnostics {
	d := m.Diagnostics()
	m.logger.Info("Scene diagnostics",
		logging.F("models", d.Models),
		logging.F("meshes", d.Meshes),
		logging.F("vertices", d.Vertices),
		logging.F("lights", d.Lights),
	)
	for _, w := range d.Warnings {
		m.logger.Warn("Scene check", logging.F("warning", w))
	}
	return d
}

// MaterialSnapshot is a material as exported to JSON
type MaterialSnapshot struct {
	Name        string  `json:"name"`
	Color       string  `json:"color"`
	Opacity     float32 `json:"opacity"`
	Transparent bool    `json:"transparent"`
	DoubleSided bool    `json:"doubleSided"`
}

// ModelSnapshot is one scene object as exported to JSON
type ModelSnapshot struct {
	Name      string               `json:"name"`
	Format    string               `json:"format"`
	Meshes    int                  `json:"meshes"`
	Vertices  int                  `json:"vertices"`
	Bounds    *types.BoundsSummary `json:"bounds,omitempty"`
	Materials []MaterialSnapshot   `json:"materials"`
}

// LightSnapshot is a light as exported to JSON
type LightSnapshot struct {
	Name      string     `json:"name"`
	Kind      LightKind  `json:"kind"`
	Intensity float32    `json:"intensity"`
	Position  [3]float32 `json:"position"`
}

// Snapshot is a serializable copy of the scene
type Snapshot struct {
	Viewport Viewport             `json:"viewport"`
	Models   []ModelSnapshot      `json:"models"`
	Lights   []LightSnapshot      `json:"lights"`
	Camera   types.CameraSummary  `json:"camera"`
	Bounds   *types.BoundsSummary `json:"bounds,omitempty"`
}

func (s *Snapshot) Headers() []string {
	return []string{"Name", "Format", "Meshes", "Vertices", "Color"}
}

func (s *Snapshot) Rows() [][]string {
	rows := make([][]string, len(s.Models))
	for i, m := range s.Models {
		color := ""
		if len(m.Materials) > 0 {
			color = m.Materials[0].Color
		}
		rows[i] = []string{m.Name, m.Format, fmt.Sprintf("%d", m.Meshes), fmt.Sprintf("%d", m.Vertices), color}
	}
	return rows
}

func (s *Snapshot) EmptyMessage() string {
	return "Scene is empty"
}

// Snapshot copies the scene for export
func (m *Manager) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := &Snapshot{
		Viewport: m.viewport,
		Models:   make([]ModelSnapshot, 0, len(m.models)),
		Lights:   make([]LightSnapshot, 0, len(m.lights)),
		Camera:   m.camera.Summary(),
		Bounds:   SummarizeBounds(m.boundsLocked()),
	}
	for _, mdl := range m.models {
		ms := ModelSnapshot{
			Name:     mdl.Name,
			Format:   string(mdl.Format),
			Meshes:   len(mdl.Meshes),
			Vertices: mdl.VertexCount(),
			Bounds:   SummarizeBounds(mdl.Bounds()),
		}
		for _, mat := range mdl.Materials() {
			ms.Materials = append(ms.Materials, MaterialSnapshot{
				Name:        mat.Name,
				Color:       mat.Hex(),
				Opacity:     mat.Opacity,
				Transparent: mat.Transparent,
				DoubleSided: mat.DoubleSided,
			})
		}
		s.Models = append(s.Models, ms)
	}
	for _, l := range m.lights {
		s.Lights = append(s.Lights, LightSnapshot{
			Name:      l.Name,
			Kind:      l.Kind,
			Intensity: l.Intensity,
			Position:  vec(l.Position),
		})
	}
	return s
}
