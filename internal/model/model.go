// Package model holds the in-memory form of a parsed building model: meshes
// of world-space triangles with the materials they reference. Format-specific
// parsers live in the ifc and gltf subpackages.
package model

import (
	"fmt"
	"image/color"
	"strings"

	"cogentcore.org/core/math32"
	"github.com/dl-alexandre/bimview/internal/utils"
)

// Format identifies a model file format by its lower-case extension without the dot
type Format string

const (
	FormatIFC  Format = utils.FormatIFC
	FormatGLTF Format = utils.FormatGLTF
	FormatGLB  Format = utils.FormatGLB
)

// FormatFromName returns the format implied by a file name's extension
func FormatFromName(name string) (Format, bool) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return "", false
	}
	switch f := Format(strings.ToLower(name[i+1:])); f {
	case FormatIFC, FormatGLTF, FormatGLB:
		return f, true
	}
	return "", false
}

// NeedsCompanion reports whether the format references an external buffer
func (f Format) NeedsCompanion() bool {
	return f == FormatGLTF
}

// Material is the surface description shared by one or more meshes.
// Color alpha is ignored; Opacity drives transparency.
type Material struct {
	Name        string
	Color       color.RGBA
	Opacity     float32
	Transparent bool
	DoubleSided bool

	disposed bool
}

// DefaultMaterial is the light grey used when a file carries no style
func DefaultMaterial() *Material {
	return &Material{
		Name:    "default",
		Color:   color.RGBA{R: 204, G: 204, B: 204, A: 255},
		Opacity: 1,
	}
}

// Disposed reports whether the material has been released
func (m *Material) Disposed() bool {
	return m.disposed
}

// Hex returns the color as #rrggbb
func (m *Material) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", m.Color.R, m.Color.G, m.Color.B)
}

// Mesh is an indexed triangle list in model space
type Mesh struct {
	Name      string
	Positions []math32.Vector3
	Indices   []uint32
	Material  *Material
}

// Bounds returns the box enclosing every vertex
func (m *Mesh) Bounds() math32.Box3 {
	b := math32.B3Empty()
	b.ExpandByPoints(m.Positions)
	return b
}

// Triangles returns the number of indexed triangles
func (m *Mesh) Triangles() int {
	return len(m.Indices) / 3
}

// Model is the result of parsing one file
type Model struct {
	Name     string
	Format   Format
	Meshes   []*Mesh
	Warnings []string

	disposed bool
}

// Bounds returns the union of all mesh bounds. An empty model yields an
// empty box.
func (m *Model) Bounds() math32.Box3 {
	b := math32.B3Empty()
	for _, ms := range m.Meshes {
		if len(ms.Positions) == 0 {
			continue
		}
		b.ExpandByBox(ms.Bounds())
	}
	return b
}

// VertexCount sums the vertices of all meshes
func (m *Model) VertexCount() int {
	n := 0
	for _, ms := range m.Meshes {
		n += len(ms.Positions)
	}
	return n
}

// Materials returns each distinct material once, in mesh order
func (m *Model) Materials() []*Material {
	seen := make(map[*Material]bool)
	var out []*Material
	for _, ms := range m.Meshes {
		if ms.Material == nil || seen[ms.Material] {
			continue
		}
		seen[ms.Material] = true
		out = append(out, ms.Material)
	}
	return out
}

// Dispose drops geometry and marks every material released. A disposed
// model must not be added to a scene again.
func (m *Model) Dispose() {
	if m.disposed {
		return
	}
	for _, mat := range m.Materials() {
		mat.disposed = true
	}
	for _, ms := range m.Meshes {
		ms.Positions = nil
		ms.Indices = nil
	}
	m.disposed = true
}

// Disposed reports whether Dispose has run
func (m *Model) Disposed() bool {
	return m.disposed
}

// NewParseError reports a file that could not be turned into a model
func NewParseError(name string, format Format, err error) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeParseFailed,
		fmt.Sprintf("failed to parse %s: %v", name, err)).
		WithContext("file", name).
		WithContext("format", string(format)).
		Build())
}
