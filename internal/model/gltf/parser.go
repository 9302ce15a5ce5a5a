// Package gltf parses glTF 2.0 scenes (.gltf with an external .bin buffer,
// or self-contained .glb) into models, flattening the node hierarchy into
// world-space meshes.
package gltf

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"io/fs"
	"path"
	"strings"
	"time"

	"cogentcore.org/core/math32"
	"github.com/dl-alexandre/bimview/internal/model"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

const maxNodeDepth = 64

// Parser implements model.Parser for .gltf and .glb files
type Parser struct{}

// New returns a glTF parser
func New() *Parser {
	return &Parser{}
}

// IsBinary reports whether data starts with the GLB magic
func IsBinary(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == "glTF"
}

// companionFS exposes the one downloaded companion buffer to the decoder.
// Only a URI naming that file opens; anything else does not exist, so the
// decoder never touches the local filesystem or gets the wrong bytes.
type companionFS struct {
	name string
	data []byte
}

func (c companionFS) Open(name string) (fs.File, error) {
	if c.data == nil || !fs.ValidPath(name) || !strings.EqualFold(path.Base(name), c.name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return &companionFile{Reader: bytes.NewReader(c.data), name: c.name}, nil
}

type companionFile struct {
	*bytes.Reader
	name string
}

func (f *companionFile) Stat() (fs.FileInfo, error) { return f, nil }
func (f *companionFile) Close() error               { return nil }

func (f *companionFile) Name() string       { return f.name }
func (f *companionFile) Mode() fs.FileMode  { return 0o444 }
func (f *companionFile) ModTime() time.Time { return time.Time{} }
func (f *companionFile) IsDir() bool        { return false }
func (f *companionFile) Sys() interface{}   { return nil }

// companionName is the buffer a .gltf refers to by convention: the same
// stem with a .bin extension
func companionName(name string) string {
	return strings.TrimSuffix(name, path.Ext(name)) + ".bin"
}

// Parse implements model.Parser
func (p *Parser) Parse(ctx context.Context, in model.Input) (*model.Model, error) {
	format := model.FormatGLTF
	if IsBinary(in.Data) {
		format = model.FormatGLB
	}

	var doc gltf.Document
	auxName := in.AuxiliaryName
	if auxName == "" {
		auxName = companionName(path.Base(in.Name))
	}
	dec := gltf.NewDecoderFS(bytes.NewReader(in.Data), companionFS{name: auxName, data: in.Auxiliary})
	if err := dec.Decode(&doc); err != nil {
		return nil, model.NewParseError(in.Name, format, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := &walker{
		doc:       &doc,
		materials: make([]*model.Material, len(doc.Materials)),
		fallback:  model.DefaultMaterial(),
	}
	for i, m := range doc.Materials {
		w.materials[i] = convertMaterial(m, i)
	}

	for _, root := range sceneRoots(&doc) {
		if err := w.node(root, identity(), 0); err != nil {
			return nil, model.NewParseError(in.Name, format, err)
		}
	}

	out := &model.Model{
		Name:     in.Name,
		Format:   format,
		Meshes:   w.meshes,
		Warnings: w.warnings,
	}
	if len(w.meshes) == 0 {
		out.Warnings = append(out.Warnings, "no renderable geometry found")
	}
	return out, nil
}

// sceneRoots returns the root nodes of the default scene, or every
// parentless node when the document has no scenes.
func sceneRoots(doc *gltf.Document) []int {
	if len(doc.Scenes) > 0 {
		idx := 0
		if doc.Scene != nil && int(*doc.Scene) < len(doc.Scenes) {
			idx = int(*doc.Scene)
		}
		roots := make([]int, 0, len(doc.Scenes[idx].Nodes))
		for _, n := range doc.Scenes[idx].Nodes {
			roots = append(roots, int(n))
		}
		return roots
	}

	child := make(map[int]bool)
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			child[int(c)] = true
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !child[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

func convertMaterial(m *gltf.Material, i int) *model.Material {
	mat := model.DefaultMaterial()
	mat.Name = m.Name
	if mat.Name == "" {
		mat.Name = fmt.Sprintf("material-%d", i)
	}
	mat.Color = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	if pbr := m.PBRMetallicRoughness; pbr != nil && pbr.BaseColorFactor != nil {
		f := pbr.BaseColorFactor
		mat.Color = color.RGBA{R: channel(f[0]), G: channel(f[1]), B: channel(f[2]), A: 255}
		mat.Opacity = float32(f[3])
	}
	mat.Transparent = m.AlphaMode == gltf.AlphaBlend && mat.Opacity < 1
	mat.DoubleSided = m.DoubleSided
	return mat
}

func channel(f float64) uint8 {
	if f <= 0 {
		return 0
	}
	if f >= 1 {
		return 255
	}
	return uint8(f*255 + 0.5)
}

type walker struct {
	doc       *gltf.Document
	materials []*model.Material
	fallback  *model.Material
	meshes    []*model.Mesh
	warnings  []string
}

func (w *walker) node(i int, parent affine, depth int) error {
	if i < 0 || i >= len(w.doc.Nodes) {
		return fmt.Errorf("node %d out of range", i)
	}
	if depth > maxNodeDepth {
		return fmt.Errorf("node hierarchy deeper than %d", maxNodeDepth)
	}
	n := w.doc.Nodes[i]
	world := localTransform(n).within(parent)

	if n.Mesh != nil {
		if err := w.mesh(int(*n.Mesh), world); err != nil {
			return err
		}
	}
	for _, c := range n.Children {
		if err := w.node(int(c), world, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) mesh(mi int, tf affine) error {
	if mi < 0 || mi >= len(w.doc.Meshes) {
		return fmt.Errorf("mesh %d out of range", mi)
	}
	src := w.doc.Meshes[mi]
	name := src.Name
	if name == "" {
		name = fmt.Sprintf("mesh-%d", mi)
	}

	for pi, prim := range src.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles {
			w.warnings = append(w.warnings, fmt.Sprintf("%s: primitive %d is not a triangle list, skipped", name, pi))
			continue
		}
		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok {
			continue
		}
		raw, err := modeler.ReadPosition(w.doc, w.doc.Accessors[posIdx], nil)
		if err != nil {
			return fmt.Errorf("%s: reading positions: %w", name, err)
		}

		positions := make([]math32.Vector3, len(raw))
		for j, p := range raw {
			positions[j] = tf.point(math32.Vec3(p[0], p[1], p[2]))
		}

		var indices []uint32
		if prim.Indices != nil {
			indices, err = modeler.ReadIndices(w.doc, w.doc.Accessors[*prim.Indices], nil)
			if err != nil {
				return fmt.Errorf("%s: reading indices: %w", name, err)
			}
			for _, ix := range indices {
				if int(ix) >= len(positions) {
					return fmt.Errorf("%s: index %d out of range", name, ix)
				}
			}
		} else {
			indices = make([]uint32, len(positions))
			for j := range indices {
				indices[j] = uint32(j)
			}
		}

		mat := w.fallback
		if prim.Material != nil && int(*prim.Material) < len(w.materials) {
			mat = w.materials[*prim.Material]
		}
		w.meshes = append(w.meshes, &model.Mesh{
			Name:      name,
			Positions: positions,
			Indices:   indices,
			Material:  mat,
		})
	}
	return nil
}
