package mocks

import (
	"cogentcore.org/core/math32"
	"github.com/dl-alexandre/bimview/internal/model"
)

// TriangleModel builds a one-mesh model whose unit triangle starts at x = offset
func TriangleModel(name string, offset float32) *model.Model {
	return &model.Model{
		Name:   name,
		Format: model.FormatIFC,
		Meshes: []*model.Mesh{{
			Name: name,
			Positions: []math32.Vector3{
				math32.Vec3(offset, 0, 0),
				math32.Vec3(offset+1, 0, 0),
				math32.Vec3(offset, 1, 0),
			},
			Indices:  []uint32{0, 1, 2},
			Material: model.DefaultMaterial(),
		}},
	}
}
