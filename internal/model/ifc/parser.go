// Package ifc parses IFC building models stored as ISO 10303-21 (STEP)
// text. Only the tessellated and swept-solid geometry common in exported
// coordination models is supported; anything else is reported as a warning.
package ifc

import (
	"context"

	"github.com/dl-alexandre/bimview/internal/model"
)

// checkEvery bounds how many products are meshed between cancellation checks
const checkEvery = 256

// Parser implements model.Parser for .ifc files
type Parser struct{}

// New returns an IFC parser
func New() *Parser {
	return &Parser{}
}

// Parse implements model.Parser. Auxiliary is ignored.
func (p *Parser) Parse(ctx context.Context, in model.Input) (*model.Model, error) {
	doc, err := parseSTEP(in.Data)
	if err != nil {
		return nil, model.NewParseError(in.Name, model.FormatIFC, err)
	}

	b := newBuilder(doc)
	var meshes []*model.Mesh
	for i, id := range doc.order {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		e := doc.entities[id]
		if len(e.args) < 7 || e.arg(6).kind != kindRef {
			continue
		}
		b.product(e, &meshes)
	}

	m := &model.Model{
		Name:     in.Name,
		Format:   model.FormatIFC,
		Meshes:   meshes,
		Warnings: b.collectWarnings(),
	}
	if len(meshes) == 0 {
		m.Warnings = append(m.Warnings, "no renderable geometry found")
	}
	return m, nil
}
