package mocks

import (
	"context"
	"sync"

	"github.com/dl-alexandre/bimview/internal/model"
)

// MockParser records its inputs and returns ParseFunc's result, or a
// single-triangle model named after the input
type MockParser struct {
	mu     sync.Mutex
	inputs []model.Input

	ParseFunc func(ctx context.Context, in model.Input) (*model.Model, error)
}

// Parse mocks parsing a model file
func (p *MockParser) Parse(ctx context.Context, in model.Input) (*model.Model, error) {
	p.mu.Lock()
	p.inputs = append(p.inputs, model.Input{
		Name:          in.Name,
		Data:          append([]byte(nil), in.Data...),
		Auxiliary:     append([]byte(nil), in.Auxiliary...),
		AuxiliaryName: in.AuxiliaryName,
	})
	fn := p.ParseFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, in)
	}
	return TriangleModel(in.Name, 0), nil
}

// Inputs returns copies of every input seen so far
func (p *MockParser) Inputs() []model.Input {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Input(nil), p.inputs...)
}
