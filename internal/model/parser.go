package model

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Input is everything a parser needs for one file. Auxiliary holds the
// companion buffer for formats that reference one and may be nil.
// AuxiliaryName is the companion's file name; parsers fall back to the
// conventional name derived from Name when it is empty.
type Input struct {
	Name          string
	Data          []byte
	Auxiliary     []byte
	AuxiliaryName string
}

// Parser turns file bytes into a model. Implementations must not retain
// Data or Auxiliary after Parse returns; the caller recycles them.
type Parser interface {
	Parse(ctx context.Context, in Input) (*Model, error)
}

// ParserFunc adapts a function to Parser
type ParserFunc func(ctx context.Context, in Input) (*Model, error)

func (f ParserFunc) Parse(ctx context.Context, in Input) (*Model, error) {
	return f(ctx, in)
}

// Registry maps formats to parsers
type Registry struct {
	mu      sync.RWMutex
	parsers map[Format]Parser
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[Format]Parser)}
}

// Register installs p for format, replacing any previous parser
func (r *Registry) Register(format Format, p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[format] = p
}

// For returns the parser registered for format
func (r *Registry) For(format Format) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("no parser registered for %q", format)
	}
	return p, nil
}

// Formats lists the registered formats in sorted order
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Format, 0, len(r.parsers))
	for f := range r.parsers {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
