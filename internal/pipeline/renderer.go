package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Renderer turns a record into an artifact blob of one type
type Renderer interface {
	// Type is the artifact type name, unique within a domain
	Type() string
	Domain() Domain
	// Needs is the stage that must be committed before rendering
	Needs() Stage
	ContentType() string
	Render(ctx context.Context, rec Record) ([]byte, error)
}

// Registry holds the renderers available per domain
type Registry struct {
	mu        sync.RWMutex
	renderers map[Domain]map[string]Renderer
}

// NewRegistry creates a registry with the given renderers
func NewRegistry(renderers ...Renderer) *Registry {
	r := &Registry{renderers: make(map[Domain]map[string]Renderer)}
	for _, rd := range renderers {
		r.Register(rd)
	}
	return r
}

// Register adds or replaces a renderer
func (r *Registry) Register(rd Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.renderers[rd.Domain()] == nil {
		r.renderers[rd.Domain()] = make(map[string]Renderer)
	}
	r.renderers[rd.Domain()][rd.Type()] = rd
}

// Get looks up the renderer for a domain and artifact type
func (r *Registry) Get(d Domain, artifactType string) (Renderer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rd, ok := r.renderers[d][artifactType]
	if !ok {
		return nil, NewInvalidParameterError(d, "", OpRender,
			fmt.Sprintf("unknown artifact type %q", artifactType))
	}
	return rd, nil
}

// Types lists the artifact types of a domain in sorted order
func (r *Registry) Types(d Domain) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.renderers[d]))
	for t := range r.renderers[d] {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
