package templates

import (
	"fmt"
	"slices"
	"sync"
)

// Renderer converts a structured payload into HTML and plain-text bodies.
// Implementations must be safe for concurrent use.
type Renderer interface {
	// Validate checks the payload against the template's schema.
	// It must reject data that Render could not handle.
	Validate(data map[string]any) error

	// Render produces the HTML and plain-text bodies for the payload.
	Render(data map[string]any) (html string, text string, err error)
}

// Registry maps template identifiers to renderers.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]Renderer
}

// NewRegistry creates an empty template registry.
func NewRegistry() *Registry {
	return &Registry{
		renderers: make(map[string]Renderer),
	}
}

// Register binds a renderer to a template id.
// Duplicate registrations fail so that conflicting template definitions are
// caught at startup rather than shadowing each other at send time.
func (r *Registry) Register(id string, renderer Renderer) error {
	if id == "" {
		return ErrTemplateIDRequired
	}
	if renderer == nil {
		return ErrRendererRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.renderers[id]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTemplate, id)
	}

	r.renderers[id] = renderer
	return nil
}

// Get returns the renderer for the given template id.
func (r *Registry) Get(id string) (Renderer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	renderer, exists := r.renderers[id]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, id)
	}
	return renderer, nil
}

// Has reports whether the template id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.renderers[id]
	return exists
}

// IDs returns the registered template ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.renderers))
	for id := range r.renderers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
