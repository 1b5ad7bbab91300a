package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Result is one tool observation. SourceKey is the canonical identity of the
// consulted source (usually its URL) and feeds citation deduplication.
type Result struct {
	Content   string `json:"content"`
	SourceKey string `json:"source_key"`
	Title     string `json:"title,omitempty"`
	URL       string `json:"url,omitempty"`
	Snippet   string `json:"snippet,omitempty"`
}

// Adapter is an opaque external collaborator (retrieval, web search, code
// execution). A failing adapter is non-fatal to the topic: the worker
// proceeds with whatever tools succeeded.
type Adapter interface {
	Name() string
	Run(ctx context.Context, query string) ([]Result, error)
}

// Registry holds the adapters available to research workers.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter; a duplicate name is an error.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.Name()]; exists {
		return fmt.Errorf("tool %q already registered", a.Name())
	}
	r.adapters[a.Name()] = a
	return nil
}

// Get returns the named adapter.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Names lists registered adapters, sorted for stable prompts and logs.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
