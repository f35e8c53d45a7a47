package parser

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Baseline is the backend used for any entity kind without an explicit choice
const Baseline = "treesitter"

// Backend turns source bytes into a normalized tree.
// Implementations must be safe for concurrent use.
type Backend interface {
	Name() string
	Parse(ctx context.Context, path string, src []byte) (*Tree, error)
}

// ParseError is returned by a backend that rejects a file
type ParseError struct {
	Backend string
	Path    string
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s:%d:%d: %s", e.Backend, e.Path, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Backend, e.Path, e.Message)
}

// Registry maps backend names to implementations
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates a registry holding the given backends
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[string]Backend)}
	for _, b := range backends {
		r.Register(b)
	}
	return r
}

// Register adds or replaces a backend under its name
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Get looks up a backend by name
func (r *Registry) Get(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}

// Names returns the registered names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Plan is a selection resolved against a registry: one backend per kind,
// plus the kinds grouped by backend so each backend parses a file once.
type Plan struct {
	ByKind    map[string]Backend
	Groups    []Group
	signature string
}

// Group is the set of entity kinds one backend is responsible for
type Group struct {
	Backend Backend
	Kinds   []string
}

// Signature identifies the selection. Cached results produced under a
// different signature are not reused.
func (p *Plan) Signature() string {
	return p.signature
}

// Resolve binds every kind to a backend. Kinds missing from selection use
// baseline. Unknown names are an error. Call once per run.
func (r *Registry) Resolve(baseline string, kinds []string, selection map[string]string) (*Plan, error) {
	if baseline == "" {
		baseline = Baseline
	}

	plan := &Plan{ByKind: make(map[string]Backend)}
	grouped := make(map[string][]string)

	sortedKinds := append([]string(nil), kinds...)
	sort.Strings(sortedKinds)

	var sig []string
	for _, kind := range sortedKinds {
		name := baseline
		if chosen, ok := selection[kind]; ok && chosen != "" {
			name = chosen
		}
		b, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown parser backend %q for %s (registered: %s)",
				name, kind, strings.Join(r.Names(), ", "))
		}
		plan.ByKind[kind] = b
		grouped[name] = append(grouped[name], kind)
		sig = append(sig, kind+"="+name)
	}

	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b, _ := r.Get(name)
		plan.Groups = append(plan.Groups, Group{Backend: b, Kinds: grouped[name]})
	}
	plan.signature = strings.Join(sig, ",")

	return plan, nil
}
