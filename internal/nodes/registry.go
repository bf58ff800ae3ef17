package nodes

import (
	"fmt"
	"sort"
	"sync"

	"github.com/thinkerbot/tap-sub003/internal/engine"
	"github.com/thinkerbot/tap-sub003/internal/ir"
)

// Factory builds a process from the params of a node specification.
type Factory func(params ir.Object) (engine.Process, error)

// Entry is a registered process factory.
type Entry struct {
	Name        string
	Description string
	Factory     Factory
}

// UnknownProcessError reports a process name with no registered factory.
type UnknownProcessError struct {
	Name string
}

func (e *UnknownProcessError) Error() string {
	return fmt.Sprintf("unknown process %q", e.Name)
}

// Registry maps process names to factories.
//
// Thread Safety:
//
//	Registry is fully thread-safe. All methods can be called concurrently.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Entry
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Entry)}
}

// Register adds a factory under name, replacing any previous entry.
func (r *Registry) Register(name, description string, f Factory) {
	if f == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = Entry{Name: name, Description: description, Factory: f}
}

// Get returns the entry registered under name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	return e, ok
}

// New builds the process registered under name with params.
func (r *Registry) New(name string, params ir.Object) (engine.Process, error) {
	e, ok := r.Get(name)
	if !ok {
		return nil, &UnknownProcessError{Name: name}
	}
	proc, err := e.Factory(params)
	if err != nil {
		return nil, fmt.Errorf("process %q: %w", name, err)
	}
	return proc, nil
}

// Entries returns every registered entry sorted by name.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.byName))
	for _, e := range r.byName {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered process names, sorted.
func (r *Registry) Names() []string {
	entries := r.Entries()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}
