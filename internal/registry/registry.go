package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/vk/texturesets/internal/module"
)

// Plugin is implemented by every package that contributes processing
// modules. Register is called once during startup.
type Plugin interface {
	Register(r *Registry)
}

// Entry is one registered module implementation.
type Entry struct {
	ID          string
	Version     uint32
	Description string
	Factory     module.Factory
}

// ErrSealed is returned by Register once the registry is read-only.
var ErrSealed = errors.New("registry: sealed")

// Registry holds the module factories for one process.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	sealed  bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register installs factory under id. Registering a higher version of an id
// replaces the previous entry; equal or lower versions are rejected.
func (r *Registry) Register(id string, version uint32, factory module.Factory) error {
	return r.RegisterEntry(Entry{ID: id, Version: version, Factory: factory})
}

// RegisterEntry is Register with a description attached.
func (r *Registry) RegisterEntry(e Entry) error {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return fmt.Errorf("registry: module id is required")
	}
	if strings.Contains(id, ".") && !strings.HasPrefix(id, "texturesets.") {
		return fmt.Errorf("registry: module id %q must not contain '.'", id)
	}
	if e.Version == 0 {
		return fmt.Errorf("registry: module %q: version must be at least 1", id)
	}
	if e.Factory == nil {
		return fmt.Errorf("registry: module %q: factory is nil", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("%w: cannot register %q", ErrSealed, id)
	}
	if prev, ok := r.entries[id]; ok && prev.Version >= e.Version {
		return fmt.Errorf("registry: module %q version %d already registered (attempted %d)", id, prev.Version, e.Version)
	}
	e.ID = id
	slog.Debug("Registering processing module.", "module", id, "version", e.Version)
	r.entries[id] = e
	return nil
}

// MustRegister panics when Register fails. Intended for Plugin implementations,
// where a failure is a programming error.
func (r *Registry) MustRegister(id string, version uint32, description string, factory module.Factory) {
	if err := r.RegisterEntry(Entry{ID: id, Version: version, Description: description, Factory: factory}); err != nil {
		panic(err)
	}
}

// Install calls Register on every plugin.
func (r *Registry) Install(plugins ...Plugin) {
	for _, p := range plugins {
		p.Register(r)
	}
}

// Seal makes the registry read-only.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Resolve returns the entry registered under id.
func (r *Registry) Resolve(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
