package config

import (
	"context"
	"fmt"
	"slices"

	"github.com/vk/texturesets/internal/definition"
)

// Loader is the interface for a format-specific definition loader.
type Loader interface {
	// Load reads every definition found under the given paths and
	// translates it into the format-agnostic model.
	Load(ctx context.Context, paths ...string) (*Model, error)
}

// Model holds every texture set found by a loader, in file order.
type Model struct {
	TextureSets []*definition.TextureSet
	// Origins maps a texture set name to the file that declared it.
	Origins map[string]string
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{Origins: make(map[string]string)}
}

// Add appends a texture set declared in file. Names are unique across all
// loaded files.
func (m *Model) Add(set *definition.TextureSet, file string) error {
	if prev, ok := m.Origins[set.Name]; ok {
		return fmt.Errorf("texture set %q declared in %s and %s", set.Name, prev, file)
	}
	m.TextureSets = append(m.TextureSets, set)
	m.Origins[set.Name] = file
	return nil
}

// Lookup returns the texture set with the given name.
func (m *Model) Lookup(name string) (*definition.TextureSet, bool) {
	i := slices.IndexFunc(m.TextureSets, func(s *definition.TextureSet) bool { return s.Name == name })
	if i < 0 {
		return nil, false
	}
	return m.TextureSets[i], true
}

// Names lists the loaded texture sets in load order.
func (m *Model) Names() []string {
	names := make([]string, len(m.TextureSets))
	for i, s := range m.TextureSets {
		names[i] = s.Name
	}
	return names
}
