package dag

import (
	"github.com/vk/texturesets/internal/definition"
	"github.com/vk/texturesets/internal/hasher"
	"github.com/vk/texturesets/internal/module"
	"github.com/vk/texturesets/internal/packing"
	"github.com/vk/texturesets/internal/texture"
)

// Kind distinguishes the three node flavours.
type Kind int

const (
	// SlotNode provides a raw input texture.
	SlotNode Kind = iota
	// ModuleNode runs a processing module invocation.
	ModuleNode
	// PackedNode assembles one packed texture.
	PackedNode
)

func (k Kind) String() string {
	switch k {
	case SlotNode:
		return "slot"
	case ModuleNode:
		return "module"
	case PackedNode:
		return "packed"
	}
	return "unknown"
}

// Edge points at one output of a producing node.
type Edge struct {
	Node   *Node
	Output string
}

// Node is a single vertex of the build graph. Nodes are never mutated after
// Assemble returns.
type Node struct {
	ID   string
	Name string
	Kind Kind

	Slot *definition.InputSlot
	// Fallback is the port default a consuming module declares for this
	// slot. It applies when the slot has no default and no source.
	Fallback *texture.Vec4

	Invocation *definition.ModuleInvocation
	Packed     *definition.PackedTexture
	// PackedIndex is the position of the packed texture in the definition.
	PackedIndex int
	Layout      packing.Layout

	ModuleID string
	Version  uint32
	Params   module.Params
	Module   module.Module

	// Inputs are ordered like the module's input ports.
	Inputs []Edge
	// Outputs carry resolved channel counts.
	Outputs []module.Port
	Values  []string

	// Deps and Dependents are unique and ordered by first use.
	Deps       []*Node
	Dependents []*Node

	// StructuralKey identifies the invocation without looking at pixel data.
	StructuralKey hasher.Key
	// Aliases lists the names of identical invocations merged into this node.
	Aliases []string
}

// Output returns the named output port.
func (n *Node) Output(name string) (module.Port, bool) {
	for _, p := range n.Outputs {
		if p.Name == name {
			return p, true
		}
	}
	return module.Port{}, false
}

// SetPart is what packed node n contributes to the key of the whole set,
// given the key of its payload. Sampler settings are included.
func (n *Node) SetPart(payload hasher.Key) hasher.Input {
	p := n.Packed
	return hasher.Input{
		Key:    hasher.TextureKey(payload, p.LODBias, p.Compression, p.VirtualTexture),
		Output: n.Name,
	}
}

// Channel is a material-facing name bound to part of a packed texture.
type Channel struct {
	Name     string
	Texture  int
	Swizzle  string
	Encoding texture.Encoding
	// Producer is the node whose output the channel exposes.
	Producer Edge
}

// Graph is the assembled, immutable build graph of one texture set.
type Graph struct {
	Name       string
	Definition *definition.TextureSet
	// Nodes are in topological order; ties keep declaration order.
	Nodes  []*Node
	Slots  []*Node
	Packed []*Node
	// Channels maps material-facing names to packed texture channels.
	Channels map[string]Channel
	// Values maps module value names to the node producing them.
	Values map[string]*Node

	byID map[string]*Node
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// Key identifies the whole texture set structurally: two graphs with equal
// keys compile to the same result given the same sources.
func (g *Graph) Key() hasher.Key {
	parts := make([]hasher.Input, 0, len(g.Packed)+len(g.Values))
	for _, p := range g.Packed {
		parts = append(parts, p.SetPart(p.StructuralKey))
	}
	for _, name := range sortedKeys(g.Values) {
		parts = append(parts, hasher.Input{Key: g.Values[name].StructuralKey, Output: name})
	}
	return hasher.SetKey(parts)
}

// Equivalent reports whether two graphs describe the same texture set
// content, regardless of node names.
func Equivalent(a, b *Graph) bool {
	return a.Key() == b.Key()
}
