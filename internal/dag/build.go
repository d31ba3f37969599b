package dag

import (
	"context"
	"errors"
	"maps"
	"slices"

	"github.com/vk/texturesets/internal/ctxlog"
	"github.com/vk/texturesets/internal/definition"
	"github.com/vk/texturesets/internal/module"
	"github.com/vk/texturesets/internal/registry"
)

// builder carries the state of one Assemble call.
type builder struct {
	def    *definition.TextureSet
	reg    *registry.Registry
	nodes  []*Node
	byName map[string]*Node
}

// Assemble constructs the complete, validated build graph of def.
func Assemble(ctx context.Context, def *definition.TextureSet, reg *registry.Registry) (*Graph, error) {
	logger := ctxlog.FromContext(ctx).With("texture_set", def.Name)
	logger.Debug("Assemble: Starting graph construction.")
	b := &builder{def: def, reg: reg, byName: make(map[string]*Node)}

	// First pass: one node per input slot and module invocation.
	if err := b.createNodes(); err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, &DefinitionError{Kind: KindInvalid, Msg: "definition failed validation", Err: err}
	}
	logger.Debug("Assemble: Node creation complete.", "node_count", len(b.nodes))

	// Second pass: resolve input references into edges.
	if err := b.linkNodes(); err != nil {
		return nil, err
	}
	logger.Debug("Assemble: Node linking complete.")

	if err := detectCycles(b.nodes); err != nil {
		return nil, err
	}
	logger.Debug("Assemble: Cycle detection passed.")

	order := topoOrder(b.nodes)
	if err := resolvePorts(order); err != nil {
		return nil, err
	}

	packed, err := b.createPackedNodes()
	if err != nil {
		return nil, err
	}
	order = append(order, packed...)
	logger.Debug("Assemble: Packed textures linked.", "packed_count", len(packed))

	order = dedupe(ctx, order)
	order = prune(ctx, order)

	g := &Graph{
		Name:       def.Name,
		Definition: def,
		Nodes:      order,
		byID:       make(map[string]*Node, len(order)),
	}
	for _, n := range order {
		g.byID[n.ID] = n
		for _, alias := range n.Aliases {
			g.byID[nodeID(ModuleNode, alias)] = n
		}
		switch n.Kind {
		case SlotNode:
			g.Slots = append(g.Slots, n)
		case PackedNode:
			g.Packed = append(g.Packed, n)
		}
	}
	linkDependents(order)
	bindFallbacks(order)

	bindChannels(g)
	if err := bindValues(g); err != nil {
		return nil, err
	}

	logger.Debug("Assemble: Graph construction successful.", "node_count", len(g.Nodes), "key", g.Key().Short())
	return g, nil
}

func nodeID(kind Kind, name string) string {
	return kind.String() + "." + name
}

// createNodes performs the first pass of graph creation.
func (b *builder) createNodes() error {
	var errs []error
	add := func(n *Node) bool {
		if prev, ok := b.byName[n.Name]; ok {
			errs = append(errs, defErr(KindDuplicateName, n.Name, "name already used by %s %q", prev.Kind, prev.Name))
			return false
		}
		b.byName[n.Name] = n
		b.nodes = append(b.nodes, n)
		return true
	}

	for i := range b.def.Inputs {
		slot := &b.def.Inputs[i]
		port := module.Port{Name: slot.Name, Channels: slot.Format.Channels(), Default: slot.Default}
		add(&Node{
			ID:      nodeID(SlotNode, slot.Name),
			Name:    slot.Name,
			Kind:    SlotNode,
			Slot:    slot,
			Outputs: []module.Port{port},
		})
	}

	for i := range b.def.Modules {
		inv := &b.def.Modules[i]
		n := &Node{
			ID:         nodeID(ModuleNode, inv.Name),
			Name:       inv.Name,
			Kind:       ModuleNode,
			Invocation: inv,
			ModuleID:   inv.ModuleID,
			Params:     module.Params(inv.Parameters),
		}
		if !add(n) {
			continue
		}
		if err := b.instantiate(n, inv.ModuleVersion); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// instantiate resolves the module of n in the registry and configures it.
func (b *builder) instantiate(n *Node, wantVersion uint32) error {
	entry, ok := b.reg.Resolve(n.ModuleID)
	if !ok {
		return defErr(KindUnknownModule, n.Name, "module %q is not registered", n.ModuleID)
	}
	if wantVersion != 0 && wantVersion != entry.Version {
		return defErr(KindVersionMismatch, n.Name, "module %q is registered at version %d, definition asks for %d", n.ModuleID, entry.Version, wantVersion)
	}
	mod, err := entry.Factory(n.Params)
	if err != nil {
		return &DefinitionError{Kind: KindInvalidParameters, Node: n.Name, Msg: "module " + n.ModuleID + " rejected its parameters", Err: err}
	}
	if mod == nil {
		return defErr(KindInvalidParameters, n.Name, "module %q factory returned no module", n.ModuleID)
	}
	sig := mod.Signature()
	if err := sig.Validate(); err != nil {
		return &DefinitionError{Kind: KindInvalidParameters, Node: n.Name, Msg: "module " + n.ModuleID + " has an invalid signature", Err: err}
	}
	n.Module = mod
	n.Version = entry.Version
	n.Outputs = slices.Clone(sig.Outputs)
	n.Values = slices.Clone(sig.Values)
	return nil
}

// linkDependents fills Deps and Dependents from the final edges.
func linkDependents(order []*Node) {
	for _, n := range order {
		seen := make(map[*Node]struct{}, len(n.Inputs))
		for _, in := range n.Inputs {
			if _, ok := seen[in.Node]; ok {
				continue
			}
			seen[in.Node] = struct{}{}
			n.Deps = append(n.Deps, in.Node)
			in.Node.Dependents = append(in.Node.Dependents, n)
		}
	}
}

// bindFallbacks records, for every slot, the default declared by the input
// port of its first consuming module.
func bindFallbacks(order []*Node) {
	for _, n := range order {
		if n.Kind != ModuleNode {
			continue
		}
		ports := n.Module.Signature().Inputs
		for i, in := range n.Inputs {
			if in.Node.Kind != SlotNode || in.Node.Fallback != nil || i >= len(ports) {
				continue
			}
			if d := ports[i].Default; d != nil {
				v := *d
				in.Node.Fallback = &v
			}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
