package dag

import (
	"context"

	"github.com/vk/texturesets/internal/ctxlog"
	"github.com/vk/texturesets/internal/definition"
	"github.com/vk/texturesets/internal/hasher"
	"github.com/zclconf/go-cty/cty"
)

// slotModuleID stands in for the module id when keying slots structurally.
const slotModuleID = "texturesets.slot"

// dedupe walks the ordered nodes, computes structural keys and collapses
// module invocations identical to an earlier one. Consumers of a collapsed
// node are redirected to the survivor.
func dedupe(ctx context.Context, order []*Node) []*Node {
	logger := ctxlog.FromContext(ctx)
	canonical := make(map[*Node]*Node)
	byKey := make(map[hasher.Key]*Node)
	kept := make([]*Node, 0, len(order))

	for _, n := range order {
		for i, in := range n.Inputs {
			if c, ok := canonical[in.Node]; ok {
				n.Inputs[i].Node = c
			}
		}
		n.StructuralKey = structuralKey(n)

		if n.Kind == ModuleNode {
			if prev, ok := byKey[n.StructuralKey]; ok {
				logger.Debug("Collapsing identical module invocation.", "node", n.Name, "into", prev.Name)
				canonical[n] = prev
				prev.Aliases = append(prev.Aliases, n.Name)
				continue
			}
			byKey[n.StructuralKey] = n
		}
		kept = append(kept, n)
	}
	return kept
}

func structuralKey(n *Node) hasher.Key {
	if n.Kind == SlotNode {
		return hasher.Hash(hasher.Subject{ModuleID: slotModuleID, Params: slotParams(n.Slot)}, nil)
	}
	inputs := make([]hasher.Input, len(n.Inputs))
	for i, in := range n.Inputs {
		inputs[i] = hasher.Input{Key: in.Node.StructuralKey, Output: in.Output}
	}
	return hasher.Hash(hasher.Subject{ModuleID: n.ModuleID, Version: n.Version, Params: n.Params}, inputs)
}

func slotParams(s *definition.InputSlot) []definition.Parameter {
	params := []definition.Parameter{
		{Name: "name", Value: cty.StringVal(s.Name)},
		{Name: "source", Value: cty.StringVal(s.Source)},
		{Name: "format", Value: cty.StringVal(string(s.Format))},
	}
	if s.Default != nil {
		vals := make([]cty.Value, len(s.Default))
		for i, v := range s.Default {
			vals[i] = cty.NumberFloatVal(float64(v))
		}
		params = append(params, definition.Parameter{Name: "default", Value: cty.ListVal(vals)})
	}
	return params
}

// prune drops nodes that feed neither a packed texture nor a module value.
func prune(ctx context.Context, order []*Node) []*Node {
	logger := ctxlog.FromContext(ctx)
	live := make(map[*Node]bool, len(order))
	var mark func(n *Node)
	mark = func(n *Node) {
		if live[n] {
			return
		}
		live[n] = true
		for _, in := range n.Inputs {
			mark(in.Node)
		}
	}
	for _, n := range order {
		if n.Kind == PackedNode || (n.Kind == ModuleNode && len(n.Values) > 0) {
			mark(n)
		}
	}

	kept := make([]*Node, 0, len(order))
	for _, n := range order {
		if !live[n] {
			logger.Debug("Pruning node with no consumers.", "node", n.ID)
			continue
		}
		kept = append(kept, n)
	}
	return kept
}
