package dag

import (
	"errors"
	"fmt"

	"github.com/vk/texturesets/internal/definition"
)

// linkNodes performs the second pass, turning input references into edges.
func (b *builder) linkNodes() error {
	var errs []error
	for _, n := range b.nodes {
		if n.Kind != ModuleNode || n.Module == nil {
			continue
		}
		sig := n.Module.Signature()
		refs := n.Invocation.Inputs
		if len(refs) != len(sig.Inputs) {
			errs = append(errs, defErr(KindArityMismatch, n.Name, "module %q takes %d inputs, got %d", n.ModuleID, len(sig.Inputs), len(refs)))
			continue
		}
		for _, ref := range refs {
			edge, err := b.resolve(n.Name, ref)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			n.Inputs = append(n.Inputs, edge)
		}
	}
	return errors.Join(errs...)
}

// resolve turns "slot", "node" or "node.output" into an edge.
func (b *builder) resolve(consumer, ref string) (Edge, error) {
	name, output, err := definition.SplitReference(ref)
	if err != nil {
		return Edge{}, &DefinitionError{Kind: KindUnknownReference, Node: consumer, Msg: "cannot parse reference", Err: err}
	}
	src, ok := b.byName[name]
	if !ok {
		return Edge{}, defErr(KindUnknownReference, consumer, "%q does not name an input or a module", name)
	}

	if output == "" {
		if len(src.Outputs) != 1 {
			return Edge{}, defErr(KindUnknownReference, consumer, "%q has %d outputs, reference one as %q", name, len(src.Outputs), name+".<output>")
		}
		return Edge{Node: src, Output: src.Outputs[0].Name}, nil
	}
	if src.Kind == SlotNode {
		return Edge{}, defErr(KindUnknownReference, consumer, "input %q has no output %q", name, output)
	}
	if _, ok := src.Output(output); !ok {
		return Edge{}, defErr(KindUnknownReference, consumer, "module %q (%s) has no output %q", name, src.ModuleID, output)
	}
	return Edge{Node: src, Output: output}, nil
}

// resolvePorts walks the graph in order, checks every edge carries the
// channel count the consuming port expects and settles outputs that mirror
// their first input.
func resolvePorts(order []*Node) error {
	var errs []error
	for _, n := range order {
		if n.Kind != ModuleNode {
			continue
		}
		sig := n.Module.Signature()
		for i, port := range sig.Inputs {
			edge := n.Inputs[i]
			got, _ := edge.Node.Output(edge.Output)
			if port.Channels > 0 && got.Channels != port.Channels {
				errs = append(errs, defErr(KindTypeMismatch, n.Name, "input %q expects %d channels, %s provides %d", port.Name, port.Channels, describe(edge), got.Channels))
			}
		}
		for i := range n.Outputs {
			if n.Outputs[i].Channels != 0 {
				continue
			}
			if len(n.Inputs) == 0 {
				errs = append(errs, defErr(KindTypeMismatch, n.Name, "output %q mirrors the first input, but module %q has none", n.Outputs[i].Name, n.ModuleID))
				continue
			}
			first, _ := n.Inputs[0].Node.Output(n.Inputs[0].Output)
			n.Outputs[i].Channels = first.Channels
		}
	}
	return errors.Join(errs...)
}

func describe(e Edge) string {
	if e.Node.Kind == SlotNode {
		return fmt.Sprintf("input %q", e.Node.Name)
	}
	return fmt.Sprintf("%q", e.Node.Name+"."+e.Output)
}
