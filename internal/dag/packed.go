package dag

import (
	"errors"
	"strings"

	"github.com/vk/texturesets/internal/definition"
	"github.com/vk/texturesets/internal/packing"
	"github.com/vk/texturesets/internal/texture"
)

// createPackedNodes adds one packing node per packed texture. Packing nodes
// are sinks, so they are created after cycle detection and ordering.
func (b *builder) createPackedNodes() ([]*Node, error) {
	entry, ok := b.reg.Resolve(packing.ID)
	if !ok {
		return nil, defErr(KindUnknownModule, "", "packing module %q is not registered", packing.ID)
	}

	var errs []error
	nodes := make([]*Node, 0, len(b.def.Packed))
	for i := range b.def.Packed {
		p := &b.def.Packed[i]
		n := &Node{
			ID:          nodeID(PackedNode, p.Name),
			Name:        p.Name,
			Kind:        PackedNode,
			Packed:      p,
			PackedIndex: i,
			ModuleID:    packing.ID,
			Version:     entry.Version,
		}

		layout := packing.NewLayout()
		layout.Count = p.Channels
		layout.SkipMips = p.SkipMips
		layout.HDR = p.HDR
		failed := false
		for c, src := range p.Sources {
			if src == "" {
				continue
			}
			ch, err := b.packedChannel(n, src)
			if err != nil {
				errs = append(errs, err)
				failed = true
				continue
			}
			layout.Channels[c] = ch
		}
		if failed {
			continue
		}

		params, err := layout.Params()
		if err != nil {
			errs = append(errs, &DefinitionError{Kind: KindInvalidParameters, Node: p.Name, Msg: "cannot encode packing layout", Err: err})
			continue
		}
		mod, err := entry.Factory(params)
		if err != nil {
			errs = append(errs, &DefinitionError{Kind: KindInvalidParameters, Node: p.Name, Msg: "invalid packing layout", Err: err})
			continue
		}
		sig := mod.Signature()
		n.Layout = layout
		n.Params = params
		n.Module = mod
		n.Outputs = sig.Outputs
		n.Values = sig.Values
		nodes = append(nodes, n)
	}
	return nodes, errors.Join(errs...)
}

// packedChannel resolves "ref.c" for packing node n, adding the producer to
// the node inputs when it is new.
func (b *builder) packedChannel(n *Node, src string) (packing.Channel, error) {
	ref, component, err := definition.ParseChannelSource(src)
	if err != nil {
		return packing.Channel{}, &DefinitionError{Kind: KindUnknownReference, Node: n.Name, Msg: "cannot parse channel source", Err: err}
	}
	edge, err := b.resolve(n.Name, ref)
	if err != nil {
		return packing.Channel{}, err
	}
	port, _ := edge.Node.Output(edge.Output)
	if component >= port.Channels {
		return packing.Channel{}, defErr(KindTypeMismatch, n.Name, "source %q reads component %c of %s, which has %d channels", src, definition.ChannelLetters[component], describe(edge), port.Channels)
	}

	input := -1
	for i, in := range n.Inputs {
		if in == edge {
			input = i
			break
		}
	}
	if input < 0 {
		input = len(n.Inputs)
		n.Inputs = append(n.Inputs, edge)
	}
	return packing.Channel{
		Input:         input,
		Component:     component,
		SRGB:          port.Encoding.Has(texture.EncodingSRGB),
		RangeCompress: port.Encoding.Has(texture.EncodingRangeCompression),
	}, nil
}

// bindChannels exposes every packed producer output under its output name.
// When module outputs of different nodes share a name, each of them is
// exposed as "node.output" instead. Slot outputs always keep their bare name.
// The first packed texture holding a producer wins.
func bindChannels(g *Graph) {
	producers := make(map[string]map[Edge]struct{})
	for _, p := range g.Packed {
		for _, edge := range p.Inputs {
			if producers[edge.Output] == nil {
				producers[edge.Output] = make(map[Edge]struct{})
			}
			producers[edge.Output][edge] = struct{}{}
		}
	}

	g.Channels = make(map[string]Channel)
	for _, p := range g.Packed {
		for _, edge := range p.Inputs {
			name := edge.Output
			if len(producers[name]) > 1 && edge.Node.Kind != SlotNode {
				name = edge.Node.Name + "." + edge.Output
			}
			if _, ok := g.Channels[name]; ok {
				continue
			}
			port, _ := edge.Node.Output(edge.Output)
			g.Channels[name] = Channel{
				Name:     name,
				Texture:  p.PackedIndex,
				Swizzle:  swizzle(p, edge, port.Channels),
				Encoding: port.Encoding,
				Producer: edge,
			}
		}
	}
}

// swizzle lists the packed channels holding the producer's components, in
// component order.
func swizzle(p *Node, edge Edge, components int) string {
	var sb strings.Builder
	for comp := 0; comp < components; comp++ {
		for c, ch := range p.Layout.Channels {
			if ch.Mapped() && ch.Component == comp && p.Inputs[ch.Input] == edge {
				sb.WriteByte(definition.ChannelLetters[c])
				break
			}
		}
	}
	return sb.String()
}

// bindValues indexes the named constants module nodes emit.
func bindValues(g *Graph) error {
	g.Values = make(map[string]*Node)
	var errs []error
	for _, n := range g.Nodes {
		if n.Kind != ModuleNode {
			continue
		}
		for _, v := range n.Values {
			if prev, ok := g.Values[v]; ok && prev != n {
				errs = append(errs, defErr(KindDuplicateName, n.Name, "value %q is also produced by %q", v, prev.Name))
				continue
			}
			g.Values[v] = n
		}
	}
	return errors.Join(errs...)
}
