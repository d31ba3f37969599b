package compiler

import (
	"fmt"
	"maps"

	"github.com/vk/texturesets/internal/cache"
	"github.com/vk/texturesets/internal/dag"
	"github.com/vk/texturesets/internal/hasher"
	"github.com/vk/texturesets/internal/module"
	"github.com/vk/texturesets/internal/texture"
)

// product is what one node contributes to a compile. Products are shared
// between concurrent compiles of the same key and must not be mutated.
type product struct {
	outputs  *module.Outputs
	artifact *cache.Artifact
	cached   bool
}

// storedFormat picks the payload format of an output. Packed textures are
// quantized to 8 bits unless they are HDR; intermediates keep full precision.
func storedFormat(n *dag.Node, channels int) texture.Format {
	if n.Kind == dag.PackedNode && !n.Layout.HDR {
		return texture.Unorm8(channels)
	}
	return texture.Float32(channels)
}

// channelMap names the material channel held by each channel of a packed
// texture.
func channelMap(n *dag.Node) []string {
	if n.Kind != dag.PackedNode {
		return nil
	}
	names := make([]string, n.Layout.Width())
	for c := range names {
		if ch := n.Layout.Channels[c]; ch.Mapped() {
			names[c] = n.Inputs[ch.Input].Output
		}
	}
	return names
}

// encodeArtifact serializes the outputs of n in port order, every output
// followed by its mip levels.
func encodeArtifact(n *dag.Node, key hasher.Key, out *module.Outputs) (*cache.Artifact, error) {
	a := &cache.Artifact{Key: key}
	if len(out.Values) > 0 {
		a.Metadata.Values = maps.Clone(out.Values)
	}
	for _, port := range n.Outputs {
		base := out.Textures[port.Name]
		levels := append([]*texture.Image{base}, out.Mips[port.Name]...)
		format := storedFormat(n, base.Channels)
		entry := cache.Entry{
			Name:     port.Name,
			Width:    base.Width,
			Height:   base.Height,
			Channels: base.Channels,
			Format:   format,
			MipCount: len(levels),
			SRGB:     n.Kind == dag.PackedNode && port.Encoding.Has(texture.EncodingSRGB),
			Offset:   int64(len(a.Payload)),
		}
		if n.Kind == dag.PackedNode {
			entry.ChannelMap = channelMap(n)
		}
		w, h := base.Width, base.Height
		for i, level := range levels {
			if level.Width != w || level.Height != h {
				return nil, fmt.Errorf("output %q mip %d is %dx%d, want %dx%d", port.Name, i, level.Width, level.Height, w, h)
			}
			data, err := texture.Encode(level, format)
			if err != nil {
				return nil, fmt.Errorf("output %q mip %d: %w", port.Name, i, err)
			}
			a.Payload = append(a.Payload, data...)
			w, h = max(w/2, 1), max(h/2, 1)
		}
		entry.Length = int64(len(a.Payload)) - entry.Offset
		a.Metadata.Entries = append(a.Metadata.Entries, entry)
	}
	return a, nil
}

// decodeProduct turns a cached artifact back into the outputs of n. Packed
// textures have no consumers, so their pixels stay encoded. Every problem is
// reported as cache.ErrCorrupt so the caller recomputes.
func decodeProduct(n *dag.Node, a *cache.Artifact) (*product, error) {
	out := module.NewOutputs()
	for _, v := range n.Values {
		val, ok := a.Metadata.Values[v]
		if !ok {
			return nil, fmt.Errorf("%w: value %q missing", cache.ErrCorrupt, v)
		}
		out.Values[v] = val
	}

	for _, port := range n.Outputs {
		entry, ok := a.Metadata.Entry(port.Name)
		if !ok {
			return nil, fmt.Errorf("%w: output %q missing", cache.ErrCorrupt, port.Name)
		}
		if port.Channels > 0 && entry.Channels != port.Channels {
			return nil, fmt.Errorf("%w: output %q has %d channels, want %d", cache.ErrCorrupt, port.Name, entry.Channels, port.Channels)
		}
		if entry.Format.Channels() != entry.Channels || entry.MipCount < 1 {
			return nil, fmt.Errorf("%w: output %q has an inconsistent layout", cache.ErrCorrupt, port.Name)
		}
		data, err := a.Bytes(entry)
		if err != nil {
			return nil, err
		}
		if n.Kind == dag.PackedNode {
			continue
		}
		levels, err := decodeLevels(entry, data)
		if err != nil {
			return nil, fmt.Errorf("%w: output %q: %v", cache.ErrCorrupt, port.Name, err)
		}
		out.Textures[port.Name] = levels[0]
		if len(levels) > 1 {
			out.Mips[port.Name] = levels[1:]
		}
	}
	return &product{outputs: out, artifact: a, cached: true}, nil
}

func decodeLevels(e cache.Entry, data []byte) ([]*texture.Image, error) {
	levels := make([]*texture.Image, 0, e.MipCount)
	w, h := e.Width, e.Height
	offset := 0
	for i := 0; i < e.MipCount; i++ {
		size := w * h * e.Format.PixelSize()
		if offset+size > len(data) {
			return nil, fmt.Errorf("mip %d exceeds the entry", i)
		}
		img, err := texture.Decode(&texture.RawTexture{Width: w, Height: h, Format: e.Format, Data: data[offset : offset+size]})
		if err != nil {
			return nil, fmt.Errorf("mip %d: %w", i, err)
		}
		levels = append(levels, img)
		offset += size
		w, h = max(w/2, 1), max(h/2, 1)
	}
	if offset != len(data) {
		return nil, fmt.Errorf("%d trailing bytes", len(data)-offset)
	}
	return levels, nil
}
