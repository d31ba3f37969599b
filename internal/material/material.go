// Package material exposes a compiled texture set to a material graph
// builder: which packed texture and swizzle serves each channel, and which
// scalar parameters undo the packing encodings.
package material

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/vk/texturesets/internal/compiler"
	"github.com/vk/texturesets/internal/hasher"
	"github.com/vk/texturesets/internal/texture"
)

// TextureRef identifies one packed texture of a compiled set.
type TextureRef struct {
	Index int
	Key   hasher.Key
	Name  string
}

// RangeDecode names the parameters restoring a range compressed channel.
type RangeDecode struct {
	MulParam string
	AddParam string
}

// SamplerBinding tells the material how to read one channel.
type SamplerBinding struct {
	Name    string
	Texture TextureRef
	Swizzle string
	// SRGB is set when the sampler decodes sRGB in hardware.
	SRGB bool
	// GammaDecode is set when the channel is stored sRGB but the texture is
	// not sampled as sRGB, so the material applies the curve itself.
	GammaDecode bool
	Decode      *RangeDecode
}

// Expression renders the shader expression that turns a sample of the
// packed texture named "Sample" into the channel's value.
func (b SamplerBinding) Expression() string {
	expr := "Sample." + b.Swizzle
	if b.GammaDecode {
		expr = fmt.Sprintf("pow(%s, 2.2)", expr)
	}
	if b.Decode != nil {
		expr = fmt.Sprintf("%s * %s.%s + %s.%s", expr, b.Decode.MulParam, b.Swizzle, b.Decode.AddParam, b.Swizzle)
	}
	return expr
}

// ParameterBinding is a named vec4 material parameter.
type ParameterBinding struct {
	Name  string
	Value texture.Vec4
}

// Bindings is the material-facing view of a compiled texture set.
type Bindings struct {
	TextureSet string
	Textures   []TextureRef
	// Samplers and Parameters are sorted by name.
	Samplers   []SamplerBinding
	Parameters []ParameterBinding
}

// Bind derives the bindings of a compiled set. It only reads set.
func Bind(set *compiler.CompiledTextureSet) (*Bindings, error) {
	if set == nil {
		return nil, fmt.Errorf("material: nil texture set")
	}
	b := &Bindings{TextureSet: set.Name}
	byIndex := make(map[int]*compiler.PackedResult, len(set.Textures))
	for i := range set.Textures {
		t := &set.Textures[i]
		byIndex[t.Index] = t
		b.Textures = append(b.Textures, TextureRef{Index: t.Index, Key: t.Key, Name: t.Name})
	}

	for _, name := range slices.Sorted(maps.Keys(set.Channels)) {
		ch := set.Channels[name]
		tex, ok := byIndex[ch.Texture]
		if !ok {
			return nil, fmt.Errorf("material: channel %q refers to missing texture %d", name, ch.Texture)
		}
		if err := checkSwizzle(ch.Swizzle, tex.Entry.Channels); err != nil {
			return nil, fmt.Errorf("material: channel %q: %w", name, err)
		}

		sb := SamplerBinding{
			Name:    name,
			Texture: TextureRef{Index: tex.Index, Key: tex.Key, Name: tex.Name},
			Swizzle: ch.Swizzle,
			SRGB:    tex.Entry.SRGB,
		}
		if ch.Encoding.Has(texture.EncodingSRGB) && !tex.Entry.SRGB {
			sb.GammaDecode = true
		}
		if ch.Encoding.Has(texture.EncodingRangeCompression) {
			mul, add := compiler.RangeCompressMulName(tex.Index), compiler.RangeCompressAddName(tex.Index)
			if _, ok := set.Parameters[mul]; !ok {
				return nil, fmt.Errorf("material: channel %q is range compressed but %s is missing", name, mul)
			}
			sb.Decode = &RangeDecode{MulParam: mul, AddParam: add}
		}
		b.Samplers = append(b.Samplers, sb)
	}

	for _, name := range slices.Sorted(maps.Keys(set.Parameters)) {
		b.Parameters = append(b.Parameters, ParameterBinding{Name: name, Value: set.Parameters[name]})
	}
	return b, nil
}

func checkSwizzle(swizzle string, channels int) error {
	if swizzle == "" || len(swizzle) > 4 {
		return fmt.Errorf("invalid swizzle %q", swizzle)
	}
	for _, r := range swizzle {
		i := strings.IndexRune("rgba", r)
		if i < 0 || i >= channels {
			return fmt.Errorf("swizzle %q reads beyond a %d channel texture", swizzle, channels)
		}
	}
	return nil
}

// Sampler returns the binding of the named channel.
func (b *Bindings) Sampler(name string) (SamplerBinding, bool) {
	i, ok := slices.BinarySearchFunc(b.Samplers, name, func(s SamplerBinding, n string) int {
		return strings.Compare(s.Name, n)
	})
	if !ok {
		return SamplerBinding{}, false
	}
	return b.Samplers[i], true
}

// PackingSource returns the packed texture index and swizzle serving the
// named channel.
func (b *Bindings) PackingSource(name string) (int, string, bool) {
	s, ok := b.Sampler(name)
	if !ok {
		return 0, "", false
	}
	return s.Texture.Index, s.Swizzle, true
}

// Parameter returns the value of a named parameter.
func (b *Bindings) Parameter(name string) (texture.Vec4, bool) {
	for _, p := range b.Parameters {
		if p.Name == name {
			return p.Value, true
		}
	}
	return texture.Vec4{}, false
}
