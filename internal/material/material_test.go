package material

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/texturesets/internal/cache"
	"github.com/vk/texturesets/internal/compiler"
	"github.com/vk/texturesets/internal/ctxlog"
	"github.com/vk/texturesets/internal/definition"
	"github.com/vk/texturesets/internal/packing"
	"github.com/vk/texturesets/internal/registry"
	"github.com/vk/texturesets/internal/texture"
	"github.com/vk/texturesets/modules/pbr_surface"
)

func handBuilt() *compiler.CompiledTextureSet {
	return &compiler.CompiledTextureSet{
		Name: "rock",
		Textures: []compiler.PackedResult{
			{Index: 0, Name: "T0", Entry: cache.Entry{Channels: 4, SRGB: true}},
			{Index: 1, Name: "T1", Entry: cache.Entry{Channels: 3}},
		},
		Channels: map[string]compiler.ChannelRef{
			"Roughness": {Texture: 0, Swizzle: "a", Encoding: texture.EncodingRangeCompression},
			"BaseColor": {Texture: 0, Swizzle: "rgb", Encoding: texture.EncodingSRGB},
			"Normal":    {Texture: 1, Swizzle: "rg", Encoding: texture.EncodingRangeCompression},
			"Emissive":  {Texture: 1, Swizzle: "b", Encoding: texture.EncodingSRGB},
		},
		Parameters: map[string]texture.Vec4{
			"RangeCompress_0_Mul": {1, 1, 1, 0.5},
			"RangeCompress_0_Add": {0, 0, 0, 0.25},
			"RangeCompress_1_Mul": {2, 2, 1, 1},
			"RangeCompress_1_Add": {-1, -1, 0, 0},
			"HeightParams":        {0.05, 1, 0, 0},
		},
	}
}

func TestBind(t *testing.T) {
	t.Parallel()

	b, err := Bind(handBuilt())
	require.NoError(t, err)

	var names []string
	for _, s := range b.Samplers {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"BaseColor", "Emissive", "Normal", "Roughness"}, names)
	assert.Len(t, b.Textures, 2)
	require.Len(t, b.Parameters, 5)
	assert.Equal(t, "HeightParams", b.Parameters[0].Name)

	base, ok := b.Sampler("BaseColor")
	require.True(t, ok)
	assert.True(t, base.SRGB)
	assert.False(t, base.GammaDecode)
	assert.Nil(t, base.Decode)
	assert.Equal(t, "Sample.rgb", base.Expression())

	emissive, _ := b.Sampler("Emissive")
	assert.True(t, emissive.GammaDecode, "texture is not sampled as sRGB")
	assert.Equal(t, "pow(Sample.b, 2.2)", emissive.Expression())

	normal, _ := b.Sampler("Normal")
	require.NotNil(t, normal.Decode)
	assert.Equal(t, "RangeCompress_1_Mul", normal.Decode.MulParam)
	assert.Equal(t, "Sample.rg * RangeCompress_1_Mul.rg + RangeCompress_1_Add.rg", normal.Expression())

	idx, swizzle, ok := b.PackingSource("Roughness")
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "a", swizzle)

	_, _, ok = b.PackingSource("Metal")
	assert.False(t, ok)

	v, ok := b.Parameter("RangeCompress_0_Add")
	require.True(t, ok)
	assert.Equal(t, texture.Vec4{0, 0, 0, 0.25}, v)
}

func TestBind_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		mutate func(s *compiler.CompiledTextureSet)
	}{
		{"missing texture", func(s *compiler.CompiledTextureSet) {
			s.Channels["Metal"] = compiler.ChannelRef{Texture: 5, Swizzle: "r"}
		}},
		{"swizzle beyond channels", func(s *compiler.CompiledTextureSet) {
			s.Channels["Metal"] = compiler.ChannelRef{Texture: 1, Swizzle: "a"}
		}},
		{"empty swizzle", func(s *compiler.CompiledTextureSet) {
			s.Channels["Metal"] = compiler.ChannelRef{Texture: 1}
		}},
		{"missing range parameters", func(s *compiler.CompiledTextureSet) {
			delete(s.Parameters, "RangeCompress_1_Mul")
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			set := handBuilt()
			tc.mutate(set)
			_, err := Bind(set)
			assert.Error(t, err)
		})
	}

	_, err := Bind(nil)
	assert.Error(t, err)
}

func rgb8(w, h int, r, g, b byte) *texture.RawTexture {
	data := make([]byte, 0, w*h*3)
	for i := 0; i < w*h; i++ {
		data = append(data, r+byte(i), g, b)
	}
	return &texture.RawTexture{Width: w, Height: h, Format: texture.FormatRGB8, Data: data}
}

func TestBind_CompiledSurface(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.Install(&packing.Module{}, &pbr_surface.Module{})
	sources := map[string]*texture.RawTexture{
		"albedo.png": rgb8(2, 2, 100, 80, 60),
		"normal.png": rgb8(2, 2, 120, 128, 255),
		"rough.png":  {Width: 2, Height: 2, Format: texture.FormatR8, Data: []byte{10, 20, 30, 40}},
	}
	resolver := compiler.SourceResolverFunc(func(_ context.Context, slot *definition.InputSlot) (*texture.RawTexture, error) {
		return sources[slot.Source], nil
	})

	metal := texture.Vec4{0}
	def := &definition.TextureSet{
		Name: "rock",
		Inputs: []definition.InputSlot{
			{Name: "albedo", Source: "albedo.png", Format: texture.FormatRGB8},
			{Name: "normal", Source: "normal.png", Format: texture.FormatRGB8},
			{Name: "rough", Source: "rough.png", Format: texture.FormatR8},
			{Name: "metal", Format: texture.FormatR8, Default: &metal},
		},
		Modules: []definition.ModuleInvocation{
			{Name: "surface", ModuleID: pbr_surface.ID, Inputs: []string{"albedo", "normal", "rough", "metal"}},
		},
		Packed: []definition.PackedTexture{
			{Name: "T0", Sources: [4]string{"surface.BaseColor.r", "surface.BaseColor.g", "surface.BaseColor.b", "surface.Roughness.r"}},
			{Name: "T1", Sources: [4]string{"surface.Normal.r", "surface.Normal.g", "surface.Metal.r"}},
		},
	}

	ctx := ctxlog.Discard(context.Background())
	set, err := compiler.New(reg, nil, compiler.WithResolver(resolver)).CompileDefinition(ctx, def)
	require.NoError(t, err)

	b, err := Bind(set)
	require.NoError(t, err)

	base, ok := b.Sampler("BaseColor")
	require.True(t, ok)
	assert.Equal(t, "T0", base.Texture.Name)
	assert.Equal(t, "rgb", base.Swizzle)
	assert.True(t, base.SRGB)

	rough, _ := b.Sampler("Roughness")
	assert.Equal(t, "Sample.a * RangeCompress_0_Mul.a + RangeCompress_0_Add.a", rough.Expression())

	normal, _ := b.Sampler("Normal")
	assert.Equal(t, 1, normal.Texture.Index)
	assert.Equal(t, "Sample.rg * RangeCompress_1_Mul.rg + RangeCompress_1_Add.rg", normal.Expression())

	metalBinding, _ := b.Sampler("Metal")
	assert.Equal(t, "b", metalBinding.Swizzle)
	assert.Nil(t, metalBinding.Decode)

	_, ok = b.Parameter(compiler.RangeCompressMulName(0))
	assert.True(t, ok)
}
