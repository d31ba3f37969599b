package height

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/texturesets/internal/module"
	"github.com/vk/texturesets/internal/registry"
	"github.com/vk/texturesets/internal/texture"
	"github.com/zclconf/go-cty/cty"
)

func TestHeight_Values(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		params module.Params
		want   texture.Vec4
	}{
		{name: "defaults", want: texture.Vec4{0.05, 1, 0, 0}},
		{
			name: "custom",
			params: module.Params{
				{Name: "scale", Value: cty.NumberFloatVal(0.5)},
				{Name: "reference_plane", Value: cty.NumberFloatVal(0.25)},
			},
			want: texture.Vec4{0.5, 0.25, 0, 0},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			mod, err := New(tc.params)
			require.NoError(t, err)

			out, err := mod.Execute(context.Background(), module.Inputs{texture.Constant(2, 2, 1, texture.Vec4{0.4})}, nil)
			require.NoError(t, err)
			require.NoError(t, out.Check(mod.Signature()))
			assert.Equal(t, tc.want, out.Values[ParamsValue])
			assert.Equal(t, float32(0.4), out.Textures["Height"].Pix[0])
		})
	}
}

func TestNew_ReferencePlaneRange(t *testing.T) {
	t.Parallel()

	_, err := New(module.Params{{Name: "reference_plane", Value: cty.NumberIntVal(2)}})
	require.ErrorContains(t, err, "reference_plane")
}

func TestRegister(t *testing.T) {
	t.Parallel()

	r := registry.New()
	r.Install(&Module{})
	_, ok := r.Resolve(ID)
	assert.True(t, ok)
}
