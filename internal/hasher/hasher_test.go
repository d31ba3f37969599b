package hasher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/texturesets/internal/definition"
	"github.com/vk/texturesets/internal/texture"
	"github.com/zclconf/go-cty/cty"
)

func subject() Subject {
	return Subject{
		ModuleID: "height",
		Version:  1,
		Params: []definition.Parameter{
			{Name: "scale", Value: cty.NumberFloatVal(0.5)},
			{Name: "tags", Value: cty.ObjectVal(map[string]cty.Value{"b": cty.True, "a": cty.False})},
		},
	}
}

func TestHash_Deterministic(t *testing.T) {
	t.Parallel()

	in := []Input{{Key: Key{1}, Output: "Height"}}
	a := Hash(subject(), in)
	b := Hash(subject(), []Input{{Key: Key{1}, Output: "Height"}})
	assert.Equal(t, a, b)
	assert.False(t, a.IsZero())
}

func TestHash_Sensitivity(t *testing.T) {
	t.Parallel()

	base := Hash(subject(), []Input{{Key: Key{1}, Output: "A"}, {Key: Key{2}, Output: "B"}})

	tests := []struct {
		name    string
		subject func() Subject
		inputs  []Input
	}{
		{"module id", func() Subject { s := subject(); s.ModuleID = "invert"; return s }, nil},
		{"version bump", func() Subject { s := subject(); s.Version = 2; return s }, nil},
		{"parameter value", func() Subject { s := subject(); s.Params[0].Value = cty.NumberFloatVal(0.6); return s }, nil},
		{"parameter order", func() Subject {
			s := subject()
			s.Params[0], s.Params[1] = s.Params[1], s.Params[0]
			return s
		}, nil},
		{"parameter type", func() Subject { s := subject(); s.Params[0].Value = cty.StringVal("0.5"); return s }, nil},
		{"input order", subject, []Input{{Key: Key{2}, Output: "B"}, {Key: Key{1}, Output: "A"}}},
		{"input output name", subject, []Input{{Key: Key{1}, Output: "C"}, {Key: Key{2}, Output: "B"}}},
		{"input key", subject, []Input{{Key: Key{3}, Output: "A"}, {Key: Key{2}, Output: "B"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			inputs := tc.inputs
			if inputs == nil {
				inputs = []Input{{Key: Key{1}, Output: "A"}, {Key: Key{2}, Output: "B"}}
			}
			assert.NotEqual(t, base, Hash(tc.subject(), inputs))
		})
	}
}

func TestHash_NoFieldAmbiguity(t *testing.T) {
	t.Parallel()

	a := Hash(Subject{ModuleID: "ab", Params: []definition.Parameter{{Name: "c", Value: cty.True}}}, nil)
	b := Hash(Subject{ModuleID: "a", Params: []definition.Parameter{{Name: "bc", Value: cty.True}}}, nil)
	assert.NotEqual(t, a, b)
}

func TestRawKey(t *testing.T) {
	t.Parallel()

	raw := &texture.RawTexture{Width: 1, Height: 1, Format: texture.FormatR8, Data: []byte{7}}

	t.Run("digest defaults to content hash", func(t *testing.T) {
		t.Parallel()
		withDigest := *raw
		withDigest.Digest = Digest(raw.Data)
		assert.Equal(t, RawKey(raw), RawKey(&withDigest))
	})

	t.Run("content change is a new key", func(t *testing.T) {
		t.Parallel()
		changed := *raw
		changed.Data = []byte{8}
		assert.NotEqual(t, RawKey(raw), RawKey(&changed))
	})

	t.Run("format is part of the key", func(t *testing.T) {
		t.Parallel()
		other := *raw
		other.Format = texture.FormatRG8
		assert.NotEqual(t, RawKey(raw), RawKey(&other))
	})
}

func TestConstantKey(t *testing.T) {
	t.Parallel()

	a := ConstantKey(texture.FormatR8, texture.Vec4{1, 0, 0, 0})
	assert.Equal(t, a, ConstantKey(texture.FormatR8, texture.Vec4{1, 0, 0, 0}))
	assert.NotEqual(t, a, ConstantKey(texture.FormatR8, texture.Vec4{0.5, 0, 0, 0}))
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	k := Hash(subject(), nil)
	back, err := ParseKey(k.String())
	require.NoError(t, err)
	assert.Equal(t, k, back)
	assert.Len(t, k.Short(), 12)

	_, err = ParseKey("abcd")
	require.Error(t, err)
	_, err = ParseKey("zz")
	require.Error(t, err)
}

func TestSetKey(t *testing.T) {
	t.Parallel()

	parts := []Input{{Key: Key{1}, Output: "Packed0"}, {Key: Key{2}, Output: "Packed1"}}
	assert.Equal(t, SetKey(parts), SetKey([]Input{{Key: Key{1}, Output: "Packed0"}, {Key: Key{2}, Output: "Packed1"}}))
	assert.NotEqual(t, SetKey(parts), SetKey(parts[:1]))
}

func TestTextureKey(t *testing.T) {
	t.Parallel()
	payload := Key{7}
	base := TextureKey(payload, 0, "", false)

	assert.Equal(t, base, TextureKey(payload, 0, "", false))
	assert.NotEqual(t, payload, base)
	assert.NotEqual(t, base, TextureKey(payload, -1, "", false))
	assert.NotEqual(t, base, TextureKey(payload, 0, "bc7", false))
	assert.NotEqual(t, base, TextureKey(payload, 0, "", true))
	assert.NotEqual(t, base, TextureKey(Key{8}, 0, "", false))
}
