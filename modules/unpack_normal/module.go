package unpack_normal

import (
	"context"
	"fmt"

	"github.com/vk/texturesets/internal/module"
	"github.com/vk/texturesets/internal/registry"
	"github.com/vk/texturesets/internal/texture"
)

const (
	ID      = "unpack_normal"
	Version = 1
)

// Module implements the registry.Plugin interface for this package.
type Module struct{}

// Register registers the factory with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.MustRegister(ID, Version, "Unpacks a [0,1] normal map into tangent XY in [-1,1].", New)
}

type unpacker struct {
	flipGreen bool
}

// New accepts an optional flip_green flag.
func New(params module.Params) (module.Module, error) {
	if err := params.Only("flip_green"); err != nil {
		return nil, err
	}
	flip, err := params.Bool("flip_green", false)
	if err != nil {
		return nil, err
	}
	return &unpacker{flipGreen: flip}, nil
}

func (u *unpacker) Signature() module.Signature {
	return module.Signature{
		Inputs:  []module.Port{{Name: "Normal", Channels: 3, Default: &texture.Vec4{0.5, 0.5, 1, 0}}},
		Outputs: []module.Port{{Name: "TangentNormal", Channels: 2, Encoding: texture.EncodingRangeCompression}},
	}
}

func (u *unpacker) Execute(ctx context.Context, in module.Inputs, _ module.Params) (*module.Outputs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(in) != 1 {
		return nil, fmt.Errorf("unpack_normal: expected 1 input, got %d", len(in))
	}
	out := module.NewOutputs()
	out.Textures["TangentNormal"] = in[0].Map(2, func(src, dst []float32) {
		dst[0] = src[0]*2 - 1
		dst[1] = src[1]*2 - 1
		if u.flipGreen {
			dst[1] = -dst[1]
		}
	})
	return out, nil
}
