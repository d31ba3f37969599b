package pbr_surface

import (
	"context"
	"fmt"

	"github.com/vk/texturesets/internal/module"
	"github.com/vk/texturesets/internal/registry"
	"github.com/vk/texturesets/internal/texture"
)

const (
	ID      = "pbr_surface"
	Version = 1
)

// Module implements the registry.Plugin interface for this package.
type Module struct{}

// Register registers the factory with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.MustRegister(ID, Version, "Metal/roughness PBR surface with a tangent space normal.", New)
}

type surface struct {
	flipGreen bool
}

// New builds the module. The only parameter is flip_green, which converts
// DirectX style normal maps to OpenGL style ones.
func New(params module.Params) (module.Module, error) {
	if err := params.Only("flip_green"); err != nil {
		return nil, err
	}
	flip, err := params.Bool("flip_green", false)
	if err != nil {
		return nil, err
	}
	return &surface{flipGreen: flip}, nil
}

func (s *surface) Signature() module.Signature {
	return module.Signature{
		Inputs: []module.Port{
			{Name: "BaseColor", Channels: 3, Encoding: texture.EncodingSRGB, Default: &texture.Vec4{0.5, 0.5, 0.5, 0}},
			{Name: "Normal", Channels: 3, Default: &texture.Vec4{0.5, 0.5, 1, 0}},
			{Name: "Roughness", Channels: 1, Encoding: texture.EncodingRangeCompression, Default: &texture.Vec4{0.5, 0.5, 0.5, 0}},
			{Name: "Metal", Channels: 1},
		},
		Outputs: []module.Port{
			{Name: "BaseColor", Channels: 3, Encoding: texture.EncodingSRGB},
			{Name: "Normal", Channels: 2, Encoding: texture.EncodingRangeCompression},
			{Name: "Roughness", Channels: 1, Encoding: texture.EncodingRangeCompression},
			{Name: "Metal", Channels: 1},
		},
	}
}

func (s *surface) Execute(ctx context.Context, in module.Inputs, _ module.Params) (*module.Outputs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(in) != 4 {
		return nil, fmt.Errorf("pbr_surface: expected 4 inputs, got %d", len(in))
	}
	out := module.NewOutputs()
	out.Textures["BaseColor"] = in[0].Clone()

	// Tangent normals keep X and Y; Z is rebuilt in the material.
	out.Textures["Normal"] = in[1].Map(2, func(src, dst []float32) {
		dst[0] = src[0]
		dst[1] = src[1]
		if s.flipGreen {
			dst[1] = 1 - src[1]
		}
	})
	out.Textures["Roughness"] = in[2].Clone()
	out.Textures["Metal"] = in[3].Clone()
	return out, nil
}
