package height

import (
	"context"
	"fmt"

	"github.com/vk/texturesets/internal/module"
	"github.com/vk/texturesets/internal/registry"
	"github.com/vk/texturesets/internal/texture"
)

const (
	ID      = "height"
	Version = 1

	// ParamsValue packs (scale, reference_plane, 0, 0) for parallax shaders.
	ParamsValue = "HeightParams"
)

// Module implements the registry.Plugin interface for this package.
type Module struct{}

// Register registers the factory with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.MustRegister(ID, Version, "Height map with parallax parameters.", New)
}

type heightModule struct {
	scale          float64
	referencePlane float64
}

// New builds the module from the optional scale (default 0.05) and
// reference_plane (default 1) parameters.
func New(params module.Params) (module.Module, error) {
	if err := params.Only("scale", "reference_plane"); err != nil {
		return nil, err
	}
	scale, err := params.Float("scale", 0.05)
	if err != nil {
		return nil, err
	}
	plane, err := params.Float("reference_plane", 1)
	if err != nil {
		return nil, err
	}
	if plane < 0 || plane > 1 {
		return nil, fmt.Errorf("height: reference_plane %v must be within [0,1]", plane)
	}
	return &heightModule{scale: scale, referencePlane: plane}, nil
}

func (h *heightModule) Signature() module.Signature {
	return module.Signature{
		Inputs:  []module.Port{{Name: "Height", Channels: 1, Encoding: texture.EncodingRangeCompression, Default: &texture.Vec4{1, 0, 0, 0}}},
		Outputs: []module.Port{{Name: "Height", Channels: 1, Encoding: texture.EncodingRangeCompression}},
		Values:  []string{ParamsValue},
	}
}

func (h *heightModule) Execute(ctx context.Context, in module.Inputs, _ module.Params) (*module.Outputs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(in) != 1 {
		return nil, fmt.Errorf("height: expected 1 input, got %d", len(in))
	}
	out := module.NewOutputs()
	out.Textures["Height"] = in[0].Clone()
	out.Values[ParamsValue] = texture.Vec4{float32(h.scale), float32(h.referencePlane), 0, 0}
	return out, nil
}
