package flip_green

import (
	"context"
	"fmt"

	"github.com/vk/texturesets/internal/module"
	"github.com/vk/texturesets/internal/registry"
)

const (
	ID      = "flip_green"
	Version = 1
)

// Module implements the registry.Plugin interface for this package.
type Module struct{}

// Register registers the factory with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.MustRegister(ID, Version, "Flips the Y axis of a [0,1] encoded normal map.", New)
}

type flipper struct{}

// New takes no parameters.
func New(params module.Params) (module.Module, error) {
	if err := params.Only(); err != nil {
		return nil, err
	}
	return flipper{}, nil
}

func (flipper) Signature() module.Signature {
	return module.Signature{
		Inputs:  []module.Port{{Name: "Normal"}},
		Outputs: []module.Port{{Name: "Normal"}},
	}
}

func (flipper) Execute(ctx context.Context, in module.Inputs, _ module.Params) (*module.Outputs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(in) != 1 {
		return nil, fmt.Errorf("flip_green: expected 1 input, got %d", len(in))
	}
	if in[0].Channels < 2 {
		return nil, fmt.Errorf("flip_green: normal needs at least 2 channels, got %d", in[0].Channels)
	}
	out := module.NewOutputs()
	out.Textures["Normal"] = in[0].Map(in[0].Channels, func(src, dst []float32) {
		copy(dst, src)
		dst[1] = 1 - src[1]
	})
	return out, nil
}
