package invert

import (
	"context"
	"fmt"

	"github.com/vk/texturesets/internal/module"
	"github.com/vk/texturesets/internal/registry"
)

const (
	ID      = "invert"
	Version = 1
)

// Module implements the registry.Plugin interface for this package.
type Module struct{}

// Register registers the factory with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.MustRegister(ID, Version, "Computes 1 - x for every channel, e.g. smoothness to roughness.", New)
}

type inverter struct{}

// New takes no parameters.
func New(params module.Params) (module.Module, error) {
	if err := params.Only(); err != nil {
		return nil, err
	}
	return inverter{}, nil
}

func (inverter) Signature() module.Signature {
	return module.Signature{
		Inputs:  []module.Port{{Name: "In"}},
		Outputs: []module.Port{{Name: "Out"}},
	}
}

func (inverter) Execute(ctx context.Context, in module.Inputs, _ module.Params) (*module.Outputs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(in) != 1 {
		return nil, fmt.Errorf("invert: expected 1 input, got %d", len(in))
	}
	out := module.NewOutputs()
	out.Textures["Out"] = in[0].Map(in[0].Channels, func(src, dst []float32) {
		for i, v := range src {
			dst[i] = 1 - v
		}
	})
	return out, nil
}
