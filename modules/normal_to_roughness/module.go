package normal_to_roughness

import (
	"context"
	"fmt"
	"math"

	"github.com/vk/texturesets/internal/module"
	"github.com/vk/texturesets/internal/registry"
	"github.com/vk/texturesets/internal/texture"
)

const (
	ID      = "normal_to_roughness"
	Version = 1
)

// Module implements the registry.Plugin interface for this package.
type Module struct{}

// Register registers the factory with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.MustRegister(ID, Version, "Widens roughness where the normal map varies, so detail does not alias.", New)
}

type widener struct {
	radius int
}

// New accepts the filter radius in texels (default 1).
func New(params module.Params) (module.Module, error) {
	if err := params.Only("radius"); err != nil {
		return nil, err
	}
	radius, err := params.Int("radius", 1)
	if err != nil {
		return nil, err
	}
	if radius < 1 || radius > 16 {
		return nil, fmt.Errorf("normal_to_roughness: radius %d must be within [1,16]", radius)
	}
	return &widener{radius: radius}, nil
}

func (w *widener) Signature() module.Signature {
	return module.Signature{
		Inputs: []module.Port{
			{Name: "Roughness", Channels: 1},
			{Name: "Normal", Channels: 3},
		},
		Outputs: []module.Port{{Name: "Roughness", Channels: 1, Encoding: texture.EncodingRangeCompression}},
	}
}

// Execute averages the unpacked normals around each texel. The shorter the
// averaged vector, the wider the lobe; the variance is folded into the
// roughness with the Toksvig approximation used by vMF lobes.
func (w *widener) Execute(ctx context.Context, in module.Inputs, _ module.Params) (*module.Outputs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(in) != 2 {
		return nil, fmt.Errorf("normal_to_roughness: expected 2 inputs, got %d", len(in))
	}
	normal := in[1]
	rough := in[0].Resize(normal.Width, normal.Height)
	if in[0].Width != 1 || in[0].Height != 1 {
		if err := in.SameSize(); err != nil {
			return nil, fmt.Errorf("normal_to_roughness: %w", err)
		}
	}

	out := texture.NewImage(normal.Width, normal.Height, 1)
	for y := 0; y < normal.Height; y++ {
		for x := 0; x < normal.Width; x++ {
			var sum [3]float64
			for dy := -w.radius; dy <= w.radius; dy++ {
				sy := min(max(y+dy, 0), normal.Height-1)
				for dx := -w.radius; dx <= w.radius; dx++ {
					sx := min(max(x+dx, 0), normal.Width-1)
					for c := 0; c < 3; c++ {
						sum[c] += float64(normal.At(sx, sy, c))*2 - 1
					}
				}
			}
			taps := float64((2*w.radius + 1) * (2*w.radius + 1))
			r := math.Sqrt(sum[0]*sum[0]+sum[1]*sum[1]+sum[2]*sum[2]) / taps
			out.Set(x, y, 0, float32(widen(float64(rough.At(x, y, 0)), r)))
		}
	}

	res := module.NewOutputs()
	res.Textures["Roughness"] = out
	return res, nil
}

// widen adds the lobe width implied by an averaged normal of length r.
func widen(roughness, r float64) float64 {
	var kappa float64
	switch {
	case r <= 1e-4:
		kappa = 1
	case r < 1:
		kappa = (1 - r*r) / (3*r - r*r*r)
	}
	return math.Min(math.Pow(math.Pow(roughness, 4)+kappa, 0.25), 1)
}
