// Package packing implements the module that assembles packed textures. The
// graph assembler adds one packing node per packed texture of a definition;
// it is never referenced from a definition directly.
//
// A packed texture gathers up to four single channels from arbitrary
// producers, scales them to a common size, builds the mip chain and applies
// the per-channel encodings (range compression and sRGB) the producers asked
// for.
package packing

import (
	"context"
	"fmt"

	"github.com/vk/texturesets/internal/module"
	"github.com/vk/texturesets/internal/registry"
	"github.com/vk/texturesets/internal/texture"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

const (
	ID      = "texturesets.pack"
	Version = 1

	// Output is the name of the single texture output.
	Output = "Packed"
	// ValueMul and ValueAdd hold the range compression restore constants,
	// one component per packed channel.
	ValueMul = "RangeCompressMul"
	ValueAdd = "RangeCompressAdd"
)

// Channel maps one packed channel to a component of one input.
type Channel struct {
	// Input indexes the packing node's inputs; -1 leaves the channel unmapped.
	Input         int  `cty:"input"`
	Component     int  `cty:"component"`
	SRGB          bool `cty:"srgb"`
	RangeCompress bool `cty:"range_compress"`
}

// Mapped reports whether the channel has a source.
func (c Channel) Mapped() bool {
	return c.Input >= 0
}

// Layout fully describes one packed texture.
type Layout struct {
	Channels [4]Channel
	// Count forces the channel count; zero derives it from the highest
	// mapped channel. Unmapped channels below the count are filled.
	Count    int
	SkipMips bool
	HDR      bool
}

// NewLayout returns a layout with every channel unmapped.
func NewLayout() Layout {
	var l Layout
	for i := range l.Channels {
		l.Channels[i].Input = -1
	}
	return l
}

var channelType = cty.Object(map[string]cty.Type{
	"input":          cty.Number,
	"component":      cty.Number,
	"srgb":           cty.Bool,
	"range_compress": cty.Bool,
})

// Params renders a layout as invocation parameters, so packing nodes hash and
// dedupe like any other module.
func (l Layout) Params() (module.Params, error) {
	channels, err := gocty.ToCtyValue(l.Channels[:], cty.List(channelType))
	if err != nil {
		return nil, fmt.Errorf("packing: %w", err)
	}
	return module.Params{
		{Name: "channels", Value: channels},
		{Name: "count", Value: cty.NumberIntVal(int64(l.Count))},
		{Name: "skip_mips", Value: cty.BoolVal(l.SkipMips)},
		{Name: "hdr", Value: cty.BoolVal(l.HDR)},
	}, nil
}

// Width returns the channel count of the packed texture.
func (l Layout) Width() int {
	if l.Count > 0 {
		return l.Count
	}
	n := 1
	for i, c := range l.Channels {
		if c.Mapped() {
			n = i + 1
		}
	}
	return n
}

// Inputs returns how many inputs the layout references.
func (l Layout) Inputs() int {
	n := 0
	for _, c := range l.Channels {
		n = max(n, c.Input+1)
	}
	return n
}

// HardwareSRGB reports whether the texture can be sampled with the GPU's sRGB
// decode: every colour channel must want sRGB.
func (l Layout) HardwareSRGB() bool {
	if l.HDR || l.Width() < 3 {
		return false
	}
	for c := 0; c < 3; c++ {
		if !l.Channels[c].Mapped() || !l.Channels[c].SRGB {
			return false
		}
	}
	return true
}

// RangeCompressed reports whether any channel is range compressed.
func (l Layout) RangeCompressed() bool {
	for _, c := range l.Channels {
		if c.Mapped() && c.RangeCompress {
			return true
		}
	}
	return false
}

// Module implements the registry.Plugin interface for this package.
type Module struct{}

// Register registers the packing factory.
func (m *Module) Register(r *registry.Registry) {
	r.MustRegister(ID, Version, "Packs channels of other outputs into one GPU texture.", New)
}

type packer struct {
	layout Layout
}

// New builds a packer from the parameters produced by Layout.Params.
func New(params module.Params) (module.Module, error) {
	if err := params.Only("channels", "count", "skip_mips", "hdr"); err != nil {
		return nil, err
	}
	var l Layout
	var channels []Channel
	if err := params.Decode("channels", &channels); err != nil {
		return nil, err
	}
	if len(channels) != 4 {
		return nil, fmt.Errorf("packing: expected 4 channels, got %d", len(channels))
	}
	copy(l.Channels[:], channels)
	var err error
	if l.Count, err = params.Int("count", 0); err != nil {
		return nil, err
	}
	if l.Count < 0 || l.Count > 4 {
		return nil, fmt.Errorf("packing: channel count %d out of range", l.Count)
	}
	if l.SkipMips, err = params.Bool("skip_mips", false); err != nil {
		return nil, err
	}
	if l.HDR, err = params.Bool("hdr", false); err != nil {
		return nil, err
	}

	mapped := 0
	for i, c := range l.Channels {
		if !c.Mapped() {
			continue
		}
		if l.Count > 0 && i >= l.Count {
			return nil, fmt.Errorf("packing: channel %c is mapped beyond the %d channel texture", "rgba"[i], l.Count)
		}
		if c.Component < 0 || c.Component > 3 {
			return nil, fmt.Errorf("packing: channel %c reads component %d", "rgba"[i], c.Component)
		}
		mapped++
	}
	if mapped == 0 {
		return nil, fmt.Errorf("packing: no channel is mapped")
	}
	return &packer{layout: l}, nil
}

// NewFromLayout is New without the parameter round trip.
func NewFromLayout(l Layout) (module.Module, error) {
	params, err := l.Params()
	if err != nil {
		return nil, err
	}
	return New(params)
}

func (p *packer) Signature() module.Signature {
	sig := module.Signature{
		Outputs: []module.Port{{Name: Output, Channels: p.layout.Width()}},
	}
	for i := 0; i < p.layout.Inputs(); i++ {
		sig.Inputs = append(sig.Inputs, module.Port{Name: fmt.Sprintf("in%d", i)})
	}
	if p.layout.HardwareSRGB() {
		sig.Outputs[0].Encoding = texture.EncodingSRGB
	}
	if p.layout.RangeCompressed() {
		sig.Outputs[0].Encoding |= texture.EncodingRangeCompression
		sig.Values = []string{ValueMul, ValueAdd}
	}
	return sig
}

func (p *packer) Execute(ctx context.Context, in module.Inputs, _ module.Params) (*module.Outputs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := p.layout
	if len(in) != l.Inputs() {
		return nil, fmt.Errorf("packing: expected %d inputs, got %d", l.Inputs(), len(in))
	}

	width, height, err := packedSize(in)
	if err != nil {
		return nil, err
	}

	channels := l.Width()
	base := texture.NewImage(width, height, channels)
	for c := 0; c < channels; c++ {
		ch := l.Channels[c]
		if !ch.Mapped() {
			fill := float32(0)
			if c == 3 {
				fill = 1
			}
			for i := c; i < len(base.Pix); i += channels {
				base.Pix[i] = fill
			}
			continue
		}
		src := in[ch.Input]
		if ch.Component >= src.Channels {
			return nil, fmt.Errorf("packing: channel %c reads component %d of a %d channel input", "rgba"[c], ch.Component, src.Channels)
		}
		scaled := src.Resize(width, height)
		for i := 0; i < width*height; i++ {
			base.Pix[i*channels+c] = scaled.Pix[i*src.Channels+ch.Component]
		}
	}

	chain := []*texture.Image{base}
	if !l.SkipMips {
		chain = texture.MipChain(base)
	}

	out := module.NewOutputs()
	var mul, add texture.Vec4
	for c := 0; c < channels; c++ {
		ch := l.Channels[c]
		mul[c] = 1
		if ch.Mapped() && ch.RangeCompress {
			mul[c], add[c] = texture.RangeCompress(chain, c)
		}
		// Stored values are gamma encoded either way. HardwareSRGB only
		// decides whether the sampler or the material decodes them.
		if ch.Mapped() && ch.SRGB {
			texture.EncodeSRGB(chain, c)
		}
	}
	if l.RangeCompressed() {
		out.Values[ValueMul] = mul
		out.Values[ValueAdd] = add
	}

	out.Textures[Output] = chain[0]
	if len(chain) > 1 {
		out.Mips[Output] = chain[1:]
	}
	return out, nil
}

// packedSize picks the largest input size. All inputs must share one aspect
// ratio; 1x1 constants stretch to anything.
func packedSize(in module.Inputs) (int, int, error) {
	width, height := 0, 0
	for _, img := range in {
		width = max(width, img.Width)
		height = max(height, img.Height)
	}
	for i, img := range in {
		if img.Width == 1 && img.Height == 1 {
			continue
		}
		if img.Width*height != img.Height*width {
			return 0, 0, fmt.Errorf("packing: input %d is %dx%d, which does not match the %dx%d aspect ratio", i, img.Width, img.Height, width, height)
		}
	}
	return width, height, nil
}
