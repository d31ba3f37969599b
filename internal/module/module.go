// Package module defines the processing module contract. A processing module
// is a versioned, pure transformation from ordered input textures and
// parameters to named output textures and named constant values.
package module

import (
	"context"
	"fmt"

	"github.com/vk/texturesets/internal/texture"
)

// Module is one configured processing step. Execute must be safe to call
// from any goroutine and must not retain or mutate its inputs.
type Module interface {
	Signature() Signature
	Execute(ctx context.Context, in Inputs, params Params) (*Outputs, error)
}

// Factory builds a Module from invocation parameters. Factories reject bad
// parameters up front so definitions fail before any execution.
type Factory func(params Params) (Module, error)

// Signature declares what a configured module consumes and produces.
type Signature struct {
	Inputs  []Port
	Outputs []Port
	// Values lists the named vec4 constants the module emits.
	Values []string
}

// Port describes one texture input or output.
type Port struct {
	Name string
	// Channels is the channel count. Zero on an input accepts anything; zero
	// on an output mirrors the first input.
	Channels int
	Encoding texture.Encoding
	// Default, on an input, fills a slot whose source cannot be found and
	// that declares no default of its own.
	Default *texture.Vec4
}

// Output returns the output port with the given name.
func (s Signature) Output(name string) (Port, bool) {
	for _, p := range s.Outputs {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// Validate checks port names are present and unique.
func (s Signature) Validate() error {
	seen := make(map[string]struct{})
	for _, p := range s.Outputs {
		if p.Name == "" {
			return fmt.Errorf("module: output with empty name")
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("module: duplicate output %q", p.Name)
		}
		if p.Channels < 0 || p.Channels > 4 {
			return fmt.Errorf("module: output %q has %d channels", p.Name, p.Channels)
		}
		seen[p.Name] = struct{}{}
	}
	for _, v := range s.Values {
		if _, dup := seen[v]; dup {
			return fmt.Errorf("module: value %q shadows another output", v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

// Inputs are the resolved textures wired to a module, in port order.
type Inputs []*texture.Image

// Outputs carries everything a module produced.
type Outputs struct {
	Textures map[string]*texture.Image
	// Mips holds the levels below the base for outputs that carry a mip
	// chain, smallest last.
	Mips   map[string][]*texture.Image
	Values map[string]texture.Vec4
}

// NewOutputs returns empty, ready to fill outputs.
func NewOutputs() *Outputs {
	return &Outputs{
		Textures: make(map[string]*texture.Image),
		Mips:     make(map[string][]*texture.Image),
		Values:   make(map[string]texture.Vec4),
	}
}

// Check verifies the outputs match the signature exactly.
func (o *Outputs) Check(sig Signature) error {
	if o == nil {
		return fmt.Errorf("module: produced no outputs")
	}
	for _, p := range sig.Outputs {
		img, ok := o.Textures[p.Name]
		if !ok {
			return fmt.Errorf("module: missing output %q", p.Name)
		}
		if err := img.Validate(); err != nil {
			return fmt.Errorf("module: output %q: %w", p.Name, err)
		}
		if p.Channels > 0 && img.Channels != p.Channels {
			return fmt.Errorf("module: output %q has %d channels, declared %d", p.Name, img.Channels, p.Channels)
		}
	}
	for name, levels := range o.Mips {
		base, ok := o.Textures[name]
		if !ok {
			return fmt.Errorf("module: mips for unknown output %q", name)
		}
		for i, level := range levels {
			if err := level.Validate(); err != nil {
				return fmt.Errorf("module: output %q mip %d: %w", name, i+1, err)
			}
			if level.Channels != base.Channels {
				return fmt.Errorf("module: output %q mip %d has %d channels, base has %d", name, i+1, level.Channels, base.Channels)
			}
		}
	}
	if len(o.Textures) != len(sig.Outputs) {
		return fmt.Errorf("module: produced %d textures, declared %d", len(o.Textures), len(sig.Outputs))
	}
	for _, v := range sig.Values {
		if _, ok := o.Values[v]; !ok {
			return fmt.Errorf("module: missing value %q", v)
		}
	}
	return nil
}

// SameSize checks every input shares the first input's dimensions.
func (in Inputs) SameSize() error {
	for i := 1; i < len(in); i++ {
		if !in[i].SameSize(in[0]) {
			return fmt.Errorf("input %d is %dx%d, input 0 is %dx%d", i, in[i].Width, in[i].Height, in[0].Width, in[0].Height)
		}
	}
	return nil
}
