// Package definition contains the declarative model of a texture set: its
// named input slots, the processing modules applied to them and the packed
// textures the compiler produces.
//
// A TextureSet is treated as immutable once handed to the assembler.
package definition

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vk/texturesets/internal/texture"
	"github.com/zclconf/go-cty/cty"
)

// TextureSet is the authored description of one texture set.
type TextureSet struct {
	Name    string
	Inputs  []InputSlot
	Modules []ModuleInvocation
	Packed  []PackedTexture
}

// InputSlot is a named raw texture supplied by the host.
type InputSlot struct {
	Name   string
	Source string
	Format texture.Format
	// Default fills the slot with a constant when the host has no source.
	Default *texture.Vec4
}

// ModuleInvocation applies one registered processing module.
type ModuleInvocation struct {
	Name     string
	ModuleID string
	// ModuleVersion pins the registered version; zero accepts any.
	ModuleVersion uint32
	// Inputs are references: "slot", "node" or "node.output".
	Inputs     []string
	Parameters []Parameter
}

// Parameter is a single named module parameter. Order is significant.
type Parameter struct {
	Name  string
	Value cty.Value
}

// PackedTexture describes one GPU texture assembled from source channels.
type PackedTexture struct {
	Name string
	// Sources maps R, G, B, A to "<ref>.<channel>"; empty entries are unmapped.
	Sources [4]string
	// Channels forces the channel count; zero derives it from the highest
	// mapped source.
	Channels       int
	LODBias        int
	Compression    string
	VirtualTexture bool
	SkipMips       bool
	HDR            bool
}

// Param returns the named parameter value, or cty.NilVal when absent.
func (m *ModuleInvocation) Param(name string) cty.Value {
	for _, p := range m.Parameters {
		if p.Name == name {
			return p.Value
		}
	}
	return cty.NilVal
}

// Validate performs the structural checks that need no registry: non-empty
// and unique names, known formats and well formed packed sources.
func (d *TextureSet) Validate() error {
	var errs []string
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, "texture set name is empty")
	}

	seen := make(map[string]string)
	claim := func(kind, name string) {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Sprintf("%s has an empty name", kind))
			return
		}
		if strings.Contains(name, ".") {
			errs = append(errs, fmt.Sprintf("%s %q: names must not contain '.'", kind, name))
		}
		if prev, ok := seen[name]; ok {
			errs = append(errs, fmt.Sprintf("%s %q collides with %s of the same name", kind, name, prev))
			return
		}
		seen[name] = kind
	}

	for _, in := range d.Inputs {
		claim("input", in.Name)
		if !in.Format.Valid() {
			errs = append(errs, fmt.Sprintf("input %q: unknown format %q", in.Name, in.Format))
		}
		if in.Source == "" && in.Default == nil {
			errs = append(errs, fmt.Sprintf("input %q: needs a source or a default", in.Name))
		}
	}
	for _, m := range d.Modules {
		claim("module", m.Name)
		if m.ModuleID == "" {
			errs = append(errs, fmt.Sprintf("module %q: missing module type", m.Name))
		}
		params := make(map[string]struct{}, len(m.Parameters))
		for _, p := range m.Parameters {
			if _, dup := params[p.Name]; dup {
				errs = append(errs, fmt.Sprintf("module %q: duplicate parameter %q", m.Name, p.Name))
			}
			params[p.Name] = struct{}{}
		}
	}

	packedNames := make(map[string]struct{}, len(d.Packed))
	for _, p := range d.Packed {
		if _, dup := packedNames[p.Name]; dup || p.Name == "" {
			errs = append(errs, fmt.Sprintf("packed texture %q: name is empty or duplicated", p.Name))
		}
		packedNames[p.Name] = struct{}{}
		if p.Channels < 0 || p.Channels > 4 {
			errs = append(errs, fmt.Sprintf("packed texture %q: channel count %d out of range", p.Name, p.Channels))
		}
		mapped := 0
		for i, src := range p.Sources {
			if src == "" {
				continue
			}
			mapped++
			if p.Channels > 0 && i >= p.Channels {
				errs = append(errs, fmt.Sprintf("packed texture %q maps channel %c beyond its %d channels", p.Name, ChannelLetters[i], p.Channels))
			}
			if _, _, err := ParseChannelSource(src); err != nil {
				errs = append(errs, fmt.Sprintf("packed texture %q, channel %c: %v", p.Name, ChannelLetters[i], err))
			}
		}
		if mapped == 0 {
			errs = append(errs, fmt.Sprintf("packed texture %q maps no channels", p.Name))
		}
	}
	if len(d.Packed) == 0 {
		errs = append(errs, "texture set declares no packed textures")
	}

	if len(errs) > 0 {
		return fmt.Errorf("definition %q is invalid:\n- %s", d.Name, strings.Join(errs, "\n- "))
	}
	return nil
}

// ChannelLetters names the four texture channels in order.
const ChannelLetters = "rgba"

// ErrBadReference is returned for malformed references.
var ErrBadReference = errors.New("malformed reference")

// ParseChannelSource splits "ref.c" into the reference and the channel index.
// Both rgba and xyzw channel letters are accepted.
func ParseChannelSource(src string) (ref string, channel int, err error) {
	dot := strings.LastIndexByte(src, '.')
	if dot <= 0 || dot == len(src)-1 {
		return "", 0, fmt.Errorf("%w: %q, want <input>.<channel>", ErrBadReference, src)
	}
	letter := strings.ToLower(src[dot+1:])
	channel = strings.Index(ChannelLetters, letter)
	if channel < 0 || len(letter) != 1 {
		channel = strings.Index("xyzw", letter)
	}
	if channel < 0 || len(letter) != 1 {
		return "", 0, fmt.Errorf("%w: %q, unknown channel %q", ErrBadReference, src, letter)
	}
	return src[:dot], channel, nil
}

// SplitReference splits "node.output" into its parts. The output is empty for
// plain references.
func SplitReference(ref string) (node, output string, err error) {
	parts := strings.Split(ref, ".")
	switch {
	case len(parts) == 1 && parts[0] != "":
		return parts[0], "", nil
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return parts[0], parts[1], nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrBadReference, ref)
}
