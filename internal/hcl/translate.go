package hcl

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/texturesets/internal/ctxlog"
	"github.com/vk/texturesets/internal/definition"
	"github.com/vk/texturesets/internal/texture"
)

// translateTextureSet converts the HCL schema into a definition. Relative
// sources are joined to dir.
func translateTextureSet(ctx context.Context, dir string, s *TextureSet) (*definition.TextureSet, error) {
	logger := ctxlog.FromContext(ctx)
	set := &definition.TextureSet{Name: s.Name}

	for _, in := range s.Inputs {
		slot, err := translateInput(dir, in)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Name, err)
		}
		set.Inputs = append(set.Inputs, slot)
	}
	for _, m := range s.Modules {
		inv, err := translateModule(m)
		if err != nil {
			return nil, fmt.Errorf("module %q: %w", m.Name, err)
		}
		set.Modules = append(set.Modules, inv)
	}
	for _, p := range s.Packed {
		set.Packed = append(set.Packed, definition.PackedTexture{
			Name:           p.Name,
			Sources:        [4]string{p.R, p.G, p.B, p.A},
			Channels:       p.Channels,
			LODBias:        p.LODBias,
			Compression:    p.Compression,
			VirtualTexture: p.VirtualTexture,
			SkipMips:       p.SkipMips,
			HDR:            p.HDR,
		})
	}

	logger.Debug("Translated texture set.", "name", set.Name, "inputs", len(set.Inputs), "modules", len(set.Modules), "packed", len(set.Packed))
	return set, nil
}

func translateInput(dir string, in *Input) (definition.InputSlot, error) {
	format, err := texture.ParseFormat(in.Format)
	if err != nil {
		return definition.InputSlot{}, err
	}
	slot := definition.InputSlot{Name: in.Name, Format: format, Source: in.Source}
	if slot.Source != "" && !filepath.IsAbs(slot.Source) {
		slot.Source = filepath.Join(dir, slot.Source)
	}
	if in.Default != nil {
		if len(in.Default) == 0 || len(in.Default) > 4 {
			return definition.InputSlot{}, fmt.Errorf("default needs 1 to 4 components, got %d", len(in.Default))
		}
		var v texture.Vec4
		for i, c := range in.Default {
			v[i] = float32(c)
		}
		slot.Default = &v
	}
	return slot, nil
}

func translateModule(m *Module) (definition.ModuleInvocation, error) {
	if m.Version < 0 {
		return definition.ModuleInvocation{}, fmt.Errorf("version %d is negative", m.Version)
	}
	inv := definition.ModuleInvocation{
		Name:          m.Name,
		ModuleID:      m.Type,
		ModuleVersion: uint32(m.Version),
		Inputs:        m.Inputs,
	}
	if m.Parameters == nil {
		return inv, nil
	}
	params, err := translateParameters(m.Parameters.Body)
	if err != nil {
		return definition.ModuleInvocation{}, err
	}
	inv.Parameters = params
	return inv, nil
}

// translateParameters evaluates a parameters body in source order. Order is
// part of a module's content key, so it must not depend on map iteration.
func translateParameters(body hcl.Body) ([]definition.Parameter, error) {
	var attrs []*hcl.Attribute
	if syntax, ok := body.(*hclsyntax.Body); ok {
		if len(syntax.Blocks) > 0 {
			return nil, fmt.Errorf("parameters: unexpected block %q", syntax.Blocks[0].Type)
		}
		for _, a := range syntax.Attributes {
			attrs = append(attrs, a.AsHCLAttribute())
		}
	} else {
		all, diags := body.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("parameters: %w", diags)
		}
		for _, a := range all {
			attrs = append(attrs, a)
		}
	}
	slices.SortFunc(attrs, func(a, b *hcl.Attribute) int {
		return a.Range.Start.Byte - b.Range.Start.Byte
	})

	params := make([]definition.Parameter, 0, len(attrs))
	for _, a := range attrs {
		v, diags := a.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parameter %q: %w", a.Name, diags)
		}
		params = append(params, definition.Parameter{Name: a.Name, Value: v})
	}
	return params, nil
}
