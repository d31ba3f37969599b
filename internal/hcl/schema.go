package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	TextureSets []*TextureSet `hcl:"texture_set,block"`
	Remain      hcl.Body      `hcl:",remain"`
}

// TextureSet is the HCL schema of a `texture_set` block.
type TextureSet struct {
	Name    string           `hcl:"name,label"`
	Inputs  []*Input         `hcl:"input,block"`
	Modules []*Module        `hcl:"module,block"`
	Packed  []*PackedTexture `hcl:"packed_texture,block"`
}

// Input is an `input` block.
type Input struct {
	Name    string    `hcl:"name,label"`
	Format  string    `hcl:"format"`
	Source  string    `hcl:"source,optional"`
	Default []float64 `hcl:"default,optional"`
}

// Module is a `module` block.
type Module struct {
	Name       string      `hcl:"name,label"`
	Type       string      `hcl:"type"`
	Version    int         `hcl:"version,optional"`
	Inputs     []string    `hcl:"inputs,optional"`
	Parameters *Parameters `hcl:"parameters,block"`
}

// Parameters keeps the raw body so attribute order survives decoding.
type Parameters struct {
	Body hcl.Body `hcl:",remain"`
}

// PackedTexture is a `packed_texture` block.
type PackedTexture struct {
	Name           string `hcl:"name,label"`
	R              string `hcl:"r,optional"`
	G              string `hcl:"g,optional"`
	B              string `hcl:"b,optional"`
	A              string `hcl:"a,optional"`
	Channels       int    `hcl:"channels,optional"`
	LODBias        int    `hcl:"lod_bias,optional"`
	Compression    string `hcl:"compression,optional"`
	VirtualTexture bool   `hcl:"virtual_texture,optional"`
	SkipMips       bool   `hcl:"skip_mips,optional"`
	HDR            bool   `hcl:"hdr,optional"`
}
