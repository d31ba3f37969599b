package app

import (
	"github.com/vk/texturesets/internal/packing"
	"github.com/vk/texturesets/internal/registry"
	"github.com/vk/texturesets/modules/flip_green"
	"github.com/vk/texturesets/modules/height"
	"github.com/vk/texturesets/modules/invert"
	"github.com/vk/texturesets/modules/normal_to_roughness"
	"github.com/vk/texturesets/modules/pbr_surface"
	"github.com/vk/texturesets/modules/unpack_normal"
)

// coreModules is the list of processing modules compiled into the binary.
// The packing module is always installed since the graph assembler
// synthesises one packing node per packed texture.
var coreModules = []registry.Plugin{
	&packing.Module{},
	&pbr_surface.Module{},
	&flip_green.Module{},
	&unpack_normal.Module{},
	&normal_to_roughness.Module{},
	&invert.Module{},
	&height.Module{},
}
