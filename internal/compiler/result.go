package compiler

import (
	"fmt"
	"time"

	"github.com/vk/texturesets/internal/cache"
	"github.com/vk/texturesets/internal/hasher"
	"github.com/vk/texturesets/internal/texture"
)

// CompiledTextureSet is the result of a successful compile. The caller owns
// it; nothing in the compiler keeps a reference.
type CompiledTextureSet struct {
	Name string
	// Key identifies the compiled content: equal keys mean byte-identical
	// packed textures and parameters.
	Key        hasher.Key
	Textures   []PackedResult
	Channels   map[string]ChannelRef
	Parameters map[string]texture.Vec4
	Nodes      []NodeReport
	Stats      Stats
}

// PackedResult is one GPU-ready packed texture.
type PackedResult struct {
	Index int
	Name  string
	Key   hasher.Key
	// Entry describes Payload: base level first, then each mip level.
	Entry          cache.Entry
	Payload        []byte
	LODBias        int
	Compression    string
	VirtualTexture bool
	// Mul and Add restore range compressed channels: value * Mul + Add.
	Mul texture.Vec4
	Add texture.Vec4
}

// Level returns the bytes and size of mip level i.
func (p *PackedResult) Level(i int) ([]byte, int, int, error) {
	if i < 0 || i >= p.Entry.MipCount {
		return nil, 0, 0, fmt.Errorf("compiler: %s has %d mip levels, asked for %d", p.Name, p.Entry.MipCount, i)
	}
	w, h := p.Entry.Width, p.Entry.Height
	offset := 0
	for l := 0; l < i; l++ {
		offset += w * h * p.Entry.Format.PixelSize()
		w, h = max(w/2, 1), max(h/2, 1)
	}
	size := w * h * p.Entry.Format.PixelSize()
	if offset+size > len(p.Payload) {
		return nil, 0, 0, fmt.Errorf("compiler: %s payload was released", p.Name)
	}
	return p.Payload[offset : offset+size], w, h, nil
}

// ChannelRef locates a material channel in the packed textures.
type ChannelRef struct {
	Texture  int
	Swizzle  string
	Encoding texture.Encoding
}

// NodeReport is the outcome of one node.
type NodeReport struct {
	ID     string
	Key    hasher.Key
	Status NodeStatus
	// Cached is set when the node's outputs came from the cache.
	Cached bool
}

// Stats summarizes a compile.
type Stats struct {
	Nodes    int
	Executed int
	Cached   int
	// Shared counts nodes served by a concurrent compile of the same key.
	Shared   int
	Duration time.Duration
}

// Release drops the payload references so the caller can let go of the
// pixel data while keeping the layout.
func (s *CompiledTextureSet) Release() {
	for i := range s.Textures {
		s.Textures[i].Payload = nil
	}
}

// RangeCompressMulName is the material parameter restoring packed texture i.
func RangeCompressMulName(i int) string {
	return fmt.Sprintf("RangeCompress_%d_Mul", i)
}

// RangeCompressAddName is the material parameter offsetting packed texture i.
func RangeCompressAddName(i int) string {
	return fmt.Sprintf("RangeCompress_%d_Add", i)
}
