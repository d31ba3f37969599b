package texture

import (
	"fmt"
)

// Vec4 is a four component constant, used for defaults and shader parameters.
type Vec4 [4]float32

// Encoding is a bit set of the transforms applied to a channel when packed.
type Encoding uint8

const (
	// EncodingSRGB stores the channel gamma encoded.
	EncodingSRGB Encoding = 1 << iota
	// EncodingRangeCompression stretches the channel's value range to [0,1]
	// and records the constants needed to restore it.
	EncodingRangeCompression
)

// Has reports whether every bit of flag is set.
func (e Encoding) Has(flag Encoding) bool {
	return e&flag == flag
}

// Image is a linear float image with interleaved channels.
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []float32
}

// NewImage allocates a zeroed image.
func NewImage(width, height, channels int) *Image {
	return &Image{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]float32, width*height*channels),
	}
}

// Constant returns an image where every pixel holds the leading channels of v.
func Constant(width, height, channels int, v Vec4) *Image {
	img := NewImage(width, height, channels)
	for i := 0; i < width*height; i++ {
		copy(img.Pix[i*channels:(i+1)*channels], v[:channels])
	}
	return img
}

// Validate checks the buffer agrees with the declared shape.
func (m *Image) Validate() error {
	if m == nil {
		return fmt.Errorf("texture: nil image")
	}
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("texture: invalid size %dx%d", m.Width, m.Height)
	}
	if m.Channels < 1 || m.Channels > 4 {
		return fmt.Errorf("texture: invalid channel count %d", m.Channels)
	}
	if want := m.Width * m.Height * m.Channels; len(m.Pix) != want {
		return fmt.Errorf("texture: buffer holds %d values, %dx%dx%d needs %d", len(m.Pix), m.Width, m.Height, m.Channels, want)
	}
	return nil
}

// At returns channel c of the pixel at (x, y).
func (m *Image) At(x, y, c int) float32 {
	return m.Pix[(y*m.Width+x)*m.Channels+c]
}

// Set writes channel c of the pixel at (x, y).
func (m *Image) Set(x, y, c int, v float32) {
	m.Pix[(y*m.Width+x)*m.Channels+c] = v
}

// Clone returns a deep copy.
func (m *Image) Clone() *Image {
	out := &Image{Width: m.Width, Height: m.Height, Channels: m.Channels, Pix: make([]float32, len(m.Pix))}
	copy(out.Pix, m.Pix)
	return out
}

// Channel extracts a single channel as a one channel image.
func (m *Image) Channel(c int) *Image {
	out := NewImage(m.Width, m.Height, 1)
	for i := 0; i < m.Width*m.Height; i++ {
		out.Pix[i] = m.Pix[i*m.Channels+c]
	}
	return out
}

// Map returns a new image with channels computed by fn for every pixel. fn
// receives the source pixel and writes into dst, which has outChannels entries.
func (m *Image) Map(outChannels int, fn func(src, dst []float32)) *Image {
	out := NewImage(m.Width, m.Height, outChannels)
	for i := 0; i < m.Width*m.Height; i++ {
		fn(m.Pix[i*m.Channels:(i+1)*m.Channels], out.Pix[i*outChannels:(i+1)*outChannels])
	}
	return out
}

// SameSize reports whether both images share width and height.
func (m *Image) SameSize(o *Image) bool {
	return m.Width == o.Width && m.Height == o.Height
}

// Resize scales the image to width x height with nearest-neighbour sampling.
// It returns m unchanged when the size already matches.
func (m *Image) Resize(width, height int) *Image {
	if m.Width == width && m.Height == height {
		return m
	}
	out := NewImage(width, height, m.Channels)
	for y := 0; y < height; y++ {
		sy := y * m.Height / height
		for x := 0; x < width; x++ {
			sx := x * m.Width / width
			src := (sy*m.Width + sx) * m.Channels
			dst := (y*width + x) * m.Channels
			copy(out.Pix[dst:dst+m.Channels], m.Pix[src:src+m.Channels])
		}
	}
	return out
}
