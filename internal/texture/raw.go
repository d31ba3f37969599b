package texture

import (
	"encoding/binary"
	"fmt"
	"math"
)

// RawTexture is a source texture as the host asset system hands it over:
// tightly packed pixel bytes plus a digest identifying the content.
type RawTexture struct {
	Width  int
	Height int
	Format Format
	Data   []byte
	// Digest identifies the source content. When empty, callers derive one
	// from Data and the shape.
	Digest []byte
}

// Validate checks the byte buffer length against shape and format.
func (r *RawTexture) Validate() error {
	if r == nil {
		return fmt.Errorf("texture: nil raw texture")
	}
	if !r.Format.Valid() {
		return fmt.Errorf("texture: unknown format %q", r.Format)
	}
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("texture: invalid size %dx%d", r.Width, r.Height)
	}
	if want := r.Width * r.Height * r.Format.PixelSize(); len(r.Data) != want {
		return fmt.Errorf("texture: %s %dx%d needs %d bytes, got %d", r.Format, r.Width, r.Height, want, len(r.Data))
	}
	return nil
}

// Decode converts raw bytes into a linear float image. Integer formats are
// normalized to [0,1]; float formats are read as little-endian IEEE 754.
func Decode(r *RawTexture) (*Image, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	channels := r.Format.Channels()
	img := NewImage(r.Width, r.Height, channels)
	size := r.Format.BytesPerChannel()
	for i := range img.Pix {
		b := r.Data[i*size : (i+1)*size]
		switch size {
		case 1:
			img.Pix[i] = float32(b[0]) / 255
		case 2:
			img.Pix[i] = float32(binary.LittleEndian.Uint16(b)) / 65535
		case 4:
			img.Pix[i] = math.Float32frombits(binary.LittleEndian.Uint32(b))
		}
	}
	return img, nil
}

// Encode converts an image into the given format. The image's channel count
// must match the format.
func Encode(img *Image, f Format) ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("texture: unknown format %q", f)
	}
	if img.Channels != f.Channels() {
		return nil, fmt.Errorf("texture: %d channel image cannot be stored as %s", img.Channels, f)
	}
	size := f.BytesPerChannel()
	out := make([]byte, len(img.Pix)*size)
	for i, v := range img.Pix {
		b := out[i*size : (i+1)*size]
		switch size {
		case 1:
			b[0] = uint8(math.Round(float64(clamp01(v)) * 255))
		case 2:
			binary.LittleEndian.PutUint16(b, uint16(math.Round(float64(clamp01(v))*65535)))
		case 4:
			binary.LittleEndian.PutUint32(b, math.Float32bits(v))
		}
	}
	return out, nil
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
