package app

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"math"
	"os"

	"github.com/vk/texturesets/internal/compiler"
	"github.com/vk/texturesets/internal/ctxlog"
	"github.com/vk/texturesets/internal/definition"
	"github.com/vk/texturesets/internal/texture"
)

// defaultMaxPixels bounds the size of a decoded source image.
const defaultMaxPixels = 16384 * 16384

// FileResolver reads PNG and JPEG sources from disk and converts them to the
// slot's raw format.
type FileResolver struct {
	MaxPixels int
}

// NewFileResolver returns a resolver with the default size limit.
func NewFileResolver() *FileResolver {
	return &FileResolver{MaxPixels: defaultMaxPixels}
}

// Resolve implements compiler.SourceResolver.
func (r *FileResolver) Resolve(ctx context.Context, slot *definition.InputSlot) (*texture.RawTexture, error) {
	logger := ctxlog.FromContext(ctx)
	data, err := os.ReadFile(slot.Source)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", compiler.ErrNoSource, slot.Source)
	}
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	cfg, kind, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", slot.Source, err)
	}
	if r.MaxPixels > 0 && cfg.Width*cfg.Height > r.MaxPixels {
		return nil, fmt.Errorf("%s is %dx%d, larger than the %d pixel limit", slot.Source, cfg.Width, cfg.Height, r.MaxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", slot.Source, err)
	}

	raw, err := toRaw(img, slot.Format)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", slot.Source, err)
	}
	digest := sha256.Sum256(data)
	raw.Digest = digest[:]
	logger.Debug("Source decoded.", "slot", slot.Name, "path", slot.Source, "codec", kind, "width", raw.Width, "height", raw.Height)
	return raw, nil
}

// toRaw converts img to tightly packed pixels in format f. Channels are read
// as non-premultiplied RGBA; grayscale images fill every color channel.
func toRaw(img image.Image, f texture.Format) (*texture.RawTexture, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("unknown format %q", f)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	channels, size := f.Channels(), f.BytesPerChannel()
	data := make([]byte, 0, w*h*f.PixelSize())

	var px [8]byte
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			rgba := [4]uint16{c.R, c.G, c.B, c.A}
			for ch := 0; ch < channels; ch++ {
				v := rgba[ch]
				switch size {
				case 1:
					px[0] = uint8(v >> 8)
				case 2:
					binary.LittleEndian.PutUint16(px[:2], v)
				case 4:
					binary.LittleEndian.PutUint32(px[:4], math.Float32bits(float32(v)/65535))
				}
				data = append(data, px[:size]...)
			}
		}
	}
	return &texture.RawTexture{Width: w, Height: h, Format: f, Data: data}, nil
}
