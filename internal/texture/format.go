package texture

import (
	"fmt"
	"strings"
)

// Format names the byte layout of a raw texture.
type Format string

const (
	FormatR8      Format = "r8"
	FormatRG8     Format = "rg8"
	FormatRGB8    Format = "rgb8"
	FormatRGBA8   Format = "rgba8"
	FormatR16     Format = "r16"
	FormatRGBA16  Format = "rgba16"
	FormatR32F    Format = "r32f"
	FormatRG32F   Format = "rg32f"
	FormatRGB32F  Format = "rgb32f"
	FormatRGBA32F Format = "rgba32f"
)

var formats = map[Format]struct {
	channels int
	size     int
}{
	FormatR8:      {1, 1},
	FormatRG8:     {2, 1},
	FormatRGB8:    {3, 1},
	FormatRGBA8:   {4, 1},
	FormatR16:     {1, 2},
	FormatRGBA16:  {4, 2},
	FormatR32F:    {1, 4},
	FormatRG32F:   {2, 4},
	FormatRGB32F:  {3, 4},
	FormatRGBA32F: {4, 4},
}

// ParseFormat accepts a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := formats[f]; !ok {
		return "", fmt.Errorf("texture: unknown format %q", s)
	}
	return f, nil
}

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	_, ok := formats[f]
	return ok
}

// Channels returns the number of channels stored per pixel.
func (f Format) Channels() int {
	return formats[f].channels
}

// BytesPerChannel returns the storage size of a single channel value.
func (f Format) BytesPerChannel() int {
	return formats[f].size
}

// IsFloat reports whether channel values are stored as IEEE floats.
func (f Format) IsFloat() bool {
	return formats[f].size == 4
}

// PixelSize returns the number of bytes one pixel occupies.
func (f Format) PixelSize() int {
	info := formats[f]
	return info.channels * info.size
}

// Unorm8 returns the 8-bit unsigned normalized format with the given channel count.
func Unorm8(channels int) Format {
	switch channels {
	case 1:
		return FormatR8
	case 2:
		return FormatRG8
	case 3:
		return FormatRGB8
	default:
		return FormatRGBA8
	}
}

// Float32 returns the 32-bit float format with the given channel count.
func Float32(channels int) Format {
	switch channels {
	case 1:
		return FormatR32F
	case 2:
		return FormatRG32F
	case 3:
		return FormatRGB32F
	default:
		return FormatRGBA32F
	}
}
