package texture

import "math"

// MipCount returns the length of a full mip chain down to 1x1.
func MipCount(width, height int) int {
	n := 1
	for width > 1 || height > 1 {
		width = max(width/2, 1)
		height = max(height/2, 1)
		n++
	}
	return n
}

// MipChain returns base followed by successively halved levels. Each texel of
// a lower level averages the 2x2 block above it; odd edges clamp.
func MipChain(base *Image) []*Image {
	chain := []*Image{base}
	cur := base
	for cur.Width > 1 || cur.Height > 1 {
		next := NewImage(max(cur.Width/2, 1), max(cur.Height/2, 1), cur.Channels)
		for y := 0; y < next.Height; y++ {
			y0, y1 := min(2*y, cur.Height-1), min(2*y+1, cur.Height-1)
			for x := 0; x < next.Width; x++ {
				x0, x1 := min(2*x, cur.Width-1), min(2*x+1, cur.Width-1)
				for c := 0; c < cur.Channels; c++ {
					sum := cur.At(x0, y0, c) + cur.At(x1, y0, c) + cur.At(x0, y1, c) + cur.At(x1, y1, c)
					next.Set(x, y, c, sum/4)
				}
			}
		}
		chain = append(chain, next)
		cur = next
	}
	return chain
}

// RangeCompress stretches channel c across every level of chain to [0,1] and
// returns the multiply/add pair that restores the original values. A constant
// channel yields mul 0 and add equal to the constant, leaving pixels untouched.
func RangeCompress(chain []*Image, c int) (mul, add float32) {
	lo := float32(math.MaxFloat32)
	hi := float32(-math.MaxFloat32)
	for _, level := range chain {
		for i := c; i < len(level.Pix); i += level.Channels {
			lo = min(lo, level.Pix[i])
			hi = max(hi, level.Pix[i])
		}
	}
	if lo == hi {
		return 0, lo
	}
	compressMul := 1 / (hi - lo)
	compressAdd := -lo * compressMul
	for _, level := range chain {
		for i := c; i < len(level.Pix); i += level.Channels {
			level.Pix[i] = level.Pix[i]*compressMul + compressAdd
		}
	}
	return hi - lo, lo
}

// EncodeSRGB applies the 1/2.2 gamma curve to channel c of every level.
func EncodeSRGB(chain []*Image, c int) {
	for _, level := range chain {
		for i := c; i < len(level.Pix); i += level.Channels {
			level.Pix[i] = float32(math.Pow(float64(max(level.Pix[i], 0)), 1/2.2))
		}
	}
}
