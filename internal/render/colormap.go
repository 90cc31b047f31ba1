package render

import (
	"image/color"
	"math"
)

// viridis holds evenly spaced samples of matplotlib's Viridis scale, dark to bright.
var viridis = []color.RGBA{
	{0x44, 0x01, 0x54, 0xff},
	{0x48, 0x24, 0x75, 0xff},
	{0x41, 0x44, 0x87, 0xff},
	{0x35, 0x5f, 0x8d, 0xff},
	{0x2a, 0x78, 0x8e, 0xff},
	{0x21, 0x91, 0x8c, 0xff},
	{0x22, 0xa8, 0x84, 0xff},
	{0x44, 0xbf, 0x70, 0xff},
	{0x7a, 0xd1, 0x51, 0xff},
	{0xbd, 0xdf, 0x26, 0xff},
	{0xfd, 0xe7, 0x25, 0xff},
}

// Viridis maps t in [0, 1] onto the Viridis scale by linear interpolation. NaN maps to the darkest color.
func Viridis(t float64) color.RGBA {
	if math.IsNaN(t) || t <= 0 {
		return viridis[0]
	}
	if t >= 1 {
		return viridis[len(viridis)-1]
	}
	pos := t * float64(len(viridis)-1)
	i := int(pos)
	frac := pos - float64(i)
	a, b := viridis[i], viridis[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*frac))
	}
	return color.RGBA{lerp(a.R, b.R), lerp(a.G, b.G), lerp(a.B, b.B), 0xff}
}

// scale maps matrix values onto [0, 1] using the observed range, like an auto-ranged color axis.
type scale struct {
	lo, hi float64
}

func newScale(values [][]float64) scale {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range values {
		for _, v := range row {
			if math.IsNaN(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		return scale{0, 1}
	}
	return scale{lo, hi}
}

func (s scale) norm(v float64) float64 {
	if s.hi == s.lo {
		return 0.5
	}
	return (v - s.lo) / (s.hi - s.lo)
}

// luminance returns perceived brightness in [0, 1], used to pick readable annotation colors.
func luminance(c color.RGBA) float64 {
	return (0.2126*float64(c.R) + 0.7152*float64(c.G) + 0.0722*float64(c.B)) / 255
}
