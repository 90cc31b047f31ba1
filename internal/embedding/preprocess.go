package embedding

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Preprocessor turns a decoded image into the CHW float32 tensor a CLIP image tower expects:
// resize the shorter side to Size with bicubic filtering, center-crop Size×Size, scale to [0,1],
// then normalize each channel with Mean and Std.
type Preprocessor struct {
	Size int
	Mean [3]float32
	Std  [3]float32
}

// NewPreprocessor validates mean/std (three channels, non-zero std).
func NewPreprocessor(size int, mean, std []float32) (*Preprocessor, error) {
	if size <= 0 {
		return nil, fmt.Errorf("image size must be positive, got %d", size)
	}
	if len(mean) != 3 || len(std) != 3 {
		return nil, fmt.Errorf("mean and std need 3 channels, got %d and %d", len(mean), len(std))
	}
	p := &Preprocessor{Size: size}
	for c := 0; c < 3; c++ {
		if std[c] == 0 {
			return nil, fmt.Errorf("std[%d] is zero", c)
		}
		p.Mean[c] = mean[c]
		p.Std[c] = std[c]
	}
	return p, nil
}

// Resize scales img so its shorter side equals p.Size and center-crops it to a square.
func (p *Preprocessor) Resize(img image.Image) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return image.NewRGBA(image.Rect(0, 0, p.Size, p.Size))
	}
	var sw, sh int
	if w < h {
		sw, sh = p.Size, max(p.Size, (h*p.Size+w/2)/w)
	} else {
		sw, sh = max(p.Size, (w*p.Size+h/2)/h), p.Size
	}
	scaled := image.NewRGBA(image.Rect(0, 0, sw, sh))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)

	x0, y0 := (sw-p.Size)/2, (sh-p.Size)/2
	out := image.NewRGBA(image.Rect(0, 0, p.Size, p.Size))
	draw.Draw(out, out.Bounds(), scaled, image.Pt(x0, y0), draw.Src)
	return out
}

// Tensor writes the normalized CHW pixels of img into dst, which must hold 3*Size*Size values.
func (p *Preprocessor) Tensor(img image.Image, dst []float32) error {
	plane := p.Size * p.Size
	if len(dst) != 3*plane {
		return fmt.Errorf("tensor buffer has %d values, want %d", len(dst), 3*plane)
	}
	rgba := p.Resize(img)
	for y := 0; y < p.Size; y++ {
		for x := 0; x < p.Size; x++ {
			i := rgba.PixOffset(x, y)
			pix := rgba.Pix[i : i+3]
			for c := 0; c < 3; c++ {
				v := float32(pix[c]) / 255
				dst[c*plane+y*p.Size+x] = (v - p.Mean[c]) / p.Std[c]
			}
		}
	}
	return nil
}
