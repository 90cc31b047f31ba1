package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/hyperjump/clipsim/internal/models"
)

const (
	glyphW       = 7
	glyphH       = 13
	labelMaxLen  = 40
	titleHeight  = 36
	colorbarGap  = 20
	colorbarW    = 18
	rightMargin  = 90
	minPNGWidth  = 800
	minPNGHeight = 600
)

// HeatmapOptions controls PNG heatmap layout.
type HeatmapOptions struct {
	Title     string
	CellSize  int  // pixels per cell side; defaults to 50
	Annotate  bool // print values inside cells when they fit
	Precision int
}

// WriteHeatmapPNG renders m as a Viridis heatmap with row labels on the left and column labels
// rotated 90 degrees below the grid, plus a color bar for the observed value range.
func WriteHeatmapPNG(w io.Writer, m *models.Matrix, opts HeatmapOptions) error {
	img, err := Heatmap(m, opts)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// Heatmap draws the heatmap image for m.
func Heatmap(m *models.Matrix, opts HeatmapOptions) (*image.RGBA, error) {
	n := m.Size()
	if n == 0 {
		return nil, fmt.Errorf("empty matrix")
	}
	cell := opts.CellSize
	if cell <= 0 {
		cell = 50
	}
	if opts.Precision <= 0 {
		opts.Precision = 2
	}

	labels := make([]string, n)
	longest := 0
	for i, l := range m.Labels {
		labels[i] = ShortLabel(l, labelMaxLen)
		longest = max(longest, len([]rune(labels[i])))
	}
	labelSpace := longest*glyphW + 12

	gridW, gridH := n*cell, n*cell
	width := max(minPNGWidth, labelSpace+gridW+colorbarGap+colorbarW+rightMargin)
	height := max(minPNGHeight, titleHeight+gridH+labelSpace)
	x0, y0 := labelSpace, titleHeight

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	drawText(img, opts.Title, (width-len([]rune(opts.Title))*glyphW)/2, 22, color.Black)

	sc := newScale(m.Values)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			c := Viridis(sc.norm(m.Values[i][j]))
			r := image.Rect(x0+j*cell, y0+i*cell, x0+(j+1)*cell, y0+(i+1)*cell)
			draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
			if opts.Annotate {
				text := fmt.Sprintf("%.*f", opts.Precision, m.Values[i][j])
				tw := len(text) * glyphW
				if tw+4 <= cell && glyphH+4 <= cell {
					fg := color.RGBA{0xff, 0xff, 0xff, 0xff}
					if luminance(c) > 0.5 {
						fg = color.RGBA{0, 0, 0, 0xff}
					}
					drawText(img, text, r.Min.X+(cell-tw)/2, r.Min.Y+(cell+glyphH)/2-3, fg)
				}
			}
		}
	}

	for i, l := range labels {
		tw := len([]rune(l)) * glyphW
		drawText(img, l, x0-tw-6, y0+i*cell+(cell+glyphH)/2-3, color.Black)
	}
	for j, l := range labels {
		drawRotatedText(img, l, x0+j*cell+(cell-glyphH)/2, y0+gridH+6)
	}

	drawColorbar(img, sc, x0+gridW+colorbarGap, y0, gridH)
	return img, nil
}

func drawColorbar(img *image.RGBA, sc scale, x, y, h int) {
	if h <= 1 {
		return
	}
	for dy := 0; dy < h; dy++ {
		t := 1 - float64(dy)/float64(h-1)
		c := Viridis(t)
		for dx := 0; dx < colorbarW; dx++ {
			img.SetRGBA(x+dx, y+dy, c)
		}
	}
	drawText(img, fmt.Sprintf("%.2f", sc.hi), x+colorbarW+4, y+glyphH-2, color.Black)
	drawText(img, fmt.Sprintf("%.2f", sc.lo), x+colorbarW+4, y+h, color.Black)
}

func drawText(dst draw.Image, s string, x, baseline int, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(s)
}

// drawRotatedText draws s rotated 90 degrees counter-clockwise so it reads bottom to top,
// with the end of the string at (x, top) and the text extending downward.
func drawRotatedText(dst *image.RGBA, s string, x, top int) {
	tw := len([]rune(s)) * glyphW
	if tw == 0 {
		return
	}
	tmp := image.NewRGBA(image.Rect(0, 0, tw, glyphH))
	draw.Draw(tmp, tmp.Bounds(), image.White, image.Point{}, draw.Src)
	drawText(tmp, s, 0, glyphH-2, color.Black)

	bounds := dst.Bounds()
	for ty := 0; ty < glyphH; ty++ {
		for tx := 0; tx < tw; tx++ {
			p := image.Pt(x+ty, top+(tw-1-tx))
			if p.In(bounds) {
				dst.SetRGBA(p.X, p.Y, tmp.RGBAAt(tx, ty))
			}
		}
	}
}
