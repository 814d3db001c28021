package imaging

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// WatermarkOptions configures text overlay rendering.
type WatermarkOptions struct {
	Text   string
	PixelH int // requested glyph height in pixels; not used: text is always drawn with the fixed-size basicfont.Face7x13
	Margin int // pixels from the bottom-right corner
}

// Watermark draws Text into the bottom-right corner of img and returns a new
// RGBA image. A zero-value or empty Text is a no-op that still returns a
// copy of img as *image.RGBA.
func Watermark(img image.Image, opts WatermarkOptions) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)

	if opts.Text == "" {
		return out
	}

	face := basicfont.Face7x13
	margin := opts.Margin
	if margin <= 0 {
		margin = 8
	}

	textWidth := font.MeasureString(face, opts.Text).Round()
	x := b.Max.X - margin - textWidth
	y := b.Max.Y - margin
	if x < b.Min.X {
		x = b.Min.X
	}

	// Drop shadow for legibility over arbitrary backgrounds, then the
	// foreground glyphs.
	drawString(out, face, x+1, y+1, opts.Text, color.Black)
	drawString(out, face, x, y, opts.Text, color.White)

	return out
}

func drawString(dst draw.Image, face font.Face, x, y int, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
