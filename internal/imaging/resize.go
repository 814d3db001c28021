package imaging

import (
	"image"
	"image/color"
	"math"
)

// lanczosRadius is the support radius for the Lanczos-3 kernel used by
// ResizeToFit. No resize/imaging library (golang.org/x/image, nfnt/resize,
// disintegration/imaging) appears anywhere in the example pack this module
// was grounded on, so thumbnail scaling is implemented directly against the
// standard library's image.Image/image/color primitives.
const lanczosRadius = 3

func lanczosKernel(x float64) float64 {
	if x == 0 {
		return 1
	}
	if x < -lanczosRadius || x > lanczosRadius {
		return 0
	}
	piX := math.Pi * x
	return lanczosRadius * math.Sin(piX) * math.Sin(piX/lanczosRadius) / (piX * piX)
}

// Resize scales img to the exact width and height given, without preserving
// aspect ratio. Used for post.width/post.height, where the caller is
// responsible for any aspect-ratio math.
func Resize(img image.Image, width, height int) *image.RGBA {
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	if srcW <= 0 || srcH <= 0 || width <= 0 || height <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	horiz := resizeAxis(img, b, width, srcH, true)
	return resizeAxis(horiz, horiz.Bounds(), width, height, false)
}

// ResizeToFit scales img so its longest edge equals maxEdge, preserving
// aspect ratio, using a separable Lanczos-3 filter. Images already within
// maxEdge are still re-sampled to maxEdge-relative dimensions (callers that
// want a no-op for small images should check bounds before calling).
func ResizeToFit(img image.Image, maxEdge int) *image.RGBA {
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	if srcW <= 0 || srcH <= 0 || maxEdge <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}

	var dstW, dstH int
	if srcW >= srcH {
		dstW = maxEdge
		dstH = int(math.Round(float64(srcH) * float64(maxEdge) / float64(srcW)))
	} else {
		dstH = maxEdge
		dstW = int(math.Round(float64(srcW) * float64(maxEdge) / float64(srcH)))
	}
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	// Horizontal pass into an intermediate buffer at (dstW, srcH), then a
	// vertical pass into the final (dstW, dstH) image. Separable filtering
	// keeps the cost O(w*h) instead of O(w*h*kernel^2).
	horiz := resizeAxis(img, b, dstW, srcH, true)
	out := resizeAxis(horiz, horiz.Bounds(), dstW, dstH, false)
	return out
}

func resizeAxis(src image.Image, b image.Rectangle, dstW, dstH int, horizontal bool) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))

	srcW, srcH := b.Dx(), b.Dy()
	var scale float64
	var srcLen, dstLen int
	if horizontal {
		scale = float64(srcW) / float64(dstW)
		srcLen, dstLen = srcW, dstW
	} else {
		scale = float64(srcH) / float64(dstH)
		srcLen, dstLen = srcH, dstH
	}
	// When upscaling, clamp the filter width to one source sample so the
	// kernel does not oversmooth; when downscaling, widen it proportionally
	// to avoid aliasing.
	filterScale := math.Max(scale, 1.0)

	for dstI := 0; dstI < dstLen; dstI++ {
		center := (float64(dstI)+0.5)*scale - 0.5
		lo := int(math.Floor(center - lanczosRadius*filterScale))
		hi := int(math.Ceil(center + lanczosRadius*filterScale))
		if lo < 0 {
			lo = 0
		}
		if hi > srcLen-1 {
			hi = srcLen - 1
		}

		weights := make([]float64, hi-lo+1)
		var wsum float64
		for s := lo; s <= hi; s++ {
			w := lanczosKernel((float64(s) - center) / filterScale)
			weights[s-lo] = w
			wsum += w
		}
		if wsum == 0 {
			wsum = 1
		}

		if horizontal {
			for y := 0; y < srcH; y++ {
				var r, g, bl, a float64
				for s := lo; s <= hi; s++ {
					c := src.At(b.Min.X+s, b.Min.Y+y)
					cr, cg, cb, ca := c.RGBA()
					w := weights[s-lo]
					r += float64(cr) * w
					g += float64(cg) * w
					bl += float64(cb) * w
					a += float64(ca) * w
				}
				dst.Set(dstI, y, clampRGBA(r/wsum, g/wsum, bl/wsum, a/wsum))
			}
		} else {
			for x := 0; x < srcW; x++ {
				var r, g, bl, a float64
				for s := lo; s <= hi; s++ {
					c := src.At(b.Min.X+x, b.Min.Y+s)
					cr, cg, cb, ca := c.RGBA()
					w := weights[s-lo]
					r += float64(cr) * w
					g += float64(cg) * w
					bl += float64(cb) * w
					a += float64(ca) * w
				}
				dst.Set(x, dstI, clampRGBA(r/wsum, g/wsum, bl/wsum, a/wsum))
			}
		}
	}

	return dst
}

func clampRGBA(r, g, b, a float64) color.RGBA64 {
	return color.RGBA64{
		R: clamp16(r),
		G: clamp16(g),
		B: clamp16(b),
		A: clamp16(a),
	}
}

func clamp16(v float64) uint16 {
	if v < 0 {
		return 0
	}
	if v > 0xffff {
		return 0xffff
	}
	return uint16(v)
}
