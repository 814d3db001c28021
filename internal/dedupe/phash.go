// Package dedupe implements perceptual-hash near-duplicate detection.
package dedupe

import (
	"image"
	"math/bits"
)

// Hash is a fixed-length perceptual fingerprint. Visually similar images
// have a small Hamming distance between their hashes.
type Hash []uint64

// HammingDistance returns the number of differing bits between a and b.
// Hashes of different bit-lengths are treated as maximally distant.
func (a Hash) HammingDistance(b Hash) int {
	if len(a) != len(b) {
		return len(a)*64 + len(b)*64
	}
	dist := 0
	for i := range a {
		dist += bits.OnesCount64(a[i] ^ b[i])
	}
	return dist
}

// gridSize returns the square grid dimension whose bit count covers
// hashBits, rounding up, per the gradient-hash construction below: each
// grid row contributes (grid-1) gradient-sign bits.
func gridSize(hashBits int) int {
	// grid rows of (grid-1) bits each, grid rows total: grid*(grid-1) >= hashBits
	grid := 2
	for grid*(grid-1) < hashBits {
		grid++
	}
	return grid
}

// ComputeHash computes a gradient-family perceptual hash ("dHash") of img
// with the given bit length. The image is converted to grayscale and
// downsampled to a (grid x grid) thumbnail, then for each row the hash
// records whether each pixel is brighter than its left neighbor. No
// perceptual-hashing library exists anywhere in the Go example pack this
// module was grounded on, so the algorithm is implemented directly against
// image.Image.
func ComputeHash(img image.Image, hashBits int) Hash {
	if hashBits <= 0 {
		hashBits = 64
	}
	grid := gridSize(hashBits)

	gray := grayscaleGrid(img, grid, grid)

	nWords := (hashBits + 63) / 64
	hash := make(Hash, nWords)

	bitIdx := 0
	for y := 0; y < grid && bitIdx < hashBits; y++ {
		for x := 1; x < grid && bitIdx < hashBits; x++ {
			if gray[y*grid+x] > gray[y*grid+x-1] {
				word := bitIdx / 64
				off := uint(bitIdx % 64)
				hash[word] |= 1 << off
			}
			bitIdx++
		}
	}
	return hash
}

// grayscaleGrid downsamples img to a w x h grayscale grid by averaging the
// luma of each source region mapped to a destination cell.
func grayscaleGrid(img image.Image, w, h int) []float64 {
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	out := make([]float64, w*h)
	if srcW == 0 || srcH == 0 {
		return out
	}

	for gy := 0; gy < h; gy++ {
		y0 := b.Min.Y + gy*srcH/h
		y1 := b.Min.Y + (gy+1)*srcH/h
		if y1 <= y0 {
			y1 = y0 + 1
		}
		for gx := 0; gx < w; gx++ {
			x0 := b.Min.X + gx*srcW/w
			x1 := b.Min.X + (gx+1)*srcW/w
			if x1 <= x0 {
				x1 = x0 + 1
			}

			var sum float64
			var count int
			for y := y0; y < y1 && y < b.Max.Y; y++ {
				for x := x0; x < x1 && x < b.Max.X; x++ {
					r, g, bch, _ := img.At(x, y).RGBA()
					// ITU-R BT.601 luma on 16-bit channel values.
					luma := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bch)
					sum += luma
					count++
				}
			}
			if count == 0 {
				count = 1
			}
			out[gy*w+gx] = sum / float64(count)
		}
	}
	return out
}
