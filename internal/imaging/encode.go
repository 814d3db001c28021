// Package imaging provides the raw-pixel encoding, decoding, resizing, and
// watermarking primitives shared by the mock provider, the perceptual
// deduper, and the persistence layer's thumbnailing stage.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
)

// PixelFormat specifies the layout of raw pixel data.
type PixelFormat int

const (
	// FormatRGB is 3 bytes per pixel (R, G, B).
	FormatRGB PixelFormat = iota
	// FormatRGBA is 4 bytes per pixel (R, G, B, A).
	FormatRGBA
)

// MaxImageDimension is the maximum allowed width or height (4K resolution).
const MaxImageDimension = 4096

var (
	// ErrInvalidDimensions indicates width or height is not positive.
	ErrInvalidDimensions = errors.New("invalid dimensions: width and height must be positive")
	// ErrInvalidPixelDataLength indicates pixel data length does not match dimensions.
	ErrInvalidPixelDataLength = errors.New("invalid pixel data length")
	// ErrUnknownFormat indicates an unsupported pixel format.
	ErrUnknownFormat = errors.New("unknown pixel format")
)

// EncodePNG converts raw pixel data to PNG format.
func EncodePNG(width, height int, pixels []byte, format PixelFormat) ([]byte, error) {
	img, err := toRGBA(width, height, pixels, format)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeJPEG converts raw pixel data to JPEG format at the given quality
// (1-100).
func EncodeJPEG(width, height int, pixels []byte, format PixelFormat, quality int) ([]byte, error) {
	img, err := toRGBA(width, height, pixels, format)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toRGBA(width, height int, pixels []byte, format PixelFormat) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	if width > MaxImageDimension || height > MaxImageDimension {
		return nil, fmt.Errorf("dimensions exceed maximum allowed (%dx%d)", MaxImageDimension, MaxImageDimension)
	}

	var bytesPerPixel int
	switch format {
	case FormatRGB:
		bytesPerPixel = 3
	case FormatRGBA:
		bytesPerPixel = 4
	default:
		return nil, ErrUnknownFormat
	}

	maxPixels := math.MaxInt / bytesPerPixel
	if width > maxPixels/height {
		return nil, errors.New("dimensions too large: would overflow")
	}

	expectedLength := width * height * bytesPerPixel
	if len(pixels) != expectedLength {
		return nil, ErrInvalidPixelDataLength
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	switch format {
	case FormatRGBA:
		copy(img.Pix, pixels)
	case FormatRGB:
		dst := img.Pix
		for i := 0; i < len(pixels)/3; i++ {
			dst[i*4] = pixels[i*3]
			dst[i*4+1] = pixels[i*3+1]
			dst[i*4+2] = pixels[i*3+2]
			dst[i*4+3] = 255
		}
	}
	return img, nil
}

// Decode decodes an encoded image (PNG or JPEG) from memory.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}
