package provider

import (
	"context"
	"hash/fnv"
	"math/rand/v2"

	"github.com/hurricanerix/imggen/internal/imaging"
)

// Mock synthesizes a deterministic noise image for the given width/height
// and always succeeds. The image's pixel content is seeded from the prompt
// text, so the same prompt reproducibly yields the same bytes.
type Mock struct {
	Width          int
	Height         int
	PriceUSDPerImg float64
}

// NewMock constructs a Mock provider for the given dimensions, quoting
// priceUSDPerImage as its configured cost per generated image (0 for a free
// mock run).
func NewMock(width, height int, priceUSDPerImage float64) *Mock {
	if width <= 0 {
		width = 512
	}
	if height <= 0 {
		height = 512
	}
	return &Mock{Width: width, Height: height, PriceUSDPerImg: priceUSDPerImage}
}

func (m *Mock) Name() string              { return "mock" }
func (m *Mock) Model() string             { return "mock-noise-v1" }
func (m *Mock) PriceUSDPerImage() float64 { return m.PriceUSDPerImg }

// Generate synthesizes a deterministic noise PNG. It never returns an error.
func (m *Mock) Generate(ctx context.Context, prompt string) (Artifact, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(prompt))
	seed := h.Sum64()

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	pixels := make([]byte, m.Width*m.Height*4)
	for i := 0; i < len(pixels); i += 4 {
		pixels[i] = byte(rng.IntN(256))
		pixels[i+1] = byte(rng.IntN(256))
		pixels[i+2] = byte(rng.IntN(256))
		pixels[i+3] = 255
	}

	png, err := imaging.EncodePNG(m.Width, m.Height, pixels, imaging.FormatRGBA)
	if err != nil {
		return Artifact{}, Fatal("mock encode failed: " + err.Error())
	}

	return Artifact{
		Bytes:      png,
		Width:      uint32(m.Width),
		Height:     uint32(m.Height),
		PromptUsed: prompt,
		Model:      m.Model(),
	}, nil
}
