// Package variant produces prompt strings from a template, deterministically
// under a seed.
package variant

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// Template is a tagged union: exactly one of Ad or General is set.
// It is immutable once constructed.
type Template struct {
	Ad      *AdTemplate
	General *GeneralPrompt
}

// AdTemplate describes a structured advertisement prompt space.
type AdTemplate struct {
	Brand   string
	Product string
	Styles  []string
}

// GeneralPrompt is a fixed free-form prompt.
type GeneralPrompt struct {
	Prompt string
}

// fallbackStyle is used when an AdTemplate has no styles configured.
const fallbackStyle = "clean product photo"

// NewAdTemplate constructs a Template wrapping an AdTemplate.
func NewAdTemplate(brand, product string, styles []string) Template {
	return Template{Ad: &AdTemplate{Brand: brand, Product: product, Styles: styles}}
}

// NewGeneralPrompt constructs a Template wrapping a fixed prompt.
func NewGeneralPrompt(prompt string) Template {
	return Template{General: &GeneralPrompt{Prompt: prompt}}
}

// Generator produces the next prompt string from a Template under a seeded
// PRNG. Next locks the Generator's own mutex, so it is safe to call from
// concurrent goroutines.
type Generator struct {
	mu   sync.Mutex
	tmpl Template
	rng  *rand.Rand
}

// New creates a Generator for tmpl, deterministic for a given seed: the k-th
// call to Next for a fixed (tmpl, seed) always returns the same string.
func New(tmpl Template, seed uint64) *Generator {
	return &Generator{
		tmpl: tmpl,
		rng:  rand.New(rand.NewPCG(seed, seed)),
	}
}

// Next returns the next prompt string.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.tmpl.General != nil {
		return g.tmpl.General.Prompt
	}

	ad := g.tmpl.Ad
	if len(ad.Styles) == 0 {
		return fallbackStyle
	}

	idx := g.rng.IntN(len(ad.Styles))
	style := ad.Styles[idx]
	return fmt.Sprintf("An advertisement image for %s %s in style: %s", ad.Brand, ad.Product, style)
}
