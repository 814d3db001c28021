package persistence

import (
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hurricanerix/imggen/internal/imaging"
)

// defaultJPEGQuality is used when post.jpeg_quality is unset or non-positive.
const defaultJPEGQuality = 90

// PostConfig controls optional post-processing applied before persistence:
// resizing, re-encoding, thumbnail generation, and watermarking. Grounded on
// the configuration surface's extended `post` block.
type PostConfig struct {
	Thumbnail       bool
	ThumbMax        int
	Fmt             string // "png" (default), "jpeg", or "webp" (degrades to png)
	JPEGQuality     int
	Width           int
	Height          int
	WatermarkText   string
	WatermarkFont   string
	WatermarkPx     int
	WatermarkMargin int
}

// needsProcessing reports whether the main artifact must be decoded and
// re-encoded, rather than written as the provider's raw bytes.
func (p PostConfig) needsProcessing() bool {
	return p.Width > 0 || p.Height > 0 || p.WatermarkText != "" || (p.Fmt != "" && p.Fmt != "png")
}

// WriteRequest bundles everything the persistence layer needs to write one
// artifact atomically.
type WriteRequest struct {
	ID              uint64
	RunID           string
	Provider        string
	Model           string
	Prompt          string
	OriginalPrompt  string
	RewrittenPrompt string
	Width           uint32
	Height          uint32
	CostUSD         float64
	Phash           string
	PNGBytes        []byte
	Post            PostConfig
}

// Store owns out_dir and the manifest writer; Write performs the full
// temp-then-rename sequence the spec requires: {stem}.png, optional
// {stem}_thumb.png, {stem}.json, then one manifest.jsonl append as the
// commit point.
type Store struct {
	outDir   string
	manifest *Manifest
}

// NewStore opens (or creates) out_dir and its manifest.
func NewStore(outDir string) (*Store, error) {
	m, err := OpenManifest(outDir)
	if err != nil {
		return nil, err
	}
	return &Store{outDir: outDir, manifest: m}, nil
}

// Manifest exposes the underlying manifest for resume/cost-scan callers.
func (s *Store) Manifest() *Manifest {
	return s.manifest
}

// Stem returns the per-artifact filename stem: "{id:08d}-{provider}-{model}".
func Stem(id uint64, provider, model string) string {
	return fmt.Sprintf("%08d-%s-%s", id, provider, model)
}

// Write persists one artifact: image, optional thumbnail, sidecar JSON, and
// a manifest line, in that order, using atomic temp+rename for each file.
// The manifest append is the commit point; a reader that only trusts
// manifest.jsonl will never observe a partially-written artifact. Any
// non-fatal post-processing caveat (e.g. an unsupported post.fmt) is
// returned as a warning string rather than silently dropped.
func (s *Store) Write(req WriteRequest) (entry ManifestEntry, warnings []string, err error) {
	stem := Stem(req.ID, req.Provider, req.Model)

	imgBytes, ext, warnings, err := processArtifact(req.PNGBytes, req.Post)
	if err != nil {
		return ManifestEntry{}, warnings, fmt.Errorf("post-process image: %w", err)
	}
	imgName := stem + ext
	imgPath := filepath.Join(s.outDir, imgName)

	if err := atomicWriteFile(imgPath, imgBytes, 0o644); err != nil {
		return ManifestEntry{}, warnings, fmt.Errorf("write image: %w", err)
	}

	if req.Post.Thumbnail {
		if err := s.writeThumbnail(stem, req.PNGBytes, req.Post); err != nil {
			return ManifestEntry{}, warnings, fmt.Errorf("write thumbnail: %w", err)
		}
	}

	createdAt := time.Now().UTC().Format(time.RFC3339)

	entry = ManifestEntry{
		ID:        req.ID,
		RunID:     req.RunID,
		Provider:  req.Provider,
		Model:     req.Model,
		Prompt:    req.Prompt,
		Width:     req.Width,
		Height:    req.Height,
		CreatedAt: createdAt,
		CostUSD:   req.CostUSD,
		Phash:     req.Phash,
		Path:      imgName,
	}
	sidecar := Sidecar{
		ID:              entry.ID,
		RunID:           entry.RunID,
		Provider:        entry.Provider,
		Model:           entry.Model,
		Prompt:          entry.Prompt,
		Width:           entry.Width,
		Height:          entry.Height,
		CreatedAt:       entry.CreatedAt,
		CostUSD:         entry.CostUSD,
		Phash:           entry.Phash,
		Path:            entry.Path,
		OriginalPrompt:  req.OriginalPrompt,
		RewrittenPrompt: req.RewrittenPrompt,
	}

	sidecarBytes, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return ManifestEntry{}, warnings, fmt.Errorf("encode sidecar: %w", err)
	}
	sidecarPath := filepath.Join(s.outDir, stem+".json")
	if err := atomicWriteFile(sidecarPath, sidecarBytes, 0o644); err != nil {
		return ManifestEntry{}, warnings, fmt.Errorf("write sidecar: %w", err)
	}

	if err := s.manifest.Append(entry); err != nil {
		return ManifestEntry{}, warnings, fmt.Errorf("append manifest: %w", err)
	}

	return entry, warnings, nil
}

// processArtifact applies post.width/post.height resizing, watermarking,
// and format re-encoding to pngBytes, returning the bytes to persist, the
// file extension they should be written under, and any non-fatal warnings.
// When post asks for nothing beyond defaults, pngBytes is returned
// unchanged to avoid a needless decode/encode round trip.
func processArtifact(pngBytes []byte, post PostConfig) (out []byte, ext string, warnings []string, err error) {
	if !post.needsProcessing() {
		return pngBytes, ".png", nil, nil
	}

	img, _, err := imaging.Decode(pngBytes)
	if err != nil {
		return nil, "", nil, fmt.Errorf("decode for post-processing: %w", err)
	}

	if post.Width > 0 || post.Height > 0 {
		b := img.Bounds()
		w, h := post.Width, post.Height
		if w <= 0 {
			w = int(math.Round(float64(b.Dx()) * float64(h) / float64(b.Dy())))
		}
		if h <= 0 {
			h = int(math.Round(float64(b.Dy()) * float64(w) / float64(b.Dx())))
		}
		img = imaging.Resize(img, w, h)
	}

	rgba := toRGBAImage(img)
	if post.WatermarkText != "" {
		if post.WatermarkFont != "" {
			warnings = append(warnings, fmt.Sprintf("post.watermark_font %q ignored: no embedded font parser in this build, using the built-in bitmap font", post.WatermarkFont))
		}
		rgba = imaging.Watermark(rgba, imaging.WatermarkOptions{
			Text:   post.WatermarkText,
			PixelH: post.WatermarkPx,
			Margin: post.WatermarkMargin,
		})
	}

	switch strings.ToLower(post.Fmt) {
	case "jpeg", "jpg":
		quality := post.JPEGQuality
		if quality <= 0 {
			quality = defaultJPEGQuality
		}
		data, err := imaging.EncodeJPEG(rgba.Bounds().Dx(), rgba.Bounds().Dy(), rgba.Pix, imaging.FormatRGBA, quality)
		if err != nil {
			return nil, "", warnings, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, ".jpg", warnings, nil
	case "webp":
		warnings = append(warnings, "post.fmt \"webp\" has no pure-Go encoder available here; degrading to PNG")
		fallthrough
	default:
		data, err := imaging.EncodePNG(rgba.Bounds().Dx(), rgba.Bounds().Dy(), rgba.Pix, imaging.FormatRGBA)
		if err != nil {
			return nil, "", warnings, fmt.Errorf("encode png: %w", err)
		}
		return data, ".png", warnings, nil
	}
}

// toRGBAImage returns img as *image.RGBA, decoding into a fresh buffer only
// if it isn't one already.
func toRGBAImage(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	return out
}

func (s *Store) writeThumbnail(stem string, pngBytes []byte, post PostConfig) error {
	img, _, err := imaging.Decode(pngBytes)
	if err != nil {
		return fmt.Errorf("decode for thumbnail: %w", err)
	}
	maxEdge := post.ThumbMax
	if maxEdge <= 0 {
		maxEdge = 256
	}
	thumb := imaging.ResizeToFit(img, maxEdge)

	var out = thumb.Pix
	rgba := thumb
	if post.WatermarkText != "" {
		rgba = imaging.Watermark(thumb, imaging.WatermarkOptions{
			Text:   post.WatermarkText,
			PixelH: post.WatermarkPx,
			Margin: post.WatermarkMargin,
		})
		out = rgba.Pix
	}

	data, err := imaging.EncodePNG(rgba.Bounds().Dx(), rgba.Bounds().Dy(), out, imaging.FormatRGBA)
	if err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	thumbPath := filepath.Join(s.outDir, stem+"_thumb.png")
	return atomicWriteFile(thumbPath, data, 0o644)
}

// atomicWriteFile writes data to a ".tmp" sibling of path and renames it
// into place, the atomicity primitive used for every on-disk artifact.
// Ported from the teacher's ImageStore.Save temp-then-rename sequence.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, perm); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
