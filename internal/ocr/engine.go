package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/eatclean/mediagw/internal/batch"
)

// DefaultLanguages are used when no language set is configured.
var DefaultLanguages = []string{"chi_sim", "eng"}

// ErrNoText is returned by engines that find no text region at all.
var ErrNoText = errors.New("no text recognized")

// Options controls a recognition run.
type Options struct {
	Languages []string
	// Accurate selects the slower neural recognizer.
	Accurate bool
	// LanguageCorrection enables dictionary based correction.
	LanguageCorrection bool
}

// DefaultOptions is accurate, language corrected recognition over DefaultLanguages.
func DefaultOptions() Options {
	return Options{
		Languages:          append([]string(nil), DefaultLanguages...),
		Accurate:           true,
		LanguageCorrection: true,
	}
}

// Engine recognizes text lines in an upright image, in reading order.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img image.Image, opts Options) ([]string, error)
}

// Extractor loads image files and hands them to an Engine.
type Extractor struct {
	engine Engine
	opts   Options
}

// NewExtractor wraps engine. An empty language set falls back to
// DefaultLanguages.
func NewExtractor(engine Engine, opts Options) *Extractor {
	if len(opts.Languages) == 0 {
		opts.Languages = append([]string(nil), DefaultLanguages...)
	}
	return &Extractor{engine: engine, opts: opts}
}

// ExtractText returns the newline joined lines recognized in file.
func (e *Extractor) ExtractText(ctx context.Context, file batch.FileRef) (string, error) {
	img, err := LoadImage(file.Path)
	if err != nil {
		return "", err
	}
	lines, err := e.engine.Recognize(ctx, img, e.opts)
	if err != nil {
		if errors.Is(err, ErrNoText) {
			return "", nil
		}
		return "", fmt.Errorf("%s: %w", e.engine.Name(), err)
	}
	return strings.Join(lines, "\n"), nil
}

// LoadImage decodes the image at path and applies its EXIF orientation so
// rotated photos come out upright.
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("load image %s: %w", path, err)
	}
	return img, nil
}

// EncodePNG serializes img losslessly for engines that take encoded bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// splitLines normalizes engine output into trimmed, non-empty lines.
func splitLines(text string) []string {
	text = strings.ReplaceAll(normalizeNewlines(text), "\f", "\n")
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func normalizeNewlines(in string) string {
	return strings.ReplaceAll(in, "\r\n", "\n")
}
