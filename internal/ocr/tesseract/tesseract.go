//go:build tesseract

// Package tesseract provides an in-process OCR engine backed by libtesseract.
package tesseract

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/eatclean/mediagw/internal/ocr"
)

func init() {
	ocr.RegisterEngine("tesseract", func(ocr.EngineConfig) ocr.Engine { return NewEngine() })
}

// Engine implements ocr.Engine with a fresh gosseract client per image.
type Engine struct {
	clientFactory func() *gosseract.Client
}

// NewEngine constructs a Tesseract-backed OCR engine.
func NewEngine() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize returns one entry per detected text line, top candidate only.
func (e *Engine) Recognize(ctx context.Context, img image.Image, opts ocr.Options) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := ocr.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	c := e.clientFactory()
	defer c.Close()

	if len(opts.Languages) > 0 {
		if err := c.SetLanguage(opts.Languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	// LSTM is the default engine mode of tesseract 4+, so Accurate only
	// needs full automatic segmentation.
	mode := gosseract.PSM_SINGLE_BLOCK
	if opts.Accurate {
		mode = gosseract.PSM_AUTO
	}
	if err := c.SetPageSegMode(mode); err != nil {
		return nil, fmt.Errorf("set page segmentation: %w", err)
	}
	dawg := "0"
	if opts.LanguageCorrection {
		dawg = "1"
	}
	vars := map[string]string{
		"load_system_dawg":          dawg,
		"load_freq_dawg":            dawg,
		"preserve_interword_spaces": "1",
	}
	for k, v := range vars {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return nil, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognize lines: %w", err)
	}
	lines := make([]string, 0, len(boxes))
	for _, b := range boxes {
		if text := strings.TrimSpace(b.Word); text != "" {
			lines = append(lines, text)
		}
	}
	if len(lines) == 0 {
		return nil, ocr.ErrNoText
	}
	return lines, nil
}
