//go:build tesseract

package main

// Built with -tags tesseract: registers the libtesseract engine (cgo).
import _ "github.com/eatclean/mediagw/internal/ocr/tesseract"
