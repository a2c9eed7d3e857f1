package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const defaultBinary = "tesseract"

// Processor wraps the tesseract CLI.
type Processor struct {
	Binary  string
	Timeout time.Duration
}

// NewProcessor returns a Processor with sane defaults.
func NewProcessor() *Processor {
	return &Processor{
		Binary:  defaultBinary,
		Timeout: 2 * time.Minute,
	}
}

func (p *Processor) Name() string { return "tesseract-cli" }

// Recognize writes img to a temporary PNG and runs tesseract over it.
func (p *Processor) Recognize(ctx context.Context, img image.Image, opts Options) ([]string, error) {
	binary := p.Binary
	if binary == "" {
		binary = defaultBinary
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	data, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}
	input, cleanup, err := SaveImage(data)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, binary, buildArgs(input, opts)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tesseract: %w - %s", err, strings.TrimSpace(stderr.String()))
	}

	lines := splitLines(stdout.String())
	if len(lines) == 0 {
		return nil, ErrNoText
	}
	return lines, nil
}

func buildArgs(input string, opts Options) []string {
	args := []string{input, "stdout", "--psm", "3"}
	if opts.Accurate {
		args = append(args, "--oem", "1")
	}
	if len(opts.Languages) > 0 {
		args = append(args, "-l", strings.Join(opts.Languages, "+"))
	}
	dawg := "0"
	if opts.LanguageCorrection {
		dawg = "1"
	}
	args = append(args,
		"-c", "load_system_dawg="+dawg,
		"-c", "load_freq_dawg="+dawg,
		"-c", "preserve_interword_spaces=1",
	)
	return args
}

// SaveImage writes encoded image bytes to a temporary file.
func SaveImage(data []byte) (string, func(), error) {
	tmpFile, err := os.CreateTemp("", "ocr-input-*.png")
	if err != nil {
		return "", nil, fmt.Errorf("create temp image: %w", err)
	}

	cleanup := func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}

	if _, err := tmpFile.Write(data); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write temp image: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpFile.Name())
		return "", nil, fmt.Errorf("close temp image: %w", err)
	}

	return tmpFile.Name(), cleanup, nil
}

// EnsureBinary checks whether the OCR binary is available on PATH.
func EnsureBinary(binary string) error {
	if binary == "" {
		binary = defaultBinary
	}
	_, err := exec.LookPath(binary)
	if err != nil {
		return fmt.Errorf("tesseract binary not found (%s): %w", binary, err)
	}
	return nil
}

// ResolveBinary returns the absolute binary path if available on PATH.
func ResolveBinary(binary string) (string, error) {
	if binary == "" {
		binary = defaultBinary
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", err
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs, nil
	}
	return path, nil
}
