// Package storage holds the object-storage adapters used for upload batches.
// Upload clients are built for every put from the credentials carried by the
// destination and dropped afterwards; nothing is cached between puts.
package storage

import (
	"fmt"
	"mime"
	"strings"

	"github.com/eatclean/mediagw/internal/batch"
)

// Supported providers.
const (
	ProviderOSS = "oss"
	ProviderS3  = "s3"
)

// Config selects and tunes the upload adapter.
type Config struct {
	Provider string
	// Region is only used by the s3 provider.
	Region string
	// PathStyle addresses buckets as endpoint/bucket/key on the s3 provider.
	PathStyle bool
}

// New returns the uploader for cfg.Provider.
func New(cfg Config) (batch.ObjectUploader, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOSS:
		return NewOSSUploader(), nil
	case ProviderS3:
		return NewS3Uploader(cfg.Region, cfg.PathStyle), nil
	default:
		return nil, fmt.Errorf("unsupported storage provider %q", cfg.Provider)
	}
}

func contentType(file batch.FileRef) string {
	if ct := mime.TypeByExtension("." + file.ExtOr(batch.DefaultExt)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func withScheme(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	return endpoint
}
