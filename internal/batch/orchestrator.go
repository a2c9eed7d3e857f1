package batch

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TextExtractor recognizes the text of a single file.
type TextExtractor interface {
	ExtractText(ctx context.Context, file FileRef) (string, error)
}

// ObjectUploader stores a single file under key and returns once the put
// has completed.
type ObjectUploader interface {
	PutFile(ctx context.Context, dest Destination, key string, file FileRef) error
}

// ExtractedText is the combined text of an extraction batch.
type ExtractedText struct {
	Text    string
	Files   int
	Skipped int
}

// UploadedURLs lists public URLs in input order.
type UploadedURLs struct {
	URLs []string
	Keys []string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithExtractPolicy overrides the extraction item policy (BestEffort by default).
func WithExtractPolicy(p ItemPolicy) Option {
	return func(o *Orchestrator) { o.extractPolicy = p }
}

// WithUploadPolicy overrides the upload item policy (FailFast by default).
func WithUploadPolicy(p ItemPolicy) Option {
	return func(o *Orchestrator) { o.uploadPolicy = p }
}

// WithParallelism lets up to n extraction items run at once. Output order
// is unaffected. Uploads are always sequential.
func WithParallelism(n int) Option {
	return func(o *Orchestrator) { o.parallelism = n }
}

// WithKeyNamer replaces the object key strategy.
func WithKeyNamer(n KeyNamer) Option {
	return func(o *Orchestrator) { o.namer = n }
}

// Orchestrator runs one batch against a capability.
type Orchestrator struct {
	extractor     TextExtractor
	uploader      ObjectUploader
	namer         KeyNamer
	extractPolicy ItemPolicy
	uploadPolicy  ItemPolicy
	parallelism   int
	logger        *zap.Logger
}

// New builds an Orchestrator. Either capability may be nil when the
// corresponding operation is not served.
func New(extractor TextExtractor, uploader ObjectUploader, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		extractor:     extractor,
		uploader:      uploader,
		namer:         NewKeyNamer(),
		extractPolicy: BestEffort,
		uploadPolicy:  FailFast,
		parallelism:   1,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type itemText struct {
	text string
	err  error
}

// ExtractText runs the extractor over every file and joins the non-empty
// outputs, in input order, separated by a blank line.
func (o *Orchestrator) ExtractText(ctx context.Context, req ExtractRequest) (ExtractedText, error) {
	if len(req.Files) == 0 {
		return ExtractedText{}, invalidArgs("Missing image paths")
	}
	if o.extractor == nil {
		return ExtractedText{}, extractFailed(errNoCapability("text extraction"))
	}

	out := ExtractedText{Files: len(req.Files)}
	parts := make([]string, 0, len(req.Files))

	accept := func(i int, r itemText) error {
		file := req.Files[i]
		if r.err != nil {
			if !o.extractPolicy.Absorb(i, file, r.err) {
				return extractFailed(r.err)
			}
			out.Skipped++
			o.logger.Debug("skipping unreadable item",
				zap.Int("index", i), zap.String("path", file.Path), zap.Error(r.err))
			return nil
		}
		if r.text != "" {
			parts = append(parts, r.text)
		}
		return nil
	}

	if o.parallelism > 1 && len(req.Files) > 1 {
		results := make([]itemText, len(req.Files))
		var g errgroup.Group
		g.SetLimit(o.parallelism)
		for i, file := range req.Files {
			g.Go(func() error {
				text, err := o.extractor.ExtractText(ctx, file)
				results[i] = itemText{text: text, err: err}
				return nil
			})
		}
		_ = g.Wait()
		for i, r := range results {
			if err := accept(i, r); err != nil {
				return ExtractedText{}, err
			}
		}
	} else {
		for i, file := range req.Files {
			text, err := o.extractor.ExtractText(ctx, file)
			if err := accept(i, itemText{text: text, err: err}); err != nil {
				return ExtractedText{}, err
			}
		}
	}

	out.Text = strings.TrimSpace(strings.Join(parts, "\n\n"))
	return out, nil
}

// UploadFiles puts every file in order, waiting for each put before the
// next. Under the default policy the first failure aborts the batch and no
// URLs are returned.
func (o *Orchestrator) UploadFiles(ctx context.Context, req UploadRequest) (UploadedURLs, error) {
	if len(req.Files) == 0 {
		return UploadedURLs{}, invalidArgs("Missing OSS parameters")
	}
	if o.uploader == nil {
		return UploadedURLs{}, uploadFailed(errNoCapability("object upload"))
	}

	dest := req.Destination
	out := UploadedURLs{
		URLs: make([]string, 0, len(req.Files)),
		Keys: make([]string, 0, len(req.Files)),
	}
	for i, file := range req.Files {
		key := o.namer.Key(dest, i, file)
		if err := o.uploader.PutFile(ctx, dest, key, file); err != nil {
			if o.uploadPolicy.Absorb(i, file, err) {
				o.logger.Warn("dropping failed upload",
					zap.Int("index", i), zap.String("path", file.Path), zap.Error(err))
				continue
			}
			o.logger.Warn("upload aborted",
				zap.Int("index", i),
				zap.Int("remaining", len(req.Files)-i-1),
				zap.String("bucket", dest.Bucket),
				zap.String("ak_prefix", dest.Credentials.KeyPrefix()),
				zap.String("key", key),
				zap.Error(err))
			return UploadedURLs{}, uploadFailed(err)
		}
		out.Keys = append(out.Keys, key)
		out.URLs = append(out.URLs, dest.PublicURL(key))
	}
	return out, nil
}

type errNoCapability string

func (e errNoCapability) Error() string { return string(e) + " is not configured" }
