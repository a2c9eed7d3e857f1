package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/eatclean/mediagw/internal/batch"
	"github.com/eatclean/mediagw/internal/journal"
	"github.com/eatclean/mediagw/internal/metrics"
)

// Operation names used in logs, metrics and the journal.
const (
	OpExtractText = "extract_text"
	OpUploadFiles = "upload_files"
)

// Orchestrator defines the batch dependency.
type Orchestrator interface {
	ExtractText(ctx context.Context, req batch.ExtractRequest) (batch.ExtractedText, error)
	UploadFiles(ctx context.Context, req batch.UploadRequest) (batch.UploadedURLs, error)
}

// GatewayService validates calls and runs each accepted batch on a slot of
// a bounded worker pool.
type GatewayService struct {
	orchestrator Orchestrator
	resolver     batch.Resolver
	journal      journal.Store
	slots        *semaphore.Weighted
	logger       *zap.Logger
	now          func() time.Time
}

// NewGatewayService creates GatewayService with at most workers batches in flight.
func NewGatewayService(orch Orchestrator, resolver batch.Resolver, store journal.Store, workers int, logger *zap.Logger) *GatewayService {
	if workers <= 0 {
		workers = 1
	}
	if store == nil {
		store = journal.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GatewayService{
		orchestrator: orch,
		resolver:     resolver,
		journal:      store,
		slots:        semaphore.NewWeighted(int64(workers)),
		logger:       logger,
		now:          time.Now,
	}
}

// Extract runs a text extraction batch and returns its id and result.
func (s *GatewayService) Extract(ctx context.Context, args map[string]any) (string, batch.ExtractedText, error) {
	req, err := s.resolver.ParseExtractArgs(args)
	if err != nil {
		metrics.BatchesTotal.WithLabelValues(OpExtractText, outcome(err)).Inc()
		return "", batch.ExtractedText{}, err
	}

	return run(ctx, s, OpExtractText, len(req.Files), func(ctx context.Context, rec *journal.Record) (batch.ExtractedText, error) {
		res, err := s.orchestrator.ExtractText(ctx, req)
		rec.Skipped = res.Skipped
		rec.TextLength = len(res.Text)
		metrics.ItemsSkipped.Add(float64(res.Skipped))
		return res, err
	})
}

// Upload runs an upload batch and returns its id and result.
func (s *GatewayService) Upload(ctx context.Context, args map[string]any) (string, batch.UploadedURLs, error) {
	req, err := s.resolver.ParseUploadArgs(args)
	if err != nil {
		metrics.BatchesTotal.WithLabelValues(OpUploadFiles, outcome(err)).Inc()
		return "", batch.UploadedURLs{}, err
	}

	return run(ctx, s, OpUploadFiles, len(req.Files), func(ctx context.Context, rec *journal.Record) (batch.UploadedURLs, error) {
		res, err := s.orchestrator.UploadFiles(ctx, req)
		rec.Bucket = req.Destination.Bucket
		rec.URLs = res.URLs
		metrics.ItemsUploaded.Add(float64(len(res.URLs)))
		return res, err
	})
}

// Lookup returns the journal record of a finished batch.
func (s *GatewayService) Lookup(ctx context.Context, id string) (journal.Record, error) {
	return s.journal.Get(ctx, id)
}

type batchOutcome[T any] struct {
	res T
	err error
}

// run waits for a free slot, then executes fn detached from the caller's
// cancellation. If the caller goes away the batch still completes and is
// journaled.
func run[T any](ctx context.Context, s *GatewayService, op string, files int, fn func(context.Context, *journal.Record) (T, error)) (string, T, error) {
	var zero T
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return "", zero, err
	}

	id := uuid.NewString()
	logger := s.logger.With(zap.String("batch_id", id), zap.String("operation", op))
	done := make(chan batchOutcome[T], 1)

	go func() {
		defer s.slots.Release(1)
		metrics.BatchesInFlight.Inc()
		defer metrics.BatchesInFlight.Dec()

		rec := journal.Record{ID: id, Operation: op, Files: files, StartedAt: s.now()}
		logger.Info("batch started", zap.Int("files", files))

		res, err := fn(context.WithoutCancel(ctx), &rec)

		rec.FinishedAt = s.now()
		elapsed := rec.FinishedAt.Sub(rec.StartedAt)
		rec.Status = journal.StatusSucceeded
		if err != nil {
			rec.Status = journal.StatusFailed
			rec.URLs = nil
			if be, ok := batch.AsError(err); ok {
				rec.Code, rec.Message = be.Code, be.Message
			} else {
				rec.Code, rec.Message = "internal", err.Error()
			}
		}
		metrics.BatchesTotal.WithLabelValues(op, outcome(err)).Inc()
		metrics.BatchDuration.WithLabelValues(op).Observe(elapsed.Seconds())

		if jerr := s.journal.Put(context.Background(), rec); jerr != nil {
			logger.Warn("journal write failed", zap.Error(jerr))
		}
		if err != nil {
			logger.Warn("batch failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		} else {
			logger.Info("batch finished", zap.Duration("elapsed", elapsed), zap.Int("skipped", rec.Skipped))
		}
		done <- batchOutcome[T]{res: res, err: err}
	}()

	select {
	case out := <-done:
		return id, out.res, out.err
	case <-ctx.Done():
		return id, zero, ctx.Err()
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if be, ok := batch.AsError(err); ok {
		return be.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "internal"
}
