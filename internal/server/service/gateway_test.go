package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eatclean/mediagw/internal/batch"
	"github.com/eatclean/mediagw/internal/journal"
)

type fakeOrchestrator struct {
	mu        sync.Mutex
	text      batch.ExtractedText
	urls      batch.UploadedURLs
	err       error
	block     chan struct{}
	started   chan struct{}
	calls     int
	lastFiles []batch.FileRef
	lastDest  batch.Destination
}

func (f *fakeOrchestrator) enter(files []batch.FileRef) {
	f.mu.Lock()
	f.calls++
	f.lastFiles = files
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
}

func (f *fakeOrchestrator) ExtractText(ctx context.Context, req batch.ExtractRequest) (batch.ExtractedText, error) {
	f.enter(req.Files)
	return f.text, f.err
}

func (f *fakeOrchestrator) UploadFiles(ctx context.Context, req batch.UploadRequest) (batch.UploadedURLs, error) {
	f.enter(req.Files)
	f.mu.Lock()
	f.lastDest = req.Destination
	f.mu.Unlock()
	if f.err != nil {
		return batch.UploadedURLs{}, f.err
	}
	return f.urls, nil
}

func (f *fakeOrchestrator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memJournal struct {
	mu      sync.Mutex
	records map[string]journal.Record
}

func newMemJournal() *memJournal {
	return &memJournal{records: map[string]journal.Record{}}
}

func (m *memJournal) Put(ctx context.Context, rec journal.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return nil
}

func (m *memJournal) Get(ctx context.Context, id string) (journal.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return journal.Record{}, journal.ErrNotFound
	}
	return rec, nil
}

func (m *memJournal) Close() error { return nil }

func uploadArgs() map[string]any {
	return map[string]any{
		"paths":           []any{"/data/a.png", "/data/b.jpg"},
		"endpoint":        "https://oss-cn-beijing.aliyuncs.com",
		"bucket":          "meals",
		"accessKeyId":     "STS.id",
		"accessKeySecret": "secret",
		"securityToken":   "token",
		"userId":          float64(5),
	}
}

func TestGatewayService_ExtractSuccess(t *testing.T) {
	orch := &fakeOrchestrator{text: batch.ExtractedText{Text: "hello", Files: 2, Skipped: 1}}
	store := newMemJournal()
	svc := NewGatewayService(orch, batch.Resolver{}, store, 2, nil)

	id, res, err := svc.Extract(context.Background(), map[string]any{"paths": []any{"a.png", "b.png"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" || res.Text != "hello" {
		t.Fatalf("unexpected result: id=%q res=%+v", id, res)
	}
	if len(orch.lastFiles) != 2 || orch.lastFiles[1].Path != "b.png" {
		t.Fatalf("files not passed through: %+v", orch.lastFiles)
	}

	rec, err := svc.Lookup(context.Background(), id)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if rec.Status != journal.StatusSucceeded || rec.Operation != OpExtractText || rec.Skipped != 1 || rec.TextLength != 5 {
		t.Fatalf("unexpected journal record: %+v", rec)
	}
}

func TestGatewayService_InvalidArgsNeverStart(t *testing.T) {
	orch := &fakeOrchestrator{}
	store := newMemJournal()
	svc := NewGatewayService(orch, batch.Resolver{}, store, 1, nil)

	if _, _, err := svc.Extract(context.Background(), nil); !errors.Is(err, batch.ErrInvalidArguments) {
		t.Fatalf("expected invalid arguments, got %v", err)
	}
	args := uploadArgs()
	delete(args, "securityToken")
	if _, _, err := svc.Upload(context.Background(), args); !errors.Is(err, batch.ErrInvalidArguments) {
		t.Fatalf("expected invalid arguments, got %v", err)
	}
	if orch.callCount() != 0 {
		t.Fatalf("orchestrator must not run for invalid arguments, calls=%d", orch.callCount())
	}
	if len(store.records) != 0 {
		t.Fatalf("nothing should be journaled, got %d", len(store.records))
	}
}

func TestGatewayService_UploadFailureJournaled(t *testing.T) {
	orch := &fakeOrchestrator{err: &batch.Error{Code: batch.CodeUploadFailed, Message: "token expired"}}
	store := newMemJournal()
	svc := NewGatewayService(orch, batch.Resolver{}, store, 1, nil)

	id, res, err := svc.Upload(context.Background(), uploadArgs())
	if !errors.Is(err, batch.ErrUploadFailed) {
		t.Fatalf("expected upload failure, got %v", err)
	}
	if len(res.URLs) != 0 {
		t.Fatalf("failure must not carry urls: %v", res.URLs)
	}
	if orch.lastDest.OwnerID != 5 || orch.lastDest.Prefix != batch.DefaultPrefix {
		t.Fatalf("destination not decoded: %+v", orch.lastDest)
	}

	rec, err := svc.Lookup(context.Background(), id)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if rec.Status != journal.StatusFailed || rec.Code != batch.CodeUploadFailed || rec.Bucket != "meals" {
		t.Fatalf("unexpected journal record: %+v", rec)
	}
}

func TestGatewayService_PoolLimitsBatches(t *testing.T) {
	orch := &fakeOrchestrator{
		urls:    batch.UploadedURLs{URLs: []string{"u0", "u1"}},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	svc := NewGatewayService(orch, batch.Resolver{}, nil, 1, nil)

	type result struct {
		res batch.UploadedURLs
		err error
	}
	first := make(chan result, 1)
	go func() {
		_, res, err := svc.Upload(context.Background(), uploadArgs())
		first <- result{res, err}
	}()
	<-orch.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, _, err := svc.Upload(ctx, uploadArgs()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected second batch to wait for a slot, got %v", err)
	}
	if orch.callCount() != 1 {
		t.Fatalf("second batch must not start, calls=%d", orch.callCount())
	}

	close(orch.block)
	got := <-first
	if got.err != nil || len(got.res.URLs) != 2 {
		t.Fatalf("unexpected first result: %+v", got)
	}
}

func TestGatewayService_CallerCancelDoesNotStopBatch(t *testing.T) {
	orch := &fakeOrchestrator{
		text:    batch.ExtractedText{Text: "late"},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	store := newMemJournal()
	svc := NewGatewayService(orch, batch.Resolver{}, store, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	ids := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		id, _, err := svc.Extract(ctx, map[string]any{"paths": []any{"a.png"}})
		ids <- id
		errs <- err
	}()
	<-orch.started
	cancel()

	id := <-ids
	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected caller to see cancellation, got %v", err)
	}
	close(orch.block)

	deadline := time.After(2 * time.Second)
	for {
		if rec, err := store.Get(context.Background(), id); err == nil {
			if rec.Status != journal.StatusSucceeded {
				t.Fatalf("batch should have completed, got %+v", rec)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("batch was never journaled")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
