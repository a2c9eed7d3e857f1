package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/eatclean/mediagw/internal/batch"
	"github.com/eatclean/mediagw/internal/journal"
)

const handlerExpectedText = "Mapo Tofu\nKung Pao Chicken"

type fakeService struct {
	text     batch.ExtractedText
	urls     batch.UploadedURLs
	err      error
	record   journal.Record
	lastArgs map[string]any
	calls    int
}

func (f *fakeService) Extract(ctx context.Context, args map[string]any) (string, batch.ExtractedText, error) {
	f.calls++
	f.lastArgs = args
	if f.err != nil {
		return "batch-1", batch.ExtractedText{}, f.err
	}
	return "batch-1", f.text, nil
}

func (f *fakeService) Upload(ctx context.Context, args map[string]any) (string, batch.UploadedURLs, error) {
	f.calls++
	f.lastArgs = args
	if f.err != nil {
		return "batch-2", batch.UploadedURLs{}, f.err
	}
	return "batch-2", f.urls, nil
}

func (f *fakeService) Lookup(ctx context.Context, id string) (journal.Record, error) {
	if f.record.ID != id {
		return journal.Record{}, journal.ErrNotFound
	}
	return f.record, nil
}

func serve(t *testing.T, svc GatewayService, channel, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewChannelHandler(svc, nil)
	w := httptest.NewRecorder()
	c, r := gin.CreateTestContext(w)
	r.POST("/channels/:channel", h.HandleChannel)

	req := httptest.NewRequest(http.MethodPost, "/channels/"+channel, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestChannelHandler_RecognizeText(t *testing.T) {
	svc := &fakeService{text: batch.ExtractedText{Text: handlerExpectedText}}
	w := serve(t, svc, ChannelOCR, `{"method":"recognizeText","arguments":{"paths":["/data/menu.jpg"]}}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("expected json content type got %s", ct)
	}
	if got := w.Header().Get(BatchIDHeader); got != "batch-1" {
		t.Fatalf("expected batch id header, got %q", got)
	}
	if body := decodeBody(t, w); body["result"] != handlerExpectedText {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	paths, ok := svc.lastArgs["paths"].([]any)
	if !ok || len(paths) != 1 || paths[0] != "/data/menu.jpg" {
		t.Fatalf("arguments not forwarded: %#v", svc.lastArgs)
	}
}

func TestChannelHandler_EmptyTextIsSuccess(t *testing.T) {
	w := serve(t, &fakeService{}, ChannelOCR, `{"method":"recognizeText","arguments":{"paths":["/data/blank.jpg"]}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	if body := decodeBody(t, w); body["result"] != "" {
		t.Fatalf("expected empty string result, got %s", w.Body.String())
	}
}

func TestChannelHandler_UploadImages(t *testing.T) {
	svc := &fakeService{urls: batch.UploadedURLs{URLs: []string{"https://b.host/k0.png", "https://b.host/k1.png"}}}
	w := serve(t, svc, ChannelOSSUpload, `{"method":"uploadImages","arguments":{"paths":["a.png","b.png"],"userId":12}}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	result, ok := decodeBody(t, w)["result"].(map[string]any)
	if !ok {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	urls, _ := result["urls"].([]any)
	if len(urls) != 2 || urls[0] != "https://b.host/k0.png" {
		t.Fatalf("unexpected urls: %v", result["urls"])
	}
	if n, ok := svc.lastArgs["userId"].(json.Number); !ok || n.String() != "12" {
		t.Fatalf("numbers should be decoded as json.Number, got %#v", svc.lastArgs["userId"])
	}
}

func TestChannelHandler_UploadFailed(t *testing.T) {
	svc := &fakeService{err: &batch.Error{Code: batch.CodeUploadFailed, Message: "The security token you provided has expired."}}
	w := serve(t, svc, ChannelOSSUpload, `{"method":"uploadImages","arguments":{}}`)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d", w.Code)
	}
	errBody, _ := decodeBody(t, w)["error"].(map[string]any)
	if errBody["code"] != "oss_upload_failed" || !strings.Contains(errBody["message"].(string), "expired") {
		t.Fatalf("unexpected error body: %s", w.Body.String())
	}
}

func TestChannelHandler_InvalidArgs(t *testing.T) {
	svc := &fakeService{err: &batch.Error{Code: batch.CodeInvalidArguments, Message: "Missing image paths"}}
	w := serve(t, svc, ChannelOCR, `{"method":"recognizeText"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", w.Code)
	}
	errBody, _ := decodeBody(t, w)["error"].(map[string]any)
	if errBody["code"] != "invalid_args" {
		t.Fatalf("unexpected error body: %s", w.Body.String())
	}
}

func TestChannelHandler_MalformedBody(t *testing.T) {
	svc := &fakeService{}
	w := serve(t, svc, ChannelOCR, `not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", w.Code)
	}
	if svc.calls != 0 {
		t.Fatal("service should not be called for malformed body")
	}
}

func TestChannelHandler_NotImplemented(t *testing.T) {
	svc := &fakeService{}
	w := serve(t, svc, ChannelOCR, `{"method":"detectBarcodes","arguments":{}}`)
	if w.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["notImplemented"] != true || body["error"] != nil {
		t.Fatalf("not implemented must be distinct from an error: %s", w.Body.String())
	}

	// uploadImages belongs to the upload channel only
	w = serve(t, svc, ChannelOCR, `{"method":"uploadImages","arguments":{}}`)
	if w.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 for method on wrong channel, got %d", w.Code)
	}
	if svc.calls != 0 {
		t.Fatal("service should not be called for unknown methods")
	}
}

func TestChannelHandler_UnknownChannel(t *testing.T) {
	w := serve(t, &fakeService{}, "push", `{"method":"register"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}
}

func TestChannelHandler_InternalError(t *testing.T) {
	w := serve(t, &fakeService{err: errors.New("journal closed")}, ChannelOCR, `{"method":"recognizeText","arguments":{"paths":["a"]}}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "journal closed") {
		t.Fatalf("internal error detail leaked: %s", w.Body.String())
	}
}

func TestChannelHandler_HandleBatch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeService{record: journal.Record{ID: "abc", Operation: "upload_files", Status: journal.StatusSucceeded}}
	h := NewChannelHandler(svc, nil)

	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)
	r.GET("/batches/:id", h.HandleBatch)
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/batches/abc", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"succeeded"`) {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/batches/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}
}
