package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eatclean/mediagw/internal/batch"
	"github.com/eatclean/mediagw/internal/server/service"
	"github.com/eatclean/mediagw/internal/storage"
)

type fakeOSSService struct {
	token   service.STSToken
	signed  []string
	err     error
	lastTTL time.Duration
	urls    []string
}

func (f *fakeOSSService) IssueToken(ctx context.Context) (service.STSToken, error) {
	return f.token, f.err
}

func (f *fakeOSSService) SignURLs(ctx context.Context, urls []string, ttl time.Duration) ([]string, error) {
	f.urls = urls
	f.lastTTL = ttl
	return f.signed, f.err
}

func serveOSS(t *testing.T, svc OSSService, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewOSSHandler(svc, nil)
	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)
	r.GET("/oss/sts", h.GetSTS)
	r.POST("/oss/sign", h.SignURLs)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestOSSHandler_GetSTS(t *testing.T) {
	svc := &fakeOSSService{token: service.STSToken{
		AccessKeyID: "STS.id", AccessKeySecret: "s", SecurityToken: "tok",
		Expiration: "2026-10-17T12:00:00Z", Endpoint: "oss-cn-beijing.aliyuncs.com", Bucket: "meals", Region: "cn-beijing",
	}}
	w := serveOSS(t, svc, http.MethodGet, "/oss/sts", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	result, _ := decodeBody(t, w)["result"].(map[string]any)
	if result["security_token"] != "tok" || result["bucket"] != "meals" || result["endpoint"] != "oss-cn-beijing.aliyuncs.com" {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestOSSHandler_GetSTSErrors(t *testing.T) {
	w := serveOSS(t, &fakeOSSService{err: storage.ErrNotConfigured}, http.MethodGet, "/oss/sts", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}

	w = serveOSS(t, &fakeOSSService{err: errors.New("sts NoPermission: secret detail")}, http.MethodGet, "/oss/sts", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	errBody, _ := decodeBody(t, w)["error"].(map[string]any)
	if errBody["code"] != CodeSTSFailed || strings.Contains(w.Body.String(), "secret detail") {
		t.Fatalf("unexpected error body: %s", w.Body.String())
	}
}

func TestOSSHandler_SignURLs(t *testing.T) {
	svc := &fakeOSSService{signed: []string{"https://signed/a"}}
	w := serveOSS(t, svc, http.MethodPost, "/oss/sign", `{"urls":["uploads/a.jpg"],"ttl_seconds":120}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	result, _ := decodeBody(t, w)["result"].(map[string]any)
	urls, _ := result["signed_urls"].([]any)
	if len(urls) != 1 || urls[0] != "https://signed/a" {
		t.Fatalf("unexpected result: %v", result)
	}
	if svc.lastTTL != 2*time.Minute || svc.urls[0] != "uploads/a.jpg" {
		t.Fatalf("request not forwarded: %v %v", svc.lastTTL, svc.urls)
	}
}

func TestOSSHandler_SignURLsErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed body", `{"urls":`, nil, http.StatusBadRequest},
		{"no urls", `{"urls":[]}`, nil, http.StatusBadRequest},
		{"bad url", `{"urls":[" "]}`, &batch.Error{Code: batch.CodeInvalidArguments, Message: "Invalid object url"}, http.StatusBadRequest},
		{"not configured", `{"urls":["a"]}`, storage.ErrNotConfigured, http.StatusServiceUnavailable},
		{"signer failure", `{"urls":["a"]}`, errors.New("boom"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveOSS(t, &fakeOSSService{err: tt.err}, http.MethodPost, "/oss/sign", tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}
