package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/eatclean/mediagw/internal/batch"
	"github.com/eatclean/mediagw/internal/server/reply"
	"github.com/eatclean/mediagw/internal/server/service"
	"github.com/eatclean/mediagw/internal/storage"
)

// Error codes of the oss routes.
const (
	CodeOSSNotConfigured = "oss_not_configured"
	CodeSTSFailed        = "oss_sts_failed"
	CodeSignFailed       = "oss_sign_failed"
)

// OSSService defines the credential and signing behavior consumed by OSSHandler.
type OSSService interface {
	IssueToken(ctx context.Context) (service.STSToken, error)
	SignURLs(ctx context.Context, urls []string, ttl time.Duration) ([]string, error)
}

// SignRequest is the body of POST /oss/sign.
type SignRequest struct {
	URLs       []string `json:"urls"`
	TTLSeconds int      `json:"ttl_seconds"`
}

// OSSHandler serves upload credentials and signed read URLs.
type OSSHandler struct {
	service OSSService
	logger  *zap.Logger
}

// NewOSSHandler builds the handler.
func NewOSSHandler(svc OSSService, logger *zap.Logger) *OSSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OSSHandler{service: svc, logger: logger}
}

// GetSTS issues temporary credentials for the upload channel.
func (h *OSSHandler) GetSTS(c *gin.Context) {
	tok, err := h.service.IssueToken(c.Request.Context())
	if err != nil {
		h.fail(c, err, CodeSTSFailed, "failed to get oss sts token")
		return
	}
	reply.Write(c, reply.Result(tok))
}

// SignURLs signs object URLs for reading.
func (h *OSSHandler) SignURLs(c *gin.Context) {
	var req SignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		reply.Write(c, reply.Error(http.StatusBadRequest, batch.CodeInvalidArguments, "invalid request body"))
		return
	}
	if len(req.URLs) == 0 {
		reply.Write(c, reply.Error(http.StatusBadRequest, batch.CodeInvalidArguments, "urls are required"))
		return
	}

	signed, err := h.service.SignURLs(c.Request.Context(), req.URLs, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.fail(c, err, CodeSignFailed, "failed to sign urls")
		return
	}
	reply.Write(c, reply.Result(gin.H{"signed_urls": signed}))
}

func (h *OSSHandler) fail(c *gin.Context, err error, code, message string) {
	if errors.Is(err, storage.ErrNotConfigured) {
		reply.Write(c, reply.Error(http.StatusServiceUnavailable, CodeOSSNotConfigured, "oss service not configured"))
		return
	}
	if _, ok := batch.AsError(err); ok {
		reply.Write(c, reply.Failure(err))
		return
	}
	h.logger.Error(message, zap.Error(err))
	reply.Write(c, reply.Error(http.StatusBadGateway, code, message))
}
