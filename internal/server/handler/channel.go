package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/eatclean/mediagw/internal/batch"
	"github.com/eatclean/mediagw/internal/journal"
	"github.com/eatclean/mediagw/internal/server/reply"
)

// Channel and method names understood by the gateway.
const (
	ChannelOCR       = "ocr"
	ChannelOSSUpload = "oss_upload"

	MethodRecognizeText = "recognizeText"
	MethodUploadImages  = "uploadImages"
)

// BatchIDHeader carries the id of the batch that served a call.
const BatchIDHeader = "X-Batch-ID"

// GatewayService defines the behavior consumed by the handler.
type GatewayService interface {
	Extract(ctx context.Context, args map[string]any) (string, batch.ExtractedText, error)
	Upload(ctx context.Context, args map[string]any) (string, batch.UploadedURLs, error)
	Lookup(ctx context.Context, id string) (journal.Record, error)
}

// Call is the body of a channel invocation.
type Call struct {
	Method    string         `json:"method"`
	Arguments map[string]any `json:"arguments"`
}

type methodFunc func(h *ChannelHandler, c *gin.Context, args map[string]any)

var channels = map[string]map[string]methodFunc{
	ChannelOCR:       {MethodRecognizeText: (*ChannelHandler).recognizeText},
	ChannelOSSUpload: {MethodUploadImages: (*ChannelHandler).uploadImages},
}

// ChannelHandler manages channel HTTP interactions.
type ChannelHandler struct {
	service GatewayService
	logger  *zap.Logger
}

// NewChannelHandler builds the handler.
func NewChannelHandler(svc GatewayService, logger *zap.Logger) *ChannelHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChannelHandler{service: svc, logger: logger}
}

// HandleChannel dispatches a method call on the channel named in the path.
func (h *ChannelHandler) HandleChannel(c *gin.Context) {
	methods, ok := channels[c.Param("channel")]
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error": "unknown channel",
		})
		return
	}

	var call Call
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&call); err != nil {
		reply.Write(c, reply.Failure(&batch.Error{
			Code:    batch.CodeInvalidArguments,
			Message: "Missing arguments",
			Err:     err,
		}))
		return
	}

	method, ok := methods[call.Method]
	if !ok {
		reply.Write(c, reply.NotImplemented())
		return
	}
	method(h, c, call.Arguments)
}

func (h *ChannelHandler) recognizeText(c *gin.Context, args map[string]any) {
	id, res, err := h.service.Extract(c.Request.Context(), args)
	setBatchID(c, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	reply.Write(c, reply.Text(res))
}

func (h *ChannelHandler) uploadImages(c *gin.Context, args map[string]any) {
	id, res, err := h.service.Upload(c.Request.Context(), args)
	setBatchID(c, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	reply.Write(c, reply.URLs(res))
}

func (h *ChannelHandler) fail(c *gin.Context, err error) {
	if _, ok := batch.AsError(err); !ok {
		h.logger.Error("channel call failed", zap.String("channel", c.Param("channel")), zap.Error(err))
	}
	reply.Write(c, reply.Failure(err))
}

// HandleBatch returns the journal record of a finished batch.
func (h *ChannelHandler) HandleBatch(c *gin.Context) {
	rec, err := h.service.Lookup(c.Request.Context(), c.Param("id"))
	if errors.Is(err, journal.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error": "batch not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("batch lookup failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "lookup failed",
		})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func setBatchID(c *gin.Context, id string) {
	if id != "" {
		c.Header(BatchIDHeader, id)
	}
}
