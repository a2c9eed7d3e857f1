// Package reply maps batch results onto the boundary reply shape.
package reply

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eatclean/mediagw/internal/batch"
)

// CodeInternal is used for failures that carry no batch code.
const CodeInternal = "internal"

// Body is the JSON envelope of every channel reply. Exactly one of Result,
// Error or NotImplemented is set.
type Body struct {
	Result         any        `json:"result,omitempty"`
	Error          *ErrorBody `json:"error,omitempty"`
	NotImplemented bool       `json:"notImplemented,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Reply is a status code plus body.
type Reply struct {
	Status int
	Body   Body
}

// URLsResult is the payload of a successful upload.
type URLsResult struct {
	URLs []string `json:"urls"`
}

// Text replies with the combined extraction text, which may be empty.
func Text(res batch.ExtractedText) Reply {
	return Reply{http.StatusOK, Body{Result: res.Text}}
}

// URLs replies with the uploaded object URLs.
func URLs(res batch.UploadedURLs) Reply {
	urls := res.URLs
	if urls == nil {
		urls = []string{}
	}
	return Reply{http.StatusOK, Body{Result: URLsResult{URLs: urls}}}
}

// Failure maps err to an error reply.
func Failure(err error) Reply {
	be, ok := batch.AsError(err)
	if !ok {
		return Reply{http.StatusInternalServerError, Body{Error: &ErrorBody{Code: CodeInternal, Message: "internal error"}}}
	}
	status := http.StatusInternalServerError
	switch be.Code {
	case batch.CodeInvalidArguments:
		status = http.StatusBadRequest
	case batch.CodeUploadFailed, batch.CodeExtractFailed:
		status = http.StatusBadGateway
	}
	return Reply{status, Body{Error: &ErrorBody{Code: be.Code, Message: be.Message}}}
}

// Result replies 200 with an arbitrary payload.
func Result(v any) Reply {
	return Reply{http.StatusOK, Body{Result: v}}
}

// Error replies with an explicit status and code.
func Error(status int, code, message string) Reply {
	return Reply{status, Body{Error: &ErrorBody{Code: code, Message: message}}}
}

// NotImplemented replies for methods no channel serves.
func NotImplemented() Reply {
	return Reply{http.StatusNotImplemented, Body{NotImplemented: true}}
}

// Write sends a reply produced by one of the functions above.
func Write(c *gin.Context, r Reply) {
	if r.Status >= http.StatusBadRequest {
		c.AbortWithStatusJSON(r.Status, r.Body)
		return
	}
	c.JSON(r.Status, r.Body)
}
