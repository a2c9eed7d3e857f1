package batch

import "errors"

// Stable codes surfaced to callers.
const (
	CodeInvalidArguments = "invalid_args"
	CodeUploadFailed     = "oss_upload_failed"
	CodeExtractFailed    = "ocr_failed"
)

var (
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrUploadFailed     = errors.New("upload failed")
	ErrExtractFailed    = errors.New("extraction failed")
)

// Error is a whole-batch failure carrying a stable code and a caller-facing message.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel belonging to the error's code.
func (e *Error) Is(target error) bool {
	switch e.Code {
	case CodeInvalidArguments:
		return target == ErrInvalidArguments
	case CodeUploadFailed:
		return target == ErrUploadFailed
	case CodeExtractFailed:
		return target == ErrExtractFailed
	}
	return false
}

func invalidArgs(msg string) *Error {
	return &Error{Code: CodeInvalidArguments, Message: msg}
}

func uploadFailed(err error) *Error {
	return &Error{Code: CodeUploadFailed, Message: err.Error(), Err: err}
}

func extractFailed(err error) *Error {
	return &Error{Code: CodeExtractFailed, Message: err.Error(), Err: err}
}

// AsError extracts a *Error from err, if any.
func AsError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
