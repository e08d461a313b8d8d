package status

import "errors"

type HTTPError struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

// CodeOf extracts the status code carried by err. Errors not being HTTPError
// result in InternalServerError
func CodeOf(err error) Code {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}

	return InternalServerError
}

var (
	ErrBadRequest          = NewError(BadRequest, "bad request")
	ErrBadRequestLine      = NewError(BadRequest, "malformed request line")
	ErrBadHeader           = NewError(BadRequest, "malformed header line")
	ErrIncompleteHead      = NewError(BadRequest, "incomplete request head")
	ErrUnsupportedProtocol = NewError(BadRequest, "unsupported protocol version")
	ErrBadContentLength    = NewError(BadRequest, "malformed content-length")
	ErrBodyTooLarge        = NewError(BadRequest, "declared body exceeds the limit")
	ErrIncompleteBody      = NewError(BadRequest, "incomplete request body")
	ErrMethodNotAllowed    = NewError(MethodNotAllowed, "method not allowed")
	ErrRequestTooLarge     = NewError(RequestEntityTooLarge, "request head is too large")
	ErrInvalidPath         = NewError(Forbidden, "invalid path")
	ErrAccessDenied        = NewError(Forbidden, "access denied")
	ErrNotFound            = NewError(NotFound, "not found")
	ErrInternalServerError = NewError(InternalServerError, "internal server error")
	ErrScriptFailed        = NewError(InternalServerError, "script execution failed")
	ErrTooManyRequests     = NewError(TooManyRequests, "too many requests")
	ErrServiceUnavailable  = NewError(ServiceUnavailable, "service unavailable")
)
