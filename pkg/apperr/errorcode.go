package apperr

import "net/http"

// Client-side error codes. The message is the human-readable text shown to the
// user; HTTPStatus is the upstream status the code was derived from (0 when the
// failure happened before a response arrived).
var (
	ErrorCodeTimeout          = NewErrorCode("timeout", "Request timed out.", 10, 0)
	ErrorCodeNoResponse       = NewErrorCode("no_response", "No response from the server.", 20, 0)
	ErrorCodeRequestFailed    = NewErrorCode("request_failed", "Cannot request information.", 30, 0)
	ErrorCodeRefreshFailed    = NewErrorCode("refresh_failed", "Your session has expired. Please sign in again.", 40, http.StatusUnauthorized)
	ErrorCodeBadRequest       = NewErrorCode("bad_request", "400 Bad Request.", 50, http.StatusBadRequest)
	ErrorCodeUnauthorized     = NewErrorCode("unauthorized", "401 Unauthorized.", 60, http.StatusUnauthorized)
	ErrorCodeForbidden        = NewErrorCode("forbidden", "403 Forbidden.", 70, http.StatusForbidden)
	ErrorCodeNotFound         = NewErrorCode("not_found", "404 Not Found.", 80, http.StatusNotFound)
	ErrorCodeMethodNotAllowed = NewErrorCode("method_not_allowed", "405 Method Not Allowed.", 90, http.StatusMethodNotAllowed)
	ErrorCodeRequestTimeout   = NewErrorCode("request_timeout", "408 Request Timeout.", 100, http.StatusRequestTimeout)
	ErrorCodeTooManyRequests  = NewErrorCode("too_many_requests", "429 Too Many Requests.", 110, http.StatusTooManyRequests)
	ErrorCodeInternal         = NewErrorCode("internal_error", "500 Internal Server Error", 120, http.StatusInternalServerError)
	ErrorCodeBadGateway       = NewErrorCode("bad_gateway", "502 Bad Gateway", 130, http.StatusBadGateway)
	ErrorCodeUnexpected       = NewErrorCode("unexpected_response", "The response from the server is incorrect.", 140, 0)
)

var byStatus = map[int]*ErrorCode{
	http.StatusBadRequest:          ErrorCodeBadRequest,
	http.StatusUnauthorized:        ErrorCodeUnauthorized,
	http.StatusForbidden:           ErrorCodeForbidden,
	http.StatusNotFound:            ErrorCodeNotFound,
	http.StatusMethodNotAllowed:    ErrorCodeMethodNotAllowed,
	http.StatusRequestTimeout:      ErrorCodeRequestTimeout,
	http.StatusTooManyRequests:     ErrorCodeTooManyRequests,
	http.StatusInternalServerError: ErrorCodeInternal,
	http.StatusBadGateway:          ErrorCodeBadGateway,
}

// ForStatus maps an upstream HTTP status to its error code. Statuses without a
// dedicated code map to ErrorCodeUnexpected.
func ForStatus(status int) *ErrorCode {
	if ec, ok := byStatus[status]; ok {
		return ec
	}
	return ErrorCodeUnexpected
}

// ErrorCode describes a canonical application error code.
// It carries a numeric severity/priority (Value) and an HTTP status.
type ErrorCode struct {
	code       string
	message    string
	value      int
	httpStatus int
}

func NewErrorCode(code, message string, value, httpStatus int) *ErrorCode {
	return &ErrorCode{code: code, message: message, value: value, httpStatus: httpStatus}
}

func (ec *ErrorCode) Code() string    { return ec.code }
func (ec *ErrorCode) Message() string { return ec.message }
func (ec *ErrorCode) Value() int      { return ec.value }
func (ec *ErrorCode) HTTPStatus() int { return ec.httpStatus }

// ServerSide reports whether the code stands for a 5xx upstream status.
func (ec *ErrorCode) ServerSide() bool { return ec.httpStatus >= 500 }
