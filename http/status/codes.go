package status

import "strconv"

type (
	Code   uint16
	Status string
)

// HTTP status codes the server is able to produce.
// See: https://www.iana.org/assignments/http-status-codes/http-status-codes.xhtml
const (
	OK Code = 200 // RFC 9110, 15.3.1

	BadRequest            Code = 400 // RFC 9110, 15.5.1
	Forbidden             Code = 403 // RFC 9110, 15.5.4
	NotFound              Code = 404 // RFC 9110, 15.5.5
	MethodNotAllowed      Code = 405 // RFC 9110, 15.5.6
	RequestEntityTooLarge Code = 413 // RFC 9110, 15.5.14
	TooManyRequests       Code = 429 // RFC 6585, 4

	InternalServerError Code = 500 // RFC 9110, 15.6.1
	ServiceUnavailable  Code = 503 // RFC 9110, 15.6.4
)

// KnownCodes lists every code having a reason phrase.
var KnownCodes = []Code{
	OK, BadRequest, Forbidden, NotFound, MethodNotAllowed, RequestEntityTooLarge,
	TooManyRequests, InternalServerError, ServiceUnavailable,
}

// Text returns a reason phrase for the code. Unknown codes result in an empty string
func Text(code Code) Status {
	switch code {
	case OK:
		return "OK"
	case BadRequest:
		return "Bad Request"
	case Forbidden:
		return "Forbidden"
	case NotFound:
		return "Not Found"
	case MethodNotAllowed:
		return "Method Not Allowed"
	case RequestEntityTooLarge:
		return "Request Entity Too Large"
	case TooManyRequests:
		return "Too Many Requests"
	case InternalServerError:
		return "Internal Server Error"
	case ServiceUnavailable:
		return "Service Unavailable"
	}

	return ""
}

// StringCode returns the code as a decimal string
func StringCode(code Code) string {
	return strconv.Itoa(int(code))
}
