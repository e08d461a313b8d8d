package http

import (
	"github.com/indigo-web/origin/http/mime"
	"github.com/indigo-web/origin/http/status"
	"github.com/indigo-web/utils/uf"
)

type Header struct {
	Key, Value string
}

// Response is built by the dispatcher and consumed once by the serializer. The body is
// either a text or an opaque byte buffer, never both.
type Response struct {
	code     status.Code
	headers  []Header
	text     string
	binary   []byte
	isBinary bool
}

// NewResponse returns a new 200 OK response with an empty text body
func NewResponse() *Response {
	return &Response{
		code:    status.OK,
		headers: make([]Header, 0, 4),
	}
}

// Code sets the response status code
func (r *Response) Code(code status.Code) *Response {
	r.code = code
	return r
}

// Header sets the header. Setting an already present key overrides its value
func (r *Response) Header(key, value string) *Response {
	for i, header := range r.headers {
		if header.Key == key {
			r.headers[i].Value = value
			return r
		}
	}

	r.headers = append(r.headers, Header{Key: key, Value: value})
	return r
}

// ContentType is a shorthand for setting the Content-Type header
func (r *Response) ContentType(m mime.MIME) *Response {
	return r.Header("Content-Type", mime.WithCharset(m))
}

// String sets a text body, dropping the binary one if any
func (r *Response) String(body string) *Response {
	r.text, r.binary, r.isBinary = body, nil, false
	return r
}

// Bytes sets an opaque binary body, dropping the text one if any
func (r *Response) Bytes(body []byte) *Response {
	r.text, r.binary, r.isBinary = "", body, true
	return r
}

func (r *Response) GetCode() status.Code {
	return r.code
}

func (r *Response) Headers() []Header {
	return r.headers
}

// GetHeader returns a value of the first header with the key
func (r *Response) GetHeader(key string) (string, bool) {
	for _, header := range r.headers {
		if header.Key == key {
			return header.Value, true
		}
	}

	return "", false
}

func (r *Response) IsBinary() bool {
	return r.isBinary
}

// Body returns the body bytes independently of its kind. Text bodies aren't copied
func (r *Response) Body() []byte {
	if r.isBinary {
		return r.binary
	}

	return uf.S2B(r.text)
}

// Error returns a response with the error's status code and a minimal HTML page
func Error(err error) *Response {
	code := status.CodeOf(err)

	return NewResponse().
		Code(code).
		ContentType(mime.HTML).
		String(errorPage(code))
}

func errorPage(code status.Code) string {
	title := status.StringCode(code) + " " + string(status.Text(code))

	return "<html><body><h1>" + title + "</h1></body></html>"
}
