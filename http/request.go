package http

import (
	"github.com/indigo-web/origin/http/method"
	"github.com/indigo-web/origin/http/proto"
)

// Request represents a single parsed HTTP request. It's produced once per connection and
// isn't mutated after the parser returns it
type Request struct {
	// Method is an enum representing the request method.
	Method method.Method
	// Target is the raw request target, exactly as received. It's untrusted and is exposed
	// to scripts as REQUEST_URI.
	Target string
	// Path is the target without the query and fragment parts, still percent-encoded.
	Path string
	// Query is the raw query string without the leading question mark.
	Query string
	// Protocol is either HTTP/1.0 or HTTP/1.1.
	Protocol proto.Proto
	// Headers holds header pairs with lowercased keys and trimmed values. Duplicates are
	// collapsed, the last one wins.
	Headers map[string]string
	// ContentLength is the declared body length, 0 if none was declared.
	ContentLength int
	// Body holds exactly ContentLength bytes.
	Body []byte
}

// NewRequest returns a request with the path split into the path and query parts
func NewRequest(m method.Method, target string, protocol proto.Proto) *Request {
	path, query := splitTarget(target)

	return &Request{
		Method:   m,
		Target:   target,
		Path:     path,
		Query:    query,
		Protocol: protocol,
		Headers:  make(map[string]string),
	}
}

// Header returns the header value by its lowercased key
func (r *Request) Header(key string) (value string, found bool) {
	value, found = r.Headers[key]
	return value, found
}

func splitTarget(target string) (path, query string) {
	for i := 0; i < len(target); i++ {
		switch target[i] {
		case '?':
			path, query = target[:i], target[i+1:]
			for j := 0; j < len(query); j++ {
				if query[j] == '#' {
					return path, query[:j]
				}
			}

			return path, query
		case '#':
			return target[:i], ""
		}
	}

	return target, ""
}
