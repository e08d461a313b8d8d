package method

type Method uint8

const (
	Unknown Method = iota
	GET
	HEAD
	POST
)

// List contains all the supported HTTP methods, sorted by their integer value
var List = []Method{GET, HEAD, POST}

// Allowed is a ready to use value for the Allow header
const Allowed = "GET, HEAD, POST"

func Parse(str string) Method {
	switch str {
	case "GET":
		return GET
	case "HEAD":
		return HEAD
	case "POST":
		return POST
	}

	return Unknown
}

func (m Method) String() string {
	switch m {
	case GET:
		return "GET"
	case HEAD:
		return "HEAD"
	case POST:
		return "POST"
	}

	return "UNKNOWN"
}
