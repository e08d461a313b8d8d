package http1

import (
	"strconv"
	"strings"

	"github.com/indigo-web/origin/http"
	"github.com/indigo-web/origin/http/method"
	"github.com/indigo-web/origin/http/proto"
	"github.com/indigo-web/origin/http/status"
	"github.com/indigo-web/utils/uf"
)

// Parser turns raw bytes into requests. It's stateless, so a single instance may be
// shared among all the connections
type Parser struct {
	maxBody int
}

func NewParser(maxBody int) *Parser {
	return &Parser{maxBody: maxBody}
}

// Parse parses the request, taking the body from the bytes following the head. The data
// must not be modified afterwards, as the request refers to it
func (p *Parser) Parse(data []byte) (*http.Request, error) {
	request, rest, err := p.ParseHead(data)
	if err != nil {
		return nil, err
	}

	return request, TakeBody(request, rest)
}

// ParseHead parses the request line and headers. The bytes following the head are
// returned as they are. The first violated rule fails the whole request
func (p *Parser) ParseHead(data []byte) (request *http.Request, rest []byte, err error) {
	head := uf.B2S(data)

	line, head, found := nextLine(head)
	if !found {
		return nil, nil, status.ErrIncompleteHead
	}

	request, err = parseRequestLine(line)
	if err != nil {
		return nil, nil, err
	}

	for {
		line, head, found = nextLine(head)
		if !found {
			return nil, nil, status.ErrIncompleteHead
		}

		if len(line) == 0 {
			break
		}

		colon := strings.IndexByte(line, ':')
		if colon == -1 {
			return nil, nil, status.ErrBadHeader
		}

		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		if len(key) == 0 {
			return nil, nil, status.ErrBadHeader
		}

		request.Headers[key] = strings.TrimSpace(line[colon+1:])
	}

	if err = p.contentLength(request); err != nil {
		return nil, nil, err
	}

	return request, data[len(data)-len(head):], nil
}

func (p *Parser) contentLength(request *http.Request) error {
	value, found := request.Header("content-length")
	if !found {
		return nil
	}

	length, err := strconv.ParseUint(value, 10, 63)
	if err != nil {
		return status.ErrBadContentLength
	}

	if length > uint64(p.maxBody) {
		return status.ErrBodyTooLarge
	}

	request.ContentLength = int(length)
	return nil
}

// TakeBody takes exactly request.ContentLength bytes of the rest as the body. Having
// less than declared is an error, as the body must never be silently truncated
func TakeBody(request *http.Request, rest []byte) error {
	if request.ContentLength == 0 {
		return nil
	}

	if len(rest) < request.ContentLength {
		return status.ErrIncompleteBody
	}

	request.Body = rest[:request.ContentLength:request.ContentLength]
	return nil
}

func parseRequestLine(line string) (*http.Request, error) {
	tokens := strings.Fields(line)
	if len(tokens) != 3 {
		return nil, status.ErrBadRequestLine
	}

	m := method.Parse(tokens[0])
	if m == method.Unknown {
		return nil, status.ErrMethodNotAllowed
	}

	protocol := proto.FromBytes(uf.S2B(tokens[2]))
	if protocol == proto.Unknown {
		return nil, status.ErrUnsupportedProtocol
	}

	return http.NewRequest(m, tokens[1], protocol), nil
}

// nextLine cuts the line till the LF, stripping the trailing CR. Data without LF is
// considered to be an incomplete line
func nextLine(data string) (line, rest string, found bool) {
	lf := strings.IndexByte(data, '\n')
	if lf == -1 {
		return "", data, false
	}

	line, rest = data[:lf], data[lf+1:]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}

	return line, rest, true
}
