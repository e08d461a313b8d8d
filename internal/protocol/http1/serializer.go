package http1

import (
	"io"
	"strconv"

	"github.com/indigo-web/origin/http"
	"github.com/indigo-web/origin/http/method"
	"github.com/indigo-web/origin/http/proto"
	"github.com/indigo-web/origin/http/status"
)

const crlf = "\r\n"

// Serializer renders responses. Every response closes the connection, so there's
// neither keep-alive nor chunked encoding
type Serializer struct {
	server string
	buff   []byte
}

func NewSerializer(server string, buff []byte) *Serializer {
	return &Serializer{
		server: server,
		buff:   buff[:0],
	}
}

// Write renders the head and writes it, then writes the body in a separate call. Bodies
// of responses to HEAD requests are omitted, however Content-Length still reflects them.
// Unknown protocol falls back to HTTP/1.1
func (s *Serializer) Write(w io.Writer, protocol proto.Proto, m method.Method, response *http.Response) error {
	body := response.Body()
	s.buff = s.appendHead(s.buff[:0], protocol, response, len(body))

	if _, err := w.Write(s.buff); err != nil {
		return err
	}

	if m == method.HEAD || len(body) == 0 {
		return nil
	}

	_, err := w.Write(body)
	return err
}

func (s *Serializer) appendHead(buff []byte, protocol proto.Proto, response *http.Response, length int) []byte {
	if protocol == proto.Unknown {
		protocol = proto.HTTP11
	}

	code := response.GetCode()
	buff = append(buff, protocol.String()...)
	buff = strconv.AppendUint(buff, uint64(code), 10)
	buff = append(buff, ' ')
	buff = append(buff, status.Text(code)...)
	buff = append(buff, crlf...)

	buff = appendHeader(buff, "Server", s.server)
	buff = appendHeader(buff, "Connection", "close")

	for _, header := range response.Headers() {
		switch header.Key {
		case "Server", "Connection", "Content-Length":
			continue
		}

		buff = appendHeader(buff, header.Key, header.Value)
	}

	buff = append(buff, "Content-Length: "...)
	buff = strconv.AppendInt(buff, int64(length), 10)
	buff = append(buff, crlf...)

	return append(buff, crlf...)
}

func appendHeader(buff []byte, key, value string) []byte {
	buff = append(buff, key...)
	buff = append(buff, ": "...)
	buff = append(buff, value...)
	return append(buff, crlf...)
}
