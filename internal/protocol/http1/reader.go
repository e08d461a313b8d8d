package http1

import (
	"bytes"
	"errors"
	"time"

	"github.com/indigo-web/origin/http/status"
	"github.com/indigo-web/origin/internal/bounded"
)

var headTerminator = []byte("\r\n\r\n")

// Reader pulls requests off a connection. Every read is bounded in time and size, so
// a misbehaving client can't hold the handler forever
type Reader struct {
	collector *bounded.Collector
	timeout   time.Duration
	maxHead   int
}

func NewReader(readBufferSize int, timeout time.Duration, maxHead int) *Reader {
	return &Reader{
		collector: bounded.NewCollector(readBufferSize),
		timeout:   timeout,
		maxHead:   maxHead,
	}
}

// ReadHead reads until the head is terminated by an empty line. Whatever was received
// is returned, including the bytes following the head. If the limit was reached without
// seeing the terminator, status.ErrRequestTooLarge is returned. Timeouts and I/O errors
// are returned along with the data collected before they happened, empty data
// meaning there's no request at all
func (r *Reader) ReadHead(src bounded.Source) ([]byte, error) {
	data, err := r.collector.Collect(src, nil, r.maxHead, time.Now().Add(r.timeout), isHeadComplete)
	if errors.Is(err, bounded.ErrLimitReached) {
		return data, status.ErrRequestTooLarge
	}

	return data, err
}

// ReadBody reads from the source until rest holds at least n bytes. Returned data may
// be shorter if the client went silent or disconnected
func (r *Reader) ReadBody(src bounded.Source, rest []byte, n int) ([]byte, error) {
	if len(rest) >= n {
		return rest, nil
	}

	enough := func(collected []byte) bool {
		return len(collected) >= n
	}

	return r.collector.Collect(src, rest, n, time.Now().Add(r.timeout), enough)
}

func isHeadComplete(data []byte) bool {
	return bytes.Contains(data, headTerminator)
}
