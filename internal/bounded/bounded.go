// Package bounded implements waiting for data with a deadline. It's used to read
// both the requests from connections and the output of interpreters, so neither
// of them is ever able to block a handler indefinitely.
package bounded

import (
	"errors"
	"io"
	"os"
	"time"
)

// Source is anything supporting read deadlines: net.Conn and pollable *os.File
// (e.g. pipes) do.
type Source interface {
	io.Reader
	SetReadDeadline(time.Time) error
}

// ErrLimitReached is returned by Collect when the limit was hit before the stop
// condition was satisfied.
var ErrLimitReached = errors.New("limit reached")

// Read waits until the source has data or the deadline passes, and reads whatever is
// available into buff.
func Read(src Source, buff []byte, deadline time.Time) (int, error) {
	if err := src.SetReadDeadline(deadline); err != nil && !errors.Is(err, os.ErrNoDeadline) {
		return 0, err
	}

	return src.Read(buff)
}

// IsTimeout reports whether the error was caused by the deadline being exceeded
func IsTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}

// Until reports whether enough data has been collected.
type Until func(collected []byte) bool

// Collector accumulates data from a source until a condition is met, a limit is
// reached, the source is exhausted or stays silent until the deadline.
type Collector struct {
	buff []byte
}

// NewCollector returns a collector reading at most readSize bytes at a time
func NewCollector(readSize int) *Collector {
	return &Collector{buff: make([]byte, readSize)}
}

// Collect appends data read from the source to dst. The deadline is absolute and applies
// to every wait. Data collected so far is always returned: on timeout or a read error it
// comes along with the error, and the stop condition being met results in no error at
// all. Exceeding the limit truncates the data and results in ErrLimitReached. A nil stop
// condition means reading until io.EOF, which isn't reported as an error.
func (c *Collector) Collect(src Source, dst []byte, limit int, deadline time.Time, until Until) ([]byte, error) {
	for {
		if until != nil && until(dst) {
			return dst, nil
		}

		if len(dst) >= limit {
			return dst[:limit], ErrLimitReached
		}

		buff := c.buff
		if rest := limit - len(dst); rest < len(buff) {
			buff = buff[:rest]
		}

		n, err := Read(src, buff, deadline)
		dst = append(dst, buff[:n]...)

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			if until == nil || until(dst) {
				return dst, nil
			}

			return dst, err
		default:
			return dst, err
		}
	}
}
