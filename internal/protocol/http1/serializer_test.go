package http1

import (
	"bytes"
	"errors"
	"testing"

	"github.com/indigo-web/origin/http"
	"github.com/indigo-web/origin/http/method"
	"github.com/indigo-web/origin/http/mime"
	"github.com/indigo-web/origin/http/proto"
	"github.com/indigo-web/origin/http/status"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

type countingWriter struct {
	bytes.Buffer
	calls int
}

func (c *countingWriter) Write(b []byte) (int, error) {
	c.calls++
	return c.Buffer.Write(b)
}

func TestSerializer(t *testing.T) {
	serializer := NewSerializer("origin", make([]byte, 0, 128))

	t.Run("text body", func(t *testing.T) {
		var out countingWriter
		response := http.NewResponse().ContentType(mime.Plain).String("Hello, world!")
		require.NoError(t, serializer.Write(&out, proto.HTTP11, method.GET, response))

		want := "HTTP/1.1 200 OK\r\n" +
			"Server: origin\r\n" +
			"Connection: close\r\n" +
			"Content-Type: text/plain; charset=utf-8\r\n" +
			"Content-Length: 13\r\n" +
			"\r\n" +
			"Hello, world!"
		require.Equal(t, want, out.String())
		require.Equal(t, 2, out.calls)
	})

	t.Run("binary body", func(t *testing.T) {
		var out bytes.Buffer
		body := []byte{0, 1, 2, 0xff}
		response := http.NewResponse().ContentType(mime.PNG).Bytes(body)
		require.NoError(t, serializer.Write(&out, proto.HTTP10, method.GET, response))
		require.True(t, bytes.HasPrefix(out.Bytes(), []byte("HTTP/1.0 200 OK\r\n")))
		require.Contains(t, out.String(), "Content-Length: 4\r\n\r\n")
		require.True(t, bytes.HasSuffix(out.Bytes(), body))
	})

	t.Run("HEAD omits the body", func(t *testing.T) {
		var out bytes.Buffer
		response := http.NewResponse().String("Hello")
		require.NoError(t, serializer.Write(&out, proto.HTTP11, method.HEAD, response))
		require.Equal(t, "HTTP/1.1 200 OK\r\nServer: origin\r\nConnection: close\r\nContent-Length: 5\r\n\r\n", out.String())
	})

	t.Run("unknown protocol and reserved headers", func(t *testing.T) {
		var out bytes.Buffer
		response := http.Error(status.ErrServiceUnavailable).
			Header("Connection", "keep-alive").
			Header("Content-Length", "1000")
		require.NoError(t, serializer.Write(&out, proto.Unknown, method.Unknown, response))
		require.True(t, bytes.HasPrefix(out.Bytes(), []byte("HTTP/1.1 503 Service Unavailable\r\n")))
		require.NotContains(t, out.String(), "keep-alive")
		require.NotContains(t, out.String(), "1000")
		require.Equal(t, 1, bytes.Count(out.Bytes(), []byte("Connection: ")))
	})

	t.Run("write failure", func(t *testing.T) {
		require.Error(t, serializer.Write(failingWriter{}, proto.HTTP11, method.GET, http.NewResponse().String("x")))
	})
}
