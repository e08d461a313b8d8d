package origin

import (
	"bufio"
	"fmt"
	"io"
	"net"
	stdhttp "net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/indigo-web/origin/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const index = "<html><body>hello</body></html>"

func getConfig(t *testing.T) *config.Config {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte(index), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data.json"), []byte(`{"a":1}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("SECRET=1"), 0o644))

	cfg := config.Default()
	cfg.Static.Root = root
	cfg.NET.ReadTimeout = config.Duration(2 * time.Second)
	cfg.Script.Timeout = config.Duration(time.Second)
	cfg.Script.ReapGrace = config.Duration(200 * time.Millisecond)

	return cfg
}

func run(t *testing.T, cfg *config.Config) (*App, string) {
	started := make(chan net.Addr, 1)
	served := make(chan error, 1)

	app := New("127.0.0.1:0").
		Tune(cfg).
		Logger(zerolog.Nop()).
		NotifyOnStart(func(addr net.Addr) {
			started <- addr
		})

	go func() {
		served <- app.Serve()
	}()

	var addr net.Addr
	select {
	case addr = <-started:
	case err := <-served:
		require.FailNow(t, "server didn't start", err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "server didn't start in time")
	}

	t.Cleanup(func() {
		app.Stop()
		select {
		case err := <-served:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			require.FailNow(t, "server didn't stop in time")
		}
	})

	return app, addr.String()
}

func send(t *testing.T, addr, request string) (*stdhttp.Response, []byte) {
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	_, err = conn.Write([]byte(request))
	require.NoError(t, err)

	m, _, _ := strings.Cut(request, " ")
	resp, err := stdhttp.ReadResponse(bufio.NewReader(conn), &stdhttp.Request{Method: m})
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, body
}

func get(t *testing.T, addr, path string) (*stdhttp.Response, []byte) {
	return send(t, addr, fmt.Sprintf("GET %s HTTP/1.1\r\nHost: localhost\r\n\r\n", path))
}

func TestApp(t *testing.T) {
	_, addr := run(t, getConfig(t))

	t.Run("index", func(t *testing.T) {
		resp, body := get(t, addr, "/")
		require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
		require.Equal(t, index, string(body))
		require.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"))
		require.Equal(t, "close", resp.Header.Get("Connection"))
		require.Equal(t, "origin", resp.Header.Get("Server"))
	})

	t.Run("static", func(t *testing.T) {
		resp, body := get(t, addr, "/data.json")
		require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
		require.Equal(t, `{"a":1}`, string(body))
		require.Equal(t, "7", resp.Header.Get("Content-Length"))
		require.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
	})

	t.Run("HEAD", func(t *testing.T) {
		resp, body := send(t, addr, "HEAD /data.json HTTP/1.1\r\n\r\n")
		require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
		require.Empty(t, body)
	})

	t.Run("traversal", func(t *testing.T) {
		resp, _ := get(t, addr, "/../etc/passwd")
		require.Equal(t, stdhttp.StatusForbidden, resp.StatusCode)

		resp, _ = get(t, addr, "/%2e%2e/%2e%2e/etc/passwd")
		require.Equal(t, stdhttp.StatusForbidden, resp.StatusCode)
	})

	t.Run("forbidden name", func(t *testing.T) {
		resp, body := get(t, addr, "/.env")
		require.Equal(t, stdhttp.StatusForbidden, resp.StatusCode)
		require.NotContains(t, string(body), "SECRET")
	})

	t.Run("not found", func(t *testing.T) {
		resp, body := get(t, addr, "/missing.txt")
		require.Equal(t, stdhttp.StatusNotFound, resp.StatusCode)
		require.Contains(t, string(body), "404 Not Found")
	})

	t.Run("body too large", func(t *testing.T) {
		resp, _ := send(t, addr, "POST / HTTP/1.1\r\nContent-Length: 999999999\r\n\r\n")
		require.Equal(t, stdhttp.StatusBadRequest, resp.StatusCode)
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp, _ := send(t, addr, "DELETE / HTTP/1.1\r\n\r\n")
		require.Equal(t, stdhttp.StatusMethodNotAllowed, resp.StatusCode)
		require.Equal(t, "GET, HEAD, POST", resp.Header.Get("Allow"))
	})

	t.Run("empty request", func(t *testing.T) {
		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.(*net.TCPConn).CloseWrite())
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		data, err := io.ReadAll(conn)
		require.NoError(t, err)
		require.Empty(t, data)
	})
}

func TestAdmission(t *testing.T) {
	cfg := getConfig(t)
	cfg.NET.ReadTimeout = config.Duration(10 * time.Second)
	app, addr := run(t, cfg)
	limit := cfg.Admission.MaxPerAddress

	held := make([]net.Conn, 0, limit)
	defer func() {
		for _, conn := range held {
			_ = conn.Close()
		}
	}()

	for range limit {
		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		held = append(held, conn)
	}

	require.Eventually(t, func() bool {
		return app.Active() == limit
	}, 5*time.Second, 10*time.Millisecond)

	// rejected connections are answered before anything is read, so nothing is sent
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	resp, err := stdhttp.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	require.Equal(t, stdhttp.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))
	require.NoError(t, resp.Body.Close())
	require.NoError(t, conn.Close())

	for _, conn := range held {
		require.NoError(t, conn.Close())
	}
	held = held[:0]

	require.Eventually(t, func() bool {
		return app.Active() == 0
	}, 5*time.Second, 10*time.Millisecond)

	resp, body := get(t, addr, "/")
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	require.Equal(t, index, string(body))
}

func TestStop(t *testing.T) {
	t.Run("before serve", func(t *testing.T) {
		app := New("127.0.0.1:0").Tune(getConfig(t)).Logger(zerolog.Nop())
		app.Stop()
		require.NoError(t, app.Serve())
	})

	t.Run("bad root", func(t *testing.T) {
		cfg := getConfig(t)
		cfg.Static.Root = filepath.Join(cfg.Static.Root, "nonexistent")
		require.Error(t, New("127.0.0.1:0").Tune(cfg).Logger(zerolog.Nop()).Serve())
	})

	t.Run("stop callback", func(t *testing.T) {
		stopped := make(chan struct{})
		cfg := getConfig(t)
		app := New("127.0.0.1:0").
			Tune(cfg).
			Logger(zerolog.Nop()).
			NotifyOnStart(func(net.Addr) {}).
			NotifyOnStop(func() {
				close(stopped)
			})

		served := make(chan error, 1)
		go func() {
			served <- app.Serve()
		}()

		require.Eventually(t, func() bool {
			app.mu.Lock()
			defer app.mu.Unlock()
			return app.server != nil
		}, 5*time.Second, 10*time.Millisecond)

		app.Stop()
		require.NoError(t, <-served)
		<-stopped
	})
}
