package tcp

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ErrShutdown is returned by Start after the server was stopped.
var ErrShutdown = errors.New("server is shut down")

// Admit decides synchronously, right after the connection was accepted, whether it'll be
// handled. Rejected connections are expected to be already answered and closed by it.
// Admitted ones hold the release function until their handler returns.
type Admit func(conn net.Conn) (release func(), ok bool)

// OnConn handles a single connection. It runs in its own goroutine.
type OnConn func(conn net.Conn)

type Server struct {
	sock     net.Listener
	admit    Admit
	onConn   OnConn
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	shutdown atomic.Bool
}

func NewServer(sock net.Listener, admit Admit, onConn OnConn) *Server {
	return &Server{
		sock:   sock,
		admit:  admit,
		onConn: onConn,
		conns:  map[net.Conn]struct{}{},
	}
}

// Start runs the accept loop. It returns after the listener was closed and all the
// connection handlers returned
func (s *Server) Start() error {
	var backoff time.Duration

	for {
		conn, err := s.sock.Accept()
		if err != nil {
			if s.shutdown.Load() || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()

				if s.shutdown.Load() {
					return ErrShutdown
				}

				return err
			}

			// most likely the process is out of file descriptors. There's nothing to do
			// but to wait until some connections are closed
			backoff = nextBackoff(backoff)
			time.Sleep(backoff)
			continue
		}

		backoff = 0
		release, ok := s.admit(conn)
		if !ok {
			continue
		}

		s.track(conn)
		s.wg.Add(1)
		go s.connHandler(conn, release)
	}
}

// Addr returns the listener's network address
func (s *Server) Addr() net.Addr {
	return s.sock.Addr()
}

func (s *Server) stopListener() error {
	s.shutdown.Store(true)

	return s.sock.Close()
}

// Stop shuts listener and ALL the connections down
func (s *Server) Stop() error {
	err := s.stopListener()

	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	return err
}

// GracefulShutdown stops a listener, but leaving all the connections free to end their
// lives peacefully
func (s *Server) GracefulShutdown() error {
	return s.stopListener()
}

func (s *Server) connHandler(conn net.Conn, release func()) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer release()

	s.onConn(conn)
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func nextBackoff(current time.Duration) time.Duration {
	const (
		initial = 5 * time.Millisecond
		maximal = time.Second
	)

	if current == 0 {
		return initial
	}

	return min(current*2, maximal)
}
