package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dchest/uniuri"
	"github.com/indigo-web/origin/config"
	"github.com/indigo-web/origin/http"
	"github.com/indigo-web/origin/http/method"
	"github.com/indigo-web/origin/http/proto"
	"github.com/indigo-web/origin/http/status"
	"github.com/indigo-web/origin/internal/admission"
	"github.com/indigo-web/origin/internal/bounded"
	"github.com/indigo-web/origin/internal/protocol/http1"
	"github.com/rs/zerolog"
)

const connIDLength = 8

// Dispatcher builds a response for a valid request.
type Dispatcher interface {
	Dispatch(ctx context.Context, request *http.Request) *http.Response
}

// Server processes exactly one request per connection: read, parse, dispatch, respond
// and close
type Server struct {
	cfg        *config.Config
	parser     *http1.Parser
	dispatcher Dispatcher
	admission  *admission.State
	log        zerolog.Logger
}

func NewServer(cfg *config.Config, dispatcher Dispatcher, state *admission.State, log zerolog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		parser:     http1.NewParser(cfg.Body.MaxSize),
		dispatcher: dispatcher,
		admission:  state,
		log:        log,
	}
}

// Admit is called for every accepted connection before any byte is read from it.
// Connections exceeding the limits are answered right away and closed
func (s *Server) Admit(conn net.Conn) (release func(), ok bool) {
	host := admission.Host(conn.RemoteAddr())
	release, verdict := s.admission.Admit(host)

	switch verdict {
	case admission.Admitted:
		return release, true
	case admission.Busy:
		s.reject(conn, verdict, status.ErrServiceUnavailable)
	case admission.RateLimited:
		s.reject(conn, verdict, status.ErrTooManyRequests)
	}

	return nil, false
}

func (s *Server) reject(conn net.Conn, verdict admission.Verdict, err error) {
	s.log.Warn().
		Str("remote", conn.RemoteAddr().String()).
		Stringer("verdict", verdict).
		Int("active", s.admission.Active()).
		Msg("connection rejected")

	response := http.Error(err).Header("Retry-After", "1")
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	serializer := http1.NewSerializer(s.cfg.Server.Name, make([]byte, 0, 256))
	if werr := serializer.Write(conn, proto.HTTP11, method.Unknown, response); werr != nil {
		s.log.Debug().Err(werr).Msg("failed to send the rejection")
	}

	_ = conn.Close()
}

// HandleConn runs the whole pipeline for the connection and closes it. Nothing, including
// a panic, escapes it
func (s *Server) HandleConn(ctx context.Context, conn net.Conn) {
	log := s.log.With().
		Str("conn", uniuri.NewLen(connIDLength)).
		Str("remote", conn.RemoteAddr().String()).
		Logger()
	ctx = log.WithContext(ctx)
	start := time.Now()

	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Debug().Err(err).Msg("close")
		}
	}()

	serializer := http1.NewSerializer(s.cfg.Server.Name, make([]byte, 0, 512))

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Msg("handler panicked")
			_ = serializer.Write(conn, proto.HTTP11, method.Unknown, http.Error(status.ErrInternalServerError))
		}
	}()

	request, response := s.serve(ctx, conn)
	if response == nil {
		return
	}

	m, protocol, target := method.Unknown, proto.HTTP11, ""
	if request != nil {
		m, protocol, target = request.Method, request.Protocol, request.Target
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.NET.ReadTimeout.Std()))
	err := serializer.Write(conn, protocol, m, response)
	if err != nil {
		log.Warn().Err(err).Msg("failed to send the response")
	}

	log.Info().
		Stringer("method", m).
		Str("target", target).
		Uint16("status", uint16(response.GetCode())).
		Int("bytes", len(response.Body())).
		Dur("took", time.Since(start)).
		Bool("sent", err == nil).
		Msg("request")
}

// serve returns nil response if there's no request at all, so nothing must be sent back.
// The returned request is nil if it couldn't be parsed
func (s *Server) serve(ctx context.Context, conn net.Conn) (*http.Request, *http.Response) {
	log := zerolog.Ctx(ctx)
	reader := http1.NewReader(s.cfg.NET.ReadBufferSize, s.cfg.NET.ReadTimeout.Std(), s.cfg.NET.MaxRequestSize)

	data, err := reader.ReadHead(conn)
	if len(data) == 0 {
		log.Debug().Err(err).Msg("empty request")
		return nil, nil
	}

	if errors.Is(err, status.ErrRequestTooLarge) {
		log.Warn().Int("size", len(data)).Msg("request head is too large")
		return nil, http.Error(err)
	}

	if err != nil && !bounded.IsTimeout(err) {
		log.Debug().Err(err).Msg("read interrupted")
	}

	request, rest, err := s.parser.ParseHead(data)
	if err != nil {
		return nil, s.badRequest(log, err)
	}

	if request.ContentLength > len(rest) {
		rest, err = reader.ReadBody(conn, rest, request.ContentLength)
		if err != nil {
			log.Debug().Err(err).Int("want", request.ContentLength).Int("got", len(rest)).Msg("body read interrupted")
		}
	}

	if err = http1.TakeBody(request, rest); err != nil {
		return request, s.badRequest(log, err)
	}

	return request, s.dispatcher.Dispatch(ctx, request)
}

func (s *Server) badRequest(log *zerolog.Logger, err error) *http.Response {
	log.Debug().Err(err).Msg("invalid request")
	response := http.Error(err)

	if status.CodeOf(err) == status.MethodNotAllowed {
		response.Header("Allow", method.Allowed)
	}

	return response
}
