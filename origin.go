package origin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/indigo-web/origin/config"
	"github.com/indigo-web/origin/internal/admission"
	"github.com/indigo-web/origin/internal/dispatch"
	"github.com/indigo-web/origin/internal/pathlib"
	"github.com/indigo-web/origin/internal/script"
	"github.com/indigo-web/origin/internal/server/http"
	"github.com/indigo-web/origin/internal/server/tcp"
	"github.com/rs/zerolog"
)

type ListenerConstructor func(network, addr string) (net.Listener, error)

// App serves a single document root. Static files are returned as they are, while
// scripts are executed by the configured interpreter
type App struct {
	addr      string
	cfg       *config.Config
	log       zerolog.Logger
	listen    ListenerConstructor
	onStart   func(addr net.Addr)
	onStop    func()
	mu        sync.Mutex
	server    *tcp.Server
	cancel    context.CancelFunc
	admission *admission.State
	stopped   bool
}

// New returns a new App instance listening on the addr once served.
func New(addr string) *App {
	return &App{
		addr:   addr,
		cfg:    config.Default(),
		log:    zerolog.New(os.Stderr).With().Timestamp().Logger(),
		listen: net.Listen,
	}
}

// Tune replaces default config.
func (a *App) Tune(cfg *config.Config) *App {
	a.cfg = cfg
	return a
}

// Logger replaces the default logger, writing JSON lines into the stderr.
func (a *App) Logger(log zerolog.Logger) *App {
	a.log = log
	return a
}

// Listener replaces the net.Listen.
func (a *App) Listener(constructor ListenerConstructor) *App {
	a.listen = constructor
	return a
}

// NotifyOnStart calls the callback as soon as the listener is ready to accept
// connections.
func (a *App) NotifyOnStart(cb func(addr net.Addr)) *App {
	a.onStart = cb
	return a
}

// NotifyOnStop calls the callback at the moment, when the server is down. It's guaranteed,
// that at the moment as the callback is called, the server isn't able to accept any new
// connections and all the clients are already disconnected.
func (a *App) NotifyOnStop(cb func()) *App {
	a.onStop = cb
	return a
}

// Serve starts the server and blocks until it's stopped. Stopping results in nil error.
func (a *App) Serve() error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	resolver, err := pathlib.NewResolver(a.cfg.Static.Root, a.cfg.Static.Deny)
	if err != nil {
		return err
	}

	sock, err := a.listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	executor := script.NewExecutor(a.cfg.Script, resolver)
	dispatcher := dispatch.New(a.cfg, resolver, executor)
	state := admission.NewState(a.cfg.Admission.MaxHandlers, a.cfg.Admission.MaxPerAddress)
	httpServer := http.NewServer(a.cfg, dispatcher, state, a.log)
	server := tcp.NewServer(sock, httpServer.Admit, func(conn net.Conn) {
		httpServer.HandleConn(ctx, conn)
	})

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		_ = sock.Close()
		return nil
	}

	a.server, a.cancel, a.admission = server, cancel, state
	a.mu.Unlock()

	a.log.Info().
		Str("addr", sock.Addr().String()).
		Str("root", resolver.Root()).
		Str("interpreter", a.cfg.Script.Interpreter).
		Msg("serving")

	if a.onStart != nil {
		a.onStart(sock.Addr())
	}

	err = server.Start()
	if a.onStop != nil {
		a.onStop()
	}

	if errors.Is(err, tcp.ErrShutdown) {
		return nil
	}

	return err
}

// Stop closes the listener and all the connections, and kills running interpreters.
// The call isn't blocking, Serve returns as soon as everything is shut down.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true
	if a.server == nil {
		return
	}

	a.cancel()
	if err := a.server.Stop(); err != nil {
		a.log.Warn().Err(err).Msg("stop")
	}
}

// Active returns the number of connections being currently handled.
func (a *App) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.admission == nil {
		return 0
	}

	return a.admission.Active()
}
