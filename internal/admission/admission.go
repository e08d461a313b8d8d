package admission

import (
	"net"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

type Verdict uint8

const (
	Admitted Verdict = iota
	// Busy means the global handlers limit is reached.
	Busy
	// RateLimited means the per-address connections limit is reached.
	RateLimited
)

func (v Verdict) String() string {
	switch v {
	case Admitted:
		return "admitted"
	case Busy:
		return "busy"
	case RateLimited:
		return "rate-limited"
	}

	return "unknown"
}

// State bounds the number of simultaneously running handlers, both globally and per
// remote address. It's shared among all the handlers of a server. Per-address counters
// are mutated exclusively via the map's Compute, which locks the entry for the whole
// check-and-update, and entries reaching zero are removed, so the map holds only
// addresses having live connections
type State struct {
	active        atomic.Int64
	perAddress    *xsync.MapOf[string, int]
	maxHandlers   int64
	maxPerAddress int
}

func NewState(maxHandlers, maxPerAddress int) *State {
	return &State{
		perAddress:    xsync.NewMapOf[string, int](),
		maxHandlers:   int64(maxHandlers),
		maxPerAddress: maxPerAddress,
	}
}

// Admit decides whether a connection from the address may be handled. Admitted
// connections are counted and MUST be released via the returned function exactly once,
// the function being a no-op for any other verdict
func (s *State) Admit(addr string) (release func(), verdict Verdict) {
	if !s.acquireGlobal() {
		return nop, Busy
	}

	if !s.acquireAddress(addr) {
		s.active.Add(-1)
		return nop, RateLimited
	}

	var released atomic.Bool

	return func() {
		if released.Swap(true) {
			return
		}

		s.releaseAddress(addr)
		s.active.Add(-1)
	}, Admitted
}

// Active returns the number of currently admitted connections
func (s *State) Active() int {
	return int(s.active.Load())
}

// Connections returns the number of currently admitted connections from the address
func (s *State) Connections(addr string) int {
	n, _ := s.perAddress.Load(addr)
	return n
}

// Addresses returns the number of addresses having at least one admitted connection
func (s *State) Addresses() int {
	return s.perAddress.Size()
}

func (s *State) acquireGlobal() bool {
	for {
		current := s.active.Load()
		if current >= s.maxHandlers {
			return false
		}

		if s.active.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (s *State) acquireAddress(addr string) (admitted bool) {
	s.perAddress.Compute(addr, func(current int, loaded bool) (int, bool) {
		if current >= s.maxPerAddress {
			// a missing entry must not be created by a rejection
			return current, !loaded
		}

		admitted = true
		return current + 1, false
	})

	return admitted
}

func (s *State) releaseAddress(addr string) {
	s.perAddress.Compute(addr, func(current int, loaded bool) (int, bool) {
		if !loaded || current <= 1 {
			return 0, true
		}

		return current - 1, false
	})
}

// Host strips the port from the remote address, so connections from different ports
// of the same host are accounted together
func Host(addr net.Addr) string {
	if addr == nil {
		return ""
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}

	return host
}

func nop() {}
