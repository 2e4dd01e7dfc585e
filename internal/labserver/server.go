// Package labserver implements the lab servers: the plain, framed and
// slow TCP servers and the text and struct UDP servers.
//
// Every server prints the same console lines as the lab programs through
// a ports.Printer, hands each payload it reads to a ports.MessageSink and
// stops when its context is cancelled.
package labserver

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/internal/ports"
	"github.com/bft-labs/socklab/internal/sink"
	"github.com/bft-labs/socklab/pkg/lifecycle"
	"github.com/bft-labs/socklab/pkg/log"
)

// Config configures a lab server.
type Config struct {
	// Addr is the host:port to bind. Port 0 picks a free port.
	Addr string

	// BufSize is the size of each read. Zero selects the server's lab
	// default.
	BufSize int

	// ReadDelay is the pause after every read (slow server only).
	ReadDelay time.Duration
}

// Deps are the collaborators of a lab server. Nil fields are replaced by
// no-op implementations.
type Deps struct {
	Logger  ports.Logger
	Printer ports.Printer
	Sink    ports.MessageSink
	Now     func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = log.NewNoopLogger()
	}
	if d.Printer == nil {
		d.Printer = discardPrinter{}
	}
	if d.Sink == nil {
		d.Sink = sink.Discard{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

type discardPrinter struct{}

func (discardPrinter) Printf(string, ...any) {}
func (discardPrinter) Println(...any)        {}

// base holds what the stream and datagram servers share: lifecycle,
// readiness signalling and sink delivery.
type base struct {
	name string
	cfg  Config
	deps Deps
	life *lifecycle.Manager

	mu    sync.RWMutex
	addr  net.Addr
	ready chan struct{}
}

func (b *base) setup(name string, cfg Config, defBuf int, deps Deps) {
	if cfg.BufSize <= 0 {
		cfg.BufSize = defBuf
	}
	b.name = name
	b.cfg = cfg
	b.deps = deps.withDefaults()
	b.life = lifecycle.NewManager(b.deps.Logger, nil)
	b.ready = make(chan struct{})
}

// Addr returns the bound address once Ready is closed.
func (b *base) Addr() net.Addr {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.addr
}

// Ready is closed once the server is bound and about to serve.
func (b *base) Ready() <-chan struct{} { return b.ready }

// State returns the server lifecycle state.
func (b *base) State() lifecycle.State { return b.life.State() }

// BufSize returns the effective read size.
func (b *base) BufSize() int { return b.cfg.BufSize }

func (b *base) start() error {
	return b.life.TransitionTo(lifecycle.StateStarting, b.name+" run")
}

func (b *base) bound(addr net.Addr) {
	b.mu.Lock()
	b.addr = addr
	b.mu.Unlock()

	host, port := domain.HostPort(addr)
	b.deps.Printer.Printf("Will listen on %s:%d\n", host, port)
	b.deps.Logger.Info("listening", log.String("server", b.name), log.Addr("addr", addr), log.Int("buf", b.cfg.BufSize))

	_ = b.life.TransitionTo(lifecycle.StateRunning, "bound")
	close(b.ready)
}

// finish moves the lifecycle to its terminal state for err.
func (b *base) finish(err error) {
	if err != nil {
		_ = b.life.TransitionTo(lifecycle.StateCrashed, err.Error())
		return
	}
	_ = b.life.TransitionTo(lifecycle.StateStopping, "context done")
	_ = b.life.TransitionTo(lifecycle.StateStopped, "closed")
}

func (b *base) deliver(ctx context.Context, msg domain.Message) {
	if err := b.deps.Sink.Deliver(ctx, msg); err != nil {
		b.deps.Logger.Warn("sink delivery failed",
			log.String("session", msg.Session),
			log.Int("seq", msg.Seq),
			log.Err(err),
		)
	}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
