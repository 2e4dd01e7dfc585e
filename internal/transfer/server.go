package transfer

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/internal/ports"
	"github.com/bft-labs/socklab/pkg/lifecycle"
	"github.com/bft-labs/socklab/pkg/log"
)

// ServerConfig configures a transfer server.
type ServerConfig struct {
	// Addr is the command channel host:port.
	Addr string
	// Root is the directory clients are confined to.
	Root string
	// TLS enables TLS on the command channel when set.
	TLS *tls.Config

	DataTimeout time.Duration
	MaxFileSize int64
}

// ServerDeps are the server's collaborators.
type ServerDeps struct {
	Logger      ports.Logger
	Printer     ports.Printer
	Credentials *CredentialStore
}

// Server accepts transfer sessions, one goroutine per connection.
type Server struct {
	cfg      ServerConfig
	deps     ServerDeps
	root     *Root
	life     *lifecycle.Manager
	inflight *inflight

	mu    sync.RWMutex
	addr  net.Addr
	ready chan struct{}
}

// NewServer validates cfg and returns a server ready to Run.
func NewServer(cfg ServerConfig, deps ServerDeps) (*Server, error) {
	if deps.Credentials == nil {
		return nil, errors.New("transfer: credential store is required")
	}
	if deps.Logger == nil {
		deps.Logger = log.NewNoopLogger()
	}
	if deps.Printer == nil {
		deps.Printer = ports.NewWriterPrinter(io.Discard)
	}
	if cfg.DataTimeout <= 0 {
		cfg.DataTimeout = DefaultDataTimeout
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	root, err := NewRoot(cfg.Root)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:      cfg,
		deps:     deps,
		root:     root,
		life:     lifecycle.NewManager(deps.Logger, nil),
		inflight: newInflight(),
		ready:    make(chan struct{}),
	}, nil
}

// Addr returns the command channel address once Ready is closed.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Ready is closed once the server listens.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// State returns the server lifecycle state.
func (s *Server) State() lifecycle.State { return s.life.State() }

// Stop cancels a running server.
func (s *Server) Stop() { s.life.Cancel() }

// Run serves until ctx is cancelled or accepting fails. Open sessions
// are closed and waited for before Run returns.
func (s *Server) Run(ctx context.Context) (err error) {
	if err := s.life.TransitionTo(lifecycle.StateStarting, "run"); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = s.life.TransitionTo(lifecycle.StateCrashed, err.Error())
			return
		}
		_ = s.life.TransitionTo(lifecycle.StateStopped, "closed")
	}()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return domain.NewStepError(domain.StepBind, err)
	}
	if s.cfg.TLS != nil {
		ln = tls.NewListener(ln, s.cfg.TLS)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.life.SetCancel(cancel)

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	host, port := domain.HostPort(ln.Addr())
	s.deps.Printer.Printf("Server listening on %s:%d\n", host, port)
	s.deps.Logger.Info("transfer server listening",
		log.Addr("addr", ln.Addr()),
		log.String("root", s.root.Dir()),
		log.Bool("tls", s.cfg.TLS != nil),
		log.Int("users", s.deps.Credentials.Len()),
	)
	_ = s.life.TransitionTo(lifecycle.StateRunning, "listening")
	close(s.ready)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		<-gctx.Done()
		ln.Close()
		return nil
	})
	g.Go(func() error {
		if err := s.deps.Credentials.Watch(gctx); err != nil {
			// Serving continues with the credentials already loaded.
			s.deps.Logger.Warn("credential watch disabled", log.Err(err))
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return s.acceptLoop(gctx, ln)
	})
	err = g.Wait()

	_ = s.life.TransitionTo(lifecycle.StateStopping, "draining sessions")
	if werr := s.life.WaitWithTimeout(lifecycle.ShutdownTimeout); werr != nil && err == nil {
		err = werr
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return domain.NewStepError(domain.StepAccept, err)
		}
		s.life.Go(func() { s.serve(ctx, conn) })
	}
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	sess := &session{
		srv:    s,
		id:     uuid.NewString(),
		conn:   conn,
		peer:   domain.Peer(conn.RemoteAddr()),
		cwd:    "/",
		logger: s.deps.Logger,
	}
	p := s.deps.Printer
	p.Printf("Connection from %s\n", sess.peer)

	if tc, ok := conn.(*tls.Conn); ok {
		hctx, cancel := context.WithTimeout(ctx, s.cfg.DataTimeout)
		err := tc.HandshakeContext(hctx)
		cancel()
		if err != nil {
			s.deps.Logger.Warn("tls handshake failed", log.String("peer", sess.peer), log.Err(err))
			p.Printf("Connection with %s closed\n", sess.peer)
			return
		}
	}

	if err := sess.authenticate(); err != nil {
		s.deps.Logger.Info("authentication failed", log.String("peer", sess.peer), log.Err(err))
		p.Printf("User authentication from %s failed!\n", sess.peer)
		p.Printf("Connection with %s closed\n", sess.peer)
		return
	}
	p.Printf("User authentication from %s successful!\n", sess.peer)

	data, err := sess.negotiateData(ctx)
	if err != nil {
		s.deps.Logger.Warn("data channel failed", log.String("peer", sess.peer), log.Err(err))
		p.Printf("Failed to establish Data Channel connection with %s\n", sess.peer)
		p.Printf("Connection with %s closed\n", sess.peer)
		return
	}
	defer data.Close()
	stopData := context.AfterFunc(ctx, func() { data.Close() })
	defer stopData()
	sess.data = data
	p.Printf("Data channel established with %s\n", sess.peer)

	if err := sess.serveCommands(ctx); err != nil && ctx.Err() == nil {
		s.deps.Logger.Warn("session ended with error",
			log.String("session", sess.id),
			log.String("user", sess.user),
			log.Err(err),
		)
	}
	p.Printf("Connection with %s closed\n", sess.peer)
}
