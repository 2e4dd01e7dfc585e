package labserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/socklab/internal/config"
	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/internal/stats"
	"github.com/bft-labs/socklab/pkg/log"
	"github.com/bft-labs/socklab/pkg/wire"
)

// conn is one accepted connection as seen by a stream handler.
type conn struct {
	net.Conn
	session string
	peer    string
	seq     int
}

func (c *conn) message(transport domain.Transport, payload []byte, at time.Time) domain.Message {
	c.seq++
	return domain.Message{
		Session:    c.session,
		Transport:  transport,
		Local:      c.LocalAddr(),
		Remote:     c.RemoteAddr(),
		Seq:        c.seq,
		Payload:    payload,
		ReceivedAt: at,
	}
}

type streamHandler func(ctx context.Context, s *StreamServer, c *conn) error

// StreamServer is a TCP lab server. It accepts one connection at a time
// and hands it to the handler chosen by its constructor.
type StreamServer struct {
	base
	handle streamHandler
}

// NewTCPServer returns the lab 1 server: every read is printed as is.
func NewTCPServer(cfg Config, deps Deps) *StreamServer {
	s := &StreamServer{handle: handlePlain}
	s.setup("tcp-server", cfg, config.TCPBufSize, deps)
	return s
}

// NewFramedServer returns the lab 2 server that splits the stream into
// NUL-terminated messages and prints each message on one line.
func NewFramedServer(cfg Config, deps Deps) *StreamServer {
	s := &StreamServer{handle: handleFramed}
	s.setup("framed-server", cfg, config.FramedBufSize, deps)
	return s
}

// NewSlowServer returns the backpressure server: it counts reads and
// pauses after each one.
func NewSlowServer(cfg Config, deps Deps) *StreamServer {
	s := &StreamServer{handle: handleSlow}
	s.setup("slow-server", cfg, config.StreamBufSize, deps)
	return s
}

// Run binds, then serves connections sequentially until ctx is
// cancelled. It returns nil on cancellation and a *domain.StepError when
// binding or accepting fails.
func (s *StreamServer) Run(ctx context.Context) (err error) {
	if err := s.start(); err != nil {
		return err
	}
	defer func() { s.finish(err) }()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return domain.NewStepError(domain.StepBind, err)
	}
	defer ln.Close()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.bound(ln.Addr())

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return domain.NewStepError(domain.StepAccept, err)
		}
		s.serve(ctx, nc)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *StreamServer) serve(ctx context.Context, nc net.Conn) {
	c := &conn{Conn: nc, session: uuid.NewString(), peer: domain.Peer(nc.RemoteAddr())}
	defer nc.Close()

	stop := context.AfterFunc(ctx, func() { nc.Close() })
	defer stop()

	logger := s.deps.Logger
	s.deps.Printer.Printf("Connected from: %s\n", c.peer)
	logger.Info("connection accepted",
		log.String("server", s.name),
		log.String("session", c.session),
		log.Addr("remote", nc.RemoteAddr()),
	)

	err := s.handle(ctx, s, c)
	switch {
	case err == nil:
		s.deps.Printer.Println("Connection closed by client")
	case ctx.Err() != nil:
		logger.Debug("connection interrupted by shutdown", log.String("session", c.session))
	default:
		logger.Error("connection failed",
			log.String("session", c.session),
			log.Err(domain.NewStepError(domain.StepRead, err)),
		)
	}
}

// readLoop calls fn for every non-empty read until the peer closes the
// connection (nil) or a read fails.
func readLoop(c *conn, size int, fn func(chunk []byte) error) error {
	buf := make([]byte, size)
	for {
		n, err := c.Read(buf)
		if n > 0 {
			if ferr := fn(buf[:n]); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func handlePlain(ctx context.Context, s *StreamServer, c *conn) error {
	return readLoop(c, s.cfg.BufSize, func(chunk []byte) error {
		s.deps.Printer.Printf("Message from client %s: %s\n", c.peer, chunk)
		s.deliver(ctx, c.message(domain.TCP, clone(chunk), s.deps.Now()))
		return nil
	})
}

func handleFramed(ctx context.Context, s *StreamServer, c *conn) error {
	var (
		split wire.Splitter
		asm   wire.Assembler
		p     = s.deps.Printer
	)
	err := readLoop(c, s.cfg.BufSize, func(chunk []byte) error {
		for _, f := range split.Feed(chunk) {
			if f.First {
				p.Printf("Message from client %s: ", c.peer)
			}
			p.Printf("%s", f.Text)
			if f.Last {
				p.Printf("\n")
			}
			if msg, ok := asm.Add(f); ok {
				s.deliver(ctx, c.message(domain.TCP, msg, s.deps.Now()))
			}
		}
		return nil
	})

	// An unterminated message still counts once the peer is gone.
	if split.Pending() {
		p.Printf("\n")
		if msg, ok := asm.Flush(); ok {
			s.deliver(ctx, c.message(domain.TCP, msg, s.deps.Now()))
		}
	}
	return err
}

func handleSlow(ctx context.Context, s *StreamServer, c *conn) error {
	sum := stats.NewSummary(s.deps.Now())
	err := readLoop(c, s.cfg.BufSize, func(chunk []byte) error {
		now := s.deps.Now()
		sum.Add(len(chunk), now)
		msg := c.message(domain.TCP, clone(chunk), now)
		s.deps.Printer.Printf("Message %d received\n", msg.Seq)
		s.deliver(ctx, msg)
		return sleep(ctx, s.cfg.ReadDelay)
	})
	if err == nil {
		s.deps.Printer.Printf("Summary: %s\n", sum)
	}
	mean, std := sum.MeanStdDev()
	s.deps.Logger.Info("connection summary",
		log.String("session", c.session),
		log.Int("reads", sum.Reads()),
		log.Int64("bytes", sum.Bytes()),
		log.Float64("mean", mean),
		log.Float64("stddev", std),
	)
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("read delay: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
