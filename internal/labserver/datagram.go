package labserver

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/socklab/internal/config"
	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/pkg/log"
	"github.com/bft-labs/socklab/pkg/wire"
)

// pollInterval bounds how long a datagram read blocks before the server
// checks for cancellation.
const pollInterval = 100 * time.Millisecond

type datagramHandler func(s *DatagramServer, from net.Addr, payload []byte)

// DatagramServer is a UDP lab server.
type DatagramServer struct {
	base
	handle datagramHandler
}

// NewUDPServer returns the lab 1 server printing every datagram as text.
func NewUDPServer(cfg Config, deps Deps) *DatagramServer {
	s := &DatagramServer{handle: handleText}
	s.setup("udp-server", cfg, config.UDPBufSize, deps)
	return s
}

// NewStructServer returns the server decoding each datagram as a
// wire.Record.
func NewStructServer(cfg Config, deps Deps) *DatagramServer {
	s := &DatagramServer{handle: handleRecord}
	s.setup("struct-server", cfg, wire.RecordSize, deps)
	return s
}

// Run binds and prints datagrams until ctx is cancelled.
func (s *DatagramServer) Run(ctx context.Context) (err error) {
	if err := s.start(); err != nil {
		return err
	}
	defer func() { s.finish(err) }()

	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", s.cfg.Addr)
	if err != nil {
		return domain.NewStepError(domain.StepBind, err)
	}
	defer pc.Close()

	s.bound(pc.LocalAddr())

	session := uuid.NewString()
	buf := make([]byte, s.cfg.BufSize)
	seq := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := pc.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			return domain.NewStepError(domain.StepRead, err)
		}
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return domain.NewStepError(domain.StepRead, err)
		}

		payload := clone(buf[:n])
		s.handle(s, from, payload)

		seq++
		s.deliver(ctx, domain.Message{
			Session:    session,
			Transport:  domain.UDP,
			Local:      pc.LocalAddr(),
			Remote:     from,
			Seq:        seq,
			Payload:    payload,
			ReceivedAt: s.deps.Now(),
		})
	}
}

func handleText(s *DatagramServer, from net.Addr, payload []byte) {
	if len(payload) == 0 {
		s.deps.Logger.Warn("empty datagram", log.Addr("remote", from))
		return
	}
	s.deps.Printer.Printf("Message from client %s: %s\n", domain.Peer(from), payload)
}

func handleRecord(s *DatagramServer, from net.Addr, payload []byte) {
	var r wire.Record
	if err := r.UnmarshalBinary(payload); err != nil {
		s.deps.Logger.Warn("skipping datagram",
			log.Addr("remote", from),
			log.Int("size", len(payload)),
			log.Err(err),
		)
		return
	}
	s.deps.Printer.Printf("Message from client %s:\n", domain.Peer(from))
	s.deps.Printer.Printf("Received structure:\n%s\n", r)
}
