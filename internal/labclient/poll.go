package labclient

import (
	"context"
	"fmt"
	"syscall"

	"github.com/bft-labs/socklab/internal/config"
	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/pkg/log"
)

// WaitNotice is printed once each time the poll client starts waiting
// for the socket to become writable.
const WaitNotice = "Now we will check periodically for opportunity to send next messages. Meanwhile something else can be done."

type pollResult int

const (
	pollWait pollResult = iota
	pollWritable
	pollHangup
)

// PollClient is the flood client with a readiness check before every
// send, so the program never blocks inside write.
type PollClient struct {
	cfg  Config
	deps Deps
}

// NewPollClient returns the lab 2 poll client.
func NewPollClient(cfg Config, deps Deps) *PollClient {
	if cfg.BufSize <= 0 {
		cfg.BufSize = config.StreamBufSize
	}
	return &PollClient{cfg: cfg, deps: deps.withDefaults()}
}

// Run sends until Count buffers are written, the socket reports an
// error or hangup, or ctx is cancelled. Cancellation is not an error.
func (c *PollClient) Run(ctx context.Context) error {
	conn, err := dial(ctx, "tcp", c.cfg, c.deps.Logger)
	if err != nil {
		return err
	}
	defer c.deps.Printer.Println("Client closed")
	defer conn.Close()
	defer closeOnDone(ctx, conn)()

	sc, ok := conn.(syscall.Conn)
	if !ok {
		return domain.NewStepError(domain.StepSocket, fmt.Errorf("%T has no file descriptor", conn))
	}

	buf := make([]byte, c.cfg.BufSize)
	waiting := 0
	for i := 1; c.cfg.Count == 0 || i <= c.cfg.Count; {
		if ctx.Err() != nil {
			return nil
		}
		res, err := pollWritableFor(sc, c.cfg.PollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return domain.NewStepError(domain.StepSocket, fmt.Errorf("poll: %w", err))
		}

		switch res {
		case pollWritable:
			if _, err := conn.Write(buf); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if peerGone(err) {
					c.deps.Logger.Info("server closed the connection", log.Int("sent", i-1))
					return nil
				}
				return domain.NewStepError(domain.StepSend, err)
			}
			c.deps.Printer.Printf("Message %d sent\n", i)
			i++
		case pollHangup:
			c.deps.Logger.Info("socket hung up", log.Int("sent", i-1))
			return nil
		default:
			if waiting != i {
				waiting = i
				c.deps.Printer.Println(WaitNotice)
			}
		}
	}
	return nil
}
