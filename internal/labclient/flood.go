package labclient

import (
	"context"

	"github.com/bft-labs/socklab/internal/config"
	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/pkg/log"
)

// FloodClient writes zero-filled buffers as fast as the socket accepts
// them. Against the slow server this fills the send buffer and blocks.
type FloodClient struct {
	cfg  Config
	deps Deps
}

// NewFloodClient returns the lab 2 flood client.
func NewFloodClient(cfg Config, deps Deps) *FloodClient {
	if cfg.BufSize <= 0 {
		cfg.BufSize = config.StreamBufSize
	}
	return &FloodClient{cfg: cfg, deps: deps.withDefaults()}
}

// Run sends until Count buffers are written, the peer closes or ctx is
// cancelled.
func (c *FloodClient) Run(ctx context.Context) error {
	conn, err := dial(ctx, "tcp", c.cfg, c.deps.Logger)
	if err != nil {
		return err
	}
	defer c.deps.Printer.Println("Client closed")
	defer conn.Close()
	defer closeOnDone(ctx, conn)()

	buf := make([]byte, c.cfg.BufSize)
	for i := 1; c.cfg.Count == 0 || i <= c.cfg.Count; i++ {
		if _, err := conn.Write(buf); err != nil {
			return c.sendFailed(ctx, i, err)
		}
		c.deps.Printer.Printf("Message %d sent\n", i)
	}
	return nil
}

func (c *FloodClient) sendFailed(ctx context.Context, i int, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	if peerGone(err) {
		c.deps.Logger.Info("server closed the connection", log.Int("sent", i-1))
		return nil
	}
	return domain.NewStepError(domain.StepSend, err)
}
