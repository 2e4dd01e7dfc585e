package labclient

import (
	"context"

	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/pkg/log"
)

// TCPClient connects once and sends Message Count times.
type TCPClient struct {
	cfg  Config
	deps Deps
}

// NewTCPClient returns the lab 1 TCP client.
func NewTCPClient(cfg Config, deps Deps) *TCPClient {
	return &TCPClient{cfg: cfg, deps: deps.withDefaults()}
}

// Run sends the messages and closes the connection. Cancellation stops
// the loop without an error.
func (c *TCPClient) Run(ctx context.Context) error {
	conn, err := dial(ctx, "tcp", c.cfg, c.deps.Logger)
	if err != nil {
		return err
	}
	defer c.deps.Printer.Println("Client closed")
	defer conn.Close()
	defer closeOnDone(ctx, conn)()

	c.deps.Logger.Debug("connected", log.Addr("local", conn.LocalAddr()), log.Addr("remote", conn.RemoteAddr()))

	payload := []byte(c.cfg.Message)
	if c.cfg.NullTerminate {
		payload = append(payload, 0)
	}
	for i := 1; i <= c.cfg.Count; i++ {
		if _, err := conn.Write(payload); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return domain.NewStepError(domain.StepSend, err)
		}
		c.deps.Printer.Printf("Message %d sent\n", i)
	}
	return nil
}
