package labclient

import (
	"context"

	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/pkg/log"
	"github.com/bft-labs/socklab/pkg/wire"
)

// UDPClient sends Message as Count datagrams.
type UDPClient struct {
	cfg  Config
	deps Deps
}

// NewUDPClient returns the lab 1 UDP client.
func NewUDPClient(cfg Config, deps Deps) *UDPClient {
	return &UDPClient{cfg: cfg, deps: deps.withDefaults()}
}

// Run sends every datagram. A failed send is logged and the loop goes
// on; Run only fails when the socket cannot be created. Cancellation
// stops the loop without an error.
func (c *UDPClient) Run(ctx context.Context) error {
	conn, err := dial(ctx, "udp", c.cfg, c.deps.Logger)
	if err != nil {
		return err
	}
	defer c.deps.Printer.Println("Client closed")
	defer conn.Close()

	payload := []byte(c.cfg.Message)
	for i := 1; i <= c.cfg.Count; i++ {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := conn.Write(payload); err != nil {
			c.deps.Logger.Warn("send failed",
				log.Int("message", i),
				log.Err(domain.NewStepError(domain.StepSend, err)),
			)
			continue
		}
		c.deps.Printer.Printf("Message %d sent\n", i)
	}
	return nil
}

// StructClient sends one encoded wire.Record datagram.
type StructClient struct {
	cfg  Config
	deps Deps
}

// NewStructClient returns the struct client. A zero Config.Record is
// replaced by wire.DefaultRecord.
func NewStructClient(cfg Config, deps Deps) *StructClient {
	if cfg.Record == (wire.Record{}) {
		cfg.Record = wire.DefaultRecord()
	}
	return &StructClient{cfg: cfg, deps: deps.withDefaults()}
}

// Run encodes and sends the record.
func (c *StructClient) Run(ctx context.Context) error {
	b, err := c.cfg.Record.MarshalBinary()
	if err != nil {
		return err
	}
	conn, err := dial(ctx, "udp", c.cfg, c.deps.Logger)
	if err != nil {
		return err
	}
	defer c.deps.Printer.Println("Client closed")
	defer conn.Close()

	if _, err := conn.Write(b); err != nil {
		return domain.NewStepError(domain.StepSend, err)
	}
	c.deps.Printer.Println("Message sent")
	return nil
}
