// Package labclient implements the lab clients that pair with the
// servers in internal/labserver.
package labclient

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/internal/ports"
	"github.com/bft-labs/socklab/pkg/lifecycle"
	"github.com/bft-labs/socklab/pkg/log"
	"github.com/bft-labs/socklab/pkg/wire"
)

// maxRetryBackoff caps the delay between connect attempts.
const maxRetryBackoff = 5 * time.Second

// Config configures a lab client.
type Config struct {
	// Addr is the server host:port.
	Addr string

	Message string
	// Count is the number of sends. For the flood and poll clients 0
	// means until the peer goes away or the context is cancelled.
	Count int
	// BufSize is the flood and poll clients' send size.
	BufSize int
	// NullTerminate appends a NUL after each TCP message.
	NullTerminate bool

	// PollInterval is how long the poll client waits for writability
	// before doing "something else".
	PollInterval time.Duration

	// ConnectRetries is the number of extra connect attempts.
	ConnectRetries int
	RetryBackoff   time.Duration

	// Record is the struct client's payload.
	Record wire.Record
}

// Deps are a client's collaborators. Nil fields become no-ops.
type Deps struct {
	Logger  ports.Logger
	Printer ports.Printer
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = log.NewNoopLogger()
	}
	if d.Printer == nil {
		d.Printer = discardPrinter{}
	}
	return d
}

type discardPrinter struct{}

func (discardPrinter) Printf(string, ...any) {}
func (discardPrinter) Println(...any)        {}

// dial connects to cfg.Addr, retrying with backoff when configured.
func dial(ctx context.Context, network string, cfg Config, logger ports.Logger) (net.Conn, error) {
	var d net.Dialer
	backoff := lifecycle.NewBackoff(cfg.RetryBackoff, maxRetryBackoff)
	for attempt := 0; ; attempt++ {
		c, err := d.DialContext(ctx, network, cfg.Addr)
		if err == nil {
			return c, nil
		}
		if attempt >= cfg.ConnectRetries || ctx.Err() != nil {
			return nil, domain.NewStepError(domain.StepConnect, err)
		}
		logger.Warn("connect failed, retrying",
			log.String("addr", cfg.Addr),
			log.Int("attempt", attempt+1),
			log.Duration("backoff", backoff.Current()),
			log.Err(err),
		)
		if werr := backoff.Wait(ctx); werr != nil {
			return nil, domain.NewStepError(domain.StepConnect, err)
		}
	}
}

// peerGone reports whether err means the server closed the connection.
func peerGone(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed)
}

// closeOnDone closes c when ctx is cancelled so blocked writes return.
func closeOnDone(ctx context.Context, c net.Conn) (stop func() bool) {
	return context.AfterFunc(ctx, func() { c.Close() })
}
