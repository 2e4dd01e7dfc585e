package ports

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/pkg/log"
)

// Logger is the structured logger used throughout socklab.
type Logger = log.Logger

// Field is a structured log field.
type Field = log.Field

// MessageSink receives every payload a server reads.
type MessageSink interface {
	// Deliver records msg. Payload is owned by the sink after the call.
	Deliver(ctx context.Context, msg domain.Message) error

	// Close flushes and releases the sink.
	Close() error
}

// Printer writes the lab programs' console output.
type Printer interface {
	Printf(format string, args ...any)
	Println(args ...any)
}

// WriterPrinter is a Printer over an io.Writer. It is safe for concurrent
// use so that interleaved connection handlers never split a line.
type WriterPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterPrinter returns a Printer writing to w.
func NewWriterPrinter(w io.Writer) *WriterPrinter {
	return &WriterPrinter{w: w}
}

func (p *WriterPrinter) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *WriterPrinter) Println(args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, args...)
}
