// Package sink combines message sinks.
package sink

import (
	"context"
	"errors"

	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/internal/ports"
)

// Discard drops every message.
type Discard struct{}

func (Discard) Deliver(context.Context, domain.Message) error { return nil }
func (Discard) Close() error                                  { return nil }

// Multi delivers each message to every sink in order. A failing sink does
// not prevent delivery to the others; the errors are joined.
type Multi struct {
	sinks []ports.MessageSink
}

// NewMulti returns a fan-out over sinks, skipping nil entries. With no
// sinks it behaves like Discard.
func NewMulti(sinks ...ports.MessageSink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of wrapped sinks.
func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Deliver(ctx context.Context, msg domain.Message) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Deliver(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink in reverse order.
func (m *Multi) Close() error {
	var errs []error
	for i := len(m.sinks) - 1; i >= 0; i-- {
		if err := m.sinks[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
