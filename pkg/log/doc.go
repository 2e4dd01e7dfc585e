// Package log provides the structured logging abstraction used by socklab.
//
// Servers and clients log through the Logger interface so that tests can
// swap in NewNoopLogger while the CLI wires a zerolog console writer:
//
//	logger := log.NewZerologAdapter(log.ParseLevel("debug"))
//	logger.Info("listening", log.String("addr", "127.0.0.1:65000"))
//
// The lines a lab program prints as its own output (for example
// "Message 3 sent") are not log records; they go through a printer on
// stdout. This package only carries diagnostics, which are written to
// stderr.
package log
