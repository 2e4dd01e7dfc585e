package main

import (
	"context"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/socklab/internal/config"
	"github.com/bft-labs/socklab/internal/labclient"
	"github.com/bft-labs/socklab/pkg/log"
	"github.com/bft-labs/socklab/pkg/wire"
)

func clientCommands() []*cobra.Command {
	return []*cobra.Command{
		command("tcp-client", "Send a message to a TCP server several times", nil,
			func(fs *pflag.FlagSet, cfg *config.Config) {
				messageFlags(fs, cfg)
				fs.BoolVar(&cfg.NullTerminate, "null", cfg.NullTerminate, "append a NUL byte to every message")
			},
			func(ctx context.Context, e *env, _ []string) error {
				return labclient.NewTCPClient(clientConfig(e.cfg), clientDeps(e, "tcp-client")).Run(ctx)
			}),
		command("udp-client", "Send a message to a UDP server several times", nil,
			messageFlags,
			func(ctx context.Context, e *env, _ []string) error {
				return labclient.NewUDPClient(clientConfig(e.cfg), clientDeps(e, "udp-client")).Run(ctx)
			}),
		command("flood-client", "Send as fast as possible until the server goes away", streamDefaults,
			streamFlags,
			func(ctx context.Context, e *env, _ []string) error {
				return labclient.NewFloodClient(clientConfig(e.cfg), clientDeps(e, "flood-client")).Run(ctx)
			}),
		command("poll-client", "Send only when the socket is writable, waiting otherwise", streamDefaults,
			func(fs *pflag.FlagSet, cfg *config.Config) {
				streamFlags(fs, cfg)
				fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "how long to wait for the socket to become writable")
			},
			func(ctx context.Context, e *env, _ []string) error {
				return labclient.NewPollClient(clientConfig(e.cfg), clientDeps(e, "poll-client")).Run(ctx)
			}),
		structClientCommand(),
	}
}

func structClientCommand() *cobra.Command {
	def := wire.DefaultRecord()
	var (
		a    int64
		b    int32
		c, d int16
		text string
	)
	return command("struct-client", "Send one fixed-layout record over UDP", nil,
		func(fs *pflag.FlagSet, _ *config.Config) {
			fs.Int64Var(&a, "a", def.A, "64-bit field")
			fs.Int32Var(&b, "b", def.B, "32-bit field")
			fs.Int16Var(&c, "c", def.C, "first 16-bit field")
			fs.Int16Var(&d, "d", def.D, "second 16-bit field")
			fs.StringVar(&text, "text", def.Text(), "text field, at most 7 bytes")
		},
		func(ctx context.Context, e *env, _ []string) error {
			cfg := clientConfig(e.cfg)
			cfg.Record = wire.NewRecord(a, b, c, d, text)
			return labclient.NewStructClient(cfg, clientDeps(e, "struct-client")).Run(ctx)
		})
}

func messageFlags(fs *pflag.FlagSet, cfg *config.Config) {
	fs.StringVarP(&cfg.Message, "message", "m", cfg.Message, "message to send")
	fs.IntVarP(&cfg.Count, "count", "n", cfg.Count, "number of sends")
	retryFlags(fs, cfg)
}

// streamDefaults makes the flood and poll clients run until the server
// goes away unless a count is given.
func streamDefaults(cfg *config.Config) {
	cfg.Count = 0
	cfg.BufSize = config.StreamBufSize
}

func streamFlags(fs *pflag.FlagSet, cfg *config.Config) {
	fs.IntVarP(&cfg.Count, "count", "n", cfg.Count, "number of sends (0 means until the server goes away)")
	fs.IntVar(&cfg.BufSize, "buf-size", cfg.BufSize, "bytes per send")
	retryFlags(fs, cfg)
}

func retryFlags(fs *pflag.FlagSet, cfg *config.Config) {
	fs.IntVar(&cfg.ConnectRetries, "retries", cfg.ConnectRetries, "extra connect attempts")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "initial delay between connect attempts")
}

func clientConfig(cfg config.Config) labclient.Config {
	return labclient.Config{
		Addr:           cfg.Addr(),
		Message:        cfg.Message,
		Count:          cfg.Count,
		BufSize:        cfg.BufSizeOr(config.StreamBufSize),
		NullTerminate:  cfg.NullTerminate,
		PollInterval:   cfg.PollInterval,
		ConnectRetries: cfg.ConnectRetries,
		RetryBackoff:   cfg.RetryBackoff,
	}
}

func clientDeps(e *env, name string) labclient.Deps {
	return labclient.Deps{
		Logger:  e.logger.With(log.String("client", name)),
		Printer: e.out,
	}
}
