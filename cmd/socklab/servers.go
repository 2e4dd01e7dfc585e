package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/socklab/internal/config"
	"github.com/bft-labs/socklab/internal/labserver"
	"github.com/bft-labs/socklab/pkg/log"
)

// labServer is what every lab server constructor returns.
type labServer interface {
	Run(ctx context.Context) error
}

type serverFactory func(labserver.Config, labserver.Deps) labServer

func serverCommands() []*cobra.Command {
	return []*cobra.Command{
		serverCommand("tcp-server", "Print what TCP clients send, one client at a time",
			func(c labserver.Config, d labserver.Deps) labServer { return labserver.NewTCPServer(c, d) }, nil),
		serverCommand("framed-server", "Reassemble NUL-terminated messages from TCP clients",
			func(c labserver.Config, d labserver.Deps) labServer { return labserver.NewFramedServer(c, d) }, nil),
		serverCommand("slow-server", "Read TCP clients slowly to exercise flow control",
			func(c labserver.Config, d labserver.Deps) labServer { return labserver.NewSlowServer(c, d) },
			func(fs *pflag.FlagSet, cfg *config.Config) {
				fs.DurationVar(&cfg.ReadDelay, "read-delay", cfg.ReadDelay, "pause after every read")
			}),
		serverCommand("udp-server", "Print datagrams from UDP clients",
			func(c labserver.Config, d labserver.Deps) labServer { return labserver.NewUDPServer(c, d) }, nil),
		serverCommand("struct-server", "Decode fixed-layout records sent over UDP",
			func(c labserver.Config, d labserver.Deps) labServer { return labserver.NewStructServer(c, d) }, nil),
	}
}

func serverCommand(use, short string, factory serverFactory, extra func(*pflag.FlagSet, *config.Config)) *cobra.Command {
	return command(use, short, nil,
		func(fs *pflag.FlagSet, cfg *config.Config) {
			fs.IntVar(&cfg.BufSize, "buf-size", cfg.BufSize, "read buffer size (0 uses the exercise default)")
			sinkFlags(fs, cfg)
			if extra != nil {
				extra(fs, cfg)
			}
		},
		func(ctx context.Context, e *env, _ []string) error {
			msgs, err := openSink(e)
			if err != nil {
				return err
			}
			defer func() {
				if err := msgs.Close(); err != nil {
					e.logger.Warn("close sink", log.Err(err))
				}
			}()

			srv := factory(labserver.Config{
				Addr:      e.cfg.Addr(),
				BufSize:   e.cfg.BufSize,
				ReadDelay: e.cfg.ReadDelay,
			}, labserver.Deps{
				Logger:  e.logger.With(log.String("server", use)),
				Printer: e.out,
				Sink:    msgs,
				Now:     time.Now,
			})
			return srv.Run(ctx)
		})
}
