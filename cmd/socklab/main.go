package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/socklab/internal/capture"
	"github.com/bft-labs/socklab/internal/config"
	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/internal/journal"
	"github.com/bft-labs/socklab/internal/ports"
	"github.com/bft-labs/socklab/internal/sink"
	"github.com/bft-labs/socklab/pkg/log"
)

const longHelp = `TCP and UDP socket exercises.

Every server listens on 127.0.0.1:65000 by default and every client talks
to it, so any server can be paired with the matching client in a second
terminal:

  tcp-server     / tcp-client      one connection at a time, 32 byte reads
  framed-server  / tcp-client --null  NUL-terminated messages, 20 byte reads
  slow-server    / flood-client, poll-client  backpressure demo
  udp-server     / udp-client      datagrams
  struct-server  / struct-client   one fixed-layout 24 byte record
  ftp-server     / ftp-client      file transfer with a separate data channel

Servers can record what they receive with --journal (SQLite) and
--capture (pcap).`

var exampleUsage = strings.TrimSpace(`
  socklab tcp-server --journal lab.db
  socklab tcp-client --count 3 --message "hi"
  socklab slow-server --read-delay 5ms & socklab poll-client
  socklab ftp-server --root ./share --auth-file auth.json --cert cert.pem --key key.pem
  socklab ftp-client --ca cert.pem --mode a
  socklab capture dump lab.pcap
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cfgPath is the --config flag shared by every subcommand.
var cfgPath string

// env is what a subcommand runs with once configuration is resolved.
type env struct {
	cfg    config.Config
	logger *log.ZerologAdapter
	out    ports.Printer
	stdout io.Writer
	in     io.Reader
}

type runFunc func(ctx context.Context, e *env, args []string) error

// command builds a subcommand with its own Config so that per-command
// flag defaults do not leak between commands.
func command(use, short string, defaults func(*config.Config), flags func(*pflag.FlagSet, *config.Config), run runFunc) *cobra.Command {
	cfg := config.DefaultConfig()
	if defaults != nil {
		defaults(&cfg)
	}

	c := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, &cfg); err != nil {
				return err
			}
			logger := log.NewZerologAdapterTo(cmd.ErrOrStderr(), log.ParseLevel(cfg.LogLevel))
			logger.Debug("configuration", log.String("command", cmd.Name()), log.Any("config", cfg))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, &env{
				cfg:    cfg,
				logger: logger,
				out:    ports.NewWriterPrinter(cmd.OutOrStdout()),
				stdout: cmd.OutOrStdout(),
				in:     cmd.InOrStdin(),
			}, args)
		},
	}

	fs := c.Flags()
	fs.StringVar(&cfg.Host, "host", cfg.Host, "host address")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "port number")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	if flags != nil {
		flags(fs, &cfg)
	}
	return c
}

// loadConfig applies the config file and environment underneath the
// flags the user set explicitly, then validates.
func loadConfig(cmd *cobra.Command, cfg *config.Config) error {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = config.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && config.FileExists(cfgFile) {
		fc, err := config.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := config.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}
	if err := config.ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}
	return cfg.Validate()
}

// openSink builds the journal and capture sinks the configuration asks
// for. The returned sink is never nil.
func openSink(e *env) (ports.MessageSink, error) {
	var sinks []ports.MessageSink
	if e.cfg.Journal != "" {
		j, err := journal.Open(e.cfg.Journal, e.logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, j)
		e.logger.Info("journal enabled", log.String("path", e.cfg.Journal))
	}
	if e.cfg.Capture != "" {
		w, err := capture.Create(e.cfg.Capture)
		if err != nil {
			sink.NewMulti(sinks...).Close()
			return nil, err
		}
		sinks = append(sinks, w)
		e.logger.Info("capture enabled", log.String("path", e.cfg.Capture))
	}
	if len(sinks) == 0 {
		return sink.Discard{}, nil
	}
	return sink.NewMulti(sinks...), nil
}

func sinkFlags(fs *pflag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.Journal, "journal", cfg.Journal, "record received messages in this SQLite file")
	fs.StringVar(&cfg.Capture, "capture", cfg.Capture, "write received messages to this pcap file")
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "socklab",
		Short:         "TCP and UDP socket exercises",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.socklab/config.toml)")

	root.AddCommand(serverCommands()...)
	root.AddCommand(clientCommands()...)
	root.AddCommand(transferCommands()...)
	root.AddCommand(journalCommand(), captureCommand())
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logger := log.NewZerologAdapter(log.ParseLevel(os.Getenv(config.EnvPrefix + "LOG_LEVEL")))
		if !errors.Is(err, context.Canceled) {
			logger.Error("socklab", log.Err(err))
		}
		os.Exit(domain.ExitCode(err))
	}
}
