package main

import (
	"context"
	"crypto/tls"
	"errors"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/socklab/internal/config"
	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/internal/transfer"
	"github.com/bft-labs/socklab/pkg/log"
)

func transferCommands() []*cobra.Command {
	return []*cobra.Command{
		command("ftp-server", "Serve a directory over the file transfer protocol", nil,
			func(fs *pflag.FlagSet, cfg *config.Config) {
				fs.StringVar(&cfg.RootDir, "root", cfg.RootDir, "directory clients are confined to")
				fs.StringVar(&cfg.AuthFile, "auth-file", cfg.AuthFile, "JSON file mapping user names to SHA-512 password hashes")
				fs.StringVar(&cfg.CertFile, "cert", cfg.CertFile, "TLS certificate (enables TLS with --key)")
				fs.StringVar(&cfg.KeyFile, "key", cfg.KeyFile, "TLS private key")
				fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "data channel and handshake timeout")
			},
			runTransferServer),
		command("ftp-client", "Interactive file transfer client", nil,
			func(fs *pflag.FlagSet, cfg *config.Config) {
				fs.StringVar(&cfg.CAFile, "ca", cfg.CAFile, "CA certificate to verify the server with (enables TLS)")
				fs.StringVar(&cfg.ServerName, "server-name", cfg.ServerName, "name expected in the server certificate")
				fs.StringVar(&cfg.DataMode, "mode", cfg.DataMode, "data channel mode: p (passive) or a (active)")
				fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "data channel timeout")
			},
			runTransferClient),
	}
}

func runTransferServer(ctx context.Context, e *env, _ []string) error {
	logger := e.logger.With(log.String("server", "ftp"))

	creds, err := transfer.LoadCredentials(e.cfg.AuthFile, logger)
	if err != nil {
		return err
	}
	logger.Info("credentials loaded", log.String("path", e.cfg.AuthFile), log.Int("users", creds.Len()))

	var tlsCfg *tls.Config
	if e.cfg.CertFile != "" {
		if tlsCfg, err = transfer.ServerTLSConfig(e.cfg.CertFile, e.cfg.KeyFile); err != nil {
			return err
		}
	}

	srv, err := transfer.NewServer(transfer.ServerConfig{
		Addr:        e.cfg.Addr(),
		Root:        e.cfg.RootDir,
		TLS:         tlsCfg,
		DataTimeout: e.cfg.Timeout,
	}, transfer.ServerDeps{
		Logger:      logger,
		Printer:     e.out,
		Credentials: creds,
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func runTransferClient(ctx context.Context, e *env, _ []string) error {
	var tlsCfg *tls.Config
	if e.cfg.CAFile != "" {
		var err error
		if tlsCfg, err = transfer.ClientTLSConfig(e.cfg.CAFile, e.cfg.ServerName); err != nil {
			return err
		}
	}

	sess, err := transfer.Dial(ctx, transfer.ClientConfig{
		Addr:        e.cfg.Addr(),
		TLS:         tlsCfg,
		DataTimeout: e.cfg.Timeout,
	}, e.logger)
	if err != nil {
		e.out.Printf("Connection failed!\n%v\n", err)
		return err
	}

	shell := transfer.NewShell(sess, e.in, e.out, e.logger)
	if err := shell.Login(ctx); err != nil {
		if errors.Is(err, domain.ErrAuthFailed) {
			e.out.Println("Authentication failed!")
		}
		sess.Close()
		return err
	}
	if err := sess.OpenDataChannel(ctx, e.cfg.DataMode); err != nil {
		e.out.Println("Could not agree on Data Channel!")
		sess.Close()
		return err
	}
	e.out.Printf("Connection successful using %s\n", sess.Version())
	return shell.Run(ctx)
}
