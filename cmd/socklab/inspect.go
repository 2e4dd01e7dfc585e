package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/socklab/internal/capture"
	"github.com/bft-labs/socklab/internal/config"
	"github.com/bft-labs/socklab/internal/journal"
)

const timeLayout = "2006-01-02 15:04:05.000"

func journalCommand() *cobra.Command {
	var (
		limit    int
		sessions bool
	)
	return command("journal", "List messages recorded with --journal", nil,
		func(fs *pflag.FlagSet, cfg *config.Config) {
			fs.StringVar(&cfg.Journal, "journal", cfg.Journal, "SQLite journal file")
			fs.IntVar(&limit, "limit", 20, "number of messages to list, newest first")
			fs.BoolVar(&sessions, "sessions", false, "summarise sessions instead of listing messages")
		},
		func(ctx context.Context, e *env, _ []string) error {
			if e.cfg.Journal == "" {
				return errors.New("--journal is required")
			}
			j, err := journal.Open(e.cfg.Journal, e.logger)
			if err != nil {
				return err
			}
			defer j.Close()

			tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
			defer tw.Flush()

			if sessions {
				stats, err := j.Sessions(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "SESSION\tMESSAGES\tBYTES\tFIRST\tLAST")
				for _, s := range stats {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", s.Session, s.Messages, s.Bytes,
						s.First.Local().Format(timeLayout), s.Last.Local().Format(timeLayout))
				}
				return nil
			}

			entries, err := j.Recent(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "ID\tTIME\tSESSION\tSEQ\tPROTO\tFROM\tTO\tPAYLOAD")
			for _, en := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\t%q\n", en.ID,
					en.ReceivedAt.Local().Format(timeLayout), shortID(en.Session), en.Seq,
					en.Transport, en.Remote, en.Local, en.Payload)
			}
			return nil
		})
}

func captureCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "capture",
		Short: "Inspect pcap files written with --capture",
	}
	dump := command("dump <file>", "Print every packet in a capture file", nil, nil,
		func(_ context.Context, e *env, args []string) error {
			packets, err := capture.ReadFile(args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
			defer tw.Flush()
			fmt.Fprintln(tw, "TIME\tPROTO\tFROM\tTO\tSEQ\tLEN\tPAYLOAD")
			for _, p := range packets {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%q\n",
					p.Timestamp.Local().Format(timeLayout), p.Transport, p.Src, p.Dst,
					p.Seq, len(p.Payload), p.Payload)
			}
			return nil
		})
	dump.Args = cobra.ExactArgs(1)
	c.AddCommand(dump)
	return c
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
