package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/socklab/internal/capture"
	"github.com/bft-labs/socklab/internal/config"
	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/internal/journal"
	"github.com/bft-labs/socklab/internal/sink"
	"github.com/bft-labs/socklab/pkg/log"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "missing.toml")))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func findCommand(t *testing.T, name string) *cobra.Command {
	t.Helper()
	c, _, err := newRootCommand().Find([]string{name})
	require.NoError(t, err)
	return c
}

func TestCountDefaults(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"tcp-client", "10"},
		{"udp-client", "10"},
		{"flood-client", "0"},
		{"poll-client", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			f := findCommand(t, tt.command).Flags().Lookup("count")
			require.NotNil(t, f)
			assert.Equal(t, tt.want, f.DefValue)
		})
	}
}

func TestServerFlags(t *testing.T) {
	for _, name := range []string{"tcp-server", "framed-server", "slow-server", "udp-server", "struct-server"} {
		c := findCommand(t, name)
		for _, flag := range []string{"host", "port", "buf-size", "journal", "capture", "log-level"} {
			assert.NotNil(t, c.Flags().Lookup(flag), "%s --%s", name, flag)
		}
	}
	assert.NotNil(t, findCommand(t, "slow-server").Flags().Lookup("read-delay"))
}

func TestInvalidConfig(t *testing.T) {
	_, err := execute(t, "ftp-client", "--mode", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data mode")
}

func TestJournalCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lab.db")
	j, err := journal.Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, j.Deliver(context.Background(), domain.Message{
		Session:    "0123456789abcdef",
		Transport:  domain.TCP,
		Local:      &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 65000},
		Remote:     &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000},
		Seq:        1,
		Payload:    []byte("hello"),
		ReceivedAt: time.Now(),
	}))
	require.NoError(t, j.Close())

	out, err := execute(t, "journal", "--journal", path)
	require.NoError(t, err)
	assert.Contains(t, out, "PAYLOAD")
	assert.Contains(t, out, "01234567")
	assert.Contains(t, out, `"hello"`)

	out, err = execute(t, "journal", "--journal", path, "--sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "0123456789abcdef")
}

func TestJournalCommand_RequiresPath(t *testing.T) {
	_, err := execute(t, "journal")
	require.Error(t, err)
}

func TestCaptureDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lab.pcap")
	w, err := capture.Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Deliver(context.Background(), domain.Message{
		Session:    "u",
		Transport:  domain.UDP,
		Local:      &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 65000},
		Remote:     &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000},
		Seq:        1,
		Payload:    []byte("ping"),
		ReceivedAt: time.Now(),
	}))
	require.NoError(t, w.Close())

	out, err := execute(t, "capture", "dump", path)
	require.NoError(t, err)
	assert.Contains(t, out, "127.0.0.1:40000")
	assert.Contains(t, out, `"ping"`)

	_, err = execute(t, "capture", "dump")
	require.Error(t, err)
}

func TestOpenSink(t *testing.T) {
	dir := t.TempDir()
	e := &env{
		cfg:    config.DefaultConfig(),
		logger: log.NewZerologAdapterTo(io.Discard, log.ParseLevel("error")),
	}

	s, err := openSink(e)
	require.NoError(t, err)
	assert.IsType(t, sink.Discard{}, s)

	e.cfg.Journal = filepath.Join(dir, "lab.db")
	e.cfg.Capture = filepath.Join(dir, "lab.pcap")
	s, err = openSink(e)
	require.NoError(t, err)
	m, ok := s.(*sink.Multi)
	require.True(t, ok)
	assert.Equal(t, 2, m.Len())
	require.NoError(t, s.Close())
}
