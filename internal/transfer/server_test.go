package transfer

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/pkg/lifecycle"
	"github.com/bft-labs/socklab/pkg/wire"
)

type capturePrinter struct {
	mu sync.Mutex
	sb strings.Builder
}

func (p *capturePrinter) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(&p.sb, format, args...)
}

func (p *capturePrinter) Println(args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(&p.sb, args...)
}

func (p *capturePrinter) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sb.String()
}

type testServer struct {
	srv     *Server
	root    string
	printer *capturePrinter
}

func startServer(t *testing.T, tlsCfg *tls.Config) *testServer {
	t.Helper()
	return startServerWith(t, ServerConfig{TLS: tlsCfg})
}

func startServerWith(t *testing.T, cfg ServerConfig) *testServer {
	t.Helper()
	r := newTestRoot(t)
	p := &capturePrinter{}
	cfg.Addr = "127.0.0.1:0"
	cfg.Root = r.Dir()
	cfg.DataTimeout = 2 * time.Second
	srv, err := NewServer(cfg,
		ServerDeps{Printer: p, Credentials: NewCredentialStore(Credentials{"alice": HashPassword("wonderland")})},
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
		require.Equal(t, lifecycle.StateStopped, srv.State())
	})

	select {
	case <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready")
	}
	return &testServer{srv: srv, root: r.Dir(), printer: p}
}

func login(t *testing.T, ts *testServer, cfg ClientConfig, mode string) *Session {
	t.Helper()
	ctx := context.Background()
	cfg.Addr = ts.srv.Addr().String()
	sess, err := Dial(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, sess.Login("alice", "wonderland"))
	require.NoError(t, sess.OpenDataChannel(ctx, mode))
	return sess
}

func TestSession_Commands(t *testing.T) {
	for _, mode := range []string{ModePassive, ModeActive} {
		t.Run("mode "+mode, func(t *testing.T) {
			ts := startServer(t, nil)
			sess := login(t, ts, ClientConfig{}, mode)

			dir, err := sess.Cd("sub")
			require.NoError(t, err)
			require.Equal(t, "/sub", dir)
			require.Equal(t, "/sub", sess.Cwd())

			_, err = sess.Cd("missing")
			require.ErrorIs(t, err, domain.ErrInvalidPath)

			tree, err := sess.Ls("")
			require.NoError(t, err)
			require.Equal(t, "/sub/\n├── b.txt\n└── deeper/", tree)

			tree, err = sess.Ls("/ 1")
			require.NoError(t, err)
			require.Contains(t, tree, "a.txt")

			_, err = sess.Ls("a b c")
			require.ErrorIs(t, err, domain.ErrInvalidPath)

			var buf bytes.Buffer
			n, err := sess.Get("b.txt", &buf)
			require.NoError(t, err)
			require.EqualValues(t, 4, n)
			require.Equal(t, "beta", buf.String())

			_, err = sess.Get("nope.txt", &buf)
			require.ErrorIs(t, err, domain.ErrInvalidPath)

			res, err := sess.Put("new.txt", strings.NewReader("fresh"), 5)
			require.NoError(t, err)
			require.Equal(t, "/sub/new.txt", res.Stored)
			require.Empty(t, res.Note)
			got, err := os.ReadFile(filepath.Join(ts.root, "sub", "new.txt"))
			require.NoError(t, err)
			require.Equal(t, "fresh", string(got))

			res, err = sess.Put("new.txt", strings.NewReader("again"), 5)
			require.NoError(t, err)
			require.NotEqual(t, "/sub/new.txt", res.Stored)
			require.Contains(t, res.Note, "already exists")

			require.NoError(t, sess.Close())
			require.Eventually(t, func() bool {
				return strings.Contains(ts.printer.String(), "Connection with ")
			}, 5*time.Second, 10*time.Millisecond)
		})
	}
}

func TestSession_CdCannotLeaveRoot(t *testing.T) {
	ts := startServer(t, nil)
	sess := login(t, ts, ClientConfig{}, ModePassive)
	defer sess.Close()

	dir, err := sess.Cd("../../..")
	require.NoError(t, err)
	require.Equal(t, "/", dir)

	var buf bytes.Buffer
	_, err = sess.Get("../../etc/passwd", &buf)
	require.ErrorIs(t, err, domain.ErrInvalidPath)
}

func TestSession_LoginRejected(t *testing.T) {
	ts := startServer(t, nil)
	sess, err := Dial(context.Background(), ClientConfig{Addr: ts.srv.Addr().String()}, nil)
	require.NoError(t, err)
	defer sess.conn.Close()

	require.ErrorIs(t, sess.Login("alice", "wrong"), domain.ErrAuthFailed)
	require.Eventually(t, func() bool {
		return strings.Contains(ts.printer.String(), "failed!")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSession_UnknownCommand(t *testing.T) {
	ts := startServer(t, nil)
	sess := login(t, ts, ClientConfig{}, ModePassive)
	defer sess.Close()

	_, err := sess.roundTrip(wire.Message{"rm": "a.txt"}, "rm")
	require.ErrorIs(t, err, domain.ErrProtocol)

	// The session survives.
	_, err = sess.Cd(".")
	require.NoError(t, err)
}

func TestSession_Download(t *testing.T) {
	ts := startServer(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(ts.root, "crlf.txt"), []byte("x\r\ny\r\n"), 0o644))
	sess := login(t, ts, ClientConfig{}, ModePassive)
	defer sess.Close()

	local := t.TempDir()
	saved, err := sess.Download("/a.txt", local, false)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(local, "a.txt"), saved)

	again, err := sess.Download("/a.txt", local, false)
	require.NoError(t, err)
	require.NotEqual(t, saved, again)
	b, err := os.ReadFile(again)
	require.NoError(t, err)
	require.Equal(t, "alpha", string(b))

	textFile, err := sess.Download("crlf.txt", local, true)
	require.NoError(t, err)
	b, err = os.ReadFile(textFile)
	require.NoError(t, err)
	require.Equal(t, string(convertText([]byte("x\ny\n"), runtime.GOOS)), string(b))

	_, err = sess.Download("missing.txt", local, false)
	require.ErrorIs(t, err, domain.ErrInvalidPath)
	_, statErr := os.Stat(filepath.Join(local, "missing.txt"))
	require.True(t, os.IsNotExist(statErr))
}

func TestSession_TLS(t *testing.T) {
	serverCfg, clientCfg := testTLSConfigs(t)
	ts := startServer(t, serverCfg)
	sess := login(t, ts, ClientConfig{TLS: clientCfg}, ModePassive)
	defer sess.Close()

	require.True(t, strings.HasPrefix(sess.Version(), "TLS"))
	var buf bytes.Buffer
	_, err := sess.Get("a.txt", &buf)
	require.NoError(t, err)
	require.Equal(t, "alpha", buf.String())
}

func TestSession_TLSWrongServerName(t *testing.T) {
	serverCfg, clientCfg := testTLSConfigs(t)
	ts := startServer(t, serverCfg)

	clientCfg.ServerName = "other.example"
	_, err := Dial(context.Background(), ClientConfig{Addr: ts.srv.Addr().String(), TLS: clientCfg}, nil)
	require.Error(t, err)
	require.Equal(t, 1, domain.ExitCode(err))
}

func TestSession_FileSizeLimit(t *testing.T) {
	ts := startServerWith(t, ServerConfig{MaxFileSize: 10})
	require.NoError(t, os.WriteFile(filepath.Join(ts.root, "big.txt"), bytes.Repeat([]byte("x"), 100), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ts.root, "tiny.txt"), []byte("ok"), 0o644))

	t.Run("server refuses large upload", func(t *testing.T) {
		sess := login(t, ts, ClientConfig{}, ModePassive)
		defer sess.Close()

		_, err := sess.Put("big-upload.txt", bytes.NewReader(make([]byte, 100)), 100)
		require.ErrorIs(t, err, ErrFileTooLarge)
		_, statErr := os.Stat(filepath.Join(ts.root, "big-upload.txt"))
		require.True(t, os.IsNotExist(statErr))

		dir, err := sess.Cd(".")
		require.NoError(t, err)
		require.Equal(t, "/", dir)

		res, err := sess.Put("small.txt", strings.NewReader("fresh"), 5)
		require.NoError(t, err)
		require.Equal(t, "/small.txt", res.Stored)
	})

	t.Run("server refuses large download", func(t *testing.T) {
		sess := login(t, ts, ClientConfig{}, ModePassive)
		defer sess.Close()

		var buf bytes.Buffer
		_, err := sess.Get("big.txt", &buf)
		require.ErrorIs(t, err, domain.ErrInvalidPath)

		_, err = sess.Get("tiny.txt", &buf)
		require.NoError(t, err)
		require.Equal(t, "ok", buf.String())
	})

	t.Run("client limit", func(t *testing.T) {
		sess := login(t, ts, ClientConfig{MaxFileSize: 3}, ModeActive)
		defer sess.Close()

		var buf bytes.Buffer
		_, err := sess.Get("a.txt", &buf)
		require.ErrorIs(t, err, ErrFileTooLarge)
		require.Zero(t, buf.Len())

		_, err = sess.Get("tiny.txt", &buf)
		require.NoError(t, err)
		require.Equal(t, "ok", buf.String())

		_, err = sess.Put("local.txt", strings.NewReader("12345"), 5)
		require.ErrorIs(t, err, ErrFileTooLarge)

		dir, err := sess.Cd(".")
		require.NoError(t, err)
		require.Equal(t, "/", dir)
	})
}

func TestServer_Stop(t *testing.T) {
	r := newTestRoot(t)
	srv, err := NewServer(
		ServerConfig{Addr: "127.0.0.1:0", Root: r.Dir()},
		ServerDeps{Credentials: NewCredentialStore(Credentials{})},
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background()) }()
	select {
	case <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready")
	}
	require.Equal(t, lifecycle.StateRunning, srv.State())

	srv.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	require.Equal(t, lifecycle.StateStopped, srv.State())
}

func TestInflight(t *testing.T) {
	f := newInflight()
	require.True(t, f.acquire("/x"))
	require.False(t, f.acquire("/x"))
	f.release("/x")
	require.True(t, f.acquire("/x"))
}

// testTLSConfigs writes a self-signed certificate for projekt.psi and
// returns matching server and client configurations.
func testTLSConfigs(t *testing.T) (*tls.Config, *tls.Config) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "projekt.psi"},
		DNSNames:              []string{"projekt.psi"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))

	serverCfg, err := ServerTLSConfig(certFile, keyFile)
	require.NoError(t, err)
	clientCfg, err := ClientTLSConfig(certFile, "projekt.psi")
	require.NoError(t, err)
	return serverCfg, clientCfg
}
