package transfer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/internal/ports"
	"github.com/bft-labs/socklab/pkg/log"
	"github.com/bft-labs/socklab/pkg/wire"
)

// ClientConfig configures a client session.
type ClientConfig struct {
	// Addr is the server's command channel host:port.
	Addr string
	// TLS enables TLS on the command channel when set.
	TLS *tls.Config

	DataTimeout time.Duration
	MaxFileSize int64
}

// Session is the client side of a transfer session.
type Session struct {
	cfg    ClientConfig
	logger ports.Logger
	conn   net.Conn
	data   net.Conn
	cwd    string
}

// PutResult describes a finished upload.
type PutResult struct {
	// Stored is the server path the file was saved under.
	Stored string
	// Note is the server's remark, set when the name was changed.
	Note string
}

// Dial opens the command channel.
func Dial(ctx context.Context, cfg ClientConfig, logger ports.Logger) (*Session, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if cfg.DataTimeout <= 0 {
		cfg.DataTimeout = DefaultDataTimeout
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}

	var (
		conn net.Conn
		err  error
	)
	if cfg.TLS != nil {
		d := tls.Dialer{Config: cfg.TLS}
		conn, err = d.DialContext(ctx, "tcp", cfg.Addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", cfg.Addr)
	}
	if err != nil {
		return nil, domain.NewStepError(domain.StepConnect, err)
	}
	logger.Debug("command channel open", log.Addr("remote", conn.RemoteAddr()))
	return &Session{cfg: cfg, logger: logger, conn: conn}, nil
}

// Version names the command channel protocol, e.g. "TLS 1.3".
func (s *Session) Version() string {
	if tc, ok := s.conn.(*tls.Conn); ok {
		return tls.VersionName(tc.ConnectionState().Version)
	}
	return "plain TCP"
}

// Cwd returns the last remote directory the server reported.
func (s *Session) Cwd() string { return s.cwd }

// Login authenticates. It returns domain.ErrAuthFailed when the server
// rejects the credentials.
func (s *Session) Login(name, password string) error {
	if err := send(s.conn, wire.Message{keyName: name, keyPass: HashPassword(password)}); err != nil {
		return err
	}
	m, err := recv(s.conn)
	if err != nil {
		return err
	}
	if m.String(keyStatus) != statusOK {
		return domain.ErrAuthFailed
	}
	return nil
}

// OpenDataChannel negotiates the data channel in mode (ModePassive or
// ModeActive).
func (s *Session) OpenDataChannel(ctx context.Context, mode string) error {
	m, err := expect(s.conn, keyMode)
	if err != nil {
		return err
	}
	if m.String(keyMode) != modeReady {
		return fmt.Errorf("%w: server mode %v", domain.ErrProtocol, m[keyMode])
	}

	var data net.Conn
	switch mode {
	case ModePassive:
		data, err = s.dataPassive(ctx)
	case ModeActive:
		data, err = s.dataActive(ctx)
	default:
		return fmt.Errorf("unknown data channel mode %q", mode)
	}
	if err != nil {
		return err
	}
	s.data = data
	s.logger.Debug("data channel open", log.String("mode", mode), log.Addr("remote", data.RemoteAddr()))
	return nil
}

func (s *Session) dataPassive(ctx context.Context) (net.Conn, error) {
	if err := send(s.conn, wire.Message{keyMode: ModePassive}); err != nil {
		return nil, err
	}
	m, err := expect(s.conn, keyPort)
	if err != nil {
		return nil, err
	}
	port, ok := m.Int(keyPort)
	if !ok {
		return nil, fmt.Errorf("%w: bad port %v", domain.ErrProtocol, m[keyPort])
	}
	host, _ := domain.HostPort(s.conn.RemoteAddr())
	d := net.Dialer{Timeout: s.cfg.DataTimeout}
	c, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, domain.NewStepError(domain.StepConnect, err)
	}
	return c, nil
}

func (s *Session) dataActive(ctx context.Context) (net.Conn, error) {
	host, _ := domain.HostPort(s.conn.LocalAddr())
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return nil, domain.NewStepError(domain.StepBind, err)
	}
	defer ln.Close()

	if err := send(s.conn, wire.Message{keyMode: ModeActive}); err != nil {
		return nil, err
	}
	_, port := domain.HostPort(ln.Addr())
	if err := send(s.conn, wire.Message{keyPort: port}); err != nil {
		return nil, err
	}
	return acceptWithin(ln, s.cfg.DataTimeout, s.conn.RemoteAddr())
}

// Cd changes the remote directory and returns the new one.
func (s *Session) Cd(dir string) (string, error) {
	m, err := s.roundTrip(wire.Message{CmdCd: dir}, CmdCd)
	if err != nil {
		return "", err
	}
	got := m.String(CmdCd)
	if got == statusErr {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidPath, dir)
	}
	s.cwd = got
	return got, nil
}

// Ls returns the server's tree for args ("", "root" or "root depth").
func (s *Session) Ls(args string) (string, error) {
	m, err := s.roundTrip(wire.Message{CmdLs: args}, CmdLs)
	if err != nil {
		return "", err
	}
	tree := m.String(CmdLs)
	if tree == statusErr {
		return "", fmt.Errorf("%w: ls %s", domain.ErrInvalidPath, args)
	}
	return tree, nil
}

// Get downloads remote into w and returns the number of bytes written.
func (s *Session) Get(remote string, w io.Writer) (int64, error) {
	if err := s.requireData(); err != nil {
		return 0, err
	}
	m, err := s.roundTrip(wire.Message{CmdGet: remote}, CmdGet)
	if err != nil {
		return 0, err
	}
	if m.String(CmdGet) != statusOK {
		return 0, fmt.Errorf("%w: %s", domain.ErrInvalidPath, remote)
	}
	if size, ok := m.Int(keySize); ok && int64(size) > s.cfg.MaxFileSize {
		if err := send(s.conn, wire.Message{CmdGet: statusErr}); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("get %s: %w", remote, ErrFileTooLarge)
	}
	if err := send(s.conn, wire.Message{CmdGet: modeReady}); err != nil {
		return 0, err
	}
	n, err := wire.ReadFrameTo(w, s.data, s.cfg.MaxFileSize)
	if err != nil {
		return n, domain.NewStepError(domain.StepRead, err)
	}
	return n, nil
}

// Download fetches remote into dir. When a file of the same name exists
// a random suffix is added. In text mode line endings are converted for
// the local platform. It returns the path written.
func (s *Session) Download(remote, dir string, text bool) (string, error) {
	name := filepath.Base(filepath.FromSlash(remote))
	dst := filepath.Join(dir, name)
	if _, err := os.Lstat(dst); err == nil {
		dst = filepath.Join(dir, uniqueName(name))
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dst, err)
	}

	var (
		buf bytes.Buffer
		w   io.Writer = f
	)
	if text {
		w = &buf
	}
	_, err = s.Get(remote, w)
	if err == nil && text {
		_, err = f.Write(convertText(buf.Bytes(), runtime.GOOS))
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}

// Put uploads size bytes from r as name into the remote directory.
func (s *Session) Put(name string, r io.Reader, size int64) (PutResult, error) {
	if err := s.requireData(); err != nil {
		return PutResult{}, err
	}
	if size > s.cfg.MaxFileSize {
		return PutResult{}, fmt.Errorf("put %s: %w", name, ErrFileTooLarge)
	}
	m, err := s.roundTrip(wire.Message{CmdPut: name, keySize: size}, CmdPut)
	if err != nil {
		return PutResult{}, err
	}
	reply := m.Strings(CmdPut)
	if len(reply) == 0 || reply[0] != statusOK {
		reason := "rejected"
		if len(reply) > 1 {
			reason = reply[1]
		}
		if reason == ErrFileTooLarge.Error() {
			return PutResult{}, fmt.Errorf("put %s: %w", name, ErrFileTooLarge)
		}
		return PutResult{}, fmt.Errorf("put %s: %s", name, reason)
	}
	res := PutResult{}
	if len(reply) > 1 {
		res.Note = reply[1]
	}

	m, err = expect(s.conn, CmdPut)
	if err != nil {
		return res, err
	}
	if m.String(CmdPut) != modeReady {
		return res, fmt.Errorf("%w: put answered %v", domain.ErrProtocol, m[CmdPut])
	}
	if err := wire.WriteFrameFrom(s.data, r, size); err != nil {
		return res, domain.NewStepError(domain.StepSend, err)
	}

	m, err = expect(s.conn, keyStored)
	if err != nil {
		return res, err
	}
	res.Stored = m.String(keyStored)
	return res, nil
}

// Upload sends the local file at path.
func (s *Session) Upload(path string) (PutResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return PutResult{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return PutResult{}, err
	}
	if !info.Mode().IsRegular() {
		return PutResult{}, fmt.Errorf("%w: %s is not a file", domain.ErrInvalidPath, path)
	}
	return s.Put(filepath.Base(path), f, info.Size())
}

// Close sends exit and closes both channels.
func (s *Session) Close() error {
	err := send(s.conn, wire.Message{CmdExit: ""})
	if s.data != nil {
		s.data.Close()
	}
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Session) roundTrip(req wire.Message, key string) (wire.Message, error) {
	if err := send(s.conn, req); err != nil {
		return nil, err
	}
	return expect(s.conn, key)
}

func (s *Session) requireData() error {
	if s.data == nil {
		return errors.New("transfer: data channel not open")
	}
	return nil
}

// isConnectionError reports whether err ended the session, as opposed to
// a rejected request.
func isConnectionError(err error) bool {
	var se *domain.StepError
	return errors.As(err, &se)
}
