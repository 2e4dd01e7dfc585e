package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/internal/ports"
	"github.com/bft-labs/socklab/pkg/log"
	"github.com/bft-labs/socklab/pkg/wire"
)

// session is the server side of one client connection.
type session struct {
	srv    *Server
	id     string
	conn   net.Conn
	data   net.Conn
	peer   string
	user   string
	cwd    string
	logger ports.Logger
}

func (s *session) authenticate() error {
	m, err := recv(s.conn)
	if err != nil {
		return err
	}
	name, pass := m.String(keyName), m.String(keyPass)
	if !s.srv.deps.Credentials.Verify(name, pass) {
		if err := send(s.conn, wire.Message{keyStatus: statusInvalid}); err != nil {
			return err
		}
		return fmt.Errorf("%w: user %q", domain.ErrAuthFailed, name)
	}
	s.user = name
	s.logger.Info("user authenticated", log.String("session", s.id), log.String("user", name))
	return send(s.conn, wire.Message{keyStatus: statusOK})
}

func (s *session) negotiateData(ctx context.Context) (net.Conn, error) {
	if err := send(s.conn, wire.Message{keyMode: modeReady}); err != nil {
		return nil, err
	}
	m, err := expect(s.conn, keyMode)
	if err != nil {
		return nil, err
	}
	switch mode := m.String(keyMode); mode {
	case ModePassive:
		return s.dataPassive(ctx)
	case ModeActive:
		return s.dataActive(ctx)
	default:
		_ = send(s.conn, wire.Message{keyErr: "invalid data channel mode"})
		return nil, fmt.Errorf("%w: data channel mode %q", domain.ErrProtocol, mode)
	}
}

// dataPassive listens on an ephemeral port of the command channel's
// local address and waits for the client to connect.
func (s *session) dataPassive(ctx context.Context) (net.Conn, error) {
	host, _ := domain.HostPort(s.conn.LocalAddr())
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return nil, domain.NewStepError(domain.StepBind, err)
	}
	defer ln.Close()

	_, port := domain.HostPort(ln.Addr())
	if err := send(s.conn, wire.Message{keyPort: port}); err != nil {
		return nil, err
	}
	return acceptWithin(ln, s.srv.cfg.DataTimeout, s.conn.RemoteAddr())
}

// dataActive dials the port the client announces, on the client's host.
func (s *session) dataActive(ctx context.Context) (net.Conn, error) {
	m, err := expect(s.conn, keyPort)
	if err != nil {
		return nil, err
	}
	port, ok := m.Int(keyPort)
	if !ok || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: bad port %v", domain.ErrProtocol, m[keyPort])
	}
	host, _ := domain.HostPort(s.conn.RemoteAddr())
	d := net.Dialer{Timeout: s.srv.cfg.DataTimeout}
	c, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, domain.NewStepError(domain.StepConnect, err)
	}
	return c, nil
}

// acceptWithin accepts one connection within timeout. When peer is set,
// connections from another host are rejected.
func acceptWithin(ln net.Listener, timeout time.Duration, peer net.Addr) (net.Conn, error) {
	if tl, ok := ln.(*net.TCPListener); ok {
		if err := tl.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
	}
	c, err := ln.Accept()
	if err != nil {
		return nil, domain.NewStepError(domain.StepAccept, err)
	}
	if peer != nil {
		want, _ := domain.HostPort(peer)
		got, _ := domain.HostPort(c.RemoteAddr())
		if want != got {
			c.Close()
			return nil, fmt.Errorf("%w: data connection from %s, expected %s", domain.ErrProtocol, got, want)
		}
	}
	return c, nil
}

func (s *session) serveCommands(ctx context.Context) error {
	for {
		m, err := recv(s.conn)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch {
		case m.Has(CmdExit):
			s.logger.Debug("client exit", log.String("session", s.id))
			return nil
		case m.Has(CmdCd):
			err = s.cd(m.String(CmdCd))
		case m.Has(CmdLs):
			err = s.ls(m.String(CmdLs))
		case m.Has(CmdGet):
			err = s.get(m.String(CmdGet))
		case m.Has(CmdPut):
			err = s.put(m)
		default:
			s.logger.Warn("unknown command", log.String("session", s.id), log.Any("keys", keys(m)))
			err = send(s.conn, wire.Message{keyErr: domain.ErrUnknownCommand.Error()})
		}
		if err != nil {
			return err
		}
	}
}

func (s *session) cd(arg string) error {
	if strings.TrimSpace(arg) == "" {
		return send(s.conn, wire.Message{CmdCd: statusErr})
	}
	virtual, _, err := s.srv.root.ResolveDir(s.cwd, arg)
	if err != nil {
		s.logger.Debug("cd rejected", log.String("session", s.id), log.Err(err))
		return send(s.conn, wire.Message{CmdCd: statusErr})
	}
	s.cwd = virtual
	return send(s.conn, wire.Message{CmdCd: virtual})
}

func (s *session) ls(arg string) error {
	tree, err := s.tree(strings.Fields(arg))
	if err != nil {
		s.logger.Debug("ls rejected", log.String("session", s.id), log.Err(err))
		return send(s.conn, wire.Message{CmdLs: statusErr})
	}
	return send(s.conn, wire.Message{CmdLs: tree})
}

func (s *session) tree(args []string) (string, error) {
	target, depth := ".", 1
	switch len(args) {
	case 0:
	case 2:
		d, err := strconv.Atoi(args[1])
		if err != nil {
			return "", fmt.Errorf("depth: %w", err)
		}
		depth = d
		fallthrough
	case 1:
		target = args[0]
	default:
		return "", fmt.Errorf("too many arguments")
	}
	virtual, real, err := s.srv.root.ResolveDir(s.cwd, target)
	if err != nil {
		return "", err
	}
	return RenderTree(real, virtual, depth)
}

func (s *session) get(arg string) error {
	virtual, real, info, err := s.srv.root.ResolveFile(s.cwd, arg)
	if err != nil {
		s.logger.Debug("get rejected", log.String("session", s.id), log.Err(err))
		return send(s.conn, wire.Message{CmdGet: statusErr})
	}
	f, err := os.Open(real)
	if err != nil {
		s.logger.Warn("get open failed", log.String("session", s.id), log.Err(err))
		return send(s.conn, wire.Message{CmdGet: statusErr})
	}
	defer f.Close()

	if info.Size() > s.srv.cfg.MaxFileSize {
		s.logger.Info("get refused",
			log.String("session", s.id),
			log.String("path", virtual),
			log.Int64("bytes", info.Size()),
		)
		return send(s.conn, wire.Message{CmdGet: statusErr})
	}

	if err := send(s.conn, wire.Message{CmdGet: statusOK, keySize: info.Size()}); err != nil {
		return err
	}
	m, err := expect(s.conn, CmdGet)
	if err != nil {
		return err
	}
	switch m.String(CmdGet) {
	case modeReady:
	case statusErr:
		s.logger.Info("get declined by client", log.String("session", s.id), log.String("path", virtual))
		return nil
	default:
		return fmt.Errorf("%w: get answered %v", domain.ErrProtocol, m[CmdGet])
	}

	if err := wire.WriteFrameFrom(s.data, f, info.Size()); err != nil {
		return domain.NewStepError(domain.StepSend, err)
	}
	s.logger.Info("file sent",
		log.String("session", s.id),
		log.String("path", virtual),
		log.Int64("bytes", info.Size()),
	)
	return nil
}

func (s *session) put(req wire.Message) error {
	name := path.Base(filepath.ToSlash(strings.TrimSpace(req.String(CmdPut))))
	if name == "." || name == "/" || name == ".." || name == "" {
		return send(s.conn, wire.Message{CmdPut: []any{statusErr, "invalid file name"}})
	}
	if size, ok := req.Int(keySize); ok && int64(size) > s.srv.cfg.MaxFileSize {
		return send(s.conn, wire.Message{CmdPut: []any{statusErr, ErrFileTooLarge.Error()}})
	}

	virtual, real, err := s.srv.root.Resolve(s.cwd, name)
	if err != nil {
		return send(s.conn, wire.Message{CmdPut: []any{statusErr, "invalid file name"}})
	}
	note := ""
	if _, err := os.Lstat(real); err == nil {
		renamed := uniqueName(name)
		note = fmt.Sprintf("File %s already exists on server, it will be saved as %s", name, renamed)
		virtual, real, err = s.srv.root.Resolve(s.cwd, renamed)
		if err != nil {
			return send(s.conn, wire.Message{CmdPut: []any{statusErr, "invalid file name"}})
		}
	}

	if !s.srv.inflight.acquire(real) {
		return send(s.conn, wire.Message{CmdPut: []any{statusErr, "file is being uploaded by another session"}})
	}
	defer s.srv.inflight.release(real)

	if err := send(s.conn, wire.Message{CmdPut: []any{statusOK, note}}); err != nil {
		return err
	}
	if err := send(s.conn, wire.Message{CmdPut: modeReady}); err != nil {
		return err
	}

	n, err := s.receiveFile(real)
	if err != nil {
		return err
	}
	s.logger.Info("file stored",
		log.String("session", s.id),
		log.String("path", virtual),
		log.Int64("bytes", n),
	)
	return send(s.conn, wire.Message{keyStored: virtual})
}

// receiveFile reads one frame from the data channel into a temporary
// file next to dst and renames it into place.
func (s *session) receiveFile(dst string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := wire.ReadFrameTo(tmp, s.data, s.srv.cfg.MaxFileSize)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, domain.NewStepError(domain.StepRead, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, fmt.Errorf("store upload: %w", err)
	}
	return n, nil
}
