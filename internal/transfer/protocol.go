package transfer

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bft-labs/socklab/internal/domain"
	"github.com/bft-labs/socklab/pkg/wire"
)

// Message keys and values of the command channel.
const (
	keyName   = "name"
	keyPass   = "pass"
	keyStatus = "status"
	keyMode   = "mode"
	keyPort   = "port"
	keyErr    = "ERR"
	keySize   = "size"

	CmdCd   = "cd"
	CmdLs   = "ls"
	CmdGet  = "get"
	CmdPut  = "put"
	CmdExit = "exit"

	// keyStored answers a finished upload with the name it was stored as.
	keyStored = "stored"

	statusOK      = "OK"
	statusInvalid = "INV"
	statusErr     = "ERR"
	modeReady     = "ready"
)

// Data channel modes.
const (
	ModePassive = "p"
	ModeActive  = "a"
)

// DefaultDataTimeout bounds data channel dials and accepts.
const DefaultDataTimeout = 5 * time.Second

// DefaultMaxFileSize bounds a single transferred file.
const DefaultMaxFileSize int64 = 1 << 30

// ErrFileTooLarge is returned when a file exceeds the configured
// MaxFileSize of either side.
var ErrFileTooLarge = errors.New("file too large")

// HashPassword returns the hex SHA-512 digest sent in place of password.
func HashPassword(password string) string {
	sum := sha512.Sum512([]byte(password))
	return hex.EncodeToString(sum[:])
}

func send(w io.Writer, m wire.Message) error {
	if err := wire.WriteMessage(w, m); err != nil {
		return domain.NewStepError(domain.StepSend, err)
	}
	return nil
}

func recv(r io.Reader) (wire.Message, error) {
	m, err := wire.ReadMessage(r)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = fmt.Errorf("%w: %w", domain.ErrClosedByPeer, err)
	}
	if err != nil {
		return nil, domain.NewStepError(domain.StepRead, err)
	}
	return m, nil
}

// expect receives a message and checks that it carries key.
func expect(r io.Reader, key string) (wire.Message, error) {
	m, err := recv(r)
	if err != nil {
		return nil, err
	}
	if m.Has(keyErr) {
		return m, fmt.Errorf("%w: peer error %v", domain.ErrProtocol, m[keyErr])
	}
	if !m.Has(key) {
		return m, fmt.Errorf("%w: expected %q, got %v", domain.ErrProtocol, key, keys(m))
	}
	return m, nil
}

func keys(m wire.Message) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
