package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// HeaderLength is the size of the ASCII length header preceding every
// frame.
const HeaderLength = 10

// DefaultMaxFrame bounds command channel frames.
const DefaultMaxFrame = 1 << 20

var (
	// ErrBadHeader is returned when a frame header is not a decimal length.
	ErrBadHeader = errors.New("wire: malformed frame header")
	// ErrFrameTooLarge is returned when a frame exceeds the caller's limit.
	ErrFrameTooLarge = errors.New("wire: frame too large")
)

const maxHeaderValue = 9999999999

func header(n int64) ([]byte, error) {
	if n < 0 || n > maxHeaderValue {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	return []byte(fmt.Sprintf("%-*d", HeaderLength, n)), nil
}

// WriteFrame writes the header and payload with a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	h, err := header(int64(len(payload)))
	if err != nil {
		return err
	}
	_, err = w.Write(append(h, payload...))
	return err
}

// WriteFrameFrom writes a frame of size bytes copied from r. It fails if
// r yields fewer than size bytes.
func WriteFrameFrom(w io.Writer, r io.Reader, size int64) error {
	h, err := header(size)
	if err != nil {
		return err
	}
	if _, err := w.Write(h); err != nil {
		return err
	}
	n, err := io.CopyN(w, r, size)
	if err != nil {
		return fmt.Errorf("wire: frame body: wrote %d of %d bytes: %w", n, size, err)
	}
	return nil
}

// ReadHeader reads and parses a frame header. It returns io.EOF only if
// the stream ended cleanly before the first header byte.
func ReadHeader(r io.Reader) (int64, error) {
	var h [HeaderLength]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(bytes.TrimSpace(h[:])), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadHeader, h[:])
	}
	return n, nil
}

// ReadFrame reads one frame whose payload may not exceed max bytes.
func ReadFrame(r io.Reader, max int64) ([]byte, error) {
	n, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	if n > max {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, max)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("wire: frame body: %w", err)
	}
	return buf, nil
}

// ReadFrameTo copies one frame's payload into w and returns its size.
func ReadFrameTo(w io.Writer, r io.Reader, max int64) (int64, error) {
	n, err := ReadHeader(r)
	if err != nil {
		return 0, err
	}
	if n > max {
		return 0, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, max)
	}
	copied, err := io.CopyN(w, r, n)
	if err != nil {
		return copied, fmt.Errorf("wire: frame body: read %d of %d bytes: %w", copied, n, err)
	}
	return n, nil
}
