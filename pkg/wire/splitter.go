package wire

import "bytes"

// Fragment is a piece of a NUL-terminated message found in one read.
// Text aliases the chunk passed to Feed and is only valid until the
// caller reuses that buffer.
type Fragment struct {
	Text []byte
	// First is set when the fragment starts a new message.
	First bool
	// Last is set when the fragment's message was terminated by a NUL
	// inside the chunk.
	Last bool
}

// Splitter cuts a byte stream into NUL-terminated messages. A message
// may span any number of chunks. The zero value is ready to use.
type Splitter struct {
	open bool
}

// Feed returns the fragments contained in chunk, in order. Empty
// messages (a NUL with nothing pending) produce no fragment.
func (s *Splitter) Feed(chunk []byte) []Fragment {
	var out []Fragment
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, 0)
		if i < 0 {
			out = append(out, Fragment{Text: chunk, First: !s.open})
			s.open = true
			break
		}
		if i > 0 || s.open {
			out = append(out, Fragment{Text: chunk[:i], First: !s.open, Last: true})
		}
		s.open = false
		chunk = chunk[i+1:]
	}
	return out
}

// Pending reports whether a message has been started but not terminated.
func (s *Splitter) Pending() bool { return s.open }

// Reset discards any partially received message.
func (s *Splitter) Reset() { s.open = false }

// Assembler joins fragments back into whole messages.
type Assembler struct {
	buf []byte
}

// Add appends f and returns the complete message when f closes one.
// The returned slice is owned by the caller.
func (a *Assembler) Add(f Fragment) ([]byte, bool) {
	if f.First {
		a.buf = a.buf[:0]
	}
	a.buf = append(a.buf, f.Text...)
	if !f.Last {
		return nil, false
	}
	msg := make([]byte, len(a.buf))
	copy(msg, a.buf)
	a.buf = a.buf[:0]
	return msg, true
}

// Flush returns whatever unterminated text is buffered, if any, and
// clears the buffer. Servers call it when the peer closes mid-message.
func (a *Assembler) Flush() ([]byte, bool) {
	if len(a.buf) == 0 {
		return nil, false
	}
	msg := make([]byte, len(a.buf))
	copy(msg, a.buf)
	a.buf = a.buf[:0]
	return msg, true
}
