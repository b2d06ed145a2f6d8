// Package slip implements the RFC 1055 framing used on the bridge link.
package slip

import (
	"bytes"
	"errors"
)

const (
	End    = 0xC0
	Esc    = 0xDB
	EscEnd = 0xDC
	EscEsc = 0xDD
)

// ErrBadEscape is returned by Decode for an ESC byte not followed by
// ESC_END or ESC_ESC.
var ErrBadEscape = errors.New("slip: invalid escape sequence")

// Encode wraps data in a frame with an END byte on both sides.
func Encode(data []byte) []byte {
	size := len(data) + 2
	for _, b := range data {
		if b == End || b == Esc {
			size++
		}
	}

	out := make([]byte, 0, size)
	out = append(out, End)
	for _, b := range data {
		switch b {
		case End:
			out = append(out, Esc, EscEnd)
		case Esc:
			out = append(out, Esc, EscEsc)
		default:
			out = append(out, b)
		}
	}
	return append(out, End)
}

// Decode strips the END delimiters from frame and unescapes the body.
// A frame with no body decodes to an empty slice.
func Decode(frame []byte) ([]byte, error) {
	start, end := 0, len(frame)
	for start < end && frame[start] == End {
		start++
	}
	for end > start && frame[end-1] == End {
		end--
	}

	body := frame[start:end]
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		if body[i] != Esc {
			out = append(out, body[i])
			continue
		}
		i++
		if i == len(body) {
			return nil, ErrBadEscape
		}
		switch body[i] {
		case EscEnd:
			out = append(out, End)
		case EscEsc:
			out = append(out, Esc)
		default:
			return nil, ErrBadEscape
		}
	}
	return out, nil
}

// Splitter reassembles frames from a stream that arrives in arbitrary
// pieces. Bytes outside a frame are dropped and runs of END bytes
// collapse, so empty frames are never returned.
type Splitter struct {
	buf []byte
}

// Write appends stream bytes. It never fails.
func (s *Splitter) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}

// Next returns the next complete frame, delimiters included.
func (s *Splitter) Next() ([]byte, bool) {
	start := bytes.IndexByte(s.buf, End)
	if start < 0 {
		s.buf = s.buf[:0]
		return nil, false
	}
	for start+1 < len(s.buf) && s.buf[start+1] == End {
		start++
	}
	s.buf = s.buf[start:]

	n := bytes.IndexByte(s.buf[1:], End)
	if n < 0 {
		return nil, false
	}
	frame := append([]byte(nil), s.buf[:n+2]...)
	s.buf = s.buf[n+2:]
	return frame, true
}

// Buffered returns the number of bytes held for an incomplete frame.
func (s *Splitter) Buffered() int {
	return len(s.buf)
}

// Reset drops any partial frame.
func (s *Splitter) Reset() {
	s.buf = s.buf[:0]
}
