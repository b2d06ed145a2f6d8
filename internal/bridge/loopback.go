package bridge

import (
	"bytes"
	"time"

	"github.com/bigbag/ch579-flasher/internal/protocol"
	"github.com/bigbag/ch579-flasher/internal/slip"
	"github.com/bigbag/ch579-flasher/internal/target"
)

// Handle executes one request against t the way bridge firmware does and
// returns the response to send back.
func Handle(t target.Target, req *protocol.Request) *protocol.Response {
	resp := &protocol.Response{Command: req.Command}
	reject := func(code byte) *protocol.Response {
		resp.Status, resp.Error = 1, code
		return resp
	}

	switch req.Command {
	case protocol.CmdSync:
		if !bytes.Equal(req.Data, protocol.SyncData()) {
			return reject(protocol.ErrInvalidMessage)
		}
	case protocol.CmdRead8, protocol.CmdRead16, protocol.CmdRead32:
		addr, err := protocol.ParseReadData(req.Data)
		if err != nil {
			return reject(protocol.ErrInvalidMessage)
		}
		switch req.Command {
		case protocol.CmdRead8:
			resp.Value = uint32(t.Read8(addr))
		case protocol.CmdRead16:
			resp.Value = uint32(t.Read16(addr))
		default:
			resp.Value = t.Read32(addr)
		}
	case protocol.CmdWrite8, protocol.CmdWrite16, protocol.CmdWrite32:
		addr, value, err := protocol.ParseWriteData(req.Data)
		if err != nil {
			return reject(protocol.ErrInvalidMessage)
		}
		switch req.Command {
		case protocol.CmdWrite8:
			t.Write8(addr, uint8(value))
		case protocol.CmdWrite16:
			t.Write16(addr, uint16(value))
		default:
			t.Write32(addr, value)
		}
	default:
		return reject(protocol.ErrInvalidMessage)
	}

	if t.CheckError() != nil {
		resp.Value = 0
		return reject(protocol.ErrAckFault)
	}
	return resp
}

// Loopback is an in-memory Port whose far end is Handle running against a
// local target. It backs dry runs and tests.
type Loopback struct {
	t     target.Target
	split slip.Splitter
	out   bytes.Buffer

	// Drop discards that many of the next responses.
	Drop int
	// Noise is written ahead of every response.
	Noise []byte
	// Requests counts decoded requests.
	Requests int
}

var _ Port = (*Loopback)(nil)

// NewLoopback returns a Loopback serving t.
func NewLoopback(t target.Target) *Loopback {
	return &Loopback{t: t}
}

func (l *Loopback) Write(data []byte) (int, error) {
	l.split.Write(data)
	for {
		frame, ok := l.split.Next()
		if !ok {
			break
		}
		var resp *protocol.Response
		raw, err := slip.Decode(frame)
		if err != nil {
			continue
		}
		req, err := protocol.DecodeRequest(raw)
		if err != nil {
			if len(raw) < 2 {
				continue
			}
			resp = &protocol.Response{Command: raw[1], Status: 1, Error: protocol.ErrInvalidCRC}
		} else {
			l.Requests++
			resp = Handle(l.t, req)
		}
		if l.Drop > 0 {
			l.Drop--
			continue
		}
		l.out.Write(l.Noise)
		l.out.Write(slip.Encode(resp.Encode()))
	}
	return len(data), nil
}

// ReadWithTimeout returns pending response bytes. With nothing pending it
// sleeps for timeout and returns zero bytes, like a serial read that timed out.
func (l *Loopback) ReadWithTimeout(buf []byte, timeout time.Duration) (int, error) {
	if l.out.Len() == 0 {
		time.Sleep(timeout)
		return 0, nil
	}
	return l.out.Read(buf)
}

// Flush discards pending response bytes.
func (l *Loopback) Flush() error {
	l.out.Reset()
	return nil
}
