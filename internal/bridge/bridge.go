// Package bridge implements target.Target over a serial debug bridge that
// speaks the SLIP framed memory access protocol in internal/protocol.
package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/bigbag/ch579-flasher/internal/protocol"
	"github.com/bigbag/ch579-flasher/internal/slip"
	"github.com/bigbag/ch579-flasher/internal/target"
)

const (
	// DefaultTimeout bounds a single request/response exchange.
	DefaultTimeout = 500 * time.Millisecond

	syncAttempts = 5
	syncTimeout  = 200 * time.Millisecond
)

// ErrTimeout is returned when the bridge does not answer in time.
var ErrTimeout = errors.New("bridge: response timeout")

// Port is the byte link to the bridge. *serial.Port satisfies it.
type Port interface {
	Write(data []byte) (int, error)
	ReadWithTimeout(buf []byte, timeout time.Duration) (int, error)
	Flush() error
}

// Target is a microcontroller reached through the bridge.
type Target struct {
	port    Port
	timeout time.Duration
	split   slip.Splitter
	buf     []byte
	err     error
}

var _ target.Target = (*Target)(nil)

// New returns a Target on port. Call Sync before the first access.
func New(port Port) *Target {
	return &Target{
		port:    port,
		timeout: DefaultTimeout,
		buf:     make([]byte, 256),
	}
}

// SetTimeout changes the per-exchange timeout.
func (t *Target) SetTimeout(d time.Duration) {
	t.timeout = d
}

// Sync establishes contact with the bridge, retrying a few times since the
// first frames after opening the port are often lost.
func (t *Target) Sync() error {
	if err := t.port.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	t.split.Reset()

	var lastErr error
	for attempt := 0; attempt < syncAttempts; attempt++ {
		_, err := t.exchange(protocol.CmdSync, protocol.SyncData(), syncTimeout)
		if err == nil {
			glog.V(1).Infof("bridge: synced after %d attempt(s)", attempt+1)
			return nil
		}
		glog.V(2).Infof("bridge: sync attempt %d: %v", attempt+1, err)
		lastErr = err
	}
	return fmt.Errorf("sync failed after %d attempts: %w", syncAttempts, lastErr)
}

func (t *Target) Read8(addr uint32) uint8   { return uint8(t.read(8, addr)) }
func (t *Target) Read16(addr uint32) uint16 { return uint16(t.read(16, addr)) }
func (t *Target) Read32(addr uint32) uint32 { return t.read(32, addr) }

func (t *Target) Write8(addr uint32, value uint8)   { t.write(8, addr, uint32(value)) }
func (t *Target) Write16(addr uint32, value uint16) { t.write(16, addr, uint32(value)) }
func (t *Target) Write32(addr uint32, value uint32) { t.write(32, addr, value) }

// CheckError returns the first failed access. Once set, later reads return
// zero without being sent; writes are still sent.
func (t *Target) CheckError() error {
	return t.err
}

func (t *Target) read(width int, addr uint32) uint32 {
	if t.err != nil {
		return 0
	}
	resp, err := t.exchange(protocol.ReadCommand(width), protocol.ReadData(addr), t.timeout)
	if err != nil {
		t.fail(fmt.Errorf("read%d 0x%08X: %w", width, addr, err))
		return 0
	}
	glog.V(4).Infof("bridge: read%d 0x%08X = 0x%X", width, addr, resp.Value)
	return resp.Value
}

func (t *Target) write(width int, addr, value uint32) {
	if t.err != nil {
		// Late answers to the failed exchange must not be taken for ours.
		t.discardPending()
	}
	if _, err := t.exchange(protocol.WriteCommand(width), protocol.WriteData(addr, value), t.timeout); err != nil {
		t.fail(fmt.Errorf("write%d 0x%08X: %w", width, addr, err))
		return
	}
	glog.V(4).Infof("bridge: write%d 0x%08X <- 0x%X", width, addr, value)
}

// fail latches err unless an earlier failure is already latched.
func (t *Target) fail(err error) {
	glog.V(1).Infof("bridge: %v", err)
	if t.err == nil {
		t.err = target.TransportError(err)
	}
}

func (t *Target) discardPending() {
	if err := t.port.Flush(); err != nil {
		glog.V(2).Infof("bridge: flush: %v", err)
	}
	t.split.Reset()
}

// exchange sends one request and waits for the response to the same command.
// Frames that do not decode or answer another command are skipped.
func (t *Target) exchange(cmd byte, data []byte, timeout time.Duration) (*protocol.Response, error) {
	req := protocol.NewRequest(cmd, data)
	if _, err := t.port.Write(slip.Encode(req.Encode())); err != nil {
		return nil, fmt.Errorf("send %s: %w", protocol.CommandName(cmd), err)
	}

	deadline := time.Now().Add(timeout)
	for {
		for {
			frame, ok := t.split.Next()
			if !ok {
				break
			}
			resp, err := decodeFrame(frame)
			if err != nil {
				glog.V(4).Infof("bridge: dropping frame: %v", err)
				continue
			}
			if resp.Command != cmd {
				glog.V(4).Infof("bridge: dropping stale %s response", protocol.CommandName(resp.Command))
				continue
			}
			if !resp.IsSuccess() {
				return nil, fmt.Errorf("%s: %s", protocol.CommandName(cmd), resp.ErrorString())
			}
			return resp, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%s: %w", protocol.CommandName(cmd), ErrTimeout)
		}
		n, err := t.port.ReadWithTimeout(t.buf, remaining)
		if err != nil {
			return nil, fmt.Errorf("receive %s: %w", protocol.CommandName(cmd), err)
		}
		t.split.Write(t.buf[:n])
	}
}

func decodeFrame(frame []byte) (*protocol.Response, error) {
	data, err := slip.Decode(frame)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeResponse(data)
}
