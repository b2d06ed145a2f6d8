package target

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTransport is returned when the link to the target reports a failure.
	ErrTransport = errors.New("transport error")

	// ErrUnknownCommand is returned by RunCommand for names no driver registered.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrOutOfRange is returned when an operation falls outside a flash region.
	ErrOutOfRange = errors.New("address out of range")
)

// TransportError wraps err with ErrTransport unless it already carries it.
func TransportError(err error) error {
	if err == nil || errors.Is(err, ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// Target is one connected, halted microcontroller reachable over a debug link.
//
// Reads and writes do not return errors. A failed access latches an error
// that CheckError reports until the session ends, so a sequence of register
// accesses can be issued back to back and checked once.
//
// After a failure reads may return zero without reaching the device, but
// writes are still attempted so a caller can relock flash on its way out.
// The latched error stays the first one seen.
type Target interface {
	Read8(addr uint32) uint8
	Read16(addr uint32) uint16
	Read32(addr uint32) uint32
	Write8(addr uint32, value uint8)
	Write16(addr uint32, value uint16)
	Write32(addr uint32, value uint32)

	// CheckError returns the first transport error seen, or nil.
	CheckError() error
}

// FlashController is the per-chip implementation behind a FlashRegion.
type FlashController interface {
	// Erase erases the block containing addr.
	Erase(ctx context.Context, addr, length uint32) error
	// Write programs src at dest. The region's WriteSize bounds how much of
	// src a single call consumes.
	Write(ctx context.Context, dest uint32, src []byte) error
	// Prepare opens a programming session.
	Prepare(ctx context.Context) error
	// Done closes a programming session.
	Done(ctx context.Context) error
}

// FlashRegion describes a flash area and the controller that programs it.
type FlashRegion struct {
	Start     uint32
	Length    uint32
	BlockSize uint32
	WriteSize uint32
	Erased    byte

	Controller FlashController
}

// End returns the first address past the region.
func (r *FlashRegion) End() uint32 {
	return r.Start + r.Length
}

// Contains reports whether [addr, addr+length) lies inside the region.
func (r *FlashRegion) Contains(addr, length uint32) bool {
	if addr < r.Start || addr >= r.End() {
		return false
	}
	return uint64(addr)+uint64(length) <= uint64(r.End())
}

// BlockAlign rounds addr down to the start of its erase block.
func (r *FlashRegion) BlockAlign(addr uint32) uint32 {
	return r.Start + (addr-r.Start)/r.BlockSize*r.BlockSize
}

func (r *FlashRegion) String() string {
	return fmt.Sprintf("flash [0x%08X, 0x%08X) block %d write %d", r.Start, r.End(), r.BlockSize, r.WriteSize)
}

// RAMRegion is a static RAM declaration.
type RAMRegion struct {
	Start  uint32
	Length uint32
}

func (r RAMRegion) String() string {
	return fmt.Sprintf("ram [0x%08X, 0x%08X)", r.Start, r.Start+r.Length)
}

// CommandHandler runs a driver command with its raw arguments.
type CommandHandler func(ctx context.Context, t Target, args []string) error

// Command is a named driver operation invoked directly by the user.
type Command struct {
	Name    string
	Help    string
	Handler CommandHandler
}

// Registration is what a successful probe hands back to the caller.
type Registration struct {
	Driver   string
	Group    string
	Flash    []*FlashRegion
	RAM      []RAMRegion
	Commands []Command
}

// Command looks up a registered command by name.
func (r *Registration) Command(name string) (Command, bool) {
	for _, c := range r.Commands {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// RunCommand invokes the named command against t.
func (r *Registration) RunCommand(ctx context.Context, t Target, name string, args []string) error {
	c, ok := r.Command(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return c.Handler(ctx, t, args)
}

// FlashAt returns the flash region containing addr, or nil.
func (r *Registration) FlashAt(addr uint32) *FlashRegion {
	for _, f := range r.Flash {
		if f.Contains(addr, 0) {
			return f
		}
	}
	return nil
}

// ProbeFunc identifies a device. It must not modify the target when the
// device is not the one it drives.
type ProbeFunc func(t Target) (*Registration, error)

// Probe tries each probe in order and returns the first registration.
func Probe(t Target, probes ...ProbeFunc) (*Registration, error) {
	var errs []error
	for _, p := range probes {
		reg, err := p(t)
		if err == nil {
			return reg, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, errors.New("no probes given")
	}
	return nil, fmt.Errorf("no driver matched: %w", errors.Join(errs...))
}
