// Package targettest provides a scripted target.Target for driver tests.
package targettest

import (
	"fmt"
	"strings"
)

// Op is the direction of a recorded access.
type Op byte

const (
	OpRead  Op = 'R'
	OpWrite Op = 'W'
)

// Access is one recorded register access.
type Access struct {
	Op    Op
	Width int
	Addr  uint32
	Value uint32
}

func (a Access) String() string {
	return fmt.Sprintf("%c%d 0x%08X=0x%X", a.Op, a.Width, a.Addr, a.Value)
}

// Fake is a register file that records every access.
//
// Reads return the last value written to the address unless a Script for that
// address has values left, in which case they are consumed in order.
type Fake struct {
	Regs   map[uint32]uint32
	Script map[uint32][]uint32
	Log    []Access

	// Err is returned by CheckError. FailAfterReads, when positive, sets Err
	// to FailErr once that many reads have been served.
	Err            error
	FailAfterReads int
	FailErr        error

	// By default writes after Err still land, as on the serial bridge.
	// DropAfterError models a link that is gone: once Err is set, reads
	// return zero and nothing is applied or logged.
	DropAfterError bool

	reads int
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		Regs:   make(map[uint32]uint32),
		Script: make(map[uint32][]uint32),
	}
}

// Set presets the value of a register.
func (f *Fake) Set(addr, value uint32) *Fake {
	f.Regs[addr] = value
	return f
}

// Queue appends values returned by successive reads of addr.
func (f *Fake) Queue(addr uint32, values ...uint32) *Fake {
	f.Script[addr] = append(f.Script[addr], values...)
	return f
}

func (f *Fake) dropped() bool {
	return f.DropAfterError && f.Err != nil
}

func (f *Fake) read(addr uint32, width int) uint32 {
	if f.dropped() {
		return 0
	}
	v := f.Regs[addr]
	if q := f.Script[addr]; len(q) > 0 {
		v = q[0]
		f.Script[addr] = q[1:]
	}
	f.Log = append(f.Log, Access{Op: OpRead, Width: width, Addr: addr, Value: v})
	f.reads++
	if f.FailAfterReads > 0 && f.reads >= f.FailAfterReads && f.Err == nil {
		f.Err = f.FailErr
	}
	return v
}

func (f *Fake) write(addr uint32, width int, value uint32) {
	if f.dropped() {
		return
	}
	f.Regs[addr] = value
	f.Log = append(f.Log, Access{Op: OpWrite, Width: width, Addr: addr, Value: value})
}

func (f *Fake) Read8(addr uint32) uint8   { return uint8(f.read(addr, 8)) }
func (f *Fake) Read16(addr uint32) uint16 { return uint16(f.read(addr, 16)) }
func (f *Fake) Read32(addr uint32) uint32 { return f.read(addr, 32) }

func (f *Fake) Write8(addr uint32, value uint8)   { f.write(addr, 8, uint32(value)) }
func (f *Fake) Write16(addr uint32, value uint16) { f.write(addr, 16, uint32(value)) }
func (f *Fake) Write32(addr uint32, value uint32) { f.write(addr, 32, value) }

func (f *Fake) CheckError() error { return f.Err }

// Writes returns the recorded writes in order.
func (f *Fake) Writes() []Access {
	var out []Access
	for _, a := range f.Log {
		if a.Op == OpWrite {
			out = append(out, a)
		}
	}
	return out
}

// Reads returns how many reads of addr were served.
func (f *Fake) Reads(addr uint32) int {
	n := 0
	for _, a := range f.Log {
		if a.Op == OpRead && a.Addr == addr {
			n++
		}
	}
	return n
}

// Reset clears the access log.
func (f *Fake) Reset() {
	f.Log = nil
	f.reads = 0
}

// Dump formats the log one access per line.
func (f *Fake) Dump() string {
	var b strings.Builder
	for _, a := range f.Log {
		b.WriteString(a.String())
		b.WriteByte('\n')
	}
	return b.String()
}
