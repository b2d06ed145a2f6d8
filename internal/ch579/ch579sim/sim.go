// Package ch579sim simulates the CH579 flash controller behind a
// target.Target, for tests and dry runs.
package ch579sim

import (
	"encoding/binary"

	"github.com/golang/glog"

	"github.com/bigbag/ch579-flasher/internal/ch579"
)

// InfoFlashSize is the amount of info flash modelled past ch579.InfoFlashBase.
const InfoFlashSize = 0x400

// Chip is a simulated CH579. The zero value is not usable; call New.
type Chip struct {
	ID  uint8
	Cfg uint8

	// Mem holds code flash followed by info flash.
	Mem []byte

	// BusyPolls is how many status reads report busy after each command.
	BusyPolls int

	// Ops records every command accepted by the controller.
	Ops []ch579.Opcode
	// Rejected counts commands issued while flash was locked.
	Rejected int

	// Err, when set, is reported by CheckError and makes accesses no-ops.
	Err error

	protect uint8
	addr    uint32
	data    uint32
	busy    int
	regs    map[uint32]uint32
}

// New returns an erased, locked chip with the bootloader disabled.
func New() *Chip {
	mem := make([]byte, ch579.InfoFlashBase+InfoFlashSize)
	for i := range mem {
		mem[i] = ch579.FlashErased
	}
	return &Chip{
		ID:      ch579.ChipIDCH579,
		Mem:     mem,
		protect: ch579.ProtectLocked,
		regs:    make(map[uint32]uint32),
	}
}

// Protect returns the current protect register value.
func (c *Chip) Protect() uint8 { return c.protect }

// Word returns the flash word at addr.
func (c *Chip) Word(addr uint32) uint32 {
	return binary.LittleEndian.Uint32(c.Mem[addr : addr+4])
}

func (c *Chip) inFlash(addr, size uint32) bool {
	return uint64(addr)+uint64(size) <= uint64(len(c.Mem))
}

func (c *Chip) readReg(addr uint32) uint32 {
	switch addr {
	case ch579.RegChipID:
		return uint32(c.ID)
	case ch579.RegGlobalCfg:
		return uint32(c.Cfg)
	case ch579.RegFlashProtect:
		return uint32(c.protect)
	case ch579.RegFlashAddr:
		return c.addr
	case ch579.RegFlashStatus:
		if c.busy > 0 {
			c.busy--
			return 0
		}
		return uint32(ch579.StatusReady)
	}
	return c.regs[addr]
}

func (c *Chip) Read8(addr uint32) uint8 {
	if c.Err != nil {
		return 0
	}
	if c.inFlash(addr, 1) {
		return c.Mem[addr]
	}
	return uint8(c.readReg(addr))
}

func (c *Chip) Read16(addr uint32) uint16 {
	if c.Err != nil {
		return 0
	}
	if c.inFlash(addr, 2) {
		return binary.LittleEndian.Uint16(c.Mem[addr:])
	}
	return uint16(c.readReg(addr))
}

func (c *Chip) Read32(addr uint32) uint32 {
	if c.Err != nil {
		return 0
	}
	if c.inFlash(addr, 4) {
		return binary.LittleEndian.Uint32(c.Mem[addr:])
	}
	return c.readReg(addr)
}

func (c *Chip) Write8(addr uint32, value uint8)   { c.write(addr, uint32(value)) }
func (c *Chip) Write16(addr uint32, value uint16) { c.write(addr, uint32(value)) }
func (c *Chip) Write32(addr uint32, value uint32) { c.write(addr, value) }

func (c *Chip) CheckError() error { return c.Err }

func (c *Chip) write(addr, value uint32) {
	if c.Err != nil {
		return
	}
	switch addr {
	case ch579.RegFlashAddr:
		c.addr = value
	case ch579.RegFlashData:
		c.data = value
	case ch579.RegFlashProtect:
		c.protect = uint8(value)
	case ch579.RegFlashCommand:
		c.command(ch579.Opcode(value))
	default:
		c.regs[addr] = value
	}
}

func (c *Chip) unlocked() bool {
	return c.protect&ch579.ProtectEnabled == ch579.ProtectEnabled
}

func (c *Chip) command(op ch579.Opcode) {
	if !c.unlocked() {
		glog.V(2).Infof("sim: %s rejected, protect 0x%02X", op, c.protect)
		c.Rejected++
		return
	}
	c.Ops = append(c.Ops, op)
	c.busy = c.BusyPolls
	switch op {
	case ch579.OpEraseCode, ch579.OpEraseInfo:
		start := c.addr &^ (ch579.FlashBlockSize - 1)
		if op.IsInfo() != ch579.IsInfoFlash(start) || !c.inFlash(start, ch579.FlashBlockSize) {
			return
		}
		for i := start; i < start+ch579.FlashBlockSize; i++ {
			c.Mem[i] = ch579.FlashErased
		}
	case ch579.OpProgramCode, ch579.OpProgramInfo:
		a := c.addr &^ 3
		if op.IsInfo() != ch579.IsInfoFlash(a) || !c.inFlash(a, 4) {
			return
		}
		// Programming only clears bits.
		binary.LittleEndian.PutUint32(c.Mem[a:], c.Word(a)&c.data)
	}
}
