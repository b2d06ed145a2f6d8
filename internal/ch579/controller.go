package ch579

import (
	"context"
	"encoding/binary"
	"errors"

	"github.com/fatih/color"
	"github.com/golang/glog"

	"github.com/bigbag/ch579-flasher/internal/target"
)

// ErrBootloaderActive is returned by Prepare when the bootloader policy is
// enforced and the ISP bootloader is enabled.
var ErrBootloaderActive = errors.New("ISP bootloader is enabled")

var (
	warnColor   = color.New(color.FgYellow, color.Bold)
	refuseColor = color.New(color.FgRed, color.Bold)
)

// Controller sequences the CH579 flash controller registers.
type Controller struct {
	t    target.Target
	opts Options
}

var _ target.FlashController = (*Controller)(nil)

// NewController returns a controller for t.
func NewController(t target.Target, opts Options) (*Controller, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Controller{t: t, opts: opts}, nil
}

// Erase erases the block at addr. The controller erases one block per
// command; length is not split.
func (c *Controller) Erase(ctx context.Context, addr, length uint32) error {
	op, _ := OpcodesFor(addr)
	glog.V(2).Infof("erase 0x%05X (%d bytes) with %s", addr, length, op)
	c.t.Write32(RegFlashAddr, addr)
	if op.IsInfo() {
		warnColor.Fprintf(c.opts.output(), "Warning: erasing info flash at 0x%05X, device configuration may change\n", addr)
	}
	c.t.Write8(RegFlashCommand, uint8(op))
	return WaitReadyContext(ctx, c.t, c.opts.Progress)
}

// Write programs one 32-bit word from the start of src at dest. Callers
// issue one call per word; bytes past the first four are ignored.
func (c *Controller) Write(ctx context.Context, dest uint32, src []byte) error {
	_, op := OpcodesFor(dest)
	word := wordFrom(src)
	glog.V(2).Infof("write 0x%05X = 0x%08X with %s", dest, word, op)
	c.t.Write32(RegFlashAddr, dest)
	c.t.Write32(RegFlashData, word)
	if op.IsInfo() {
		warnColor.Fprintf(c.opts.output(), "Warning: programming info flash at 0x%05X, device configuration may change\n", dest)
	}
	c.t.Write8(RegFlashCommand, uint8(op))
	return WaitReadyContext(ctx, c.t, c.opts.Progress)
}

// Prepare unlocks code and data flash for a programming session. It does not
// wait on the controller, so the context is unused.
func (c *Controller) Prepare(context.Context) error {
	if c.opts.Bootloader == BootloaderEnforce {
		cfg := c.t.Read8(RegGlobalCfg)
		if err := transportErr(c.t); err != nil {
			return err
		}
		if cfg&CfgBootEnabled != 0 {
			refuseColor.Fprintf(c.opts.output(),
				"The CH579 ISP bootloader is enabled; refusing to program.\n"+
					"Disable it with 'monitor disable-bootloader' or choose the 'ignore' bootloader policy.\n")
			return ErrBootloaderActive
		}
	}
	glog.V(2).Infof("prepare: protect = 0x%02X", ProtectEnabled)
	c.t.Write8(RegFlashProtect, ProtectEnabled)
	return transportErr(c.t)
}

// Done locks flash again. The context is unused.
func (c *Controller) Done(context.Context) error {
	glog.V(2).Infof("done: protect = 0x%02X", ProtectLocked)
	c.t.Write8(RegFlashProtect, ProtectLocked)
	return transportErr(c.t)
}

func wordFrom(src []byte) uint32 {
	var buf [4]byte
	for i := range buf {
		buf[i] = FlashErased
	}
	copy(buf[:], src)
	return binary.LittleEndian.Uint32(buf[:])
}

func transportErr(t target.Target) error {
	return target.TransportError(t.CheckError())
}
