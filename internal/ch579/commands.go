package ch579

import (
	"context"
	"fmt"
	"strconv"

	"github.com/golang/glog"

	"github.com/bigbag/ch579-flasher/internal/target"
)

// Commands returns the info flash maintenance commands. They bypass Prepare
// and its bootloader check on purpose.
func Commands(opts Options) []target.Command {
	m := &maintenance{opts: opts}
	return []target.Command{
		{
			Name:    "erase-info-sector",
			Help:    "Erase the info flash sector (device configuration)",
			Handler: m.eraseInfoSector,
		},
		{
			Name:    "write-info-word",
			Help:    "Write a 32-bit word to info flash: write-info-word <addr> <value>",
			Handler: m.writeInfoWord,
		},
		{
			Name:    "disable-bootloader",
			Help:    "Clear the ISP bootloader enable bit (permanent)",
			Handler: m.disableBootloader,
		},
	}
}

type maintenance struct {
	opts Options
}

func (m *maintenance) eraseInfoSector(ctx context.Context, t target.Target, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("erase-info-sector takes no arguments")
	}
	return m.infoOp(ctx, t, InfoFlashBase, nil, OpEraseInfo)
}

func (m *maintenance) writeInfoWord(ctx context.Context, t target.Target, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: write-info-word <addr> <value>")
	}
	addr, err := parseUint32(args[0])
	if err != nil {
		return fmt.Errorf("bad address: %w", err)
	}
	value, err := parseUint32(args[1])
	if err != nil {
		return fmt.Errorf("bad value: %w", err)
	}
	return m.infoOp(ctx, t, addr, &value, OpProgramInfo)
}

func (m *maintenance) disableBootloader(ctx context.Context, t target.Target, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("disable-bootloader takes no arguments")
	}
	value := BootDisabledWord
	return m.infoOp(ctx, t, BootConfigAddr, &value, OpProgramInfo)
}

// infoOp issues one info flash command inside an unlock/lock bracket. The
// lock is written on every path, including a failed wait and a latched
// transport error.
func (m *maintenance) infoOp(ctx context.Context, t target.Target, addr uint32, data *uint32, op Opcode) error {
	glog.V(1).Infof("maintenance: %s at 0x%05X", op, addr)
	t.Write8(RegFlashProtect, ProtectEnabled)
	t.Write32(RegFlashAddr, addr)
	if data != nil {
		t.Write32(RegFlashData, *data)
	}
	t.Write8(RegFlashCommand, uint8(op))
	err := WaitReadyContext(ctx, t, m.opts.Progress)

	t.Write8(RegFlashProtect, ProtectLocked)
	if err != nil {
		return err
	}
	if rerr := transportErr(t); rerr != nil {
		return fmt.Errorf("restoring flash protection: %w", rerr)
	}
	return nil
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
