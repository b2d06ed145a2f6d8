// Package ch579 drives the flash controller of the WCH CH579 over a debug
// link: detection, erase and program sequencing, the programming session
// guard and the info flash maintenance commands.
package ch579

import (
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/bigbag/ch579-flasher/internal/target"
)

// ErrNotDetected is returned by Probe when the chip ID does not match.
var ErrNotDetected = errors.New("not a CH579")

// Probe identifies a CH579 by its chip ID register. On a mismatch it returns
// ErrNotDetected and the only target access made is the ID read.
func Probe(t target.Target, opts Options) (*target.Registration, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	id := t.Read8(RegChipID)
	if err := transportErr(t); err != nil {
		return nil, err
	}
	if id != ChipIDCH579 {
		glog.V(1).Infof("ch579 probe: chip id 0x%02X", id)
		return nil, fmt.Errorf("%w: chip id 0x%02X", ErrNotDetected, id)
	}
	glog.Infof("ch579 probe: found %s", DriverName)

	ctrl, err := NewController(t, opts)
	if err != nil {
		return nil, err
	}
	return &target.Registration{
		Driver: DriverName,
		Group:  DriverName,
		Flash: []*target.FlashRegion{{
			Start:      FlashStart,
			Length:     FlashLength,
			BlockSize:  FlashBlockSize,
			WriteSize:  FlashWriteSize,
			Erased:     FlashErased,
			Controller: ctrl,
		}},
		RAM:      []target.RAMRegion{{Start: RAMStart, Length: RAMLength}},
		Commands: Commands(opts),
	}, nil
}

// ProbeFunc adapts Probe to target.ProbeFunc.
func ProbeFunc(opts Options) target.ProbeFunc {
	return func(t target.Target) (*target.Registration, error) {
		return Probe(t, opts)
	}
}
