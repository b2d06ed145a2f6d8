package ch579

import "fmt"

// Driver identification.
const (
	DriverName = "CH579"

	RegChipID    uint32 = 0x40001041
	ChipIDCH579  uint8  = 0x79
	RegGlobalCfg uint32 = 0x40001045

	// CfgBootEnabled is set in RegGlobalCfg while the ISP bootloader is enabled.
	CfgBootEnabled uint8 = 0x20
)

// Flash controller registers.
const (
	RegFlashData    uint32 = 0x40001800
	RegFlashAddr    uint32 = 0x40001804
	RegFlashCommand uint32 = 0x40001808
	RegFlashProtect uint32 = 0x40001809
	RegFlashStatus  uint32 = 0x4000180A

	// StatusReady is the low byte of RegFlashStatus when the controller is idle.
	StatusReady uint8 = 0x40

	ProtectWEMust  uint8 = 0x80
	ProtectCodeWE  uint8 = 0x08
	ProtectDataWE  uint8 = 0x04
	ProtectEnabled       = ProtectWEMust | ProtectCodeWE | ProtectDataWE
	ProtectLocked        = ProtectWEMust
)

// Memory map.
const (
	FlashStart     uint32 = 0x00000000
	FlashLength    uint32 = 0x0003F000
	FlashBlockSize uint32 = 512
	FlashWriteSize uint32 = 4
	FlashErased    byte   = 0xFF

	// InfoFlashBase splits code flash [0, InfoFlashBase) from info/option flash.
	InfoFlashBase uint32 = 0x00040000

	RAMStart  uint32 = 0x20000000
	RAMLength uint32 = 0x00008000

	// BootConfigAddr holds the configuration word with the bootloader enable bit.
	BootConfigAddr uint32 = 0x00040010
	// BootDisabledWord clears the bootloader enable bit of the configuration word.
	BootDisabledWord uint32 = 0xFFFFFFBF
)

// Opcode is a value written to RegFlashCommand.
type Opcode uint8

const (
	OpEraseCode   Opcode = 0xA6
	OpEraseInfo   Opcode = 0xA5
	OpProgramCode Opcode = 0x9A
	OpProgramInfo Opcode = 0x99
)

func (o Opcode) String() string {
	switch o {
	case OpEraseCode:
		return "erase"
	case OpEraseInfo:
		return "erase-info"
	case OpProgramCode:
		return "program"
	case OpProgramInfo:
		return "program-info"
	}
	return fmt.Sprintf("opcode(0x%02X)", uint8(o))
}

// IsInfo reports whether the opcode targets info/option flash.
func (o Opcode) IsInfo() bool {
	return o == OpEraseInfo || o == OpProgramInfo
}

// IsInfoFlash reports whether addr lies in info/option flash.
func IsInfoFlash(addr uint32) bool {
	return addr >= InfoFlashBase
}

// OpcodesFor returns the erase and program opcodes for addr.
func OpcodesFor(addr uint32) (erase, program Opcode) {
	if IsInfoFlash(addr) {
		return OpEraseInfo, OpProgramInfo
	}
	return OpEraseCode, OpProgramCode
}
