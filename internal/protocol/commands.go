package protocol

// Memory-access bridge commands
const (
	CmdSync    = 0x08
	CmdRead8   = 0x20
	CmdRead16  = 0x21
	CmdRead32  = 0x22
	CmdWrite8  = 0x28
	CmdWrite16 = 0x29
	CmdWrite32 = 0x2A
)

// Direction byte values
const (
	DirRequest  = 0x00
	DirResponse = 0x01
)

// Default baud rate of the bridge firmware
const DefaultBaudRate = 115200

// CommandName returns human-readable name for a command byte
func CommandName(cmd byte) string {
	switch cmd {
	case CmdSync:
		return "SYNC"
	case CmdRead8:
		return "READ8"
	case CmdRead16:
		return "READ16"
	case CmdRead32:
		return "READ32"
	case CmdWrite8:
		return "WRITE8"
	case CmdWrite16:
		return "WRITE16"
	case CmdWrite32:
		return "WRITE32"
	default:
		return "UNKNOWN"
	}
}

// ReadCommand returns the read command for an access width in bits.
func ReadCommand(width int) byte {
	switch width {
	case 8:
		return CmdRead8
	case 16:
		return CmdRead16
	default:
		return CmdRead32
	}
}

// WriteCommand returns the write command for an access width in bits.
func WriteCommand(width int) byte {
	switch width {
	case 8:
		return CmdWrite8
	case 16:
		return CmdWrite16
	default:
		return CmdWrite32
	}
}

// Error codes reported by the bridge
const (
	ErrInvalidMessage = 0x05
	ErrInvalidCRC     = 0x07
	ErrNoTarget       = 0x10
	ErrAckWait        = 0x11
	ErrAckFault       = 0x12
	ErrParity         = 0x13
	ErrUnaligned      = 0x14
)

// ErrorMessage returns human-readable error message
func ErrorMessage(code byte) string {
	switch code {
	case ErrInvalidMessage:
		return "invalid message"
	case ErrInvalidCRC:
		return "invalid CRC"
	case ErrNoTarget:
		return "no target"
	case ErrAckWait:
		return "target busy (WAIT)"
	case ErrAckFault:
		return "bus fault (FAULT)"
	case ErrParity:
		return "parity error"
	case ErrUnaligned:
		return "unaligned access"
	default:
		return "unknown error"
	}
}
