package protocol

import (
	"encoding/binary"
	"fmt"
)

// Every packet starts with an 8 byte header:
//
//	0: direction
//	1: command
//	2-3: payload size (little-endian)
//	4-7: checksum in requests, value in responses (little-endian)
//
// A response payload ends with a status byte and an error byte.
const headerSize = 8

// Request is a host to bridge packet.
type Request struct {
	Command  byte
	Data     []byte
	Checksum uint32
}

// Response is a bridge to host packet.
type Response struct {
	Command byte
	Data    []byte
	Value   uint32
	Status  byte
	Error   byte
}

// NewRequest creates a request with its checksum filled in.
func NewRequest(cmd byte, data []byte) *Request {
	return &Request{Command: cmd, Data: data, Checksum: Checksum(data)}
}

// Checksum is the XOR of all data bytes seeded with 0xEF.
func Checksum(data []byte) uint32 {
	var sum byte = 0xEF
	for _, b := range data {
		sum ^= b
	}
	return uint32(sum)
}

func putHeader(packet []byte, dir, cmd byte, size int, word uint32) {
	packet[0] = dir
	packet[1] = cmd
	binary.LittleEndian.PutUint16(packet[2:4], uint16(size))
	binary.LittleEndian.PutUint32(packet[4:8], word)
}

// splitHeader checks the direction and returns command, header word and
// the payload declared by the size field.
func splitHeader(data []byte, dir byte, trailer int, kind string) (cmd byte, word uint32, payload []byte, err error) {
	if len(data) < headerSize+trailer {
		return 0, 0, nil, fmt.Errorf("%s too short: %d bytes", kind, len(data))
	}
	if data[0] != dir {
		return 0, 0, nil, fmt.Errorf("invalid direction byte: 0x%02X", data[0])
	}
	size := int(binary.LittleEndian.Uint16(data[2:4]))
	if size > len(data)-headerSize {
		return 0, 0, nil, fmt.Errorf("data size mismatch: expected %d, have %d", size, len(data)-headerSize)
	}
	return data[1], binary.LittleEndian.Uint32(data[4:8]), data[headerSize : headerSize+size], nil
}

// Encode serializes the request, ready for SLIP framing.
func (r *Request) Encode() []byte {
	packet := make([]byte, headerSize+len(r.Data))
	putHeader(packet, DirRequest, r.Command, len(r.Data), r.Checksum)
	copy(packet[headerSize:], r.Data)
	return packet
}

// DecodeRequest parses an unframed request and checks its checksum.
// Trailing bytes past the declared size are rejected.
func DecodeRequest(data []byte) (*Request, error) {
	cmd, sum, payload, err := splitHeader(data, DirRequest, 0, "request")
	if err != nil {
		return nil, err
	}
	if len(payload) != len(data)-headerSize {
		return nil, fmt.Errorf("data size mismatch: expected %d, have %d", len(payload), len(data)-headerSize)
	}
	if sum != Checksum(payload) {
		return nil, fmt.Errorf("checksum mismatch: 0x%02X", sum)
	}
	return &Request{Command: cmd, Data: payload, Checksum: sum}, nil
}

// Encode serializes the response, ready for SLIP framing.
func (r *Response) Encode() []byte {
	size := len(r.Data) + 2
	packet := make([]byte, headerSize+size)
	putHeader(packet, DirResponse, r.Command, size, r.Value)
	copy(packet[headerSize:], r.Data)
	packet[headerSize+size-2] = r.Status
	packet[headerSize+size-1] = r.Error
	return packet
}

// DecodeResponse parses an unframed response. A payload shorter than the
// status trailer is returned as Data with a zero status.
func DecodeResponse(data []byte) (*Response, error) {
	cmd, value, payload, err := splitHeader(data, DirResponse, 2, "response")
	if err != nil {
		return nil, err
	}
	resp := &Response{Command: cmd, Value: value}
	if n := len(payload); n >= 2 {
		resp.Data = payload[:n-2]
		resp.Status = payload[n-2]
		resp.Error = payload[n-1]
	} else if n > 0 {
		resp.Data = payload
	}
	return resp, nil
}

// IsSuccess reports whether both status and error are zero.
func (r *Response) IsSuccess() bool {
	return r.Status == 0 && r.Error == 0
}

// ErrorString describes a failed response, or returns "" on success.
func (r *Response) ErrorString() string {
	if r.IsSuccess() {
		return ""
	}
	return fmt.Sprintf("status=0x%02X error=0x%02X (%s)", r.Status, r.Error, ErrorMessage(r.Error))
}

// SyncData is the SYNC payload: 07 07 12 20 followed by 32 bytes of 0x55.
func SyncData() []byte {
	data := make([]byte, 36)
	copy(data, []byte{0x07, 0x07, 0x12, 0x20})
	for i := 4; i < len(data); i++ {
		data[i] = 0x55
	}
	return data
}

// ReadData builds the payload of a READ8/16/32 request.
func ReadData(address uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, address)
}

// WriteData builds the payload of a WRITE8/16/32 request.
func WriteData(address, value uint32) []byte {
	data := binary.LittleEndian.AppendUint32(make([]byte, 0, 8), address)
	return binary.LittleEndian.AppendUint32(data, value)
}

// ParseReadData extracts the address from a READ payload.
func ParseReadData(data []byte) (uint32, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("read payload: want 4 bytes, have %d", len(data))
	}
	return binary.LittleEndian.Uint32(data), nil
}

// ParseWriteData extracts address and value from a WRITE payload.
func ParseWriteData(data []byte) (address, value uint32, err error) {
	if len(data) != 8 {
		return 0, 0, fmt.Errorf("write payload: want 8 bytes, have %d", len(data))
	}
	return binary.LittleEndian.Uint32(data[0:4]), binary.LittleEndian.Uint32(data[4:8]), nil
}
