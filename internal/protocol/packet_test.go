package protocol

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func TestNewRequest_Checksum(t *testing.T) {
	tests := []struct {
		data     []byte
		expected uint32
	}{
		{nil, 0xEF},
		{[]byte{0x01}, 0xEE},
		{[]byte{0x01, 0x02, 0x03}, 0xEF},
		{ReadData(0x40001041), 0xEF ^ 0x41 ^ 0x10 ^ 0x00 ^ 0x40},
	}

	for _, tc := range tests {
		req := NewRequest(CmdRead8, tc.data)
		if req.Checksum != tc.expected {
			t.Errorf("NewRequest(%v) checksum = 0x%X, want 0x%X", tc.data, req.Checksum, tc.expected)
		}
	}
}

func TestRequest_Encode_Format(t *testing.T) {
	data := WriteData(0x40001809, 0x8C)
	req := NewRequest(CmdWrite8, data)
	encoded := req.Encode()

	// Format: direction(1) + cmd(1) + len(2) + checksum(4) + data
	if len(encoded) != 8+len(data) {
		t.Fatalf("Encode() length = %d, want %d", len(encoded), 8+len(data))
	}
	if encoded[0] != DirRequest {
		t.Errorf("Encode()[0] direction = 0x%02X, want 0x%02X", encoded[0], DirRequest)
	}
	if encoded[1] != CmdWrite8 {
		t.Errorf("Encode()[1] command = 0x%02X, want 0x%02X", encoded[1], CmdWrite8)
	}
	if n := binary.LittleEndian.Uint16(encoded[2:4]); n != 8 {
		t.Errorf("Encode() data length = %d, want 8", n)
	}
	if cs := binary.LittleEndian.Uint32(encoded[4:8]); cs != req.Checksum {
		t.Errorf("Encode() checksum = 0x%X, want 0x%X", cs, req.Checksum)
	}
	if !bytes.Equal(encoded[8:], data) {
		t.Errorf("Encode() data = %v, want %v", encoded[8:], data)
	}
}

func TestDecodeRequest_RoundTrip(t *testing.T) {
	req := NewRequest(CmdWrite32, WriteData(0x40001800, 0xDEADBEEF))
	decoded, err := DecodeRequest(req.Encode())
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	addr, value, err := ParseWriteData(decoded.Data)
	if err != nil {
		t.Fatalf("ParseWriteData() error = %v", err)
	}
	if decoded.Command != CmdWrite32 || addr != 0x40001800 || value != 0xDEADBEEF {
		t.Errorf("decoded = cmd 0x%02X addr 0x%X value 0x%X", decoded.Command, addr, value)
	}
}

func TestDecodeRequest_Errors(t *testing.T) {
	good := NewRequest(CmdRead16, ReadData(0x4000180A)).Encode()

	badChecksum := append([]byte(nil), good...)
	badChecksum[4] ^= 0xFF

	badSize := append([]byte(nil), good...)
	binary.LittleEndian.PutUint16(badSize[2:4], 9)

	badDir := append([]byte(nil), good...)
	badDir[0] = DirResponse

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"short", good[:7], "too short"},
		{"checksum", badChecksum, "checksum"},
		{"size", badSize, "size mismatch"},
		{"direction", badDir, "invalid direction"},
	}
	for _, tc := range tests {
		_, err := DecodeRequest(tc.data)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("DecodeRequest(%s) error = %v, want containing %q", tc.name, err, tc.want)
		}
	}
}

func TestResponse_EncodeDecode(t *testing.T) {
	resp := &Response{Command: CmdRead16, Value: 0x0040, Error: 0}
	decoded, err := DecodeResponse(resp.Encode())
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if decoded.Command != CmdRead16 || decoded.Value != 0x40 || !decoded.IsSuccess() {
		t.Errorf("decoded = %+v", decoded)
	}
	if len(decoded.Data) != 0 {
		t.Errorf("decoded Data = %v, want empty", decoded.Data)
	}
}

func TestDecodeResponse_WithData(t *testing.T) {
	extra := []byte{0xAA, 0xBB, 0xCC}
	dataSize := uint16(len(extra) + 2)

	resp := make([]byte, 8+int(dataSize))
	resp[0] = DirResponse
	resp[1] = CmdSync
	binary.LittleEndian.PutUint16(resp[2:4], dataSize)
	copy(resp[8:], extra)

	decoded, err := DecodeResponse(resp)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if !bytes.Equal(decoded.Data, extra) {
		t.Errorf("DecodeResponse Data = %v, want %v", decoded.Data, extra)
	}
}

func TestDecodeResponse_TooShort(t *testing.T) {
	shortResponses := [][]byte{
		nil,
		{},
		{DirResponse},
		make([]byte, 9),
	}

	for _, resp := range shortResponses {
		if _, err := DecodeResponse(resp); err == nil {
			t.Errorf("DecodeResponse(%v) expected error, got nil", resp)
		}
	}
}

func TestDecodeResponse_InvalidDirection(t *testing.T) {
	resp := make([]byte, 10)
	resp[0] = DirRequest
	resp[1] = CmdSync
	binary.LittleEndian.PutUint16(resp[2:4], 2)

	_, err := DecodeResponse(resp)
	if err == nil || !strings.Contains(err.Error(), "invalid direction") {
		t.Errorf("DecodeResponse error = %v, want error containing 'invalid direction'", err)
	}
}

func TestDecodeResponse_DataSizeMismatch(t *testing.T) {
	resp := make([]byte, 10)
	resp[0] = DirResponse
	resp[1] = CmdSync
	binary.LittleEndian.PutUint16(resp[2:4], 100)

	_, err := DecodeResponse(resp)
	if err == nil || !strings.Contains(err.Error(), "size mismatch") {
		t.Errorf("DecodeResponse error = %v, want error containing 'size mismatch'", err)
	}
}

func TestResponse_IsSuccess(t *testing.T) {
	tests := []struct {
		status   byte
		errCode  byte
		expected bool
	}{
		{0, 0, true},
		{1, 0, false},
		{0, 1, false},
		{1, ErrAckFault, false},
	}

	for _, tc := range tests {
		resp := &Response{Status: tc.status, Error: tc.errCode}
		if result := resp.IsSuccess(); result != tc.expected {
			t.Errorf("IsSuccess(status=0x%02X, error=0x%02X) = %v, want %v",
				tc.status, tc.errCode, result, tc.expected)
		}
	}
}

func TestResponse_ErrorString(t *testing.T) {
	if s := (&Response{}).ErrorString(); s != "" {
		t.Errorf("ErrorString() for success = %q, want empty", s)
	}

	result := (&Response{Status: 1, Error: ErrAckFault}).ErrorString()
	for _, want := range []string{"0x01", "0x12", "bus fault"} {
		if !strings.Contains(result, want) {
			t.Errorf("ErrorString() = %q, should contain %q", result, want)
		}
	}
}

func TestSyncData(t *testing.T) {
	data := SyncData()
	if len(data) != 36 {
		t.Errorf("SyncData() length = %d, want 36", len(data))
	}
	if data[0] != 0x07 || data[1] != 0x07 || data[2] != 0x12 || data[3] != 0x20 {
		t.Errorf("SyncData() header = %v, want [0x07, 0x07, 0x12, 0x20]", data[0:4])
	}
	for i := 4; i < 36; i++ {
		if data[i] != 0x55 {
			t.Errorf("SyncData()[%d] = 0x%02X, want 0x55", i, data[i])
		}
	}
}

func TestParsePayloads_WrongLength(t *testing.T) {
	if _, err := ParseReadData([]byte{1, 2, 3}); err == nil {
		t.Error("ParseReadData(3 bytes) expected error")
	}
	if _, _, err := ParseWriteData(ReadData(0)); err == nil {
		t.Error("ParseWriteData(4 bytes) expected error")
	}
}
