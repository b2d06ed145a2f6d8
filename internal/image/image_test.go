package image

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// Two records at 0x0000 and 0x0100 plus EOF.
const testHex = `:0400000001020304F2
:04010000AABBCCDDED
:00000001FF
`

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Format
	}{
		{"fw.hex", "", FormatIntelHex},
		{"fw.IHX", "", FormatIntelHex},
		{"fw.bin", ":0000", FormatBinary},
		{"fw", "\r\n:00000001FF", FormatIntelHex},
		{"fw", "\x00\x01", FormatBinary},
		{"fw", "", FormatBinary},
	}
	for _, tc := range tests {
		if got := Detect(tc.name, []byte(tc.data)); got != tc.want {
			t.Errorf("Detect(%q, %q) = %v, want %v", tc.name, tc.data, got, tc.want)
		}
	}
}

func TestParse_Binary(t *testing.T) {
	data := []byte{1, 2, 3}
	images, err := Parse("fw.bin", data, 0x1000)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(images) != 1 || images[0].Address != 0x1000 || !bytes.Equal(images[0].Data, data) {
		t.Errorf("Parse() = %+v", images)
	}
}

func TestParse_IntelHex(t *testing.T) {
	images, err := Parse("fw.hex", []byte(testHex), 0x9999)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("len(images) = %d, want 2", len(images))
	}
	if images[0].Address != 0 || !bytes.Equal(images[0].Data, []byte{1, 2, 3, 4}) {
		t.Errorf("images[0] = %+v", images[0])
	}
	if images[1].Address != 0x100 || !bytes.Equal(images[1].Data, []byte{0xAA, 0xBB, 0xCC, 0xDD}) {
		t.Errorf("images[1] = %+v", images[1])
	}
	if Size(images) != 8 {
		t.Errorf("Size() = %d, want 8", Size(images))
	}
}

func TestParse_BadHex(t *testing.T) {
	if _, err := Parse("fw.hex", []byte(":0400000001020304F3\n:00000001FF\n"), 0); err == nil {
		t.Error("expected checksum error")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw.hex")
	if err := os.WriteFile(path, []byte(testHex), 0o644); err != nil {
		t.Fatal(err)
	}
	images, err := Load(path, 0)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(images) != 2 || images[0].Name != "fw.hex[0]" {
		t.Errorf("Load() = %+v", images)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.bin"), 0); err == nil {
		t.Error("expected error for missing file")
	}
}
