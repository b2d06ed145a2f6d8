// Package image loads firmware files for flashing.
package image

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"

	"github.com/bigbag/ch579-flasher/internal/flasher"
)

// Format of a firmware file.
type Format int

const (
	FormatBinary Format = iota
	FormatIntelHex
)

func (f Format) String() string {
	if f == FormatIntelHex {
		return "ihex"
	}
	return "bin"
}

// Detect guesses the format from the file name, then the content.
func Detect(name string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".hex", ".ihex", ".ihx":
		return FormatIntelHex
	case ".bin":
		return FormatBinary
	}
	if len(bytes.TrimLeft(data, " \t\r\n")) > 0 && bytes.TrimLeft(data, " \t\r\n")[0] == ':' {
		return FormatIntelHex
	}
	return FormatBinary
}

// Load reads a firmware file. Raw binaries are placed at base; Intel HEX
// files carry their own addresses and base is ignored.
func Load(path string, base uint32) ([]flasher.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read firmware file: %w", err)
	}
	return Parse(filepath.Base(path), data, base)
}

// Parse is Load on an in-memory file.
func Parse(name string, data []byte, base uint32) ([]flasher.Image, error) {
	if Detect(name, data) == FormatBinary {
		return []flasher.Image{{Address: base, Data: data, Name: name}}, nil
	}

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	var images []flasher.Image
	for i, seg := range mem.GetDataSegments() {
		images = append(images, flasher.Image{
			Address: seg.Address,
			Data:    seg.Data,
			Name:    fmt.Sprintf("%s[%d]", name, i),
		})
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%s: no data records", name)
	}
	return images, nil
}

// Size returns the number of data bytes across images.
func Size(images []flasher.Image) int {
	n := 0
	for _, img := range images {
		n += len(img.Data)
	}
	return n
}
