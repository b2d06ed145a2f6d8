package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bigbag/ch579-flasher/internal/ch579"
)

func TestParseMonitorLine(t *testing.T) {
	tests := []struct {
		args []string
		name string
		rest []string
	}{
		{[]string{"disable-bootloader"}, "disable-bootloader", nil},
		{[]string{"write-info-word", "0x40010", "0xFFFFFFBF"}, "write-info-word", []string{"0x40010", "0xFFFFFFBF"}},
		{[]string{"write-info-word 0x40010 0xFFFFFFBF"}, "write-info-word", []string{"0x40010", "0xFFFFFFBF"}},
		{[]string{`help "a b"`}, "help", []string{"a b"}},
	}

	for _, tc := range tests {
		name, rest, err := parseMonitorLine(tc.args)
		if err != nil {
			t.Errorf("parseMonitorLine(%q) error = %v", tc.args, err)
			continue
		}
		if name != tc.name || strings.Join(rest, "|") != strings.Join(tc.rest, "|") {
			t.Errorf("parseMonitorLine(%q) = %q %q, want %q %q", tc.args, name, rest, tc.name, tc.rest)
		}
	}
}

func TestParseMonitorLine_Errors(t *testing.T) {
	for _, args := range [][]string{{""}, {`"unterminated`}} {
		if _, _, err := parseMonitorLine(args); err == nil {
			t.Errorf("parseMonitorLine(%q) expected error", args)
		}
	}
}

func TestPrintCommands(t *testing.T) {
	var buf bytes.Buffer
	printCommands(&buf, ch579.Commands(ch579.Options{}))

	for _, want := range []string{"erase-info-sector", "write-info-word", "disable-bootloader"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("printCommands() output missing %q:\n%s", want, buf.String())
		}
	}
}
