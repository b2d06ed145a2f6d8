package serial

import (
	"testing"

	"go.bug.st/serial/enumerator"
)

func TestFromDetails(t *testing.T) {
	infos := fromDetails([]*enumerator.PortDetails{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "1a86", PID: "8010", SerialNumber: "0001", Product: "WCH-Link"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001"},
	})

	expected := []string{
		"/dev/ttyS0",
		"/dev/ttyACM0  USB 1A86:8010 WCH-Link (0001)",
		"/dev/ttyUSB0  USB 0403:6001",
	}
	if len(infos) != len(expected) {
		t.Fatalf("len(infos) = %d, want %d", len(infos), len(expected))
	}
	for i, want := range expected {
		if got := infos[i].String(); got != want {
			t.Errorf("infos[%d].String() = %q, want %q", i, got, want)
		}
	}
}
