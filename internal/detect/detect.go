package detect

import (
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/bigbag/ch579-flasher/internal/bridge"
	"github.com/bigbag/ch579-flasher/internal/ch579"
	"github.com/bigbag/ch579-flasher/internal/serial"
	"github.com/bigbag/ch579-flasher/internal/target"
)

// ErrNoDevice is returned when no port answers with a supported chip.
var ErrNoDevice = errors.New("no CH579 device found")

// Result represents a detected device.
type Result struct {
	Port     string
	ChipID   uint8
	ChipName string
}

// Session is an open connection to an identified chip.
type Session struct {
	Port         string
	Target       *bridge.Target
	Registration *target.Registration

	close func() error
}

// Close releases the underlying port.
func (s *Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Identify syncs with the bridge on port and probes the chip behind it.
func Identify(port bridge.Port, opts ch579.Options) (*bridge.Target, *target.Registration, error) {
	bt := bridge.New(port)
	if err := bt.Sync(); err != nil {
		return nil, nil, fmt.Errorf("failed to sync: %w", err)
	}
	reg, err := target.Probe(bt, ch579.ProbeFunc(opts))
	if err != nil {
		return nil, nil, err
	}
	return bt, reg, nil
}

// Open connects to the chip on portName and keeps the port open.
func Open(portName string, baudRate int, opts ch579.Options) (*Session, error) {
	port, err := serial.Open(portName, baudRate)
	if err != nil {
		return nil, err
	}
	bt, reg, err := Identify(port, opts)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("%s: %w", portName, err)
	}
	return &Session{
		Port:         portName,
		Target:       bt,
		Registration: reg,
		close:        port.Close,
	}, nil
}

// Loopback connects to a local target through an in-memory bridge.
func Loopback(t target.Target, opts ch579.Options) (*Session, error) {
	bt, reg, err := Identify(bridge.NewLoopback(t), opts)
	if err != nil {
		return nil, err
	}
	return &Session{Port: "simulator", Target: bt, Registration: reg}, nil
}

// DetectDevice returns the first port with a supported chip.
func DetectDevice(baudRate int, opts ch579.Options) (*Result, error) {
	ports, err := serial.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}

	if len(ports) == 0 {
		return nil, fmt.Errorf("%w: no serial ports found", ErrNoDevice)
	}

	var errs []error
	for _, portName := range ports {
		result, err := DetectOnPort(portName, baudRate, opts)
		if err != nil {
			glog.V(1).Infof("detect: %s: %v", portName, err)
			errs = append(errs, err)
			continue
		}
		return result, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrNoDevice, errors.Join(errs...))
}

// DetectOnPort tries to identify a chip on a specific port.
func DetectOnPort(portName string, baudRate int, opts ch579.Options) (*Result, error) {
	s, err := Open(portName, baudRate, opts)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Result(), nil
}

// ListDevices scans all ports and returns every identified chip.
func ListDevices(baudRate int, opts ch579.Options) ([]Result, error) {
	ports, err := serial.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}

	var results []Result
	for _, portName := range ports {
		result, err := DetectOnPort(portName, baudRate, opts)
		if err == nil {
			results = append(results, *result)
		}
	}

	return results, nil
}

// Result summarizes the session for display.
func (s *Session) Result() *Result {
	return &Result{
		Port:     s.Port,
		ChipID:   ch579.ChipIDCH579,
		ChipName: s.Registration.Driver,
	}
}
