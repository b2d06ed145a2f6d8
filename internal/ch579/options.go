package ch579

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrInvalidPolicy is returned when no bootloader policy was chosen.
var ErrInvalidPolicy = errors.New("bootloader policy not set")

// BootloaderPolicy decides whether Prepare refuses to program a device whose
// ISP bootloader is enabled. There is no default: the integrator picks one.
type BootloaderPolicy int

const (
	policyUnset BootloaderPolicy = iota
	// BootloaderEnforce refuses sessions while the bootloader is enabled.
	BootloaderEnforce
	// BootloaderIgnore programs regardless of the bootloader state.
	BootloaderIgnore
)

var policyNames = map[BootloaderPolicy]string{
	BootloaderEnforce: "enforce",
	BootloaderIgnore:  "ignore",
}

func (p BootloaderPolicy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return "unset"
}

// Valid reports whether p is one of the named policies.
func (p BootloaderPolicy) Valid() bool {
	_, ok := policyNames[p]
	return ok
}

// Set implements pflag.Value.
func (p *BootloaderPolicy) Set(s string) error {
	v, err := ParseBootloaderPolicy(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Type implements pflag.Value.
func (p *BootloaderPolicy) Type() string {
	return "policy"
}

// ParseBootloaderPolicy parses "enforce" or "ignore".
func ParseBootloaderPolicy(s string) (BootloaderPolicy, error) {
	for p, name := range policyNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return policyUnset, fmt.Errorf("%w: unknown policy %q (want enforce or ignore)", ErrInvalidPolicy, s)
}

// Options configures the driver.
type Options struct {
	Bootloader BootloaderPolicy

	// Output receives warnings and refusals meant for the operator.
	// Defaults to os.Stderr.
	Output io.Writer

	// Progress is called on every status poll.
	Progress ProgressFunc
}

func (o Options) validate() error {
	if !o.Bootloader.Valid() {
		return ErrInvalidPolicy
	}
	return nil
}

func (o Options) output() io.Writer {
	if o.Output == nil {
		return os.Stderr
	}
	return o.Output
}
