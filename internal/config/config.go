// Package config fills unset command line flags from the environment and
// from an optional YAML file. Flags given on the command line win over the
// environment, which wins over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/spf13/pflag"
	yaml "gopkg.in/yaml.v2"
)

const (
	// EnvPrefix is prepended to the upper-cased flag name.
	EnvPrefix = "CH579_"

	// FileName is the config file looked up in the home directory.
	FileName = ".ch579-flasher.yaml"

	// ConfigFlag names the flag that points at the config file.
	ConfigFlag = "config"
)

// Keys lists the settings a config file may carry.
var Keys = []string{"port", "baud", "bootloader_policy", "wait_timeout", "verify"}

// Values maps flag names to their textual values.
type Values map[string]string

// DefaultPath returns the config file location in the user's home.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return FileName
	}
	return filepath.Join(home, FileName)
}

// Parse decodes a YAML config document.
func Parse(data []byte) (Values, error) {
	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	v := Values{}
	for key, val := range raw {
		if !known(key) {
			return nil, fmt.Errorf("config: unknown key %q (known: %s)", key, strings.Join(Keys, ", "))
		}
		if val == nil {
			continue
		}
		v[flagName(key)] = fmt.Sprint(val)
	}
	return v, nil
}

// Load reads and parses the config file at path.
func Load(path string) (Values, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// ApplyEnv sets every flag not given on the command line from the
// environment variable named by prefix and the upper-cased flag name.
func ApplyEnv(flags *pflag.FlagSet, prefix string) error {
	var errs []error
	for _, f := range unset(flags) {
		val := os.Getenv(envName(f.Name, prefix))
		if val == "" {
			continue
		}
		if err := set(f, val); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envName(f.Name, prefix), err))
		}
	}
	return errors.Join(errs...)
}

// ApplyValues sets every still unset flag that has a value in v.
func ApplyValues(flags *pflag.FlagSet, v Values) error {
	var errs []error
	for _, f := range unset(flags) {
		val, ok := v[f.Name]
		if !ok {
			continue
		}
		if err := set(f, val); err != nil {
			errs = append(errs, fmt.Errorf("config %s: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Resolve applies the environment and then the config file to flags. A
// missing file is only an error when the config flag was given explicitly.
func Resolve(flags *pflag.FlagSet) error {
	if err := ApplyEnv(flags, EnvPrefix); err != nil {
		return err
	}

	path, explicit := DefaultPath(), false
	if f := flags.Lookup(ConfigFlag); f != nil && f.Changed {
		path, explicit = f.Value.String(), true
	}

	v, err := Load(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		glog.V(2).Infof("config: %s not found", path)
		return nil
	case err != nil:
		return err
	}
	glog.V(1).Infof("config: loaded %s", path)
	return ApplyValues(flags, v)
}

func unset(flags *pflag.FlagSet) []*pflag.Flag {
	var out []*pflag.Flag
	flags.VisitAll(func(f *pflag.Flag) {
		if !f.Changed {
			out = append(out, f)
		}
	})
	return out
}

func set(f *pflag.Flag, val string) error {
	if err := f.Value.Set(val); err != nil {
		return err
	}
	f.Changed = true
	return nil
}

func known(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

func envName(flagName, prefix string) string {
	return prefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}
