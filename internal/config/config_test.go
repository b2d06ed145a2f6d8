package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

type testFlags struct {
	fs      *pflag.FlagSet
	port    string
	baud    int
	policy  string
	timeout time.Duration
	verify  bool
	config  string
}

func newFlags(args ...string) *testFlags {
	tf := &testFlags{fs: pflag.NewFlagSet("config-test", pflag.ContinueOnError)}
	tf.fs.StringVar(&tf.port, "port", "", "")
	tf.fs.IntVar(&tf.baud, "baud", 115200, "")
	tf.fs.StringVar(&tf.policy, "bootloader-policy", "", "")
	tf.fs.DurationVar(&tf.timeout, "wait-timeout", 0, "")
	tf.fs.BoolVar(&tf.verify, "verify", false, "")
	tf.fs.StringVar(&tf.config, ConfigFlag, "", "")
	tf.fs.Parse(args)
	return tf
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ch579.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParse(t *testing.T) {
	v, err := Parse([]byte("port: /dev/ttyACM0\nbaud: 921600\nbootloader_policy: enforce\nwait_timeout: 2s\nverify: true\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	expected := Values{
		"port":              "/dev/ttyACM0",
		"baud":              "921600",
		"bootloader-policy": "enforce",
		"wait-timeout":      "2s",
		"verify":            "true",
	}
	for k, want := range expected {
		if got := v[k]; got != want {
			t.Errorf("Parse()[%q] = %q, want %q", k, got, want)
		}
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"unknown key", "speed: 9600\n", "unknown key"},
		{"not a map", "- port\n", "config"},
	}
	for _, tc := range tests {
		_, err := Parse([]byte(tc.data))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("Parse(%s) error = %v, want containing %q", tc.name, err, tc.want)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CH579_PORT", "/dev/env")
	t.Setenv("CH579_BAUD", "57600")
	t.Setenv("CH579_BOOTLOADER_POLICY", "ignore")

	tf := newFlags("--port=/dev/cli")
	if err := ApplyEnv(tf.fs, EnvPrefix); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if got, want := tf.port, "/dev/cli"; got != want {
		t.Errorf("port: got %q, want %q", got, want)
	}
	if got, want := tf.baud, 57600; got != want {
		t.Errorf("baud: got %d, want %d", got, want)
	}
	if got, want := tf.policy, "ignore"; got != want {
		t.Errorf("policy: got %q, want %q", got, want)
	}
	if !tf.fs.Changed("baud") {
		t.Error("baud not marked changed")
	}
}

func TestApplyEnv_BadValue(t *testing.T) {
	t.Setenv("CH579_BAUD", "fast")
	if err := ApplyEnv(newFlags().fs, EnvPrefix); err == nil || !strings.Contains(err.Error(), "CH579_BAUD") {
		t.Errorf("ApplyEnv() error = %v, want error naming CH579_BAUD", err)
	}
}

func TestResolve_Precedence(t *testing.T) {
	path := writeConfig(t, "port: /dev/file\nbaud: 9600\nwait_timeout: 3s\nverify: true\n")
	t.Setenv("CH579_BAUD", "57600")

	tf := newFlags("--config="+path, "--port=/dev/cli")
	if err := Resolve(tf.fs); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got, want := tf.port, "/dev/cli"; got != want {
		t.Errorf("port: got %q, want %q", got, want)
	}
	if got, want := tf.baud, 57600; got != want {
		t.Errorf("baud: got %d, want %d", got, want)
	}
	if got, want := tf.timeout, 3*time.Second; got != want {
		t.Errorf("wait-timeout: got %v, want %v", got, want)
	}
	if !tf.verify {
		t.Error("verify: got false, want true")
	}
	if got, want := tf.policy, ""; got != want {
		t.Errorf("policy: got %q, want %q", got, want)
	}
}

func TestResolve_ConfigFromEnv(t *testing.T) {
	path := writeConfig(t, "port: /dev/file\n")
	t.Setenv("CH579_CONFIG", path)

	tf := newFlags()
	if err := Resolve(tf.fs); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got, want := tf.port, "/dev/file"; got != want {
		t.Errorf("port: got %q, want %q", got, want)
	}
}

func TestResolve_MissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if err := Resolve(newFlags().fs); err != nil {
		t.Errorf("Resolve() with no default file: %v", err)
	}

	missing := filepath.Join(t.TempDir(), "missing.yaml")
	if err := Resolve(newFlags("--config=" + missing).fs); err == nil {
		t.Error("Resolve() with explicit missing file: expected error")
	}
}
