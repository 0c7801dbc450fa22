package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/hcilink/internal/serial"
	"github.com/danmuck/hcilink/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hcictl.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Dumper() != nil {
		t.Fatalf("dump should be disabled by default")
	}
}

func TestLoadExampleConfig(t *testing.T) {
	testlog.Start(t)
	cfg, err := Load(filepath.Join("..", "..", "cmd", "hcictl", "ex.config.toml"))
	if err != nil {
		t.Fatalf("load example: %v", err)
	}
	if cfg.Port != "/dev/ttyACM0" || cfg.Baud != 1000000 {
		t.Fatalf("unexpected serial settings: %+v", cfg.Serial())
	}
	if cfg.ResponseTimeout != 500*time.Millisecond {
		t.Fatalf("unexpected timeout: %v", cfg.ResponseTimeout)
	}
	if cfg.LogLevel != "debug" || cfg.MetricsAddr != "127.0.0.1:9464" {
		t.Fatalf("unexpected ambient settings: %+v", cfg)
	}
	if !cfg.Dump.Enabled || cfg.Dump.Path != "/tmp/hcilink.dump" || cfg.Dump.MaxSizeMB != 5 || cfg.Dump.MaxBackups != 2 {
		t.Fatalf("unexpected dump settings: %+v", cfg.Dump)
	}
	if s := cfg.Session(); s.Channel != 0x01 || s.ResponseTimeout != 500*time.Millisecond {
		t.Fatalf("unexpected session config: %+v", s)
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	testlog.Start(t)
	cfg, err := Load(writeConfig(t, "port = \"/dev/ttyUSB3\"\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := DefaultConfig()
	if cfg.Port != "/dev/ttyUSB3" {
		t.Fatalf("unexpected port: %q", cfg.Port)
	}
	if cfg.Baud != def.Baud || cfg.ResponseTimeout != def.ResponseTimeout || cfg.Dump != def.Dump {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"baud":     "baud = 1234\n",
		"channel":  "channel = 300\n",
		"chanzero": "channel = 0\n",
		"timeout":  "response_timeout = \"0s\"\n",
		"level":    "log_level = \"loud\"\n",
		"dumppath": "[dump]\nenabled = true\npath = \"\"\n",
	}
	for name, body := range cases {
		_, err := Load(writeConfig(t, body))
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}

	_, err := Load(writeConfig(t, "baud = 1234\n"))
	if !errors.Is(err, serial.ErrInvalidBaud) {
		t.Fatalf("expected wrapped ErrInvalidBaud, got %v", err)
	}
	if _, err := Load(writeConfig(t, "response_timeout = \"soon\"\n")); err == nil {
		t.Fatalf("expected duration parse error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	testlog.Start(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected load error")
	}
}

func TestDumperEnabledWritesFile(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.Dump.Enabled = true
	cfg.Dump.Path = filepath.Join(t.TempDir(), "hci.dump")
	d := cfg.Dumper()
	if d == nil {
		t.Fatalf("expected dumper")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
