// Package config loads the hcictl TOML file over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	logs "github.com/danmuck/hcilink/internal/logging"
	"github.com/danmuck/hcilink/internal/protocol"
	"github.com/danmuck/hcilink/internal/protocol/dump"
	"github.com/danmuck/hcilink/internal/protocol/session"
	"github.com/danmuck/hcilink/internal/serial"
)

var ErrInvalidConfig = errors.New("config: invalid")

type DumpConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

type Config struct {
	Port            string
	Baud            int
	Channel         uint8
	ResponseTimeout time.Duration
	LogLevel        string
	MetricsAddr     string
	Dump            DumpConfig
}

type fileDump struct {
	Enabled    bool   `toml:"enabled"`
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

type fileConfig struct {
	Port            string   `toml:"port"`
	Baud            int      `toml:"baud"`
	Channel         int      `toml:"channel"`
	ResponseTimeout string   `toml:"response_timeout"`
	LogLevel        string   `toml:"log_level"`
	MetricsAddr     string   `toml:"metrics_addr"`
	Dump            fileDump `toml:"dump"`
}

func DefaultConfig() Config {
	return Config{
		Port:            "/dev/ttyUSB0",
		Baud:            115200,
		Channel:         protocol.PacketCommand,
		ResponseTimeout: session.DefaultConfig().ResponseTimeout,
		LogLevel:        "info",
		Dump: DumpConfig{
			Path:       "hcilink.dump",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load overlays the keys present in path onto DefaultConfig and validates
// the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		logs.Warnf("config.Load path=%s unknown keys=%v", path, undecoded)
	}

	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud") {
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("channel") {
		if raw.Channel < 0 || raw.Channel > 0xFF {
			return Config{}, fmt.Errorf("%w: channel %d out of range", ErrInvalidConfig, raw.Channel)
		}
		cfg.Channel = uint8(raw.Channel)
	}
	if meta.IsDefined("response_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ResponseTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse response_timeout: %w", err)
		}
		cfg.ResponseTimeout = d
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("dump", "enabled") {
		cfg.Dump.Enabled = raw.Dump.Enabled
	}
	if meta.IsDefined("dump", "path") {
		cfg.Dump.Path = strings.TrimSpace(raw.Dump.Path)
	}
	if meta.IsDefined("dump", "max_size_mb") {
		cfg.Dump.MaxSizeMB = raw.Dump.MaxSizeMB
	}
	if meta.IsDefined("dump", "max_backups") {
		cfg.Dump.MaxBackups = raw.Dump.MaxBackups
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.Serial().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	// session.Config treats a zero channel as unset.
	if c.Channel == 0 {
		return fmt.Errorf("%w: channel must be non-zero", ErrInvalidConfig)
	}
	if c.ResponseTimeout <= 0 {
		return fmt.Errorf("%w: response_timeout must be positive, got %v", ErrInvalidConfig, c.ResponseTimeout)
	}
	if _, ok := logs.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	if c.Dump.Enabled {
		if c.Dump.Path == "" {
			return fmt.Errorf("%w: dump.path required when dump is enabled", ErrInvalidConfig)
		}
		if c.Dump.MaxSizeMB < 0 || c.Dump.MaxBackups < 0 {
			return fmt.Errorf("%w: dump rotation limits must not be negative", ErrInvalidConfig)
		}
	}
	return nil
}

func (c Config) Serial() serial.Config {
	return serial.Config{Path: c.Port, Baud: c.Baud}
}

func (c Config) Session() session.Config {
	return session.Config{Channel: c.Channel, ResponseTimeout: c.ResponseTimeout}
}

// Dumper returns nil when dumping is disabled.
func (c Config) Dumper() *dump.Dumper {
	if !c.Dump.Enabled {
		return nil
	}
	return dump.NewFile(dump.FileConfig{
		Path:       c.Dump.Path,
		MaxSizeMB:  c.Dump.MaxSizeMB,
		MaxBackups: c.Dump.MaxBackups,
	})
}
