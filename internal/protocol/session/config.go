package session

import (
	"time"

	"github.com/danmuck/hcilink/internal/protocol"
)

// Config defines link defaults.
type Config struct {
	// Channel is the transport type tag written ahead of every command.
	Channel         uint8
	ResponseTimeout time.Duration
	ReadBufferSize  int
	// WarnInterval and WarnBurst rate limit feeder drop warnings.
	WarnInterval time.Duration
	WarnBurst    int
}

func DefaultConfig() Config {
	return Config{
		Channel:         protocol.PacketCommand,
		ResponseTimeout: 2 * time.Second,
		ReadBufferSize:  4096,
		WarnInterval:    time.Second,
		WarnBurst:       5,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Channel == 0 {
		c.Channel = def.Channel
	}
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = def.ResponseTimeout
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
	if c.WarnInterval <= 0 {
		c.WarnInterval = def.WarnInterval
	}
	if c.WarnBurst <= 0 {
		c.WarnBurst = def.WarnBurst
	}
	return c
}
