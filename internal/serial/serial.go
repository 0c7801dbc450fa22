// Package serial opens a UART in raw 8N1 mode for the H4 link.
package serial

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupported = errors.New("serial: unsupported platform")
	ErrInvalidBaud = errors.New("serial: unsupported baud rate")
	ErrMissingPath = errors.New("serial: missing device path")
)

// SupportedBauds lists the rates Open accepts, ascending.
var SupportedBauds = []int{9600, 19200, 38400, 57600, 115200, 230400, 460800, 500000, 576000, 921600, 1000000}

type Config struct {
	Path string
	Baud int
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return ErrMissingPath
	}
	for _, b := range SupportedBauds {
		if b == c.Baud {
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrInvalidBaud, c.Baud)
}
