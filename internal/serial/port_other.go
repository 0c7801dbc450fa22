//go:build !linux

package serial

import "fmt"

// Port is unavailable on this platform.
type Port struct{}

func Open(cfg Config) (*Port, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, cfg.Path)
}

func (p *Port) Read([]byte) (int, error) {
	return 0, ErrUnsupported
}

func (p *Port) Write([]byte) (int, error) {
	return 0, ErrUnsupported
}

func (p *Port) Close() error {
	return nil
}
