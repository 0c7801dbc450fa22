//go:build linux

package serial

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	logs "github.com/danmuck/hcilink/internal/logging"
)

var baudFlags = map[int]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
}

// Port is an open UART. The descriptor is non-blocking and driven by the
// runtime poller, so Close unblocks a pending Read.
type Port struct {
	f    *os.File
	path string
}

func Open(cfg Config) (*Port, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	speed := baudFlags[cfg.Baud]
	f, err := os.OpenFile(cfg.Path, os.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Path, err)
	}
	if err := configure(f, speed); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("serial: configure %s: %w", cfg.Path, err)
	}
	logs.Infof("serial.Open path=%s baud=%d", cfg.Path, cfg.Baud)
	return &Port{f: f, path: cfg.Path}, nil
}

func configure(f *os.File, speed uint32) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var cfgErr error
	err = rc.Control(func(fd uintptr) {
		cfgErr = setRaw(int(fd), speed)
	})
	if err != nil {
		return err
	}
	return cfgErr
}

func setRaw(fd int, speed uint32) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	t.Ispeed = speed
	t.Ospeed = speed
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return err
	}
	return unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH)
}

func (p *Port) Read(b []byte) (int, error) {
	return p.f.Read(b)
}

func (p *Port) Write(b []byte) (int, error) {
	return p.f.Write(b)
}

func (p *Port) Close() error {
	logs.Debugf("serial.Port.Close path=%s", p.path)
	return p.f.Close()
}
