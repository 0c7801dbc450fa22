// Package dump writes hex and ASCII dumps of every frame crossing the link.
package dump

import (
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	logs "github.com/danmuck/hcilink/internal/logging"
	"github.com/danmuck/hcilink/internal/protocol/frame"
)

// FileConfig selects a rotating dump file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// Dumper serializes dump records onto one writer. A nil *Dumper discards
// everything.
type Dumper struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	now    func() time.Time
}

func New(w io.Writer) *Dumper {
	return &Dumper{w: w, now: time.Now}
}

// NewFile dumps into a size-rotated file.
func NewFile(cfg FileConfig) *Dumper {
	lj := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}
	d := New(lj)
	d.closer = lj
	return d
}

// Command records an outbound frame. raw is the encoded frame without the
// packet indicator.
func (d *Dumper) Command(cmd frame.Command, raw []byte) {
	if d == nil {
		return
	}
	d.write(fmt.Sprintf("tx opcode=0x%04x len=%d", cmd.Opcode, len(cmd.Params)), raw)
}

// Event records an inbound frame.
func (d *Dumper) Event(evt frame.Event) {
	if d == nil {
		return
	}
	raw, err := frame.EncodeEvent(evt)
	if err != nil {
		logs.Warnf("dump.Dumper.Event encode event=0x%02x err=%v", evt.Code, err)
		return
	}
	d.write(fmt.Sprintf("rx event=0x%02x len=%d", evt.Code, evt.Len()), raw)
}

func (d *Dumper) write(header string, raw []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	record := fmt.Sprintf("%s %s\n%s", d.now().Format(time.RFC3339Nano), header, hex.Dump(raw))
	if _, err := io.WriteString(d.w, record); err != nil {
		logs.Warnf("dump.Dumper.write err=%v", err)
	}
}

// Close releases the underlying file, if any.
func (d *Dumper) Close() error {
	if d == nil || d.closer == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closer.Close()
}
