package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/time/rate"

	logs "github.com/danmuck/hcilink/internal/logging"
	"github.com/danmuck/hcilink/internal/observability"
	"github.com/danmuck/hcilink/internal/protocol"
	"github.com/danmuck/hcilink/internal/protocol/dump"
	"github.com/danmuck/hcilink/internal/protocol/frame"
	"github.com/danmuck/hcilink/internal/protocol/rxqueue"
)

// Feeder decodes the inbound H4 stream and pushes every event into a queue.
type Feeder struct {
	r       *bufio.Reader
	queue   *rxqueue.Queue
	dump    *dump.Dumper
	warn    *rate.Limiter
	observe func(frame.Event)

	events    atomic.Uint64
	malformed atomic.Uint64
}

func NewFeeder(r io.Reader, queue *rxqueue.Queue, cfg Config) *Feeder {
	cfg = cfg.WithDefaults()
	return &Feeder{
		r:     bufio.NewReaderSize(r, cfg.ReadBufferSize),
		queue: queue,
		warn:  rate.NewLimiter(rate.Every(cfg.WarnInterval), cfg.WarnBurst),
	}
}

// Run reads until the stream ends, the queue closes or ctx is done. A clean
// end of stream returns nil; read failures wrap protocol.ErrTransport.
func (f *Feeder) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		indicator, err := f.r.ReadByte()
		if err != nil {
			return f.readErr(err)
		}
		if indicator != protocol.PacketEvent {
			f.drop("indicator=0x%02x", indicator)
			continue
		}

		evt, err := frame.ReadEvent(f.r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, protocol.ErrMalformedFrame) {
				f.drop("truncated event err=%v", err)
				return nil
			}
			return f.readErr(err)
		}

		f.dump.Event(evt)
		if f.observe != nil {
			f.observe(evt)
		}
		if err := f.queue.Push(evt); err != nil {
			logs.Debugf("session.Feeder.Run stop event=0x%02x err=%v", evt.Code, err)
			return nil
		}
		f.events.Add(1)
		observability.RecordRxEvent(evt.Code)
		logs.Tracef("session.Feeder.Run event=0x%02x len=%d", evt.Code, evt.Len())
	}
}

func (f *Feeder) Events() uint64 {
	return f.events.Load()
}

// Malformed counts discarded indicator bytes and truncated frames.
func (f *Feeder) Malformed() uint64 {
	return f.malformed.Load()
}

func (f *Feeder) drop(format string, args ...any) {
	f.malformed.Add(1)
	observability.RecordRxMalformed()
	if f.warn.Allow() {
		logs.Warnf("session.Feeder.drop "+format, args...)
	}
}

func (f *Feeder) readErr(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: read: %w", protocol.ErrTransport, err)
}
