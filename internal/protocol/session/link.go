package session

import (
	"context"
	"io"
	"sync"
	"time"

	logs "github.com/danmuck/hcilink/internal/logging"
	"github.com/danmuck/hcilink/internal/protocol/dump"
	"github.com/danmuck/hcilink/internal/protocol/frame"
	"github.com/danmuck/hcilink/internal/protocol/rxqueue"
)

// Option customizes a Link.
type Option func(*Link)

// WithDumper mirrors every frame into d. The caller keeps ownership of d.
func WithDumper(d *dump.Dumper) Option {
	return func(l *Link) {
		l.dump = d
	}
}

// WithSink sends commands through s instead of writing to the transport.
func WithSink(s Sink) Option {
	return func(l *Link) {
		l.sink = s
	}
}

// Link wires a sender, feeder, receive queue and in-flight tracker around one
// transport.
type Link struct {
	cfg      Config
	rw       io.ReadWriter
	sink     Sink
	dump     *dump.Dumper
	queue    *rxqueue.Queue
	sender   *Sender
	feeder   *Feeder
	inflight *Inflight

	mu        sync.Mutex
	started   bool
	closed    bool
	done      chan struct{}
	feedErr   error
	stopWatch func() bool
	closeOnce sync.Once
	closeErr  error
}

func NewLink(rw io.ReadWriter, cfg Config, opts ...Option) *Link {
	cfg = cfg.WithDefaults()
	l := &Link{
		cfg:      cfg,
		rw:       rw,
		queue:    rxqueue.New(),
		inflight: NewInflight(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.sink == nil {
		l.sink = WriterSink{W: rw}
	}
	l.sender = NewSender(l.sink, cfg.Channel, l.dump)
	l.feeder = NewFeeder(rw, l.queue, cfg)
	l.feeder.dump = l.dump
	l.feeder.observe = l.inflight.Observe
	return l
}

// Start runs the feeder in the background. Cancelling ctx closes the link.
func (l *Link) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.closed {
		return
	}
	l.started = true
	l.stopWatch = context.AfterFunc(ctx, func() {
		_ = l.Close()
	})
	go func() {
		defer close(l.done)
		err := l.feeder.Run(ctx)
		l.mu.Lock()
		l.feedErr = err
		closing := l.closed
		l.mu.Unlock()
		if err != nil && !closing {
			logs.Errf("session.Link.feeder err=%v", err)
		}
		logs.Debugf("session.Link.feeder exit events=%d malformed=%d", l.feeder.Events(), l.feeder.Malformed())
	}()
}

// Send transmits cmd and records it as in flight until a response names its
// opcode. A failed send leaves any earlier attempt of the same opcode tracked.
func (l *Link) Send(cmd frame.Command) error {
	undo := l.inflight.Attempt(cmd, time.Now())
	if err := l.sender.Send(cmd); err != nil {
		undo()
		return err
	}
	return nil
}

// WaitEvent pops the next event with rxqueue.Queue.WaitAndPop semantics.
func (l *Link) WaitEvent(timeout time.Duration) (frame.Event, bool) {
	return l.queue.WaitAndPop(timeout)
}

// Exchange sends cmd and returns the next event, whatever it is. Nothing is
// filtered, so unrelated events are returned rather than lost.
func (l *Link) Exchange(cmd frame.Command, timeout time.Duration) (frame.Event, bool, error) {
	if err := l.Send(cmd); err != nil {
		return frame.Event{}, false, err
	}
	evt, ok := l.WaitEvent(timeout)
	if !ok {
		logs.Warnf("session.Link.Exchange no response opcode=0x%04x timeout=%v", cmd.Opcode, timeout)
	}
	return evt, ok, nil
}

// Outstanding lists commands still awaiting a response.
func (l *Link) Outstanding() []PendingCommand {
	return l.inflight.List()
}

func (l *Link) Config() Config {
	return l.cfg
}

func (l *Link) Queue() *rxqueue.Queue {
	return l.queue
}

// Malformed reports inbound bytes and frames the feeder discarded.
func (l *Link) Malformed() uint64 {
	return l.feeder.Malformed()
}

// Err returns the feeder's exit error once it has stopped.
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.feedErr
}

// Done is closed when the feeder exits.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Close wakes waiters and closes the transport when it is an io.Closer. Only
// then does it wait for the feeder; a feeder blocked reading a transport that
// cannot be closed exits on its next event or end of stream, and Done
// reports when it has.
// Events already queued remain poppable.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		started := l.started
		stop := l.stopWatch
		l.mu.Unlock()

		if stop != nil {
			stop()
		}
		l.queue.Close()
		c, closable := l.rw.(io.Closer)
		if closable {
			l.closeErr = c.Close()
		}
		switch {
		case !started:
			close(l.done)
		case closable:
			<-l.done
		}
		logs.Debugf("session.Link.Close outstanding=%d", len(l.inflight.List()))
	})
	return l.closeErr
}
