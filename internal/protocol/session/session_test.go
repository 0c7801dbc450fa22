package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/danmuck/hcilink/internal/protocol"
	"github.com/danmuck/hcilink/internal/protocol/catalogue"
	"github.com/danmuck/hcilink/internal/protocol/frame"
	"github.com/danmuck/hcilink/internal/protocol/rxqueue"
	"github.com/danmuck/hcilink/internal/testutil/simdev"
	"github.com/danmuck/hcilink/internal/testutil/testlog"
)

func startLink(t *testing.T) (*Link, *simdev.Device) {
	t.Helper()
	host, dev := net.Pipe()
	device := simdev.New(dev)
	devDone := make(chan error, 1)
	go func() { devDone <- device.Run() }()

	link := NewLink(host, Config{ResponseTimeout: time.Second})
	link.Start(context.Background())
	t.Cleanup(func() {
		_ = link.Close()
		_ = dev.Close()
		if err := <-devDone; err != nil {
			t.Errorf("device run: %v", err)
		}
	})
	return link, device
}

func TestDefaultConfigAndWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{ResponseTimeout: 50 * time.Millisecond}.WithDefaults()
	if cfg.Channel != protocol.PacketCommand {
		t.Fatalf("unexpected channel=0x%02x", cfg.Channel)
	}
	if cfg.ResponseTimeout != 50*time.Millisecond {
		t.Fatalf("explicit timeout overwritten: %v", cfg.ResponseTimeout)
	}
	if cfg.ReadBufferSize != DefaultConfig().ReadBufferSize || cfg.WarnBurst != DefaultConfig().WarnBurst {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestWriterSinkPrefixesChannel(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	s := NewSender(WriterSink{W: &buf}, protocol.PacketCommand, nil)
	if err := s.Send(catalogue.Reset()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := s.Send(catalogue.RxTest(0x13)); err != nil {
		t.Fatalf("send: %v", err)
	}
	want := []byte{0x01, 0x03, 0x0C, 0x00, 0x01, 0x1D, 0x20, 0x01, 0x13}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got=% x want=% x", buf.Bytes(), want)
	}
}

func TestSenderWrapsSinkFailure(t *testing.T) {
	testlog.Start(t)
	portErr := errors.New("port gone")
	s := NewSender(SinkFunc(func(uint8, []byte) error { return portErr }), protocol.PacketCommand, nil)
	err := s.Send(catalogue.TestEnd())
	if !errors.Is(err, protocol.ErrTransport) || !errors.Is(err, portErr) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}

func TestSenderRejectsOversizeWithoutTransmitting(t *testing.T) {
	testlog.Start(t)
	calls := 0
	s := NewSender(SinkFunc(func(uint8, []byte) error {
		calls++
		return nil
	}), protocol.PacketCommand, nil)
	err := s.Send(frame.Command{Opcode: 0x40D0, Params: make([]byte, 256)})
	if !errors.Is(err, protocol.ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("sink called %d times", calls)
	}
}

func TestFeederSkipsGarbageAndKeepsOrder(t *testing.T) {
	testlog.Start(t)
	stream := []byte{
		0xFF,
		0x04, 0x0E, 0x03, 0x01, 0x02, 0x03,
		0x02,
		0x04, 0x0F, 0x00,
		0x04, 0x0E, 0x05, 0x01,
	}
	q := rxqueue.New()
	f := NewFeeder(bytes.NewReader(stream), q, DefaultConfig())
	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if f.Events() != 2 || f.Malformed() != 3 {
		t.Fatalf("events=%d malformed=%d", f.Events(), f.Malformed())
	}

	first, ok := q.WaitAndPop(0)
	if !ok || first.Code != 0x0E || !bytes.Equal(first.Params, []byte{1, 2, 3}) {
		t.Fatalf("unexpected first event ok=%v evt=%+v", ok, first)
	}
	second, ok := q.WaitAndPop(0)
	if !ok || second.Code != 0x0F || second.Len() != 0 {
		t.Fatalf("unexpected second event ok=%v evt=%+v", ok, second)
	}
	if _, ok := q.WaitAndPop(0); ok {
		t.Fatalf("truncated frame reached the queue")
	}
}

func TestFeederStopsOnClosedQueue(t *testing.T) {
	testlog.Start(t)
	q := rxqueue.New()
	q.Close()
	f := NewFeeder(bytes.NewReader([]byte{0x04, 0x0E, 0x00, 0x04, 0x0E, 0x00}), q, DefaultConfig())
	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if f.Events() != 0 {
		t.Fatalf("unexpected events=%d", f.Events())
	}
}

func TestFeederHonoursCanceledContext(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := NewFeeder(bytes.NewReader([]byte{0x04, 0x0E, 0x00}), rxqueue.New(), DefaultConfig())
	if err := f.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestInflightLifecycle(t *testing.T) {
	testlog.Start(t)
	f := NewInflight()
	now := time.Unix(1700000000, 0)
	f.Track(catalogue.TxTest(19, 37, 0), now)
	item := f.Track(catalogue.TxTest(19, 37, 0), now.Add(time.Second))
	if item.Attempts != 2 || item.Name != "tx-test" || !item.SentAt.Equal(now.Add(time.Second)) {
		t.Fatalf("unexpected pending item: %+v", item)
	}
	f.Track(catalogue.Reset(), now)
	list := f.List()
	if len(list) != 2 || list[0].Opcode != catalogue.OpReset {
		t.Fatalf("unexpected list: %+v", list)
	}

	f.Observe(simdev.CommandStatus(catalogue.OpTxTest, 0))
	if _, ok := f.Get(catalogue.OpTxTest); ok {
		t.Fatalf("tx-test should be resolved")
	}
	f.Observe(frame.Event{Code: 0x3E, Params: []byte{0x03, 0x0C}})
	if _, ok := f.Get(catalogue.OpReset); !ok {
		t.Fatalf("unrelated event resolved reset")
	}
}

func TestInflightAttemptUndoesOnlyItself(t *testing.T) {
	testlog.Start(t)
	f := NewInflight()
	now := time.Unix(1700000000, 0)
	f.Track(catalogue.TxTest(19, 37, 0), now)
	undo := f.Attempt(catalogue.TxTest(19, 37, 0), now.Add(time.Second))
	undo()
	item, ok := f.Get(catalogue.OpTxTest)
	if !ok || item.Attempts != 1 || !item.SentAt.Equal(now) {
		t.Fatalf("earlier attempt not restored: ok=%v item=%+v", ok, item)
	}

	undo = f.Attempt(catalogue.Reset(), now)
	undo()
	if _, ok := f.Get(catalogue.OpReset); ok {
		t.Fatalf("first attempt should be removed by undo")
	}

	undo = f.Attempt(catalogue.TestEnd(), now)
	f.Observe(simdev.CommandComplete(catalogue.OpTestEnd, 0))
	undo()
	f.Track(catalogue.TestEnd(), now.Add(time.Second))
	undo()
	if item, ok := f.Get(catalogue.OpTestEnd); !ok || item.Attempts != 1 {
		t.Fatalf("stale undo touched a later attempt: ok=%v item=%+v", ok, item)
	}
}

// pipeOnly is a transport without a Close method.
type pipeOnly struct {
	io.Reader
	io.Writer
}

func TestLinkFailedResendKeepsEarlierAttempt(t *testing.T) {
	testlog.Start(t)
	pr, pw := io.Pipe()
	portErr := errors.New("port gone")
	calls := 0
	link := NewLink(pipeOnly{Reader: pr, Writer: io.Discard}, DefaultConfig(), WithSink(SinkFunc(func(uint8, []byte) error {
		calls++
		if calls > 1 {
			return portErr
		}
		return nil
	})))
	link.Start(context.Background())
	defer func() {
		_ = link.Close()
		_ = pw.Close()
		<-link.Done()
	}()

	if err := link.Send(catalogue.TxTest(19, 37, 0)); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := link.Send(catalogue.TxTest(19, 37, 0)); !errors.Is(err, portErr) {
		t.Fatalf("expected port error, got %v", err)
	}
	pending := link.Outstanding()
	if len(pending) != 1 || pending[0].Opcode != catalogue.OpTxTest || pending[0].Attempts != 1 {
		t.Fatalf("earlier attempt lost: %+v", pending)
	}

	if err := link.Send(catalogue.Reset()); !errors.Is(err, portErr) {
		t.Fatalf("expected port error, got %v", err)
	}
	if _, ok := link.inflight.Get(catalogue.OpReset); ok {
		t.Fatalf("failed first send left reset pending")
	}
}

func TestLinkCloseReturnsForUncloseableTransport(t *testing.T) {
	testlog.Start(t)
	pr, pw := io.Pipe()
	link := NewLink(pipeOnly{Reader: pr, Writer: io.Discard}, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	link.Start(ctx)

	closed := make(chan error, 1)
	go func() { closed <- link.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("close: %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("close blocked on a transport it cannot close")
	}
	// Cancelling after Close must not block either.
	cancel()

	if _, ok := link.WaitEvent(rxqueue.Infinite); ok {
		t.Fatalf("closed link delivered data")
	}
	_ = pw.Close()
	select {
	case <-link.Done():
	case <-time.After(time.Second):
		t.Fatalf("feeder did not exit once the stream ended")
	}
	if err := link.Err(); err != nil {
		t.Fatalf("feeder err: %v", err)
	}
}

func TestLinkExchangeResolvesCommand(t *testing.T) {
	testlog.Start(t)
	link, device := startLink(t)

	evt, ok, err := link.Exchange(catalogue.Reset(), time.Second)
	if err != nil || !ok {
		t.Fatalf("exchange ok=%v err=%v", ok, err)
	}
	resp, err := catalogue.ParseCommandComplete(evt)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if resp.Opcode != catalogue.OpReset || !resp.Succeeded() {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if n := len(link.Outstanding()); n != 0 {
		t.Fatalf("outstanding=%d", n)
	}
	got := device.Received()
	if len(got) != 1 || got[0].Opcode != catalogue.OpReset {
		t.Fatalf("device received %+v", got)
	}
}

func TestLinkExchangeTimesOutAndKeepsPending(t *testing.T) {
	testlog.Start(t)
	link, device := startLink(t)
	device.Silence(catalogue.OpTestEnd)

	start := time.Now()
	_, ok, err := link.Exchange(catalogue.TestEnd(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if ok {
		t.Fatalf("expected no response")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("timed out early: %v", elapsed)
	}
	pending := link.Outstanding()
	if len(pending) != 1 || pending[0].Name != "test-end" || pending[0].Attempts != 1 {
		t.Fatalf("unexpected pending: %+v", pending)
	}
}

func TestLinkDeliversEveryEventInOrder(t *testing.T) {
	testlog.Start(t)
	link, device := startLink(t)
	device.Handle(catalogue.OpTxTest, func(cmd frame.Command) []frame.Event {
		return []frame.Event{
			simdev.CommandStatus(cmd.Opcode, 0),
			simdev.CommandComplete(cmd.Opcode, 0),
		}
	})

	evt, ok, err := link.Exchange(catalogue.TxTest(19, 37, 0), time.Second)
	if err != nil || !ok || evt.Code != protocol.EventCommandStatus {
		t.Fatalf("unexpected first event ok=%v err=%v evt=%+v", ok, err, evt)
	}
	evt, ok = link.WaitEvent(time.Second)
	if !ok || evt.Code != protocol.EventCommandComplete {
		t.Fatalf("unexpected second event ok=%v evt=%+v", ok, evt)
	}
}

func TestLinkCountsGarbageAndDeliversUnsolicited(t *testing.T) {
	testlog.Start(t)
	link, device := startLink(t)
	if err := device.WriteRaw([]byte{0xFF}); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if err := device.Inject(frame.Event{Code: 0x3E, Params: []byte{0x01}}); err != nil {
		t.Fatalf("inject: %v", err)
	}
	evt, ok := link.WaitEvent(time.Second)
	if !ok || evt.Code != 0x3E {
		t.Fatalf("unexpected event ok=%v evt=%+v", ok, evt)
	}
	if link.Malformed() != 1 {
		t.Fatalf("malformed=%d", link.Malformed())
	}
}

func TestLinkCloseWakesWaiter(t *testing.T) {
	testlog.Start(t)
	link, _ := startLink(t)
	got := make(chan bool, 1)
	go func() {
		_, ok := link.WaitEvent(rxqueue.Infinite)
		got <- ok
	}()
	time.Sleep(20 * time.Millisecond)
	if err := link.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case ok := <-got:
		if ok {
			t.Fatalf("closed link delivered data")
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter not woken")
	}
	if err := link.Send(catalogue.Reset()); !errors.Is(err, protocol.ErrTransport) {
		t.Fatalf("expected ErrTransport after close, got %v", err)
	}
}

func TestLinkStopsWhenContextCanceled(t *testing.T) {
	testlog.Start(t)
	host, dev := net.Pipe()
	defer dev.Close()
	ctx, cancel := context.WithCancel(context.Background())
	link := NewLink(host, DefaultConfig())
	link.Start(ctx)
	cancel()
	select {
	case <-link.Done():
	case <-time.After(time.Second):
		t.Fatalf("feeder still running after cancel")
	}
	if _, ok := link.WaitEvent(0); ok {
		t.Fatalf("unexpected event")
	}
}
