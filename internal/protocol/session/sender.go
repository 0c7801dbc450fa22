package session

import (
	"fmt"
	"io"
	"sync"

	logs "github.com/danmuck/hcilink/internal/logging"
	"github.com/danmuck/hcilink/internal/observability"
	"github.com/danmuck/hcilink/internal/protocol"
	"github.com/danmuck/hcilink/internal/protocol/dump"
	"github.com/danmuck/hcilink/internal/protocol/frame"
)

// Sink hands one encoded frame to the transport on a logical channel.
type Sink interface {
	Transmit(channel uint8, raw []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(channel uint8, raw []byte) error

func (f SinkFunc) Transmit(channel uint8, raw []byte) error {
	return f(channel, raw)
}

// WriterSink prefixes the channel byte and writes the packet in one Write.
type WriterSink struct {
	W io.Writer
}

func (s WriterSink) Transmit(channel uint8, raw []byte) error {
	pkt := make([]byte, 0, 1+len(raw))
	pkt = append(pkt, channel)
	pkt = append(pkt, raw...)
	n, err := s.W.Write(pkt)
	if err != nil {
		return err
	}
	if n != len(pkt) {
		return io.ErrShortWrite
	}
	return nil
}

// Sender encodes commands and transmits each exactly once.
type Sender struct {
	mu      sync.Mutex
	sink    Sink
	channel uint8
	dump    *dump.Dumper
}

func NewSender(sink Sink, channel uint8, dumper *dump.Dumper) *Sender {
	return &Sender{sink: sink, channel: channel, dump: dumper}
}

// Send encodes cmd and transmits it. Encoding errors are returned unwrapped
// and nothing reaches the sink; sink failures wrap protocol.ErrTransport.
func (s *Sender) Send(cmd frame.Command) error {
	raw, err := frame.EncodeCommand(cmd)
	if err != nil {
		observability.RecordTxError()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dump.Command(cmd, raw)
	if err := s.sink.Transmit(s.channel, raw); err != nil {
		observability.RecordTxError()
		logs.Warnf("session.Sender.Send opcode=0x%04x err=%v", cmd.Opcode, err)
		return fmt.Errorf("%w: opcode=0x%04x: %w", protocol.ErrTransport, cmd.Opcode, err)
	}
	observability.RecordTxFrame(cmd.Opcode)
	logs.Debugf("session.Sender.Send opcode=0x%04x len=%d", cmd.Opcode, len(cmd.Params))
	return nil
}
