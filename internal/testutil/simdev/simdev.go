// Package simdev simulates the controller side of an H4 link for tests.
package simdev

import (
	"bufio"
	"errors"
	"io"
	"sync"

	logs "github.com/danmuck/hcilink/internal/logging"
	"github.com/danmuck/hcilink/internal/protocol"
	"github.com/danmuck/hcilink/internal/protocol/frame"
)

// Handler returns the events answering cmd, in wire order.
type Handler func(cmd frame.Command) []frame.Event

// Device answers every command with a successful Command Complete unless a
// handler is registered for its opcode.
type Device struct {
	conn io.ReadWriter

	wmu sync.Mutex

	mu       sync.Mutex
	handlers map[uint16]Handler
	received []frame.Command
}

func New(conn io.ReadWriter) *Device {
	return &Device{
		conn:     conn,
		handlers: make(map[uint16]Handler),
	}
}

func (d *Device) Handle(opcode uint16, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[opcode] = h
}

// Silence makes the device swallow opcode without answering.
func (d *Device) Silence(opcode uint16) {
	d.Handle(opcode, func(frame.Command) []frame.Event { return nil })
}

// Run serves commands until the connection closes.
func (d *Device) Run() error {
	r := bufio.NewReader(d.conn)
	for {
		indicator, err := r.ReadByte()
		if err != nil {
			return endErr(err)
		}
		if indicator != protocol.PacketCommand {
			logs.Warnf("simdev.Device.Run skip indicator=0x%02x", indicator)
			continue
		}
		cmd, err := frame.ReadCommand(r)
		if err != nil {
			return endErr(err)
		}

		d.mu.Lock()
		d.received = append(d.received, cmd)
		h, ok := d.handlers[cmd.Opcode]
		d.mu.Unlock()

		events := []frame.Event{CommandComplete(cmd.Opcode, 0)}
		if ok {
			events = h(cmd)
		}
		for _, evt := range events {
			if err := d.Inject(evt); err != nil {
				return endErr(err)
			}
		}
	}
}

// Inject writes an unsolicited event.
func (d *Device) Inject(evt frame.Event) error {
	raw, err := frame.EncodeEvent(evt)
	if err != nil {
		return err
	}
	return d.WriteRaw(append([]byte{protocol.PacketEvent}, raw...))
}

// WriteRaw writes b to the host unchanged.
func (d *Device) WriteRaw(b []byte) error {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	_, err := d.conn.Write(b)
	return err
}

// Received returns the commands seen so far.
func (d *Device) Received() []frame.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]frame.Command, len(d.received))
	copy(out, d.received)
	return out
}

func CommandComplete(opcode uint16, status uint8, ret ...byte) frame.Event {
	params := []byte{1, byte(opcode), byte(opcode >> 8), status}
	return frame.Event{Code: protocol.EventCommandComplete, Params: append(params, ret...)}
}

func CommandStatus(opcode uint16, status uint8) frame.Event {
	return frame.Event{Code: protocol.EventCommandStatus, Params: []byte{status, 1, byte(opcode), byte(opcode >> 8)}}
}

func endErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
