package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/hcilink/internal/protocol"
)

const (
	CommandHeaderLen = 3
	EventHeaderLen   = 2
)

// Command is one outbound frame: 16-bit opcode plus up to 255 parameter bytes.
type Command struct {
	Opcode uint16
	Params []byte
}

// Event is one inbound frame. The wire length field is len(Params).
type Event struct {
	Code   uint8
	Params []byte
}

// Len returns the declared parameter length.
func (e Event) Len() int {
	return len(e.Params)
}

// EncodeCommand returns [opcode_lo, opcode_hi, len][params] in a fresh buffer.
func EncodeCommand(cmd Command) ([]byte, error) {
	if len(cmd.Params) > protocol.MaxParamLen {
		return nil, fmt.Errorf("%w: opcode=0x%04x params=%d max=%d",
			protocol.ErrInvalidLength, cmd.Opcode, len(cmd.Params), protocol.MaxParamLen)
	}
	buf := make([]byte, CommandHeaderLen+len(cmd.Params))
	binary.LittleEndian.PutUint16(buf[0:2], cmd.Opcode)
	buf[2] = byte(len(cmd.Params))
	copy(buf[CommandHeaderLen:], cmd.Params)
	return buf, nil
}

// DecodeCommand parses an encoded command. Bytes past the declared length are ignored.
func DecodeCommand(raw []byte) (Command, error) {
	if len(raw) < CommandHeaderLen {
		return Command{}, fmt.Errorf("%w: short command header: %d", protocol.ErrMalformedFrame, len(raw))
	}
	n := int(raw[2])
	if len(raw)-CommandHeaderLen < n {
		return Command{}, fmt.Errorf("%w: command declares %d params, have %d",
			protocol.ErrMalformedFrame, n, len(raw)-CommandHeaderLen)
	}
	return Command{
		Opcode: binary.LittleEndian.Uint16(raw[0:2]),
		Params: clone(raw[CommandHeaderLen : CommandHeaderLen+n]),
	}, nil
}

// EncodeEvent returns [code, len][params] in a fresh buffer.
func EncodeEvent(evt Event) ([]byte, error) {
	if len(evt.Params) > protocol.MaxParamLen {
		return nil, fmt.Errorf("%w: event=0x%02x params=%d max=%d",
			protocol.ErrInvalidLength, evt.Code, len(evt.Params), protocol.MaxParamLen)
	}
	buf := make([]byte, EventHeaderLen+len(evt.Params))
	buf[0] = evt.Code
	buf[1] = byte(len(evt.Params))
	copy(buf[EventHeaderLen:], evt.Params)
	return buf, nil
}

// DecodeEvent parses an encoded event. The returned Event owns its params.
func DecodeEvent(raw []byte) (Event, error) {
	if len(raw) < EventHeaderLen {
		return Event{}, fmt.Errorf("%w: short event header: %d", protocol.ErrMalformedFrame, len(raw))
	}
	n := int(raw[1])
	if len(raw)-EventHeaderLen < n {
		return Event{}, fmt.Errorf("%w: event declares %d params, have %d",
			protocol.ErrMalformedFrame, n, len(raw)-EventHeaderLen)
	}
	return Event{
		Code:   raw[0],
		Params: clone(raw[EventHeaderLen : EventHeaderLen+n]),
	}, nil
}

// ReadEvent reads exactly one event frame from r. io.EOF is returned untouched
// when r ends before the first byte; any later shortfall is a malformed frame.
func ReadEvent(r io.Reader) (Event, error) {
	var head [EventHeaderLen]byte
	if err := readFull(r, head[:], true); err != nil {
		return Event{}, err
	}
	raw := make([]byte, EventHeaderLen+int(head[1]))
	copy(raw, head[:])
	if err := readFull(r, raw[EventHeaderLen:], false); err != nil {
		return Event{}, err
	}
	return DecodeEvent(raw)
}

// ReadCommand reads exactly one command frame from r, with ReadEvent's EOF rules.
func ReadCommand(r io.Reader) (Command, error) {
	var head [CommandHeaderLen]byte
	if err := readFull(r, head[:], true); err != nil {
		return Command{}, err
	}
	raw := make([]byte, CommandHeaderLen+int(head[2]))
	copy(raw, head[:])
	if err := readFull(r, raw[CommandHeaderLen:], false); err != nil {
		return Command{}, err
	}
	return DecodeCommand(raw)
}

func readFull(r io.Reader, buf []byte, first bool) error {
	if len(buf) == 0 {
		return nil
	}
	_, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return nil
	case first && errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %v", protocol.ErrMalformedFrame, io.ErrUnexpectedEOF)
	default:
		return err
	}
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
