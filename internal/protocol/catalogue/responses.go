package catalogue

import (
	"errors"
	"fmt"

	"github.com/danmuck/hcilink/internal/protocol"
	"github.com/danmuck/hcilink/internal/protocol/frame"
	"github.com/danmuck/hcilink/internal/protocol/params"
)

var ErrUnexpectedEvent = errors.New("catalogue: unexpected event")

// Completion is the decoded body of a Command Complete or Command Status event.
type Completion struct {
	Event      uint8
	NumPackets uint8
	Opcode     uint16
	Status     uint8
	HasStatus  bool
	Return     []byte
}

// Succeeded reports a zero status. Completions without a status byte count as success.
func (c Completion) Succeeded() bool {
	return !c.HasStatus || c.Status == 0
}

// ParseCommandComplete decodes [num_packets, opcode(2), status?, return...].
func ParseCommandComplete(evt frame.Event) (Completion, error) {
	if evt.Code != protocol.EventCommandComplete {
		return Completion{}, fmt.Errorf("%w: code=0x%02x want=0x%02x", ErrUnexpectedEvent, evt.Code, protocol.EventCommandComplete)
	}
	r := params.NewReader(evt.Params)
	out := Completion{Event: evt.Code}
	var err error
	if out.NumPackets, err = r.U8(); err != nil {
		return Completion{}, err
	}
	if out.Opcode, err = r.U16(); err != nil {
		return Completion{}, err
	}
	if r.Remaining() > 0 {
		out.Status, _ = r.U8()
		out.HasStatus = true
		out.Return = r.Rest()
	}
	return out, nil
}

// ParseCommandStatus decodes [status, num_packets, opcode(2)].
func ParseCommandStatus(evt frame.Event) (Completion, error) {
	if evt.Code != protocol.EventCommandStatus {
		return Completion{}, fmt.Errorf("%w: code=0x%02x want=0x%02x", ErrUnexpectedEvent, evt.Code, protocol.EventCommandStatus)
	}
	r := params.NewReader(evt.Params)
	out := Completion{Event: evt.Code, HasStatus: true}
	var err error
	if out.Status, err = r.U8(); err != nil {
		return Completion{}, err
	}
	if out.NumPackets, err = r.U8(); err != nil {
		return Completion{}, err
	}
	if out.Opcode, err = r.U16(); err != nil {
		return Completion{}, err
	}
	return out, nil
}

// ParseResponse accepts either response event.
func ParseResponse(evt frame.Event) (Completion, error) {
	switch evt.Code {
	case protocol.EventCommandComplete:
		return ParseCommandComplete(evt)
	case protocol.EventCommandStatus:
		return ParseCommandStatus(evt)
	default:
		return Completion{}, fmt.Errorf("%w: code=0x%02x", ErrUnexpectedEvent, evt.Code)
	}
}
