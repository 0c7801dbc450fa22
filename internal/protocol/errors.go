package protocol

import "errors"

var (
	// ErrInvalidLength marks a command whose parameters do not fit the 8-bit
	// length field. It is a caller bug; nothing is sent.
	ErrInvalidLength = errors.New("protocol: invalid length")
	// ErrMalformedFrame marks received bytes shorter than their declared length.
	ErrMalformedFrame = errors.New("protocol: malformed frame")
	// ErrTransport wraps failures reported by the transport sink or source.
	ErrTransport = errors.New("protocol: transport error")
	// ErrQueueClosed is returned by pushes after the receive queue is closed.
	ErrQueueClosed = errors.New("protocol: queue closed")
)
