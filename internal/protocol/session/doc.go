// Package session owns the host side of the HCI test link.
//
// Ownership boundary:
// - transmit path (Sink, WriterSink, Sender)
// - feeder that decodes the inbound H4 stream into the receive queue
// - in-flight command tracking keyed by opcode
// - Link, which wires the above around one transport
package session
