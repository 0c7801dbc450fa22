// Package protocol owns the host-side HCI test transport contract.
//
// Ownership boundary:
// - frame/header primitives (frame)
// - little-endian parameter packing (params)
// - opcode catalogue and command builders (catalogue)
// - receive queue and its wait/signal discipline (rxqueue)
// - transmit path, feeder and link wiring (session)
// - diagnostic frame dumps (dump)
package protocol
