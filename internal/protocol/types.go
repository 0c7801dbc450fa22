package protocol

// Packet indicators prefix every frame on the UART (H4 convention).
const (
	PacketCommand uint8 = 0x01
	PacketEvent   uint8 = 0x04
)

// Standard response event codes.
const (
	EventCommandComplete uint8 = 0x0E
	EventCommandStatus   uint8 = 0x0F
)

// MaxParamLen is the largest payload the 8-bit length field can describe.
const MaxParamLen = 255
