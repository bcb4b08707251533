// Package frame implements the TVLCOM on-wire frame: a byte-fed parser
// state machine that recognizes and validates one frame at a time, and a
// matching builder that serializes frames. See SPEC_FULL.md §3-4 for the
// wire contract this package fixes.
package frame

// Interface names the underlying byte transport a frame was received on
// or should be sent over. It is used to route sends and to tag incoming
// frames so handlers can distinguish their origin.
type Interface uint8

const (
	UART Interface = iota
	USB
)

func (i Interface) String() string {
	switch i {
	case UART:
		return "UART"
	case USB:
		return "USB"
	default:
		return "unknown"
	}
}

// On-wire constants (Open Question #3: the active F0 0F / E0 0D pair).
const (
	Header0 byte = 0xF0
	Header1 byte = 0x0F
	Tail0   byte = 0xE0
	Tail1   byte = 0x0D
)

// Build-time configuration (spec.md §6).
const (
	MaxDataLength = 240
	headerSize    = 2
	frameIDSize   = 1
	dataLenSize   = 1
	crcSize       = 2
	tailSize      = 2
	overheadSize  = headerSize + frameIDSize + dataLenSize + crcSize + tailSize

	// MaxFrameSize is the largest possible on-wire frame.
	MaxFrameSize = overheadSize + MaxDataLength
)
