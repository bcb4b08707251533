package frame

import (
	"errors"

	"github.com/uf4over/tvlcom/pkg/crc"
)

// ErrLengthOverflow is reported through a Parser's error callback when
// the declared data length exceeds MaxDataLength.
var ErrLengthOverflow = errors.New("frame: length overflow")

// ErrCrcMismatch is reported through a Parser's error callback when the
// computed CRC does not match the CRC carried on the wire.
var ErrCrcMismatch = errors.New("frame: crc mismatch")

type state uint8

const (
	stateHeaderLow state = iota
	stateHeaderHigh
	stateFrameID
	stateDataLen
	stateData
	stateCrcHi
	stateCrcLo
	stateTailLow
	stateTailHigh
)

// FrameFunc is invoked once per successfully decoded frame. data is only
// valid for the duration of the call: it aliases the Parser's internal
// receive buffer, which is reused as soon as FrameFunc returns.
type FrameFunc func(frameID byte, data []byte, iface Interface)

// ErrorFunc is invoked when byte-level parsing fails. frameID is the
// best-known identifier at the point of failure: it may be stale or zero
// when the error occurs before a frame-id byte was observed.
type ErrorFunc func(frameID byte, iface Interface, err error)

// Parser is a byte-fed state machine that recognizes one TVLCOM frame at
// a time. It never allocates on the hot path and holds exactly one fixed
// capacity receive buffer. A Parser is single-feeder: exactly one
// goroutine may call Feed on a given instance (see SPEC_FULL.md §5).
type Parser struct {
	// Debug enables a per-frame diagnostic log line (frame id, length and
	// data bytes of each valid frame) through Log. It never changes
	// parsing behavior.
	Debug bool
	Log   func(format string, args ...interface{})

	iface     Interface
	onFrame   FrameFunc
	onError   ErrorFunc

	st          state
	frameID     byte
	dataLength  uint8
	buf         [MaxDataLength]byte
	idx         uint8
	crcReceived uint16
	crcScratch  [2 + MaxDataLength]byte
}

// NewParser constructs a Parser bound to iface, invoking onFrame on every
// successfully decoded frame. onFrame may be nil, in which case decoded
// frames are silently dropped; the error callback is installed separately
// with SetErrorCallback, mirroring TLV_InitParser / TLV_SetErrorCallback
// in the original.
func NewParser(iface Interface, onFrame FrameFunc) *Parser {
	return &Parser{iface: iface, onFrame: onFrame, st: stateHeaderLow}
}

// SetErrorCallback installs the callback invoked on length/CRC errors.
func (p *Parser) SetErrorCallback(onError ErrorFunc) {
	p.onError = onError
}

// Interface returns the interface this parser is bound to.
func (p *Parser) Interface() Interface { return p.iface }

func (p *Parser) logf(format string, args ...interface{}) {
	if p.Debug && p.Log != nil {
		p.Log(format, args...)
	}
}

func (p *Parser) reportError(err error) {
	if p.onError != nil {
		p.onError(p.frameID, p.iface, err)
	}
}

func (p *Parser) resetToHunt() {
	p.st = stateHeaderLow
	p.idx = 0
}

// Feed advances the state machine by one received byte. On a successful
// frame decode it invokes the frame callback synchronously, before
// returning. On a parse error it invokes the error callback and resumes
// hunting for the next header — a partial frame is never timed out;
// Feed simply waits for more bytes.
func (p *Parser) Feed(b byte) {
	switch p.st {
	case stateHeaderLow:
		if b == Header0 {
			p.st = stateHeaderHigh
			p.idx = 0
		}

	case stateHeaderHigh:
		if b == Header1 {
			p.st = stateFrameID
		} else {
			p.st = stateHeaderLow
		}

	case stateFrameID:
		p.frameID = b
		p.st = stateDataLen

	case stateDataLen:
		switch {
		case b > MaxDataLength:
			p.reportError(ErrLengthOverflow)
			p.resetToHunt()
		case b == 0:
			p.dataLength = 0
			p.st = stateCrcHi
		default:
			p.dataLength = b
			p.st = stateData
		}

	case stateData:
		p.buf[p.idx] = b
		p.idx++
		if p.idx >= p.dataLength {
			p.st = stateCrcHi
		}

	case stateCrcHi:
		p.crcReceived = uint16(b) << 8
		p.st = stateCrcLo

	case stateCrcLo:
		p.crcReceived |= uint16(b)
		p.st = stateTailLow

	case stateTailLow:
		if b == Tail0 {
			p.st = stateTailHigh
		} else {
			p.st = stateHeaderLow
		}

	case stateTailHigh:
		if b == Tail1 {
			p.completeFrame()
		}
		p.resetToHunt()

	default:
		p.resetToHunt()
	}
}

func (p *Parser) completeFrame() {
	data := p.buf[:p.dataLength]

	check := p.crcScratch[:2+int(p.dataLength)]
	check[0] = p.frameID
	check[1] = p.dataLength
	copy(check[2:], data)
	calculated := crc.CCITTFalse(check)

	if calculated != p.crcReceived {
		p.reportError(ErrCrcMismatch)
		return
	}

	p.logf("[FRAME id=0x%02X len=%d] % X", p.frameID, p.dataLength, data)

	if p.onFrame != nil {
		p.onFrame(p.frameID, data, p.iface)
	}
}
