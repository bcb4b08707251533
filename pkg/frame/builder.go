package frame

import (
	"errors"

	"github.com/uf4over/tvlcom/pkg/crc"
	"github.com/uf4over/tvlcom/pkg/tlv"
)

// ErrOverflow is returned when the encoded TLV data segment would exceed
// MaxDataLength, or the output buffer is too small to hold the frame.
var ErrOverflow = errors.New("frame: overflow")

// Build serializes frameID and records into buf, returning the number of
// bytes written. It fails with ErrOverflow when the sum of 2+len(value)
// across records exceeds MaxDataLength, or when buf is not large enough
// to hold the resulting frame.
func Build(frameID byte, records []tlv.Record, buf []byte) (int, error) {
	dataLength := 0
	for _, r := range records {
		dataLength += r.EncodedSize()
	}
	if dataLength > MaxDataLength {
		return 0, ErrOverflow
	}

	total := overheadSize + dataLength
	if len(buf) < total {
		return 0, ErrOverflow
	}

	idx := 0
	buf[idx] = Header0
	idx++
	buf[idx] = Header1
	idx++

	buf[idx] = frameID
	idx++
	buf[idx] = byte(dataLength)
	idx++

	for _, r := range records {
		buf[idx] = r.Type
		idx++
		buf[idx] = r.Length
		idx++
		if r.Length > 0 {
			idx += copy(buf[idx:], r.Value())
		}
	}

	// CRC covers frame-id ∥ data-length ∥ data-segment.
	sum := crc.CCITTFalse(buf[2 : 2+2+dataLength])
	buf[idx] = byte(sum >> 8) // CRC high byte first (Open Question #1).
	idx++
	buf[idx] = byte(sum & 0xFF)
	idx++

	buf[idx] = Tail0
	idx++
	buf[idx] = Tail1
	idx++

	return idx, nil
}

// BuildAck builds a reply frame whose sole record is an ACK carrying the
// original frame's identifier. The reply's own frame-id is fixed at 0
// (spec.md §4.6): combined with the "pure ACK/NACK frames get no reply"
// rule, this breaks any feedback loop between peers.
func BuildAck(originalFrameID byte, buf []byte) (int, error) {
	return Build(0, []tlv.Record{tlv.CreateRaw(tlv.Ack, []byte{originalFrameID})}, buf)
}

// BuildNack builds a reply frame whose sole record is a NACK carrying the
// original frame's identifier. See BuildAck for the reply frame-id policy.
func BuildNack(originalFrameID byte, buf []byte) (int, error) {
	return Build(0, []tlv.Record{tlv.CreateRaw(tlv.Nack, []byte{originalFrameID})}, buf)
}
