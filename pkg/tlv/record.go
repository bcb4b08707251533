// Package tlv implements the TLV (Type-Length-Value) record model carried
// inside every TVLCOM frame's data segment, plus the well-known record
// types and their encoding/decoding helpers.
package tlv

import (
	"encoding/binary"
	"errors"
	"math"
)

// Well-known TLV types. Values are the published configuration artifact
// for this deployment (see SPEC_FULL.md §12, Open Question #2).
const (
	ControlCmd byte = 0x01
	Integer    byte = 0x02
	String     byte = 0x03
	Ack        byte = 0x08
	Nack       byte = 0x09
)

// Well-known scaled-float measurement types.
const (
	VBUS byte = 0x10
	IBUS byte = 0x11
	PBUS byte = 0x12
	VOUT byte = 0x13
	IOUT byte = 0x14
	POUT byte = 0x15
	VSET byte = 0x16
	ISET byte = 0x17
	TEMP byte = 0x18
)

// inlineCap matches the original C tlv_entry_t's inline_storage[32].
const inlineCap = 32

// scale is the fixed-point factor for scaled-float payloads.
const scale = 10000.0

// ErrMalformedValue is returned when a fixed-width extractor is called on
// a record whose length does not match the expected payload size.
var ErrMalformedValue = errors.New("tlv: malformed value")

// Record is one Type-Length-Value triple. It never copies a borrowed
// value: CreateRaw and the segment splitter reference the caller's or the
// parser's buffer directly, while the Create* helpers populate the inline
// array. Value() picks whichever storage is live.
type Record struct {
	Type   byte
	Length uint8

	inline  [inlineCap]byte
	inlined bool
	borrowed []byte
}

// Value returns the record's payload bytes. When the record was built
// with CreateRaw or produced by Split, the returned slice borrows the
// caller's or parser's backing array and is only valid for as long as
// that buffer is: copy it (see Clone) to retain it past a frame callback.
func (r *Record) Value() []byte {
	if r.inlined {
		return r.inline[:r.Length]
	}
	return r.borrowed
}

// Clone returns a Record holding an independent copy of the payload,
// safe to retain past the lifetime of a borrowed buffer. Payloads that
// fit the inline storage are copied inline; longer ones into a fresh
// slice.
func (r Record) Clone() Record {
	v := r.Value()
	if len(v) > inlineCap {
		return Record{Type: r.Type, Length: r.Length, borrowed: append([]byte(nil), v...)}
	}
	out := Record{Type: r.Type, Length: r.Length, inlined: true}
	copy(out.inline[:], v)
	return out
}

// CreateRaw builds a record that borrows value directly; it is not
// copied. Use Clone on the result if the caller's buffer may change.
func CreateRaw(typ byte, value []byte) Record {
	return Record{Type: typ, Length: uint8(len(value)), borrowed: value}
}

// CreateInt32 builds an Integer-shaped record with a little-endian,
// signed 32-bit payload (Open Question #4: little-endian for
// INTEGER/scaled payloads).
func CreateInt32(typ byte, v int32) Record {
	r := Record{Type: typ, Length: 4, inlined: true}
	binary.LittleEndian.PutUint32(r.inline[:4], uint32(v))
	return r
}

// CreateFloat32 bit-reinterprets an IEEE-754 binary32 value into an
// int32 payload, encoded the same way as CreateInt32.
func CreateFloat32(typ byte, f float32) Record {
	return CreateInt32(typ, int32(math.Float32bits(f)))
}

// CreateControlCmd builds a CONTROL_CMD record with a single payload
// byte carrying the command identifier.
func CreateControlCmd(cmd byte) Record {
	r := Record{Type: ControlCmd, Length: 1, inlined: true}
	r.inline[0] = cmd
	return r
}

// CreateString builds a STRING record from up to 255 bytes of UTF-8
// text (longer text is cut at 255 bytes). Text that fits the inline
// capacity is copied into inline storage; longer text is kept whole in
// the record's own copy of the bytes, referenced as its borrowed value.
func CreateString(s string) Record {
	b := []byte(s)
	if len(b) > 255 {
		b = b[:255]
	}
	r := Record{Type: String, Length: uint8(len(b)), inlined: true}
	n := copy(r.inline[:], b)
	if n < len(b) {
		// Payload longer than inline storage: borrow instead so no data
		// is silently dropped.
		r.inlined = false
		r.borrowed = b
	}
	return r
}

// CreateScaled builds a record whose int32 payload is round(f * 10000).
func CreateScaled(typ byte, f float32) Record {
	return CreateInt32(typ, int32(math.Round(float64(f)*scale)))
}

// Scaled-float convenience constructors for the well-known measurement
// types.
func CreateVBUS(f float32) Record { return CreateScaled(VBUS, f) }
func CreateIBUS(f float32) Record { return CreateScaled(IBUS, f) }
func CreatePBUS(f float32) Record { return CreateScaled(PBUS, f) }
func CreateVOUT(f float32) Record { return CreateScaled(VOUT, f) }
func CreateIOUT(f float32) Record { return CreateScaled(IOUT, f) }
func CreatePOUT(f float32) Record { return CreateScaled(POUT, f) }
func CreateVSET(f float32) Record { return CreateScaled(VSET, f) }
func CreateISET(f float32) Record { return CreateScaled(ISET, f) }
func CreateTEMP(f float32) Record { return CreateScaled(TEMP, f) }

// ExtractInt32 decodes a little-endian signed 32-bit payload.
func ExtractInt32(r Record) (int32, error) {
	if r.Length != 4 {
		return 0, ErrMalformedValue
	}
	return int32(binary.LittleEndian.Uint32(r.Value())), nil
}

// ExtractScaled decodes a fixed-point ×10000 payload back to float32.
func ExtractScaled(r Record) (float32, error) {
	v, err := ExtractInt32(r)
	if err != nil {
		return 0, err
	}
	return float32(v) / scale, nil
}

// EncodedSize is the number of bytes this record occupies on the wire:
// 2 (type + length) plus the payload.
func (r Record) EncodedSize() int {
	return 2 + int(r.Length)
}
