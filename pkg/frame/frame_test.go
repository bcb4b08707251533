package frame

import (
	"bytes"
	"testing"

	"github.com/uf4over/tvlcom/pkg/tlv"
)

func buildOrFatal(t *testing.T, frameID byte, records []tlv.Record) []byte {
	t.Helper()
	buf := make([]byte, MaxFrameSize)
	n, err := Build(frameID, records, buf)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return buf[:n]
}

func TestBuildParseRoundTrip(t *testing.T) {
	records := []tlv.Record{tlv.CreateInt32(tlv.Integer, 0x12345678)}
	wire := buildOrFatal(t, 0x2A, records)

	want := []byte{Header0, Header1, 0x2A, 0x06, tlv.Integer, 0x04, 0x78, 0x56, 0x34, 0x12}
	if !bytes.Equal(wire[:len(want)], want) {
		t.Fatalf("wire = % X, want prefix % X", wire, want)
	}

	var gotID byte
	var gotData []byte
	p := NewParser(UART, func(frameID byte, data []byte, iface Interface) {
		gotID = frameID
		gotData = append([]byte(nil), data...)
	})
	for _, b := range wire {
		p.Feed(b)
	}

	if gotID != 0x2A {
		t.Fatalf("frame id = 0x%02X, want 0x2A", gotID)
	}
	var out [16]tlv.Record
	n := tlv.Split(gotData, out[:])
	decoded := out[:n]
	if len(decoded) != 1 {
		t.Fatalf("decoded %d records, want 1", len(decoded))
	}
	v, err := tlv.ExtractInt32(decoded[0])
	if err != nil || v != 0x12345678 {
		t.Fatalf("ExtractInt32 = %d, %v, want 0x12345678, nil", v, err)
	}
}

func TestEmptyPayloadFrame(t *testing.T) {
	wire := buildOrFatal(t, 0x01, nil)
	want := []byte{Header0, Header1, 0x01, 0x00}
	if !bytes.Equal(wire[:4], want) {
		t.Fatalf("wire prefix = % X, want % X", wire[:4], want)
	}

	invoked := false
	p := NewParser(UART, func(frameID byte, data []byte, iface Interface) {
		invoked = true
		if len(data) != 0 {
			t.Fatalf("data length = %d, want 0", len(data))
		}
	})
	for _, b := range wire {
		p.Feed(b)
	}
	if !invoked {
		t.Fatal("frame callback was not invoked")
	}
}

func TestCrcTamperDetection(t *testing.T) {
	records := []tlv.Record{tlv.CreateInt32(tlv.Integer, 0x12345678)}
	wire := buildOrFatal(t, 0x2A, records)

	// Flip the low bit of the low CRC byte (second-to-last-but-one byte,
	// i.e. index len(wire)-3).
	crcLoIdx := len(wire) - 3
	tampered := append([]byte(nil), wire...)
	tampered[crcLoIdx] ^= 0x01

	var gotErr error
	invoked := false
	p := NewParser(UART, func(frameID byte, data []byte, iface Interface) { invoked = true })
	p.SetErrorCallback(func(frameID byte, iface Interface, err error) { gotErr = err })
	for _, b := range tampered {
		p.Feed(b)
	}

	if invoked {
		t.Fatal("frame callback invoked on tampered frame")
	}
	if gotErr != ErrCrcMismatch {
		t.Fatalf("error = %v, want ErrCrcMismatch", gotErr)
	}
}

func TestHeaderTamperDropsSilently(t *testing.T) {
	records := []tlv.Record{tlv.CreateInt32(tlv.Integer, 7)}
	wire := buildOrFatal(t, 0x01, records)

	tampered := append([]byte(nil), wire...)
	tampered[0] ^= 0xFF // corrupt header byte

	invoked := false
	errInvoked := false
	p := NewParser(UART, func(frameID byte, data []byte, iface Interface) { invoked = true })
	p.SetErrorCallback(func(frameID byte, iface Interface, err error) { errInvoked = true })
	for _, b := range tampered {
		p.Feed(b)
	}

	if invoked {
		t.Fatal("frame callback invoked after header corruption")
	}
	if errInvoked {
		t.Fatal("error callback invoked after header corruption; spec requires silent drop")
	}
}

func TestLengthOverflowRejected(t *testing.T) {
	wire := []byte{Header0, Header1, 0x01, 241}

	var gotErr error
	p := NewParser(UART, nil)
	p.SetErrorCallback(func(frameID byte, iface Interface, err error) { gotErr = err })
	for _, b := range wire {
		p.Feed(b)
	}

	if gotErr != ErrLengthOverflow {
		t.Fatalf("error = %v, want ErrLengthOverflow", gotErr)
	}
	if p.st != stateHeaderLow {
		t.Fatalf("parser state = %v, want reset to stateHeaderLow", p.st)
	}
}

func TestResynchronizationAfterGarbagePrefix(t *testing.T) {
	records := []tlv.Record{tlv.CreateString("hi")}
	wire := buildOrFatal(t, 0x05, records)

	garbage := []byte{0x00, 0xAB, 0xCD, Header0, 0x11}
	stream := append(garbage, wire...)

	count := 0
	p := NewParser(UART, func(frameID byte, data []byte, iface Interface) { count++ })
	for _, b := range stream {
		p.Feed(b)
	}

	if count != 1 {
		t.Fatalf("frame callback invoked %d times, want 1", count)
	}
}

func TestBuildOverflow(t *testing.T) {
	big := make([]byte, 255)
	records := []tlv.Record{tlv.CreateRaw(0x50, big), tlv.CreateRaw(0x51, big)}
	buf := make([]byte, MaxFrameSize)
	if _, err := Build(0x01, records, buf); err != ErrOverflow {
		t.Fatalf("Build error = %v, want ErrOverflow", err)
	}
}

func TestBuildBufferTooSmall(t *testing.T) {
	records := []tlv.Record{tlv.CreateInt32(tlv.Integer, 1)}
	buf := make([]byte, 4)
	if _, err := Build(0x01, records, buf); err != ErrOverflow {
		t.Fatalf("Build error = %v, want ErrOverflow", err)
	}
}

func TestBuildAck(t *testing.T) {
	buf := make([]byte, MaxFrameSize)
	n, err := BuildAck(0x42, buf)
	if err != nil {
		t.Fatalf("BuildAck: %v", err)
	}
	wire := buf[:n]
	if wire[2] != 0 {
		t.Fatalf("ack reply frame id = %d, want 0", wire[2])
	}

	var gotID byte
	var gotData []byte
	p := NewParser(USB, func(frameID byte, data []byte, iface Interface) {
		gotID = frameID
		gotData = data
	})
	for _, b := range wire {
		p.Feed(b)
	}
	if gotID != 0 {
		t.Fatalf("decoded frame id = %d, want 0", gotID)
	}
	var out [4]tlv.Record
	n = tlv.Split(gotData, out[:])
	recs := out[:n]
	if len(recs) != 1 || recs[0].Type != tlv.Ack || recs[0].Value()[0] != 0x42 {
		t.Fatalf("decoded ack record wrong: %+v", recs)
	}
}
