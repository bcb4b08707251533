package serialio

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uf4over/tvlcom/pkg/frame"
)

// fakeConn is a minimal rwc backed by an in-memory byte queue, standing
// in for a real go.bug.st/serial.Port in tests.
type fakeConn struct {
	mu     sync.Mutex
	toRead []byte
	readAt int
	writes [][]byte
	closed bool
}

func (f *fakeConn) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readAt >= len(f.toRead) {
		if f.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(p, f.toRead[f.readAt:f.readAt+1])
	f.readAt += n
	return n, nil
}

func (f *fakeConn) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), p...)
	f.writes = append(f.writes, cp)
	return len(p), nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) feed(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toRead = append(f.toRead, b...)
}

type erroringConn struct {
	err error
}

func (e *erroringConn) Read(p []byte) (int, error)  { return 0, e.err }
func (e *erroringConn) Write(p []byte) (int, error) { return 0, e.err }
func (e *erroringConn) Close() error                { return nil }

func TestSenderSerializesWrites(t *testing.T) {
	conn := &fakeConn{}
	p := newPort(conn, frame.NewParser(frame.UART, func(byte, []byte, frame.Interface) {}))
	defer p.Close()

	send := p.Sender()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := send([]byte{0xAA, 0xBB})
			assert.NoError(t, err)
			assert.Equal(t, 2, n)
		}()
	}
	wg.Wait()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.Len(t, conn.writes, 8)
	for _, w := range conn.writes {
		assert.True(t, bytes.Equal(w, []byte{0xAA, 0xBB}))
	}
}

func TestReadLoopFeedsParserByteByByte(t *testing.T) {
	conn := &fakeConn{}

	var got []byte
	var mu sync.Mutex
	parser := frame.NewParser(frame.UART, func(frameID byte, data []byte, iface frame.Interface) {
		mu.Lock()
		defer mu.Unlock()
		got = append([]byte(nil), data...)
	})

	p := newPort(conn, parser)
	defer p.Close()

	buf := make([]byte, frame.MaxFrameSize)
	n, err := frame.Build(0x01, nil, buf)
	require.NoError(t, err)
	conn.feed(buf[:n])

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil
	}, time.Second, time.Millisecond)
}

func TestReadLoopStopsOnClose(t *testing.T) {
	conn := &fakeConn{}
	p := newPort(conn, frame.NewParser(frame.UART, func(byte, []byte, frame.Interface) {}))

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return, reader goroutine likely stuck")
	}
}

func TestReadLoopExitsOnEOF(t *testing.T) {
	conn := &fakeConn{closed: true}
	p := newPort(conn, frame.NewParser(frame.UART, func(byte, []byte, frame.Interface) {}))

	p.wg.Wait()
	require.NoError(t, p.Close())
}

func TestReadLoopToleratesTransientError(t *testing.T) {
	conn := &erroringConn{err: errors.New("transient")}
	p := newPort(conn, frame.NewParser(frame.UART, func(byte, []byte, frame.Interface) {}))
	defer p.Close()

	time.Sleep(5 * time.Millisecond)
}
