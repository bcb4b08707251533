// Package serialio is the peripheral glue that feeds a frame.Parser from
// a real serial port and adapts a transport.Facade sender to a blocking
// port write. It sits outside the protocol core (SPEC_FULL.md §4.9),
// generalizing the teacher's fixed nRF52 sync-byte reader into a thin
// adapter around pkg/frame.
package serialio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/uf4over/tvlcom/pkg/frame"
)

// rwc is the minimal surface Port needs from an open connection; it is
// satisfied by go.bug.st/serial.Port and by any io.ReadWriteCloser,
// which keeps Port's read/write/close logic testable without a real
// serial device.
type rwc interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Port owns one open connection and the single goroutine that feeds its
// bytes into a bound frame.Parser — matching "parser instances are
// single-feeder" (spec.md §5): exactly one reader goroutine exists per
// Port.
type Port struct {
	conn   rwc
	parser *frame.Parser

	stopCh chan struct{}
	wg     sync.WaitGroup

	writeMu sync.Mutex
}

// Open opens devicePath at baud and starts feeding bytes into parser on
// a dedicated reader goroutine. Close stops the reader and closes the
// underlying port.
func Open(devicePath string, baud int, parser *frame.Parser) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	sp, err := serial.Open(devicePath, mode)
	if err != nil {
		return nil, fmt.Errorf("serialio: open %s: %w", devicePath, err)
	}

	return newPort(sp, parser), nil
}

func newPort(conn rwc, parser *frame.Parser) *Port {
	p := &Port{
		conn:   conn,
		parser: parser,
		stopCh: make(chan struct{}),
	}

	p.wg.Add(1)
	go p.readLoop()

	return p
}

// Sender returns a transport.SendFunc-shaped function that writes data to
// this port in a single blocking call, serialized against concurrent
// callers.
func (p *Port) Sender() func(data []byte) (int, error) {
	return func(data []byte) (int, error) {
		p.writeMu.Lock()
		defer p.writeMu.Unlock()
		return p.conn.Write(data)
	}
}

// Close stops the reader goroutine and closes the underlying connection.
func (p *Port) Close() error {
	close(p.stopCh)
	p.wg.Wait()
	return p.conn.Close()
}

func (p *Port) readLoop() {
	defer p.wg.Done()

	buf := make([]byte, 1)
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		n, err := p.conn.Read(buf)
		if err != nil {
			if err == io.EOF {
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n == 0 {
			continue
		}

		p.parser.Feed(buf[0])
	}
}
