// Package transport implements the per-interface Transport Facade: it
// owns the registered "write bytes" operation for each interface, the
// shared monotonic frame-id counter, and a build-and-send convenience
// that composes pkg/frame and pkg/tlv.
package transport

import (
	"errors"
	"sync/atomic"

	"github.com/uf4over/tvlcom/pkg/frame"
	"github.com/uf4over/tvlcom/pkg/hal"
	"github.com/uf4over/tvlcom/pkg/tlv"
)

// ErrSenderUnavailable is returned when no sender has been registered
// for the requested interface.
var ErrSenderUnavailable = errors.New("transport: sender unavailable")

// SendFunc writes a fully built frame to the wire. It returns the number
// of bytes accepted (the facade only interprets "err == nil" as success;
// n is informational) or an error on failure.
type SendFunc func(data []byte) (n int, err error)

const numInterfaces = 2 // UART, USB

// Facade is the per-process Transport Facade described in
// SPEC_FULL.md §4.7. Senders may be registered and cleared at any time;
// sends may be issued concurrently from any goroutine. The shared
// frame-id counter is incremented atomically regardless of HAL mutex
// availability.
type Facade struct {
	mu       hal.Mutex
	senders  [numInterfaces]SendFunc
	counter  atomic.Uint32
}

// New constructs a Facade. caps may be nil; when it supplies a mutex
// factory, sender registration and lookup are guarded by it (spec.md §5
// treats the transport registry as shared state like the handler
// registries).
func New(caps *hal.Capabilities) *Facade {
	return &Facade{mu: hal.NewMutexOrNil(caps)}
}

func (f *Facade) lock() {
	if f.mu != nil {
		f.mu.Lock()
	}
}

func (f *Facade) unlock() {
	if f.mu != nil {
		f.mu.Unlock()
	}
}

// RegisterSender installs (or, with fn == nil, clears) the sender used
// for iface. Idempotent.
func (f *Facade) RegisterSender(iface frame.Interface, fn SendFunc) {
	f.lock()
	f.senders[iface] = fn
	f.unlock()
}

// SendBytes writes a pre-built frame buffer to iface's registered
// sender. The registry lock is never held across the sender call: the
// function pointer is copied out under lock, the lock released, then the
// sender invoked (spec.md §5).
func (f *Facade) SendBytes(iface frame.Interface, buf []byte) (int, error) {
	f.lock()
	fn := f.senders[iface]
	f.unlock()

	if fn == nil {
		return 0, ErrSenderUnavailable
	}
	return fn(buf)
}

// SendRecords builds a frame from frameID and records, then sends it on
// iface. It fails with frame.ErrOverflow or ErrSenderUnavailable.
func (f *Facade) SendRecords(iface frame.Interface, frameID byte, records []tlv.Record) error {
	var buf [frame.MaxFrameSize]byte
	n, err := frame.Build(frameID, records, buf[:])
	if err != nil {
		return err
	}
	_, err = f.SendBytes(iface, buf[:n])
	return err
}

// NextFrameID returns the post-increment of the shared 8-bit frame-id
// counter, wrapping modulo 256. Safe for concurrent callers.
func (f *Facade) NextFrameID() byte {
	return byte(f.counter.Add(1))
}
