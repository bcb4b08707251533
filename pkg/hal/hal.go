// Package hal describes the minimal platform capability surface the
// TVLCOM core consumes: a monotonic clock tick, a cooperative sleep, a
// mutex factory, and a diagnostic logger. Every capability is optional —
// a firmware build with no RTOS supplies a Capabilities value with every
// field left nil, and the core degrades accordingly (see
// SPEC_FULL.md §4.8 and §5).
package hal

import (
	"log"
	"sync"
	"time"
)

// Mutex is the narrow locking capability the core needs to protect
// handler registries and the transport registry.
type Mutex interface {
	Lock()
	Unlock()
}

// Capabilities is a vtable of optional platform functions, grounded in
// the retrieved tvl_hal_vtable_t from original_source/. Any field may be
// nil; callers must check before use.
type Capabilities struct {
	// TickMS returns a monotonic millisecond counter. Used only for
	// optional logging; never consulted by the protocol core itself.
	TickMS func() uint32

	// SleepMS cooperatively yields or delays. Not used by the protocol
	// core; available to glue code (e.g. serialio) that needs it.
	SleepMS func(ms uint32)

	// NewMutex constructs a new lock. When nil, register operations on
	// the core's registries must be confined to initialization and
	// lookups proceed lock-free.
	NewMutex func() Mutex

	// Log emits a diagnostic line. Must be side-effect-only and must
	// never influence wire behavior.
	Log func(format string, args ...interface{})
}

// Default returns a host-appropriate Capabilities: a time.Now-derived
// tick, time.Sleep, sync.Mutex-backed locks, and log.Printf-based
// logging. Bare-metal builds with no RTOS should construct their own
// Capabilities instead, typically leaving NewMutex nil.
func Default() *Capabilities {
	start := time.Now()
	return &Capabilities{
		TickMS: func() uint32 {
			return uint32(time.Since(start).Milliseconds())
		},
		SleepMS: func(ms uint32) {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		},
		NewMutex: func() Mutex {
			return &sync.Mutex{}
		},
		Log: func(format string, args ...interface{}) {
			log.Printf(format, args...)
		},
	}
}

// NewMutexOrNil constructs a Mutex from caps, or returns nil when caps is
// nil or does not supply a mutex factory.
func NewMutexOrNil(caps *Capabilities) Mutex {
	if caps == nil || caps.NewMutex == nil {
		return nil
	}
	return caps.NewMutex()
}

// Logf routes a diagnostic line through caps.Log when available,
// otherwise it is a no-op.
func Logf(caps *Capabilities, format string, args ...interface{}) {
	if caps != nil && caps.Log != nil {
		caps.Log(format, args...)
	}
}
