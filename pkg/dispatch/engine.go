// Package dispatch demultiplexes the TLV records inside a valid frame to
// registered handlers and emits ACK/NACK frames according to the policy
// in SPEC_FULL.md §4.6: it never replies to a frame whose records are all
// ACK/NACK, and otherwise replies with exactly one ACK (every non-ACK/NACK
// record handled successfully) or exactly one NACK (otherwise).
package dispatch

import (
	"github.com/uf4over/tvlcom/pkg/frame"
	"github.com/uf4over/tvlcom/pkg/hal"
	"github.com/uf4over/tvlcom/pkg/tlv"
)

// TypeHandler processes one non-ACK/NACK, non-CONTROL_CMD record. It
// returns true on success; a false return is treated the same as a
// missing handler for the purposes of the frame's ACK/NACK outcome.
type TypeHandler func(record tlv.Record, iface frame.Interface) bool

// CmdHandler processes a CONTROL_CMD record's command byte.
type CmdHandler func(cmd byte, iface frame.Interface) bool

// NotifyFunc is invoked with the original frame identifier carried by a
// received ACK or NACK record.
type NotifyFunc func(originalFrameID byte, iface frame.Interface)

// Sender is the narrow capability an Engine needs to emit ACK/NACK
// replies; *transport.Facade satisfies it. records aliases the Engine's
// own reusable scratch storage and is only valid for the duration of the
// call: a Sender that needs to retain the bytes (or the records) past
// SendRecords returning must copy them first, same as a frame.FrameFunc's
// data argument.
type Sender interface {
	SendRecords(iface frame.Interface, frameID byte, records []tlv.Record) error
}

// Observer is an optional, purely additive hook for external consumers
// (e.g. pkg/telemetry) that want to see decoded records and ACK/NACK
// traffic. OnRecord/OnReject are called as each record is dispatched and
// OnAck/OnNack as each received ACK/NACK record is notified; observers
// return nothing, so they can never influence the ACK/NACK decision.
type Observer interface {
	OnRecord(iface frame.Interface, frameID byte, r tlv.Record)
	OnReject(iface frame.Interface, frameID byte, r tlv.Record, err error)
	OnAck(iface frame.Interface, originalFrameID byte)
	OnNack(iface frame.Interface, originalFrameID byte)
}

const maxRecordsPerFrame = 16

// Engine is one interface's dispatch state: a handler registry pair, the
// ACK/NACK notify slots, and a reference to the Sender used to emit
// replies. Exactly one Engine (and exactly one bound frame.Parser) exists
// per interface.
//
// splitScratch and replyScratch are fixed backing arrays reused across
// every onFrame/onError call: since a Parser is single-feeder (exactly
// one goroutine calls Feed, which synchronously invokes these callbacks),
// reusing them here is race-free and keeps the frame-handling path
// allocation-free, matching spec.md §8's "no allocation on steady path".
type Engine struct {
	iface  frame.Interface
	sender Sender
	caps   *hal.Capabilities
	mu     hal.Mutex

	types registry[TypeHandler]
	cmds  registry[CmdHandler]

	ackNotify  NotifyFunc
	nackNotify NotifyFunc

	observers []Observer

	splitScratch [maxRecordsPerFrame]tlv.Record
	replyScratch [1]tlv.Record
	replyPayload [1]byte
}

// New constructs an Engine bound to iface, sending ACK/NACK replies
// through sender. caps may be nil; when it supplies a mutex factory,
// registry mutation and lookup are guarded by it (spec.md §5).
func New(iface frame.Interface, sender Sender, caps *hal.Capabilities) *Engine {
	return &Engine{
		iface:  iface,
		sender: sender,
		caps:   caps,
		mu:     hal.NewMutexOrNil(caps),
		types:  newRegistry[TypeHandler](DefaultRegistryCapacity),
		cmds:   newRegistry[CmdHandler](DefaultRegistryCapacity),
	}
}

func (e *Engine) lock() {
	if e.mu != nil {
		e.mu.Lock()
	}
}

func (e *Engine) unlock() {
	if e.mu != nil {
		e.mu.Unlock()
	}
}

// NewParser builds a frame.Parser wired to this Engine's onFrame/onError,
// matching "exactly one context feeds bytes into a given parser" and "one
// Engine per interface".
func (e *Engine) NewParser() *frame.Parser {
	p := frame.NewParser(e.iface, e.onFrame)
	p.SetErrorCallback(e.onError)
	if e.caps != nil {
		p.Log = e.caps.Log
	}
	return p
}

// RegisterTypeHandler installs the handler for a non-CONTROL_CMD TLV
// type. Registering ControlCmd, Ack, or Nack here has no effect — those
// are handled by the engine's own policy.
func (e *Engine) RegisterTypeHandler(typ byte, h TypeHandler) {
	e.lock()
	e.types.set(typ, h)
	e.unlock()
}

// RegisterCmdHandler installs the handler for a CONTROL_CMD command byte.
func (e *Engine) RegisterCmdHandler(cmd byte, h CmdHandler) {
	e.lock()
	e.cmds.set(cmd, h)
	e.unlock()
}

// RegisterAckNotify installs the callback invoked when a pure-ACK frame
// is received.
func (e *Engine) RegisterAckNotify(fn NotifyFunc) {
	e.lock()
	e.ackNotify = fn
	e.unlock()
}

// RegisterNackNotify installs the callback invoked when a pure-NACK
// frame is received.
func (e *Engine) RegisterNackNotify(fn NotifyFunc) {
	e.lock()
	e.nackNotify = fn
	e.unlock()
}

// AddObserver registers an additional, purely additive observer. Safe to
// call before NewParser; not safe to call concurrently with dispatch.
func (e *Engine) AddObserver(obs Observer) {
	e.observers = append(e.observers, obs)
}

func (e *Engine) onError(frameID byte, iface frame.Interface, err error) {
	hal.Logf(e.caps, "dispatch: parser error on %v frame 0x%02X: %v", iface, frameID, err)
	e.sendReply(iface, tlv.Nack, frameID)
}

func (e *Engine) onFrame(frameID byte, data []byte, iface frame.Interface) {
	count := tlv.Split(data, e.splitScratch[:])
	records := e.splitScratch[:count]
	if count == 0 {
		return
	}

	hasNonAckNack := false
	for _, r := range records {
		if r.Type != tlv.Ack && r.Type != tlv.Nack {
			hasNonAckNack = true
			break
		}
	}

	if !hasNonAckNack {
		e.handleAckNackOnly(iface, records)
		return
	}

	if e.dispatchAll(iface, frameID, records) {
		e.sendReply(iface, tlv.Ack, frameID)
	} else {
		e.sendReply(iface, tlv.Nack, frameID)
	}
}

// sendReply builds and sends the single-record ACK/NACK reply frame into
// the reused replyScratch array, avoiding a fresh slice literal per call.
func (e *Engine) sendReply(iface frame.Interface, typ byte, originalFrameID byte) {
	e.replyPayload[0] = originalFrameID
	e.replyScratch[0] = tlv.CreateRaw(typ, e.replyPayload[:])
	_ = e.sender.SendRecords(iface, 0, e.replyScratch[:])
}

// handleAckNackOnly implements the "no ACK storm" rule: a frame whose
// records are all ACK and/or NACK is never replied to, only notified.
func (e *Engine) handleAckNackOnly(iface frame.Interface, records []tlv.Record) {
	e.lock()
	ackFn, nackFn := e.ackNotify, e.nackNotify
	e.unlock()

	for _, r := range records {
		if r.Length < 1 {
			continue
		}
		originalID := r.Value()[0]
		switch r.Type {
		case tlv.Ack:
			if ackFn != nil {
				ackFn(originalID, iface)
			}
			for _, obs := range e.observers {
				obs.OnAck(iface, originalID)
			}
		case tlv.Nack:
			if nackFn != nil {
				nackFn(originalID, iface)
			}
			for _, obs := range e.observers {
				obs.OnNack(iface, originalID)
			}
		}
	}
}

// dispatchAll processes every non-ACK/NACK record and reports whether
// every one of them was handled successfully. Observers see OnRecord for
// a handled record or OnReject (carrying the specific sentinel from
// dispatchOne) for one that was not.
func (e *Engine) dispatchAll(iface frame.Interface, frameID byte, records []tlv.Record) bool {
	allOK := true
	for _, r := range records {
		if r.Type == tlv.Ack || r.Type == tlv.Nack {
			continue
		}

		err := e.dispatchOne(iface, r)
		if err != nil {
			allOK = false
			for _, obs := range e.observers {
				obs.OnReject(iface, frameID, r, err)
			}
			continue
		}

		for _, obs := range e.observers {
			obs.OnRecord(iface, frameID, r)
		}
	}
	return allOK
}

// dispatchOne routes r to its registered handler, returning ErrNoHandler
// when no handler is registered for its type/command, ErrHandlerRejected
// when the registered handler returned false, or nil on success.
func (e *Engine) dispatchOne(iface frame.Interface, r tlv.Record) error {
	if r.Type == tlv.ControlCmd {
		if r.Length < 1 {
			return ErrNoHandler
		}
		cmd := r.Value()[0]
		e.lock()
		h, found := e.cmds.get(cmd)
		e.unlock()
		if !found {
			return ErrNoHandler
		}
		if !h(cmd, iface) {
			return ErrHandlerRejected
		}
		return nil
	}

	e.lock()
	h, found := e.types.get(r.Type)
	e.unlock()
	if !found {
		return ErrNoHandler
	}
	if !h(r, iface) {
		return ErrHandlerRejected
	}
	return nil
}
