// Package fifo implements a bounded queue of (payload, tick_in,
// tick_out) elements used everywhere the core emulates propagation or
// processing delay -- the GW's per-QoS FIFOs, the SAT's per-carrier
// delay FIFOs, and the ST's return FIFOs. An element may only be
// popped once tick_out <= now; that one rule is what emulates the
// satellite path.
package fifo

import (
	"github.com/opensand-go/satcore/internal/errs"
)

// Element is one queued payload with its delay-emulation timestamps.
type Element struct {
	Payload []byte
	TickIn  int64 // ms
	TickOut int64 // ms, TickIn + delay
}

// FIFO is a bounded, delay-aware queue. Not goroutine-safe by itself --
// callers (internal/runtime channels) serialize access, one writer and
// one reader per owned resource.
type FIFO struct {
	name     string
	capacity int
	delayMs  int64
	elems    []Element
}

// New creates an empty FIFO bounded at capacity elements, each held for
// delayMs before it becomes poppable.
func New(name string, capacity int, delayMs int64) *FIFO {
	return &FIFO{name: name, capacity: capacity, delayMs: delayMs}
}

func (f *FIFO) Name() string { return f.name }

// Len reports the number of elements currently queued, regardless of
// whether they are poppable yet.
func (f *FIFO) Len() int { return len(f.elems) }

// Capacity reports the configured bound.
func (f *FIFO) Capacity() int { return f.capacity }

// Push enqueues payload, stamped with tick_in = now and tick_out = now +
// delay. Fails with ResourceExhausted if the FIFO is at capacity.
func (f *FIFO) Push(now int64, payload []byte) error {
	if f.capacity > 0 && len(f.elems) >= f.capacity {
		return errs.New(errs.ResourceExhausted, "fifo", "FIFO "+f.name+" full")
	}
	f.elems = append(f.elems, Element{
		Payload: payload,
		TickIn:  now,
		TickOut: now + f.delayMs,
	})
	return nil
}

// Peek returns the first poppable element (TickOut <= now) without
// removing it, or false if none is ready yet.
func (f *FIFO) Peek(now int64) (Element, bool) {
	if len(f.elems) == 0 {
		return Element{}, false
	}
	head := f.elems[0]
	if head.TickOut > now {
		return Element{}, false
	}
	return head, true
}

// Pop removes and returns the first poppable element, or false if the
// head is not ready yet or the FIFO is empty. Elements are always
// ready in push order (TickOut is monotonic non-decreasing for a fixed
// delay), so only the head need be checked.
func (f *FIFO) Pop(now int64) (Element, bool) {
	e, ok := f.Peek(now)
	if !ok {
		return Element{}, false
	}
	f.elems = f.elems[1:]
	return e, true
}

// DrainReady pops every currently-ready element, in order.
func (f *FIFO) DrainReady(now int64) []Element {
	var out []Element
	for {
		e, ok := f.Pop(now)
		if !ok {
			break
		}
		out = append(out, e)
	}
	return out
}

// Requeue re-inserts e at the head of the FIFO, preserving its original
// tick_in/tick_out. Used by the forward scheduler to put back the
// unsent tail of a refragmented packet ahead of everything else --
// capacity is not re-checked since e was already accounted for when
// first pushed.
func (f *FIFO) Requeue(e Element) {
	f.elems = append([]Element{e}, f.elems...)
}

// Flush empties the FIFO unconditionally (used on NCC-reboot detection
// and on logoff).
func (f *FIFO) Flush() {
	f.elems = nil
}

// BacklogBytes sums the payload length of every queued element,
// regardless of readiness -- used by the ST DAMA agent's VBDC backlog
// computation.
func (f *FIFO) BacklogBytes() int {
	total := 0
	for _, e := range f.elems {
		total += len(e.Payload)
	}
	return total
}

// BacklogCount reports the number of queued elements.
func (f *FIFO) BacklogCount() int { return len(f.elems) }
