// The forward DVB-S2 BBFrame scheduler: MODCOD-keyed incomplete-frame
// bucketing under per-tick time-credit accounting.
package sched

import (
	"github.com/opensand-go/satcore/internal/fifo"
	"github.com/opensand-go/satcore/internal/fmtsim"
	"github.com/opensand-go/satcore/internal/frame"
	"github.com/opensand-go/satcore/internal/terminal"
)

// ForwardScheduler packs waiting forward packets into MODCOD-keyed
// BBFrames under a per-tick time budget; one instance per spot.
type ForwardScheduler struct {
	Defs      *fmtsim.DefTable
	Terminals *terminal.Table

	// FixedLength selects the MPEG-TS behavior (close the current frame
	// and retry the packet in a fresh one; the closed frame is not
	// padded) over variable-length refragmentation (split the packet to
	// exactly fill the remaining room).
	FixedLength bool

	// MinFragBytes is the minimum packet size after refragmentation; a
	// tail below it is dropped and counted as a loss.
	MinFragBytes int

	incomplete map[uint8]*frame.BBFrame
	order      []uint8 // first-fill order, for forced flush

	remainingCreditMs float64

	// Stats, read by internal/telemetry.
	DroppedUnknownTerminal int
	DroppedUnsupportedMCD  int
	DroppedOversizePacket  int
	DroppedSubMinFragment  int
}

// NewForwardScheduler builds a scheduler for one spot.
func NewForwardScheduler(defs *fmtsim.DefTable, terms *terminal.Table, fixedLength bool, minFragBytes int) *ForwardScheduler {
	return &ForwardScheduler{
		Defs:         defs,
		Terminals:    terms,
		FixedLength:  fixedLength,
		MinFragBytes: minFragBytes,
		incomplete:   make(map[uint8]*frame.BBFrame),
	}
}

// RemainingCreditMs reports the time credit carried over to the next
// tick, always in [0, fwd_frame_duration_ms) at the end of a tick.
func (fs *ForwardScheduler) RemainingCreditMs() float64 { return fs.remainingCreditMs }

// Schedule runs one fwd_timer tick: it drains q in FIFO order, packing
// packets into per-MODCOD BBFrames, and returns every BBFrame
// completed this tick. Completed frames are never empty.
func (fs *ForwardScheduler) Schedule(now int64, q *fifo.FIFO, fwdFrameDurationMs int) []*frame.BBFrame {
	return fs.ScheduleAll(now, []*fifo.FIFO{q}, fwdFrameDurationMs)
}

// ScheduleAll runs one fwd_timer tick over several per-QoS FIFOs in
// priority order, under a single shared time budget -- one call per
// tick, so the carried-over credit stays within one frame duration no
// matter how many FIFOs the spot is configured with.
func (fs *ForwardScheduler) ScheduleAll(now int64, qs []*fifo.FIFO, fwdFrameDurationMs int) []*frame.BBFrame {
	credit := float64(fwdFrameDurationMs) + fs.remainingCreditMs
	var completed []*frame.BBFrame

	for _, q := range qs {
		fs.drain(now, q, &credit, &completed)
	}

	// Credit is carried over only when the tick stopped for lack of it:
	// a tick that completed nothing (idle, or a partially-filled frame
	// crossing the boundary) or drained the backlog dry erases it, so
	// the carried credit never accumulates past one frame duration.
	backlog := 0
	for _, q := range qs {
		backlog += q.BacklogCount()
	}
	if len(completed) == 0 || backlog == 0 {
		credit = 0
	}

	fs.remainingCreditMs = credit
	return completed
}

func (fs *ForwardScheduler) drain(now int64, q *fifo.FIFO, creditp *float64, completed *[]*frame.BBFrame) {
	credit := *creditp
	defer func() { *creditp = credit }()

	for {
		elem, ok := q.Peek(now)
		if !ok {
			break
		}
		talID, data, ok := DecodeQueued(elem.Payload)
		if !ok {
			q.Pop(now)
			continue
		}

		term, err := fs.Terminals.Get(talID)
		if err != nil {
			q.Pop(now)
			fs.DroppedUnknownTerminal++
			continue
		}

		modcodID := term.FwdModcod
		var opts []frame.RealModcodOption
		if !term.Advertised {
			// keep using the previous MODCOD until the new one has been
			// carried in an option, so the ST can learn about it before
			// it is ever actually used
			modcodID = term.PrevFwdModcod
			opts = []frame.RealModcodOption{{TalID: talID, RealModcod: term.FwdModcod}}
		}

		def, ok := fs.Defs.Get(modcodID)
		if !ok {
			q.Pop(now)
			fs.DroppedUnsupportedMCD++
			continue
		}

		duration := def.DurationMs()
		if credit < duration {
			break
		}

		bb := fs.openFrame(modcodID)
		capacity := def.PayloadBytes - len(bb.Payload)
		if capacity < 0 {
			capacity = 0
		}

		if len(data) <= capacity {
			bb.Payload = append(bb.Payload, data...)
			bb.RealModcodOpts = append(bb.RealModcodOpts, opts...)
			q.Pop(now)
			if !term.Advertised {
				term.Advertised = true
			}
			continue
		}

		if fs.FixedLength {
			if len(bb.Payload) == 0 {
				// can never fit this MODCOD's frame at all
				q.Pop(now)
				fs.DroppedOversizePacket++
				continue
			}
			fs.closeFrame(modcodID, completed)
			credit -= duration
			if credit < duration {
				break
			}
			continue // retry the same packet against a fresh, empty frame
		}

		// Variable-length refragmentable encapsulation.
		if capacity < fs.MinFragBytes {
			if len(bb.Payload) == 0 {
				q.Pop(now)
				fs.DroppedSubMinFragment++
				continue
			}
			fs.closeFrame(modcodID, completed)
			credit -= duration
			if credit < duration {
				break
			}
			continue
		}

		head, tail := data[:capacity], data[capacity:]
		bb.Payload = append(bb.Payload, head...)
		bb.RealModcodOpts = append(bb.RealModcodOpts, opts...)
		if !term.Advertised {
			term.Advertised = true
		}
		fs.closeFrame(modcodID, completed)
		credit -= duration
		q.Pop(now)

		if len(tail) >= fs.MinFragBytes {
			q.Requeue(fifo.Element{Payload: EncodeQueued(talID, tail), TickIn: elem.TickIn, TickOut: elem.TickOut})
		} else {
			fs.DroppedSubMinFragment++
		}

		if credit < duration {
			break
		}
	}
}

// FlushIncomplete force-closes every in-progress BBFrame in first-fill
// order, used on shutdown or test teardown -- never during normal
// operation, since incomplete frames are explicitly allowed to cross
// superframes.
func (fs *ForwardScheduler) FlushIncomplete() []*frame.BBFrame {
	var out []*frame.BBFrame
	for _, id := range append([]uint8(nil), fs.order...) {
		fs.closeFrame(id, &out)
	}
	return out
}

func (fs *ForwardScheduler) openFrame(modcodID uint8) *frame.BBFrame {
	bb, ok := fs.incomplete[modcodID]
	if !ok {
		bb = &frame.BBFrame{UsedModcod: modcodID}
		fs.incomplete[modcodID] = bb
		fs.order = append(fs.order, modcodID)
	}
	return bb
}

// closeFrame moves the in-progress BBFrame for modcodID to completed,
// skipping it entirely if it never received a packet (empty frames are
// never emitted).
func (fs *ForwardScheduler) closeFrame(modcodID uint8, completed *[]*frame.BBFrame) {
	bb, ok := fs.incomplete[modcodID]
	delete(fs.incomplete, modcodID)
	for i, id := range fs.order {
		if id == modcodID {
			fs.order = append(fs.order[:i], fs.order[i+1:]...)
			break
		}
	}
	if !ok || len(bb.Payload) == 0 {
		return
	}
	bb.UsedModcod = modcodID
	*completed = append(*completed, bb)
}
