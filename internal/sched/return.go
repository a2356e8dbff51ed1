// The return DVB-RCS scheduler. Fixed-length encapsulation only; no
// time-credit accounting -- return frames are slot-based, not
// credit-based, so the only budget is the packet count the DAMA agent
// was granted for this frame by its TTP consumption.
package sched

import (
	"github.com/opensand-go/satcore/internal/fifo"
	"github.com/opensand-go/satcore/internal/frame"
)

// ReturnScheduler drains a return FIFO into fixed-size DVB-RCS
// frames.
type ReturnScheduler struct {
	// MaxFrameBytes is the payload budget of one DVB-RCS frame.
	MaxFrameBytes int

	DroppedOversizePacket int
}

func NewReturnScheduler(maxFrameBytes int) *ReturnScheduler {
	return &ReturnScheduler{MaxFrameBytes: maxFrameBytes}
}

// Schedule drains up to maxPackets ready elements of q into one or more
// DVB-RCS frames: a frame is closed, padded, and pushed to the
// completed list once free_space < packet_length, and a fresh one is
// opened.
func (rs *ReturnScheduler) Schedule(now int64, q *fifo.FIFO, maxPackets int) []*frame.DvbRcsFrame {
	var completed []*frame.DvbRcsFrame
	cur := &frame.DvbRcsFrame{}
	sent := 0

	for sent < maxPackets {
		elem, ok := q.Peek(now)
		if !ok {
			break
		}

		freeSpace := rs.MaxFrameBytes - len(cur.Payload)
		if len(elem.Payload) > freeSpace {
			if cur.QtyElement == 0 {
				// this packet can never fit a frame of this size
				q.Pop(now)
				rs.DroppedOversizePacket++
				continue
			}
			completed = append(completed, rs.pad(cur))
			cur = &frame.DvbRcsFrame{}
			continue
		}

		q.Pop(now)
		cur.Payload = append(cur.Payload, elem.Payload...)
		cur.QtyElement++
		sent++
	}

	if cur.QtyElement > 0 {
		completed = append(completed, rs.pad(cur))
	}
	return completed
}

// pad zero-fills f's payload to MaxFrameBytes.
func (rs *ReturnScheduler) pad(f *frame.DvbRcsFrame) *frame.DvbRcsFrame {
	if rem := rs.MaxFrameBytes - len(f.Payload); rem > 0 {
		f.Payload = append(f.Payload, make([]byte, rem)...)
	}
	return f
}
