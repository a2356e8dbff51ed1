// Package sat implements the SAT block's per-spot/per-GW dispatch.
// Transparent builds the bent-pipe path (delay-only relay);
// Regenerative builds the decode-and-reschedule path.
package sat

import (
	"github.com/opensand-go/satcore/internal/band"
	"github.com/opensand-go/satcore/internal/errs"
	"github.com/opensand-go/satcore/internal/fifo"
	"github.com/opensand-go/satcore/internal/frame"
)

// OutFrame is one frame ready to leave the SAT on carrierID, already
// delay-compensated.
type OutFrame struct {
	CarrierID uint8
	Payload   []byte
}

// destRoleFor maps a decoded frame's msg_type to the carrier role its
// relayed copy must leave on: return bursts toward the GW's data-out
// carrier, BBFrames toward the ST's, SoF broadcast to all ctrl-out
// carriers. Every other uplink message (SAC, logon, logoff) follows
// the same "toward the GW" rule as a return burst; TTP rides the same
// ctrl-out carrier as SoF but to a single GW's spot, not a broadcast.
func destRoleFor(msgType frame.MsgType) (role band.CarrierRole, broadcast bool) {
	switch msgType {
	case frame.MsgDvbBurst, frame.MsgSAC, frame.MsgLogonReq, frame.MsgLogoff, frame.MsgCNI:
		return band.DataOutGW, false
	case frame.MsgBBFrame:
		return band.DataOutST, false
	case frame.MsgTTP:
		return band.CtrlOut, false
	case frame.MsgSoF:
		return band.CtrlOut, true
	case frame.MsgLogonResp:
		return band.LogonOut, false
	default:
		return 0, false
	}
}

// Transparent is the bent-pipe dispatcher: every received frame is
// pushed into a per-destination-carrier delay FIFO (emulating
// sat_delay_ms) and drained once its tick_out has elapsed, with no
// decoding beyond the common header's msg_type.
type Transparent struct {
	Plan    *band.Plan
	DelayMs int64

	fifos map[uint8]*fifo.FIFO // keyed by destination carrier id

	DroppedUnknownCarrier int
	DroppedCorrupted      int
	DroppedUnroutable     int
}

// NewTransparent builds a Transparent dispatcher over plan, holding
// every relayed frame for delayMs before it becomes eligible for
// output.
func NewTransparent(plan *band.Plan, delayMs int64) *Transparent {
	return &Transparent{Plan: plan, DelayMs: delayMs, fifos: make(map[uint8]*fifo.FIFO)}
}

// OnReceive resolves srcCarrierID's location, decides the destination
// role from the frame's msg_type, and enqueues buf on every matching
// output carrier. A corrupted frame is dropped outright -- corruption
// is never propagated downstream.
func (tp *Transparent) OnReceive(now int64, srcCarrierID uint8, buf []byte) error {
	loc, err := tp.Plan.Resolve(srcCarrierID)
	if err != nil {
		tp.DroppedUnknownCarrier++
		return err
	}

	msgType, err := frame.PeekMsgType(buf)
	if err != nil {
		return err
	}
	if msgType == frame.MsgCorrupted {
		tp.DroppedCorrupted++
		return nil
	}

	role, broadcast := destRoleFor(msgType)

	var dest []uint8
	if broadcast {
		dest = tp.Plan.CtrlOutCarriers(loc.SpotID)
	} else if cid, ok := tp.Plan.CarrierFor(loc.SpotID, loc.GWID, role); ok {
		dest = []uint8{cid}
	}
	if len(dest) == 0 {
		tp.DroppedUnroutable++
		return errs.New(errs.Protocol, "sat", "no counterpart carrier configured for relayed frame")
	}

	for _, cid := range dest {
		if err := tp.fifoFor(cid).Push(now, buf); err != nil {
			return err
		}
	}
	return nil
}

// Tick drains every carrier's delay FIFO of frames ready at now,
// returning them grouped as OutFrame. Per-carrier push order is always
// preserved.
func (tp *Transparent) Tick(now int64) []OutFrame {
	var out []OutFrame
	for cid, f := range tp.fifos {
		for _, e := range f.DrainReady(now) {
			out = append(out, OutFrame{CarrierID: cid, Payload: e.Payload})
		}
	}
	return out
}

func (tp *Transparent) fifoFor(carrierID uint8) *fifo.FIFO {
	f, ok := tp.fifos[carrierID]
	if !ok {
		f = fifo.New("sat-out", 0, tp.DelayMs)
		tp.fifos[carrierID] = f
	}
	return f
}
