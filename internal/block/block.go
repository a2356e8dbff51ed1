// Package block assembles the three role-specific blocks -- GW, ST,
// SAT -- from the subsystem packages: each is a runtime.Block whose
// Upward channel handles reception-side work and whose Downward
// channel handles scheduling-side work, communicating only through the
// block's share messages. One long-lived struct per network role holds
// its queues and per-peer state, dispatched from a single loop.
package block

import (
	"github.com/opensand-go/satcore/internal/runtime"
)

// Emitter sends one already-encoded frame on a carrier. The daemons
// bind this to the sat-carrier UDP transport; tests bind it to a
// direct function call into the peer block.
type Emitter func(carrierID uint8, buf []byte) error

// Deliverer hands a decapsulated packet to the upper layer (the
// encapsulation plug-in stack, which lives outside the core).
type Deliverer func(talID uint16, data []byte)

// EncapBurst is the payload of a MsgEncapBurst event: one
// already-encapsulated packet arriving from the upper layer, addressed
// to a destination terminal within a spot.
type EncapBurst struct {
	SpotID uint8
	TalID  uint16
	QoS    int
	Data   []byte
}

// RxFrame is the payload of a MsgSig event on a block's Upward channel:
// one raw frame received from the lower layer on a carrier.
type RxFrame struct {
	CarrierID uint8
	Buf       []byte
}

// CNIUpdate is the payload of a MsgCNI share message: one (tal_id,
// modcod) reading extracted from a SAC on the reception side, crossing
// to the scheduling side which owns the forward MODCOD state.
type CNIUpdate struct {
	TalID  uint16
	Modcod uint8
}

// discardEmit / discardDeliver are the no-op defaults used until a
// caller binds the real transport (a test exercising only one
// direction, or a SAT with no upper layer at all).
func discardEmit(uint8, []byte) error { return nil }

func discardDeliver(uint16, []byte) {}

// postRx is a convenience shared by the three blocks' daemons: it
// enqueues a received frame on the block's Upward channel.
func postRx(ch *runtime.Channel, carrierID uint8, buf []byte) {
	ch.Post(runtime.MsgSig, RxFrame{CarrierID: carrierID, Buf: buf})
}
