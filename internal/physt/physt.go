// Package physt implements the physical-standard handlers that decode
// incoming frames into packet bursts and hold reception state
// (received MODCOD, ACM statistics, regenerative switch table). The
// Std interface carries the three operations the blocks actually
// invoke; RcsStd and S2Std satisfy it without any shared base type.
package physt

import (
	"github.com/opensand-go/satcore/internal/frame"
	"github.com/opensand-go/satcore/internal/sched"
)

// Packet is one decapsulated burst element, addressed to its
// destination terminal. The encapsulation plug-in stack itself lives
// outside the core; physt only needs the addressing it would have
// attached.
type Packet struct {
	DestTalID uint16
	Data      []byte
}

// Std is the trait every physical-standard handler implements.
type Std interface {
	// OnReceiveFrame decodes buf, returning the packets it carried.
	// A frame tagged MSG_TYPE_CORRUPTED yields no packets but still
	// updates reception state.
	OnReceiveFrame(buf []byte) ([]Packet, error)
	// GetReceivedModcod reports the MODCOD id of the last frame this
	// handler successfully (or corruptedly) received. RcsStd reports
	// the value last passed to its UpdateReceivedModcod.
	GetReceivedModcod() uint8
	// SetSwitch programs the tal_id -> spot_id routing table used by
	// the regenerative SAT path. S2Std's implementation is a no-op;
	// RcsStd stores the table whether or not its packets are routed.
	SetSwitch(table map[uint16]uint8)
}

// RcsStd is the DVB-RCS handler: decodes return-link bursts (GW/SAT
// reception side).
type RcsStd struct {
	PacketSizeBytes int

	receivedModcod uint8
	CorruptedCount int

	switchTable map[uint16]uint8
}

// NewRcsStd builds an RcsStd decoding fixed-size packets of
// packetSizeBytes each.
func NewRcsStd(packetSizeBytes int) *RcsStd {
	return &RcsStd{PacketSizeBytes: packetSizeBytes}
}

// OnReceiveFrame decodes a DvbRcsFrame. A corrupted frame updates
// receivedModcod (fed from the frame's carrier, by convention the
// caller passes the sender's currently-advertised return MODCOD via
// UpdateReceivedModcod before discarding) and yields no packets.
func (r *RcsStd) OnReceiveFrame(buf []byte) ([]Packet, error) {
	msgType, err := frame.PeekMsgType(buf)
	if err != nil {
		return nil, err
	}
	if msgType == frame.MsgCorrupted {
		r.CorruptedCount++
		return nil, nil
	}

	f, err := frame.DecodeDvbRcsFrame(buf, r.PacketSizeBytes)
	if err != nil {
		return nil, err
	}
	raw := f.Packets(r.PacketSizeBytes)
	out := make([]Packet, 0, len(raw))
	for _, p := range raw {
		dest, data, ok := sched.DecodeQueued(p)
		if !ok {
			continue
		}
		out = append(out, Packet{DestTalID: dest, Data: data})
	}
	return out, nil
}

// UpdateReceivedModcod records the MODCOD the frame just processed (or
// dropped as corrupted) was sent at, feeding ACM statistics.
func (r *RcsStd) UpdateReceivedModcod(modcod uint8) { r.receivedModcod = modcod }

func (r *RcsStd) GetReceivedModcod() uint8 { return r.receivedModcod }

// SetSwitch programs the tal_id -> spot_id destination table used when
// this handler's decoded packets are routed by a regenerative SAT.
func (r *RcsStd) SetSwitch(table map[uint16]uint8) { r.switchTable = table }

// DestinationSpot looks up which spot talID's traffic should be routed
// to, for the regenerative path.
func (r *RcsStd) DestinationSpot(talID uint16) (uint8, bool) {
	spot, ok := r.switchTable[talID]
	return spot, ok
}

// S2Std is the DVB-S2 handler: decodes forward-link BBFrames (ST
// reception side).
//
// An S2Std tracks the MODCOD it currently recognizes as "real" for its
// own terminal -- the only way it learns this is the real-modcod
// advertisement option carried ahead of a MODCOD actually being used,
// so by construction used_modcod never exceeds what has already been
// recognized unless the option itself was lost to corruption, in which
// case the frame is dropped as an emulated physical loss.
type S2Std struct {
	recognizedModcod    uint8
	hasRecognizedModcod bool

	receivedModcod uint8
	CorruptedCount int
	DroppedByModcod int
}

func NewS2Std() *S2Std { return &S2Std{} }

// OnReceiveFrame decodes a BBFrame addressed (implicitly, by the
// caller's filtering on carrier id) to this terminal.
func (s *S2Std) OnReceiveFrame(buf []byte) ([]Packet, error) {
	msgType, err := frame.PeekMsgType(buf)
	if err != nil {
		return nil, err
	}
	if msgType == frame.MsgCorrupted {
		s.CorruptedCount++
		return nil, nil
	}

	bb, err := frame.DecodeBBFrame(buf)
	if err != nil {
		return nil, err
	}

	for _, opt := range bb.RealModcodOpts {
		s.recognizedModcod = opt.RealModcod
		s.hasRecognizedModcod = true
	}

	if s.hasRecognizedModcod && bb.UsedModcod > s.recognizedModcod {
		// the physical layer could not have demodulated a used_modcod
		// above what this terminal can actually support -- emulated
		// loss
		s.DroppedByModcod++
		return nil, nil
	}

	s.receivedModcod = bb.UsedModcod
	if len(bb.Payload) == 0 {
		return nil, nil
	}
	return []Packet{{Data: bb.Payload}}, nil
}

func (s *S2Std) GetReceivedModcod() uint8 { return s.receivedModcod }

// SetSwitch is a no-op on S2Std: forward-link reception never routes
// between spots.
func (s *S2Std) SetSwitch(map[uint16]uint8) {}
