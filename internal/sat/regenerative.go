package sat

import (
	"github.com/opensand-go/satcore/internal/fifo"
	"github.com/opensand-go/satcore/internal/fmtsim"
	"github.com/opensand-go/satcore/internal/frame"
	"github.com/opensand-go/satcore/internal/physt"
	"github.com/opensand-go/satcore/internal/sched"
)

// CNIUpdate is one (tal_id, modcod) pair extracted from a return SAC's
// CNI field, shared with the forward MODCOD simulation via the
// in-process "cni" message.
type CNIUpdate struct {
	TalID  uint16
	Modcod uint8
}

// Regenerative is the decode-and-reschedule SAT path: return bursts
// are decoded locally with physt.RcsStd, routed per destination tal_id
// (toward a registered GW, or toward another ST within a spot), and a
// ForwardScheduler per spot packs routed-toward-ST traffic into fresh
// BBFrames instead of merely relaying the GW's own forward stream.
type Regenerative struct {
	Rcs      *physt.RcsStd
	CNITable *fmtsim.CNIThreshold

	// gwTalID maps a registered GW's id to the tal_id addressing it in
	// packet headers -- traffic destined there is routed upward to the
	// GW rather than rescheduled locally.
	gwTalID map[uint8]uint16
	gwUp    map[uint8]*fifo.FIFO

	fwdSched map[uint8]*sched.ForwardScheduler
	fwdFifo  map[uint8]*fifo.FIFO

	pendingCNI []CNIUpdate

	DroppedUnroutable int
}

// NewRegenerative builds a Regenerative SAT path decoding fixed-size
// return packets of packetSizeBytes.
func NewRegenerative(packetSizeBytes int) *Regenerative {
	return &Regenerative{
		Rcs:      physt.NewRcsStd(packetSizeBytes),
		gwTalID:  make(map[uint8]uint16),
		gwUp:     make(map[uint8]*fifo.FIFO),
		fwdSched: make(map[uint8]*sched.ForwardScheduler),
		fwdFifo:  make(map[uint8]*fifo.FIFO),
	}
}

// SetSwitch programs the tal_id -> spot_id routing table: traffic
// addressed to a tal_id not registered to a GW is forwarded locally
// within the spot the table names.
func (rg *Regenerative) SetSwitch(table map[uint16]uint8) { rg.Rcs.SetSwitch(table) }

// AttachGW registers gwID as reachable at talID, giving it its own
// unbounded up queue.
func (rg *Regenerative) AttachGW(gwID uint8, talID uint16) {
	rg.gwTalID[gwID] = talID
	rg.gwUp[gwID] = fifo.New("sat-gw-up", 0, 0)
}

// GWUpFIFO returns the queue of packets routed toward gwID, drained by
// the transport layer feeding that GW's data-in carrier.
func (rg *Regenerative) GWUpFIFO(gwID uint8) (*fifo.FIFO, bool) {
	f, ok := rg.gwUp[gwID]
	return f, ok
}

// AttachSpot installs the forward scheduler and packet queue used to
// reschedule traffic routed toward spotID locally, instead of relaying
// it from a GW.
func (rg *Regenerative) AttachSpot(spotID uint8, fs *sched.ForwardScheduler) {
	rg.fwdSched[spotID] = fs
	rg.fwdFifo[spotID] = fifo.New("sat-fwd", 0, 0)
}

// OnReceiveDvbBurst decodes the return burst in buf and
// routes each decapsulated packet toward either a registered GW's up
// queue or the locally-rescheduled forward queue of its destination
// spot, per the switch table. A packet whose
// destination resolves to neither is counted and dropped.
func (rg *Regenerative) OnReceiveDvbBurst(now int64, buf []byte) error {
	pkts, err := rg.Rcs.OnReceiveFrame(buf)
	if err != nil {
		return err
	}

	for _, p := range pkts {
		if f, ok := rg.gwFIFOFor(p.DestTalID); ok {
			if err := f.Push(now, p.Data); err != nil {
				return err
			}
			continue
		}

		spotID, ok := rg.Rcs.DestinationSpot(p.DestTalID)
		if !ok {
			rg.DroppedUnroutable++
			continue
		}
		q, ok := rg.fwdFifo[spotID]
		if !ok {
			rg.DroppedUnroutable++
			continue
		}
		if err := q.Push(now, sched.EncodeQueued(p.DestTalID, p.Data)); err != nil {
			return err
		}
	}
	return nil
}

func (rg *Regenerative) gwFIFOFor(talID uint16) (*fifo.FIFO, bool) {
	for gwID, t := range rg.gwTalID {
		if t == talID {
			return rg.gwUp[gwID], true
		}
	}
	return nil, false
}

// OnReceiveSAC extracts sac's CNI reading, translates it to a required
// MODCOD via CNITable, and records it as a pending update. A SAC with
// no CNITable configured (no physical-layer feedback in this run) is a
// no-op.
func (rg *Regenerative) OnReceiveSAC(sac *frame.SAC) {
	if rg.CNITable == nil {
		return
	}
	modcod, ok := rg.CNITable.ModcodFor(sac.CNIDbQ8)
	if !ok {
		return
	}
	rg.pendingCNI = append(rg.pendingCNI, CNIUpdate{TalID: sac.TalID, Modcod: modcod})
}

// DrainCNIUpdates returns and clears every CNI update accumulated since
// the last call, consumed by the downward channel's forward FMT
// simulation.
func (rg *Regenerative) DrainCNIUpdates() []CNIUpdate {
	out := rg.pendingCNI
	rg.pendingCNI = nil
	return out
}

// ScheduleForward runs one fwd_timer tick of every attached spot's
// forward scheduler against its locally-rescheduled queue, returning
// the BBFrames produced per spot.
func (rg *Regenerative) ScheduleForward(now int64, fwdFrameDurationMs int) map[uint8][]*frame.BBFrame {
	out := make(map[uint8][]*frame.BBFrame, len(rg.fwdSched))
	for spotID, fs := range rg.fwdSched {
		out[spotID] = fs.Schedule(now, rg.fwdFifo[spotID], fwdFrameDurationMs)
	}
	return out
}
