package block

import (
	"github.com/charmbracelet/log"

	"github.com/opensand-go/satcore/internal/band"
	"github.com/opensand-go/satcore/internal/config"
	"github.com/opensand-go/satcore/internal/fmtsim"
	"github.com/opensand-go/satcore/internal/frame"
	"github.com/opensand-go/satcore/internal/runtime"
	"github.com/opensand-go/satcore/internal/sat"
	"github.com/opensand-go/satcore/internal/sched"
	"github.com/opensand-go/satcore/internal/terminal"
)

// SAT is the satellite payload block: transparent bent-pipe relay or
// regenerative decode-and-reschedule, selected by configuration.
type SAT struct {
	Log  *log.Logger
	Plan *band.Plan
	Mode config.SatelliteType

	Transparent *sat.Transparent
	Regen       *sat.Regenerative

	// Regenerative-only local FMT state: the SAT schedules BBFrames
	// itself, so it owns a terminal table and forward simulation of its
	// own.
	Terms  *terminal.Table
	FwdSim *fmtsim.Simulation

	Emit Emitter

	Block *runtime.Block

	fwdTimer           int
	fwdFrameDurationMs int

	now int64

	DroppedProtocol int
}

// NewSAT builds the SAT block per cfg.SatelliteType. For a regenerative
// payload, defs and fwdSim supply the local forward scheduling state;
// both may be nil for a transparent one.
func NewSAT(cfg *config.Root, plan *band.Plan, defs *fmtsim.DefTable, fwdSim *fmtsim.Simulation, logger *log.Logger) *SAT {
	s := &SAT{
		Log:                logger,
		Plan:               plan,
		Mode:               cfg.SatelliteType,
		Emit:               discardEmit,
		fwdFrameDurationMs: cfg.FwdDownFrameDurationMs,
	}

	delay := int64(cfg.SatDelayMs)
	s.Transparent = sat.NewTransparent(plan, delay)

	if cfg.SatelliteType == config.Regenerative {
		s.Terms = terminal.NewTable()
		s.FwdSim = fwdSim
		s.Regen = sat.NewRegenerative(cfg.ReturnPacketSizeBytes)
		for _, sc := range cfg.Spots {
			fs := sched.NewForwardScheduler(defs, s.Terms, false, 16)
			s.Regen.AttachSpot(sc.SpotID, fs)
			for _, gw := range sc.GWs {
				// a GW is addressed by its own id as tal_id
				s.Regen.AttachGW(gw.GWID, uint16(gw.GWID))
			}
		}
	}

	s.Block = runtime.NewBlock("sat", s.onUpwardEvent, s.onDownwardEvent)
	s.fwdTimer = s.Block.Downward.ArmTimer(int64(cfg.FwdDownFrameDurationMs), 0)
	return s
}

// Tick advances the block to now.
func (s *SAT) Tick(now int64) {
	s.now = now
	s.Block.Tick(now)
}

// OnFrameReceived enqueues a frame received on a carrier.
func (s *SAT) OnFrameReceived(carrierID uint8, buf []byte) {
	postRx(s.Block.Upward, carrierID, buf)
}

func (s *SAT) onUpwardEvent(ev runtime.Event) bool {
	if ev.Kind != runtime.EventMessage || ev.MsgKind != runtime.MsgSig {
		return true
	}
	rx, ok := ev.Payload.(RxFrame)
	if !ok {
		return false
	}

	if s.Mode == config.Transparent {
		if err := s.Transparent.OnReceive(s.now, rx.CarrierID, rx.Buf); err != nil {
			return false
		}
		return true
	}
	return s.onRegenReceive(rx.CarrierID, rx.Buf)
}

// onRegenReceive decodes data traffic locally; control traffic (SoF,
// TTP, logon exchange) still rides the bent pipe so the NCC keeps
// running the return link.
func (s *SAT) onRegenReceive(carrierID uint8, buf []byte) bool {
	msgType, err := frame.PeekMsgType(buf)
	if err != nil {
		s.DroppedProtocol++
		return false
	}

	switch msgType {
	case frame.MsgDvbBurst:
		if err := s.Regen.OnReceiveDvbBurst(s.now, buf); err != nil {
			s.DroppedProtocol++
			return false
		}
		return true

	case frame.MsgSAC:
		sac, err := frame.DecodeSAC(buf)
		if err != nil {
			s.DroppedProtocol++
			return false
		}
		s.Regen.OnReceiveSAC(sac)
		for _, upd := range s.Regen.DrainCNIUpdates() {
			s.Block.ShareUpToDown(runtime.MsgCNI, CNIUpdate{TalID: upd.TalID, Modcod: upd.Modcod})
		}
		// the SAC itself still reaches the NCC
		if err := s.Transparent.OnReceive(s.now, carrierID, buf); err != nil {
			return false
		}
		return true

	case frame.MsgCorrupted:
		// corrupted frames never leave the satellite
		return true

	default:
		if err := s.Transparent.OnReceive(s.now, carrierID, buf); err != nil {
			return false
		}
		return true
	}
}

func (s *SAT) onDownwardEvent(ev runtime.Event) bool {
	switch ev.Kind {
	case runtime.EventTimer:
		if ev.TimerID == s.fwdTimer {
			s.onFwdTick()
		}
		return true

	case runtime.EventMessage:
		if ev.MsgKind == runtime.MsgCNI && s.FwdSim != nil {
			upd, ok := ev.Payload.(CNIUpdate)
			if !ok {
				return false
			}
			if term, err := s.Terms.Get(upd.TalID); err == nil {
				s.FwdSim.SetRequiredModcod(term, upd.Modcod)
			}
			return true
		}
	}
	return true
}

// onFwdTick drains the bent-pipe delay FIFOs and, on a regenerative
// payload, runs the local forward schedulers.
func (s *SAT) onFwdTick() {
	for _, out := range s.Transparent.Tick(s.now) {
		if err := s.Emit(out.CarrierID, out.Payload); err != nil {
			s.Log.Warn("relay emit failed", "carrier", out.CarrierID, "err", err)
		}
	}

	if s.Regen == nil {
		return
	}
	for spotID, frames := range s.Regen.ScheduleForward(s.now, s.fwdFrameDurationMs) {
		if len(frames) == 0 {
			continue
		}
		cids := s.Plan.DataOutSTCarriers(spotID)
		if len(cids) == 0 {
			continue
		}
		cid := cids[0]
		for _, bb := range frames {
			bb.Header.SpotID = spotID
			bb.Header.CarrierID = cid
			if err := s.Emit(cid, bb.Encode()); err != nil {
				s.Log.Warn("regen bbframe emit failed", "spot", spotID, "err", err)
			}
		}
	}
}
