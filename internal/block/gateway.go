package block

import (
	"context"
	"sort"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/opensand-go/satcore/internal/band"
	"github.com/opensand-go/satcore/internal/config"
	"github.com/opensand-go/satcore/internal/dama"
	"github.com/opensand-go/satcore/internal/fifo"
	"github.com/opensand-go/satcore/internal/fmtsim"
	"github.com/opensand-go/satcore/internal/frame"
	"github.com/opensand-go/satcore/internal/physt"
	"github.com/opensand-go/satcore/internal/qosserver"
	"github.com/opensand-go/satcore/internal/runtime"
	"github.com/opensand-go/satcore/internal/sched"
	"github.com/opensand-go/satcore/internal/telemetry"
	"github.com/opensand-go/satcore/internal/terminal"
)

// gwSpot is the per-spot state a Gateway owns: one DAMA controller, one
// forward scheduler over the spot's per-QoS FIFOs, and one DVB-RCS
// reception handler.
type gwSpot struct {
	spotID uint8

	ctrl *dama.Controller
	fwd  *sched.ForwardScheduler
	fwdQ []*fifo.FIFO // priority order
	rcs  *physt.RcsStd
}

// Gateway is the GW/NCC block: its Downward channel runs the
// superframe timeline (frame_timer, fwd_timer, scenario_timer) and its
// Upward channel handles received SAC/logon/burst frames.
type Gateway struct {
	Log  *log.Logger
	Plan *band.Plan
	GWID uint8

	Terms  *terminal.Table
	FwdSim *fmtsim.Simulation
	RetSim *fmtsim.Simulation
	Conv   dama.Converter

	WithPhyLayer bool
	CNITable     *fmtsim.CNIThreshold

	Emit    Emitter
	Deliver Deliverer

	// Optional collaborators; nil disables them.
	Telemetry *telemetry.Collector
	QoS       *qosserver.Reporter

	Block *runtime.Block

	fwdFrameDurationMs int

	spots   map[uint8]*gwSpot
	spotIDs []uint8 // ascending, for deterministic per-tick iteration

	superFrameCounter uint16
	fwdFrameCounter   uint64

	frameTimer    int
	fwdTimer      int
	scenarioTimer int

	logonOrdinal int

	now int64

	DroppedUnknownSpot int
	DroppedProtocol    int
}

// NewGateway builds the GW block for gwID over cfg's topology, arming
// the three timeline timers on its Downward channel.
func NewGateway(cfg *config.Root, plan *band.Plan, gwID uint8, defs *fmtsim.DefTable, fwdSim, retSim *fmtsim.Simulation, logger *log.Logger) *Gateway {
	g := &Gateway{
		Log:                logger,
		Plan:               plan,
		GWID:               gwID,
		Terms:              terminal.NewTable(),
		FwdSim:             fwdSim,
		RetSim:             retSim,
		Conv:               dama.Converter{PacketSizeBytes: cfg.ReturnPacketSizeBytes, FrameDurationMs: cfg.RetUpFrameDurationMs},
		WithPhyLayer:       cfg.WithPhyLayer,
		Emit:               discardEmit,
		Deliver:            discardDeliver,
		fwdFrameDurationMs: cfg.FwdDownFrameDurationMs,
		spots:              make(map[uint8]*gwSpot),
	}

	fcaChunkPkts := g.Conv.KbpsToPkts(cfg.FCAKbps)
	for _, sc := range cfg.Spots {
		for _, gw := range sc.GWs {
			if gw.GWID != gwID {
				continue
			}
			sp := &gwSpot{
				spotID: sc.SpotID,
				ctrl:   dama.NewController(g.Conv, cfg.MinVBDCPkts, fcaChunkPkts),
				fwd:    sched.NewForwardScheduler(defs, g.Terms, false, 16),
				rcs:    physt.NewRcsStd(cfg.ReturnPacketSizeBytes),
			}
			for _, fc := range cfg.FIFOList {
				sp.fwdQ = append(sp.fwdQ, fifo.New(fc.Name, fc.SizePkts, 0))
			}
			if len(sp.fwdQ) == 0 {
				sp.fwdQ = []*fifo.FIFO{fifo.New("default", 0, 0)}
			}
			g.spots[sc.SpotID] = sp
			g.spotIDs = append(g.spotIDs, sc.SpotID)
		}
	}
	sort.Slice(g.spotIDs, func(i, j int) bool { return g.spotIDs[i] < g.spotIDs[j] })

	g.Block = runtime.NewBlock("gw", g.onUpwardEvent, g.onDownwardEvent)
	g.frameTimer = g.Block.Downward.ArmTimer(int64(cfg.RetUpFrameDurationMs), 0)
	g.fwdTimer = g.Block.Downward.ArmTimer(int64(cfg.FwdDownFrameDurationMs), 0)
	g.scenarioTimer = g.Block.Downward.ArmTimer(int64(cfg.DvbScenarioRefreshMs), 0)
	return g
}

// Tick advances the block to now, firing any due timers and draining
// queued events on both channels.
func (g *Gateway) Tick(now int64) {
	g.now = now
	g.Block.Tick(now)
}

// OnFrameReceived enqueues a frame received from the lower layer on the
// Upward channel.
func (g *Gateway) OnFrameReceived(carrierID uint8, buf []byte) {
	postRx(g.Block.Upward, carrierID, buf)
}

// SendBurst enqueues an upper-layer packet for forward scheduling.
func (g *Gateway) SendBurst(b EncapBurst) {
	g.Block.Downward.Post(runtime.MsgEncapBurst, b)
}

// Controller exposes a spot's DAMA controller, used by the PEP command
// channel and by tests.
func (g *Gateway) Controller(spotID uint8) (*dama.Controller, bool) {
	sp, ok := g.spots[spotID]
	if !ok {
		return nil, false
	}
	return sp.ctrl, true
}

// ForwardScheduler exposes a spot's forward scheduler for telemetry
// attachment.
func (g *Gateway) ForwardScheduler(spotID uint8) (*sched.ForwardScheduler, bool) {
	sp, ok := g.spots[spotID]
	if !ok {
		return nil, false
	}
	return sp.fwd, true
}

// SuperFrameCounter reports the current superframe number.
func (g *Gateway) SuperFrameCounter() uint16 { return g.superFrameCounter }

func (g *Gateway) onDownwardEvent(ev runtime.Event) bool {
	switch ev.Kind {
	case runtime.EventTimer:
		switch ev.TimerID {
		case g.frameTimer:
			g.onSuperFrame()
		case g.fwdTimer:
			g.onFwdTick()
		case g.scenarioTimer:
			g.onScenario()
		}
		return true

	case runtime.EventMessage:
		switch ev.MsgKind {
		case runtime.MsgEncapBurst:
			b, ok := ev.Payload.(EncapBurst)
			if !ok {
				return false
			}
			return g.enqueueBurst(b)
		case runtime.MsgCNI:
			upd, ok := ev.Payload.(CNIUpdate)
			if !ok {
				return false
			}
			if term, err := g.Terms.Get(upd.TalID); err == nil {
				g.FwdSim.SetRequiredModcod(term, upd.Modcod)
			}
			return true
		}
	}
	return true
}

func (g *Gateway) enqueueBurst(b EncapBurst) bool {
	sp, ok := g.spots[b.SpotID]
	if !ok {
		g.DroppedUnknownSpot++
		return false
	}
	qos := b.QoS
	if qos < 0 || qos >= len(sp.fwdQ) {
		qos = len(sp.fwdQ) - 1
	}
	if err := sp.fwdQ[qos].Push(g.now, sched.EncodeQueued(b.TalID, b.Data)); err != nil {
		g.Log.Warn("forward FIFO full, dropping burst", "spot", b.SpotID, "tal_id", b.TalID)
		return false
	}
	return true
}

// onSuperFrame is one frame_timer tick: SoF, then DAMA, then TTP, per
// spot -- SoF always before the same spot's TTP.
func (g *Gateway) onSuperFrame() {
	g.superFrameCounter++

	for _, spotID := range g.spotIDs {
		sp := g.spots[spotID]

		sof := &frame.SoF{SuperFrameCounter: g.superFrameCounter}
		sof.Header.SpotID = spotID
		for _, cid := range g.Plan.SoFCarriers(spotID) {
			sof.Header.CarrierID = cid
			if err := g.Emit(cid, sof.Encode()); err != nil {
				g.Log.Warn("sof emit failed", "spot", spotID, "err", err)
			}
		}

		allocs := sp.ctrl.RunSuperFrame(g.Plan.BandCapacityPkts(spotID, g.GWID))

		ttp := &frame.TTP{SuperFrameCounter: g.superFrameCounter}
		ttp.Header.SpotID = spotID
		for _, a := range allocs {
			ttp.Entries = append(ttp.Entries, frame.TTPEntry{TalID: a.TalID, PktsAlloc: uint16(a.PktsAlloc)})
		}
		if cid, ok := g.Plan.CarrierFor(spotID, g.GWID, band.CtrlOut); ok {
			ttp.Header.CarrierID = cid
			if err := g.Emit(cid, ttp.Encode()); err != nil {
				g.Log.Warn("ttp emit failed", "spot", spotID, "err", err)
			}
		}

		if g.Telemetry != nil {
			g.Telemetry.RecordSuperFrame(spotLabel(spotID), sp.ctrl)
		}
		if g.QoS != nil {
			g.QoS.Report(context.Background(), g.superFrameCounter, allocs)
		}
	}
}

// onFwdTick is one fwd_timer tick: per spot, pack waiting forward
// packets into BBFrames and drain them immediately to the data-out
// carrier, so no completed frame ever crosses a tick boundary.
func (g *Gateway) onFwdTick() {
	g.fwdFrameCounter++

	for _, spotID := range g.spotIDs {
		sp := g.spots[spotID]
		frames := sp.fwd.ScheduleAll(g.now, sp.fwdQ, g.fwdFrameDurationMs)
		if len(frames) == 0 {
			continue
		}
		cid, ok := g.Plan.CarrierFor(spotID, g.GWID, band.DataOutST)
		if !ok {
			continue
		}
		for _, bb := range frames {
			bb.Header.SpotID = spotID
			bb.Header.CarrierID = cid
			if err := g.Emit(cid, bb.Encode()); err != nil {
				g.Log.Warn("bbframe emit failed", "spot", spotID, "err", err)
			}
		}
	}
}

// onScenario is one scenario_timer tick: both FMT scenarios advance
// one step.
func (g *Gateway) onScenario() {
	g.FwdSim.Advance(g.Terms)
	g.RetSim.Advance(g.Terms)
}

func (g *Gateway) onUpwardEvent(ev runtime.Event) bool {
	if ev.Kind != runtime.EventMessage || ev.MsgKind != runtime.MsgSig {
		return true
	}
	rx, ok := ev.Payload.(RxFrame)
	if !ok {
		return false
	}
	return g.onReceive(rx.CarrierID, rx.Buf)
}

func (g *Gateway) onReceive(carrierID uint8, buf []byte) bool {
	msgType, err := frame.PeekMsgType(buf)
	if err != nil {
		g.DroppedProtocol++
		return false
	}

	switch msgType {
	case frame.MsgSAC:
		return g.onSAC(buf)
	case frame.MsgLogonReq:
		return g.onLogonRequest(buf)
	case frame.MsgLogoff:
		return g.onLogoff(buf)
	case frame.MsgDvbBurst, frame.MsgCorrupted:
		return g.onBurst(carrierID, buf)
	default:
		g.DroppedProtocol++
		return true
	}
}

func (g *Gateway) onSAC(buf []byte) bool {
	sac, err := frame.DecodeSAC(buf)
	if err != nil {
		g.DroppedProtocol++
		return false
	}
	sp, ok := g.spots[sac.Header.SpotID]
	if !ok {
		g.DroppedUnknownSpot++
		return false
	}
	if err := sp.ctrl.HereIsSAC(sac.TalID, sac.RBDCRequestKbps(), sac.VBDCRequestPkts()); err != nil {
		g.Log.Warn("SAC rejected", "tal_id", sac.TalID, "err", err)
		return false
	}

	if g.WithPhyLayer && g.CNITable != nil {
		if modcod, ok := g.CNITable.ModcodFor(sac.CNIDbQ8); ok {
			// Forward MODCOD and the advertisement flag are Downward-owned;
			// the CNI reading crosses as a message.
			g.Block.ShareUpToDown(runtime.MsgCNI, CNIUpdate{TalID: sac.TalID, Modcod: modcod})
		}
	}
	return true
}

// onLogonRequest accepts a new terminal: register it in the DAMA
// context and both FMT tables, then reply with a logon-response on the
// spot's logon-out carrier.
func (g *Gateway) onLogonRequest(buf []byte) bool {
	req, err := frame.DecodeLogonRequest(buf)
	if err != nil {
		g.DroppedProtocol++
		return false
	}
	spotID := req.Header.SpotID
	sp, ok := g.spots[spotID]
	if !ok {
		g.DroppedUnknownSpot++
		return false
	}

	talID := req.MAC
	column := g.FwdSim.AssignColumn(g.logonOrdinal)
	if _, err := g.Terms.Register(talID, req.CRAKbps, req.MaxRBDCKbps, req.MaxVBDCPkts, "", column, column); err != nil {
		// Duplicate logon: the earlier record stands, but the response is
		// re-sent so an ST that lost the first reply can still come up.
		g.Log.Debug("duplicate logon", "tal_id", talID)
	} else {
		g.logonOrdinal++
		sp.ctrl.RegisterTerminal(talID, req.CRAKbps, req.MaxRBDCKbps, req.MaxVBDCPkts)
	}

	resp := &frame.LogonResponse{MAC: req.MAC, LogonID: talID, Ack: true}
	resp.Header.SpotID = spotID
	cid, ok := g.Plan.CarrierFor(spotID, g.GWID, band.LogonOut)
	if !ok {
		return false
	}
	resp.Header.CarrierID = cid
	if err := g.Emit(cid, resp.Encode()); err != nil {
		g.Log.Warn("logon-resp emit failed", "tal_id", talID, "err", err)
		return false
	}
	g.Log.Info("terminal logged on", "tal_id", talID, "column", column)
	return true
}

func (g *Gateway) onLogoff(buf []byte) bool {
	lo, err := frame.DecodeLogoff(buf)
	if err != nil {
		g.DroppedProtocol++
		return false
	}
	if sp, ok := g.spots[lo.Header.SpotID]; ok {
		sp.ctrl.RemoveTerminal(lo.TalID)
	}
	g.Terms.Remove(lo.TalID)
	g.Log.Info("terminal logged off", "tal_id", lo.TalID)
	return true
}

func (g *Gateway) onBurst(carrierID uint8, buf []byte) bool {
	loc, err := g.Plan.Resolve(carrierID)
	if err != nil {
		g.DroppedProtocol++
		return false
	}
	sp, ok := g.spots[loc.SpotID]
	if !ok {
		g.DroppedUnknownSpot++
		return false
	}
	pkts, err := sp.rcs.OnReceiveFrame(buf)
	if err != nil {
		g.DroppedProtocol++
		return false
	}
	for _, p := range pkts {
		g.Deliver(p.DestTalID, p.Data)
	}
	return true
}

func spotLabel(spotID uint8) string {
	return "spot" + strconv.Itoa(int(spotID))
}
