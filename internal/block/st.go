package block

import (
	"github.com/charmbracelet/log"

	"github.com/opensand-go/satcore/internal/band"
	"github.com/opensand-go/satcore/internal/config"
	"github.com/opensand-go/satcore/internal/dama"
	"github.com/opensand-go/satcore/internal/fifo"
	"github.com/opensand-go/satcore/internal/frame"
	"github.com/opensand-go/satcore/internal/physt"
	"github.com/opensand-go/satcore/internal/runtime"
	"github.com/opensand-go/satcore/internal/sched"
)

// logonRetryMs is the logon-response timeout: the logon request is
// retransmitted at this interval until the agent reaches RUNNING.
const logonRetryMs = 5000

// frameTick crosses from an ST's Upward channel (which saw the SoF) to
// its Downward channel (which owns SAC emission and return scheduling).
type frameTick struct {
	SFN      uint16
	Rebooted bool
}

// ST is the Satellite Terminal block: its Upward channel receives
// SoF/TTP/logon-response/BBFrames, its Downward channel emits logon
// requests, SACs, and scheduled DVB-RCS frames.
type ST struct {
	Log    *log.Logger
	Plan   *band.Plan
	SpotID uint8
	GWID   uint8

	Profile config.TerminalConfig

	Agent    *dama.Agent
	RetSched *sched.ReturnScheduler
	S2       *physt.S2Std
	Conv     dama.Converter

	Emit    Emitter
	Deliver Deliverer

	// CNIDbQ8 is the terminal's current C/N reading, stamped into every
	// SAC when the run has a physical layer; tests and the
	// channel-emulation layer set it.
	CNIDbQ8 int16

	Block *runtime.Block

	retQ []*fifo.FIFO // priority order

	retUpFrameDurationMs int

	dataCarrier uint8
	ctrlCarrier uint8
	hasCarriers bool

	logonTimer int

	now int64

	DroppedProtocol int
}

// NewST builds the ST block for cfg.Terminal, arming the logon retry
// timer on its Downward channel. The first retry-timer fire sends the
// initial logon request, so an ST comes up without any external
// prompting.
func NewST(cfg *config.Root, plan *band.Plan, spotID, gwID uint8, logger *log.Logger) *ST {
	profile := config.TerminalConfig{}
	if cfg.Terminal != nil {
		profile = *cfg.Terminal
	}

	conv := dama.Converter{PacketSizeBytes: cfg.ReturnPacketSizeBytes, FrameDurationMs: cfg.RetUpFrameDurationMs}
	st := &ST{
		Log:                  logger,
		Plan:                 plan,
		SpotID:               spotID,
		GWID:                 gwID,
		Profile:              profile,
		Agent:                dama.NewAgent(profile.TalID, conv, cfg.OBRPeriodFrames),
		RetSched:             sched.NewReturnScheduler(cfg.ReturnPacketSizeBytes * 8),
		S2:                   physt.NewS2Std(),
		Conv:                 conv,
		Emit:                 discardEmit,
		Deliver:              discardDeliver,
		retUpFrameDurationMs: cfg.RetUpFrameDurationMs,
	}

	for _, fc := range cfg.FIFOList {
		f := fifo.New(fc.Name, fc.SizePkts, 0)
		st.retQ = append(st.retQ, f)
		st.Agent.AttachFIFO(fc, f, craShare(fc, profile.CRAKbps))
	}
	if len(st.retQ) == 0 {
		f := fifo.New("default", 0, 0)
		st.retQ = append(st.retQ, f)
		st.Agent.AttachFIFO(config.FIFOConfig{Name: "default", AccessType: config.AccessDAMA}, f, profile.CRAKbps)
	}

	if cid, ok := plan.CarrierFor(spotID, gwID, band.DataInST); ok {
		st.dataCarrier = cid
		if ctrl, ok := plan.CarrierFor(spotID, gwID, band.CtrlIn); ok {
			st.ctrlCarrier = ctrl
			st.hasCarriers = true
		} else {
			// no dedicated return ctrl carrier configured; signalling
			// shares the data carrier
			st.ctrlCarrier = cid
			st.hasCarriers = true
		}
	}

	st.Block = runtime.NewBlock("st", st.onUpwardEvent, st.onDownwardEvent)
	st.logonTimer = st.Block.Downward.ArmTimer(logonRetryMs, -logonRetryMs)
	return st
}

// craShare gives the whole of the terminal's CRA to its
// highest-priority DAMA FIFO; lower-priority FIFOs request everything
// dynamically.
func craShare(fc config.FIFOConfig, craKbps uint16) uint16 {
	if fc.Priority == 0 && fc.AccessType == config.AccessDAMA {
		return craKbps
	}
	return 0
}

// Tick advances the block to now.
func (st *ST) Tick(now int64) {
	st.now = now
	st.Block.Tick(now)
}

// OnFrameReceived enqueues a frame received from the lower layer.
func (st *ST) OnFrameReceived(carrierID uint8, buf []byte) {
	postRx(st.Block.Upward, carrierID, buf)
}

// SendBurst enqueues an upper-layer packet for return scheduling.
func (st *ST) SendBurst(b EncapBurst) {
	st.Block.Downward.Post(runtime.MsgEncapBurst, b)
}

func (st *ST) onDownwardEvent(ev runtime.Event) bool {
	switch ev.Kind {
	case runtime.EventTimer:
		if ev.TimerID == st.logonTimer {
			st.maybeSendLogon()
		}
		return true

	case runtime.EventMessage:
		switch ev.MsgKind {
		case runtime.MsgEncapBurst:
			b, ok := ev.Payload.(EncapBurst)
			if !ok {
				return false
			}
			qos := b.QoS
			if qos < 0 || qos >= len(st.retQ) {
				qos = len(st.retQ) - 1
			}
			if err := st.retQ[qos].Push(st.now, sched.EncodeQueued(b.TalID, b.Data)); err != nil {
				st.Log.Warn("return FIFO full, dropping burst", "qos", qos)
				return false
			}
			return true

		case runtime.MsgLinkUp:
			// Logon accepted; stop retrying.
			st.Block.Downward.DisarmTimer(st.logonTimer)
			return true

		case runtime.MsgSig:
			tick, ok := ev.Payload.(frameTick)
			if !ok {
				return false
			}
			if tick.Rebooted {
				// FIFOs were flushed on the Upward side; re-arm the retry
				// loop and log back on immediately.
				st.Block.Downward.DisarmTimer(st.logonTimer)
				st.logonTimer = st.Block.Downward.ArmTimer(logonRetryMs, st.now)
				st.maybeSendLogon()
				return true
			}
			st.onFrameBoundary(tick.SFN)
			return true
		}
	}
	return true
}

// maybeSendLogon (re)transmits the logon request unless the agent is
// already RUNNING.
func (st *ST) maybeSendLogon() {
	if st.Agent.State == dama.StateRunning || !st.hasCarriers {
		return
	}
	req := &frame.LogonRequest{
		MAC:         st.Profile.MAC,
		CRAKbps:     st.Profile.CRAKbps,
		MaxRBDCKbps: st.Profile.MaxRBDCKbps,
		MaxVBDCPkts: st.Profile.MaxVBDCPkts,
	}
	req.Header.SpotID = st.SpotID
	req.Header.CarrierID = st.ctrlCarrier
	if err := st.Emit(st.ctrlCarrier, req.Encode()); err != nil {
		st.Log.Warn("logon request emit failed", "err", err)
		return
	}
	st.Agent.OnLogonSent()
}

// onFrameBoundary runs the ST's per-superframe work: emit a SAC on
// this terminal's OBR slot, then drain the return FIFOs against the
// granted allocation plus the CRA the terminal assumes without any TTP
// entry.
func (st *ST) onFrameBoundary(sfn uint16) {
	if sac, ok := st.Agent.BuildSAC(int(sfn), int64(st.retUpFrameDurationMs)); ok {
		sac.CNIDbQ8 = st.CNIDbQ8
		sac.Header.SpotID = st.SpotID
		sac.Header.CarrierID = st.ctrlCarrier
		if err := st.Emit(st.ctrlCarrier, sac.Encode()); err != nil {
			st.Log.Warn("SAC emit failed", "err", err)
		}
	}

	if st.Agent.State != dama.StateRunning {
		return
	}

	budget := st.Agent.TotalAvailableAllocPkts + st.Conv.KbpsToPkts(int(st.Profile.CRAKbps))
	for _, q := range st.retQ {
		if budget <= 0 {
			break
		}
		frames := st.RetSched.Schedule(st.now, q, budget)
		for _, f := range frames {
			budget -= int(f.QtyElement)
			f.Header.SpotID = st.SpotID
			f.Header.CarrierID = st.dataCarrier
			if err := st.Emit(st.dataCarrier, f.Encode()); err != nil {
				st.Log.Warn("return frame emit failed", "err", err)
			}
		}
	}
	// The TTP grant covers exactly one superframe; what was not used is
	// gone, the next TTP re-grants.
	st.Agent.TotalAvailableAllocPkts = 0
}

func (st *ST) onUpwardEvent(ev runtime.Event) bool {
	if ev.Kind != runtime.EventMessage || ev.MsgKind != runtime.MsgSig {
		return true
	}
	rx, ok := ev.Payload.(RxFrame)
	if !ok {
		return false
	}
	return st.onReceive(rx.Buf)
}

func (st *ST) onReceive(buf []byte) bool {
	msgType, err := frame.PeekMsgType(buf)
	if err != nil {
		st.DroppedProtocol++
		return false
	}

	switch msgType {
	case frame.MsgSoF:
		sof, err := frame.DecodeSoF(buf)
		if err != nil {
			st.DroppedProtocol++
			return false
		}
		rebooted := st.Agent.OnSoF(sof.SuperFrameCounter)
		if rebooted {
			st.Log.Warn("NCC reboot detected, re-logging on", "sfn", sof.SuperFrameCounter)
		}
		st.Block.ShareUpToDown(runtime.MsgSig, frameTick{SFN: sof.SuperFrameCounter, Rebooted: rebooted})
		return true

	case frame.MsgTTP:
		ttp, err := frame.DecodeTTP(buf)
		if err != nil {
			st.DroppedProtocol++
			return false
		}
		if err := st.Agent.OnTTP(ttp); err != nil {
			st.DroppedProtocol++
			return false
		}
		return true

	case frame.MsgLogonResp:
		resp, err := frame.DecodeLogonResponse(buf)
		if err != nil {
			st.DroppedProtocol++
			return false
		}
		if resp.MAC != st.Profile.MAC || !resp.Ack {
			return true
		}
		if st.Agent.State == dama.StateWaitLogonResp {
			st.Agent.OnLogonAccepted()
			st.Block.ShareUpToDown(runtime.MsgLinkUp, nil)
			st.Log.Info("logged on", "tal_id", resp.LogonID)
		}
		return true

	case frame.MsgBBFrame, frame.MsgCorrupted:
		pkts, err := st.S2.OnReceiveFrame(buf)
		if err != nil {
			st.DroppedProtocol++
			return false
		}
		for _, p := range pkts {
			st.Deliver(st.Profile.TalID, p.Data)
		}
		return true

	default:
		return true
	}
}
