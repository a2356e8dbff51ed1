// The ST-side DAMA agent: it watches the local per-QoS return FIFOs,
// emits SAC capacity requests on its assigned OBR slot, and tracks the
// allocation a TTP grants so the return scheduler knows how much to
// drain next frame.
package dama

import (
	"github.com/opensand-go/satcore/internal/config"
	"github.com/opensand-go/satcore/internal/errs"
	"github.com/opensand-go/satcore/internal/fifo"
	"github.com/opensand-go/satcore/internal/frame"
)

// AgentState is the ST DAMA agent's connection state machine.
type AgentState int

const (
	StateOff AgentState = iota
	StateWaitLogonResp
	StateRunning
)

func (s AgentState) String() string {
	switch s {
	case StateOff:
		return "OFF"
	case StateWaitLogonResp:
		return "WAIT_LOGON_RESP"
	case StateRunning:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}

// rateEstimator exponentially averages a FIFO's arrival rate, feeding
// the RBDC request.
type rateEstimator struct {
	alpha       float64
	avgKbps     float64
	initialized bool
}

func newRateEstimator(alpha float64) *rateEstimator {
	return &rateEstimator{alpha: alpha}
}

// observe folds in bytesIn arrived over windowMs, in kbps.
func (r *rateEstimator) observe(bytesIn int, windowMs int64) {
	if windowMs <= 0 {
		return
	}
	instKbps := float64(bytesIn) * 8.0 / float64(windowMs)
	if !r.initialized {
		r.avgKbps = instKbps
		r.initialized = true
		return
	}
	r.avgKbps = r.alpha*instKbps + (1-r.alpha)*r.avgKbps
}

// fifoAgentState is the per-FIFO bookkeeping the DAMA agent needs to
// compute a capacity request.
type fifoAgentState struct {
	cfg       config.FIFOConfig
	fifo      *fifo.FIFO
	craKbps   uint16 // share of the terminal's static CRA assigned to this FIFO
	rate      *rateEstimator
	allocPkts int // the terminal's whole grant from the last TTP, subtracted from the backlog for the VBDC request; the VBDC part and its unused share are not tracked separately
}

// Agent is the ST-side DAMA agent.
type Agent struct {
	TalID      uint16
	OBRPeriod  int
	State      AgentState
	LastSFN    uint16
	hasLastSFN bool

	conv  Converter
	fifos []*fifoAgentState

	// TotalAvailableAllocPkts is what the most recent TTP granted for
	// the next return frame; the return scheduler drains FIFOs against
	// it.
	TotalAvailableAllocPkts int
}

// NewAgent builds a DAMA agent for an ST identified by talID.
func NewAgent(talID uint16, conv Converter, obrPeriod int) *Agent {
	return &Agent{
		TalID:     talID,
		OBRPeriod: obrPeriod,
		State:     StateOff,
		conv:      conv,
	}
}

// AttachFIFO registers a return FIFO the agent must request capacity
// for, giving it craKbps of the terminal's static CRA (zero if none of
// the CRA is dedicated to this FIFO).
func (a *Agent) AttachFIFO(cfg config.FIFOConfig, f *fifo.FIFO, craKbps uint16) {
	a.fifos = append(a.fifos, &fifoAgentState{
		cfg:     cfg,
		fifo:    f,
		craKbps: craKbps,
		rate:    newRateEstimator(0.5),
	})
}

// OBRSlot returns tal_id mod obr_period -- the frame, within each OBR
// cycle, this agent is allowed to emit a SAC on.
func (a *Agent) OBRSlot() int {
	if a.OBRPeriod <= 0 {
		return 0
	}
	return int(a.TalID) % a.OBRPeriod
}

// ShouldEmitSAC reports whether globalFrameNumber falls on this agent's
// OBR slot.
func (a *Agent) ShouldEmitSAC(globalFrameNumber int) bool {
	if a.OBRPeriod <= 0 {
		return true
	}
	return globalFrameNumber%a.OBRPeriod == a.OBRSlot()
}

// OnLogonSent transitions OFF -> WAIT_LOGON_RESP after a logon request
// has been sent.
func (a *Agent) OnLogonSent() {
	a.State = StateWaitLogonResp
}

// OnLogonAccepted transitions WAIT_LOGON_RESP -> RUNNING on a positive
// LogonResponse.
func (a *Agent) OnLogonAccepted() {
	a.State = StateRunning
}

// OnSoF processes a Start-of-Frame, detecting an NCC reboot: an sfn
// lower than the last one seen flushes every FIFO and forces the agent
// back to WAIT_LOGON_RESP so it re-logs on.
func (a *Agent) OnSoF(sfn uint16) (rebooted bool) {
	if a.hasLastSFN && sfn < a.LastSFN {
		for _, fs := range a.fifos {
			fs.fifo.Flush()
		}
		a.State = StateWaitLogonResp
		a.TotalAvailableAllocPkts = 0
		a.LastSFN = sfn
		return true
	}
	a.LastSFN = sfn
	a.hasLastSFN = true
	return false
}

// BuildSAC computes this superframe's capacity request across every
// attached FIFO and returns the SAC to send, or false if the agent is
// not RUNNING or this is not its OBR slot.
func (a *Agent) BuildSAC(globalFrameNumber int, windowMs int64) (*frame.SAC, bool) {
	if a.State != StateRunning {
		return nil, false
	}
	if !a.ShouldEmitSAC(globalFrameNumber) {
		return nil, false
	}

	sac := &frame.SAC{TalID: a.TalID}
	for _, fs := range a.fifos {
		switch fs.cfg.AccessType {
		case config.AccessDAMA:
			fs.rate.observe(fs.fifo.BacklogBytes(), windowMs)
			reqKbps := fs.rate.avgKbps - float64(fs.craKbps)
			if reqKbps < 0 {
				reqKbps = 0
			}
			sac.Requests = append(sac.Requests, frame.CRElement{
				Type:  frame.CRTypeRBDC,
				Value: uint16(reqKbps),
			})

			backlogPkts := fs.fifo.BacklogBytes() / max(1, a.conv.PacketSizeBytes)
			vbdcReq := backlogPkts - fs.allocPkts
			if vbdcReq < 0 {
				vbdcReq = 0
			}
			sac.Requests = append(sac.Requests, frame.CRElement{
				Type:  frame.CRTypeVBDC,
				Value: uint16(vbdcReq),
			})
		}
	}
	return sac, true
}

// OnTTP consumes a TTP for this terminal. A TTP arriving while
// WAIT_LOGON_RESP is dropped silently -- the NCC may simply be a frame
// behind on acknowledging the logon.
func (a *Agent) OnTTP(t *frame.TTP) error {
	if a.State == StateWaitLogonResp {
		return nil
	}
	if a.State == StateOff {
		return errs.New(errs.Protocol, "dama", "TTP received while agent is OFF")
	}
	a.TotalAvailableAllocPkts = int(t.AllocFor(a.TalID))
	for _, fs := range a.fifos {
		fs.allocPkts = a.TotalAvailableAllocPkts
	}
	return nil
}
