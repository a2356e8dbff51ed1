// Package dama implements the ST DAMA agent and the NCC DAMA
// controller (Legacy variant).
//
// After a saturated RBDC superframe the controller's round-robin start
// pointer is set to the first terminal that hit its max allocation
// without being able to consume credit when one exists; otherwise to
// the first terminal left unserved when capacity ran out mid-scan;
// otherwise (the scan went all the way round, or had no capacity left
// to hand out) to the terminal after the one the scan started on. In
// the last two cases the pointer moves on every superframe, so each
// terminal in turn is the first to be offered spare credit.
package dama

import (
	"github.com/opensand-go/satcore/internal/errs"
)

// Converter translates between kbits/s (the wire unit for CRA/RBDC)
// and packets per superframe (the unit the controller allocates in).
type Converter struct {
	PacketSizeBytes int
	FrameDurationMs int
}

// KbpsToPkts floors kbps worth of traffic, over one superframe, to a
// whole number of packets.
func (c Converter) KbpsToPkts(kbps int) int {
	if c.PacketSizeBytes <= 0 {
		return 0
	}
	bitsPerFrame := float64(kbps) * 1000.0 * float64(c.FrameDurationMs) / 1000.0
	return int(bitsPerFrame / 8.0 / float64(c.PacketSizeBytes))
}

// PktsToKbps converts a packet count, over one superframe, back to
// kbits/s.
func (c Converter) PktsToKbps(pkts int) int {
	if c.FrameDurationMs <= 0 {
		return 0
	}
	bits := pkts * c.PacketSizeBytes * 8
	return int(float64(bits) / float64(c.FrameDurationMs))
}

// ctx is one registered terminal's per-superframe DAMA state.
type ctx struct {
	talID uint16

	craPkts     int
	maxRBDCPkts int
	maxVBDCPkts int

	rbdcReqPkts int
	vbdcReqPkts int

	rbdcAllocPkts int
	vbdcAllocPkts int
	fcaAllocPkts  int

	rbdcCredit float64
}

func (c *ctx) totalAlloc() int { return c.rbdcAllocPkts + c.vbdcAllocPkts + c.fcaAllocPkts }

// Controller is the NCC-side Legacy DAMA controller.
type Controller struct {
	Conv Converter

	// MinVBDCPkts is the per-terminal floor served in VBDC pass A.
	MinVBDCPkts int
	// FCAChunkPkts is the fixed chunk size FCA distributes round-robin;
	// zero disables FCA.
	FCAChunkPkts int

	ids  []uint16 // ascending, kept in sync with ctxs
	ctxs map[uint16]*ctx

	rbdcStartPtr    uint16
	hasRbdcStartPtr bool
	vbdcStartPtr    uint16
	hasVbdcStartPtr bool
	fcaStartPtr     uint16
	hasFcaStartPtr  bool

	// Stats, read by internal/telemetry after each RunSuperFrame.
	LastCRAOverbook bool
	LastFairShare   float64
}

func NewController(conv Converter, minVBDCPkts, fcaChunkPkts int) *Controller {
	return &Controller{
		Conv:         conv,
		MinVBDCPkts:  minVBDCPkts,
		FCAChunkPkts: fcaChunkPkts,
		ctxs:         make(map[uint16]*ctx),
	}
}

// RegisterTerminal adds a terminal to the DAMA context on logon
// acceptance.
func (c *Controller) RegisterTerminal(talID uint16, craKbps, maxRBDCKbps, maxVBDCPkts uint16) {
	cx := &ctx{
		talID:       talID,
		craPkts:     c.Conv.KbpsToPkts(int(craKbps)),
		maxRBDCPkts: c.Conv.KbpsToPkts(int(maxRBDCKbps)),
		maxVBDCPkts: int(maxVBDCPkts),
	}
	c.ctxs[talID] = cx
	c.insertSorted(talID)
}

// RemoveTerminal drops a terminal on logoff or NCC reset, and resets any
// round-robin pointer that referenced it so the next superframe falls
// back to the first registered terminal.
func (c *Controller) RemoveTerminal(talID uint16) {
	delete(c.ctxs, talID)
	for i, id := range c.ids {
		if id == talID {
			c.ids = append(c.ids[:i], c.ids[i+1:]...)
			break
		}
	}
	if c.hasRbdcStartPtr && c.rbdcStartPtr == talID {
		c.hasRbdcStartPtr = false
	}
	if c.hasVbdcStartPtr && c.vbdcStartPtr == talID {
		c.hasVbdcStartPtr = false
	}
	if c.hasFcaStartPtr && c.fcaStartPtr == talID {
		c.hasFcaStartPtr = false
	}
}

func (c *Controller) insertSorted(talID uint16) {
	i := 0
	for i < len(c.ids) && c.ids[i] < talID {
		i++
	}
	c.ids = append(c.ids, 0)
	copy(c.ids[i+1:], c.ids[i:])
	c.ids[i] = talID
}

// HereIsSAC applies a capacity request from a SAC frame. Fails with
// errs.Protocol if talID is unknown.
func (c *Controller) HereIsSAC(talID uint16, rbdcKbps, vbdcPkts uint16) error {
	cx, ok := c.ctxs[talID]
	if !ok {
		return errs.New(errs.Protocol, "dama", "SAC from unknown terminal")
	}
	cx.rbdcReqPkts = c.Conv.KbpsToPkts(int(rbdcKbps))
	cx.vbdcReqPkts = int(vbdcPkts)
	return nil
}

// Ceilings reports talID's current max RBDC/VBDC allocation ceilings,
// used by a PEP client to preserve the ceiling it isn't overriding when
// issuing a single-dimension command (internal/pep).
func (c *Controller) Ceilings(talID uint16) (maxRBDCPkts, maxVBDCPkts int, err error) {
	cx, ok := c.ctxs[talID]
	if !ok {
		return 0, 0, errs.New(errs.UnknownTerminal, "dama", "ceiling lookup for unknown terminal")
	}
	return cx.maxRBDCPkts, cx.maxVBDCPkts, nil
}

// ApplyPepCommand overrides a terminal's ceiling. Fails with
// errs.Protocol if the new ceiling is below what is already allocated
// this superframe.
func (c *Controller) ApplyPepCommand(talID uint16, newMaxRBDCPkts, newMaxVBDCPkts int) error {
	cx, ok := c.ctxs[talID]
	if !ok {
		return errs.New(errs.UnknownTerminal, "dama", "PEP command for unknown terminal")
	}
	if newMaxRBDCPkts < cx.rbdcAllocPkts || newMaxVBDCPkts < cx.vbdcAllocPkts {
		return errs.New(errs.Protocol, "dama", "PEP command would violate current allocation (ResourceConflict)")
	}
	cx.maxRBDCPkts = newMaxRBDCPkts
	cx.maxVBDCPkts = newMaxVBDCPkts
	return nil
}

// Allocation is one terminal's explicit RBDC+VBDC+FCA allocation for
// the next superframe. CRA never appears here: the terminal assumes
// its own static reservation.
type Allocation struct {
	TalID     uint16
	PktsAlloc int // RBDC + VBDC + FCA only; CRA is assumed by the ST
}

// RunSuperFrame executes one superframe's allocation over
// bandCapacityPkts total return-band capacity, and returns the
// per-terminal TTP entries. Only terminals with a non-zero allocation
// are included.
func (c *Controller) RunSuperFrame(bandCapacityPkts int) []Allocation {
	for _, cx := range c.ctxs {
		cx.rbdcAllocPkts = 0
		cx.vbdcAllocPkts = 0
		cx.fcaAllocPkts = 0
	}

	totalCRA := 0
	for _, cx := range c.ctxs {
		totalCRA += cx.craPkts
	}

	total := bandCapacityPkts - totalCRA
	c.LastCRAOverbook = total < 0
	if total < 0 {
		total = 0
	}

	total = c.runDamaRbdc(total)
	total = c.runDamaVbdc(total)
	_ = c.runDamaFca(total)

	var out []Allocation
	for _, id := range c.ids {
		cx := c.ctxs[id]
		if cx.totalAlloc() > 0 {
			out = append(out, Allocation{TalID: id, PktsAlloc: cx.totalAlloc()})
		}
	}
	return out
}

// nextRoundRobin returns the context immediately after ptr in ascending
// tal_id order, wrapping to the first. If ptr does not exist (the
// terminal logged off mid-scan), it returns the first terminal.
func (c *Controller) nextRoundRobin(ptr uint16, hasPtr bool) (uint16, bool) {
	if len(c.ids) == 0 {
		return 0, false
	}
	if !hasPtr {
		return c.ids[0], true
	}
	for i, id := range c.ids {
		if id == ptr {
			return c.ids[(i+1)%len(c.ids)], true
		}
	}
	return c.ids[0], true
}

func (c *Controller) runDamaRbdc(tac int) int {
	if tac <= 0 || len(c.ids) == 0 {
		return tac
	}

	totalRequest := 0
	for _, id := range c.ids {
		cx := c.ctxs[id]
		req := cx.rbdcReqPkts
		if req > cx.maxRBDCPkts {
			req = cx.maxRBDCPkts
		}
		if req < 0 {
			req = 0
		}
		totalRequest += req
	}
	if totalRequest == 0 {
		c.LastFairShare = 0
		return tac
	}

	fairShare := float64(totalRequest) / float64(tac)
	c.LastFairShare = fairShare
	if fairShare < 1.0 {
		fairShare = 1.0
	}

	for _, id := range c.ids {
		cx := c.ctxs[id]
		req := cx.rbdcReqPkts
		if req > cx.maxRBDCPkts {
			req = cx.maxRBDCPkts
		}
		if req < 0 {
			req = 0
		}

		need := float64(req) / fairShare
		alloc := int(need)
		cx.rbdcAllocPkts = alloc
		tac -= alloc

		if fairShare > 1.0 {
			cx.rbdcCredit += need - float64(alloc)
		}
	}

	if fairShare <= 1.0 {
		return tac
	}

	ptr, ok := c.nextRoundRobin(0, c.hasRbdcStartPtr)
	if !ok {
		return tac
	}
	if !c.hasRbdcStartPtr {
		c.rbdcStartPtr = ptr
	} else if _, exists := c.ctxs[c.rbdcStartPtr]; !exists {
		c.rbdcStartPtr = ptr
	}
	c.hasRbdcStartPtr = true

	startPtr := c.rbdcStartPtr
	currentPtr := startPtr
	lastPtr := uint16(0)
	hasLastPtr := false

	for tac > 0 {
		cx := c.ctxs[currentPtr]
		if cx.rbdcCredit > 1.0 {
			remaining := cx.maxRBDCPkts - cx.rbdcAllocPkts
			if remaining >= 1 {
				cx.rbdcAllocPkts++
				cx.rbdcCredit -= 1.0
				tac--
			} else if !hasLastPtr {
				lastPtr = currentPtr
				hasLastPtr = true
			}
		}

		next, ok := c.nextRoundRobin(currentPtr, true)
		if !ok {
			break
		}
		currentPtr = next
		if currentPtr == startPtr {
			break
		}
	}

	if hasLastPtr {
		c.rbdcStartPtr = lastPtr
	} else if currentPtr != startPtr {
		c.rbdcStartPtr = currentPtr
	} else {
		// The scan came back round to (or never left) the start terminal:
		// the next superframe starts one terminal later.
		c.rbdcStartPtr, _ = c.nextRoundRobin(startPtr, true)
	}
	return tac
}

func (c *Controller) runDamaVbdc(tac int) int {
	if tac <= 0 || len(c.ids) == 0 {
		return tac
	}

	ptr, ok := c.nextRoundRobin(0, c.hasVbdcStartPtr)
	if !ok {
		return tac
	}
	if !c.hasVbdcStartPtr {
		c.vbdcStartPtr = ptr
	} else if _, exists := c.ctxs[c.vbdcStartPtr]; !exists {
		c.vbdcStartPtr = ptr
	}
	c.hasVbdcStartPtr = true

	startPtr := c.vbdcStartPtr
	currentPtr := startPtr
	lastPtr := uint16(0)
	hasLastPtr := false

	for pass := 0; pass < 2; pass++ {
		for tac > 0 {
			cx := c.ctxs[currentPtr]

			request := cx.vbdcReqPkts - cx.vbdcAllocPkts
			if pass == 0 {
				request = min(request, c.MinVBDCPkts)
			}
			if request < 0 {
				request = 0
			}

			if request > 0 {
				maxAlloc := cx.maxVBDCPkts - cx.vbdcAllocPkts
				grant := min(request, maxAlloc, tac)
				if grant > 0 {
					tac -= grant
					cx.vbdcAllocPkts += grant
				}
				if grant < request && !hasLastPtr {
					lastPtr = currentPtr
					hasLastPtr = true
				}
			}

			next, ok := c.nextRoundRobin(currentPtr, true)
			if !ok {
				break
			}
			currentPtr = next
			if currentPtr == startPtr {
				break
			}
		}
	}

	if hasLastPtr {
		c.vbdcStartPtr = lastPtr
	} else {
		c.vbdcStartPtr = currentPtr
	}
	return tac
}

func (c *Controller) runDamaFca(tac int) int {
	if c.FCAChunkPkts <= 0 || len(c.ids) == 0 {
		return tac
	}
	if tac < c.FCAChunkPkts {
		return tac
	}

	currentPtr, ok := c.nextRoundRobin(c.fcaStartPtr, c.hasFcaStartPtr)
	if !ok {
		return tac
	}
	startPtr := currentPtr
	firstPass := true

	for tac >= c.FCAChunkPkts {
		cx := c.ctxs[currentPtr]
		cx.fcaAllocPkts += c.FCAChunkPkts
		tac -= c.FCAChunkPkts

		next, ok := c.nextRoundRobin(currentPtr, true)
		if !ok {
			break
		}
		currentPtr = next
		if !firstPass && currentPtr == startPtr {
			break
		}
		firstPass = false
	}

	c.fcaStartPtr = currentPtr
	c.hasFcaStartPtr = true
	return tac
}

// RegisteredCount reports the number of terminals currently tracked.
func (c *Controller) RegisteredCount() int { return len(c.ids) }
