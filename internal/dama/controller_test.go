package dama

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testConverter() Converter {
	return Converter{PacketSizeBytes: 47, FrameDurationMs: 53}
}

func TestCRAOverbookClampsToZero(t *testing.T) {
	c := NewController(testConverter(), 1, 0)
	// Each terminal's CRA alone exceeds the whole band.
	c.RegisterTerminal(1, 1000, 0, 0)
	c.RegisterTerminal(2, 1000, 0, 0)

	allocs := c.RunSuperFrame(10)
	assert.True(t, c.LastCRAOverbook)
	for _, a := range allocs {
		assert.Equal(t, 0, a.PktsAlloc)
	}
}

func TestRBDCUnderCapacityServesFullRequest(t *testing.T) {
	// One ST requests 100kbps RBDC, ceiling 256kbps, plenty of
	// capacity (no fair-share clamp).
	c := NewController(testConverter(), 1, 0)
	c.RegisterTerminal(5, 64, 256, 0)
	require.NoError(t, c.HereIsSAC(5, 100, 0))

	allocs := c.RunSuperFrame(100000)
	require.Len(t, allocs, 1)
	gotKbps := c.Conv.PktsToKbps(allocs[0].PktsAlloc)
	assert.GreaterOrEqual(t, gotKbps, 90)
	assert.LessOrEqual(t, gotKbps, 256)
}

func TestRBDCFairShareSaturationMeetsFloor(t *testing.T) {
	// 3 STs each requesting 200kbps on a 300kbps-equivalent band.
	conv := testConverter()
	c := NewController(conv, 1, 0)
	bandPkts := conv.KbpsToPkts(300)
	for _, id := range []uint16{1, 2, 3} {
		c.RegisterTerminal(id, 0, 2000, 0)
	}

	sums := map[uint16]int{}
	const superframes = 1000
	visited := map[uint16]bool{}
	for i := 0; i < superframes; i++ {
		for _, id := range []uint16{1, 2, 3} {
			require.NoError(t, c.HereIsSAC(id, 200, 0))
		}
		allocs := c.RunSuperFrame(bandPkts)
		total := 0
		for _, a := range allocs {
			sums[a.TalID] += a.PktsAlloc
			total += a.PktsAlloc
		}
		assert.LessOrEqual(t, total, bandPkts, "per-superframe allocation must not exceed band capacity")
		if c.hasRbdcStartPtr {
			visited[c.rbdcStartPtr] = true
		}
	}

	for _, id := range []uint16{1, 2, 3} {
		meanKbps := conv.PktsToKbps(sums[id] / superframes)
		assert.GreaterOrEqual(t, meanKbps, 90, "every ST must receive >= 90kbps")
		assert.InDelta(t, 100, meanKbps, 10, "mean should be within ~10%% of fair share")
	}

	// Starvation-freedom: every terminal is visited by the
	// round-robin pointer at least once over many superframes.
	assert.Len(t, visited, 3)
}

func TestVBDCMinFloorServedFirst(t *testing.T) {
	c := NewController(testConverter(), 5, 0)
	c.RegisterTerminal(1, 0, 0, 1000)
	c.RegisterTerminal(2, 0, 0, 1000)
	require.NoError(t, c.HereIsSAC(1, 0, 100))
	require.NoError(t, c.HereIsSAC(2, 0, 3))

	// Exactly enough for terminal 1's floor (5) and terminal 2's whole
	// request (3, below the floor already).
	allocs := c.RunSuperFrame(8)
	byID := map[uint16]int{}
	for _, a := range allocs {
		byID[a.TalID] = a.PktsAlloc
	}
	assert.Equal(t, 5, byID[1])
	assert.Equal(t, 3, byID[2])
}

func TestVBDCNeverExceedsScarceCapacity(t *testing.T) {
	// When the floors themselves would overshoot the band, the
	// second terminal's grant is clamped rather than driving the
	// running total negative.
	c := NewController(testConverter(), 5, 0)
	c.RegisterTerminal(1, 0, 0, 1000)
	c.RegisterTerminal(2, 0, 0, 1000)
	require.NoError(t, c.HereIsSAC(1, 0, 100))
	require.NoError(t, c.HereIsSAC(2, 0, 3))

	allocs := c.RunSuperFrame(6)
	total := 0
	byID := map[uint16]int{}
	for _, a := range allocs {
		byID[a.TalID] = a.PktsAlloc
		total += a.PktsAlloc
	}
	assert.LessOrEqual(t, total, 6, "total allocation must not exceed band capacity")
	assert.Equal(t, 5, byID[1])
	assert.Equal(t, 1, byID[2])
}

func TestFCADistributesLeftoverInChunks(t *testing.T) {
	c := NewController(testConverter(), 0, 10)
	c.RegisterTerminal(1, 0, 0, 0)
	c.RegisterTerminal(2, 0, 0, 0)

	allocs := c.RunSuperFrame(25)
	byID := map[uint16]int{}
	for _, a := range allocs {
		byID[a.TalID] = a.PktsAlloc
	}
	assert.Equal(t, 10, byID[1])
	assert.Equal(t, 10, byID[2])
}

func TestApplyPepCommandRejectsConflict(t *testing.T) {
	c := NewController(testConverter(), 1, 0)
	c.RegisterTerminal(1, 0, 1000, 0)
	require.NoError(t, c.HereIsSAC(1, 2000, 0))
	c.RunSuperFrame(100000)

	err := c.ApplyPepCommand(1, 0, 0)
	require.Error(t, err)
}

func TestEmptySuperFrameLeavesStateUnchanged(t *testing.T) {
	// Applying an empty TTP (no requests) leaves DAMA state
	// unchanged except for bookkeeping.
	c := NewController(testConverter(), 1, 0)
	c.RegisterTerminal(1, 64, 256, 10)

	allocs1 := c.RunSuperFrame(1000)
	allocs2 := c.RunSuperFrame(1000)
	assert.Equal(t, allocs1, allocs2)
}

// Property test: for any set of terminals and requests, total
// allocation never exceeds band capacity.
func TestPropertyP1NeverExceedsCapacity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		conv := testConverter()
		bandPkts := rapid.IntRange(0, 5000).Draw(rt, "bandPkts")
		fcaChunk := rapid.IntRange(0, 20).Draw(rt, "fcaChunk")
		c := NewController(conv, rapid.IntRange(0, 20).Draw(rt, "minVBDC"), fcaChunk)

		n := rapid.IntRange(0, 8).Draw(rt, "nTerms")
		ids := make([]uint16, 0, n)
		for i := 0; i < n; i++ {
			id := uint16(i + 1)
			ids = append(ids, id)
			cra := rapid.IntRange(0, 200).Draw(rt, "cra")
			maxRBDC := rapid.IntRange(0, 1000).Draw(rt, "maxRBDC")
			maxVBDC := rapid.IntRange(0, 1000).Draw(rt, "maxVBDC")
			c.RegisterTerminal(id, uint16(cra), uint16(maxRBDC), uint16(maxVBDC))
		}
		for _, id := range ids {
			rbdc := rapid.IntRange(0, 2000).Draw(rt, "rbdcReq")
			vbdc := rapid.IntRange(0, 2000).Draw(rt, "vbdcReq")
			require.NoError(rt, c.HereIsSAC(id, uint16(rbdc), uint16(vbdc)))
		}

		allocs := c.RunSuperFrame(bandPkts)
		total := 0
		for _, a := range allocs {
			total += a.PktsAlloc
		}
		if total > bandPkts {
			rt.Fatalf("total alloc %d > band capacity %d", total, bandPkts)
		}
	})
}
