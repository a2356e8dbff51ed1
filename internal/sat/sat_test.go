package sat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensand-go/satcore/internal/band"
	"github.com/opensand-go/satcore/internal/config"
	"github.com/opensand-go/satcore/internal/fmtsim"
	"github.com/opensand-go/satcore/internal/frame"
	"github.com/opensand-go/satcore/internal/sched"
	"github.com/opensand-go/satcore/internal/terminal"
)

func testPlan(t *testing.T) *band.Plan {
	t.Helper()
	root := &config.Root{
		RetUpFrameDurationMs: 53,
		Spots: []config.SpotConfig{{
			SpotID: 1,
			GWs: []config.GWBand{{
				GWID: 1,
				ForwardBand: []config.CarrierGroup{
					{CarrierID: 10, Category: "cat1", SymbolRateSyps: 1000000, AccessType: config.AccessTDM},
				},
				ReturnBand: []config.CarrierGroup{
					{CarrierID: 20, Category: "cat1", SymbolRateSyps: 500000, AccessType: config.AccessDAMA},
				},
				SoFCarrierID:      30,
				CtrlOutCarrierID:  31,
				LogonOutCarrierID: 32,
			}},
		}},
	}
	p, err := band.Build(root)
	require.NoError(t, err)
	return p
}

func TestTransparentRelaysReturnBurstTowardGW(t *testing.T) {
	tp := NewTransparent(testPlan(t), 5)

	burst := &frame.DvbRcsFrame{
		Header:     frame.Header{SpotID: 1, CarrierID: 20},
		QtyElement: 0,
		Payload:    nil,
	}
	require.NoError(t, tp.OnReceive(0, 20, burst.Encode()))

	out := tp.Tick(4)
	assert.Empty(t, out, "not ready until tick_out")

	out = tp.Tick(5)
	require.Len(t, out, 1)
	assert.Equal(t, uint8(10), out[0].CarrierID, "return traffic relays toward the data-out-gw carrier")
}

func TestTransparentBroadcastsSoFToAllCtrlOutCarriers(t *testing.T) {
	tp := NewTransparent(testPlan(t), 0)

	sof := &frame.SoF{Header: frame.Header{SpotID: 1, CarrierID: 30}, SuperFrameCounter: 7}
	require.NoError(t, tp.OnReceive(0, 30, sof.Encode()))

	out := tp.Tick(0)
	require.Len(t, out, 1)
	assert.Equal(t, uint8(31), out[0].CarrierID)
}

func TestTransparentDropsCorruptedFrame(t *testing.T) {
	tp := NewTransparent(testPlan(t), 0)

	corrupted := []byte{byte(frame.MsgCorrupted), 0, 5, 1, 20}
	require.NoError(t, tp.OnReceive(0, 20, corrupted))
	assert.Equal(t, 1, tp.DroppedCorrupted)
	assert.Empty(t, tp.Tick(0))
}

func TestTransparentUnknownCarrierIsDropped(t *testing.T) {
	tp := NewTransparent(testPlan(t), 0)
	err := tp.OnReceive(0, 99, []byte{byte(frame.MsgDvbBurst), 0, 5, 1, 99})
	assert.Error(t, err)
	assert.Equal(t, 1, tp.DroppedUnknownCarrier)
}

func TestRegenerativeRoutesPacketTowardRegisteredGW(t *testing.T) {
	rg := NewRegenerative(10)
	rg.AttachGW(1, 0xAAAA)
	rg.SetSwitch(map[uint16]uint8{0xAAAA: 1})

	burst := &frame.DvbRcsFrame{
		Header:     frame.Header{SpotID: 1, CarrierID: 20},
		QtyElement: 1,
		Payload:    sched.EncodeQueued(0xAAAA, make([]byte, 8)),
	}
	require.NoError(t, rg.OnReceiveDvbBurst(0, burst.Encode()))

	f, ok := rg.GWUpFIFO(1)
	require.True(t, ok)
	assert.Equal(t, 1, f.Len())
}

func TestRegenerativeRoutesPacketToLocalSpotAndSchedules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modcod.def")
	require.NoError(t, os.WriteFile(path, []byte("1 1.0 1000 50\n"), 0o644))
	defs, err := fmtsim.LoadDefTable(path)
	require.NoError(t, err)

	terms := terminal.NewTable()
	term, err := terms.Register(7, 0, 0, 0, "cat", 0, 0)
	require.NoError(t, err)
	term.FwdModcod = 1
	term.Advertised = true

	fs := sched.NewForwardScheduler(defs, terms, true, 10)

	rg := NewRegenerative(10)
	rg.AttachSpot(1, fs)
	rg.SetSwitch(map[uint16]uint8{7: 1})

	burst := &frame.DvbRcsFrame{
		Header:     frame.Header{SpotID: 1, CarrierID: 20},
		QtyElement: 1,
		Payload:    sched.EncodeQueued(7, make([]byte, 8)), // 2-byte prefix + 8 bytes data == packetSize 10
	}
	require.NoError(t, rg.OnReceiveDvbBurst(0, burst.Encode()))

	out := rg.ScheduleForward(0, 1000)
	assert.Empty(t, out[1], "packet stays buffered in the incomplete frame until forced out")
	flushed := fs.FlushIncomplete()
	require.Len(t, flushed, 1)
	assert.Len(t, flushed[0].Payload, 8)
}

func TestRegenerativeUnroutableDestinationIsCountedAndDropped(t *testing.T) {
	rg := NewRegenerative(10)
	rg.SetSwitch(map[uint16]uint8{})

	burst := &frame.DvbRcsFrame{
		Header:     frame.Header{SpotID: 1, CarrierID: 20},
		QtyElement: 1,
		Payload:    sched.EncodeQueued(99, make([]byte, 8)),
	}
	require.NoError(t, rg.OnReceiveDvbBurst(0, burst.Encode()))
	assert.Equal(t, 1, rg.DroppedUnroutable)
}

func TestRegenerativeExtractsCNIFromSAC(t *testing.T) {
	rg := NewRegenerative(10)
	rg.CNITable = fmtsim.NewCNIThreshold(map[int16]uint8{0: 1, 100: 2})

	sac := &frame.SAC{Header: frame.Header{SpotID: 1, CarrierID: 20}, TalID: 5, CNIDbQ8: 120}
	rg.OnReceiveSAC(sac)

	updates := rg.DrainCNIUpdates()
	require.Len(t, updates, 1)
	assert.Equal(t, uint16(5), updates[0].TalID)
	assert.Equal(t, uint8(2), updates[0].Modcod)
	assert.Empty(t, rg.DrainCNIUpdates(), "updates are cleared once drained")
}
