package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensand-go/satcore/internal/dama"
	"github.com/opensand-go/satcore/internal/fifo"
	"github.com/opensand-go/satcore/internal/sched"
)

func TestCollectorExposesFIFOBacklog(t *testing.T) {
	c := NewCollector()
	f := fifo.New("fwd-best-effort", 0, 0)
	require.NoError(t, f.Push(0, make([]byte, 10)))
	require.NoError(t, f.Push(0, make([]byte, 5)))
	c.AttachFIFO("fwd-best-effort", f)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	count, err := testutil.GatherAndCount(reg, "fifo_backlog_elements")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCollectorRecordsSuperFrameFairShareAndOverbook(t *testing.T) {
	c := NewCollector()
	conv := dama.Converter{PacketSizeBytes: 100, FrameDurationMs: 50}
	ctrl := dama.NewController(conv, 0, 0)
	ctrl.RegisterTerminal(1, 1000, 1000, 0)

	ctrl.RunSuperFrame(0) // zero capacity forces an overbook clamp
	c.RecordSuperFrame("spot1", ctrl)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	metrics, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "dama_cra_overbook_total" {
			found = true
			require.Len(t, mf.Metric, 1)
			assert.Equal(t, float64(1), mf.Metric[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "dama_cra_overbook_total must be exposed after an overbooked superframe")
}

func TestCollectorExposesSchedulerDropCounters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modcod.def")
	require.NoError(t, os.WriteFile(path, []byte("1 1.0 1000 50\n"), 0o644))

	c := NewCollector()
	fs := sched.NewForwardScheduler(nil, nil, true, 10)
	fs.DroppedUnknownTerminal = 3
	rs := sched.NewReturnScheduler(100)
	rs.DroppedOversizePacket = 2
	c.AttachSpot("spot1", fs, rs)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	metrics, err := reg.Gather()
	require.NoError(t, err)

	var gotFwd, gotRet bool
	for _, mf := range metrics {
		switch mf.GetName() {
		case "fwd_sched_dropped_unknown_terminal_total":
			gotFwd = true
			assert.Equal(t, float64(3), mf.Metric[0].GetCounter().GetValue())
		case "ret_sched_dropped_oversize_total":
			gotRet = true
			assert.Equal(t, float64(2), mf.Metric[0].GetCounter().GetValue())
		}
	}
	assert.True(t, gotFwd)
	assert.True(t, gotRet)
}

func TestProbeWriterWritesRotatingSnapshot(t *testing.T) {
	dir := t.TempDir()
	pw, err := NewProbeWriter(dir, "probes-%Y%m%d-%H%M%S.csv")
	require.NoError(t, err)

	c := NewCollector()
	conv := dama.Converter{PacketSizeBytes: 100, FrameDurationMs: 50}
	ctrl := dama.NewController(conv, 0, 0)
	c.RecordSuperFrame("spot1", ctrl)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	path, err := pw.Snapshot(c, at)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Contains(t, path, "probes-20260102-030405.csv")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "spot1")
}
