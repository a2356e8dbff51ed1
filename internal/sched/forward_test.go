package sched

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensand-go/satcore/internal/fifo"
	"github.com/opensand-go/satcore/internal/fmtsim"
	"github.com/opensand-go/satcore/internal/terminal"
)

func testDefs(t *testing.T) *fmtsim.DefTable {
	t.Helper()
	// id 1: low efficiency, small payload; id 2: higher capacity.
	path := filepath.Join(t.TempDir(), "modcod.def")
	require.NoError(t, os.WriteFile(path, []byte("1 1.0 1000 50\n2 2.0 1000 100\n"), 0o644))
	dt, err := fmtsim.LoadDefTable(path)
	require.NoError(t, err)
	return dt
}

func TestForwardSchedulerNeverEmitsEmptyFrame(t *testing.T) {
	defs := testDefs(t)
	terms := terminal.NewTable()
	fs := NewForwardScheduler(defs, terms, true, 10)
	q := fifo.New("fwd", 0, 0)

	out := fs.Schedule(0, q, 20)
	assert.Empty(t, out, "an empty queue must never produce a BBFrame")
}

func TestForwardSchedulerPacksFittingPacket(t *testing.T) {
	defs := testDefs(t)
	terms := terminal.NewTable()
	term, err := terms.Register(5, 0, 0, 0, "cat", 0, 0)
	require.NoError(t, err)
	term.FwdModcod = 2
	term.Advertised = true

	fs := NewForwardScheduler(defs, terms, true, 10)
	q := fifo.New("fwd", 0, 0)
	require.NoError(t, q.Push(0, EncodeQueued(5, make([]byte, 30))))

	out := fs.Schedule(0, q, 1000)
	require.Len(t, out, 0, "packet stays buffered in the incomplete frame until forced out")

	flushed := fs.FlushIncomplete()
	require.Len(t, flushed, 1)
	assert.Equal(t, uint8(2), flushed[0].UsedModcod)
	assert.Len(t, flushed[0].Payload, 30)
}

func TestForwardSchedulerUsesPreviousModcodUntilAdvertised(t *testing.T) {
	defs := testDefs(t)
	terms := terminal.NewTable()
	term, err := terms.Register(5, 0, 0, 0, "cat", 0, 0)
	require.NoError(t, err)
	term.PrevFwdModcod = 1
	term.FwdModcod = 2
	term.Advertised = false

	fs := NewForwardScheduler(defs, terms, true, 10)
	q := fifo.New("fwd", 0, 0)
	require.NoError(t, q.Push(0, EncodeQueued(5, make([]byte, 10))))

	fs.Schedule(0, q, 1000)
	flushed := fs.FlushIncomplete()
	require.Len(t, flushed, 1)
	assert.Equal(t, uint8(1), flushed[0].UsedModcod, "must use previous MODCOD until the new one is advertised")
	require.Len(t, flushed[0].RealModcodOpts, 1)
	assert.Equal(t, uint8(2), flushed[0].RealModcodOpts[0].RealModcod)
	assert.True(t, term.Advertised, "advertisement flag flips once the option has been carried")
}

func TestForwardSchedulerFixedLengthOpensFreshFrameOnOverflow(t *testing.T) {
	defs := testDefs(t)
	terms := terminal.NewTable()
	term, err := terms.Register(5, 0, 0, 0, "cat", 0, 0)
	require.NoError(t, err)
	term.FwdModcod = 1 // payload capacity 50 bytes
	term.Advertised = true

	fs := NewForwardScheduler(defs, terms, true, 10)
	q := fifo.New("fwd", 0, 0)
	require.NoError(t, q.Push(0, EncodeQueued(5, make([]byte, 40))))
	require.NoError(t, q.Push(0, EncodeQueued(5, make([]byte, 40))))

	// Generous time budget so both packets get scheduled; the second
	// does not fit the first frame and forces it closed.
	out := fs.Schedule(0, q, 1000)
	require.Len(t, out, 1, "the first, now-full frame must be closed and returned")
	for _, bb := range out {
		assert.NotEmpty(t, bb.Payload)
	}
}

func TestForwardSchedulerDropsUnknownTerminal(t *testing.T) {
	defs := testDefs(t)
	terms := terminal.NewTable()
	fs := NewForwardScheduler(defs, terms, true, 10)
	q := fifo.New("fwd", 0, 0)
	require.NoError(t, q.Push(0, EncodeQueued(99, []byte("x"))))

	fs.Schedule(0, q, 20)
	assert.Equal(t, 1, fs.DroppedUnknownTerminal)
	assert.Equal(t, 0, q.Len())
}

func TestForwardSchedulerTimeCreditCarriesOver(t *testing.T) {
	// MODCOD with an 8ms BBFrame: (8100*8)/(1.0*8100*1000) s.
	path := filepath.Join(t.TempDir(), "modcod.def")
	require.NoError(t, os.WriteFile(path, []byte("1 1.0 8100 50\n"), 0o644))
	defs, err := fmtsim.LoadDefTable(path)
	require.NoError(t, err)

	terms := terminal.NewTable()
	term, err := terms.Register(5, 0, 0, 0, "cat", 0, 0)
	require.NoError(t, err)
	term.FwdModcod = 1
	term.Advertised = true

	fs := NewForwardScheduler(defs, terms, true, 10)
	q := fifo.New("fwd", 0, 0)
	for i := 0; i < 4; i++ {
		// each packet fills one BBFrame exactly, so the next packet
		// forces the close
		require.NoError(t, q.Push(0, EncodeQueued(5, make([]byte, 50))))
	}

	// Tick 1, 20ms budget: two 8ms frames close, the third would need
	// another 8ms. 4ms of credit carries over.
	out := fs.Schedule(0, q, 20)
	assert.Len(t, out, 2)
	assert.InDelta(t, 4.0, fs.RemainingCreditMs(), 1e-9)

	// Tick 2, 24ms of credit: one more frame closes and the backlog
	// runs dry, which erases the leftover credit.
	out = fs.Schedule(0, q, 20)
	assert.Len(t, out, 1)
	assert.Zero(t, fs.RemainingCreditMs())

	// An idle tick leaves no credit behind either.
	out = fs.Schedule(0, q, 20)
	assert.Empty(t, out)
	assert.Zero(t, fs.RemainingCreditMs())

	// The carried credit never reaches a full frame duration.
	assert.GreaterOrEqual(t, fs.RemainingCreditMs(), 0.0)
	assert.Less(t, fs.RemainingCreditMs(), 20.0)
}
