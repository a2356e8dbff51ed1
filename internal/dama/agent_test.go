package dama

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensand-go/satcore/internal/config"
	"github.com/opensand-go/satcore/internal/fifo"
	"github.com/opensand-go/satcore/internal/frame"
)

func TestOBRSlotAssignment(t *testing.T) {
	a := NewAgent(5, testConverter(), 4)
	assert.Equal(t, 1, a.OBRSlot())
	assert.True(t, a.ShouldEmitSAC(1))
	assert.True(t, a.ShouldEmitSAC(5))
	assert.False(t, a.ShouldEmitSAC(0))
}

func TestAgentDropsSACWhenNotRunning(t *testing.T) {
	a := NewAgent(5, testConverter(), 1)
	f := fifo.New("data", 100, 0)
	a.AttachFIFO(config.FIFOConfig{AccessType: config.AccessDAMA}, f, 0)

	_, ok := a.BuildSAC(0, 50)
	assert.False(t, ok, "agent in OFF state must never emit a SAC")

	a.OnLogonSent()
	_, ok = a.BuildSAC(0, 50)
	assert.False(t, ok, "agent in WAIT_LOGON_RESP must never emit a SAC")
}

func TestAgentEmitsSACWhenRunning(t *testing.T) {
	a := NewAgent(5, testConverter(), 1)
	f := fifo.New("data", 100, 0)
	a.AttachFIFO(config.FIFOConfig{AccessType: config.AccessDAMA}, f, 0)
	a.OnLogonSent()
	a.OnLogonAccepted()

	require.NoError(t, f.Push(0, make([]byte, 100)))
	sac, ok := a.BuildSAC(0, 100)
	require.True(t, ok)
	assert.Len(t, sac.Requests, 2)
}

func TestOnSoFDetectsNccRebootAndFlushesFifos(t *testing.T) {
	a := NewAgent(5, testConverter(), 1)
	f := fifo.New("data", 100, 0)
	a.AttachFIFO(config.FIFOConfig{AccessType: config.AccessDAMA}, f, 0)
	a.OnLogonSent()
	a.OnLogonAccepted()
	require.NoError(t, f.Push(0, []byte("x")))

	assert.False(t, a.OnSoF(10))
	assert.True(t, a.OnSoF(3), "sfn going backwards must be treated as an NCC reboot")
	assert.Equal(t, StateWaitLogonResp, a.State)
	assert.Equal(t, 0, f.Len(), "FIFOs must be flushed on NCC reboot")
}

func TestOnTTPDroppedSilentlyInWaitLogonResp(t *testing.T) {
	a := NewAgent(5, testConverter(), 1)
	a.OnLogonSent()

	tt := &frame.TTP{Entries: []frame.TTPEntry{{TalID: 5, PktsAlloc: 9}}}
	require.NoError(t, a.OnTTP(tt))
	assert.Equal(t, 0, a.TotalAvailableAllocPkts, "TTP while WAIT_LOGON_RESP must be dropped silently")
}

func TestOnTTPUpdatesAllocWhenRunning(t *testing.T) {
	a := NewAgent(5, testConverter(), 1)
	a.OnLogonSent()
	a.OnLogonAccepted()

	tt := &frame.TTP{Entries: []frame.TTPEntry{{TalID: 5, PktsAlloc: 9}}}
	require.NoError(t, a.OnTTP(tt))
	assert.Equal(t, 9, a.TotalAvailableAllocPkts)
}

func TestOnTTPFailsWhenOff(t *testing.T) {
	a := NewAgent(5, testConverter(), 1)
	tt := &frame.TTP{Entries: []frame.TTPEntry{{TalID: 5, PktsAlloc: 1}}}
	assert.Error(t, a.OnTTP(tt))
}
