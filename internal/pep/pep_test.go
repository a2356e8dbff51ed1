package pep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensand-go/satcore/internal/dama"
)

func TestParseCommandRBDC(t *testing.T) {
	cmd, err := ParseCommand("SET_RBDC 5 1000")
	require.NoError(t, err)
	assert.Equal(t, uint16(5), cmd.TalID)
	assert.True(t, cmd.RBDC)
	assert.Equal(t, 1000, cmd.Value)
}

func TestParseCommandVBDC(t *testing.T) {
	cmd, err := ParseCommand("SET_VBDC 9 42")
	require.NoError(t, err)
	assert.Equal(t, uint16(9), cmd.TalID)
	assert.False(t, cmd.RBDC)
	assert.Equal(t, 42, cmd.Value)
}

func TestParseCommandRejectsUnknownVerb(t *testing.T) {
	_, err := ParseCommand("DELETE 5 1000")
	assert.Error(t, err)
}

func TestParseCommandRejectsMalformedLine(t *testing.T) {
	_, err := ParseCommand("SET_RBDC 5")
	assert.Error(t, err)
}

func TestApplyPreservesUnnamedCeiling(t *testing.T) {
	conv := dama.Converter{PacketSizeBytes: 100, FrameDurationMs: 50}
	ctrl := dama.NewController(conv, 0, 0)
	ctrl.RegisterTerminal(5, 0, 100, 50)

	c := &Client{Controller: ctrl}
	require.NoError(t, c.Apply(Command{TalID: 5, RBDC: true, Value: 200}))

	rbdc, vbdc, err := ctrl.Ceilings(5)
	require.NoError(t, err)
	assert.Equal(t, 200, rbdc)
	assert.Equal(t, 50, vbdc, "VBDC ceiling must be left untouched by an RBDC-only command")
}

func TestApplyRejectsResourceConflict(t *testing.T) {
	conv := dama.Converter{PacketSizeBytes: 100, FrameDurationMs: 50}
	ctrl := dama.NewController(conv, 0, 0)
	ctrl.RegisterTerminal(5, 0, 1000, 1000)
	ctrl.HereIsSAC(5, 1000, 0)
	ctrl.RunSuperFrame(100000) // allocate a large RBDC grant

	rbdcBefore, _, err := ctrl.Ceilings(5)
	require.NoError(t, err)
	require.Greater(t, rbdcBefore, 0)

	c := &Client{Controller: ctrl}
	err = c.Apply(Command{TalID: 5, RBDC: true, Value: 0})
	assert.Error(t, err, "dropping the ceiling below the live allocation must fail")
}
