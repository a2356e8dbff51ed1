package band

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensand-go/satcore/internal/config"
)

func testRoot() *config.Root {
	return &config.Root{
		RetUpFrameDurationMs: 53,
		Spots: []config.SpotConfig{
			{
				SpotID: 1,
				GWs: []config.GWBand{
					{
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
					},
				},
			},
		},
	}
}

func TestBuildResolvesAllCarriers(t *testing.T) {
	p, err := Build(testRoot())
	require.NoError(t, err)

	loc, err := p.Resolve(10)
	require.NoError(t, err)
	assert.Equal(t, DataOutGW, loc.Role)

	loc, err = p.Resolve(20)
	require.NoError(t, err)
	assert.Equal(t, DataInST, loc.Role)

	loc, err = p.Resolve(30)
	require.NoError(t, err)
	assert.Equal(t, SoFCarrier, loc.Role)

	loc, err = p.Resolve(31)
	require.NoError(t, err)
	assert.Equal(t, CtrlOut, loc.Role)

	loc, err = p.Resolve(32)
	require.NoError(t, err)
	assert.Equal(t, LogonOut, loc.Role)
}

func TestResolveUnknownCarrierIsProtocolError(t *testing.T) {
	p, err := Build(testRoot())
	require.NoError(t, err)

	_, err = p.Resolve(99)
	assert.Error(t, err)
}

func TestSoFAndCtrlOutCarriersPerSpot(t *testing.T) {
	p, err := Build(testRoot())
	require.NoError(t, err)

	assert.Equal(t, []uint8{30}, p.SoFCarriers(1))
	assert.Equal(t, []uint8{31}, p.CtrlOutCarriers(1))
}

func TestBandCapacityDerivedFromReturnSymbolRate(t *testing.T) {
	p, err := Build(testRoot())
	require.NoError(t, err)

	assert.Greater(t, p.BandCapacityPkts(1, 1), 0)
}

func TestDuplicateCarrierAcrossSpotIsConfigError(t *testing.T) {
	root := testRoot()
	root.Spots = append(root.Spots, config.SpotConfig{
		SpotID: 2,
		GWs: []config.GWBand{
			{
				GWID: 1,
				ForwardBand: []config.CarrierGroup{
					{CarrierID: 10, Category: "cat1", SymbolRateSyps: 1000000, AccessType: config.AccessTDM},
				},
				SoFCarrierID:      40,
				CtrlOutCarrierID:  41,
				LogonOutCarrierID: 42,
			},
		},
	})

	_, err := Build(root)
	assert.Error(t, err)
}
