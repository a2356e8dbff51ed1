// Package band implements the static terminal-category and
// carrier/spot plan. It is built once at init from config.Root and is
// immutable thereafter -- both channels of every block hold shared
// read access to the same *Plan without locking.
package band

import (
	"fmt"

	"github.com/opensand-go/satcore/internal/config"
	"github.com/opensand-go/satcore/internal/errs"
)

// CarrierRole identifies which of the seven roles a carrier id plays
// within its (spot, gw).
type CarrierRole int

const (
	CtrlIn CarrierRole = iota
	CtrlOut
	DataInST
	DataOutST
	DataOutGW
	LogonOut
	SoFCarrier
)

func (r CarrierRole) String() string {
	switch r {
	case CtrlIn:
		return "ctrl-in"
	case CtrlOut:
		return "ctrl-out"
	case DataInST:
		return "data-in-st"
	case DataOutST:
		return "data-out-st"
	case DataOutGW:
		return "data-out-gw"
	case LogonOut:
		return "logon-out"
	case SoFCarrier:
		return "sof"
	default:
		return "unknown"
	}
}

// CarrierLocation is what a carrier id resolves to: one (spot, gw, role)
// triple. The mapping is loaded once at startup and is immutable.
type CarrierLocation struct {
	SpotID     uint8
	GWID       uint8
	Role       CarrierRole
	Category   string
	SymbolRate int
	AccessType config.AccessType
}

// Category is a static set of carrier groups; inert after band
// computation.
type Category struct {
	Name   string
	Groups []config.CarrierGroup
}

// Plan is the whole immutable band plan + carrier table for a run.
type Plan struct {
	carriers   map[uint8]CarrierLocation
	categories map[string]*Category
	// spotBandCapacityPkts is the total return-band capacity in packets
	// per superframe, derived from the return band's symbol rate, one
	// entry per (spot, gw).
	spotBandCapacityPkts map[spotGW]int
}

type spotGW struct {
	spot uint8
	gw   uint8
}

// BandCapacityPkts returns the total return-band capacity in packets per
// superframe for the given spot/gw, the starting budget of every DAMA
// pass.
func (p *Plan) BandCapacityPkts(spotID, gwID uint8) int {
	return p.spotBandCapacityPkts[spotGW{spotID, gwID}]
}

// Resolve maps a carrier id to its static location. Returns ProtocolError
// for an unknown carrier.
func (p *Plan) Resolve(carrierID uint8) (CarrierLocation, error) {
	loc, ok := p.carriers[carrierID]
	if !ok {
		return CarrierLocation{}, errs.New(errs.Protocol, "band", fmt.Sprintf("unknown carrier id %d", carrierID))
	}
	return loc, nil
}

// CarrierFor returns the carrier id playing role within (spotID, gwID),
// or false if none is configured -- used by the dispatch/scheduler code
// to find the counterpart output carrier for a given input.
func (p *Plan) CarrierFor(spotID, gwID uint8, role CarrierRole) (uint8, bool) {
	for id, loc := range p.carriers {
		if loc.SpotID == spotID && loc.GWID == gwID && loc.Role == role {
			return id, true
		}
	}
	return 0, false
}

// CtrlOutCarriers returns every ctrl-out carrier of spotID, across all
// its GWs -- used to broadcast SoF.
func (p *Plan) CtrlOutCarriers(spotID uint8) []uint8 {
	var out []uint8
	for id, loc := range p.carriers {
		if loc.SpotID == spotID && loc.Role == CtrlOut {
			out = append(out, id)
		}
	}
	return out
}

// DataOutSTCarriers returns every data-out-st carrier of spotID, across
// all its GWs -- the regenerative SAT emits locally-scheduled BBFrames
// on the spot's first one.
func (p *Plan) DataOutSTCarriers(spotID uint8) []uint8 {
	var out []uint8
	for id, loc := range p.carriers {
		if loc.SpotID == spotID && loc.Role == DataOutST {
			out = append(out, id)
		}
	}
	return out
}

// SoFCarriers returns every sof carrier of spotID, across all its GWs --
// used to emit the Start-of-Frame beacon.
func (p *Plan) SoFCarriers(spotID uint8) []uint8 {
	var out []uint8
	for id, loc := range p.carriers {
		if loc.SpotID == spotID && loc.Role == SoFCarrier {
			out = append(out, id)
		}
	}
	return out
}

// bytesPerPacket is the fixed DVB-RCS payload size assumed for
// symbol-rate -> packets-per-superframe conversion: the MPEG-TS cell
// size.
const bytesPerPacket = 188

// Build constructs the immutable Plan from a loaded configuration. It
// fails with ConfigError if a carrier id is reused across spot/gw
// boundaries. A carrier id repeated within one (spot, gw) is not
// rejected: its last entry, and that entry's role, wins.
func Build(root *config.Root) (*Plan, error) {
	p := &Plan{
		carriers:             make(map[uint8]CarrierLocation),
		categories:           make(map[string]*Category),
		spotBandCapacityPkts: make(map[spotGW]int),
	}

	for _, spot := range root.Spots {
		for _, gw := range spot.GWs {
			retCapacitySymps := 0

			for _, cg := range gw.ForwardBand {
				if err := p.addCarrier(spot.SpotID, gw.GWID, cg, roleForForward(cg.AccessType)); err != nil {
					return nil, err
				}
				p.addCategory(cg)
			}

			for _, cg := range gw.ReturnBand {
				if err := p.addCarrier(spot.SpotID, gw.GWID, cg, roleForReturn(cg.AccessType)); err != nil {
					return nil, err
				}
				p.addCategory(cg)
				retCapacitySymps += cg.SymbolRateSyps
			}

			if err := p.addFixedCarrier(spot.SpotID, gw.GWID, gw.SoFCarrierID, SoFCarrier); err != nil {
				return nil, err
			}
			if err := p.addFixedCarrier(spot.SpotID, gw.GWID, gw.CtrlOutCarrierID, CtrlOut); err != nil {
				return nil, err
			}
			if err := p.addFixedCarrier(spot.SpotID, gw.GWID, gw.LogonOutCarrierID, LogonOut); err != nil {
				return nil, err
			}

			// symbols/s -> bytes/s assuming 1 symbol carries 1 coded bit
			// at rate 1, a conservative floor; actual MODCOD efficiency
			// is applied per-terminal by the schedulers, not here.
			frameMs := root.RetUpFrameDurationMs
			if frameMs <= 0 {
				frameMs = 1
			}
			bitsPerSuperframe := retCapacitySymps * frameMs / 1000
			pktsPerSuperframe := bitsPerSuperframe / 8 / bytesPerPacket
			p.spotBandCapacityPkts[spotGW{spot.SpotID, gw.GWID}] = pktsPerSuperframe
		}
	}

	return p, nil
}

func roleForForward(at config.AccessType) CarrierRole {
	if at == config.AccessTDM {
		return DataOutGW
	}
	return DataOutST
}

func roleForReturn(at config.AccessType) CarrierRole {
	switch at {
	case config.AccessDAMA:
		return DataInST
	default:
		return CtrlIn
	}
}

func (p *Plan) addCarrier(spotID, gwID uint8, cg config.CarrierGroup, role CarrierRole) error {
	if existing, ok := p.carriers[cg.CarrierID]; ok {
		if existing.SpotID != spotID || existing.GWID != gwID {
			return errs.New(errs.Config, "band", fmt.Sprintf("carrier id %d reused across spot/gw boundaries", cg.CarrierID))
		}
	}
	p.carriers[cg.CarrierID] = CarrierLocation{
		SpotID:     spotID,
		GWID:       gwID,
		Role:       role,
		Category:   cg.Category,
		SymbolRate: cg.SymbolRateSyps,
		AccessType: cg.AccessType,
	}
	return nil
}

// addFixedCarrier registers a single-purpose carrier (SoF, ctrl-out,
// logon-out) that does not belong to a forward_band/return_band carrier
// group and therefore carries no category or symbol rate.
func (p *Plan) addFixedCarrier(spotID, gwID, carrierID uint8, role CarrierRole) error {
	if existing, ok := p.carriers[carrierID]; ok {
		if existing.SpotID != spotID || existing.GWID != gwID {
			return errs.New(errs.Config, "band", fmt.Sprintf("carrier id %d reused across spot/gw boundaries", carrierID))
		}
	}
	p.carriers[carrierID] = CarrierLocation{SpotID: spotID, GWID: gwID, Role: role}
	return nil
}

func (p *Plan) addCategory(cg config.CarrierGroup) {
	c, ok := p.categories[cg.Category]
	if !ok {
		c = &Category{Name: cg.Category}
		p.categories[cg.Category] = c
	}
	c.Groups = append(c.Groups, cg)
}

// Category looks up a terminal category by name.
func (p *Plan) Category(name string) (*Category, bool) {
	c, ok := p.categories[name]
	return c, ok
}
