// Package terminal holds the TAL (terminal) registry: one record per
// logged-on ST, created on logon-request acceptance and destroyed on
// logoff or NCC reset.
//
// Ownership is per field: the Downward channel writes forward MODCOD
// and the advertisement flag; the Upward channel writes received
// MODCOD and CNI. Table itself holds no lock -- each block's single
// runtime goroutine is the only writer.
package terminal

import (
	"sort"

	"github.com/opensand-go/satcore/internal/errs"
)

// BroadcastTalID is the reserved tal_id meaning "every terminal".
const BroadcastTalID uint16 = 0xFFFF

// Terminal is one registered ST's MAC-layer state.
type Terminal struct {
	TalID uint16

	// Forward link.
	FwdModcod     uint8 // current MODCOD id
	PrevFwdModcod uint8
	Advertised    bool // true once the current FwdModcod has been carried in a BBFrame option

	// Return link.
	RetModcod uint8

	// FMT scenario column assigned at logon.
	FwdColumn int
	RetColumn int

	// Logon parameters.
	CRAKbps     uint16
	MaxRBDCKbps uint16
	MaxVBDCPkts uint16
	Category    string

	// Required-MODCOD override from CNI feedback, valid until the next
	// scenario step.
	RequiredModcodOverride    uint8
	HasRequiredModcodOverride bool
}

// Table is the registry of live terminals, keyed by tal_id.
type Table struct {
	byID map[uint16]*Terminal
}

func NewTable() *Table {
	return &Table{byID: make(map[uint16]*Terminal)}
}

// Register creates a new terminal record, failing if talID is already
// registered (duplicate logon).
func (t *Table) Register(talID uint16, craKbps, maxRBDC, maxVBDC uint16, category string, fwdColumn, retColumn int) (*Terminal, error) {
	if _, exists := t.byID[talID]; exists {
		return nil, errs.New(errs.Protocol, "terminal", "duplicate logon for tal_id")
	}
	term := &Terminal{
		TalID:       talID,
		CRAKbps:     craKbps,
		MaxRBDCKbps: maxRBDC,
		MaxVBDCPkts: maxVBDC,
		Category:    category,
		FwdColumn:   fwdColumn,
		RetColumn:   retColumn,
	}
	t.byID[talID] = term
	return term, nil
}

// Remove destroys a terminal's record on logoff or NCC reset.
func (t *Table) Remove(talID uint16) {
	delete(t.byID, talID)
}

// Get looks up a terminal, returning UnknownTerminal if not
// registered.
func (t *Table) Get(talID uint16) (*Terminal, error) {
	term, ok := t.byID[talID]
	if !ok {
		return nil, errs.New(errs.UnknownTerminal, "terminal", "no live record for tal_id")
	}
	return term, nil
}

// Has reports whether talID has a live record, without erroring.
func (t *Table) Has(talID uint16) bool {
	_, ok := t.byID[talID]
	return ok
}

// Len reports the number of live terminals.
func (t *Table) Len() int { return len(t.byID) }

// SortedIDs returns every registered tal_id in ascending order -- the
// DAMA controller breaks ties by ascending tal_id within a pass.
func (t *Table) SortedIDs() []uint16 {
	ids := make([]uint16, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Range calls fn for every terminal in ascending tal_id order.
func (t *Table) Range(fn func(*Terminal)) {
	for _, id := range t.SortedIDs() {
		fn(t.byID[id])
	}
}
