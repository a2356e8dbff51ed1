// Package fmtsim implements the FMT/MODCOD simulation engine. Two
// independent *Simulation instances are built -- one for the forward
// link, one for the return link -- with Direction passed as plain data
// instead of a dispatch hierarchy. Scenario and definition files load
// once at startup; lookups are served from memory.
package fmtsim

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/opensand-go/satcore/internal/errs"
	"github.com/opensand-go/satcore/internal/terminal"
)

// Direction selects which of a terminal's two MODCOD values (forward or
// return) a Simulation instance manages.
type Direction int

const (
	Forward Direction = iota
	Return
)

// ModcodDef is one row of the MODCOD definition table: a MODCOD id and
// the physical parameters the forward scheduler needs to compute
// BBFrame capacity and duration.
type ModcodDef struct {
	ID                 uint8
	SpectralEfficiency float64 // bits/symbol
	BandwidthKHz       float64
	PayloadBytes       int // BBFrame payload capacity at this MODCOD
}

// DefTable is the immutable set of supported MODCODs, one entry per
// coding rate.
type DefTable struct {
	byID map[uint8]ModcodDef
}

// LoadDefTable reads a MODCOD definition file: one whitespace-separated
// row per MODCOD, "id spectral_efficiency bandwidth_khz payload_bytes".
// Lines starting with '#' and blank lines are skipped.
func LoadDefTable(path string) (*DefTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.Config, "fmtsim", "cannot open modcod def file "+path, err)
	}
	defer f.Close()

	dt := &DefTable{byID: make(map[uint8]ModcodDef)}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, errs.New(errs.Config, "fmtsim", fmt.Sprintf("%s:%d: expected 4 fields, got %d", path, lineNo, len(fields)))
		}
		id, err1 := strconv.ParseUint(fields[0], 10, 8)
		eff, err2 := strconv.ParseFloat(fields[1], 64)
		bw, err3 := strconv.ParseFloat(fields[2], 64)
		payload, err4 := strconv.Atoi(fields[3])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return nil, errs.New(errs.Config, "fmtsim", fmt.Sprintf("%s:%d: malformed row", path, lineNo))
		}
		dt.byID[uint8(id)] = ModcodDef{ID: uint8(id), SpectralEfficiency: eff, BandwidthKHz: bw, PayloadBytes: payload}
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.Config, "fmtsim", "reading "+path, err)
	}
	return dt, nil
}

// Get looks up a MODCOD definition by id.
func (dt *DefTable) Get(id uint8) (ModcodDef, bool) {
	d, ok := dt.byID[id]
	return d, ok
}

// MSGBBFrameSizeMax is the maximum BBFrame size in bytes, used by the
// duration formula.
const MSGBBFrameSizeMax = 8100

// DurationMs returns the BBFrame duration in ms for this MODCOD:
// (MSG_BBFRAME_SIZE_MAX * 8) / (spectral_efficiency * bandwidth_khz * 1000).
func (d ModcodDef) DurationMs() float64 {
	if d.SpectralEfficiency <= 0 || d.BandwidthKHz <= 0 {
		return 0
	}
	bitsPerSecond := d.SpectralEfficiency * d.BandwidthKHz * 1000.0
	seconds := float64(MSGBBFrameSizeMax*8) / bitsPerSecond
	return seconds * 1000.0
}

// Scenario is a table scenario[step][column] -> modcod_id, loaded from
// a time-series file and played back one row per scenario_timer tick.
type Scenario struct {
	rows [][]uint8
	step int
}

// LoadScenario reads a scenario file: one comma-separated row of MODCOD
// ids per line, one column per terminal-column index.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.Config, "fmtsim", "cannot open scenario file "+path, err)
	}
	defer f.Close()

	s := &Scenario{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		row := make([]uint8, len(fields))
		for i, fld := range fields {
			v, err := strconv.ParseUint(strings.TrimSpace(fld), 10, 8)
			if err != nil {
				return nil, errs.Wrap(errs.Config, "fmtsim", "malformed scenario row in "+path, err)
			}
			row[i] = uint8(v)
		}
		s.rows = append(s.rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.Config, "fmtsim", "reading "+path, err)
	}
	if len(s.rows) == 0 {
		return nil, errs.New(errs.Config, "fmtsim", path+" contains no rows")
	}
	return s, nil
}

// Step returns the current row's value at column, or false if column is
// out of range.
func (s *Scenario) Step(column int) (uint8, bool) {
	row := s.rows[s.step]
	if column < 0 || column >= len(row) {
		return 0, false
	}
	return row[column], true
}

// Advance moves to the next scenario row, wrapping to the start at
// EOF.
func (s *Scenario) Advance() {
	s.step = (s.step + 1) % len(s.rows)
}

// NumColumns reports the width of the first scenario row.
func (s *Scenario) NumColumns() int {
	if len(s.rows) == 0 {
		return 0
	}
	return len(s.rows[0])
}

// CNIThreshold maps a CNI value (dB, Q8 fixed point) to the highest
// MODCOD whose required C/N does not exceed it -- used by the
// physical-layer feedback path.
type CNIThreshold struct {
	// ascending by MinCNIDbQ8
	entries []cniEntry
}

type cniEntry struct {
	MinCNIDbQ8 int16
	ModcodID   uint8
}

// NewCNIThreshold builds a threshold table from (min_cni, modcod) pairs.
// Pairs need not be pre-sorted.
func NewCNIThreshold(pairs map[int16]uint8) *CNIThreshold {
	t := &CNIThreshold{}
	for cni, id := range pairs {
		t.entries = append(t.entries, cniEntry{MinCNIDbQ8: cni, ModcodID: id})
	}
	sort.Slice(t.entries, func(i, j int) bool { return t.entries[i].MinCNIDbQ8 < t.entries[j].MinCNIDbQ8 })
	return t
}

// ModcodFor returns the highest MODCOD whose minimum required CNI does
// not exceed cni, or false if cni is below every threshold.
func (t *CNIThreshold) ModcodFor(cni int16) (uint8, bool) {
	best := uint8(0)
	found := false
	for _, e := range t.entries {
		if e.MinCNIDbQ8 <= cni {
			best = e.ModcodID
			found = true
		} else {
			break
		}
	}
	return best, found
}

// Simulation ties a Scenario + DefTable to a Direction and drives the
// per-terminal MODCOD/column/advertisement state.
type Simulation struct {
	Direction Direction
	Defs      *DefTable
	scenario  *Scenario
}

// NewSimulation builds a Simulation for one direction.
func NewSimulation(dir Direction, defs *DefTable, scenario *Scenario) *Simulation {
	return &Simulation{Direction: dir, Defs: defs, scenario: scenario}
}

// AssignColumn picks the column for the ordinal-th logged-on terminal.
// Columns are assigned round-robin over the scenario's width; whether
// a column is already in use is not checked.
func (s *Simulation) AssignColumn(ordinal int) int {
	n := s.scenario.NumColumns()
	if n == 0 {
		return 0
	}
	return ordinal % n
}

// Advance steps the scenario and updates every terminal's MODCOD for
// this direction, flipping the advertisement flag to false on any
// change. It never overrides a terminal carrying a CNI-based
// RequiredModcodOverride -- that value wins until the next scenario
// step, at which point it is consumed and cleared.
func (s *Simulation) Advance(table *terminal.Table) {
	s.scenario.Advance()

	table.Range(func(term *terminal.Terminal) {
		if term.HasRequiredModcodOverride {
			s.apply(term, term.RequiredModcodOverride)
			term.HasRequiredModcodOverride = false
			return
		}

		column := term.FwdColumn
		if s.Direction == Return {
			column = term.RetColumn
		}
		id, ok := s.scenario.Step(column)
		if !ok {
			return
		}
		s.apply(term, id)
	})
}

func (s *Simulation) apply(term *terminal.Terminal, newModcod uint8) {
	if s.Direction == Forward {
		if term.FwdModcod != newModcod {
			term.PrevFwdModcod = term.FwdModcod
			term.FwdModcod = newModcod
			term.Advertised = false
		}
	} else {
		term.RetModcod = newModcod
	}
}

// SetRequiredModcod overrides the forward MODCOD for term from a CNI
// reading, until the next scenario step. Only meaningful for the
// Forward simulation.
func (s *Simulation) SetRequiredModcod(term *terminal.Terminal, modcod uint8) {
	term.RequiredModcodOverride = modcod
	term.HasRequiredModcodOverride = true
}

// MarkAdvertised flips the advertisement flag true once a MODCOD change
// has actually been carried in an emitted BBFrame option.
func MarkAdvertised(term *terminal.Terminal) {
	term.Advertised = true
}
