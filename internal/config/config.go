// Package config loads the one YAML configuration file a run is
// started with: a single Root unmarshaled once at startup and
// validated before any block starts.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opensand-go/satcore/internal/errs"
)

// SatelliteType selects whether the SAT block bent-pipes or decodes.
type SatelliteType string

const (
	Transparent  SatelliteType = "TRANSPARENT"
	Regenerative SatelliteType = "REGENERATIVE"
)

// AccessType names how a carrier group or FIFO is scheduled.
type AccessType string

const (
	AccessTDM   AccessType = "TDM"
	AccessDAMA  AccessType = "DAMA"
	AccessAloha AccessType = "ALOHA"
)

// CarrierGroup is one row of a forward_band/return_band carrier plan.
type CarrierGroup struct {
	CarrierID      uint8      `yaml:"carrier_id"`
	Category       string     `yaml:"category"`
	Ratio          int        `yaml:"ratio"`
	SymbolRateSyps int        `yaml:"symbol_rate_symps"`
	FMTGroupID     string     `yaml:"fmt_group_id"`
	AccessType     AccessType `yaml:"access_type"`
}

// GWBand is the per-GW forward and return carrier plan within a spot.
//
// Besides the data-bearing forward_band/return_band carrier groups,
// every GW also owns three single-carrier roles: the Start-of-Frame
// beacon, the TTP/SoF control downlink, and the logon-response
// carrier. They are listed explicitly rather than derived from
// forward_band/return_band, since no access-type/role combination in
// those lists can stand in for them.
type GWBand struct {
	GWID        uint8          `yaml:"gw_id"`
	ForwardBand []CarrierGroup `yaml:"forward_band"`
	ReturnBand  []CarrierGroup `yaml:"return_band"`

	SoFCarrierID      uint8 `yaml:"sof_carrier_id"`
	CtrlOutCarrierID  uint8 `yaml:"ctrl_out_carrier_id"`
	LogonOutCarrierID uint8 `yaml:"logon_out_carrier_id"`
}

// SpotConfig is the per-spot static topology loaded at startup.
type SpotConfig struct {
	SpotID uint8    `yaml:"spot_id"`
	GWs    []GWBand `yaml:"gws"`
}

// FIFOConfig is one entry of fifo_list.
type FIFOConfig struct {
	Priority   int        `yaml:"priority"`
	Name       string     `yaml:"name"`
	SizePkts   int        `yaml:"size_pkts"`
	AccessType AccessType `yaml:"access_type"`
}

// Root is the whole configuration file, unmarshaled once at startup.
type Root struct {
	SatelliteType SatelliteType `yaml:"satellite_type"`
	SatDelayMs    int           `yaml:"sat_delay_ms"`

	FwdDownFrameDurationMs int `yaml:"fwd_down_frame_duration_ms"`
	RetUpFrameDurationMs   int `yaml:"ret_up_frame_duration_ms"`
	DvbScenarioRefreshMs   int `yaml:"dvb_scenario_refresh_ms"`
	SyncPeriodMs           int `yaml:"sync_period_ms"`
	OBRPeriodFrames        int `yaml:"obr_period_frames"`

	WithPhyLayer bool   `yaml:"with_phy_layer"`
	DamaAlgo     string `yaml:"dama_algo"`

	Spots []SpotConfig `yaml:"spots"`

	FIFOList []FIFOConfig `yaml:"fifo_list"`

	ModcodDefFilePathFwd    string `yaml:"modcod_def_file_path_fwd"`
	ModcodDefFilePathRet    string `yaml:"modcod_def_file_path_ret"`
	ModcodTimeSeriesPathFwd string `yaml:"modcod_time_series_file_path_fwd"`
	ModcodTimeSeriesPathRet string `yaml:"modcod_time_series_file_path_ret"`

	FCAKbps     int  `yaml:"fca_kbps"`
	CRADecrease bool `yaml:"cra_decrease"`

	// ReturnPacketSizeBytes is the fixed encapsulated-packet size the
	// return-link DAMA converter and physical layer agree on: the
	// RBDC/VBDC conversions and the DvbRcsFrame decode both need it.
	ReturnPacketSizeBytes int `yaml:"return_packet_size_bytes"`

	// MinVBDCPkts and FCAChunkPkts parameterize the Legacy DAMA
	// algorithm; fca_kbps above is converted through the return
	// converter to get FCAChunkPkts.
	MinVBDCPkts int `yaml:"min_vbdc_pkts"`

	// Terminal identity, only present in an ST's own configuration file.
	Terminal *TerminalConfig `yaml:"terminal,omitempty"`

	// Network is where each carrier, control channel, and telemetry
	// endpoint binds or dials; transport addressing belongs to the
	// deployment, not to the band plan.
	Network NetworkConfig `yaml:"network"`
}

// CarrierAddr is one carrier's local bind address and, for a carrier an
// ST or GW dials out on, the remote address it sends to.
type CarrierAddr struct {
	CarrierID uint8  `yaml:"carrier_id"`
	Local     string `yaml:"local"`
	Remote    string `yaml:"remote,omitempty"`
}

// NetworkConfig collects every socket address a daemon needs at
// startup: per-carrier UDP endpoints, the PEP/QoS-Server TCP side
// channels, and the Prometheus scrape listener.
type NetworkConfig struct {
	Carriers       []CarrierAddr `yaml:"carriers"`
	PepAddr        string        `yaml:"pep_addr,omitempty"`
	QosServerAddr  string        `yaml:"qos_server_addr,omitempty"`
	TelemetryAddr  string        `yaml:"telemetry_addr,omitempty"`
	ProbeOutputDir string        `yaml:"probe_output_dir,omitempty"`
}

// TerminalConfig is the logon profile an ST presents to the NCC.
type TerminalConfig struct {
	TalID       uint16 `yaml:"tal_id"`
	MAC         uint16 `yaml:"mac"`
	CRAKbps     uint16 `yaml:"cra_kbps"`
	MaxRBDCKbps uint16 `yaml:"max_rbdc_kbps"`
	MaxVBDCPkts uint16 `yaml:"max_vbdc_pkts"`
	Category    string `yaml:"category"`
}

// Load reads and validates path, returning a *errs.Error of kind Config
// on any problem -- missing file, malformed YAML, or a failed Validate.
func Load(path string) (*Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.Config, "config", "cannot read "+path, err)
	}

	var root Root
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errs.Wrap(errs.Config, "config", "cannot parse "+path, err)
	}

	if err := root.Validate(); err != nil {
		return nil, err
	}

	return &root, nil
}

// Validate checks the cross-field invariants the loader cannot express
// as YAML schema alone: durations must be positive, the satellite type
// must be recognized, and a DAMA algorithm other than Legacy is
// rejected (the core implements only the Legacy variant).
func (r *Root) Validate() error {
	if r.SatelliteType != Transparent && r.SatelliteType != Regenerative {
		return errs.New(errs.Config, "config", fmt.Sprintf("satellite_type: unrecognized %q", r.SatelliteType))
	}
	if r.FwdDownFrameDurationMs <= 0 {
		return errs.New(errs.Config, "config", "fwd_down_frame_duration_ms must be positive")
	}
	if r.RetUpFrameDurationMs <= 0 {
		return errs.New(errs.Config, "config", "ret_up_frame_duration_ms must be positive")
	}
	if r.DvbScenarioRefreshMs <= 0 {
		return errs.New(errs.Config, "config", "dvb_scenario_refresh_ms must be positive")
	}
	if r.DamaAlgo != "" && r.DamaAlgo != "Legacy" {
		return errs.New(errs.Config, "config", fmt.Sprintf("dama_algo: unsupported %q (only Legacy)", r.DamaAlgo))
	}
	if r.OBRPeriodFrames < 0 {
		return errs.New(errs.Config, "config", "obr_period_frames must not be negative")
	}
	for _, s := range r.Spots {
		if len(s.GWs) == 0 {
			return errs.New(errs.Config, "config", fmt.Sprintf("spot %d: no GWs configured", s.SpotID))
		}
	}
	return nil
}

// Carrier looks up a carrier's configured addresses by id.
func (n NetworkConfig) Carrier(carrierID uint8) (CarrierAddr, bool) {
	for _, c := range n.Carriers {
		if c.CarrierID == carrierID {
			return c, true
		}
	}
	return CarrierAddr{}, false
}
