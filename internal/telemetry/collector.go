// Package telemetry implements the stats/probe façade, exposed as a
// custom prometheus.Collector. Scheduler drop counters and FIFO
// backlogs are sampled live on every scrape from the attached
// sched.*Scheduler/fifo.FIFO instances; the DAMA fair-share ratio and
// CRA-overbook count are the values last recorded by RecordSuperFrame.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opensand-go/satcore/internal/dama"
	"github.com/opensand-go/satcore/internal/fifo"
	"github.com/opensand-go/satcore/internal/sched"
)

var (
	fairShareDesc = prometheus.NewDesc(
		"dama_fair_share_ratio", "Last RBDC fair-share ratio computed for a spot/gw.",
		[]string{"spot"}, nil)
	craOverbookDesc = prometheus.NewDesc(
		"dama_cra_overbook_total", "Count of superframes where total CRA exceeded band capacity.",
		[]string{"spot"}, nil)

	fwdDroppedUnknownTerminalDesc = prometheus.NewDesc(
		"fwd_sched_dropped_unknown_terminal_total", "Forward packets dropped: destination tal_id not registered.",
		[]string{"spot"}, nil)
	fwdDroppedUnsupportedMCDDesc = prometheus.NewDesc(
		"fwd_sched_dropped_unsupported_modcod_total", "Forward packets dropped: no MODCOD definition for the terminal's assigned MODCOD.",
		[]string{"spot"}, nil)
	fwdDroppedOversizeDesc = prometheus.NewDesc(
		"fwd_sched_dropped_oversize_total", "Forward packets dropped: too large for any BBFrame of their MODCOD.",
		[]string{"spot"}, nil)
	fwdDroppedSubMinFragmentDesc = prometheus.NewDesc(
		"fwd_sched_dropped_sub_min_fragment_total", "Forward packet tails dropped: refragmented remainder below the minimum fragment size.",
		[]string{"spot"}, nil)

	retDroppedOversizeDesc = prometheus.NewDesc(
		"ret_sched_dropped_oversize_total", "Return packets dropped: too large for the configured DVB-RCS frame size.",
		[]string{"spot"}, nil)

	fifoBacklogBytesDesc = prometheus.NewDesc(
		"fifo_backlog_bytes", "Bytes currently queued in a FIFO, regardless of readiness.",
		[]string{"fifo"}, nil)
	fifoBacklogCountDesc = prometheus.NewDesc(
		"fifo_backlog_elements", "Elements currently queued in a FIFO, regardless of readiness.",
		[]string{"fifo"}, nil)
)

type spotEntry struct {
	label string
	fwd   *sched.ForwardScheduler
	ret   *sched.ReturnScheduler
}

// Collector is the single prometheus.Collector registered for a
// running block; one instance serves every spot it is attached to.
type Collector struct {
	mu sync.Mutex

	spots        []spotEntry
	fifos        map[string]*fifo.FIFO
	fairShare    map[string]float64
	craOverbooks map[string]int
}

// NewCollector builds an empty Collector, ready to register with a
// prometheus.Registry.
func NewCollector() *Collector {
	return &Collector{
		fifos:        make(map[string]*fifo.FIFO),
		fairShare:    make(map[string]float64),
		craOverbooks: make(map[string]int),
	}
}

// AttachSpot registers a spot's schedulers under label (typically
// "spot<N>"), read live on every Collect.
func (c *Collector) AttachSpot(label string, fwd *sched.ForwardScheduler, ret *sched.ReturnScheduler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spots = append(c.spots, spotEntry{label: label, fwd: fwd, ret: ret})
}

// AttachFIFO registers f under label for backlog gauges.
func (c *Collector) AttachFIFO(label string, f *fifo.FIFO) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fifos[label] = f
}

// RecordSuperFrame updates label's fair-share gauge and bumps its
// CRA-overbook counter from a just-completed dama.Controller pass --
// every clamp event is counted, not just the final allocation.
func (c *Collector) RecordSuperFrame(label string, ctrl *dama.Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fairShare[label] = ctrl.LastFairShare
	if ctrl.LastCRAOverbook {
		c.craOverbooks[label]++
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- fairShareDesc
	ch <- craOverbookDesc
	ch <- fwdDroppedUnknownTerminalDesc
	ch <- fwdDroppedUnsupportedMCDDesc
	ch <- fwdDroppedOversizeDesc
	ch <- fwdDroppedSubMinFragmentDesc
	ch <- retDroppedOversizeDesc
	ch <- fifoBacklogBytesDesc
	ch <- fifoBacklogCountDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for label, v := range c.fairShare {
		ch <- prometheus.MustNewConstMetric(fairShareDesc, prometheus.GaugeValue, v, label)
	}
	for label, v := range c.craOverbooks {
		ch <- prometheus.MustNewConstMetric(craOverbookDesc, prometheus.CounterValue, float64(v), label)
	}

	for _, e := range c.spots {
		if e.fwd != nil {
			ch <- prometheus.MustNewConstMetric(fwdDroppedUnknownTerminalDesc, prometheus.CounterValue, float64(e.fwd.DroppedUnknownTerminal), e.label)
			ch <- prometheus.MustNewConstMetric(fwdDroppedUnsupportedMCDDesc, prometheus.CounterValue, float64(e.fwd.DroppedUnsupportedMCD), e.label)
			ch <- prometheus.MustNewConstMetric(fwdDroppedOversizeDesc, prometheus.CounterValue, float64(e.fwd.DroppedOversizePacket), e.label)
			ch <- prometheus.MustNewConstMetric(fwdDroppedSubMinFragmentDesc, prometheus.CounterValue, float64(e.fwd.DroppedSubMinFragment), e.label)
		}
		if e.ret != nil {
			ch <- prometheus.MustNewConstMetric(retDroppedOversizeDesc, prometheus.CounterValue, float64(e.ret.DroppedOversizePacket), e.label)
		}
	}

	for label, f := range c.fifos {
		ch <- prometheus.MustNewConstMetric(fifoBacklogBytesDesc, prometheus.GaugeValue, float64(f.BacklogBytes()), label)
		ch <- prometheus.MustNewConstMetric(fifoBacklogCountDesc, prometheus.GaugeValue, float64(f.BacklogCount()), label)
	}
}
