package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lestrrat-go/strftime"

	"github.com/opensand-go/satcore/internal/errs"
)

// ProbeWriter periodically snapshots a Collector's gauges to a CSV
// file, rotating to a freshly-named file on every snapshot -- a flat
// CSV per snapshot instead of a single growing file, so a run's
// history survives a crash mid-write.
type ProbeWriter struct {
	dir     string
	pattern *strftime.Strftime
}

// NewProbeWriter builds a ProbeWriter under dir, naming each snapshot
// file from namePattern (a strftime(3) pattern, e.g.
// "probes-%Y%m%d-%H%M%S.csv").
func NewProbeWriter(dir, namePattern string) (*ProbeWriter, error) {
	p, err := strftime.New(namePattern)
	if err != nil {
		return nil, errs.Wrap(errs.Config, "telemetry", "invalid probe file name pattern "+namePattern, err)
	}
	return &ProbeWriter{dir: dir, pattern: p}, nil
}

// Snapshot writes one CSV row per (spot, fair_share, cra_overbook_total)
// entry currently held by c, to a freshly-named file under p.dir.
func (p *ProbeWriter) Snapshot(c *Collector, at time.Time) (string, error) {
	name := p.pattern.FormatString(at)
	path := filepath.Join(p.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", errs.Wrap(errs.Internal, "telemetry", "cannot create probe snapshot file "+path, err)
	}
	defer f.Close()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintln(f, "spot,fair_share,cra_overbook_total"); err != nil {
		return "", errs.Wrap(errs.Internal, "telemetry", "writing probe snapshot header", err)
	}
	for label, fs := range c.fairShare {
		if _, err := fmt.Fprintf(f, "%s,%f,%d\n", label, fs, c.craOverbooks[label]); err != nil {
			return "", errs.Wrap(errs.Internal, "telemetry", "writing probe snapshot row", err)
		}
	}
	return path, nil
}
