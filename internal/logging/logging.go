// Package logging provides the block-tagged logger used by every channel
// in the core.
//
// One *log.Logger per block, each carrying a "role" and "id" field so
// that interleaved Upward/Downward output from several blocks stays
// attributable without a mutex-guarded global.
package logging

import (
	"os"

	"github.com/charmbracelet/log"
)

// Role identifies which of the three network roles a block plays.
type Role string

const (
	RoleGW  Role = "gw"
	RoleST  Role = "st"
	RoleSAT Role = "sat"
)

// New returns a logger tagged with role and id, writing to stderr so that
// stdout stays free for any interactive use of the daemons.
func New(role Role, id int) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
		Prefix:          string(role),
	})
	l.SetLevel(log.InfoLevel)
	return l.With("role", role, "id", id)
}

// SetVerbose raises l to Debug level when verbose is true; other loggers
// created from New keep their level. Callers pass the flag parsed from
// -v/--verbose.
func SetVerbose(l *log.Logger, verbose bool) {
	if verbose {
		l.SetLevel(log.DebugLevel)
	}
}
