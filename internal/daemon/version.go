package daemon

import (
	"fmt"
	"runtime/debug"
)

// Set at build time via `-ldflags "-X '.../internal/daemon.Version=X'"`.
var Version string

func buildSettingOrDefault(bi *debug.BuildInfo, key, defaultValue string) string {
	if bi == nil {
		return defaultValue
	}
	for _, bs := range bi.Settings {
		if bs.Key == key {
			return bs.Value
		}
	}
	return defaultValue
}

// PrintVersion prints name's version line: the injected Version string
// if present, otherwise whatever the module build info carries, plus
// the vcs revision with a -DIRTY marker on a modified tree.
func PrintVersion(name string) {
	bi, _ := debug.ReadBuildInfo()

	commit := buildSettingOrDefault(bi, "vcs.revision", "UNKNOWN")
	if dirty := buildSettingOrDefault(bi, "vcs.modified", "false"); dirty == "true" {
		commit += "-DIRTY"
	}

	version := Version
	if version == "" && bi != nil {
		version = bi.Main.Version
	}
	if version == "" {
		version = "UNKNOWN"
	}

	fmt.Printf("%s %s (%s)\n", name, version, commit)
}
