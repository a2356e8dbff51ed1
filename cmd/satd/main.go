// satd is the satellite payload daemon: a transparent bent pipe with
// emulated propagation delay, or a regenerative payload that decodes
// return traffic and reschedules forward traffic per spot.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/opensand-go/satcore/internal/band"
	"github.com/opensand-go/satcore/internal/block"
	"github.com/opensand-go/satcore/internal/config"
	"github.com/opensand-go/satcore/internal/daemon"
	"github.com/opensand-go/satcore/internal/fmtsim"
	"github.com/opensand-go/satcore/internal/logging"
)

func main() {
	var (
		configPath  = pflag.StringP("config", "c", "satd.yaml", "configuration file")
		verbose     = pflag.BoolP("verbose", "v", false, "debug logging")
		showVersion = pflag.Bool("version", false, "print version and exit")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: satd -c <config.yaml>\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *showVersion {
		daemon.PrintVersion("satd")
		return
	}

	logger := logging.New(logging.RoleSAT, 0)
	logging.SetVerbose(logger, *verbose)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("configuration", "err", err)
	}
	plan, err := band.Build(cfg)
	if err != nil {
		logger.Fatal("band plan", "err", err)
	}

	// Only a regenerative payload schedules BBFrames of its own, so only
	// it needs MODCOD definitions and a forward scenario.
	var (
		defs   *fmtsim.DefTable
		fwdSim *fmtsim.Simulation
	)
	if cfg.SatelliteType == config.Regenerative {
		defs, err = fmtsim.LoadDefTable(cfg.ModcodDefFilePathFwd)
		if err != nil {
			logger.Fatal("modcod definitions", "err", err)
		}
		scen, err := fmtsim.LoadScenario(cfg.ModcodTimeSeriesPathFwd)
		if err != nil {
			logger.Fatal("forward scenario", "err", err)
		}
		fwdSim = fmtsim.NewSimulation(fmtsim.Forward, defs, scen)
	}

	sat := block.NewSAT(cfg, plan, defs, fwdSim, logger)

	sockets, err := daemon.OpenSockets(cfg.Network)
	if err != nil {
		logger.Fatal("sat-carrier sockets", "err", err)
	}
	defer sockets.Close()
	sat.Emit = sockets.Emit

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("satellite up", "type", cfg.SatelliteType, "delay_ms", cfg.SatDelayMs)
	if err := daemon.Run(ctx, sat, sockets.In); err != nil && ctx.Err() == nil {
		logger.Fatal("event loop", "err", err)
	}
}
