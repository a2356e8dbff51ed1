// gwd is the Gateway/NCC daemon: it runs the superframe timeline, the
// Legacy DAMA controller, and the forward BBFrame scheduler for every
// spot its gateway id owns.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/opensand-go/satcore/internal/band"
	"github.com/opensand-go/satcore/internal/block"
	"github.com/opensand-go/satcore/internal/config"
	"github.com/opensand-go/satcore/internal/daemon"
	"github.com/opensand-go/satcore/internal/fmtsim"
	"github.com/opensand-go/satcore/internal/logging"
	"github.com/opensand-go/satcore/internal/pep"
	"github.com/opensand-go/satcore/internal/qosserver"
	"github.com/opensand-go/satcore/internal/telemetry"
)

func main() {
	var (
		configPath  = pflag.StringP("config", "c", "gwd.yaml", "configuration file")
		gwID        = pflag.Uint8("gw-id", 0, "gateway id within the band plan")
		verbose     = pflag.BoolP("verbose", "v", false, "debug logging")
		showVersion = pflag.Bool("version", false, "print version and exit")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: gwd -c <config.yaml> [--gw-id N]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *showVersion {
		daemon.PrintVersion("gwd")
		return
	}

	logger := logging.New(logging.RoleGW, int(*gwID))
	logging.SetVerbose(logger, *verbose)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("configuration", "err", err)
	}
	plan, err := band.Build(cfg)
	if err != nil {
		logger.Fatal("band plan", "err", err)
	}

	defs, err := fmtsim.LoadDefTable(cfg.ModcodDefFilePathFwd)
	if err != nil {
		logger.Fatal("modcod definitions", "err", err)
	}
	fwdScen, err := fmtsim.LoadScenario(cfg.ModcodTimeSeriesPathFwd)
	if err != nil {
		logger.Fatal("forward scenario", "err", err)
	}
	retScen, err := fmtsim.LoadScenario(cfg.ModcodTimeSeriesPathRet)
	if err != nil {
		logger.Fatal("return scenario", "err", err)
	}
	fwdSim := fmtsim.NewSimulation(fmtsim.Forward, defs, fwdScen)
	retSim := fmtsim.NewSimulation(fmtsim.Return, defs, retScen)

	gw := block.NewGateway(cfg, plan, *gwID, defs, fwdSim, retSim, logger)

	collector := telemetry.NewCollector()
	for _, spot := range cfg.Spots {
		if fwd, ok := gw.ForwardScheduler(spot.SpotID); ok {
			collector.AttachSpot(fmt.Sprintf("spot%d", spot.SpotID), fwd, nil)
		}
	}
	gw.Telemetry = collector
	if cfg.Network.TelemetryAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collector)
		daemon.ServeTelemetry(cfg.Network.TelemetryAddr, reg, logger)
	}

	if cfg.Network.QosServerAddr != "" {
		gw.QoS = qosserver.NewReporter(cfg.Network.QosServerAddr, logger)
		defer gw.QoS.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Network.PepAddr != "" && len(cfg.Spots) > 0 {
		// PEP ceiling overrides address terminals by tal_id; the first
		// spot's controller is the one commands are applied to.
		if ctrl, ok := gw.Controller(cfg.Spots[0].SpotID); ok {
			go pep.NewClient(cfg.Network.PepAddr, ctrl, logger).Run(ctx)
		}
	}

	sockets, err := daemon.OpenSockets(cfg.Network)
	if err != nil {
		logger.Fatal("sat-carrier sockets", "err", err)
	}
	defer sockets.Close()
	gw.Emit = sockets.Emit

	logger.Info("gateway up", "spots", len(cfg.Spots))
	if err := daemon.Run(ctx, gw, sockets.In); err != nil && ctx.Err() == nil {
		logger.Fatal("event loop", "err", err)
	}
}
