// std is the Satellite Terminal daemon: it logs on to the NCC, emits
// capacity requests on its OBR slot, and schedules return traffic
// against the allocations its TTPs grant.
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
	"github.com/opensand-go/satcore/internal/logging"
)

func main() {
	var (
		configPath  = pflag.StringP("config", "c", "std.yaml", "configuration file")
		spotID      = pflag.Uint8("spot-id", 1, "spot this terminal belongs to")
		gwID        = pflag.Uint8("gw-id", 0, "gateway this terminal logs on to")
		verbose     = pflag.BoolP("verbose", "v", false, "debug logging")
		showVersion = pflag.Bool("version", false, "print version and exit")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: std -c <config.yaml> [--spot-id N] [--gw-id N]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *showVersion {
		daemon.PrintVersion("std")
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.Terminal == nil {
		fmt.Fprintln(os.Stderr, "std: configuration has no terminal section")
		os.Exit(1)
	}

	logger := logging.New(logging.RoleST, int(cfg.Terminal.TalID))
	logging.SetVerbose(logger, *verbose)

	plan, err := band.Build(cfg)
	if err != nil {
		logger.Fatal("band plan", "err", err)
	}

	st := block.NewST(cfg, plan, *spotID, *gwID, logger)

	sockets, err := daemon.OpenSockets(cfg.Network)
	if err != nil {
		logger.Fatal("sat-carrier sockets", "err", err)
	}
	defer sockets.Close()
	st.Emit = sockets.Emit

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("terminal up", "tal_id", cfg.Terminal.TalID, "spot", *spotID)
	if err := daemon.Run(ctx, st, sockets.In); err != nil && ctx.Err() == nil {
		logger.Fatal("event loop", "err", err)
	}
}
