// Package daemon carries the pieces shared by the three entry points
// (cmd/gwd, cmd/std, cmd/satd): the single-goroutine event loop that
// multiplexes inbound carrier traffic with the millisecond clock, the
// sat-carrier socket wiring derived from config.NetworkConfig, and the
// Prometheus scrape endpoint.
package daemon

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensand-go/satcore/internal/config"
	"github.com/opensand-go/satcore/internal/transport"
)

// Inbound is one frame received on a carrier, handed to the block on
// the loop goroutine.
type Inbound struct {
	CarrierID uint8
	Buf       []byte
}

// Sockets is the opened sat-carrier endpoints of one daemon: all block
// access stays on the Run loop's goroutine; only the reader goroutines
// feeding In run concurrently, and they touch nothing but their own
// socket and the channel.
type Sockets struct {
	In      chan Inbound
	senders map[uint8]*transport.Carrier
	readers []*transport.Listener
}

// OpenSockets dials every carrier with a remote address and listens on
// every carrier without one, starting one reader goroutine per
// listener.
func OpenSockets(net config.NetworkConfig) (*Sockets, error) {
	s := &Sockets{
		In:      make(chan Inbound, 256),
		senders: make(map[uint8]*transport.Carrier),
	}
	for _, ca := range net.Carriers {
		if ca.Remote != "" {
			c, err := transport.Dial(ca.CarrierID, ca.Local, ca.Remote)
			if err != nil {
				s.Close()
				return nil, err
			}
			s.senders[ca.CarrierID] = c
			continue
		}
		l, err := transport.Listen(ca.CarrierID, ca.Local)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.readers = append(s.readers, l)
		go func(l *transport.Listener) {
			for {
				buf, err := l.ReadFrame()
				if err != nil {
					return
				}
				s.In <- Inbound{CarrierID: l.CarrierID, Buf: buf}
			}
		}(l)
	}
	return s, nil
}

// Emit sends buf on carrierID's outbound socket. A carrier with no
// configured endpoint is silently absorbed -- single-process test
// deployments routinely configure only the carriers they exercise.
func (s *Sockets) Emit(carrierID uint8, buf []byte) error {
	c, ok := s.senders[carrierID]
	if !ok {
		return nil
	}
	return c.Send(buf)
}

// Close releases every socket.
func (s *Sockets) Close() {
	for _, c := range s.senders {
		c.Close()
	}
	for _, l := range s.readers {
		l.Close()
	}
}

// Block is the slice of a role block the loop needs.
type Block interface {
	Tick(nowMs int64)
	OnFrameReceived(carrierID uint8, buf []byte)
}

// Run drives blk until ctx is cancelled: inbound frames are enqueued as
// they arrive, and the block's channels tick once per millisecond --
// the resolution every timer duration is expressed in.
func Run(ctx context.Context, blk Block, in <-chan Inbound) error {
	start := time.Now()
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ib := <-in:
			blk.OnFrameReceived(ib.CarrierID, ib.Buf)
		case <-ticker.C:
			blk.Tick(time.Since(start).Milliseconds())
		}
	}
}

// ServeTelemetry exposes reg on addr's /metrics until the process
// exits. Scrape failures never touch the block loop.
func ServeTelemetry(addr string, reg *prometheus.Registry, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("telemetry listener failed", "addr", addr, "err", err)
		}
	}()
}
