// Package qosserver implements a minimal QoS-Server side channel. The
// NCC reports its per-terminal allocation after every superframe; the
// channel is advisory only -- a dial or write failure is logged and
// never fails the superframe.
package qosserver

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/charmbracelet/log"

	"github.com/opensand-go/satcore/internal/dama"
	"github.com/opensand-go/satcore/internal/errs"
)

// reconnectInterval mirrors internal/pep's.
const reconnectInterval = 5 * time.Second

// Reporter pushes one line per terminal allocation to the QoS-Server
// after every superframe, reconnecting on failure. Report runs on the
// caller's goroutine and has no send queue: a dial or write blocks the
// caller until it completes or fails.
type Reporter struct {
	Addr   string
	Logger *log.Logger

	conn    net.Conn
	limiter *rate.Limiter
}

// NewReporter builds a Reporter targeting addr.
func NewReporter(addr string, logger *log.Logger) *Reporter {
	return &Reporter{
		Addr:    addr,
		Logger:  logger,
		limiter: rate.NewLimiter(rate.Every(reconnectInterval), 1),
	}
}

// Report writes one line per allocation to the current connection,
// attempting a reconnect (rate-limited to reconnectInterval) if none is
// open. A write or dial failure is logged and swallowed -- this channel
// is advisory, never fatal to the superframe it reports on.
func (r *Reporter) Report(ctx context.Context, superFrameCounter uint16, allocs []dama.Allocation) {
	if r.conn == nil {
		if !r.limiter.Allow() {
			return
		}
		conn, err := net.Dial("tcp", r.Addr)
		if err != nil {
			r.Logger.Warn("qos-server dial failed, will retry", "addr", r.Addr, "err", err)
			return
		}
		r.conn = conn
	}

	for _, a := range allocs {
		line := fmt.Sprintf("sf=%d tal_id=%d pkts_alloc=%d\n", superFrameCounter, a.TalID, a.PktsAlloc)
		if _, err := r.conn.Write([]byte(line)); err != nil {
			r.Logger.Warn("qos-server write failed, dropping connection", "err", err)
			r.conn.Close()
			r.conn = nil
			return
		}
	}
}

// Close releases the reporter's connection, if any.
func (r *Reporter) Close() error {
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	if err != nil {
		return errs.Wrap(errs.Internal, "qosserver", "closing connection", err)
	}
	return nil
}
