package transport

import (
	"net"

	"golang.org/x/net/netutil"

	"github.com/opensand-go/satcore/internal/errs"
)

// maxControlConns bounds concurrent control connections on a
// ControlListener -- a small fixed ceiling since exactly one peer block
// is expected to hold the channel at a time; the cap exists so a
// leaked, unclosed connection from a prior run can never starve a
// fresh one out.
const maxControlConns = 4

// ControlListener is a TCP side-channel used to coordinate graceful
// shutdown between the two ends of a sat-carrier link (distinct from
// the UDP data plane, which carries frames with no connection state of
// its own to drain).
type ControlListener struct {
	ln net.Listener
}

// ListenControl opens a TCP listener on addr, wrapped with
// netutil.LimitListener so accept never outpaces maxControlConns.
func ListenControl(addr string) (*ControlListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "transport", "listening for control channel on "+addr, err)
	}
	return &ControlListener{ln: netutil.LimitListener(ln, maxControlConns)}, nil
}

// Accept blocks for the next control connection.
func (c *ControlListener) Accept() (net.Conn, error) {
	conn, err := c.ln.Accept()
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "transport", "accepting control connection", err)
	}
	return conn, nil
}

// Close stops accepting and releases the underlying listener, draining
// the accept loop of any blocked caller.
func (c *ControlListener) Close() error { return c.ln.Close() }
