// Package transport implements the "sat-carrier" UDP transport: each
// carrier id is addressed as one UDP endpoint exchanging already-
// encoded frame bytes between blocks. One datagram carries exactly one
// frame -- frames are already msg_length-prefixed self-describing
// units, so no further stream framing is needed.
package transport

import (
	"net"

	"github.com/opensand-go/satcore/internal/errs"
)

// Carrier is an outbound UDP endpoint for one carrier id.
type Carrier struct {
	CarrierID uint8
	conn      *net.UDPConn
	remote    *net.UDPAddr
}

// Dial opens a UDP socket bound to localAddr, sending to remoteAddr.
func Dial(carrierID uint8, localAddr, remoteAddr string) (*Carrier, error) {
	local, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, errs.Wrap(errs.Config, "transport", "resolving local addr "+localAddr, err)
	}
	remote, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, errs.Wrap(errs.Config, "transport", "resolving remote addr "+remoteAddr, err)
	}
	conn, err := net.DialUDP("udp", local, remote)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "transport", "dialing carrier "+remoteAddr, err)
	}
	return &Carrier{CarrierID: carrierID, conn: conn, remote: remote}, nil
}

// Send writes buf as one UDP datagram.
func (c *Carrier) Send(buf []byte) error {
	if _, err := c.conn.Write(buf); err != nil {
		return errs.Wrap(errs.Internal, "transport", "sending on carrier", err)
	}
	return nil
}

func (c *Carrier) Close() error { return c.conn.Close() }

// MaxDatagramBytes bounds one read -- large enough for the widest
// frame this testbed produces (a full BBFrame at MSG_BBFRAME_SIZE_MAX,
// header included).
const MaxDatagramBytes = 8192 + 64

// Listener is an inbound UDP endpoint for one carrier id.
type Listener struct {
	CarrierID uint8
	conn      *net.UDPConn
}

// Listen opens a UDP socket bound to localAddr, receiving carrierID's
// traffic.
func Listen(carrierID uint8, localAddr string) (*Listener, error) {
	local, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, errs.Wrap(errs.Config, "transport", "resolving local addr "+localAddr, err)
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "transport", "listening for carrier "+localAddr, err)
	}
	return &Listener{CarrierID: carrierID, conn: conn}, nil
}

// LocalAddr reports the address the socket actually bound, needed when
// the configuration asked for an ephemeral port.
func (l *Listener) LocalAddr() string { return l.conn.LocalAddr().String() }

// ReadFrame blocks for the next datagram and returns its payload.
func (l *Listener) ReadFrame() ([]byte, error) {
	buf := make([]byte, MaxDatagramBytes)
	n, err := l.conn.Read(buf)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "transport", "reading carrier datagram", err)
	}
	return buf[:n], nil
}

func (l *Listener) Close() error { return l.conn.Close() }
