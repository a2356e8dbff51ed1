// Package pep implements a minimal PEP (Policy Enforcement Point)
// external command channel: SET_RBDC and SET_VBDC ceiling overrides
// applied to the DAMA controller.
package pep

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/charmbracelet/log"

	"github.com/opensand-go/satcore/internal/dama"
	"github.com/opensand-go/satcore/internal/errs"
)

// reconnectInterval is the PEP socket's reconnect interval; it never
// affects core timing.
const reconnectInterval = 5 * time.Second

// Command is one decoded PEP line: "SET_RBDC tal_id kbps" or
// "SET_VBDC tal_id pkts".
type Command struct {
	TalID   uint16
	RBDC    bool
	Value   int
}

// ParseCommand decodes one newline-terminated PEP command line.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return Command{}, errs.New(errs.Protocol, "pep", "malformed PEP command: "+line)
	}
	talID, err1 := strconv.ParseUint(fields[1], 10, 16)
	value, err2 := strconv.Atoi(fields[2])
	if err1 != nil || err2 != nil {
		return Command{}, errs.New(errs.Protocol, "pep", "malformed PEP command fields: "+line)
	}

	switch fields[0] {
	case "SET_RBDC":
		return Command{TalID: uint16(talID), RBDC: true, Value: value}, nil
	case "SET_VBDC":
		return Command{TalID: uint16(talID), RBDC: false, Value: value}, nil
	default:
		return Command{}, errs.New(errs.Protocol, "pep", "unknown PEP command: "+fields[0])
	}
}

// Client maintains the PEP connection, reconnecting at reconnectInterval
// on failure. Apply is called once per decoded command; a
// ResourceConflict error from the controller is logged and the
// connection continues (the command is rejected, not fatal).
type Client struct {
	Addr       string
	Controller *dama.Controller
	Logger     *log.Logger

	limiter *rate.Limiter
}

// NewClient builds a PEP client dialing addr, applying accepted
// commands to ctrl.
func NewClient(addr string, ctrl *dama.Controller, logger *log.Logger) *Client {
	return &Client{
		Addr:       addr,
		Controller: ctrl,
		Logger:     logger,
		limiter:    rate.NewLimiter(rate.Every(reconnectInterval), 1),
	}
}

// Run connects to Addr and processes commands until ctx is cancelled,
// reconnecting at reconnectInterval after every disconnect or dial
// failure.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}

		conn, err := net.Dial("tcp", c.Addr)
		if err != nil {
			c.Logger.Warn("pep dial failed, retrying", "addr", c.Addr, "err", err)
			continue
		}

		c.serve(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Client) serve(ctx context.Context, conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cmd, err := ParseCommand(scanner.Text())
		if err != nil {
			c.Logger.Warn("dropping malformed pep command", "err", err)
			continue
		}
		if err := c.Apply(cmd); err != nil {
			c.Logger.Warn("pep command rejected", "tal_id", cmd.TalID, "err", err)
		}
	}
}

// Apply applies one decoded command to the DAMA controller, preserving
// the ceiling the command does not name (only one of RBDC/VBDC is ever
// set by a single PEP command).
func (c *Client) Apply(cmd Command) error {
	rbdc, vbdc, err := c.Controller.Ceilings(cmd.TalID)
	if err != nil {
		return err
	}
	if cmd.RBDC {
		rbdc = cmd.Value
	} else {
		vbdc = cmd.Value
	}
	return c.Controller.ApplyPepCommand(cmd.TalID, rbdc, vbdc)
}
