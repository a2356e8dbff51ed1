// Package runtime implements the channel/block event executor. Each
// block is a pair of single-threaded cooperative Channels (Upward,
// Downward) dispatching Message/Timer/Socket events to a handler; the
// two channels of a block never share mutable state directly, only
// typed messages posted across the pair.
package runtime

import (
	"sort"

	"github.com/rs/xid"
)

// EventKind is one of the three event variants.
type EventKind int

const (
	EventMessage EventKind = iota
	EventTimer
	EventSocket
)

// MsgKind tags a Message event's payload.
type MsgKind string

const (
	MsgSig        MsgKind = "sig"
	MsgSaloha     MsgKind = "saloha"
	MsgCNI        MsgKind = "cni"
	MsgEncapBurst MsgKind = "encap-burst"
	MsgLinkUp     MsgKind = "link-up"
)

// Event is one unit of work dispatched to a Handler. CorrelationID is
// stamped fresh on every Post/timer-fire/socket-ready call so a block's
// two channels can be correlated in logs even though they run
// independently.
type Event struct {
	Kind          EventKind
	CorrelationID string

	MsgKind MsgKind
	Payload any

	TimerID int

	FD int
}

// Handler processes one event. It returns false on failure; handlers
// never propagate errors upward -- the return value is used only for
// statistics, never to abort the run.
type Handler func(ev Event) bool

type timer struct {
	id         int
	periodMs   int64
	nextFireMs int64
}

// Channel is one of a block's two cooperative single-threaded
// executors. It is not goroutine-safe: callers
// either run it on its own goroutine or drive it serially from a single
// run loop, matching the "independent single-threaded cooperative
// executors" design.
type Channel struct {
	name    string
	handler Handler

	queue       []Event
	timers      map[int]*timer
	nextTimerID int

	Dropped int
	Failed  int
}

// NewChannel builds a Channel named name, dispatching every event to
// handler.
func NewChannel(name string, handler Handler) *Channel {
	return &Channel{name: name, handler: handler, timers: make(map[int]*timer)}
}

func (c *Channel) Name() string { return c.name }

// Post enqueues a Message event of the given kind, preserving arrival
// order.
func (c *Channel) Post(kind MsgKind, payload any) {
	c.queue = append(c.queue, Event{
		Kind:          EventMessage,
		MsgKind:       kind,
		Payload:       payload,
		CorrelationID: xid.New().String(),
	})
}

// PostSocketReady enqueues a Socket event for fd becoming readable.
// internal/pep and internal/qosserver manage their own connections and
// do not post Socket events.
func (c *Channel) PostSocketReady(fd int) {
	c.queue = append(c.queue, Event{Kind: EventSocket, FD: fd, CorrelationID: xid.New().String()})
}

// ArmTimer allocates a new periodic timer firing every periodMs,
// starting at startMs. The fwd_timer/ret_timer/scenario_timer/sync
// timers are all built this way; handlers see only the opaque id.
func (c *Channel) ArmTimer(periodMs, startMs int64) int {
	id := c.nextTimerID
	c.nextTimerID++
	c.timers[id] = &timer{id: id, periodMs: periodMs, nextFireMs: startMs + periodMs}
	return id
}

// DisarmTimer cancels a previously armed timer -- used once the
// logon-response retry timer's RUNNING condition is reached.
func (c *Channel) DisarmTimer(id int) {
	delete(c.timers, id)
}

// Tick advances the channel's clock to now: every timer due at or
// before now fires (rearmed before dispatch, so handler latency never
// accumulates as drift), in ascending timer-id order for determinism,
// followed by every queued Message/Socket event in arrival order.
func (c *Channel) Tick(now int64) {
	var due []int
	for id, t := range c.timers {
		if t.nextFireMs <= now {
			due = append(due, id)
		}
	}
	sort.Ints(due)
	for _, id := range due {
		t := c.timers[id]
		t.nextFireMs = now + t.periodMs
		c.dispatch(Event{Kind: EventTimer, TimerID: id, CorrelationID: xid.New().String()})
	}

	q := c.queue
	c.queue = nil
	for _, ev := range q {
		c.dispatch(ev)
	}
}

// QueueLen reports the number of events currently queued;
// internal/telemetry does not export it.
func (c *Channel) QueueLen() int { return len(c.queue) }

func (c *Channel) dispatch(ev Event) {
	if !c.handler(ev) {
		c.Failed++
	}
}

// Block pairs one Upward and one Downward Channel. The two channels
// never touch each other's state directly; ShareUpToDown/ShareDownToUp
// are the only crossing point.
type Block struct {
	Name     string
	Upward   *Channel
	Downward *Channel
}

// NewBlock builds a Block with independently-handled Upward/Downward
// channels.
func NewBlock(name string, upHandler, downHandler Handler) *Block {
	return &Block{
		Name:     name,
		Upward:   NewChannel(name+"-up", upHandler),
		Downward: NewChannel(name+"-down", downHandler),
	}
}

// ShareUpToDown posts a message from the Upward channel to the
// Downward channel, preserving send order.
func (b *Block) ShareUpToDown(kind MsgKind, payload any) { b.Downward.Post(kind, payload) }

// ShareDownToUp posts a message from the Downward channel to the
// Upward channel, preserving send order.
func (b *Block) ShareDownToUp(kind MsgKind, payload any) { b.Upward.Post(kind, payload) }

// Tick advances both of the block's channels to now.
func (b *Block) Tick(now int64) {
	b.Upward.Tick(now)
	b.Downward.Tick(now)
}
