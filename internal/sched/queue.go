// Package sched implements the forward DVB-S2 BBFrame scheduler and
// the return DVB-RCS scheduler.
//
// Both schedulers drain an internal/fifo.FIFO of already-addressed,
// already-encapsulated packets -- the encapsulation plug-in stack
// lives outside the core -- so the only contract sched needs from it
// is a destination tal_id per packet. EncodeQueued/DecodeQueued stamp
// that addressing as a 2-byte big-endian tal_id prefix, keeping the
// FIFO itself oblivious to packet structure.
package sched

import "encoding/binary"

// EncodeQueued prefixes data with talID for FIFO storage.
func EncodeQueued(talID uint16, data []byte) []byte {
	out := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(out[0:2], talID)
	copy(out[2:], data)
	return out
}

// DecodeQueued splits a FIFO payload back into its destination tal_id
// and packet data. ok is false if payload is shorter than the prefix.
func DecodeQueued(payload []byte) (talID uint16, data []byte, ok bool) {
	if len(payload) < 2 {
		return 0, nil, false
	}
	return binary.BigEndian.Uint16(payload[0:2]), payload[2:], true
}
