package physt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensand-go/satcore/internal/frame"
)

func TestRcsStdDecodesPackets(t *testing.T) {
	r := NewRcsStd(4) // 2-byte tal prefix + 2 bytes data
	packet := []byte{0x00, 0x05, 0xAA, 0xBB}
	f := &frame.DvbRcsFrame{QtyElement: 1, Payload: packet}
	buf := f.Encode()

	pkts, err := r.OnReceiveFrame(buf)
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	assert.Equal(t, uint16(5), pkts[0].DestTalID)
	assert.Equal(t, packet[2:], pkts[0].Data)
}

func TestRcsStdCorruptedFrameYieldsNoPackets(t *testing.T) {
	r := NewRcsStd(4)
	f := &frame.DvbRcsFrame{QtyElement: 1, Payload: []byte{0, 5, 1, 2}}
	buf := f.Encode()
	buf[0] = byte(frame.MsgCorrupted)

	pkts, err := r.OnReceiveFrame(buf)
	require.NoError(t, err)
	assert.Nil(t, pkts)
	assert.Equal(t, 1, r.CorruptedCount)
}

func TestS2StdLearnsRecognizedModcodFromOption(t *testing.T) {
	s := NewS2Std()

	// GW announces the upcoming MODCOD 7 while still using MODCOD 3.
	bb := &frame.BBFrame{
		UsedModcod:     3,
		RealModcodOpts: []frame.RealModcodOption{{TalID: 9, RealModcod: 7}},
		Payload:        []byte("x"),
	}
	pkts, err := s.OnReceiveFrame(bb.Encode())
	require.NoError(t, err)
	assert.Len(t, pkts, 1)
	assert.Equal(t, uint8(3), s.GetReceivedModcod())

	// Next tick GW uses MODCOD 7, now recognized -- accepted.
	bb2 := &frame.BBFrame{UsedModcod: 7, Payload: []byte("y")}
	pkts, err = s.OnReceiveFrame(bb2.Encode())
	require.NoError(t, err)
	assert.Len(t, pkts, 1)
	assert.Equal(t, uint8(7), s.GetReceivedModcod())
}

func TestS2StdDropsFrameAboveRecognizedModcod(t *testing.T) {
	s := NewS2Std()
	bb := &frame.BBFrame{
		UsedModcod:     3,
		RealModcodOpts: []frame.RealModcodOption{{TalID: 9, RealModcod: 3}},
		Payload:        []byte("x"),
	}
	_, err := s.OnReceiveFrame(bb.Encode())
	require.NoError(t, err)

	// A stray frame using a higher MODCOD than was ever advertised
	// must be dropped as an emulated physical loss, not delivered.
	bb2 := &frame.BBFrame{UsedModcod: 9, Payload: []byte("z")}
	pkts, err := s.OnReceiveFrame(bb2.Encode())
	require.NoError(t, err)
	assert.Nil(t, pkts)
	assert.Equal(t, 1, s.DroppedByModcod)
}

func TestS2StdCorruptedFrameUpdatesCounterOnly(t *testing.T) {
	s := NewS2Std()
	bb := &frame.BBFrame{UsedModcod: 4, Payload: []byte("x")}
	buf := bb.Encode()
	buf[0] = byte(frame.MsgCorrupted)

	pkts, err := s.OnReceiveFrame(buf)
	require.NoError(t, err)
	assert.Nil(t, pkts)
	assert.Equal(t, 1, s.CorruptedCount)
	assert.Equal(t, uint8(4), s.GetReceivedModcod(), "corrupted frame still updates received_modcod")
}
