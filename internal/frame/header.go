// Package frame implements bit-exact encode/decode of every on-wire
// frame the emulation exchanges -- BBFrame, DvbRcsFrame, SAC, TTP, SoF,
// LogonRequest, LogonResponse, Logoff -- each sharing the common 5-byte
// header. Codecs are explicit byte-slice encode/decode pairs, no
// reflection.
package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/opensand-go/satcore/internal/errs"
)

// MsgType is the frame type discriminator of the common header.
type MsgType uint8

const (
	MsgDvbBurst   MsgType = 1
	MsgBBFrame    MsgType = 2
	MsgCorrupted  MsgType = 3
	MsgSAC        MsgType = 4
	MsgTTP        MsgType = 5
	MsgSoF        MsgType = 6
	MsgLogonReq   MsgType = 7
	MsgLogonResp  MsgType = 8
	MsgLogoff     MsgType = 9
	MsgSalohaData MsgType = 10
	MsgSalohaCtrl MsgType = 11
	MsgSync       MsgType = 12
	MsgCNI        MsgType = 13
)

// HeaderLen is the fixed size, in bytes, of the common header.
const HeaderLen = 5

// Header is the common frame header: msg_type, msg_length, spot_id,
// carrier_id, in network byte order.
type Header struct {
	MsgType   MsgType
	MsgLength uint16 // total frame length, header included
	SpotID    uint8
	CarrierID uint8
}

func (h Header) encode() []byte {
	b := make([]byte, HeaderLen)
	b[0] = byte(h.MsgType)
	binary.BigEndian.PutUint16(b[1:3], h.MsgLength)
	b[3] = h.SpotID
	b[4] = h.CarrierID
	return b
}

// DecodeHeader reads the common header from the front of buf. Fails with
// ProtocolError if buf is shorter than HeaderLen or msg_length disagrees
// with the buffer actually supplied.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, errs.New(errs.Protocol, "frame", "buffer shorter than header")
	}
	h := Header{
		MsgType:   MsgType(buf[0]),
		MsgLength: binary.BigEndian.Uint16(buf[1:3]),
		SpotID:    buf[3],
		CarrierID: buf[4],
	}
	if int(h.MsgLength) != len(buf) {
		return Header{}, errs.New(errs.Protocol, "frame", fmt.Sprintf("msg_length %d does not match buffer length %d", h.MsgLength, len(buf)))
	}
	return h, nil
}

// PeekMsgType reports the msg_type of an encoded frame without fully
// decoding it, used by the receive dispatch of every block.
func PeekMsgType(buf []byte) (MsgType, error) {
	if len(buf) < 1 {
		return 0, errs.New(errs.Protocol, "frame", "empty buffer")
	}
	return MsgType(buf[0]), nil
}
