package frame

import (
	"encoding/binary"

	"github.com/opensand-go/satcore/internal/errs"
)

// RealModcodOption is one (tal_id, real_modcod) advertisement carried in
// a BBFrame header, used to tell a terminal its new MODCOD before it is
// used.
type RealModcodOption struct {
	TalID      uint16
	RealModcod uint8
}

const realModcodOptionLen = 3

// BBFrame is the DVB-S2 forward-link baseband frame.
type BBFrame struct {
	Header           Header
	UsedModcod       uint8
	RealModcodOpts   []RealModcodOption
	PktType          uint8
	DataLength       uint16
	RealModcodOptCnt uint8 // redundant with len(RealModcodOpts); kept for wire fidelity on decode
	Payload          []byte
}

// Encode serializes bb to its wire form, filling in Header.MsgType,
// Header.MsgLength and RealModcodOptCnt.
func (bb *BBFrame) Encode() []byte {
	bb.Header.MsgType = MsgBBFrame
	bb.RealModcodOptCnt = uint8(len(bb.RealModcodOpts))
	bodyLen := 1 + 1 + 1 + 2 + len(bb.RealModcodOpts)*realModcodOptionLen + len(bb.Payload)
	total := HeaderLen + bodyLen
	bb.Header.MsgLength = uint16(total)

	out := make([]byte, 0, total)
	out = append(out, bb.Header.encode()...)
	out = append(out, bb.UsedModcod, uint8(len(bb.RealModcodOpts)), bb.PktType)

	dataLen := make([]byte, 2)
	binary.BigEndian.PutUint16(dataLen, bb.DataLength)
	out = append(out, dataLen...)

	for _, opt := range bb.RealModcodOpts {
		tb := make([]byte, 2)
		binary.BigEndian.PutUint16(tb, opt.TalID)
		out = append(out, tb...)
		out = append(out, opt.RealModcod)
	}

	out = append(out, bb.Payload...)
	return out
}

// DecodeBBFrame parses a BBFrame previously produced by Encode.
func DecodeBBFrame(buf []byte) (*BBFrame, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.MsgType != MsgBBFrame && h.MsgType != MsgCorrupted {
		return nil, errs.New(errs.Protocol, "frame", "not a BBFrame")
	}
	body := buf[HeaderLen:]
	if len(body) < 5 {
		return nil, errs.New(errs.Protocol, "frame", "BBFrame body too short")
	}

	bb := &BBFrame{Header: h}
	bb.UsedModcod = body[0]
	optCount := int(body[1])
	bb.PktType = body[2]
	bb.DataLength = binary.BigEndian.Uint16(body[3:5])

	off := 5
	for i := 0; i < optCount; i++ {
		if off+realModcodOptionLen > len(body) {
			return nil, errs.New(errs.Protocol, "frame", "truncated real-modcod option")
		}
		bb.RealModcodOpts = append(bb.RealModcodOpts, RealModcodOption{
			TalID:      binary.BigEndian.Uint16(body[off : off+2]),
			RealModcod: body[off+2],
		})
		off += realModcodOptionLen
	}
	bb.RealModcodOptCnt = uint8(optCount)
	bb.Payload = append([]byte(nil), body[off:]...)
	return bb, nil
}
