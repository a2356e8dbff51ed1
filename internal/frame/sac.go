package frame

import (
	"encoding/binary"

	"github.com/opensand-go/satcore/internal/errs"
)

// CRType names the capacity-request kind carried in a SAC entry.
type CRType uint8

const (
	CRTypeRBDC CRType = 0
	CRTypeVBDC CRType = 1
)

// CRElement is one (wrap_count, cr_type, value) entry of a SAC.
type CRElement struct {
	WrapCount uint8
	Type      CRType
	Value     uint16 // kbps for RBDC, packets for VBDC
}

const crElementLen = 4 // wrap_count(1) + cr_type(1) + value(2)

// SAC is the Satellite Access Control message: capacity requests plus
// the terminal's current C/N reading.
type SAC struct {
	Header   Header
	TalID    uint16
	Requests []CRElement
	CNIDbQ8  int16 // Q8 fixed point, only meaningful when with_phy_layer
}

// Encode serializes s to its wire form.
func (s *SAC) Encode() []byte {
	s.Header.MsgType = MsgSAC
	body := 2 + 1 + len(s.Requests)*crElementLen + 2
	total := HeaderLen + body
	s.Header.MsgLength = uint16(total)

	out := make([]byte, 0, total)
	out = append(out, s.Header.encode()...)

	tb := make([]byte, 2)
	binary.BigEndian.PutUint16(tb, s.TalID)
	out = append(out, tb...)
	out = append(out, uint8(len(s.Requests)))

	for _, r := range s.Requests {
		vb := make([]byte, 2)
		binary.BigEndian.PutUint16(vb, r.Value)
		out = append(out, r.WrapCount, uint8(r.Type))
		out = append(out, vb...)
	}

	cb := make([]byte, 2)
	binary.BigEndian.PutUint16(cb, uint16(s.CNIDbQ8))
	out = append(out, cb...)
	return out
}

// DecodeSAC parses a SAC previously produced by Encode.
func DecodeSAC(buf []byte) (*SAC, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.MsgType != MsgSAC {
		return nil, errs.New(errs.Protocol, "frame", "not a SAC")
	}
	body := buf[HeaderLen:]
	if len(body) < 3 {
		return nil, errs.New(errs.Protocol, "frame", "SAC body too short")
	}

	s := &SAC{Header: h}
	s.TalID = binary.BigEndian.Uint16(body[0:2])
	count := int(body[2])
	off := 3
	for i := 0; i < count; i++ {
		if off+crElementLen > len(body) {
			return nil, errs.New(errs.Protocol, "frame", "truncated CR element")
		}
		s.Requests = append(s.Requests, CRElement{
			WrapCount: body[off],
			Type:      CRType(body[off+1]),
			Value:     binary.BigEndian.Uint16(body[off+2 : off+4]),
		})
		off += crElementLen
	}
	if off+2 > len(body) {
		return nil, errs.New(errs.Protocol, "frame", "SAC missing cni field")
	}
	s.CNIDbQ8 = int16(binary.BigEndian.Uint16(body[off : off+2]))
	return s, nil
}

// RBDCRequestKbps returns the value of the first RBDC entry, or 0 if
// none is present.
func (s *SAC) RBDCRequestKbps() uint16 {
	for _, r := range s.Requests {
		if r.Type == CRTypeRBDC {
			return r.Value
		}
	}
	return 0
}

// VBDCRequestPkts returns the value of the first VBDC entry, or 0 if
// none is present.
func (s *SAC) VBDCRequestPkts() uint16 {
	for _, r := range s.Requests {
		if r.Type == CRTypeVBDC {
			return r.Value
		}
	}
	return 0
}
