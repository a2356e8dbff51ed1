package frame

import (
	"encoding/binary"

	"github.com/opensand-go/satcore/internal/errs"
)

// SoF is the Start-Of-Frame beacon. The on-wire counter is 16 bits;
// internal/dama compares raw wire values for reboot detection rather
// than widening the field.
type SoF struct {
	Header            Header
	SuperFrameCounter uint16
}

// Encode serializes s to its wire form.
func (s *SoF) Encode() []byte {
	s.Header.MsgType = MsgSoF
	total := HeaderLen + 2
	s.Header.MsgLength = uint16(total)

	out := make([]byte, 0, total)
	out = append(out, s.Header.encode()...)
	sb := make([]byte, 2)
	binary.BigEndian.PutUint16(sb, s.SuperFrameCounter)
	return append(out, sb...)
}

// DecodeSoF parses a SoF previously produced by Encode.
func DecodeSoF(buf []byte) (*SoF, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.MsgType != MsgSoF {
		return nil, errs.New(errs.Protocol, "frame", "not a SoF")
	}
	body := buf[HeaderLen:]
	if len(body) < 2 {
		return nil, errs.New(errs.Protocol, "frame", "SoF body too short")
	}
	return &SoF{Header: h, SuperFrameCounter: binary.BigEndian.Uint16(body[0:2])}, nil
}
