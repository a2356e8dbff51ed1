package frame

import (
	"encoding/binary"

	"github.com/opensand-go/satcore/internal/errs"
)

// LogonRequest is sent by a not-yet-registered ST.
type LogonRequest struct {
	Header      Header
	MAC         uint16
	CRAKbps     uint16
	MaxRBDCKbps uint16
	MaxVBDCPkts uint16
}

// Encode serializes r to its wire form.
func (r *LogonRequest) Encode() []byte {
	r.Header.MsgType = MsgLogonReq
	total := HeaderLen + 8
	r.Header.MsgLength = uint16(total)

	out := make([]byte, 0, total)
	out = append(out, r.Header.encode()...)
	b := make([]byte, 8)
	binary.BigEndian.PutUint16(b[0:2], r.MAC)
	binary.BigEndian.PutUint16(b[2:4], r.CRAKbps)
	binary.BigEndian.PutUint16(b[4:6], r.MaxRBDCKbps)
	binary.BigEndian.PutUint16(b[6:8], r.MaxVBDCPkts)
	return append(out, b...)
}

// DecodeLogonRequest parses a LogonRequest previously produced by Encode.
func DecodeLogonRequest(buf []byte) (*LogonRequest, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.MsgType != MsgLogonReq {
		return nil, errs.New(errs.Protocol, "frame", "not a LogonRequest")
	}
	body := buf[HeaderLen:]
	if len(body) < 8 {
		return nil, errs.New(errs.Protocol, "frame", "LogonRequest body too short")
	}
	return &LogonRequest{
		Header:      h,
		MAC:         binary.BigEndian.Uint16(body[0:2]),
		CRAKbps:     binary.BigEndian.Uint16(body[2:4]),
		MaxRBDCKbps: binary.BigEndian.Uint16(body[4:6]),
		MaxVBDCPkts: binary.BigEndian.Uint16(body[6:8]),
	}, nil
}

// LogonResponse is the NCC's reply, assigning a tal_id.
type LogonResponse struct {
	Header  Header
	MAC     uint16
	LogonID uint16 // assigned tal_id
	Ack     bool
}

// Encode serializes r to its wire form.
func (r *LogonResponse) Encode() []byte {
	r.Header.MsgType = MsgLogonResp
	total := HeaderLen + 5
	r.Header.MsgLength = uint16(total)

	out := make([]byte, 0, total)
	out = append(out, r.Header.encode()...)
	b := make([]byte, 5)
	binary.BigEndian.PutUint16(b[0:2], r.MAC)
	binary.BigEndian.PutUint16(b[2:4], r.LogonID)
	if r.Ack {
		b[4] = 1
	}
	return append(out, b...)
}

// DecodeLogonResponse parses a LogonResponse previously produced by
// Encode.
func DecodeLogonResponse(buf []byte) (*LogonResponse, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.MsgType != MsgLogonResp {
		return nil, errs.New(errs.Protocol, "frame", "not a LogonResponse")
	}
	body := buf[HeaderLen:]
	if len(body) < 5 {
		return nil, errs.New(errs.Protocol, "frame", "LogonResponse body too short")
	}
	return &LogonResponse{
		Header:  h,
		MAC:     binary.BigEndian.Uint16(body[0:2]),
		LogonID: binary.BigEndian.Uint16(body[2:4]),
		Ack:     body[4] != 0,
	}, nil
}

// Logoff announces a terminal's departure, either ST-initiated or as an
// NCC-side forced removal.
type Logoff struct {
	Header Header
	TalID  uint16
}

// Encode serializes l to its wire form.
func (l *Logoff) Encode() []byte {
	l.Header.MsgType = MsgLogoff
	total := HeaderLen + 2
	l.Header.MsgLength = uint16(total)

	out := make([]byte, 0, total)
	out = append(out, l.Header.encode()...)
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, l.TalID)
	return append(out, b...)
}

// DecodeLogoff parses a Logoff previously produced by Encode.
func DecodeLogoff(buf []byte) (*Logoff, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.MsgType != MsgLogoff {
		return nil, errs.New(errs.Protocol, "frame", "not a Logoff")
	}
	body := buf[HeaderLen:]
	if len(body) < 2 {
		return nil, errs.New(errs.Protocol, "frame", "Logoff body too short")
	}
	return &Logoff{Header: h, TalID: binary.BigEndian.Uint16(body[0:2])}, nil
}
