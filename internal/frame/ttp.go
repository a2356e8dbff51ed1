package frame

import (
	"encoding/binary"

	"github.com/opensand-go/satcore/internal/errs"
)

// TTPEntry is one terminal's allocation for the next superframe.
type TTPEntry struct {
	TalID     uint16
	PktsAlloc uint16
}

const ttpEntryLen = 4

// TTP is the Terminal burst Time Plan.
type TTP struct {
	Header            Header
	SuperFrameCounter uint16
	Entries           []TTPEntry
}

// Encode serializes t to its wire form.
func (t *TTP) Encode() []byte {
	t.Header.MsgType = MsgTTP
	body := 2 + 2 + len(t.Entries)*ttpEntryLen
	total := HeaderLen + body
	t.Header.MsgLength = uint16(total)

	out := make([]byte, 0, total)
	out = append(out, t.Header.encode()...)

	sb := make([]byte, 2)
	binary.BigEndian.PutUint16(sb, t.SuperFrameCounter)
	out = append(out, sb...)

	cb := make([]byte, 2)
	binary.BigEndian.PutUint16(cb, uint16(len(t.Entries)))
	out = append(out, cb...)

	for _, e := range t.Entries {
		eb := make([]byte, 4)
		binary.BigEndian.PutUint16(eb[0:2], e.TalID)
		binary.BigEndian.PutUint16(eb[2:4], e.PktsAlloc)
		out = append(out, eb...)
	}
	return out
}

// DecodeTTP parses a TTP previously produced by Encode.
func DecodeTTP(buf []byte) (*TTP, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.MsgType != MsgTTP {
		return nil, errs.New(errs.Protocol, "frame", "not a TTP")
	}
	body := buf[HeaderLen:]
	if len(body) < 4 {
		return nil, errs.New(errs.Protocol, "frame", "TTP body too short")
	}

	t := &TTP{Header: h}
	t.SuperFrameCounter = binary.BigEndian.Uint16(body[0:2])
	count := int(binary.BigEndian.Uint16(body[2:4]))
	off := 4
	for i := 0; i < count; i++ {
		if off+ttpEntryLen > len(body) {
			return nil, errs.New(errs.Protocol, "frame", "truncated TTP entry")
		}
		t.Entries = append(t.Entries, TTPEntry{
			TalID:     binary.BigEndian.Uint16(body[off : off+2]),
			PktsAlloc: binary.BigEndian.Uint16(body[off+2 : off+4]),
		})
		off += ttpEntryLen
	}
	return t, nil
}

// AllocFor returns the packets allocated to talID in this TTP, or 0 if
// no entry exists for it.
func (t *TTP) AllocFor(talID uint16) uint16 {
	for _, e := range t.Entries {
		if e.TalID == talID {
			return e.PktsAlloc
		}
	}
	return 0
}
