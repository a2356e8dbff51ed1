package frame

import (
	"encoding/binary"

	"github.com/opensand-go/satcore/internal/errs"
)

// DvbRcsFrame is the return-link frame: common header + qty_element,
// pkt_type, then qty_element contiguous fixed-size packets.
type DvbRcsFrame struct {
	Header     Header
	QtyElement uint16
	PktType    uint8
	Payload    []byte // qty_element contiguous fixed-size packets
}

const dvbRcsBodyHeaderLen = 3

// Encode serializes f to its wire form.
func (f *DvbRcsFrame) Encode() []byte {
	f.Header.MsgType = MsgDvbBurst
	total := HeaderLen + dvbRcsBodyHeaderLen + len(f.Payload)
	f.Header.MsgLength = uint16(total)

	out := make([]byte, 0, total)
	out = append(out, f.Header.encode()...)
	qb := make([]byte, 2)
	binary.BigEndian.PutUint16(qb, f.QtyElement)
	out = append(out, qb...)
	out = append(out, f.PktType)
	out = append(out, f.Payload...)
	return out
}

// DecodeDvbRcsFrame parses a DvbRcsFrame. packetSize, if non-zero, is
// checked against len(Payload)/QtyElement for consistency. Payload may
// be longer than qty_element*packetSize -- the return scheduler pads a
// closed frame out to its fixed slot size; only a payload
// shorter than the declared elements is malformed.
func DecodeDvbRcsFrame(buf []byte, packetSize int) (*DvbRcsFrame, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.MsgType != MsgDvbBurst && h.MsgType != MsgCorrupted {
		return nil, errs.New(errs.Protocol, "frame", "not a DvbRcsFrame")
	}
	body := buf[HeaderLen:]
	if len(body) < dvbRcsBodyHeaderLen {
		return nil, errs.New(errs.Protocol, "frame", "DvbRcsFrame body too short")
	}

	f := &DvbRcsFrame{Header: h}
	f.QtyElement = binary.BigEndian.Uint16(body[0:2])
	f.PktType = body[2]
	f.Payload = append([]byte(nil), body[dvbRcsBodyHeaderLen:]...)

	if packetSize > 0 && f.QtyElement > 0 && len(f.Payload) < int(f.QtyElement)*packetSize {
		return nil, errs.New(errs.Protocol, "frame", "DvbRcsFrame payload shorter than qty_element * packet size")
	}
	return f, nil
}

// Packets splits Payload into QtyElement fixed-size slices.
func (f *DvbRcsFrame) Packets(packetSize int) [][]byte {
	if packetSize <= 0 || f.QtyElement == 0 {
		return nil
	}
	out := make([][]byte, 0, f.QtyElement)
	for i := 0; i < int(f.QtyElement); i++ {
		start := i * packetSize
		end := start + packetSize
		if end > len(f.Payload) {
			break
		}
		out = append(out, f.Payload[start:end])
	}
	return out
}
