package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Encode-then-decode of any frame yields the identical semantic
// structure (ignoring padding, which these codecs never insert at the
// frame-codec layer -- padding is a scheduler-level concept).

func TestBBFrameRoundTrip(t *testing.T) {
	bb := &BBFrame{
		Header:     Header{SpotID: 1, CarrierID: 7},
		UsedModcod: 4,
		RealModcodOpts: []RealModcodOption{
			{TalID: 5, RealModcod: 6},
			{TalID: 9, RealModcod: 2},
		},
		PktType:    1,
		DataLength: 42,
		Payload:    []byte("hello world"),
	}

	out := bb.Encode()
	got, err := DecodeBBFrame(out)
	require.NoError(t, err)

	assert.Equal(t, bb.UsedModcod, got.UsedModcod)
	assert.Equal(t, bb.RealModcodOpts, got.RealModcodOpts)
	assert.Equal(t, bb.PktType, got.PktType)
	assert.Equal(t, bb.DataLength, got.DataLength)
	assert.Equal(t, bb.Payload, got.Payload)
	assert.Equal(t, uint8(len(bb.RealModcodOpts)), got.RealModcodOptCnt)
}

func TestDvbRcsFrameRoundTrip(t *testing.T) {
	f := &DvbRcsFrame{
		Header:     Header{SpotID: 2, CarrierID: 3},
		QtyElement: 2,
		PktType:    1,
		Payload:    append([]byte("AAAA"), []byte("BBBB")...),
	}

	out := f.Encode()
	got, err := DecodeDvbRcsFrame(out, 4)
	require.NoError(t, err)
	assert.Equal(t, f.QtyElement, got.QtyElement)
	assert.Equal(t, f.Payload, got.Payload)

	pkts := got.Packets(4)
	require.Len(t, pkts, 2)
	assert.Equal(t, []byte("AAAA"), pkts[0])
	assert.Equal(t, []byte("BBBB"), pkts[1])
}

func TestSACRoundTrip(t *testing.T) {
	s := &SAC{
		Header: Header{SpotID: 1, CarrierID: 1},
		TalID:  5,
		Requests: []CRElement{
			{WrapCount: 1, Type: CRTypeRBDC, Value: 100},
			{WrapCount: 1, Type: CRTypeVBDC, Value: 1000},
		},
		CNIDbQ8: -512,
	}

	out := s.Encode()
	got, err := DecodeSAC(out)
	require.NoError(t, err)
	assert.Equal(t, s.TalID, got.TalID)
	assert.Equal(t, s.Requests, got.Requests)
	assert.Equal(t, s.CNIDbQ8, got.CNIDbQ8)
	assert.Equal(t, uint16(100), got.RBDCRequestKbps())
	assert.Equal(t, uint16(1000), got.VBDCRequestPkts())
}

func TestTTPRoundTrip(t *testing.T) {
	tt := &TTP{
		Header:            Header{SpotID: 1, CarrierID: 2},
		SuperFrameCounter: 77,
		Entries: []TTPEntry{
			{TalID: 5, PktsAlloc: 12},
			{TalID: 6, PktsAlloc: 0},
		},
	}

	out := tt.Encode()
	got, err := DecodeTTP(out)
	require.NoError(t, err)
	assert.Equal(t, tt.SuperFrameCounter, got.SuperFrameCounter)
	assert.Equal(t, tt.Entries, got.Entries)
	assert.Equal(t, uint16(12), got.AllocFor(5))
	assert.Equal(t, uint16(0), got.AllocFor(99))
}

func TestSoFRoundTrip(t *testing.T) {
	s := &SoF{Header: Header{SpotID: 1, CarrierID: 9}, SuperFrameCounter: 65000}
	out := s.Encode()
	got, err := DecodeSoF(out)
	require.NoError(t, err)
	assert.Equal(t, s.SuperFrameCounter, got.SuperFrameCounter)
}

func TestLogonRoundTrip(t *testing.T) {
	req := &LogonRequest{Header: Header{SpotID: 1, CarrierID: 4}, MAC: 5, CRAKbps: 64, MaxRBDCKbps: 256, MaxVBDCPkts: 0}
	out := req.Encode()
	got, err := DecodeLogonRequest(out)
	require.NoError(t, err)
	assert.Equal(t, *req, *got)

	resp := &LogonResponse{Header: Header{SpotID: 1, CarrierID: 5}, MAC: 5, LogonID: 5, Ack: true}
	out2 := resp.Encode()
	got2, err := DecodeLogonResponse(out2)
	require.NoError(t, err)
	assert.Equal(t, *resp, *got2)

	lo := &Logoff{Header: Header{SpotID: 1, CarrierID: 2}, TalID: 5}
	out3 := lo.Encode()
	got3, err := DecodeLogoff(out3)
	require.NoError(t, err)
	assert.Equal(t, *lo, *got3)
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	_, err := DecodeHeader([]byte{1, 2})
	require.Error(t, err)
}

func TestDecodeRejectsWrongMsgType(t *testing.T) {
	sof := &SoF{Header: Header{SpotID: 1, CarrierID: 1}, SuperFrameCounter: 1}
	out := sof.Encode()
	_, err := DecodeTTP(out)
	require.Error(t, err)
}
