package ubi_test

import (
	"encoding/binary"
	"testing"

	"github.com/flashbox/ubireader/ubi"
)

func makeECHeader(t *testing.T, vidOff, dataOff uint32, ec uint64, seq uint32, corruptCRC bool) []byte {
	t.Helper()
	buf := make([]byte, 64)
	binary.BigEndian.PutUint32(buf[0:4], 0x55424923)
	buf[4] = 1 // version
	binary.BigEndian.PutUint64(buf[8:16], ec)
	binary.BigEndian.PutUint32(buf[16:20], vidOff)
	binary.BigEndian.PutUint32(buf[20:24], dataOff)
	binary.BigEndian.PutUint32(buf[24:28], seq)
	crc := crc32IEEE(buf[:60])
	if corruptCRC {
		crc++
	}
	binary.BigEndian.PutUint32(buf[60:64], crc)
	return buf
}

func TestECHeaderUnmarshal(t *testing.T) {
	buf := makeECHeader(t, 64, 4096, 5, 0xdeadbeef, false)
	var h ubi.ECHeader
	if err := h.UnmarshalBinary(buf); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	if !h.CRCOk {
		t.Errorf("expected CRCOk true")
	}
	if h.EC != 5 || h.ImageSeq != 0xdeadbeef {
		t.Errorf("unexpected decoded fields: %+v", h)
	}
	if !h.Valid(128 * 1024) {
		t.Errorf("expected header to be Valid")
	}
}

func TestECHeaderBadCRC(t *testing.T) {
	buf := makeECHeader(t, 64, 4096, 5, 1, true)
	var h ubi.ECHeader
	if err := h.UnmarshalBinary(buf); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	if h.CRCOk {
		t.Errorf("expected CRCOk false on corrupted header")
	}
}

func TestVTblRecordEmptySlot(t *testing.T) {
	buf := make([]byte, 172)
	var rec ubi.VTblRecord
	if err := rec.UnmarshalBinary(buf); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	if !rec.Empty {
		t.Errorf("expected Empty true for zero name_len")
	}
}

// crc32IEEE duplicates the package-internal helper since it isn't
// exported; kept tiny and local to this test file.
func crc32IEEE(b []byte) uint32 {
	var crc uint32 = 0xffffffff
	const poly = 0xedb88320
	for _, c := range b {
		crc ^= uint32(c)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ poly
			} else {
				crc >>= 1
			}
		}
	}
	return crc ^ 0xffffffff
}
