package ubi_test

import (
	"testing"

	"github.com/flashbox/ubireader/ubi"
)

func TestAssembleVolumesResolvesDuplicateByCopyFlag(t *testing.T) {
	src := newTestSource(t)

	layout := &ubi.PEB{
		PebNum: 0,
		Kind:   ubi.KindLayout,
		EC:     &ubi.ECHeader{ImageSeq: 1, DataOffset: 64},
		VID:    &ubi.VIDHeader{VolID: 0x7fffffff, LNum: 0},
		VTbl:   []ubi.VTblRecord{{Name: "data", ReservedPEBs: 1}},
	}

	original := &ubi.PEB{
		PebNum:  1,
		Kind:    ubi.KindData,
		EC:      &ubi.ECHeader{ImageSeq: 1, DataOffset: 64},
		VID:     &ubi.VIDHeader{VolID: 0, LNum: 0, CopyFlag: 0, Sqnum: 1, DataCRC: 0xaa},
		DataCRC: 0xaa,
	}
	copyPeb := &ubi.PEB{
		PebNum:  2,
		Kind:    ubi.KindData,
		EC:      &ubi.ECHeader{ImageSeq: 1, DataOffset: 64},
		VID:     &ubi.VIDHeader{VolID: 0, LNum: 0, CopyFlag: 1, Sqnum: 2, DataCRC: 0xbb},
		DataCRC: 0xbb,
	}

	images, err := ubi.AssembleVolumes(src, []*ubi.PEB{layout, original, copyPeb})
	if err != nil {
		t.Fatalf("AssembleVolumes: %s", err)
	}
	if len(images) != 1 || len(images[0].Volumes) != 1 {
		t.Fatalf("expected 1 image with 1 volume, got %+v", images)
	}
	v := images[0].Volumes[0]
	if v.LEBs[0] != original.PebNum {
		t.Errorf("expected copy_flag-clear PEB %d to win, got %d", original.PebNum, v.LEBs[0])
	}
}

func TestAssembleVolumesPrefersHigherSqnumOnCrcTie(t *testing.T) {
	src := newTestSource(t)

	layout := &ubi.PEB{
		PebNum: 0,
		Kind:   ubi.KindLayout,
		EC:     &ubi.ECHeader{ImageSeq: 1, DataOffset: 64},
		VID:    &ubi.VIDHeader{VolID: 0x7fffffff, LNum: 0},
		VTbl:   []ubi.VTblRecord{{Name: "data", ReservedPEBs: 1}},
	}
	older := &ubi.PEB{
		PebNum:  1,
		Kind:    ubi.KindData,
		EC:      &ubi.ECHeader{ImageSeq: 1, DataOffset: 64},
		VID:     &ubi.VIDHeader{VolID: 0, LNum: 0, Sqnum: 5, DataCRC: 0xaa},
		DataCRC: 0xaa,
	}
	newer := &ubi.PEB{
		PebNum:  2,
		Kind:    ubi.KindData,
		EC:      &ubi.ECHeader{ImageSeq: 1, DataOffset: 64},
		VID:     &ubi.VIDHeader{VolID: 0, LNum: 0, Sqnum: 9, DataCRC: 0xaa},
		DataCRC: 0xaa,
	}

	images, err := ubi.AssembleVolumes(src, []*ubi.PEB{layout, older, newer})
	if err != nil {
		t.Fatalf("AssembleVolumes: %s", err)
	}
	v := images[0].Volumes[0]
	if v.LEBs[0] != newer.PebNum {
		t.Errorf("expected higher-sqnum PEB %d to win, got %d", newer.PebNum, v.LEBs[0])
	}
}

func newTestSource(t *testing.T) *ubi.Source {
	t.Helper()
	m := &mockReader{data: make([]byte, 4*128*1024)}
	src, err := ubi.NewSource(m, 0, int64(len(m.data)), 128*1024, int64(len(m.data)))
	if err != nil {
		t.Fatalf("NewSource: %s", err)
	}
	return src
}
