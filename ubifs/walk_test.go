package ubifs_test

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"testing"

	"github.com/flashbox/ubireader/ubi"
	"github.com/flashbox/ubireader/ubifs"
)

// mockWalkReader backs a flat byte slice as an io.ReaderAt, standing in
// for the image file the same way mockSource does in file_test.go.
type mockWalkReader struct {
	data []byte
}

func (m *mockWalkReader) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// packKey16 encodes a Key into the real 16-byte on-flash key field used by
// ino/dent/data nodes: the low 8 bytes hold the packed key, the remaining
// 8 bytes are reserved (UBIFS_MAX_KEY_LEN, see ubifs-media.h).
func packKey16(k ubifs.Key) []byte {
	var buf [16]byte
	v := uint64(k)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(v))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(v>>32))
	return buf[:]
}

// packKey8 encodes a Key into the short 8-byte key UBIFS_SK_LEN carries
// standalone and inside index branches.
func packKey8(k ubifs.Key) []byte {
	return packKey16(k)[:8]
}

const testChSize = 24 // common header: magic, crc, sqnum, len, node type, group type, padding

// buildRawNode assembles a full node (common header + body) and stamps the
// CRC the same way CommonHeader.VerifyCRC checks it: over everything from
// the sqnum field onward.
func buildRawNode(nodeType uint8, sqnum uint64, body []byte) []byte {
	raw := make([]byte, testChSize+len(body))
	binary.LittleEndian.PutUint32(raw[0:4], ubifs.Magic)
	binary.LittleEndian.PutUint64(raw[8:16], sqnum)
	binary.LittleEndian.PutUint32(raw[16:20], uint32(len(raw)))
	raw[20] = nodeType
	raw[21] = 0
	copy(raw[24:], body)
	crc := crc32.ChecksumIEEE(raw[8:])
	binary.LittleEndian.PutUint32(raw[4:8], crc)
	return raw
}

func buildSuperblockBody() []byte {
	return make([]byte, 4072)
}

func buildMasterBody(rootLnum, rootOffs uint32) []byte {
	body := make([]byte, 488)
	// HighestInum, CmtNo (2x uint64) then Flags, LogLnum, RootLnum,
	// RootOffs, RootLen, GCLnum, IheadLnum, IheadOffs (8x uint32).
	binary.LittleEndian.PutUint32(body[24:28], rootLnum)
	binary.LittleEndian.PutUint32(body[28:32], rootOffs)
	return body
}

func buildInodeBody(key ubifs.Key, mode uint32) []byte {
	body := make([]byte, 136)
	copy(body[0:16], packKey16(key))
	// key(16) + 5 uint64 fields(40) land at 56; Mode is the 7th uint32
	// field after that (AtimeNsec, CtimeNsec, MtimeNsec, Nlink, UID, GID, Mode).
	const modeOff = 16 + 40 + 6*4
	binary.LittleEndian.PutUint32(body[modeOff:modeOff+4], mode)
	return body
}

func buildDentBody(key ubifs.Key, childInum uint64, name string) []byte {
	body := make([]byte, 32+len(name))
	copy(body[0:16], packKey16(key))
	binary.LittleEndian.PutUint64(body[16:24], childInum)
	binary.LittleEndian.PutUint16(body[26:28], uint16(len(name)))
	copy(body[32:], name)
	return body
}

func buildDataBody(key ubifs.Key, payload []byte) []byte {
	body := make([]byte, 24+len(payload))
	copy(body[0:16], packKey16(key))
	binary.LittleEndian.PutUint32(body[16:20], uint32(len(payload)))
	binary.LittleEndian.PutUint16(body[20:22], ubifs.ComprNone)
	copy(body[24:], payload)
	return body
}

type idxBranch struct {
	lnum, offs uint32
	key        ubifs.Key
}

func buildIndexBody(branches []idxBranch) []byte {
	body := make([]byte, 4+20*len(branches))
	binary.LittleEndian.PutUint16(body[0:2], uint16(len(branches)))
	binary.LittleEndian.PutUint16(body[2:4], 0) // level
	off := 4
	for _, br := range branches {
		binary.LittleEndian.PutUint32(body[off:off+4], br.lnum)
		binary.LittleEndian.PutUint32(body[off+4:off+8], br.offs)
		binary.LittleEndian.PutUint32(body[off+8:off+12], 0) // len, unused by the walker
		copy(body[off+12:off+20], packKey8(br.key))
		off += 20
	}
	return body
}

// TestWalkReadsRealWireFormat builds a minimal but byte-accurate UBI/UBIFS
// image (superblock, master, one index node fanning out to an inode, a
// dent, and a data node) and checks the walker reconstructs the tree
// correctly. This exercises every offset nodes.go's UnmarshalBinary
// methods depend on: a regression to the wrong key width or branch field
// order would make this fail, unlike the synthetic in-memory fixtures
// used elsewhere in this package.
func TestWalkReadsRealWireFormat(t *testing.T) {
	const blockSize = 128 * 1024
	const dataOffset = 64
	const pebCount = 4

	img := make([]byte, pebCount*blockSize)
	put := func(pebNum int64, within int, raw []byte) {
		start := pebNum*blockSize + dataOffset + int64(within)
		copy(img[start:], raw)
	}

	inoKey := ubifs.NewKey(5, ubifs.KeyInode, 0)
	dentKey := ubifs.NewKey(1, ubifs.KeyDent, 42)
	dataKey := ubifs.NewKey(5, ubifs.KeyData, 0)

	inoRaw := buildRawNode(ubifs.NodeIno, 10, buildInodeBody(inoKey, 0o100644))
	dentRaw := buildRawNode(ubifs.NodeDent, 11, buildDentBody(dentKey, 5, "file.txt"))
	payload := []byte("hello ubifs test")
	dataRaw := buildRawNode(ubifs.NodeData, 12, buildDataBody(dataKey, payload))

	offIno := 88
	offDent := offIno + len(inoRaw)
	offData := offDent + len(dentRaw)

	idxRaw := buildRawNode(ubifs.NodeIdx, 9, buildIndexBody([]idxBranch{
		{lnum: 3, offs: uint32(offIno), key: inoKey},
		{lnum: 3, offs: uint32(offDent), key: dentKey},
		{lnum: 3, offs: uint32(offData), key: dataKey},
	}))
	if len(idxRaw) > offIno {
		t.Fatalf("index node (%d bytes) overruns the leaf region starting at %d", len(idxRaw), offIno)
	}

	put(1, 0, buildRawNode(ubifs.NodeSb, 1, buildSuperblockBody()))
	put(2, 0, buildRawNode(ubifs.NodeMst, 2, buildMasterBody(3, 0)))
	put(3, 0, idxRaw)
	put(3, offIno, inoRaw)
	put(3, offDent, dentRaw)
	put(3, offData, dataRaw)

	src, err := ubi.NewSource(&mockWalkReader{data: img}, 0, int64(len(img)), blockSize, int64(len(img)))
	if err != nil {
		t.Fatalf("NewSource: %s", err)
	}

	layout := &ubi.PEB{
		PebNum: 0,
		Kind:   ubi.KindLayout,
		EC:     &ubi.ECHeader{ImageSeq: 1, DataOffset: dataOffset},
		VID:    &ubi.VIDHeader{VolID: 0x7fffffff, LNum: 0},
		VTbl:   []ubi.VTblRecord{{Name: "rootfs", ReservedPEBs: pebCount}},
	}
	mkData := func(pebNum int64, lnum uint32) *ubi.PEB {
		return &ubi.PEB{
			PebNum: pebNum,
			Kind:   ubi.KindData,
			EC:     &ubi.ECHeader{ImageSeq: 1, DataOffset: dataOffset},
			VID:    &ubi.VIDHeader{VolID: 0, LNum: lnum},
		}
	}

	images, err := ubi.AssembleVolumes(src, []*ubi.PEB{
		layout,
		mkData(1, 0), // superblock LEB
		mkData(2, 1), // master LEB
		mkData(3, 3), // index + leaf LEB
	})
	if err != nil {
		t.Fatalf("AssembleVolumes: %s", err)
	}
	if len(images) != 1 || len(images[0].Volumes) != 1 {
		t.Fatalf("expected 1 image with 1 volume, got %+v", images)
	}
	vol := images[0].Volumes[0]

	fs, err := ubifs.Open(vol)
	if err != nil {
		t.Fatalf("Open: %s", err)
	}

	tree, err := fs.Walk()
	if err != nil {
		t.Fatalf("Walk: %s", err)
	}

	ino, ok := tree.Inodes[5]
	if !ok || ino.Ino == nil {
		t.Fatalf("expected inode 5 to be decoded, got %+v", tree.Inodes)
	}
	if ino.Ino.Mode != 0o100644 {
		t.Errorf("inode mode: got %o want %o (key width bug would misalign every field after it)", ino.Ino.Mode, 0o100644)
	}

	parent, ok := tree.Inodes[1]
	if !ok || len(parent.Dent) != 1 {
		t.Fatalf("expected one dent under inode 1, got %+v", tree.Inodes[1])
	}
	if parent.Dent[0].Name != "file.txt" || parent.Dent[0].ChildInum != 5 {
		t.Errorf("dent mismatch: %+v", parent.Dent[0])
	}

	if len(ino.Data) != 1 {
		t.Fatalf("expected one data ref on inode 5, got %d", len(ino.Data))
	}
	ref := ino.Data[0]
	if ref.ComprLen != len(payload) {
		t.Errorf("ComprLen: got %d want %d (stale dataFixedSz would inflate this)", ref.ComprLen, len(payload))
	}
	got := make([]byte, len(payload))
	if _, err := src.AsReaderAt().ReadAt(got, ref.AbsOffset); err != nil {
		t.Fatalf("ReadAt payload: %s", err)
	}
	if string(got) != string(payload) {
		t.Errorf("payload: got %q want %q (wrong payloadOffs would read into the header or next field)", got, payload)
	}
}
